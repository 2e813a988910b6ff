package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/claim-validation/internal/domain"
	"gorm.io/gorm"
)

// translateWriteError maps unique constraint violations to domain.ErrConflict.
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolationError(err) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func isUniqueViolationError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
