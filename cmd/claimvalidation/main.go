package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/claim-validation/internal/config"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var envFile string
	var cmdRoot = &cobra.Command{
		Use:           "claimvalidation",
		Short:         "Insurance claim batch validation",
		Long:          `Load claim batches, drive them run by run through the validator and collect responses`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	cmdRoot.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from file (default .env when present)")

	cmdRoot.AddCommand(cmdAPI())
	cmdRoot.AddCommand(cmdWorker())
	cmdRoot.AddCommand(cmdOrchestrator())
	cmdRoot.AddCommand(cmdMigrate())
	cmdRoot.AddCommand(cmdVersion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "claimvalidation:", err)
		stop()
		os.Exit(1)
	}
}

func cmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claimvalidation: version %q\n", version)
		},
	}
}
