// Package cli is the operator command line: one-off validation, backfills and retries
// against the same storage and chain the collector uses.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := &cobra.Command{
		Use:          "poktinfo",
		Short:        "Operator CLI for the Pocket Network data collector.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var driver string
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "conn", "storage strategy (pool, conn)")

	rootCmd.AddCommand(
		NewEndpointsCmd().Command(),
		NewHeightAtCmd().Command(),
		NewBackfillCmd().Command(),
		NewFailedCmd().Command(),
		NewRetryCmd().Command(),
		NewPricesHistoryCmd().Command(),
		NewWatchCmd().Command(),
		NewKeyCmd().Command(),
		NewCacheSetCmd().Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}
