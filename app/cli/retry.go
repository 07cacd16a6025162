package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type FailedCmd struct{}

func NewFailedCmd() *FailedCmd {
	return &FailedCmd{}
}

func (c *FailedCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed SERVICE",
		Short: "List the units of a service whose last result is fail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ce, err := e.collector()
			if err != nil {
				return err
			}
			defer ce.close()

			units, err := ce.sources.Activity.FailedUnits(e.ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(units)
		},
	}

	return cmd
}

type RetryCmd struct{}

func NewRetryCmd() *RetryCmd {
	return &RetryCmd{}
}

func (c *RetryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-failed SERVICE...",
		Short: "Rerun only the failed units of each service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ce, err := e.collector()
			if err != nil {
				return err
			}
			defer ce.close()

			failed := 0
			for _, service := range args {
				sum, err := ce.sources.Activity.RetryFailed(e.ctx, service)
				if err != nil {
					return fmt.Errorf("retry %s: %w", service, err)
				}
				printSummary(service, sum)
				failed += sum.Failed
			}
			if failed > 0 {
				return fmt.Errorf("%d units still failing", failed)
			}
			return nil
		},
	}

	return cmd
}
