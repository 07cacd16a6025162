package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/thunderhead-labs/poktinfo/pkg/height"
)

type HeightAtCmd struct{}

func NewHeightAtCmd() *HeightAtCmd {
	return &HeightAtCmd{}
}

func (c *HeightAtCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "height-at TIME...",
		Short: "Resolve the chain height at each time (RFC3339, YYYY-MM-DD or unix seconds)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			times := make([]time.Time, 0, len(args))
			for _, a := range args {
				ts, err := parseTime(a)
				if err != nil {
					return err
				}
				times = append(times, ts)
			}

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			client, _, err := e.chain(nil)
			if err != nil {
				return err
			}
			resolver, err := height.NewResolver(e.log.Named("height"), client)
			if err != nil {
				return err
			}
			defer resolver.Close()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetAutoFormatHeaders(false)
			table.SetHeader([]string{"Time", "Height"})
			for _, ts := range times {
				h, err := resolver.HeightAtTime(e.ctx, ts)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", ts.Format(time.RFC3339), err)
				}
				table.Append([]string{ts.Format(time.RFC3339), strconv.FormatUint(h, 10)})
			}
			table.Render()
			return nil
		},
	}

	return cmd
}

func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(height.DateLayout, s); err == nil {
		return ts.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339, %s or unix seconds", s, height.DateLayout)
}
