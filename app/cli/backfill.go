package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

type BackfillCmd struct{}

func NewBackfillCmd() *BackfillCmd {
	return &BackfillCmd{}
}

func (c *BackfillCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run a service over a height window; units already recorded as success are skipped",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := cmd.Flags().GetString("service")
			if err != nil {
				return fmt.Errorf("failed to get service flag: %w", err)
			}
			from, err := cmd.Flags().GetUint64("from")
			if err != nil {
				return fmt.Errorf("failed to get from flag: %w", err)
			}
			to, err := cmd.Flags().GetUint64("to")
			if err != nil {
				return fmt.Errorf("failed to get to flag: %w", err)
			}
			rangeSize, err := cmd.Flags().GetUint64("range-size")
			if err != nil {
				return fmt.Errorf("failed to get range-size flag: %w", err)
			}
			interval, err := cmd.Flags().GetString("interval")
			if err != nil {
				return fmt.Errorf("failed to get interval flag: %w", err)
			}
			if to <= from {
				return fmt.Errorf("to (%d) must be greater than from (%d)", to, from)
			}

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
			ac := ce.sources.Activity

			var sum activity.Summary
			switch ac.KindOf(service) {
			case activity.KindHeight:
				sum, err = ac.RunHeights(e.ctx, service, heightsBetween(from, to))
			case activity.KindRange:
				if rangeSize == 0 {
					rangeSize = e.cfg.Collector.RangeSize
				}
				for _, r := range rangesBetween(from, to, rangeSize) {
					o, rerr := ac.RunRange(e.ctx, service, r)
					if rerr != nil {
						err = rerr
						break
					}
					sum.Merge(outcomeSummary(o))
				}
			case activity.KindCacheSetRange:
				if interval == "" {
					return fmt.Errorf("--interval is required for cache-set rollups")
				}
				sum, err = ac.RunCacheSetRollups(e.ctx, models.HeightRange{Start: from, End: to}, interval)
				service = "cache_sets"
			default:
				return &activity.ErrUnknownService{Service: service}
			}
			if err != nil {
				return err
			}

			printSummary(service, sum)
			if sum.Failed > 0 {
				return fmt.Errorf("%d units failed; rerun with retry-failed", sum.Failed)
			}
			return nil
		},
	}

	cmd.Flags().String("service", activity.ServiceNodes, "service to run")
	cmd.Flags().Uint64("from", 0, "first height")
	cmd.Flags().Uint64("to", 0, "height to stop before")
	cmd.Flags().Uint64("range-size", 0, "range width for range services (default RANGE_SIZE)")
	cmd.Flags().String("interval", "", "cache-set interval label, e.g. 24h")

	return cmd
}

// heightsBetween returns [from, to).
func heightsBetween(from, to uint64) []uint64 {
	if to <= from {
		return nil
	}
	out := make([]uint64, 0, to-from)
	for h := from; h < to; h++ {
		out = append(out, h)
	}
	return out
}

// rangesBetween splits [from, to) into ranges of size; the last one may be shorter.
func rangesBetween(from, to, size uint64) []models.HeightRange {
	if size == 0 || to <= from {
		return nil
	}
	var out []models.HeightRange
	for start := from; start < to; start += size {
		out = append(out, models.HeightRange{Start: start, End: min(start+size, to)})
	}
	return out
}

func outcomeSummary(o activity.Outcome) activity.Summary {
	var sum activity.Summary
	switch o {
	case activity.OutcomeSuccess:
		sum.Succeeded = 1
	case activity.OutcomeFail:
		sum.Failed = 1
	case activity.OutcomeSkipped:
		sum.Skipped = 1
	}
	return sum
}
