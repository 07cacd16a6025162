package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thunderhead-labs/poktinfo/pkg/redis"
)

type WatchCmd struct{}

func NewWatchCmd() *WatchCmd {
	return &WatchCmd{}
}

func (c *WatchCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the collector's progress events",
		RunE: func(cmd *cobra.Command, args []string) error {
			replay, err := cmd.Flags().GetBool("replay")
			if err != nil {
				return fmt.Errorf("failed to get replay flag: %w", err)
			}

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			rc, err := redis.NewClient(e.ctx, e.log.Named("redis"))
			if err != nil {
				return err
			}
			defer rc.Close()

			cfg := redis.TailConfig{
				Stream: redis.StreamFor(e.cfg.Collector.EventsChannel),
				Logger: e.log.Named("tail"),
			}
			if replay {
				cfg.LastID = "0"
			}
			tail, err := redis.NewProgressTail(rc, cfg)
			if err != nil {
				return err
			}

			err = tail.Run(e.ctx, func(ev redis.ProgressEvent) error {
				fmt.Println(formatEvent(ev))
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Bool("replay", false, "replay the retained stream before following it")

	return cmd
}

func formatEvent(ev redis.ProgressEvent) string {
	at := ev.At.UTC().Format("2006-01-02T15:04:05Z")
	switch {
	case ev.CacheSetID != 0:
		return fmt.Sprintf("%s %-22s %-7s set=%d [%d,%d) %s", at, ev.Service, ev.Status, ev.CacheSetID, ev.Start, ev.End, ev.Interval)
	case ev.End != 0:
		return fmt.Sprintf("%s %-22s %-7s [%d,%d)", at, ev.Service, ev.Status, ev.Start, ev.End)
	}
	return fmt.Sprintf("%s %-22s %-7s height=%d", at, ev.Service, ev.Status, ev.Height)
}
