package activity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

var ErrNoRelaySource = errors.New("no relay statistics source configured")

// CollectLatency replaces the latency summary of r with the one read from the latency database.
func (c *Context) CollectLatency(ctx context.Context, r models.HeightRange) error {
	if c.Latency == nil {
		return ErrNoRelaySource
	}
	rows, err := c.Latency.Latency(ctx, r)
	if err != nil {
		return fmt.Errorf("latency %s: %w", r, err)
	}
	if err := c.Store.ReplaceLatencyCache(ctx, r, rows); err != nil {
		return err
	}
	c.Logger.Debug("Latency summary stored", zap.Stringer("range", r), zap.Int("rows", len(rows)))
	return nil
}

// CollectErrors replaces the error summary of r with the one read from the errors database.
func (c *Context) CollectErrors(ctx context.Context, r models.HeightRange) error {
	if c.Errors == nil {
		return ErrNoRelaySource
	}
	rows, err := c.Errors.Errors(ctx, r)
	if err != nil {
		return fmt.Errorf("errors %s: %w", r, err)
	}
	if err := c.Store.ReplaceErrorsCache(ctx, r, rows); err != nil {
		return err
	}
	c.Logger.Debug("Errors summary stored", zap.Stringer("range", r), zap.Int("rows", len(rows)))
	return nil
}
