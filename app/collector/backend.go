package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/app/collector/controller"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

var _ controller.Backend = (*App)(nil)

// Ready reports whether the poktinfo database answers, and redis when progress events
// are enabled.
func (a *App) Ready(ctx context.Context) error {
	if a.Store == nil {
		return errors.New("store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		return err
	}
	if a.Events != nil {
		if err := a.Events.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) PoolEndpoints() []rpc.Endpoint {
	if a.Pool == nil {
		return nil
	}
	return a.Pool.Snapshot()
}

func (a *App) ProbedEndpoints(ctx context.Context) ([]models.RPCEndpoint, error) {
	return a.Store.ListEndpoints(ctx)
}

func (a *App) Services() []string {
	return a.Runner.Services()
}

func (a *App) FailedUnits(ctx context.Context, service string) (any, error) {
	return a.Runner.FailedUnits(ctx, service)
}

func (a *App) RetryFailed(ctx context.Context, service string) (activity.Summary, error) {
	return a.Runner.RetryFailed(ctx, service)
}

func (a *App) HeightAtTime(ctx context.Context, ts time.Time) (uint64, error) {
	return a.Resolver.HeightAtTime(ctx, ts)
}
