package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// RefreshEndpoints validates the candidate range and adds every accepted endpoint to the pool.
func (a *App) RefreshEndpoints(ctx context.Context) error {
	n, err := a.Validator.Populate(ctx, a.RPC.NodeFrom, a.RPC.NodeTo)
	if err != nil {
		return fmt.Errorf("populate endpoints: %w", err)
	}
	if a.Pool != nil && a.Pool.Len() == 0 {
		a.Logger.Warn("No endpoint accepted, calls go to the main URL", zap.Int("accepted", n))
	}
	return nil
}

// CollectHeights runs the height services over the last HeightLookback heights.
func (a *App) CollectHeights(ctx context.Context) error {
	head, err := a.Chain.ChainHead(ctx)
	if err != nil {
		return fmt.Errorf("chain head: %w", err)
	}
	heights := HeightsToCollect(head, a.Config.HeightLookback)

	var total activity.Summary
	for _, service := range a.HeightServices {
		sum, err := a.Runner.RunHeights(ctx, service, heights)
		total.Merge(sum)
		a.logSummary(service, sum)
		if err != nil {
			return fmt.Errorf("%s: %w", service, err)
		}
	}
	a.Logger.Info("Heights collected", zap.Uint64("head", head), zap.Int("heights", len(heights)),
		zap.Int("succeeded", total.Succeeded), zap.Int("failed", total.Failed), zap.Int("skipped", total.Skipped))
	return nil
}

// CollectPrices records the configured coin prices at the head.
func (a *App) CollectPrices(ctx context.Context) error {
	if !a.PricesEnabled {
		return nil
	}
	head, err := a.Chain.ChainHead(ctx)
	if err != nil {
		return fmt.Errorf("chain head: %w", err)
	}
	outcome, err := a.Runner.RunHeight(ctx, activity.ServicePrices, head)
	if err != nil {
		return err
	}
	if outcome == activity.OutcomeFail {
		return fmt.Errorf("prices at %d failed", head)
	}
	return nil
}

// CollectRanges runs the range services over the complete ranges of the lookback window,
// then the cache-set rollups of every configured interval, then retries failed units.
func (a *App) CollectRanges(ctx context.Context) error {
	head, err := a.Chain.ChainHead(ctx)
	if err != nil {
		return fmt.Errorf("chain head: %w", err)
	}

	var errs []error
	for _, service := range a.RangeServices {
		var sum activity.Summary
		for _, r := range RangesToCollect(head, a.Config.RangeSize, a.Config.HeightLookback) {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome, err := a.Runner.RunRange(ctx, service, r)
			if err != nil {
				return fmt.Errorf("%s: %w", service, err)
			}
			sum.Merge(summaryOf(outcome))
		}
		a.logSummary(service, sum)
	}

	if err := a.RollupCacheSets(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.RetryAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RollupCacheSets resolves every configured interval ending at the last full hour into a
// height window and rolls every active cache set up over it.
func (a *App) RollupCacheSets(ctx context.Context) error {
	windows, err := CacheSetWindows(a.Clock.Now(), a.Config.CacheSetWindows)
	if err != nil {
		return err
	}
	var errs []error
	for _, w := range windows {
		start, end, err := a.Resolver.Window(ctx, w.From, w.To)
		if err != nil {
			errs = append(errs, fmt.Errorf("window %s: %w", w.Interval, err))
			continue
		}
		if end <= start {
			a.Logger.Warn("Empty height window", zap.String("interval", w.Interval),
				zap.Uint64("start", start), zap.Uint64("end", end))
			continue
		}
		sum, err := a.Runner.RunCacheSetRollups(ctx, models.HeightRange{Start: start, End: end}, w.Interval)
		a.logSummary("cache_sets_"+w.Interval, sum)
		if err != nil {
			errs = append(errs, fmt.Errorf("rollups %s: %w", w.Interval, err))
		}
	}
	return errors.Join(errs...)
}

// RetryAll reruns the failed units of every enabled service.
func (a *App) RetryAll(ctx context.Context) error {
	services := append(append([]string{}, a.HeightServices...), a.RangeServices...)
	if a.PricesEnabled {
		services = append(services, activity.ServicePrices)
	}
	services = append(services, activity.CacheSetServiceNames...)

	var errs []error
	for _, service := range services {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := a.Runner.RetryFailed(ctx, service)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry %s: %w", service, err))
			continue
		}
		if sum != (activity.Summary{}) {
			a.logSummary("retry_"+service, sum)
		}
	}
	return errors.Join(errs...)
}

func summaryOf(o activity.Outcome) activity.Summary {
	switch o {
	case activity.OutcomeSuccess:
		return activity.Summary{Succeeded: 1}
	case activity.OutcomeFail:
		return activity.Summary{Failed: 1}
	case activity.OutcomeSkipped:
		return activity.Summary{Skipped: 1}
	}
	return activity.Summary{}
}

func (a *App) logSummary(service string, sum activity.Summary) {
	a.Logger.Debug("Service batch",
		zap.String("service", service),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped))
}
