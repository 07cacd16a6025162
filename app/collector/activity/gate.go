package activity

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"github.com/thunderhead-labs/poktinfo/pkg/redis"
)

// Outcome of one unit of work.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFail    Outcome = "fail"
	OutcomeSkipped Outcome = "skipped"
)

// Summary counts unit outcomes of a batch.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeFail:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Merge adds other into s.
func (s *Summary) Merge(other Summary) {
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// gate runs one unit: skipped when already recorded as success, otherwise run and record
// exactly one result. A unit error never escapes; it becomes a fail record.
func (c *Context) gate(
	ctx context.Context,
	service string,
	fields []zap.Field,
	recorded func(ctx context.Context) (bool, error),
	run func(ctx context.Context) error,
	record func(ctx context.Context, status models.Status) error,
	event redis.ProgressEvent,
) Outcome {
	logger := c.Logger.With(append([]zap.Field{zap.String("service", service)}, fields...)...)

	done, err := recorded(ctx)
	if err != nil {
		logger.Error("Progress lookup failed, unit not run", zap.Error(err))
		metrics.Units.WithLabelValues(service, string(OutcomeFail)).Inc()
		return OutcomeFail
	}
	if done {
		logger.Debug("Unit already recorded")
		metrics.Units.WithLabelValues(service, string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}

	status := models.StatusSuccess
	outcome := OutcomeSuccess
	if runErr := run(ctx); runErr != nil {
		status = models.StatusFail
		outcome = OutcomeFail
		logger.Warn("Unit failed", zap.Error(runErr))
	}

	// record even when ctx was cancelled mid-run, so the unit is retried later
	recCtx := context.WithoutCancel(ctx)
	if err := record(recCtx, status); err != nil {
		logger.Error("Recording unit result failed", zap.String("status", string(status)), zap.Error(err))
	}
	metrics.Units.WithLabelValues(service, string(outcome)).Inc()

	if c.Publisher != nil {
		event.Service = service
		event.Status = string(status)
		event.At = c.now()
		c.Publisher.PublishProgress(recCtx, event)
	}
	return outcome
}

// RunHeight runs a height service at height through the progress gate.
func (c *Context) RunHeight(ctx context.Context, service string, height uint64) (Outcome, error) {
	svc, ok := c.heightServices()[service]
	if !ok {
		return "", &ErrUnknownService{Service: service, Want: KindHeight}
	}
	return c.runHeight(ctx, service, svc.run, height), nil
}

func (c *Context) runHeight(ctx context.Context, service string, run HeightFunc, height uint64) Outcome {
	return c.gate(ctx, service,
		[]zap.Field{zap.Uint64("height", height)},
		func(ctx context.Context) (bool, error) { return c.Store.IsHeightRecorded(ctx, service, height) },
		func(ctx context.Context) error { return run(ctx, height) },
		func(ctx context.Context, status models.Status) error {
			return c.Store.RecordHeight(ctx, service, height, status)
		},
		redis.ProgressEvent{Height: height},
	)
}

// RunHeights runs service over heights. Temporal services run in ascending order one at a
// time; the others run concurrently on the height pool. A failing height does not stop the batch.
func (c *Context) RunHeights(ctx context.Context, service string, heights []uint64) (Summary, error) {
	svc, ok := c.heightServices()[service]
	if !ok {
		return Summary{}, &ErrUnknownService{Service: service, Want: KindHeight}
	}

	sorted := append([]uint64(nil), heights...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum Summary
	if svc.sequential || len(sorted) < 2 {
		for _, h := range sorted {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.add(c.runHeight(ctx, service, svc.run, h))
		}
		return sum, nil
	}

	var mu sync.Mutex
	group := c.heightWorkers().NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, h := range sorted {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			o := c.runHeight(groupCtx, service, svc.run, h)
			mu.Lock()
			sum.add(o)
			mu.Unlock()
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return sum, err
	}
	return sum, ctx.Err()
}

// RunRange runs a range service through the progress gate.
func (c *Context) RunRange(ctx context.Context, service string, r models.HeightRange) (Outcome, error) {
	run, ok := c.rangeServices()[service]
	if !ok {
		return "", &ErrUnknownService{Service: service, Want: KindRange}
	}
	return c.gate(ctx, service,
		[]zap.Field{zap.Stringer("range", r)},
		func(ctx context.Context) (bool, error) { return c.Store.IsRangeRecorded(ctx, service, r) },
		func(ctx context.Context) error { return run(ctx, r) },
		func(ctx context.Context, status models.Status) error {
			return c.Store.RecordRange(ctx, service, r, status)
		},
		redis.ProgressEvent{Start: r.Start, End: r.End},
	), nil
}

// RunCacheSetRange runs a rollup service for one cache set and window through the progress gate.
func (c *Context) RunCacheSetRange(ctx context.Context, service string, cs models.CacheSet, key db.CacheSetWindow) (Outcome, error) {
	run, ok := c.cacheSetServices()[service]
	if !ok {
		return "", &ErrUnknownService{Service: service, Want: KindCacheSetRange}
	}
	key.CacheSetID = cs.ID
	return c.gate(ctx, service,
		[]zap.Field{zap.Int64("cache_set_id", cs.ID), zap.Stringer("range", key.Range), zap.String("interval", key.Interval)},
		func(ctx context.Context) (bool, error) {
			return c.Store.IsCacheSetRangeRecorded(ctx, cs.ID, service, key.Range, key.Interval)
		},
		func(ctx context.Context) error { return run(ctx, cs, key) },
		func(ctx context.Context, status models.Status) error {
			return c.Store.RecordCacheSetRange(ctx, cs.ID, service, key.Range, key.Interval, status)
		},
		redis.ProgressEvent{Start: key.Range.Start, End: key.Range.End, CacheSetID: cs.ID, Interval: key.Interval},
	), nil
}

// RunCacheSetRollups runs every rollup service for every active cache set over one window.
func (c *Context) RunCacheSetRollups(ctx context.Context, r models.HeightRange, interval string) (Summary, error) {
	sets, err := c.Store.ActiveCacheSets(ctx)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, cs := range sets {
		for _, service := range c.CacheSetServices() {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			o, err := c.RunCacheSetRange(ctx, service, cs, db.CacheSetWindow{Range: r, Interval: interval})
			if err != nil {
				return sum, err
			}
			sum.add(o)
		}
	}
	return sum, nil
}

// RetryFailed reruns only the units of service whose last result is fail.
func (c *Context) RetryFailed(ctx context.Context, service string) (Summary, error) {
	switch c.KindOf(service) {
	case KindHeight:
		heights, err := c.Store.FailedHeights(ctx, service)
		if err != nil {
			return Summary{}, err
		}
		return c.RunHeights(ctx, service, heights)

	case KindRange:
		ranges, err := c.Store.FailedRanges(ctx, service)
		if err != nil {
			return Summary{}, err
		}
		var sum Summary
		for _, r := range ranges {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			o, err := c.RunRange(ctx, service, r)
			if err != nil {
				return sum, err
			}
			sum.add(o)
		}
		return sum, nil

	case KindCacheSetRange:
		entries, err := c.Store.FailedCacheSetRanges(ctx, service)
		if err != nil {
			return Summary{}, err
		}
		sets, err := c.Store.ActiveCacheSets(ctx)
		if err != nil {
			return Summary{}, err
		}
		byID := make(map[int64]models.CacheSet, len(sets))
		for _, cs := range sets {
			byID[cs.ID] = cs
		}
		var sum Summary
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			cs, ok := byID[e.CacheSetID]
			if !ok {
				c.Logger.Info("Cache set no longer active, not retrying",
					zap.Int64("cache_set_id", e.CacheSetID), zap.String("service", service))
				sum.add(OutcomeSkipped)
				continue
			}
			o, err := c.RunCacheSetRange(ctx, service, cs, db.CacheSetWindow{Range: e.Range, Interval: e.Interval})
			if err != nil {
				return sum, err
			}
			sum.add(o)
		}
		return sum, nil
	}
	return Summary{}, &ErrUnknownService{Service: service}
}

// FailedUnits describes the failed units of service for the admin API.
func (c *Context) FailedUnits(ctx context.Context, service string) (any, error) {
	switch c.KindOf(service) {
	case KindHeight:
		return c.Store.FailedHeights(ctx, service)
	case KindRange:
		return c.Store.FailedRanges(ctx, service)
	case KindCacheSetRange:
		return c.Store.FailedCacheSetRanges(ctx, service)
	}
	return nil, &ErrUnknownService{Service: service}
}
