package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/pkg/config"
	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

// Job names, also the keys of App.Running.
const (
	JobEndpoints = "endpoints"
	JobHeights   = "heights"
	JobPrices    = "prices"
	JobRanges    = "ranges"
)

// Per-run bounds of the scheduled jobs.
const (
	EndpointsTimeout = 10 * time.Minute
	heightsTimeout   = 4 * time.Minute
	pricesTimeout    = time.Minute
	rangesTimeout    = 55 * time.Minute
)

// Runner executes collector services through the progress gate.
type Runner interface {
	RunHeight(ctx context.Context, service string, height uint64) (activity.Outcome, error)
	RunHeights(ctx context.Context, service string, heights []uint64) (activity.Summary, error)
	RunRange(ctx context.Context, service string, r models.HeightRange) (activity.Outcome, error)
	RunCacheSetRollups(ctx context.Context, r models.HeightRange, interval string) (activity.Summary, error)
	RetryFailed(ctx context.Context, service string) (activity.Summary, error)
	FailedUnits(ctx context.Context, service string) (any, error)
	Services() []string
}

// HeadReader returns the current chain height.
type HeadReader interface {
	ChainHead(ctx context.Context) (uint64, error)
}

// EndpointPopulator validates candidates [from, to) into the endpoint pool.
type EndpointPopulator interface {
	Populate(ctx context.Context, from, to int) (int, error)
}

// HeightResolver maps wall-clock time to heights.
type HeightResolver interface {
	HeightAtTime(ctx context.Context, ts time.Time) (uint64, error)
	Window(ctx context.Context, from, to time.Time) (uint64, uint64, error)
}

// HealthChecker reports whether an optional dependency answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// App schedules the collector jobs and serves the admin API.
type App struct {
	Config config.Collector
	RPC    config.RPC
	Logger *zap.Logger
	Clock  clockwork.Clock

	Runner    Runner
	Store     db.Store
	Chain     HeadReader
	Pool      *rpc.Pool
	Validator EndpointPopulator
	Resolver  HeightResolver

	// Events is the redis connection behind progress events; nil when they are disabled.
	Events HealthChecker

	// Services enabled by the wiring; height services run in this order.
	HeightServices []string
	RangeServices  []string
	PricesEnabled  bool

	// Cron is the scheduler that triggers the jobs at the configured specs.
	Cron *cron.Cron

	// Running tracks the jobs in flight and when they started; a job still running when
	// its next tick fires is not started twice.
	Running *xsync.Map[string, time.Time]

	// Server is the HTTP server that serves the admin API.
	Server *http.Server

	closers []func() error
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) { l.s.Debugw(msg, keysAndValues...) }
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// SetupScheduler registers every job on a fresh cron.
func (a *App) SetupScheduler(ctx context.Context) error {
	logger := cronLogger{s: a.Logger.Sugar()}
	a.Cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	jobs := []struct {
		name    string
		spec    string
		timeout time.Duration
		run     func(context.Context) error
	}{
		{JobEndpoints, a.Config.EndpointCron, EndpointsTimeout, a.RefreshEndpoints},
		{JobHeights, a.Config.HeightCron, heightsTimeout, a.CollectHeights},
		{JobPrices, a.Config.PriceCron, pricesTimeout, a.CollectPrices},
		{JobRanges, a.Config.RangeCron, rangesTimeout, a.CollectRanges},
	}
	for _, j := range jobs {
		if j.spec == "" {
			a.Logger.Info("Job disabled", zap.String("job", j.name))
			continue
		}
		if _, err := a.Cron.AddFunc(j.spec, func() { a.RunJob(ctx, j.name, j.timeout, j.run) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}
	return nil
}

// RunJob runs fn under name with a bounded context unless a run of name is still in flight.
// It reports whether fn ran.
func (a *App) RunJob(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) bool {
	start := a.Clock.Now()
	if prev, loaded := a.Running.LoadOrStore(name, start); loaded {
		a.Logger.Warn("Job still running, skipping tick",
			zap.String("job", name), zap.Duration("running_for", a.Clock.Since(prev)))
		return false
	}
	defer a.Running.Delete(name)

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(rctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Job failed", zap.String("job", name), zap.Duration("took", a.Clock.Since(start)), zap.Error(err))
		return true
	}
	a.Logger.Info("Job done", zap.String("job", name), zap.Duration("took", a.Clock.Since(start)))
	return true
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("Cron started",
		zap.String("heights", a.Config.HeightCron),
		zap.String("ranges", a.Config.RangeCron),
		zap.String("prices", a.Config.PriceCron),
		zap.String("endpoints", a.Config.EndpointCron))
}

// StopCron stops the scheduler and waits for running jobs.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// Close releases every resource opened by Initialize, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// Start serves the admin API until ctx is done, then shuts everything down.
func (a *App) Start(ctx context.Context) {
	go func() {
		a.Logger.Info("Starting server", zap.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	a.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)
	a.StopCron()
	a.Close()
	a.Logger.Info("Bye")
}
