package activity

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/geo"
	"github.com/thunderhead-labs/poktinfo/pkg/redis"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

// PriceRecorder stores the current price of a coin at a height.
type PriceRecorder interface {
	RecordCurrent(ctx context.Context, coin, currency string, height uint64) error
}

// LatencySource summarises relay latency over a range.
type LatencySource interface {
	Latency(ctx context.Context, r models.HeightRange) ([]models.LatencyCache, error)
}

// ErrorsSource summarises relay errors over a range.
type ErrorsSource interface {
	Errors(ctx context.Context, r models.HeightRange) ([]models.ErrorsCache, error)
}

// ProgressPublisher receives every recorded unit result.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, ev redis.ProgressEvent)
}

// Context carries the dependencies of the collector services. Optional dependencies
// (Locator, Prices, Latency, Errors, Publisher) disable the services that need them when nil.
type Context struct {
	Logger *zap.Logger
	Store  db.Store
	RPC    rpc.Client

	Locator   geo.Locator
	Prices    PriceRecorder
	Latency   LatencySource
	Errors    ErrorsSource
	Publisher ProgressPublisher

	// RanFrom scopes location versions to the region the collector runs in.
	RanFrom  string
	Coins    []string
	Currency string

	// Parallelism bounds concurrent heights of append-only services; GeoWorkers bounds
	// concurrent lookups inside one location snapshot.
	Parallelism int
	GeoWorkers  int

	// Now is overridable in tests.
	Now func() time.Time

	heightPoolOnce sync.Once
	heightPool     pond.Pool
	geoPoolOnce    sync.Once
	geoPool        pond.Pool
}

// Parallelism returns override when set, else two workers per CPU capped at 32.
func Parallelism(override int) int {
	if override > 0 {
		return override
	}
	n := runtime.NumCPU() * 2
	if n < 2 {
		n = 2
	}
	if n > 32 {
		n = 32
	}
	return n
}

// heightWorkers runs the heights of append-only services.
func (c *Context) heightWorkers() pond.Pool {
	c.heightPoolOnce.Do(func() {
		c.heightPool = pond.NewPool(Parallelism(c.Parallelism))
	})
	return c.heightPool
}

// geoWorkers runs the lookups of a location snapshot.
func (c *Context) geoWorkers() pond.Pool {
	c.geoPoolOnce.Do(func() {
		n := c.GeoWorkers
		if n <= 0 {
			n = 4
		}
		c.geoPool = pond.NewPool(n)
	})
	return c.geoPool
}

// Close stops the worker pools.
func (c *Context) Close() {
	if c.heightPool != nil {
		c.heightPool.StopAndWait()
	}
	if c.geoPool != nil {
		c.geoPool.StopAndWait()
	}
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}
