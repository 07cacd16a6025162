package activity

import (
	"context"
	"fmt"
	"sort"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// Service names as recorded in the progress tables.
const (
	ServiceRewards   = "rewards"
	ServiceNodes     = "nodes"
	ServiceLocations = "locations"
	ServicePrices    = "prices"

	ServiceLatency = "latency"
	ServiceErrors  = "errors"

	ServiceCacheSetRewards   = "cache_set_rewards"
	ServiceCacheSetNodeCount = "cache_set_node_count"
	ServiceCacheSetLocations = "cache_set_locations"
	ServiceCacheSetLatency   = "cache_set_latency"
	ServiceCacheSetErrors    = "cache_set_errors"
)

// Kind is the unit of work a service is recorded by.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeight
	KindRange
	KindCacheSetRange
)

func (k Kind) String() string {
	switch k {
	case KindHeight:
		return "height"
	case KindRange:
		return "range"
	case KindCacheSetRange:
		return "cache_set_range"
	}
	return "unknown"
}

type (
	HeightFunc   func(ctx context.Context, height uint64) error
	RangeFunc    func(ctx context.Context, r models.HeightRange) error
	CacheSetFunc func(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) error
)

type heightService struct {
	run HeightFunc
	// sequential services append temporal versions and must see heights in order.
	sequential bool
}

func (c *Context) heightServices() map[string]heightService {
	return map[string]heightService{
		ServiceRewards:   {run: c.CollectRewards},
		ServicePrices:    {run: c.RecordPrices},
		ServiceNodes:     {run: c.SnapshotNodes, sequential: true},
		ServiceLocations: {run: c.SnapshotLocations, sequential: true},
	}
}

func (c *Context) rangeServices() map[string]RangeFunc {
	return map[string]RangeFunc{
		ServiceLatency: c.CollectLatency,
		ServiceErrors:  c.CollectErrors,
	}
}

func (c *Context) cacheSetServices() map[string]CacheSetFunc {
	return map[string]CacheSetFunc{
		ServiceCacheSetRewards:   c.RollupRewards,
		ServiceCacheSetNodeCount: c.RollupNodeCount,
		ServiceCacheSetLocations: c.RollupLocations,
		ServiceCacheSetLatency:   c.RollupLatency,
		ServiceCacheSetErrors:    c.RollupErrors,
	}
}

// KindOf returns how service is recorded.
func (c *Context) KindOf(service string) Kind {
	if _, ok := c.heightServices()[service]; ok {
		return KindHeight
	}
	if _, ok := c.rangeServices()[service]; ok {
		return KindRange
	}
	if _, ok := c.cacheSetServices()[service]; ok {
		return KindCacheSetRange
	}
	return KindUnknown
}

// Services lists every known service name, sorted.
func (c *Context) Services() []string {
	var out []string
	for name := range c.heightServices() {
		out = append(out, name)
	}
	for name := range c.rangeServices() {
		out = append(out, name)
	}
	for name := range c.cacheSetServices() {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CacheSetServiceNames lists the rollup services, sorted.
var CacheSetServiceNames = []string{
	ServiceCacheSetErrors,
	ServiceCacheSetLatency,
	ServiceCacheSetLocations,
	ServiceCacheSetNodeCount,
	ServiceCacheSetRewards,
}

// CacheSetServices lists the rollup services, sorted.
func (c *Context) CacheSetServices() []string {
	return append([]string(nil), CacheSetServiceNames...)
}

// ErrUnknownService is returned for names no service is registered under.
type ErrUnknownService struct {
	Service string
	Want    Kind
}

func (e *ErrUnknownService) Error() string {
	if e.Want == KindUnknown {
		return fmt.Sprintf("unknown service %q", e.Service)
	}
	return fmt.Sprintf("unknown %s service %q", e.Want, e.Service)
}
