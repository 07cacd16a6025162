package db

import (
	"context"

	"github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// NodeStore manages the height-versioned node registrations.
type NodeStore interface {
	GetCurrentNode(ctx context.Context, address string) (*poktinfo.NodeInfo, error)
	HasURLChanged(ctx context.Context, address, url string) (bool, error)
	HasChainsChanged(ctx context.Context, address string, chains []string) (bool, error)
	AppendNodeVersion(ctx context.Context, node *poktinfo.NodeInfo, height uint64) error
	CloseNode(ctx context.Context, address string, endHeight uint64, isStaked bool) error
	ActiveNodes(ctx context.Context, prefix string) ([]poktinfo.NodeInfo, error)
}

// LocationStore manages the height-versioned node locations.
type LocationStore interface {
	GetCurrentLocation(ctx context.Context, address, ranFrom string) (*poktinfo.LocationInfo, error)
	HasLocationChanged(ctx context.Context, address, ranFrom, city, ip, isp string) (bool, error)
	AppendLocationVersion(ctx context.Context, loc *poktinfo.LocationInfo, height uint64) error
	CloseLocation(ctx context.Context, address, ranFrom string, endHeight uint64) error
	OpenLocations(ctx context.Context, prefix, ranFrom string) ([]poktinfo.LocationInfo, error)
}

// ProgressStore records which units of work completed.
type ProgressStore interface {
	IsHeightRecorded(ctx context.Context, service string, height uint64) (bool, error)
	IsRangeRecorded(ctx context.Context, service string, r poktinfo.HeightRange) (bool, error)
	IsCacheSetRangeRecorded(ctx context.Context, cacheSetID int64, service string, r poktinfo.HeightRange, interval string) (bool, error)
	RecordHeight(ctx context.Context, service string, height uint64, status poktinfo.Status) error
	RecordRange(ctx context.Context, service string, r poktinfo.HeightRange, status poktinfo.Status) error
	RecordCacheSetRange(ctx context.Context, cacheSetID int64, service string, r poktinfo.HeightRange, interval string, status poktinfo.Status) error
	FailedHeights(ctx context.Context, service string) ([]uint64, error)
	FailedRanges(ctx context.Context, service string) ([]poktinfo.HeightRange, error)
	FailedCacheSetRanges(ctx context.Context, service string) ([]poktinfo.CacheSetStateRange, error)
	LastRecordedHeight(ctx context.Context, service string) (uint64, error)
}

// RewardStore stores minted rewards and answers the totals used by reports.
type RewardStore interface {
	InsertRewards(ctx context.Context, rewards []poktinfo.RewardInfo) error
	RewardsTotal(ctx context.Context, addresses []string, from, to uint64, chain string) (float64, error)
	RelaysTotal(ctx context.Context, addresses []string, from, to uint64, chain string) (uint64, error)
	RewardsByChain(ctx context.Context, addresses []string, from, to uint64, weightMultiplier float64) ([]poktinfo.RewardsCacheSet, error)
}

// CacheSetStore manages cache sets, their members and the rollups computed for them.
type CacheSetStore interface {
	ActiveCacheSets(ctx context.Context) ([]poktinfo.CacheSet, error)
	CacheSetAddresses(ctx context.Context, cacheSetID int64, height uint64) ([]string, error)
	NodeCountByChain(ctx context.Context, addresses []string, from, to uint64) (map[string]uint64, error)
	CurrentLocations(ctx context.Context, addresses []string, ranFrom string) ([]poktinfo.LocationInfo, error)
	ReplaceRewardsCacheSet(ctx context.Context, key CacheSetWindow, rows []poktinfo.RewardsCacheSet) error
	ReplaceNodeCountCacheSet(ctx context.Context, key CacheSetWindow, rows []poktinfo.NodeCountCacheSet) error
	ReplaceLatencyCacheSet(ctx context.Context, key CacheSetWindow) error
	ReplaceErrorsCacheSet(ctx context.Context, key CacheSetWindow) error
	ReplaceLocationCacheSet(ctx context.Context, key CacheSetWindow, rows []poktinfo.LocationCacheSet) error
}

// CacheSetWindow identifies one rollup of a cache set.
type CacheSetWindow struct {
	CacheSetID int64
	Range      poktinfo.HeightRange
	Interval   string
}

// RelayCacheStore holds the per-range latency and error summaries.
type RelayCacheStore interface {
	ReplaceLatencyCache(ctx context.Context, r poktinfo.HeightRange, rows []poktinfo.LatencyCache) error
	ReplaceErrorsCache(ctx context.Context, r poktinfo.HeightRange, rows []poktinfo.ErrorsCache) error
}

// PriceStore persists coin prices.
type PriceStore interface {
	ReplacePrice(ctx context.Context, price poktinfo.CoinPrice) error
}

// EndpointStore persists endpoint validation results.
type EndpointStore interface {
	UpsertEndpoint(ctx context.Context, ep *poktinfo.RPCEndpoint) error
	ListEndpoints(ctx context.Context) ([]poktinfo.RPCEndpoint, error)
}

// Store is everything the collector needs from the poktinfo database.
type Store interface {
	NodeStore
	LocationStore
	ProgressStore
	RewardStore
	CacheSetStore
	RelayCacheStore
	PriceStore
	EndpointStore
	Ping(ctx context.Context) error
	Close() error
}
