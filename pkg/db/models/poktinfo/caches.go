package poktinfo

import (
	"time"
)

const (
	LatencyCacheTableName      = "latency_cache"
	ErrorsCacheTableName       = "errors_cache"
	RewardsCacheSetTableName   = "rewards_cache_set"
	LatencyCacheSetTableName   = "latency_cache_set"
	ErrorsCacheSetTableName    = "errors_cache_set"
	LocationCacheSetTableName  = "location_cache_set"
	NodeCountCacheSetTableName = "node_count_cache_set"
	CoinPricesTableName        = "coin_prices"
	RPCEndpointsTableName      = "rpc_endpoints"
)

// LatencyCache summarises relay latency of one address/chain/region over a height range.
type LatencyCache struct {
	StartHeight            uint64  `json:"start_height"`
	EndHeight              uint64  `json:"end_height"`
	Address                string  `json:"address"`
	Chain                  string  `json:"chain"`
	Region                 string  `json:"region"`
	TotalSuccess           uint64  `json:"total_success"`
	TotalFailure           uint64  `json:"total_failure"`
	MedianSuccessLatency   float64 `json:"median_success_latency"`
	WeightedSuccessLatency float64 `json:"weighted_success_latency"`
}

// ErrorsCache counts relay errors of one address/chain/message over a height range.
type ErrorsCache struct {
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
	Address     string `json:"address"`
	Chain       string `json:"chain"`
	Message     string `json:"msg"`
	Count       uint64 `json:"count"`
}

// RewardsCacheSet is the rewards rollup of a cache set over a window.
type RewardsCacheSet struct {
	CacheSetID  int64   `json:"cache_set_id"`
	StartHeight uint64  `json:"start_height"`
	EndHeight   uint64  `json:"end_height"`
	Interval    string  `json:"interval"`
	Chain       string  `json:"chain"`
	Rewards     float64 `json:"rewards"`
	Relays      uint64  `json:"relays"`
	Per15k      float64 `json:"per_15k"`
}

// NodeCountCacheSet is the number of staked members of a cache set over a window.
type NodeCountCacheSet struct {
	CacheSetID  int64  `json:"cache_set_id"`
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
	Interval    string `json:"interval"`
	Chain       string `json:"chain"`
	Count       uint64 `json:"count"`
}

// LatencyCacheSet is the latency rollup of a cache set.
type LatencyCacheSet struct {
	CacheSetID             int64   `json:"cache_set_id"`
	StartHeight            uint64  `json:"start_height"`
	EndHeight              uint64  `json:"end_height"`
	Interval               string  `json:"interval"`
	Chain                  string  `json:"chain"`
	Region                 string  `json:"region"`
	TotalSuccess           uint64  `json:"total_success"`
	TotalFailure           uint64  `json:"total_failure"`
	WeightedSuccessLatency float64 `json:"weighted_success_latency"`
}

// ErrorsCacheSet is the error rollup of a cache set.
type ErrorsCacheSet struct {
	CacheSetID  int64  `json:"cache_set_id"`
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
	Interval    string `json:"interval"`
	Chain       string `json:"chain"`
	Message     string `json:"msg"`
	Count       uint64 `json:"count"`
}

// LocationCacheSet counts the members of a cache set per location bucket.
type LocationCacheSet struct {
	CacheSetID  int64  `json:"cache_set_id"`
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
	Interval    string `json:"interval"`
	Continent   string `json:"continent"`
	Country     string `json:"country"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
	Count       uint64 `json:"count"`
}

// CoinPrice is a price observation anchored to a chain height.
type CoinPrice struct {
	Coin       string  `json:"coin"`
	VsCurrency string  `json:"vs_currency"`
	Price      float64 `json:"price"`
	Height     uint64  `json:"height"`
}

// RPCEndpoint is the last validation result of a candidate endpoint.
type RPCEndpoint struct {
	Endpoint  string    `json:"endpoint"`
	Status    string    `json:"status"` // accepted, lagging, unreachable
	Height    uint64    `json:"height"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error"`
	UpdatedAt time.Time `json:"updated_at"`
}
