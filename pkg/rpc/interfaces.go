package rpc

import (
	"context"
	"time"
)

// Client captures the RPC calls used by the collector services.
type Client interface {
	ChainHead(ctx context.Context) (uint64, error)
	Block(ctx context.Context, height uint64) (*Block, error)
	BlockTime(ctx context.Context, height uint64) (time.Time, error)
	Node(ctx context.Context, address string, height uint64) (*Node, error)
	NodeBalance(ctx context.Context, address string, height uint64) (uint64, error)
	OutputAddress(ctx context.Context, address string, height uint64) (string, error)
	Nodes(ctx context.Context, height uint64) ([]Node, error)
	Balance(ctx context.Context, address string, height uint64) (uint64, error)
	Supply(ctx context.Context, height uint64) (*Supply, error)
	Inflation(ctx context.Context, height uint64) (int64, error)
	BlockTxs(ctx context.Context, height uint64) ([]Tx, error)
	AccountTxs(ctx context.Context, address string, height uint64) ([]Tx, error)
	NodeClaims(ctx context.Context, height uint64, address string) ([]Claim, error)
	Param(ctx context.Context, height uint64, key string) (string, error)
	AllParams(ctx context.Context, height uint64) (map[string]string, error)
	RSCALHeight(ctx context.Context, height uint64) uint64
	DAOAllocation(ctx context.Context, height uint64) (float64, error)
	ProposerPercentage(ctx context.Context, height uint64) (float64, error)
	RewardPercentage(ctx context.Context, height uint64) (float64, error)
	RelaysToTokensMultiplier(ctx context.Context, height uint64) (float64, error)
	StakeWeight(ctx context.Context, height uint64) (StakeWeightParams, error)
}

var _ Client = (*HTTPClient)(nil)

// Prober is what endpoint validation needs from a client.
type Prober interface {
	MainHead(ctx context.Context) (uint64, error)
	HeadAt(ctx context.Context, baseURL string) (uint64, error)
}

var _ Prober = (*HTTPClient)(nil)

// Factory produces RPC clients bound to a given pool.
type Factory interface {
	NewClient(pool *Pool) *HTTPClient
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(pool *Pool) *HTTPClient {
	o := f.opts
	o.Pool = pool
	return NewHTTPWithOpts(o)
}
