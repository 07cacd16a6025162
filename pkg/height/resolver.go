// Package height translates wall-clock time into chain height.
package height

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"go.uber.org/zap"
)

// SearchFloor is the lowest height searched; earlier blocks carry unusable timestamps.
const SearchFloor uint64 = 42052

// DateLayout is the key format of DateToHeightMap.
const DateLayout = "2006-01-02"

// ChainReader is what the resolver needs from an RPC client.
type ChainReader interface {
	ChainHead(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, height uint64) (time.Time, error)
}

// Resolver maps timestamps to heights with a binary search over block times.
type Resolver struct {
	logger *zap.Logger
	client ChainReader
	cache  *ristretto.Cache
	floor  uint64
}

// NewResolver returns a resolver searching [SearchFloor, head].
func NewResolver(logger *zap.Logger, client ChainReader) (*Resolver, error) {
	// block times never change, so entries only leave the cache under memory pressure
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     100_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create block time cache: %w", err)
	}
	return &Resolver{logger: logger, client: client, cache: cache, floor: SearchFloor}, nil
}

// Close releases the block time cache.
func (r *Resolver) Close() {
	r.cache.Close()
}

// HeightAtTime returns the height whose block time equals ts, or, when no block matches
// exactly, the last midpoint the search visited. That midpoint is within one block of
// the boundary around ts but is not guaranteed to be the closest block.
// The head is fetched on every call. A head below the search floor yields 0.
func (r *Resolver) HeightAtTime(ctx context.Context, ts time.Time) (uint64, error) {
	last, err := r.client.ChainHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain head: %w", err)
	}
	ts = ts.UTC()

	first := r.floor
	var mid uint64
	steps := 0
	defer func() { metrics.ResolverSteps.Observe(float64(steps)) }()

	for first <= last {
		mid = first + (last-first)/2
		steps++
		blockTS, err := r.blockTime(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("block time at %d: %w", mid, err)
		}
		if blockTS.Equal(ts) {
			return mid, nil
		}
		if ts.After(blockTS) {
			first = mid + 1
		} else {
			if mid == 0 {
				break
			}
			last = mid - 1
		}
	}

	r.logger.Debug("Resolved height by approximation",
		zap.Time("ts", ts),
		zap.Uint64("height", mid),
		zap.Int("steps", steps))
	return mid, nil
}

// DateToHeightMap resolves every date and keys the result by YYYY-MM-DD.
func (r *Resolver) DateToHeightMap(ctx context.Context, dates []time.Time) (map[string]uint64, error) {
	out := make(map[string]uint64, len(dates))
	for _, d := range dates {
		h, err := r.HeightAtTime(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", d.UTC().Format(DateLayout), err)
		}
		out[d.UTC().Format(DateLayout)] = h
	}
	return out, nil
}

// Window resolves [from, to) into a height range.
func (r *Resolver) Window(ctx context.Context, from, to time.Time) (uint64, uint64, error) {
	if !from.Before(to) {
		return 0, 0, fmt.Errorf("empty window %s..%s", from, to)
	}
	start, err := r.HeightAtTime(ctx, from)
	if err != nil {
		return 0, 0, err
	}
	end, err := r.HeightAtTime(ctx, to)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (r *Resolver) blockTime(ctx context.Context, h uint64) (time.Time, error) {
	if v, ok := r.cache.Get(h); ok {
		return v.(time.Time), nil
	}
	ts, err := r.client.BlockTime(ctx, h)
	if err != nil {
		return time.Time{}, err
	}
	ts = ts.UTC()
	r.cache.Set(h, ts, 1)
	r.cache.Wait()
	return ts, nil
}
