package activity

import (
	"context"
	"fmt"
	"sort"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// members returns the addresses of cs at the start of the window.
func (c *Context) members(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) ([]string, error) {
	addrs, err := c.Store.CacheSetAddresses(ctx, cs.ID, key.Range.Start)
	if err != nil {
		return nil, fmt.Errorf("members of cache set %d: %w", cs.ID, err)
	}
	return addrs, nil
}

// RollupRewards stores rewards and relays per chain of the cache set over the window.
func (c *Context) RollupRewards(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) error {
	addrs, err := c.members(ctx, cs, key)
	if err != nil {
		return err
	}
	params, err := c.RPC.StakeWeight(ctx, key.Range.End)
	if err != nil {
		return fmt.Errorf("stake weight params: %w", err)
	}
	rows, err := c.Store.RewardsByChain(ctx, addrs, key.Range.Start, key.Range.End, params.WeightMultiplier)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].CacheSetID = cs.ID
		rows[i].StartHeight = key.Range.Start
		rows[i].EndHeight = key.Range.End
		rows[i].Interval = key.Interval
	}
	return c.Store.ReplaceRewardsCacheSet(ctx, key, rows)
}

// RollupNodeCount stores the number of members staked through the window, per chain.
func (c *Context) RollupNodeCount(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) error {
	addrs, err := c.members(ctx, cs, key)
	if err != nil {
		return err
	}
	counts, err := c.Store.NodeCountByChain(ctx, addrs, key.Range.Start, key.Range.End)
	if err != nil {
		return err
	}
	rows := make([]models.NodeCountCacheSet, 0, len(counts))
	for chain, n := range counts {
		rows = append(rows, models.NodeCountCacheSet{
			CacheSetID:  cs.ID,
			StartHeight: key.Range.Start,
			EndHeight:   key.Range.End,
			Interval:    key.Interval,
			Chain:       chain,
			Count:       n,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Chain < rows[j].Chain })
	return c.Store.ReplaceNodeCountCacheSet(ctx, key, rows)
}

type locationBucket struct {
	continent, country, city, isp string
}

// RollupLocations counts the members per continent, country, city and isp.
func (c *Context) RollupLocations(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) error {
	addrs, err := c.members(ctx, cs, key)
	if err != nil {
		return err
	}
	locs, err := c.Store.CurrentLocations(ctx, addrs, c.RanFrom)
	if err != nil {
		return err
	}
	counts := map[locationBucket]uint64{}
	for _, l := range locs {
		counts[locationBucket{l.Continent, l.Country, l.City, l.ISP}]++
	}
	rows := make([]models.LocationCacheSet, 0, len(counts))
	for b, n := range counts {
		rows = append(rows, models.LocationCacheSet{
			CacheSetID:  cs.ID,
			StartHeight: key.Range.Start,
			EndHeight:   key.Range.End,
			Interval:    key.Interval,
			Continent:   b.continent,
			Country:     b.country,
			City:        b.city,
			ISP:         b.isp,
			Count:       n,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Continent != b.Continent {
			return a.Continent < b.Continent
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.City != b.City {
			return a.City < b.City
		}
		return a.ISP < b.ISP
	})
	return c.Store.ReplaceLocationCacheSet(ctx, key, rows)
}

// RollupLatency aggregates the latency summaries of the members inside the window.
func (c *Context) RollupLatency(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) error {
	key.CacheSetID = cs.ID
	return c.Store.ReplaceLatencyCacheSet(ctx, key)
}

// RollupErrors aggregates the error summaries of the members inside the window.
func (c *Context) RollupErrors(ctx context.Context, cs models.CacheSet, key db.CacheSetWindow) error {
	key.CacheSetID = cs.ID
	return c.Store.ReplaceErrorsCacheSet(ctx, key)
}
