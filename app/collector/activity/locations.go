package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/geo"
)

// ErrNoLocator is returned by location services when no geolocation provider is configured.
var ErrNoLocator = errors.New("no geolocation provider configured")

// SnapshotLocations geolocates the host of every open node version and appends a location
// version when none exists yet or when city, ip or isp changed. Locations of nodes that are
// no longer open are closed. A failed lookup skips that node; storage errors fail the unit.
func (c *Context) SnapshotLocations(ctx context.Context, height uint64) error {
	if c.Locator == nil {
		return ErrNoLocator
	}
	nodes, err := c.Store.ActiveNodes(ctx, "")
	if err != nil {
		return fmt.Errorf("active nodes: %w", err)
	}

	// one lookup per host
	hosts := map[string][]models.NodeInfo{}
	for _, n := range nodes {
		host, err := geo.Host(n.URL)
		if err != nil {
			c.Logger.Debug("Node without a usable host", zap.String("address", n.Address), zap.Error(err))
			continue
		}
		hosts[host] = append(hosts[host], n)
	}

	var (
		mu       sync.Mutex
		errs     []error
		appended int
		lookups  int
		failed   int
	)
	group := c.geoWorkers().NewGroupContext(ctx)
	groupCtx := group.Context()
	for host, members := range hosts {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			loc, err := c.Locator.Locate(groupCtx, host)
			mu.Lock()
			lookups++
			if err != nil {
				failed++
			}
			mu.Unlock()
			if err != nil {
				c.Logger.Debug("Lookup failed", zap.String("host", host), zap.Error(err))
				return
			}
			for _, n := range members {
				ok, err := c.applyLocation(groupCtx, n.Address, loc, height)
				mu.Lock()
				if err != nil {
					errs = append(errs, fmt.Errorf("location %s: %w", n.Address, err))
				} else if ok {
					appended++
				}
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	closed, err := c.closeStaleLocations(ctx, nodes, height)
	if err != nil {
		errs = append(errs, err)
	}

	c.Logger.Info("Locations snapshot",
		zap.Uint64("height", height),
		zap.Int("hosts", lookups),
		zap.Int("failed_lookups", failed),
		zap.Int("appended", appended),
		zap.Int("closed", closed),
		zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

func (c *Context) applyLocation(ctx context.Context, address string, loc *geo.Location, height uint64) (bool, error) {
	_, err := c.Store.GetCurrentLocation(ctx, address, c.RanFrom)
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		return false, err
	default:
		changed, err := c.Store.HasLocationChanged(ctx, address, c.RanFrom, loc.City, loc.IP, loc.ISP)
		if err != nil || !changed {
			return false, err
		}
	}

	err = c.Store.AppendLocationVersion(ctx, &models.LocationInfo{
		Address:   address,
		IP:        loc.IP,
		Height:    height,
		City:      loc.City,
		Continent: loc.Continent,
		Country:   loc.Country,
		Region:    loc.Region,
		Lat:       loc.Lat,
		Lon:       loc.Lon,
		ISP:       loc.ISP,
		Org:       loc.Org,
		AS:        loc.AS,
		RanFrom:   c.RanFrom,
	}, height)
	return err == nil, err
}

func (c *Context) closeStaleLocations(ctx context.Context, nodes []models.NodeInfo, height uint64) (int, error) {
	active := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		active[n.Address] = struct{}{}
	}
	open, err := c.Store.OpenLocations(ctx, "", c.RanFrom)
	if err != nil {
		return 0, fmt.Errorf("open locations: %w", err)
	}
	var closed int
	var errs []error
	for _, l := range open {
		if _, ok := active[l.Address]; ok || l.StartHeight > height {
			continue
		}
		if err := c.Store.CloseLocation(ctx, l.Address, c.RanFrom, height); err != nil && !errors.Is(err, db.ErrNotFound) {
			errs = append(errs, fmt.Errorf("close location %s: %w", l.Address, err))
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}
