package activity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/geo"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

// SplitDomain splits the host of a service URL into its registrable domain and the
// subdomain in front of it: https://a.b.example.co.uk:443 → ("example.co.uk", "a.b").
// IP hosts have no domain.
func SplitDomain(serviceURL string) (domain, subdomain string) {
	host, err := geo.Host(serviceURL)
	if err != nil {
		return "", ""
	}
	host = strings.ToLower(host)
	if net.ParseIP(host) != nil {
		return "", ""
	}
	domain, err = publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", ""
	}
	return domain, strings.TrimSuffix(strings.TrimSuffix(host, domain), ".")
}

// SnapshotNodes reconciles nodes_info with the staked nodes at height: unseen nodes get a
// first version, nodes whose url or chains changed get a new version, and open versions of
// nodes no longer staked are closed with is_staked=false.
func (c *Context) SnapshotNodes(ctx context.Context, height uint64) error {
	nodes, err := c.RPC.Nodes(ctx, height)
	if err != nil {
		return fmt.Errorf("nodes at %d: %w", height, err)
	}

	seen := make(map[string]struct{}, len(nodes))
	var appended, unchanged int
	var errs []error
	for i := range nodes {
		n := &nodes[i]
		if n.Address == "" {
			continue
		}
		seen[n.Address] = struct{}{}

		changed, err := c.nodeChanged(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.Address, err))
			continue
		}
		if !changed {
			unchanged++
			continue
		}

		domain, subdomain := SplitDomain(n.ServiceURL)
		version := &models.NodeInfo{
			Address:   n.Address,
			URL:       n.ServiceURL,
			Domain:    domain,
			Subdomain: subdomain,
			Chains:    n.Chains,
			Height:    height,
			IsStaked:  true,
		}
		if err := c.Store.AppendNodeVersion(ctx, version, height); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.Address, err))
			continue
		}
		appended++
	}

	open, err := c.Store.ActiveNodes(ctx, "")
	if err != nil {
		errs = append(errs, fmt.Errorf("active nodes: %w", err))
		return errors.Join(errs...)
	}
	var closed int
	for _, n := range open {
		if _, ok := seen[n.Address]; ok {
			continue
		}
		if n.StartHeight > height {
			continue
		}
		if err := c.Store.CloseNode(ctx, n.Address, height, false); err != nil && !errors.Is(err, db.ErrNotFound) {
			errs = append(errs, fmt.Errorf("close node %s: %w", n.Address, err))
			continue
		}
		closed++
	}

	c.Logger.Info("Nodes snapshot",
		zap.Uint64("height", height),
		zap.Int("nodes", len(nodes)),
		zap.Int("appended", appended),
		zap.Int("unchanged", unchanged),
		zap.Int("closed", closed),
		zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

// nodeChanged reports whether n needs a new version: it has no open version yet, or its
// url or chains differ from the open one.
func (c *Context) nodeChanged(ctx context.Context, n *rpc.Node) (bool, error) {
	if _, err := c.Store.GetCurrentNode(ctx, n.Address); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	urlChanged, err := c.Store.HasURLChanged(ctx, n.Address, n.ServiceURL)
	if err != nil {
		return false, err
	}
	if urlChanged {
		return true, nil
	}
	return c.Store.HasChainsChanged(ctx, n.Address, n.Chains)
}
