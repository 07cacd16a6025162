package poktinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

const nodeColumns = `id, address, url, domain, subdomain, chains, height, start_height, end_height, is_staked, date_created`

func nodeKey(address string) versionKey {
	return versionKey{table: models.NodesInfoTableName, columns: []string{"address"}, values: []any{address}}
}

func scanNode(row interface{ Scan(...any) error }) (*models.NodeInfo, error) {
	var n models.NodeInfo
	err := row.Scan(&n.ID, &n.Address, &n.URL, &n.Domain, &n.Subdomain, &n.Chains,
		&n.Height, &n.StartHeight, &n.EndHeight, &n.IsStaked, &n.DateCreated)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetCurrentNode returns the open version for address or db.ErrNotFound.
func (db *DB) GetCurrentNode(ctx context.Context, address string) (*models.NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes_info WHERE address = $1 AND end_height IS NULL`
	n, err := scanNode(db.QueryRow(ctx, query, address))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("node %s: %w", address, dbpkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get current node %s: %w", address, err)
	}
	return n, nil
}

// NodeAt returns the version of address valid at height.
func (db *DB) NodeAt(ctx context.Context, address string, height uint64) (*models.NodeInfo, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes_info
		WHERE address = $1
		  AND start_height <= $2
		  AND (end_height IS NULL OR end_height > $2)
		ORDER BY start_height DESC
		LIMIT 1
	`
	n, err := scanNode(db.QueryRow(ctx, query, address, height))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("node %s at %d: %w", address, height, dbpkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s at %d: %w", address, height, err)
	}
	return n, nil
}

// NodeHistory returns every version of address ordered by start height.
func (db *DB) NodeHistory(ctx context.Context, address string) ([]models.NodeInfo, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes_info WHERE address = $1 ORDER BY start_height, id`
	return db.queryNodes(ctx, query, address)
}

// HasURLChanged compares url with the current version. A missing current version is not a change.
func (db *DB) HasURLChanged(ctx context.Context, address, url string) (bool, error) {
	current, err := db.currentNodeOrNil(ctx, address)
	if err != nil || current == nil {
		return false, err
	}
	return current.URL != url, nil
}

// HasChainsChanged compares chains with the current version as sets.
// A missing current version is not a change.
func (db *DB) HasChainsChanged(ctx context.Context, address string, chains []string) (bool, error) {
	current, err := db.currentNodeOrNil(ctx, address)
	if err != nil || current == nil {
		return false, err
	}
	return !utils.SameSet(current.Chains, chains), nil
}

func (db *DB) currentNodeOrNil(ctx context.Context, address string) (*models.NodeInfo, error) {
	n, err := db.GetCurrentNode(ctx, address)
	if errors.Is(err, dbpkg.ErrNotFound) {
		return nil, nil
	}
	return n, err
}

// AppendNodeVersion closes the current version of node.Address at height and opens node as the new one.
func (db *DB) AppendNodeVersion(ctx context.Context, node *models.NodeInfo, height uint64) error {
	chains := node.Chains
	if chains == nil {
		chains = []string{}
	}
	query := `
		INSERT INTO nodes_info (address, url, domain, subdomain, chains, height, start_height, end_height, is_staked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)
	`
	return db.appendVersion(ctx, nodeKey(node.Address), height, query,
		node.Address, node.URL, node.Domain, node.Subdomain, chains, node.Height, height, node.IsStaked)
}

// CloseNode ends the current version of address at endHeight and records its staking state.
func (db *DB) CloseNode(ctx context.Context, address string, endHeight uint64, isStaked bool) error {
	return db.closeVersion(ctx, nodeKey(address), endHeight, assignment{column: "is_staked", value: isStaked})
}

// ActiveNodes returns the open, staked versions whose address starts with prefix (all when empty).
func (db *DB) ActiveNodes(ctx context.Context, prefix string) ([]models.NodeInfo, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes_info
		WHERE end_height IS NULL
		  AND is_staked
		  AND ($1::text = '' OR address LIKE $1::text || '%')
		ORDER BY address
	`
	return db.queryNodes(ctx, query, prefix)
}

// AddressesByDomain returns the addresses whose version valid at height is served from domain.
func (db *DB) AddressesByDomain(ctx context.Context, domain string, height uint64) ([]string, error) {
	query := `
		SELECT address
		FROM nodes_info
		WHERE domain = $1
		  AND start_height <= $2
		  AND (end_height IS NULL OR end_height > $2)
		ORDER BY address
	`
	rows, err := db.Query(ctx, query, normalizeDomain(domain), height)
	if err != nil {
		return nil, fmt.Errorf("addresses by domain %s: %w", domain, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// normalizeDomain maps the display label of nodes without a provider domain back to the stored value.
func normalizeDomain(domain string) string {
	if strings.EqualFold(domain, "pokt network") {
		return ""
	}
	return domain
}

func (db *DB) queryNodes(ctx context.Context, query string, args ...any) ([]models.NodeInfo, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var out []models.NodeInfo
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
