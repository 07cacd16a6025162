package poktinfo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
)

func cacheSetNodeKey(cacheSetID int64, address string) versionKey {
	return versionKey{
		table:   models.CacheSetNodeTableName,
		columns: []string{"cache_set_id", "address"},
		values:  []any{cacheSetID, address},
	}
}

const cacheSetColumns = `id, user_id, set_name, is_public, is_internal, is_active`

func scanCacheSet(row interface{ Scan(...any) error }) (*models.CacheSet, error) {
	var cs models.CacheSet
	if err := row.Scan(&cs.ID, &cs.UserID, &cs.Name, &cs.IsPublic, &cs.IsInternal, &cs.IsActive); err != nil {
		return nil, err
	}
	return &cs, nil
}

// CreateCacheSet inserts a cache set and returns it with its id.
func (db *DB) CreateCacheSet(ctx context.Context, cs models.CacheSet) (*models.CacheSet, error) {
	query := `
		INSERT INTO cache_set (user_id, set_name, is_public, is_internal, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := db.QueryRow(ctx, query, cs.UserID, cs.Name, cs.IsPublic, cs.IsInternal, cs.IsActive).Scan(&cs.ID); err != nil {
		return nil, dbpkg.WriteFailed("create", models.CacheSetTableName, err)
	}
	return &cs, nil
}

// CacheSetByName looks a cache set up by owner and name.
func (db *DB) CacheSetByName(ctx context.Context, userID, name string) (*models.CacheSet, error) {
	query := `SELECT ` + cacheSetColumns + ` FROM cache_set WHERE user_id = $1 AND set_name = $2`
	cs, err := scanCacheSet(db.QueryRow(ctx, query, userID, name))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("cache set %s/%s: %w", userID, name, dbpkg.ErrNotFound)
	}
	return cs, err
}

// CacheSetByID looks a cache set up by id.
func (db *DB) CacheSetByID(ctx context.Context, id int64) (*models.CacheSet, error) {
	query := `SELECT ` + cacheSetColumns + ` FROM cache_set WHERE id = $1`
	cs, err := scanCacheSet(db.QueryRow(ctx, query, id))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("cache set %d: %w", id, dbpkg.ErrNotFound)
	}
	return cs, err
}

// ActiveCacheSets lists the cache sets rollups are computed for.
func (db *DB) ActiveCacheSets(ctx context.Context) ([]models.CacheSet, error) {
	rows, err := db.Query(ctx, `SELECT `+cacheSetColumns+` FROM cache_set WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cache sets: %w", err)
	}
	defer rows.Close()

	var out []models.CacheSet
	for rows.Next() {
		cs, err := scanCacheSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cs)
	}
	return out, rows.Err()
}

// RenameCacheSet changes the name of a cache set.
func (db *DB) RenameCacheSet(ctx context.Context, id int64, name string) error {
	n, err := db.ExecAffected(ctx, `UPDATE cache_set SET set_name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return dbpkg.WriteFailed("rename", models.CacheSetTableName, err)
	}
	if n == 0 {
		return fmt.Errorf("cache set %d: %w", id, dbpkg.ErrNotFound)
	}
	return nil
}

// GetCurrentCacheSetNode returns the open membership of address in the cache set.
func (db *DB) GetCurrentCacheSetNode(ctx context.Context, cacheSetID int64, address string) (*models.CacheSetNode, error) {
	query := `
		SELECT cache_set_id, address, start_height, end_height
		FROM cache_set_node
		WHERE cache_set_id = $1 AND address = $2 AND end_height IS NULL
	`
	var n models.CacheSetNode
	err := db.QueryRow(ctx, query, cacheSetID, address).Scan(&n.CacheSetID, &n.Address, &n.StartHeight, &n.EndHeight)
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("cache set %d member %s: %w", cacheSetID, address, dbpkg.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// AddCacheSetNodes opens a membership at height for every address that is not already a member.
func (db *DB) AddCacheSetNodes(ctx context.Context, cacheSetID int64, addresses []string, height uint64) error {
	query := `
		INSERT INTO cache_set_node (cache_set_id, address, start_height, end_height)
		VALUES ($1, $2, $3, NULL)
		ON CONFLICT DO NOTHING
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, addr := range addresses {
			batch.Queue(query, cacheSetID, addr, height)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("add_members", models.CacheSetNodeTableName, err)
}

// RemoveCacheSetNodes closes the membership of every listed address at height.
func (db *DB) RemoveCacheSetNodes(ctx context.Context, cacheSetID int64, addresses []string, height uint64) error {
	err := db.InTx(ctx, func(ctx context.Context, _ pgx.Tx) error {
		for _, addr := range addresses {
			if _, err := db.closeCurrent(ctx, cacheSetNodeKey(cacheSetID, addr), height); err != nil {
				return err
			}
		}
		return nil
	})
	return dbpkg.WriteFailed("remove_members", models.CacheSetNodeTableName, err)
}

// CacheSetAddresses returns the members of a cache set at height.
func (db *DB) CacheSetAddresses(ctx context.Context, cacheSetID int64, height uint64) ([]string, error) {
	query := `
		SELECT address
		FROM cache_set_node
		WHERE cache_set_id = $1
		  AND start_height <= $2
		  AND (end_height IS NULL OR end_height > $2)
		ORDER BY address
	`
	rows, err := db.Query(ctx, query, cacheSetID, height)
	if err != nil {
		return nil, fmt.Errorf("cache set %d members: %w", cacheSetID, err)
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
