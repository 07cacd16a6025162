package poktinfo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// deleteWindow removes the previous rollup of a window from table. table is a package constant.
func deleteWindow(ctx context.Context, tx pgx.Tx, table string, key dbpkg.CacheSetWindow) error {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE cache_set_id = $1 AND start_height = $2 AND end_height = $3 AND interval_label = $4`,
		table,
	)
	_, err := tx.Exec(ctx, query, key.CacheSetID, key.Range.Start, key.Range.End, key.Interval)
	return err
}

// ReplaceRewardsCacheSet stores the per-chain rewards rollup of a window.
func (db *DB) ReplaceRewardsCacheSet(ctx context.Context, key dbpkg.CacheSetWindow, rows []models.RewardsCacheSet) error {
	insert := `
		INSERT INTO rewards_cache_set (cache_set_id, start_height, end_height, interval_label, chain, rewards, relays, per_15k)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteWindow(ctx, tx, models.RewardsCacheSetTableName, key); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(insert, key.CacheSetID, key.Range.Start, key.Range.End, key.Interval,
				r.Chain, r.Rewards, r.Relays, r.Per15k)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("replace", models.RewardsCacheSetTableName, err)
}

// ReplaceNodeCountCacheSet stores the per-chain node counts of a window.
func (db *DB) ReplaceNodeCountCacheSet(ctx context.Context, key dbpkg.CacheSetWindow, rows []models.NodeCountCacheSet) error {
	insert := `
		INSERT INTO node_count_cache_set (cache_set_id, start_height, end_height, interval_label, chain, count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteWindow(ctx, tx, models.NodeCountCacheSetTableName, key); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(insert, key.CacheSetID, key.Range.Start, key.Range.End, key.Interval, r.Chain, r.Count)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("replace", models.NodeCountCacheSetTableName, err)
}

// ReplaceLocationCacheSet stores the member counts per location bucket of a window.
func (db *DB) ReplaceLocationCacheSet(ctx context.Context, key dbpkg.CacheSetWindow, rows []models.LocationCacheSet) error {
	insert := `
		INSERT INTO location_cache_set (cache_set_id, start_height, end_height, interval_label, continent, country, city, isp, count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteWindow(ctx, tx, models.LocationCacheSetTableName, key); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(insert, key.CacheSetID, key.Range.Start, key.Range.End, key.Interval,
				r.Continent, r.Country, r.City, r.ISP, r.Count)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("replace", models.LocationCacheSetTableName, err)
}

// ReplaceLatencyCacheSet aggregates latency_cache over the members of the cache set at the window start.
func (db *DB) ReplaceLatencyCacheSet(ctx context.Context, key dbpkg.CacheSetWindow) error {
	insert := `
		INSERT INTO latency_cache_set (cache_set_id, start_height, end_height, interval_label, chain, region,
			total_success, total_failure, weighted_success_latency)
		SELECT $1::BIGINT, $2::BIGINT, $3::BIGINT, $4::TEXT, lc.chain, lc.region,
		       SUM(lc.total_success)::BIGINT,
		       SUM(lc.total_failure)::BIGINT,
		       COALESCE(SUM(lc.weighted_success_latency * lc.total_success) / NULLIF(SUM(lc.total_success), 0), 0)
		FROM latency_cache lc
		JOIN cache_set_node csn
		  ON csn.address = lc.address
		 AND csn.cache_set_id = $1::BIGINT
		 AND csn.start_height <= $2::BIGINT
		 AND (csn.end_height IS NULL OR csn.end_height > $2::BIGINT)
		WHERE lc.start_height >= $2::BIGINT AND lc.end_height <= $3::BIGINT
		GROUP BY lc.chain, lc.region
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteWindow(ctx, tx, models.LatencyCacheSetTableName, key); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insert, key.CacheSetID, key.Range.Start, key.Range.End, key.Interval)
		return err
	})
	return dbpkg.WriteFailed("replace", models.LatencyCacheSetTableName, err)
}

// ReplaceErrorsCacheSet aggregates errors_cache over the members of the cache set at the window start.
func (db *DB) ReplaceErrorsCacheSet(ctx context.Context, key dbpkg.CacheSetWindow) error {
	insert := `
		INSERT INTO errors_cache_set (cache_set_id, start_height, end_height, interval_label, chain, msg, count)
		SELECT $1::BIGINT, $2::BIGINT, $3::BIGINT, $4::TEXT, ec.chain, ec.msg, SUM(ec.count)::BIGINT
		FROM errors_cache ec
		JOIN cache_set_node csn
		  ON csn.address = ec.address
		 AND csn.cache_set_id = $1::BIGINT
		 AND csn.start_height <= $2::BIGINT
		 AND (csn.end_height IS NULL OR csn.end_height > $2::BIGINT)
		WHERE ec.start_height >= $2::BIGINT AND ec.end_height <= $3::BIGINT
		GROUP BY ec.chain, ec.msg
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteWindow(ctx, tx, models.ErrorsCacheSetTableName, key); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insert, key.CacheSetID, key.Range.Start, key.Range.End, key.Interval)
		return err
	})
	return dbpkg.WriteFailed("replace", models.ErrorsCacheSetTableName, err)
}
