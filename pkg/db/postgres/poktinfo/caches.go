package poktinfo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// ReplaceLatencyCache swaps the latency summary of a range in one transaction.
func (db *DB) ReplaceLatencyCache(ctx context.Context, r models.HeightRange, rows []models.LatencyCache) error {
	insert := `
		INSERT INTO latency_cache (start_height, end_height, address, chain, region, total_success, total_failure,
			median_success_latency, weighted_success_latency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM latency_cache WHERE start_height = $1 AND end_height = $2`, r.Start, r.End); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, l := range rows {
			batch.Queue(insert, r.Start, r.End, l.Address, l.Chain, l.Region, l.TotalSuccess, l.TotalFailure,
				l.MedianSuccessLatency, l.WeightedSuccessLatency)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("replace", models.LatencyCacheTableName, err)
}

// ReplaceErrorsCache swaps the error summary of a range in one transaction.
func (db *DB) ReplaceErrorsCache(ctx context.Context, r models.HeightRange, rows []models.ErrorsCache) error {
	insert := `
		INSERT INTO errors_cache (start_height, end_height, address, chain, msg, count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM errors_cache WHERE start_height = $1 AND end_height = $2`, r.Start, r.End); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, e := range rows {
			batch.Queue(insert, r.Start, r.End, e.Address, e.Chain, e.Message, e.Count)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("replace", models.ErrorsCacheTableName, err)
}

// LatencyCache returns the latency summaries of addresses for ranges inside [from, to].
func (db *DB) LatencyCache(ctx context.Context, addresses []string, from, to uint64) ([]models.LatencyCache, error) {
	query := `
		SELECT start_height, end_height, address, chain, region, total_success, total_failure,
		       median_success_latency, weighted_success_latency
		FROM latency_cache
		WHERE start_height >= $1 AND end_height <= $2 AND address = ANY($3)
		ORDER BY start_height, address, chain, region
	`
	rows, err := db.Query(ctx, query, from, to, addresses)
	if err != nil {
		return nil, fmt.Errorf("latency cache: %w", err)
	}
	defer rows.Close()

	var out []models.LatencyCache
	for rows.Next() {
		var l models.LatencyCache
		if err := rows.Scan(&l.StartHeight, &l.EndHeight, &l.Address, &l.Chain, &l.Region, &l.TotalSuccess,
			&l.TotalFailure, &l.MedianSuccessLatency, &l.WeightedSuccessLatency); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ErrorsSummary returns error counts of addresses inside [from, to] grouped by chain and message.
func (db *DB) ErrorsSummary(ctx context.Context, addresses []string, from, to uint64) (map[string]map[string]uint64, error) {
	query := `
		SELECT chain, msg, SUM(count)::BIGINT
		FROM errors_cache
		WHERE start_height >= $1 AND end_height <= $2 AND address = ANY($3)
		GROUP BY chain, msg
	`
	rows, err := db.Query(ctx, query, from, to, addresses)
	if err != nil {
		return nil, fmt.Errorf("errors summary: %w", err)
	}
	defer rows.Close()

	out := map[string]map[string]uint64{}
	for rows.Next() {
		var chain, msg string
		var n uint64
		if err := rows.Scan(&chain, &msg, &n); err != nil {
			return nil, err
		}
		if out[chain] == nil {
			out[chain] = map[string]uint64{}
		}
		out[chain][msg] = n
	}
	return out, rows.Err()
}
