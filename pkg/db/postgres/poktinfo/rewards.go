package poktinfo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// InsertRewards appends reward rows. Rewards are immutable: a tx hash already stored is skipped.
func (db *DB) InsertRewards(ctx context.Context, rewards []models.RewardInfo) error {
	if len(rewards) == 0 {
		return nil
	}
	query := `
		INSERT INTO rewards_info (tx_hash, height, address, rewards, chain, relays, token_multiplier, percentage, stake_weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash) DO NOTHING
	`
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rewards {
			batch.Queue(query, r.TxHash, r.Height, r.Address, r.Rewards, r.Chain, r.Relays,
				r.TokenMultiplier, r.Percentage, r.StakeWeight)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return dbpkg.WriteFailed("insert", models.RewardsInfoTableName, err)
}

// RewardsInfo lists the rewards of addresses in (from, to].
func (db *DB) RewardsInfo(ctx context.Context, addresses []string, from, to uint64) ([]models.RewardInfo, error) {
	query := `
		SELECT tx_hash, height, address, rewards, chain, relays, token_multiplier, percentage, stake_weight
		FROM rewards_info
		WHERE height > $1 AND height <= $2 AND address = ANY($3)
		ORDER BY height, tx_hash
	`
	rows, err := db.Query(ctx, query, from, to, addresses)
	if err != nil {
		return nil, fmt.Errorf("rewards info: %w", err)
	}
	defer rows.Close()

	var out []models.RewardInfo
	for rows.Next() {
		var r models.RewardInfo
		if err := rows.Scan(&r.TxHash, &r.Height, &r.Address, &r.Rewards, &r.Chain, &r.Relays,
			&r.TokenMultiplier, &r.Percentage, &r.StakeWeight); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RewardsTotal sums the rewards of addresses in (from, to], optionally for a single chain.
func (db *DB) RewardsTotal(ctx context.Context, addresses []string, from, to uint64, chain string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(rewards), 0)
		FROM rewards_info
		WHERE height > $1 AND height <= $2 AND address = ANY($3)
		  AND ($4::text = '' OR chain = $4::text)
	`
	var total float64
	if err := db.QueryRow(ctx, query, from, to, addresses, chain).Scan(&total); err != nil {
		return 0, fmt.Errorf("rewards total: %w", err)
	}
	return total, nil
}

// RewardsTotalPer15k normalises rewards to a single 15k-stake node: each reward is divided by its
// stake weight and scaled by 1/weightMultiplier.
func (db *DB) RewardsTotalPer15k(ctx context.Context, addresses []string, from, to uint64, chain string, weightMultiplier float64) (float64, error) {
	if weightMultiplier == 0 {
		return 0, fmt.Errorf("rewards per 15k: zero stake weight multiplier")
	}
	query := `
		SELECT COALESCE(SUM(rewards / NULLIF(stake_weight, 0)), 0)
		FROM rewards_info
		WHERE height > $1 AND height <= $2 AND address = ANY($3)
		  AND ($4::text = '' OR chain = $4::text)
	`
	var total float64
	if err := db.QueryRow(ctx, query, from, to, addresses, chain).Scan(&total); err != nil {
		return 0, fmt.Errorf("rewards per 15k: %w", err)
	}
	return total * (1 / weightMultiplier), nil
}

// RelaysTotal sums the relays of addresses in (from, to], optionally for a single chain.
func (db *DB) RelaysTotal(ctx context.Context, addresses []string, from, to uint64, chain string) (uint64, error) {
	query := `
		SELECT COALESCE(SUM(relays), 0)::BIGINT
		FROM rewards_info
		WHERE height > $1 AND height <= $2 AND address = ANY($3)
		  AND ($4::text = '' OR chain = $4::text)
	`
	var total uint64
	if err := db.QueryRow(ctx, query, from, to, addresses, chain).Scan(&total); err != nil {
		return 0, fmt.Errorf("relays total: %w", err)
	}
	return total, nil
}

// RewardsByChain groups rewards and relays of addresses in (from, to] by chain.
func (db *DB) RewardsByChain(ctx context.Context, addresses []string, from, to uint64, weightMultiplier float64) ([]models.RewardsCacheSet, error) {
	query := `
		SELECT chain,
		       COALESCE(SUM(rewards), 0),
		       COALESCE(SUM(relays), 0)::BIGINT,
		       COALESCE(SUM(rewards / NULLIF(stake_weight, 0)), 0)
		FROM rewards_info
		WHERE height > $1 AND height <= $2 AND address = ANY($3)
		GROUP BY chain
		ORDER BY chain
	`
	rows, err := db.Query(ctx, query, from, to, addresses)
	if err != nil {
		return nil, fmt.Errorf("rewards by chain: %w", err)
	}
	defer rows.Close()

	var out []models.RewardsCacheSet
	for rows.Next() {
		var r models.RewardsCacheSet
		var base float64
		if err := rows.Scan(&r.Chain, &r.Rewards, &r.Relays, &base); err != nil {
			return nil, err
		}
		if weightMultiplier != 0 {
			r.Per15k = base / weightMultiplier
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NodeCount counts the versions of addresses staked across the whole of [from, to],
// optionally serving chain.
func (db *DB) NodeCount(ctx context.Context, addresses []string, from, to uint64, chain string) (uint64, error) {
	query := `
		SELECT COUNT(DISTINCT address)
		FROM nodes_info
		WHERE start_height <= $1
		  AND (end_height IS NULL OR end_height >= $2)
		  AND address = ANY($3)
		  AND ($4::text = '' OR $4::text = ANY(chains))
	`
	var n uint64
	if err := db.QueryRow(ctx, query, from, to, addresses, chain).Scan(&n); err != nil {
		return 0, fmt.Errorf("node count: %w", err)
	}
	return n, nil
}

// NodeCountByChain counts, per chain, the addresses staked across the whole of [from, to].
func (db *DB) NodeCountByChain(ctx context.Context, addresses []string, from, to uint64) (map[string]uint64, error) {
	query := `
		SELECT chain, COUNT(DISTINCT address)
		FROM nodes_info, UNNEST(chains) AS chain
		WHERE start_height <= $1
		  AND (end_height IS NULL OR end_height >= $2)
		  AND address = ANY($3)
		GROUP BY chain
	`
	rows, err := db.Query(ctx, query, from, to, addresses)
	if err != nil {
		return nil, fmt.Errorf("node count by chain: %w", err)
	}
	defer rows.Close()

	out := map[string]uint64{}
	for rows.Next() {
		var chain string
		var n uint64
		if err := rows.Scan(&chain, &n); err != nil {
			return nil, err
		}
		out[chain] = n
	}
	return out, rows.Err()
}
