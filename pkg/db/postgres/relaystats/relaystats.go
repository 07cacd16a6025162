// Package relaystats reads relay latency and error samples from the relay-session databases.
package relaystats

import (
	"context"
	"fmt"

	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
	"github.com/thunderhead-labs/poktinfo/pkg/keys"
	"go.uber.org/zap"
)

// Source tables. Sessions are keyed by the servicer public key; errors by its address.
const (
	SessionRegionTable = "cherry_picker_session_region"
	RelayErrorsTable   = "relay_errors"
)

// Reader aggregates samples of one relay database.
type Reader struct {
	postgres.Client
}

// Open connects to the database described by file (LatencyCreds or ErrorsCreds).
func Open(ctx context.Context, logger *zap.Logger, dir, env, file string, poolConfig postgres.PoolConfig) (*Reader, error) {
	creds, err := postgres.LoadCredentials(dir, env, file)
	if err != nil {
		return nil, err
	}
	client, err := postgres.New(ctx, logger.With(zap.String("db", creds.Database)), creds, poolConfig)
	if err != nil {
		return nil, err
	}
	return &Reader{Client: client}, nil
}

// Wrap builds a Reader on an existing client.
func Wrap(client postgres.Client) *Reader {
	return &Reader{Client: client}
}

// Latency summarises session latency per servicer, chain and region for sessions with
// r.Start < session_height <= r.End.
func (r *Reader) Latency(ctx context.Context, hr models.HeightRange) ([]models.LatencyCache, error) {
	query := `
		SELECT public_key, chain, region,
		       COALESCE(SUM(total_success), 0)::BIGINT,
		       COALESCE(SUM(total_failure), 0)::BIGINT,
		       COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY median_success_latency), 0)::FLOAT8,
		       COALESCE(SUM(weighted_success_latency * total_success) / NULLIF(SUM(total_success), 0), 0)::FLOAT8
		FROM ` + SessionRegionTable + `
		WHERE session_height > $1 AND session_height <= $2
		GROUP BY public_key, chain, region
		ORDER BY public_key, chain, region
	`
	rows, err := r.Query(ctx, query, hr.Start, hr.End)
	if err != nil {
		return nil, fmt.Errorf("query session latency %s: %w", hr, err)
	}
	defer rows.Close()

	var out []models.LatencyCache
	for rows.Next() {
		var pubKey string
		l := models.LatencyCache{StartHeight: hr.Start, EndHeight: hr.End}
		if err := rows.Scan(&pubKey, &l.Chain, &l.Region, &l.TotalSuccess, &l.TotalFailure,
			&l.MedianSuccessLatency, &l.WeightedSuccessLatency); err != nil {
			return nil, err
		}
		addr, err := keys.AddressFromPublicKey(pubKey)
		if err != nil {
			r.Logger.Warn("Skipping session with bad public key", zap.String("public_key", pubKey), zap.Error(err))
			continue
		}
		l.Address = addr
		out = append(out, l)
	}
	return out, rows.Err()
}

// Errors counts relay errors per servicer, chain and message for r.Start < height <= r.End.
func (r *Reader) Errors(ctx context.Context, hr models.HeightRange) ([]models.ErrorsCache, error) {
	query := `
		SELECT address, chain, msg, COUNT(*)::BIGINT
		FROM ` + RelayErrorsTable + `
		WHERE height > $1 AND height <= $2
		GROUP BY address, chain, msg
		ORDER BY address, chain, msg
	`
	rows, err := r.Query(ctx, query, hr.Start, hr.End)
	if err != nil {
		return nil, fmt.Errorf("query relay errors %s: %w", hr, err)
	}
	defer rows.Close()

	var out []models.ErrorsCache
	for rows.Next() {
		e := models.ErrorsCache{StartHeight: hr.Start, EndHeight: hr.End}
		if err := rows.Scan(&e.Address, &e.Chain, &e.Message, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the connection.
func (r *Reader) Close() error {
	r.Client.Close()
	return nil
}
