package poktinfo

import (
	"context"
	"time"

	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// UpsertEndpoint inserts or updates the validation result of an endpoint
func (db *DB) UpsertEndpoint(ctx context.Context, ep *models.RPCEndpoint) error {
	query := `
		INSERT INTO rpc_endpoints (endpoint, status, height, latency_ms, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE SET
			status = EXCLUDED.status,
			height = EXCLUDED.height,
			latency_ms = EXCLUDED.latency_ms,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	if ep.UpdatedAt.IsZero() {
		ep.UpdatedAt = time.Now()
	}

	err := db.Exec(ctx, query, ep.Endpoint, ep.Status, ep.Height, ep.LatencyMs, ep.Error, ep.UpdatedAt)
	return dbpkg.WriteFailed("upsert", models.RPCEndpointsTableName, err)
}

// ListEndpoints returns every known endpoint, best first
func (db *DB) ListEndpoints(ctx context.Context) ([]models.RPCEndpoint, error) {
	query := `
		SELECT endpoint, status, height, latency_ms, error, updated_at
		FROM rpc_endpoints
		ORDER BY height DESC, latency_ms ASC
	`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.RPCEndpoint
	for rows.Next() {
		var ep models.RPCEndpoint
		if err := rows.Scan(&ep.Endpoint, &ep.Status, &ep.Height, &ep.LatencyMs, &ep.Error, &ep.UpdatedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, rows.Err()
}
