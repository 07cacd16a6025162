package poktinfo

import (
	"context"
	"fmt"

	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// IsHeightRecorded reports whether service completed height successfully.
func (db *DB) IsHeightRecorded(ctx context.Context, service string, height uint64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM services_state
			WHERE service = $1 AND height = $2 AND status = $3
		)
	`
	var ok bool
	if err := db.QueryRow(ctx, query, service, height, models.StatusSuccess).Scan(&ok); err != nil {
		return false, fmt.Errorf("is height recorded %s/%d: %w", service, height, err)
	}
	return ok, nil
}

// IsRangeRecorded reports whether service completed the range successfully.
func (db *DB) IsRangeRecorded(ctx context.Context, service string, r models.HeightRange) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM services_state_range
			WHERE service = $1 AND start_height = $2 AND end_height = $3 AND status = $4
		)
	`
	var ok bool
	if err := db.QueryRow(ctx, query, service, r.Start, r.End, models.StatusSuccess).Scan(&ok); err != nil {
		return false, fmt.Errorf("is range recorded %s%s: %w", service, r, err)
	}
	return ok, nil
}

// IsCacheSetRangeRecorded reports whether the rollup of a cache set completed successfully.
func (db *DB) IsCacheSetRangeRecorded(ctx context.Context, cacheSetID int64, service string, r models.HeightRange, interval string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM cache_set_state_range_entry
			WHERE cache_set_id = $1 AND service = $2 AND start_height = $3 AND end_height = $4
			  AND interval_label = $5 AND status = $6
		)
	`
	var ok bool
	err := db.QueryRow(ctx, query, cacheSetID, service, r.Start, r.End, interval, models.StatusSuccess).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("is cache set range recorded %d/%s%s: %w", cacheSetID, service, r, err)
	}
	return ok, nil
}

// RecordHeight upserts the result of a height unit. A success is never overwritten.
func (db *DB) RecordHeight(ctx context.Context, service string, height uint64, status models.Status) error {
	query := `
		INSERT INTO services_state (service, height, status, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (service, height) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE services_state.status <> 'success'
	`
	return dbpkg.WriteFailed("record", models.ServicesStateTableName, db.Exec(ctx, query, service, height, status))
}

// RecordRange upserts the result of a range unit. A success is never overwritten.
func (db *DB) RecordRange(ctx context.Context, service string, r models.HeightRange, status models.Status) error {
	query := `
		INSERT INTO services_state_range (service, start_height, end_height, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (service, start_height, end_height) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE services_state_range.status <> 'success'
	`
	return dbpkg.WriteFailed("record", models.ServicesStateRangeTableName, db.Exec(ctx, query, service, r.Start, r.End, status))
}

// RecordCacheSetRange upserts the result of a cache-set rollup. A success is never overwritten.
func (db *DB) RecordCacheSetRange(ctx context.Context, cacheSetID int64, service string, r models.HeightRange, interval string, status models.Status) error {
	query := `
		INSERT INTO cache_set_state_range_entry (cache_set_id, service, start_height, end_height, interval_label, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (cache_set_id, service, start_height, end_height, interval_label) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE cache_set_state_range_entry.status <> 'success'
	`
	err := db.Exec(ctx, query, cacheSetID, service, r.Start, r.End, interval, status)
	return dbpkg.WriteFailed("record", models.CacheSetStateRangeTableName, err)
}

// FailedHeights lists the heights of service whose last result is fail.
func (db *DB) FailedHeights(ctx context.Context, service string) ([]uint64, error) {
	query := `SELECT height FROM services_state WHERE service = $1 AND status = $2 ORDER BY height`
	rows, err := db.Query(ctx, query, service, models.StatusFail)
	if err != nil {
		return nil, fmt.Errorf("failed heights %s: %w", service, err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// FailedRanges lists the ranges of service whose last result is fail.
func (db *DB) FailedRanges(ctx context.Context, service string) ([]models.HeightRange, error) {
	query := `
		SELECT start_height, end_height FROM services_state_range
		WHERE service = $1 AND status = $2
		ORDER BY start_height, end_height
	`
	rows, err := db.Query(ctx, query, service, models.StatusFail)
	if err != nil {
		return nil, fmt.Errorf("failed ranges %s: %w", service, err)
	}
	defer rows.Close()

	var out []models.HeightRange
	for rows.Next() {
		var r models.HeightRange
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailedCacheSetRanges lists the failed rollups of service across cache sets.
func (db *DB) FailedCacheSetRanges(ctx context.Context, service string) ([]models.CacheSetStateRange, error) {
	query := `
		SELECT cache_set_id, service, start_height, end_height, interval_label, status, updated_at
		FROM cache_set_state_range_entry
		WHERE service = $1 AND status = $2
		ORDER BY cache_set_id, start_height
	`
	rows, err := db.Query(ctx, query, service, models.StatusFail)
	if err != nil {
		return nil, fmt.Errorf("failed cache set ranges %s: %w", service, err)
	}
	defer rows.Close()

	var out []models.CacheSetStateRange
	for rows.Next() {
		var e models.CacheSetStateRange
		if err := rows.Scan(&e.CacheSetID, &e.Service, &e.Range.Start, &e.Range.End, &e.Interval, &e.Status, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastRecordedHeight returns the highest successful height of service, 0 when none.
func (db *DB) LastRecordedHeight(ctx context.Context, service string) (uint64, error) {
	query := `SELECT COALESCE(MAX(height), 0) FROM services_state WHERE service = $1 AND status = $2`
	var h uint64
	if err := db.QueryRow(ctx, query, service, models.StatusSuccess).Scan(&h); err != nil {
		return 0, fmt.Errorf("last recorded height %s: %w", service, err)
	}
	return h, nil
}
