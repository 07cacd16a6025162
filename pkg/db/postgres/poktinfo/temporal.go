package poktinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"go.uber.org/zap"
)

// versionKey selects the versions of one natural key in a temporal table.
// Table and column names come from package constants; only values are bound as parameters.
type versionKey struct {
	table   string
	columns []string
	values  []any
}

// assignment is an extra column set when a version is closed.
type assignment struct {
	column string
	value  any
}

// where renders "col1 = $n AND col2 = $n+1 ..." starting at placeholder first.
func (k versionKey) where(first int) string {
	parts := make([]string, len(k.columns))
	for i, c := range k.columns {
		parts[i] = fmt.Sprintf("%s = $%d", c, first+i)
	}
	return strings.Join(parts, " AND ")
}

// closeCurrent closes the open version of k at endHeight using the executor found in ctx.
// A version that started after endHeight is never closed; the call fails instead.
func (db *DB) closeCurrent(ctx context.Context, k versionKey, endHeight uint64, extra ...assignment) (int, error) {
	args := []any{endHeight}
	sets := []string{"end_height = $1"}
	for _, a := range extra {
		args = append(args, a.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.column, len(args)))
	}
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s AND end_height IS NULL RETURNING start_height",
		k.table, strings.Join(sets, ", "), k.where(len(args)+1),
	)
	args = append(args, k.values...)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	closed := 0
	for rows.Next() {
		var start uint64
		if err := rows.Scan(&start); err != nil {
			return closed, err
		}
		if start > endHeight {
			return closed, fmt.Errorf("current version of %v starts at %d, after %d", k.values, start, endHeight)
		}
		closed++
	}
	return closed, rows.Err()
}

// appendVersion closes the current version of k at height and inserts the new one, atomically.
// On failure nothing is written and a *db.StorageWriteError is returned.
func (db *DB) appendVersion(ctx context.Context, k versionKey, height uint64, insertSQL string, insertArgs ...any) error {
	err := db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		closed, err := db.closeCurrent(ctx, k, height)
		if err != nil {
			return fmt.Errorf("close current version: %w", err)
		}
		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		if closed > 0 {
			metrics.Versions.WithLabelValues(k.table, "close").Inc()
		}
		metrics.Versions.WithLabelValues(k.table, "append").Inc()
		return nil
	})
	if err != nil {
		db.Logger.Warn("Append version rolled back",
			zap.String("table", k.table),
			zap.Any("key", k.values),
			zap.Uint64("height", height),
			zap.Error(err))
		return dbpkg.WriteFailed("append_version", k.table, err)
	}
	return nil
}

// closeVersion closes the current version of k. Returns db.ErrNotFound when no version is open.
func (db *DB) closeVersion(ctx context.Context, k versionKey, endHeight uint64, extra ...assignment) error {
	var closed int
	err := db.InTx(ctx, func(ctx context.Context, _ pgx.Tx) error {
		var err error
		closed, err = db.closeCurrent(ctx, k, endHeight, extra...)
		return err
	})
	if err != nil {
		db.Logger.Warn("Close version rolled back",
			zap.String("table", k.table),
			zap.Any("key", k.values),
			zap.Uint64("end_height", endHeight),
			zap.Error(err))
		return dbpkg.WriteFailed("close_version", k.table, err)
	}
	if closed == 0 {
		return fmt.Errorf("close %s %v: %w", k.table, k.values, dbpkg.ErrNotFound)
	}
	metrics.Versions.WithLabelValues(k.table, "close").Inc()
	return nil
}
