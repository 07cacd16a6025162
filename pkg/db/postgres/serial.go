package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// serialConn lets goroutines take turns on a single connection. A call holds the
// connection until it returns; an open result set until it is exhausted or closed; a row
// until it is scanned; a batch until it is closed; a transaction until commit or rollback.
type serialConn struct {
	turn chan struct{}
	conn Conn
}

// Serialize wraps a connection that does not support concurrent use (*pgx.Conn) so it can
// be shared by worker pools. Waiting for a turn honours the caller's context.
func Serialize(conn Conn) Conn {
	return &serialConn{turn: make(chan struct{}, 1), conn: conn}
}

func (s *serialConn) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-s.turn }) }, nil
}

func (s *serialConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer release()
	return s.conn.Exec(ctx, sql, args...)
}

func (s *serialConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		if rows != nil {
			rows.Close()
		}
		release()
		return nil, err
	}
	return &serialRows{Rows: rows, release: release}, nil
}

func (s *serialConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	release, err := s.acquire(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return &serialRow{row: s.conn.QueryRow(ctx, sql, args...), release: release}
}

func (s *serialConn) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	release, err := s.acquire(ctx)
	if err != nil {
		return errBatch{err: err}
	}
	return &serialBatch{BatchResults: s.conn.SendBatch(ctx, b), release: release}
}

func (s *serialConn) Begin(ctx context.Context) (pgx.Tx, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		release()
		return nil, err
	}
	return &serialTx{Tx: tx, release: release}, nil
}

func (s *serialConn) Ping(ctx context.Context) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.conn.Ping(ctx)
}

type serialRows struct {
	pgx.Rows
	release func()
}

func (r *serialRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.release()
	return false
}

func (r *serialRows) Close() {
	r.Rows.Close()
	r.release()
}

type serialRow struct {
	row     pgx.Row
	release func()
}

func (r *serialRow) Scan(dest ...any) error {
	defer r.release()
	return r.row.Scan(dest...)
}

type serialBatch struct {
	pgx.BatchResults
	release func()
}

func (b *serialBatch) Close() error {
	defer b.release()
	return b.BatchResults.Close()
}

type serialTx struct {
	pgx.Tx
	release func()
}

func (t *serialTx) Commit(ctx context.Context) error {
	defer t.release()
	return t.Tx.Commit(ctx)
}

func (t *serialTx) Rollback(ctx context.Context) error {
	defer t.release()
	return t.Tx.Rollback(ctx)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type errBatch struct{ err error }

func (b errBatch) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, b.err }
func (b errBatch) Query() (pgx.Rows, error)         { return nil, b.err }
func (b errBatch) QueryRow() pgx.Row                { return errRow{err: b.err} }
func (b errBatch) Close() error                     { return b.err }
