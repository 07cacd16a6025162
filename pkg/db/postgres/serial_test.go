package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errConnBusy = errors.New("conn busy")

// singleConn behaves like a *pgx.Conn: one statement, result set or transaction at a
// time, "conn busy" for anyone else.
type singleConn struct {
	mu       sync.Mutex
	busy     bool
	rejected int
	entered  int
	hold     time.Duration
}

func (c *singleConn) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		c.rejected++
		return errConnBusy
	}
	c.busy = true
	c.entered++
	return nil
}

func (c *singleConn) leave() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func (c *singleConn) work() {
	if c.hold > 0 {
		time.Sleep(c.hold)
	}
}

func (c *singleConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	if err := c.enter(); err != nil {
		return pgconn.CommandTag{}, err
	}
	defer c.leave()
	c.work()
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (c *singleConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	return &singleRows{conn: c, left: 3}, nil
}

func (c *singleConn) QueryRow(context.Context, string, ...any) pgx.Row {
	if err := c.enter(); err != nil {
		return errRow{err: err}
	}
	return &singleRow{conn: c}
}

func (c *singleConn) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	if err := c.enter(); err != nil {
		return errBatch{err: err}
	}
	return &singleBatch{conn: c}
}

func (c *singleConn) Begin(context.Context) (pgx.Tx, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	return &singleTx{conn: c}, nil
}

func (c *singleConn) Ping(context.Context) error {
	if err := c.enter(); err != nil {
		return err
	}
	c.leave()
	return nil
}

type singleRow struct{ conn *singleConn }

func (r *singleRow) Scan(dest ...any) error {
	defer r.conn.leave()
	r.conn.work()
	if len(dest) > 0 {
		if b, ok := dest[0].(*bool); ok {
			*b = true
		}
	}
	return nil
}

type singleRows struct {
	pgx.Rows
	conn   *singleConn
	left   int
	closed bool
}

func (r *singleRows) Next() bool {
	if r.left > 0 {
		r.left--
		r.conn.work()
		return true
	}
	r.Close()
	return false
}

func (r *singleRows) Scan(...any) error { return nil }
func (r *singleRows) Err() error        { return nil }

func (r *singleRows) Close() {
	if !r.closed {
		r.closed = true
		r.conn.leave()
	}
}

type singleBatch struct {
	pgx.BatchResults
	conn *singleConn
}

func (b *singleBatch) Close() error {
	b.conn.work()
	b.conn.leave()
	return nil
}

type singleTx struct {
	pgx.Tx
	conn *singleConn
	done bool
}

func (t *singleTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	t.conn.work()
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (t *singleTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.conn.leave()
	return nil
}

func (t *singleTx) Rollback(ctx context.Context) error { return t.Commit(ctx) }

func TestSingleConnRejectsConcurrentUse(t *testing.T) {
	c := &singleConn{}
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = c.Exec(ctx, "SELECT 1")
	require.ErrorIs(t, err, errConnBusy)
	require.NoError(t, tx.Commit(ctx))
}

func TestSerializeTakesTurns(t *testing.T) {
	c := &singleConn{hold: 200 * time.Microsecond}
	conn := Serialize(c)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*6)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := conn.Exec(ctx, "INSERT")
			errs <- err

			var ok bool
			errs <- conn.QueryRow(ctx, "SELECT EXISTS").Scan(&ok)

			rows, err := conn.Query(ctx, "SELECT")
			if err == nil {
				for rows.Next() {
				}
				err = rows.Err()
			}
			errs <- err

			tx, err := conn.Begin(ctx)
			if err == nil {
				if _, err = tx.Exec(ctx, "UPDATE"); err == nil {
					err = tx.Commit(ctx)
				}
			}
			errs <- err

			errs <- conn.SendBatch(ctx, &pgx.Batch{}).Close()
			errs <- conn.Ping(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Zero(t, c.rejected)
	assert.Equal(t, workers*6, c.entered)
}

func TestSerializeWaitHonoursContext(t *testing.T) {
	conn := Serialize(&singleConn{})
	ctx := context.Background()

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = conn.Exec(waitCtx, "INSERT")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, conn.QueryRow(waitCtx, "SELECT").Scan(), context.DeadlineExceeded)
	require.ErrorIs(t, conn.SendBatch(waitCtx, &pgx.Batch{}).Close(), context.DeadlineExceeded)

	require.NoError(t, tx.Rollback(ctx))
	// a second rollback must not hand the turn back twice
	require.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)

	_, err = conn.Exec(ctx, "INSERT")
	require.NoError(t, err)
	tx2, err := conn.Begin(ctx)
	require.NoError(t, err)
	shortCtx, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	require.ErrorIs(t, conn.Ping(shortCtx), context.DeadlineExceeded)
	require.NoError(t, tx2.Commit(ctx))
}

func TestSerializeReleasesExhaustedRows(t *testing.T) {
	conn := Serialize(&singleConn{})
	ctx := context.Background()

	rows, err := conn.Query(ctx, "SELECT")
	require.NoError(t, err)
	for rows.Next() {
	}

	quick, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = conn.Exec(quick, "INSERT")
	require.NoError(t, err)

	// closing after exhaustion is harmless
	rows.Close()
	_, err = conn.Exec(quick, "INSERT")
	require.NoError(t, err)
}

func TestClientInTxOverSerializedConn(t *testing.T) {
	c := &singleConn{hold: 100 * time.Microsecond}
	client := NewClient(zaptest.NewLogger(t), "poktinfo", Serialize(c))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 24)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.InTx(ctx, func(ctx context.Context, _ pgx.Tx) error {
				if err := client.Exec(ctx, "UPDATE"); err != nil {
					return err
				}
				return client.Exec(ctx, "UPDATE")
			})
			errs <- client.Exec(ctx, "INSERT")
			var ok bool
			errs <- client.QueryRow(ctx, "SELECT EXISTS").Scan(&ok)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Zero(t, c.rejected)
}
