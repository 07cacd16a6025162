package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thunderhead-labs/poktinfo/pkg/retry"
	"go.uber.org/zap"
)

// Storage strategies selectable through STORAGE_DRIVER.
const (
	DriverPool = "pool"
	DriverConn = "conn"
)

// Executor is an interface that *pgxpool.Pool, *pgx.Conn and pgx.Tx implement.
// This allows methods to work with either a connection or a transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Conn is the connection strategy behind a Client: a pool or a single connection.
// Both are safe for concurrent use; the single connection is wrapped by Serialize.
type Conn interface {
	Executor
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Client wraps a PostgreSQL connection strategy and provides helper methods
type Client struct {
	Logger         *zap.Logger
	Conn           Conn
	TargetDatabase string

	closeFn func()
}

// PoolConfig defines connection pool settings for a specific component
type PoolConfig struct {
	Driver            string
	MinConns          int32
	MaxConns          int32
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	Component         string // For logging/debugging
}

// DefaultPoolConfig mirrors the sizing of the reporting jobs: ten connections plus ten overflow,
// each checked before reuse.
func DefaultPoolConfig(component string) PoolConfig {
	return PoolConfig{
		Driver:            DriverPool,
		MinConns:          1,
		MaxConns:          20,
		ConnMaxLifetime:   1 * time.Hour,
		ConnMaxIdleTime:   10 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		Component:         component,
	}
}

// NewClient wraps an existing connection. Mostly useful with mocks and in tests.
func NewClient(logger *zap.Logger, dbName string, conn Conn) Client {
	return Client{Logger: logger, Conn: conn, TargetDatabase: dbName}
}

// New connects to the database described by creds using the configured strategy.
func New(ctx context.Context, logger *zap.Logger, creds Credentials, poolConf PoolConfig) (Client, error) {
	return NewFromURL(ctx, logger, creds.DSN(), creds.Database, poolConf)
}

// NewFromURL connects with a raw connection string, retrying until the database answers a ping.
func NewFromURL(ctx context.Context, logger *zap.Logger, dsn, dbName string, poolConf PoolConfig) (client Client, err error) {
	// Add timeout to context for initial connection
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	client.Logger = logger
	client.TargetDatabase = dbName

	if poolConf.Driver == "" {
		poolConf.Driver = DriverPool
	}

	var open func(context.Context) (Conn, func(), error)
	switch poolConf.Driver {
	case DriverPool:
		config, parseErr := pgxpool.ParseConfig(dsn)
		if parseErr != nil {
			return Client{}, fmt.Errorf("failed to parse connection string: %w", parseErr)
		}
		applyPoolConfig(config, poolConf)
		open = func(ctx context.Context) (Conn, func(), error) {
			pool, openErr := pgxpool.NewWithConfig(ctx, config)
			if openErr != nil {
				return nil, nil, fmt.Errorf("failed to create postgres connection pool: %w", openErr)
			}
			return pool, pool.Close, nil
		}
	case DriverConn:
		config, parseErr := pgx.ParseConfig(dsn)
		if parseErr != nil {
			return Client{}, fmt.Errorf("failed to parse connection string: %w", parseErr)
		}
		open = func(ctx context.Context) (Conn, func(), error) {
			conn, openErr := pgx.ConnectConfig(ctx, config)
			if openErr != nil {
				return nil, nil, fmt.Errorf("failed to open postgres connection: %w", openErr)
			}
			return Serialize(conn), func() { _ = conn.Close(context.Background()) }, nil
		}
	default:
		return Client{}, fmt.Errorf("unknown storage driver %q", poolConf.Driver)
	}

	retryErr := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "postgres_connection", func() error {
		conn, closeFn, openErr := open(connCtx)
		if openErr != nil {
			return openErr
		}

		logger.Debug("Pinging PostgreSQL connection",
			zap.String("db", dbName),
			zap.String("component", poolConf.Component),
		)

		if pingErr := conn.Ping(connCtx); pingErr != nil {
			closeFn()
			return fmt.Errorf("failed to ping postgres: %w", pingErr)
		}

		client.Conn = conn
		client.closeFn = closeFn

		logger.Info("PostgreSQL connection configured",
			zap.String("database", dbName),
			zap.String("driver", poolConf.Driver),
			zap.String("component", poolConf.Component),
			zap.Int32("max_conns", poolConf.MaxConns),
		)
		return nil
	})
	if retryErr != nil {
		return Client{}, retryErr
	}

	return client, nil
}

func applyPoolConfig(config *pgxpool.Config, poolConf PoolConfig) {
	if poolConf.MaxConns > 0 {
		config.MaxConns = poolConf.MaxConns
	}
	if poolConf.MinConns > 0 {
		config.MinConns = poolConf.MinConns
	}
	if poolConf.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = poolConf.ConnMaxLifetime
	}
	if poolConf.ConnMaxIdleTime > 0 {
		config.MaxConnIdleTime = poolConf.ConnMaxIdleTime
	}
	if poolConf.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = poolConf.HealthCheckPeriod
	}
	// pre-ping: a connection that does not answer is dropped instead of handed out
	config.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return conn.Ping(pingCtx) == nil
	}
}

// Exec executes a query without returning any rows
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.GetExecutor(ctx).Exec(ctx, query, args...)
	return err
}

// ExecAffected executes a query and returns the number of affected rows.
func (c *Client) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.GetExecutor(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Query executes a query that returns rows
// IMPORTANT: Caller MUST call rows.Close() when done to release the connection
func (c *Client) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return c.GetExecutor(ctx).Query(ctx, query, args...)
}

// QueryRow executes a query that is expected to return at most one row
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return c.GetExecutor(ctx).QueryRow(ctx, query, args...)
}

// Begin starts a new transaction
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	return c.Conn.Begin(ctx)
}

// InTx runs fn inside a transaction. The transaction is committed when fn returns nil and
// rolled back exactly once otherwise. The transaction is also placed in the context passed to fn,
// so Client helpers called with that context join it.
func (c *Client) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := c.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if fnErr := fn(c.WithTx(ctx, tx), tx); fnErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			c.Logger.Warn("Rollback failed", zap.Error(rbErr), zap.NamedError("cause", fnErr))
		}
		return fnErr
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SendBatch sends a batch of queries
func (c *Client) SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults {
	return c.GetExecutor(ctx).SendBatch(ctx, batch)
}

// Ping checks that the database answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.Conn.Ping(ctx)
}

// Close releases the underlying connection(s).
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// ctxKey is the type used for context keys to avoid collisions
type ctxKey string

// txKey is the context key for storing the transaction
const txKey ctxKey = "pgx_tx"

// WithTx returns a new context with the transaction embedded
// This allows methods to automatically use the transaction when present
func (c *Client) WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetExecutor returns an Executor from the context
// If a transaction is present in the context, it returns the transaction
// Otherwise, it returns the connection for non-transactional operations
func (c *Client) GetExecutor(ctx context.Context) Executor {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return c.Conn
}

// TableExists checks if a table exists in the database
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`

	var exists bool
	err := c.QueryRow(ctx, query, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check if table exists %s: %w", table, err)
	}

	return exists, nil
}

// IsNoRows checks if the error is a "no rows" error
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
