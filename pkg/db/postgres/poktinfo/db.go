package poktinfo

import (
	"context"
	"fmt"

	dbpkg "github.com/thunderhead-labs/poktinfo/pkg/db"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres"
	"go.uber.org/zap"
)

var _ dbpkg.Store = (*DB)(nil)

// DB is the poktinfo database: temporal entities, progress records, rewards and caches.
type DB struct {
	postgres.Client
	Name string
}

// New connects with the given credentials and ensures the schema exists.
func New(ctx context.Context, logger *zap.Logger, creds postgres.Credentials, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", creds.Database),
		zap.String("component", poolConfig.Component),
	), creds, poolConfig)
	if err != nil {
		return nil, err
	}

	store := &DB{Client: client, Name: creds.Database}
	if err := store.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// Wrap builds a DB on top of an existing client without touching the schema.
func Wrap(client postgres.Client) *DB {
	return &DB{Client: client, Name: client.TargetDatabase}
}

// Close terminates the underlying PostgreSQL connection
func (db *DB) Close() error {
	db.Client.Close()
	return nil
}

// DatabaseName returns the name of the database
func (db *DB) DatabaseName() string {
	return db.Name
}

// InitializeDB ensures the required tables and indexes exist
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initializing poktinfo database", zap.String("database", db.Name))

	for _, t := range schema {
		db.Logger.Debug("Initialize table", zap.String("table", t.name))
		for _, stmt := range t.ddl {
			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("initialize %s: %w", t.name, err)
			}
		}
	}
	return nil
}
