package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
	"go.uber.org/zap"
)

// DefaultStreamMaxLen caps the progress stream.
const DefaultStreamMaxLen = 10000

// Client wraps the Redis client used to fan out collector progress (Pub/Sub and a capped Stream).
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64 // 0 = unlimited
}

// NewClient connects using REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB and REDIS_STREAM_MAXLEN.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")
	db := utils.EnvInt("REDIS_DB", 0)
	streamMaxLen := utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen)

	addr := fmt.Sprintf("%s:%s", host, port)
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     utils.Env("REDIS_PASSWORD", ""),
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", db),
		zap.Int64("streamMaxLen", streamMaxLen))

	return &Client{client: rdb, logger: logger, streamMaxLen: streamMaxLen}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Publish is best effort: errors are logged, never returned, so a Redis outage cannot fail a unit of work.
func (c *Client) Publish(ctx context.Context, channel string, message any) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// XAdd appends to a stream, trimmed approximately to the configured length. Best effort like
// Publish; returns the entry ID or "".
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) string {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}

	id, err := c.client.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Failed to add to Redis stream",
			zap.String("stream", stream),
			zap.Error(err))
		return ""
	}
	return id
}

// XRead reads entries after lastID from one stream, blocking up to block.
func (c *Client) XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		return nil, err
	}
	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// Health checks if Redis answers.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
