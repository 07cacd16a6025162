package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type streamReader interface {
	XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error)
}

// TailConfig configures a ProgressTail.
type TailConfig struct {
	Stream string
	// LastID: "0" replays the stream, "$" (default) only follows new entries.
	LastID string
	Count  int64
	Block  time.Duration
	// RetryInterval doubles after each read error up to MaxRetryInterval.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
	Logger           *zap.Logger
}

// ProgressTail follows the progress stream and decodes each entry.
type ProgressTail struct {
	reader streamReader
	config TailConfig
	logger *zap.Logger
}

func NewProgressTail(reader streamReader, config TailConfig) (*ProgressTail, error) {
	if reader == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if config.LastID == "" {
		config.LastID = "$"
	}
	if config.Count == 0 {
		config.Count = 100
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressTail{reader: reader, config: config, logger: logger}, nil
}

// Run calls handle for every event until ctx is done. Entries that do not decode are skipped.
func (t *ProgressTail) Run(ctx context.Context, handle func(ProgressEvent) error) error {
	lastID := t.config.LastID
	retryInterval := t.config.RetryInterval

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := t.reader.XRead(ctx, t.config.Stream, lastID, t.config.Count, t.config.Block)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			t.logger.Warn("Error reading progress stream, will retry",
				zap.String("stream", t.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))
			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, t.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		retryInterval = t.config.RetryInterval

		for _, m := range msgs {
			lastID = m.ID
			ev, err := decodeProgress(m)
			if err != nil {
				t.logger.Warn("Skipping progress entry", zap.String("id", m.ID), zap.Error(err))
				continue
			}
			if err := handle(ev); err != nil {
				return err
			}
		}
	}
}

func decodeProgress(m redis.XMessage) (ProgressEvent, error) {
	var raw []byte
	switch v := m.Values["data"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return ProgressEvent{}, fmt.Errorf("entry has no data field")
	}
	var ev ProgressEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ProgressEvent{}, fmt.Errorf("decode progress: %w", err)
	}
	return ev, nil
}
