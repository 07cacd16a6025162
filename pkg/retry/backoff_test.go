package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig(attempts int) Config {
	return Config{MaxRetries: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestWithBackoffStopsAfterBudget(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := WithBackoff(context.Background(), fastConfig(5), zaptest.NewLogger(t), "op", func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 5, calls)
}

func TestWithBackoffSucceedsMidway(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), zaptest.NewLogger(t), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithBackoffPermanentReturnsImmediately(t *testing.T) {
	calls := 0
	bad := errors.New("bad request")
	err := WithBackoff(context.Background(), fastConfig(5), zaptest.NewLogger(t), "op", func() error {
		calls++
		return Permanent(bad)
	})
	require.Equal(t, bad, err)
	require.Equal(t, 1, calls)
}

func TestWithBackoffHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithBackoff(ctx, fastConfig(5), zaptest.NewLogger(t), "op", func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	require.Equal(t, time.Second, calculateBackoff(cfg, 1))
	require.Equal(t, 3*time.Second, calculateBackoff(cfg, 4))
}
