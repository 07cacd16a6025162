package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thunderhead-labs/poktinfo/pkg/db"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"go.uber.org/zap"
)

// Source is what the recorder needs from a price API.
type Source interface {
	Current(ctx context.Context, coin, currency string) (float64, error)
	History(ctx context.Context, coin, currency string, day time.Time) (float64, error)
}

// HeightAt translates a wall-clock instant into a chain height.
type HeightAt interface {
	HeightAtTime(ctx context.Context, ts time.Time) (uint64, error)
}

// Recorder stores prices anchored to heights.
type Recorder struct {
	logger  *zap.Logger
	source  Source
	store   db.PriceStore
	heights HeightAt
}

func NewRecorder(logger *zap.Logger, source Source, store db.PriceStore, heights HeightAt) *Recorder {
	return &Recorder{logger: logger, source: source, store: store, heights: heights}
}

// RecordCurrent stores the current price of coin at height.
func (r *Recorder) RecordCurrent(ctx context.Context, coin, currency string, height uint64) error {
	p, err := r.source.Current(ctx, coin, currency)
	if err != nil {
		return fmt.Errorf("current price of %s: %w", coin, err)
	}
	return r.store.ReplacePrice(ctx, models.CoinPrice{Coin: coin, VsCurrency: currency, Price: p, Height: height})
}

// RecordHistory backfills one price per day in [from, to], each stored at the height of that
// day's midnight (UTC). Days that fail are logged and skipped. It returns the number of days stored.
func (r *Recorder) RecordHistory(ctx context.Context, coin, currency string, from, to time.Time) (int, error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return 0, fmt.Errorf("history window ends (%s) before it starts (%s)", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	recorded := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}
		if err := r.recordDay(ctx, coin, currency, day); err != nil {
			if errors.Is(err, context.Canceled) {
				return recorded, err
			}
			r.logger.Warn("Skipping price day",
				zap.String("coin", coin),
				zap.String("day", day.Format(time.DateOnly)),
				zap.Error(err))
			continue
		}
		recorded++
	}
	return recorded, nil
}

func (r *Recorder) recordDay(ctx context.Context, coin, currency string, day time.Time) error {
	p, err := r.source.History(ctx, coin, currency, day)
	if err != nil {
		return err
	}
	h, err := r.heights.HeightAtTime(ctx, day)
	if err != nil {
		return fmt.Errorf("height at %s: %w", day.Format(time.DateOnly), err)
	}
	return r.store.ReplacePrice(ctx, models.CoinPrice{Coin: coin, VsCurrency: currency, Price: p, Height: h})
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
