package collector

import (
	"fmt"
	"time"

	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
)

// HeightsToCollect returns the last lookback heights up to and including head, ascending.
func HeightsToCollect(head, lookback uint64) []uint64 {
	if head == 0 || lookback == 0 {
		return nil
	}
	from := uint64(1)
	if head > lookback {
		from = head - lookback + 1
	}
	out := make([]uint64, 0, head-from+1)
	for h := from; h <= head; h++ {
		out = append(out, h)
	}
	return out
}

// RangesToCollect splits the lookback window ending at head into complete ranges of size
// blocks aligned on multiples of size. The range still in progress is left out.
func RangesToCollect(head, size, lookback uint64) []models.HeightRange {
	if size == 0 || head < size {
		return nil
	}
	end := head - head%size
	start := uint64(0)
	if end > lookback {
		start = end - lookback
	}
	start -= start % size
	var out []models.HeightRange
	for s := start; s+size <= end; s += size {
		out = append(out, models.HeightRange{Start: s, End: s + size})
	}
	return out
}

// Window is a wall-clock period a cache-set rollup covers, labeled by its interval.
type Window struct {
	From     time.Time
	To       time.Time
	Interval string
}

// CacheSetWindows returns, for every interval, the period of that length ending at the
// last full hour before now.
func CacheSetWindows(now time.Time, intervals []string) ([]Window, error) {
	to := now.UTC().Truncate(time.Hour)
	out := make([]Window, 0, len(intervals))
	for _, iv := range intervals {
		d, err := time.ParseDuration(iv)
		if err != nil {
			return nil, fmt.Errorf("cache set interval %q: %w", iv, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("cache set interval %q must be positive", iv)
		}
		out = append(out, Window{From: to.Add(-d), To: to, Interval: iv})
	}
	return out, nil
}
