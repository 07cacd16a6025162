package redis

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// DefaultProgressChannel is the Pub/Sub channel progress events go to. The stream copy
// lives at <channel>:stream.
const DefaultProgressChannel = "poktinfo:progress"

// ProgressEvent is one recorded unit of work.
type ProgressEvent struct {
	Service    string    `json:"service"`
	Status     string    `json:"status"`
	Height     uint64    `json:"height,omitempty"`
	Start      uint64    `json:"start_height,omitempty"`
	End        uint64    `json:"end_height,omitempty"`
	CacheSetID int64     `json:"cache_set_id,omitempty"`
	Interval   string    `json:"interval,omitempty"`
	At         time.Time `json:"at"`
}

type sink interface {
	Publish(ctx context.Context, channel string, message any)
	XAdd(ctx context.Context, stream string, values map[string]any) string
}

// ProgressPublisher fans progress events out to Pub/Sub subscribers and a capped stream.
type ProgressPublisher struct {
	sink    sink
	channel string
	logger  *zap.Logger
}

func NewProgressPublisher(s sink, channel string, logger *zap.Logger) *ProgressPublisher {
	if channel == "" {
		channel = DefaultProgressChannel
	}
	return &ProgressPublisher{sink: s, channel: channel, logger: logger}
}

// StreamName is the stream progress events are appended to.
func (p *ProgressPublisher) StreamName() string {
	return StreamFor(p.channel)
}

// StreamFor returns the stream backing a progress channel.
func StreamFor(channel string) string {
	return channel + ":stream"
}

// PublishProgress never fails; encoding errors are logged.
func (p *ProgressPublisher) PublishProgress(ctx context.Context, ev ProgressEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to encode progress event", zap.String("service", ev.Service), zap.Error(err))
		return
	}
	p.sink.Publish(ctx, p.channel, data)
	p.sink.XAdd(ctx, p.StreamName(), map[string]any{
		"service": ev.Service,
		"status":  ev.Status,
		"data":    string(data),
	})
}
