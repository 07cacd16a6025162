package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	models "github.com/thunderhead-labs/poktinfo/pkg/db/models/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"go.uber.org/zap"
)

const (
	DefaultNodeTemplate = "http://node%d.thunderstake.io/"
	DefaultLagTolerance = uint64(3)
	DefaultWorkers      = 8
)

// Endpoint validation outcomes, also stored in rpc_endpoints.status.
const (
	EndpointAccepted    = "accepted"
	EndpointLagging     = "lagging"
	EndpointUnreachable = "unreachable"
)

// EndpointRecorder receives every probe result.
type EndpointRecorder interface {
	UpsertEndpoint(ctx context.Context, ep *models.RPCEndpoint) error
}

// WithinLag reports whether an endpoint at height is close enough to the reference head.
// Endpoints ahead of the reference are rejected.
func WithinLag(reference, height, tolerance uint64) bool {
	return reference >= height && reference-height < tolerance
}

// Validator probes candidate endpoints and fills a Pool with those that keep up with the chain.
type Validator struct {
	Prober       Prober
	Pool         *Pool
	Template     string
	LagTolerance uint64
	Workers      int
	Recorder     EndpointRecorder
	Logger       *zap.Logger
}

// NewValidator returns a validator with the default template, tolerance and worker count.
func NewValidator(prober Prober, pool *Pool, logger *zap.Logger) *Validator {
	return &Validator{
		Prober:       prober,
		Pool:         pool,
		Template:     DefaultNodeTemplate,
		LagTolerance: DefaultLagTolerance,
		Workers:      DefaultWorkers,
		Logger:       logger,
	}
}

// CandidateURL builds the base URL of candidate index.
func (v *Validator) CandidateURL(index int) string {
	return fmt.Sprintf(v.Template, index)
}

// Validate probes candidate index and returns its URL when it is within the lag tolerance
// of referenceHeight. Any probe error is a rejection.
func (v *Validator) Validate(ctx context.Context, index int, referenceHeight uint64) (string, bool) {
	ep, ok := v.probe(ctx, v.CandidateURL(index), referenceHeight)
	if !ok {
		return "", false
	}
	return ep.URL, true
}

func (v *Validator) probe(ctx context.Context, url string, referenceHeight uint64) (Endpoint, bool) {
	start := time.Now()
	height, err := v.Prober.HeadAt(ctx, url)
	latency := time.Since(start)

	rec := models.RPCEndpoint{
		Endpoint:  url,
		Height:    height,
		LatencyMs: float64(latency.Microseconds()) / 1000,
		UpdatedAt: time.Now(),
	}
	accepted := false
	switch {
	case err != nil:
		rec.Status = EndpointUnreachable
		rec.Error = err.Error()
		v.logger().Debug("Endpoint probe failed", zap.String("endpoint", url), zap.Error(err))
	case WithinLag(referenceHeight, height, v.tolerance()):
		rec.Status = EndpointAccepted
		accepted = true
	default:
		rec.Status = EndpointLagging
		v.logger().Debug("Endpoint rejected",
			zap.String("endpoint", url),
			zap.Uint64("height", height),
			zap.Uint64("reference", referenceHeight))
	}
	metrics.Validations.WithLabelValues(rec.Status).Inc()

	if v.Recorder != nil {
		if rerr := v.Recorder.UpsertEndpoint(ctx, &rec); rerr != nil {
			v.logger().Warn("Failed to record endpoint probe", zap.String("endpoint", url), zap.Error(rerr))
		}
	}
	return Endpoint{URL: url, Height: height}, accepted
}

// Populate fetches the reference head from the main endpoint, validates candidates
// [from, to) concurrently and appends every accepted one to the pool.
// It returns the number of endpoints accepted.
func (v *Validator) Populate(ctx context.Context, from, to int) (int, error) {
	reference, err := v.Prober.MainHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("reference head: %w", err)
	}
	return v.PopulateAt(ctx, from, to, reference)
}

// PopulateAt is Populate against a known reference height.
func (v *Validator) PopulateAt(ctx context.Context, from, to int, reference uint64) (int, error) {
	if to <= from {
		return 0, nil
	}
	workers := v.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	pool := pond.NewPool(workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	accepted := make([]bool, to-from)
	for i := from; i < to; i++ {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if ep, ok := v.probe(groupCtx, v.CandidateURL(i), reference); ok {
				v.Pool.Add(ep.URL, ep.Height)
				accepted[i-from] = true
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return 0, err
	}

	n := 0
	for _, ok := range accepted {
		if ok {
			n++
		}
	}
	v.logger().Info("Endpoint pool populated",
		zap.Int("from", from),
		zap.Int("to", to),
		zap.Uint64("reference_height", reference),
		zap.Int("accepted", n),
		zap.Int("pool_size", v.Pool.Len()))
	return n, ctx.Err()
}

func (v *Validator) tolerance() uint64 {
	if v.LagTolerance == 0 {
		return DefaultLagTolerance
	}
	return v.LagTolerance
}

func (v *Validator) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}
