// Package metrics holds the prometheus collectors exported by the collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poktinfo",
		Subsystem: "rpc",
		Name:      "attempts_total",
		Help:      "RPC attempts by path and outcome.",
	}, []string{"path", "outcome"})

	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poktinfo",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Latency of single RPC attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"path"})

	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "poktinfo",
		Subsystem: "rpc",
		Name:      "endpoint_pool_size",
		Help:      "Number of validated endpoints in the pool.",
	})

	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poktinfo",
		Subsystem: "rpc",
		Name:      "endpoint_validations_total",
		Help:      "Endpoint validation outcomes.",
	}, []string{"outcome"})

	ResolverSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "poktinfo",
		Subsystem: "height",
		Name:      "resolver_steps",
		Help:      "Block lookups per height resolution.",
		Buckets:   prometheus.LinearBuckets(1, 2, 12),
	})

	Units = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poktinfo",
		Subsystem: "collector",
		Name:      "units_total",
		Help:      "Work units by service and outcome (success, fail, skipped).",
	}, []string{"service", "outcome"})

	Versions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poktinfo",
		Subsystem: "store",
		Name:      "versions_total",
		Help:      "Temporal versions appended or closed per table.",
	}, []string{"table", "op"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poktinfo",
		Subsystem: "geo",
		Name:      "lookups_total",
		Help:      "Geolocation lookups by provider and outcome.",
	}, []string{"provider", "outcome"})
)
