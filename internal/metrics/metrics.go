// Package metrics registers the pipeline's Prometheus counters on the default
// registry; cmd/api exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions labels the terminal outcome of each admit call:
	// accepted, stock_exhausted, duplicate_purchase, sale_not_started,
	// sale_ended.
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_admissions_total",
		Help: "Seckill admission attempts by outcome.",
	}, []string{"outcome"})

	LockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seckill_lock_contention_total",
		Help: "Per-buyer fulfillment lock acquisitions that lost the race.",
	})

	RecoveryPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seckill_recovery_passes_total",
		Help: "Worker transitions into the pending-list recovery loop.",
	})

	OrdersFulfilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seckill_orders_fulfilled_total",
		Help: "Orders durably persisted by the fulfillment worker.",
	})

	CacheRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_rebuilds_total",
		Help: "Cache entries rebuilt from the record store.",
	})

	CacheNegativeHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_negative_hits_total",
		Help: "Reads answered by a cached not-found sentinel.",
	})
)
