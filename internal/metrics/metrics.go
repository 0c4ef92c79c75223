// Package metrics defines the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsCreated counts successfully created reservations.
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Number of reservations created.",
	})

	// ReservationsCancelled counts cancellations (customer or admin).
	ReservationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_cancelled_total",
		Help: "Number of reservations cancelled.",
	})

	// ReservationsExpired counts holds reclaimed by the sweeper.
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Number of reservations expired by the sweeper.",
	})

	// SweepRuns counts sweeper ticks, by outcome label "ok" or "error".
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expiration_sweep_runs_total",
		Help: "Number of expiration sweep executions.",
	}, []string{"outcome"})

	// SweepDuration observes how long a full sweep takes.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "expiration_sweep_duration_seconds",
		Help:    "Duration of expiration sweep executions.",
		Buckets: prometheus.DefBuckets,
	})
)
