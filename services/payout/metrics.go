package payout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	payoutsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "creatorpay",
		Subsystem: "payout",
		Name:      "created_total",
		Help:      "Payouts created in pending state.",
	})

	payoutsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "creatorpay",
		Subsystem: "payout",
		Name:      "processed_total",
		Help:      "Settlement outcomes by result.",
	}, []string{"outcome"})

	batchesRun = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "creatorpay",
		Subsystem: "payout",
		Name:      "batches_total",
		Help:      "Scheduled payout batches scanned.",
	})

	settleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "creatorpay",
		Subsystem: "payout",
		Name:      "settle_duration_seconds",
		Help:      "Time spent settling one payout attempt.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)
