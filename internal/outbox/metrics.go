package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "engagement_service"

var (
	enqueuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_enqueued_total",
		Help:      "Events written to the outbox, labeled by event type.",
	}, []string{"event_type"})

	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Events published to Kafka, labeled by event type.",
	}, []string{"event_type"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_rejected_total",
		Help:      "Events that could not be published, labeled by cause (unroutable, schema, kafka).",
	}, []string{"cause"})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Events routed to the dead-letter queue, labeled by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, publishing and settling one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	batchSizeHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_size",
		Help:      "Events claimed per non-empty outbox batch.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
	})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "DLQ entries handled by the manager, labeled by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqEntriesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Entries currently in the DLQ, labeled by state (pending, quarantined).",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		enqueuedCounter,
		publishedCounter,
		rejectedCounter,
		dlqCounter,
		batchDuration,
		batchSizeHistogram,
		dlqOutcomeCounter,
		dlqEntriesGauge,
	)
}

func refreshDLQGauges(ctx context.Context, pool *pgxpool.Pool) {
	var pending, quarantined int
	err := pool.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE quarantined_at IS NULL),
            COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
          FROM outbox_dlq`).Scan(&pending, &quarantined)
	if err != nil {
		return
	}
	dlqEntriesGauge.WithLabelValues("pending").Set(float64(pending))
	dlqEntriesGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
