package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "engagement_service"

var (
	handledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit_consumer",
		Name:      "events_handled_total",
		Help:      "Engagement events handled and committed.",
	}, []string{"event_type"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit_consumer",
		Name:      "frames_rejected_total",
		Help:      "Records committed without handling because the frame or headers were invalid.",
	}, []string{"topic", "reason"})

	handlerFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit_consumer",
		Name:      "handler_failures_total",
		Help:      "Failed handler attempts, including ones later retried successfully.",
	}, []string{"event_type"})

	deliveryDelay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "audit_consumer",
		Name:      "delivery_delay_seconds",
		Help:      "Time between the Kafka record timestamp and its commit.",
		Buckets:   []float64{.05, .1, .5, 1, 2.5, 5, 15, 60, 300},
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(handledCounter, rejectedCounter, handlerFailureCounter, deliveryDelay)
}

func recordHandled(msg Message) {
	handledCounter.WithLabelValues(msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		deliveryDelay.WithLabelValues(msg.EventType).Observe(time.Since(msg.Timestamp).Seconds())
	}
}

func recordRejected(topic, reason string) {
	rejectedCounter.WithLabelValues(topic, reason).Inc()
}

func recordHandlerFailure(eventType string) {
	handlerFailureCounter.WithLabelValues(eventType).Inc()
}
