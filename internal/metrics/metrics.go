package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "smartpresent"

var (
	// Evidence counts attendance evidence accepted by the reconciler, by method.
	Evidence = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evidence_total",
		Help:      "Attendance evidence merged into a session.",
	}, []string{"method"})

	// RecordWrites counts persisted record writes by operation (insert, update).
	RecordWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_writes_total",
		Help:      "Attendance record rows written.",
	}, []string{"op"})

	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Attendance sessions persisted, by source.",
	}, []string{"source"})

	SessionsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finalized_total",
		Help:      "Draft sessions finalized.",
	})

	StudentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "students_created_total",
		Help:      "Students created by the identity resolver.",
	})

	// IngestSkipped counts dropped rows or scans, by source.
	IngestSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_skipped_total",
		Help:      "Evidence items dropped during ingestion.",
	}, []string{"source"})

	// Insights counts AI calls by mode (insight, ask) and outcome (ok, failed, cached).
	Insights = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insight_requests_total",
		Help:      "AI summarization requests.",
	}, []string{"mode", "outcome"})

	InsightLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "insight_request_seconds",
		Help:      "Latency of AI summarization calls.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"mode"})
)

// QueueDepth exposes the length of the in-process job buffer.
func QueueDepth(depth func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting in the in-memory queue.",
	}, depth)
}
