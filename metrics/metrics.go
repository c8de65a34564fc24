package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AnalysesTotal counts accessibility analyses by result (success, incomplete).
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access_assistant",
		Subsystem: "analyzer",
		Name:      "analyses_total",
		Help:      "Total number of accessibility analyses, labeled by result.",
	}, []string{"result"})

	// IssuesReported counts issues returned by successful analyses, by category.
	IssuesReported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access_assistant",
		Subsystem: "analyzer",
		Name:      "issues_reported_total",
		Help:      "Total number of accessibility issues reported, labeled by issue category.",
	}, []string{"category"})

	// FixWorkflowsTotal counts fix workflows by terminal or preview outcome.
	FixWorkflowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access_assistant",
		Subsystem: "coordinator",
		Name:      "fix_workflows_total",
		Help:      "Total number of fix workflow transitions into a resting state, labeled by outcome.",
	}, []string{"outcome"})

	// GatewayDurationSeconds is the wall time of one model call, including decoding.
	GatewayDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "access_assistant",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Time spent in a model gateway call, labeled by prompt, provider and result.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"prompt", "provider", "result"})

	// RelayFetchesTotal counts image fetches by mode (relay, direct, data) and result.
	RelayFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access_assistant",
		Subsystem: "relay",
		Name:      "fetches_total",
		Help:      "Total number of image fetches, labeled by mode and result.",
	}, []string{"mode", "result"})

	// DocumentsActive is the number of documents currently held in the workspace store.
	DocumentsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "access_assistant",
		Subsystem: "workspace",
		Name:      "documents_active",
		Help:      "Number of documents currently held in memory.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AnalysesTotal,
			IssuesReported,
			FixWorkflowsTotal,
			GatewayDurationSeconds,
			RelayFetchesTotal,
			DocumentsActive,
		)
	})
}
