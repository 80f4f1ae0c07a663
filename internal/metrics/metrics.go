package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "build_insight"

// Metrics tracks orchestration counters, exposed in Prometheus format.
// One instance is created at startup and shared by all components.
type Metrics struct {
	JobsSubmitted   prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobsFailed      prometheus.Counter
	AnalysisCalls   prometheus.Counter
	AnalysisErrors  prometheus.Counter
	AnalysisSeconds prometheus.Histogram
	Deliveries      *prometheus.CounterVec
	DeliveryErrors  *prometheus.CounterVec
	JiraSearches    prometheus.Counter
	JiraErrors      prometheus.Counter
}

// New creates the metrics set and registers it with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of analysis jobs submitted",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of analysis jobs that reached completed",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of analysis jobs that reached failed",
		}),
		AnalysisCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "calls_total",
			Help:      "Total number of external analysis invocations",
		}),
		AnalysisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "call_errors_total",
			Help:      "Total number of failed external analysis invocations",
		}),
		AnalysisSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "call_duration_seconds",
			Help:      "Duration of external analysis invocations",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of delivery attempts per sink",
		}, []string{"sink"}),
		DeliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "errors_total",
			Help:      "Total number of failed deliveries per sink",
		}, []string{"sink"}),
		JiraSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jira",
			Name:      "searches_total",
			Help:      "Total number of Jira searches performed",
		}),
		JiraErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jira",
			Name:      "search_errors_total",
			Help:      "Total number of failed Jira searches",
		}),
	}

	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.AnalysisCalls,
		m.AnalysisErrors,
		m.AnalysisSeconds,
		m.Deliveries,
		m.DeliveryErrors,
		m.JiraSearches,
		m.JiraErrors,
	)
	return m
}
