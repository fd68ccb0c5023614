package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Collector with client_golang.
//
// Metrics are registered lazily on first use so that constructing a
// collector never panics on a shared registry.
type Prometheus struct {
	reg       prometheus.Registerer
	gatherer  prometheus.Gatherer
	namespace string
	once      sync.Once

	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobSkipped    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a collector on reg. A nil reg creates a private
// registry. An empty namespace defaults to "staffing".
func NewPrometheus(reg *prometheus.Registry, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "staffing"
	}
	p := &Prometheus{reg: reg, gatherer: reg, namespace: namespace}
	p.ensureRegistered()
	return p
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "job_runs_total",
			Help:      "Detection and maintenance job runs by job and result.",
		}, []string{"job", "result"})

		p.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "job_duration_seconds",
			Help:      "Job run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}, []string{"job"})

		p.jobSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "job_skipped_total",
			Help:      "Job triggers skipped because a run was already in progress.",
		}, []string{"job"})

		p.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "notifications_total",
			Help:      "Notification create attempts by type and outcome (created, deduplicated, failed).",
		}, []string{"type", "outcome"})

		p.reg.MustRegister(p.jobRuns, p.jobDuration, p.jobSkipped, p.notifications)
	})
}

func (p *Prometheus) JobRun(job, result string, duration time.Duration) {
	p.jobRuns.WithLabelValues(job, result).Inc()
	p.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (p *Prometheus) JobSkipped(job string) {
	p.jobSkipped.WithLabelValues(job).Inc()
}

func (p *Prometheus) NotificationRaised(notificationType, outcome string) {
	p.notifications.WithLabelValues(notificationType, outcome).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
