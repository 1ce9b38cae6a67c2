// Package metrics exposes Prometheus instrumentation for the upload
// pipeline and the prediction cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPDurationSeconds  *prometheus.HistogramVec
	UploadsSubmitted     *prometheus.CounterVec
	UploadsRejected      *prometheus.CounterVec
	JobsFinished         *prometheus.CounterVec
	JobUpdates           prometheus.Counter
	CacheRefreshes       *prometheus.CounterVec
	CacheRefreshSeconds  prometheus.Histogram
	UpstreamUnauthorized prometheus.Counter
}

// New builds a Metrics set on a private registry so tests never collide
// on double registration.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskdash_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"route", "status"},
		),
		HTTPDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskdash_http_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		UploadsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskdash_uploads_submitted_total",
				Help: "Bulk uploads accepted for processing, by job type.",
			},
			[]string{"job_type"},
		),
		UploadsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskdash_uploads_rejected_total",
				Help: "Bulk uploads rejected before submission, by reason.",
			},
			[]string{"reason"},
		),
		JobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskdash_jobs_finished_total",
				Help: "Upload jobs reaching a terminal status.",
			},
			[]string{"status"},
		),
		JobUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "riskdash_job_updates_total",
				Help: "Job progress updates observed while polling.",
			},
		),
		CacheRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskdash_cache_refreshes_total",
				Help: "Prediction cache refreshes, by outcome.",
			},
			[]string{"outcome"},
		),
		CacheRefreshSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riskdash_cache_refresh_seconds",
				Help:    "Prediction cache refresh duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
		UpstreamUnauthorized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "riskdash_upstream_unauthorized_total",
				Help: "Upstream responses rejected with 401.",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPDurationSeconds,
		m.UploadsSubmitted,
		m.UploadsRejected,
		m.JobsFinished,
		m.JobUpdates,
		m.CacheRefreshes,
		m.CacheRefreshSeconds,
		m.UpstreamUnauthorized,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
