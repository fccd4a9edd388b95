// Package metrics exposes Prometheus collectors for the coordinator.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	urlsDispatchedTotal        *prometheus.CounterVec
	resultsReportedTotal       *prometheus.CounterVec
	urlsAdmittedTotal          *prometheus.CounterVec
	urlsRejectedTotal          *prometheus.CounterVec
	frontierSize               *prometheus.GaugeVec
	bytesDownloadedTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		urlsDispatchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_urls_dispatched_total",
				Help: "Total URLs handed to workers, labeled by run.",
			},
			[]string{"run"},
		)

		resultsReportedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_results_reported_total",
				Help: "Total result reports applied, labeled by run and outcome.",
			},
			[]string{"run", "outcome"},
		)

		urlsAdmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_urls_admitted_total",
				Help: "Total URLs admitted to the frontier, labeled by run.",
			},
			[]string{"run"},
		)

		urlsRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_urls_rejected_total",
				Help: "Total URLs rejected at admission, labeled by run and reason.",
			},
			[]string{"run", "reason"},
		)

		frontierSize = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coordinator_frontier_size",
				Help: "Current number of queued URLs, labeled by run.",
			},
			[]string{"run"},
		)

		bytesDownloadedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_bytes_downloaded_total",
				Help: "Total bytes reported by workers, labeled by run.",
			},
			[]string{"run"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveDispatch records URLs handed out for a run.
func ObserveDispatch(run string, count int) {
	if urlsDispatchedTotal != nil && count > 0 {
		urlsDispatchedTotal.WithLabelValues(run).Add(float64(count))
	}
}

// ObserveResult records one applied result report.
func ObserveResult(run string, failed bool) {
	if resultsReportedTotal == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	resultsReportedTotal.WithLabelValues(run, outcome).Inc()
}

// ObserveAdmission records admission outcomes for a seed or discovery pass.
func ObserveAdmission(run string, admitted int, rejectedByReason map[string]int) {
	if urlsAdmittedTotal != nil && admitted > 0 {
		urlsAdmittedTotal.WithLabelValues(run).Add(float64(admitted))
	}
	if urlsRejectedTotal != nil {
		for reason, n := range rejectedByReason {
			urlsRejectedTotal.WithLabelValues(run, reason).Add(float64(n))
		}
	}
}

// SetFrontierSize publishes the current queue length for a run.
func SetFrontierSize(run string, size int) {
	if frontierSize != nil {
		frontierSize.WithLabelValues(run).Set(float64(size))
	}
}

// ObserveBytes records bytes downloaded for a run.
func ObserveBytes(run string, n int64) {
	if bytesDownloadedTotal != nil && n > 0 {
		bytesDownloadedTotal.WithLabelValues(run).Add(float64(n))
	}
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route, code string, seconds float64) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, code).Inc()
	}
	if httpRequestDurationSeconds != nil {
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(seconds)
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
