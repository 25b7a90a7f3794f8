// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the registry served by Handler.
	Registry = prometheus.NewRegistry()

	captchaVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmrequest",
			Subsystem: "captcha",
			Name:      "verifications_total",
			Help:      "Total number of CAPTCHA verifications by outcome",
		},
		[]string{"outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmrequest",
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Total number of notification e-mails by result",
		},
		[]string{"result"},
	)

	ipamQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmrequest",
			Subsystem: "netcenter",
			Name:      "queries_total",
			Help:      "Total number of netcenter free address queries by result",
		},
		[]string{"result"},
	)

	ipamQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vmrequest",
			Subsystem: "netcenter",
			Name:      "query_duration_seconds",
			Help:      "Duration of netcenter free address queries in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmrequest",
			Subsystem: "handler",
			Name:      "submissions_total",
			Help:      "Total number of VM request submissions by outward result",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		captchaVerifications,
		notifications,
		ipamQueries,
		ipamQueryDuration,
		submissions,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordCaptchaVerification(outcome string) {
	captchaVerifications.WithLabelValues(outcome).Inc()
}

func RecordNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

func RecordIPAMQuery(result string, seconds float64) {
	ipamQueries.WithLabelValues(result).Inc()
	ipamQueryDuration.Observe(seconds)
}

func RecordSubmission(result string) {
	submissions.WithLabelValues(result).Inc()
}
