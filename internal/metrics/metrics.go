// ABOUTME: Prometheus collectors for HTTP traffic, scheduled runs, new items, and NATS publishing
// ABOUTME: Collectors register on a caller-supplied registerer so tests can use a private registry

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SchedulerRuns        prometheus.Counter
	SchedulerFeeds       *prometheus.CounterVec
	SchedulerNewItems    prometheus.Counter
	SchedulerRunDuration prometheus.Histogram
	SchedulerLastRun     prometheus.Gauge

	ItemsCreated *prometheus.CounterVec

	NATSMessagesPublished *prometheus.CounterVec

	ApplicationInfo *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexifeed_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexifeed_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SchedulerRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexifeed_scheduler_runs_total",
			Help: "Total number of scheduled ingestion runs",
		}),
		SchedulerFeeds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexifeed_scheduler_feeds_total",
				Help: "Feeds processed by scheduled runs",
			},
			[]string{"status"},
		),
		SchedulerNewItems: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexifeed_scheduler_new_items_total",
			Help: "New items stored by scheduled runs",
		}),
		SchedulerRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexifeed_scheduler_run_duration_seconds",
			Help:    "Duration of scheduled ingestion runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SchedulerLastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexifeed_scheduler_last_run_timestamp_seconds",
			Help: "Unix time the last scheduled run finished",
		}),

		ItemsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexifeed_items_created_total",
				Help: "Items created, by feed category",
			},
			[]string{"category"},
		),

		NATSMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexifeed_nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),

		ApplicationInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexifeed_application_info",
				Help: "Application information",
			},
			[]string{"version", "backend"},
		),
	}
}

// Init records static build information.
func (m *Metrics) Init(version, backend string) {
	m.ApplicationInfo.WithLabelValues(version, backend).Set(1)
}

// ObserveRun records one finished scheduler run.
func (m *Metrics) ObserveRun(succeeded, failed, newItems int, took time.Duration) {
	m.SchedulerRuns.Inc()
	m.SchedulerFeeds.WithLabelValues("success").Add(float64(succeeded))
	m.SchedulerFeeds.WithLabelValues("failure").Add(float64(failed))
	m.SchedulerNewItems.Add(float64(newItems))
	m.SchedulerRunDuration.Observe(took.Seconds())
	m.SchedulerLastRun.SetToCurrentTime()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
