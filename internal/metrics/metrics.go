// Package metrics provides Prometheus metrics for listings, storage
// operations and the HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/blobfs/pkg/listing"
)

const namespace = "blobfs"

// Metrics owns a registry and the collectors registered on it.
//
// Metrics implements listing.Observer and storage.Observer.
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched      *prometheus.CounterVec
	nodesEmitted      *prometheus.CounterVec
	listingsTruncated prometheus.Counter
	operationFailures *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pagesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_pages_fetched_total",
				Help:      "Prefix query pages fetched by the listing engine",
			},
			[]string{"mode"},
		),
		nodesEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_nodes_emitted_total",
				Help:      "Nodes yielded by directory listings",
			},
			[]string{"kind"},
		),
		listingsTruncated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_truncated_total",
				Help:      "Listings cut short by a failed prefix query",
			},
		),
		operationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operation_failures_total",
				Help:      "Failed filesystem adapter operations",
			},
			[]string{"op"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PageFetched(recursive bool) {
	mode := "shallow"
	if recursive {
		mode = "recursive"
	}
	m.pagesFetched.WithLabelValues(mode).Inc()
}

func (m *Metrics) NodeEmitted(kind listing.Kind) {
	m.nodesEmitted.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ListingTruncated(err error) {
	m.listingsTruncated.Inc()
}

func (m *Metrics) OperationFailed(op string) {
	m.operationFailures.WithLabelValues(op).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var _ listing.Observer = (*Metrics)(nil)
