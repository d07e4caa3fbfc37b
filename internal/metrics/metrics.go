package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "datacite_api"

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	UpstreamRequests       *prometheus.CounterVec
	UpstreamDuration       *prometheus.HistogramVec
	AuthorizationDecisions *prometheus.CounterVec
	HTTPRequests           *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Calls made to upstream services, by outcome status code (503 for transport failures).",
		}, []string{"service", "method", "code"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of upstream calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
		AuthorizationDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_decisions_total",
			Help:      "Authorization gate outcomes.",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Inbound API requests.",
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) ObserveUpstream(service, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(service, method, strconv.Itoa(code)).Inc()
	m.UpstreamDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

// ObserveAuthorization records "allowed", "denied", "unauthenticated", "unavailable" or "disabled".
func (m *Metrics) ObserveAuthorization(outcome string) {
	if m == nil {
		return
	}
	m.AuthorizationDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
