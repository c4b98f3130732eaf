package metrics

import "github.com/prometheus/client_golang/prometheus"

// prometheusHTTPMetrics is the Prometheus-backed HTTPMetrics implementation
// used by the gateway's HTTP ingress middleware.
type prometheusHTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers the gateway's HTTP request counters
// and duration histogram with the given registry. If registry is nil, a
// fresh registry is created (useful for tests that don't share global
// process state).
func NewHTTPMetrics(registry *prometheus.Registry) HTTPMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway ingress.",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests handled by the gateway ingress.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	_ = registry.Register(requestsTotal)
	_ = registry.Register(requestDuration)

	return &prometheusHTTPMetrics{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}
}

func (m *prometheusHTTPMetrics) IncRequest(method, route, status string) {
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
}

func (m *prometheusHTTPMetrics) ObserveRequestDuration(method, route string, seconds float64) {
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

// Noop returns an HTTPMetrics implementation that discards everything, used
// where metrics wiring is optional (tests, the bridge's internal HTTP
// client).
func Noop() HTTPMetrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncRequest(string, string, string)              {}
func (noopMetrics) ObserveRequestDuration(string, string, float64) {}
