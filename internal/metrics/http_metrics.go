package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics содержит метрики HTTP API и live-ленты.
type HTTPMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streamClients   prometheus.Gauge
}

// NewHTTPMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWith(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWith регистрирует метрики в переданном registerer.
func NewHTTPMetricsWith(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_http_requests_total",
			Help: "Total number of HTTP requests grouped by method, route and status code",
		}, []string{"method", "route", "code"}),
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "oms_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		streamClients: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "oms_realtime_clients",
			Help: "Number of connected live order feed clients",
		}),
	}
}

// ObserveRequest записывает завершённый HTTP-запрос.
// route: шаблон маршрута (/orders/:id), а не фактический путь.
func (m *HTTPMetrics) ObserveRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// StreamClientConnected увеличивает число подключённых websocket-клиентов.
func (m *HTTPMetrics) StreamClientConnected() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

// StreamClientDisconnected уменьшает число подключённых websocket-клиентов.
func (m *HTTPMetrics) StreamClientDisconnected() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}
