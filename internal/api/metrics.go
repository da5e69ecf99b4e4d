package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh results recorded by Metrics.
const (
	refreshSuccess        = "success"
	refreshFailure        = "failure"
	refreshNoRefreshToken = "no_refresh_token"
	refreshStoreError     = "store_error"
)

// Metrics holds the Prometheus metrics of the request client.
// A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	RefreshTotal   *prometheus.CounterVec
	QueuedRequests prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "famsched",
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "Total number of backend requests sent, including replays",
			},
			[]string{"method", "status"}, // status=200/401/.../error
		),
		RefreshTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "famsched",
				Subsystem: "client",
				Name:      "refresh_total",
				Help:      "Total token refresh attempts by result",
			},
			[]string{"result"},
		),
		QueuedRequests: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "famsched",
				Subsystem: "client",
				Name:      "queued_requests_total",
				Help:      "Requests that waited for an in-flight token refresh",
			},
		),
	}
}

func (m *Metrics) observeRequest(method string, resp *Response, err error) {
	if m == nil {
		return
	}
	status := "error"
	switch {
	case resp != nil:
		status = strconv.Itoa(resp.StatusCode)
	case StatusCode(err) != 0:
		status = strconv.Itoa(StatusCode(err))
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeQueued() {
	if m == nil {
		return
	}
	m.QueuedRequests.Inc()
}
