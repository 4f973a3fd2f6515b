// Package metrics holds the prometheus collectors for the points economy.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	ledgerMovements *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	valuations      *prometheus.CounterVec
	expiredRequests prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgerMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookswap",
			Name:      "ledger_movements_total",
			Help:      "Point movements by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookswap",
			Name:      "payment_webhook_events_total",
			Help:      "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		valuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookswap",
			Name:      "valuations_total",
			Help:      "Listing valuations by source.",
		}, []string{"source"}),
		expiredRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookswap",
			Name:      "exchange_requests_expired_total",
			Help:      "Exchange requests expired and refunded by the scheduler.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookswap",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.ledgerMovements, m.webhookEvents, m.valuations, m.expiredRequests, m.httpDuration)
	return m
}

func (m *Metrics) LedgerMovement(txType, outcome string) {
	if m == nil {
		return
	}
	m.ledgerMovements.WithLabelValues(txType, outcome).Inc()
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Valuation(source string) {
	if m == nil {
		return
	}
	m.valuations.WithLabelValues(source).Inc()
}

func (m *Metrics) RequestsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredRequests.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
