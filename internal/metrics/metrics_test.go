package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.LedgerMovement("BONUS", "applied")
	m.WebhookEvent("credited")
	m.Valuation("fallback")
	m.RequestsExpired(3)
	m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LedgerMovement("SPENT_REQUEST", "insufficient_balance")
	m.LedgerMovement("SPENT_REQUEST", "insufficient_balance")
	m.WebhookEvent("duplicate")
	m.RequestsExpired(4)
	m.RequestsExpired(0)
	m.ObserveHTTP("GET", "/api/v1/me/points", 200, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ledgerMovements.WithLabelValues("SPENT_REQUEST", "insufficient_balance")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhookEvents.WithLabelValues("duplicate")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.expiredRequests))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
}
