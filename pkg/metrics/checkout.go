package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the cart lock lifecycle and webhook reconciliation.
type CheckoutMetrics struct {
	locksCreated   prometheus.Counter
	locksConsumed  prometheus.Counter
	locksReleased  prometheus.Counter
	locksExpired   prometheus.Counter
	stockConflicts prometheus.Counter
	webhookEvents  *prometheus.CounterVec
}

// NewCheckoutMetrics registers checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	locksCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_locks_created",
		Help: "Cart locks created.",
	})
	locksConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_locks_consumed",
		Help: "Cart locks consumed into orders.",
	})
	locksReleased := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_locks_released",
		Help: "Cart locks released by the client.",
	})
	locksExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_locks_expired",
		Help: "Cart locks flipped to expired by the sweeper.",
	})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_conflicts",
		Help: "Lock attempts rejected because stock was unavailable.",
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_webhook_events",
		Help: "Payment webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(locksCreated, locksConsumed, locksReleased, locksExpired, stockConflicts, webhookEvents)
	return &CheckoutMetrics{
		locksCreated:   locksCreated,
		locksConsumed:  locksConsumed,
		locksReleased:  locksReleased,
		locksExpired:   locksExpired,
		stockConflicts: stockConflicts,
		webhookEvents:  webhookEvents,
	}
}

// IncLockCreated increments the created counter.
func (m *CheckoutMetrics) IncLockCreated() {
	if m == nil || m.locksCreated == nil {
		return
	}
	m.locksCreated.Inc()
}

// IncLockConsumed increments the consumed counter.
func (m *CheckoutMetrics) IncLockConsumed() {
	if m == nil || m.locksConsumed == nil {
		return
	}
	m.locksConsumed.Inc()
}

// IncLockReleased increments the released counter.
func (m *CheckoutMetrics) IncLockReleased() {
	if m == nil || m.locksReleased == nil {
		return
	}
	m.locksReleased.Inc()
}

// AddLocksExpired records locks flipped by a sweep pass.
func (m *CheckoutMetrics) AddLocksExpired(n int) {
	if m == nil || m.locksExpired == nil || n <= 0 {
		return
	}
	m.locksExpired.Add(float64(n))
}

// IncStockConflict increments the stock conflict counter.
func (m *CheckoutMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncWebhookEvent records a webhook event outcome.
func (m *CheckoutMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
