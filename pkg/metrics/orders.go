package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics tracks order lifecycle activity.
type OrderMetrics struct {
	placed      prometheus.Counter
	transitions *prometheus.CounterVec
	conflicts   prometheus.Counter
	handoffs    *prometheus.CounterVec
}

// NewOrderMetrics registers the order counters on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders accepted with stock reserved.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"to_status"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_transition_conflicts_total",
		Help: "Transitions rejected because the order moved concurrently.",
	})
	handoffs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_verifications_total",
		Help: "Handoff code verification attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(placed, transitions, conflicts, handoffs)
	return &OrderMetrics{
		placed:      placed,
		transitions: transitions,
		conflicts:   conflicts,
		handoffs:    handoffs,
	}
}

// IncPlaced increments the placed-order counter.
func (m *OrderMetrics) IncPlaced() {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.Inc()
}

// IncTransition increments the transition counter for the target status.
func (m *OrderMetrics) IncTransition(toStatus string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

// IncConflict increments the concurrent-transition conflict counter.
func (m *OrderMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// IncHandoff increments the handoff counter for the given outcome
// ("verified", "mismatch", "expired", "consumed").
func (m *OrderMetrics) IncHandoff(outcome string) {
	if m == nil || m.handoffs == nil {
		return
	}
	m.handoffs.WithLabelValues(normalizeLabel(outcome)).Inc()
}
