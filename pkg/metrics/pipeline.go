package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records counters for the checkout-to-order pipeline.
type PipelineMetrics struct {
	sessionsCreated     prometheus.Counter
	ordersMaterialized  prometheus.Counter
	inventoryClamps     prometheus.Counter
	providerFailures    prometheus.Counter
	materializeDuration prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Checkout sessions created from carts.",
	})
	ordersMaterialized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_materialized_total",
		Help: "Orders materialized from paid checkout sessions.",
	})
	inventoryClamps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_oversell_clamps_total",
		Help: "Inventory decrements clamped at zero during order materialization.",
	})
	providerFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_provider_failures_total",
		Help: "Payment provider calls that failed before returning a status.",
	})
	materializeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_materialize_duration_seconds",
		Help:    "Duration of order materialization in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(sessionsCreated, ordersMaterialized, inventoryClamps, providerFailures, materializeDuration)
	return &PipelineMetrics{
		sessionsCreated:     sessionsCreated,
		ordersMaterialized:  ordersMaterialized,
		inventoryClamps:     inventoryClamps,
		providerFailures:    providerFailures,
		materializeDuration: materializeDuration,
	}
}

// IncSessionsCreated increments the session creation counter.
func (p *PipelineMetrics) IncSessionsCreated() {
	if p == nil || p.sessionsCreated == nil {
		return
	}
	p.sessionsCreated.Inc()
}

// IncOrdersMaterialized increments the order materialization counter.
func (p *PipelineMetrics) IncOrdersMaterialized() {
	if p == nil || p.ordersMaterialized == nil {
		return
	}
	p.ordersMaterialized.Inc()
}

// IncInventoryClamps increments the oversell clamp counter.
func (p *PipelineMetrics) IncInventoryClamps() {
	if p == nil || p.inventoryClamps == nil {
		return
	}
	p.inventoryClamps.Inc()
}

// IncProviderFailures increments the payment provider failure counter.
func (p *PipelineMetrics) IncProviderFailures() {
	if p == nil || p.providerFailures == nil {
		return
	}
	p.providerFailures.Inc()
}

// ObserveMaterializeDuration records how long a materialization took.
func (p *PipelineMetrics) ObserveMaterializeDuration(duration time.Duration) {
	if p == nil || p.materializeDuration == nil {
		return
	}
	p.materializeDuration.Observe(duration.Seconds())
}
