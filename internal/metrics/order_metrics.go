package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks order placement and fulfilment. A nil *OrderMetrics
// is valid and records nothing.
type OrderMetrics struct {
	placed         prometheus.Counter
	rejected       *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	restockedUnits prometheus.Counter
	placeDuration  prometheus.Histogram
}

func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		placed: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders accepted",
		})),
		rejected: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_rejected_total",
			Help: "Total number of order placements rejected, by reason",
		}, []string{"reason"})),
		transitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of order status transitions, by target status",
		}, []string{"status"})),
		restockedUnits: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_restocked_units_total",
			Help: "Total number of units returned to stock by cancellations",
		})),
		placeDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_place_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		})),
	}
}

// register returns the already registered collector when the same metric
// was registered before, so constructors can run more than once per process.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type: %T", are.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

func (m *OrderMetrics) RecordPlaced(d time.Duration) {
	if m == nil {
		return
	}
	m.placed.Inc()
	m.placeDuration.Observe(d.Seconds())
}

func (m *OrderMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *OrderMetrics) RecordTransition(status string, restocked int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
	if restocked > 0 {
		m.restockedUnits.Add(float64(restocked))
	}
}
