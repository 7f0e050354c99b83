package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)
	require.NotNil(t, m)

	m.RecordPlaced(20 * time.Millisecond)
	m.RecordPlaced(30 * time.Millisecond)
	m.RecordRejected("insufficient_stock")
	m.RecordTransition("cancelled", 3)
	m.RecordTransition("shipped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.placed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("cancelled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.restockedUnits))
	assert.Equal(t, 1, testutil.CollectAndCount(m.placeDuration))
}

func TestOrderMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordPlaced(time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.placed))
}

func TestOrderMetrics_Nil(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.RecordPlaced(time.Second)
		m.RecordRejected("x")
		m.RecordTransition("cancelled", 1)
	})
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}
