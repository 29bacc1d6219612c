package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("relay", reg, nil)
	require.NotNil(t, c)

	c.DelegationStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.delegationsInFlight))

	c.DelegationSettled("completed", 120*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.delegationsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.delegationsTotal.WithLabelValues("completed")))

	c.DelegationDeduplicated()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.delegationsDeduped))

	c.InterruptTransition("pending")
	c.InterruptTransition("approved")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.interruptsTotal.WithLabelValues("approved")))

	c.InterruptCacheMiss()
	c.InterruptRehydrated()
	c.InterruptCacheHit()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.interruptCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.interruptCacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.interruptRehydrated))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.DelegationStarted()
	c.DelegationSettled("failed", time.Second)
	c.DelegationDeduplicated()
	c.InterruptTransition("rejected")
	c.InterruptCacheHit()
	c.InterruptCacheMiss()
	c.InterruptRehydrated()
}

func TestTwoCollectorsSeparateRegistries(t *testing.T) {
	a := NewCollector("relay", prometheus.NewRegistry(), nil)
	b := NewCollector("relay", prometheus.NewRegistry(), nil)
	require.NotNil(t, a)
	require.NotNil(t, b)
}
