package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.Transition("live", nil)
	c.Transition("live", errors.New("conflict"))
	c.VendorCall("acquire", nil)
	c.Reconciled()
	c.UserOnline()
	c.UserOnline()
	c.UserOffline()
	c.Dropped("backpressure")
	c.DetachedFailure("session.start.media")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("live", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("live", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordingCalls.WithLabelValues("acquire", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconciled))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.onlineUsers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.droppedEvents.WithLabelValues("backpressure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.detachedFaults.WithLabelValues("session.start.media")))
}

func TestCollectorRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewCollector()))
}

func TestNilCollectorIsSilent(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Transition("live", nil)
		c.VendorCall("start", errors.New("x"))
		c.Reconciled()
		c.UserOnline()
		c.UserOffline()
		c.Dropped("rate_limited")
		c.DetachedFailure("x")
	})
}
