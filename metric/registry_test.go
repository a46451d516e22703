package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUnregister(t *testing.T) {
	reg := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prcore_presence_active_plugins",
		Help: "test gauge",
	})

	require.NoError(t, reg.Register("presence", "active_plugins", gauge))

	// Same key twice is rejected.
	err := reg.Register("presence", "active_plugins", gauge)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.True(t, reg.Unregister("presence", "active_plugins"))
	assert.False(t, reg.Unregister("presence", "active_plugins"))
}

func TestCoreMetricsRegistered(t *testing.T) {
	reg := NewMetricsRegistry()
	require.NotNil(t, reg.Metrics)

	// Core collectors are already owned by the registry; re-registering the
	// same collector must fail.
	err := reg.PrometheusRegistry().Register(reg.Metrics.NATSConnected)
	assert.Error(t, err)
}
