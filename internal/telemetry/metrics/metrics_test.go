package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/intonationcore/internal/protocol"
)

func TestRegisterIsIdempotent(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()

	require.NoError(t, c.Register(reg))
	require.NoError(t, c.Register(reg))
}

func TestRecordPoolStatsUpdatesGauges(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.RecordPoolStats(protocol.BufferPoolStats{PoolHitRate: 97.5, BufferUtilizationPercent: 42.0})

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "intonationcore_pool_hit_rate_percent" {
			found = true
			require.Len(t, mf.Metric, 1)
			assert.InDelta(t, 97.5, mf.Metric[0].GetGauge().GetValue(), 0.001)
		}
	}
	assert.True(t, found, "expected intonationcore_pool_hit_rate_percent metric")
}

func TestNilCollectorRecordMethodsAreNoOps(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordPoolStats(protocol.BufferPoolStats{})
		c.RecordPoolExhausted()
		c.RecordPitchDetection(time.Millisecond, true)
		c.RecordVolume(-20)
	})
}

func TestRecordPitchDetectionIncrementsCounterOnlyWhenDetected(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.RecordPitchDetection(5*time.Millisecond, false)
	c.RecordPitchDetection(5*time.Millisecond, true)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var counter *dto.Metric
	for _, mf := range metricFamilies {
		if mf.GetName() == "intonationcore_pitch_detected_total" {
			counter = mf.Metric[0]
		}
	}
	require.NotNil(t, counter)
	assert.Equal(t, float64(1), counter.GetCounter().GetValue())
}
