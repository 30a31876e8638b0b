package pitch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() DetectorConfig {
	return DetectorConfig{
		SampleWindowSize: 1024,
		SampleRate:       48000,
		Threshold:        0.1,
		MinFrequency:     80,
		MaxFrequency:     2000,
	}
}

func sineWindow(freq, sampleRate float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

func TestNewRejectsNonMultipleOf128(t *testing.T) {
	cfg := defaultConfig()
	cfg.SampleWindowSize = 1000
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewRejectsInvertedFrequencyRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxFrequency = 50
	_, err := New(cfg)
	require.Error(t, err)
}

func TestAnalyzeRejectsWrongWindowSize(t *testing.T) {
	d, err := New(defaultConfig())
	require.NoError(t, err)

	_, _, err = d.Analyze(make([]float32, 512))
	require.Error(t, err)
}

func TestAnalyzeSilenceReturnsNoPitch(t *testing.T) {
	d, err := New(defaultConfig())
	require.NoError(t, err)

	samples := make([]float32, 1024)
	_, ok, err := d.Analyze(samples)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzeDetectsSineFrequency(t *testing.T) {
	cfg := defaultConfig()
	d, err := New(cfg)
	require.NoError(t, err)

	samples := sineWindow(440, cfg.SampleRate, cfg.SampleWindowSize)
	result, ok, err := d.Analyze(samples)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 440.0, result.Frequency, 5.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.5)
}

func TestAnalyzeRejectsBelowMinFrequency(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinFrequency = 500
	d, err := New(cfg)
	require.NoError(t, err)

	samples := sineWindow(100, cfg.SampleRate, cfg.SampleWindowSize)
	_, ok, err := d.Analyze(samples)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEstimatedLatencyMsMatchesWindowOverSampleRate(t *testing.T) {
	cfg := defaultConfig()
	d, err := New(cfg)
	require.NoError(t, err)

	expected := 1000.0 * float64(cfg.SampleWindowSize) / cfg.SampleRate
	assert.InDelta(t, expected, d.EstimatedLatencyMs(), 0.001)
}

func TestParabolicInterpolateBoundaryFallsBackToInteger(t *testing.T) {
	cmnd := []float64{1.0, 0.5, 0.2}
	assert.Equal(t, 0.0, parabolicInterpolate(cmnd, 0))
	assert.Equal(t, 2.0, parabolicInterpolate(cmnd, 2))
}

func TestSelectLagPrefersFirstBelowThreshold(t *testing.T) {
	cmnd := []float64{1, 0.9, 0.8, 0.05, 0.02, 0.5}
	tau, ok := selectLag(cmnd, 1, 5, 0.1)
	require.True(t, ok)
	assert.Equal(t, 3, tau)
}

func TestSelectLagFallsBackToArgmin(t *testing.T) {
	cmnd := []float64{1, 0.9, 0.8, 0.7, 0.6}
	tau, ok := selectLag(cmnd, 1, 4, 0.1)
	require.True(t, ok)
	assert.Equal(t, 4, tau)
}
