package volume

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeSilence(t *testing.T) {
	d := New()
	samples := make([]float32, 512)
	r := d.Analyze(samples)

	assert.Equal(t, 0.0, r.RMS)
	assert.Equal(t, 0.0, r.Peak)
	assert.InDelta(t, 20*math.Log10(Floor), r.RMSDB, 0.01)
}

func TestAnalyzeFullScaleSine(t *testing.T) {
	d := New()
	samples := make([]float32, 48000)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}
	r := d.Analyze(samples)

	assert.InDelta(t, 0.7071, r.RMS, 0.01) // sine RMS = amplitude/sqrt(2)
	assert.InDelta(t, 1.0, r.Peak, 0.01)
	assert.Less(t, r.RMSDB, 0.0)
}

func TestAnalyzeEmptySamples(t *testing.T) {
	d := New()
	r := d.Analyze(nil)
	assert.Equal(t, 0.0, r.RMS)
}

func TestAnalyzeDBMonotonicWithAmplitude(t *testing.T) {
	d := New()
	quiet := d.Analyze([]float32{0.01, -0.01, 0.01, -0.01})
	loud := d.Analyze([]float32{0.5, -0.5, 0.5, -0.5})

	assert.Less(t, quiet.RMSDB, loud.RMSDB)
}
