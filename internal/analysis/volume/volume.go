// Package volume implements the stateless RMS/peak volume detector run
// once per received audio batch, per spec §4.6.
package volume

import "math"

// Floor is the amplitude clamp used before taking dB, preventing -Inf for
// silent buffers (spec §4.6: "20*log10(max(amp, epsilon))").
const Floor = 1e-10

// Result is a single volume measurement.
type Result struct {
	RMS    float64
	Peak   float64
	RMSDB  float64
	PeakDB float64
}

// Detector computes Result from a sample window. It carries no state
// beyond its configured floor, so one instance is safe to reuse across
// batches and across goroutines.
type Detector struct {
	floor float64
}

// New returns a Detector using Floor as its amplitude clamp.
func New() *Detector {
	return &Detector{floor: Floor}
}

// Analyze computes rms, peak and their dB values for samples. An empty
// slice yields zero RMS and Peak, with RMSDB and PeakDB at the floor's dB
// value.
func (d *Detector) Analyze(samples []float32) Result {
	if len(samples) == 0 {
		return Result{RMSDB: amplitudeToDB(0, d.floor), PeakDB: amplitudeToDB(0, d.floor)}
	}

	var sumSquares float64
	var peak float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
		if abs := math.Abs(v); abs > peak {
			peak = abs
		}
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))

	return Result{
		RMS:    rms,
		Peak:   peak,
		RMSDB:  amplitudeToDB(rms, d.floor),
		PeakDB: amplitudeToDB(peak, d.floor),
	}
}

func amplitudeToDB(amplitude, floor float64) float64 {
	return 20.0 * math.Log10(math.Max(amplitude, floor))
}
