// Package pitch implements a YIN-family pitch detector over fixed-size
// sample windows, per spec §4.3. Grounded on
// original_source/pitch-toy/engine/audio/pitch_detector.rs for the
// configuration/validation contract and thresholds; the difference
// function itself is hand-implemented (the Rust original delegates it to
// an external crate that has no Go equivalent in the retrieved corpus).
package pitch

import (
	"math"
	"time"

	"github.com/tphakala/intonationcore/internal/coreerrors"
)

const component = "pitch-detector"

// EnergyGate is the default RMS floor below which no pitch is reported
// (approximately -60dB), matching the reference implementation's
// ENERGY_THRESHOLD. Configurable per spec's open question about making
// the gate tunable; see config.PitchConfig.EnergyGate.
const EnergyGate = 0.001

// ConfidenceFloor is the default minimum confidence for a result to be
// reported. Configurable via config.PitchConfig.ConfidenceFloor.
const ConfidenceFloor = 0.5

// DetectorConfig parameterizes a Detector.
type DetectorConfig struct {
	SampleWindowSize int
	SampleRate       float64
	Threshold        float64 // YIN absolute threshold, typically 0.1-0.15
	MinFrequency     float64
	MaxFrequency     float64
	EnergyGate       float64
	ConfidenceFloor  float64
}

// Validate checks the configuration invariants (spec §4.3 + the Rust
// reference's window-size and range checks).
func (c DetectorConfig) Validate() error {
	if c.SampleWindowSize <= 0 {
		return coreerrors.Newf("sampleWindowSize must be positive, got %d", c.SampleWindowSize).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if c.SampleWindowSize%128 != 0 {
		return coreerrors.Newf("sampleWindowSize must be a multiple of 128, got %d", c.SampleWindowSize).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if c.SampleRate <= 0 {
		return coreerrors.Newf("sampleRate must be positive, got %f", c.SampleRate).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return coreerrors.Newf("threshold must be in [0,1], got %f", c.Threshold).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if c.MinFrequency <= 0 {
		return coreerrors.Newf("minFrequency must be positive, got %f", c.MinFrequency).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if c.MaxFrequency <= c.MinFrequency {
		return coreerrors.Newf("maxFrequency (%f) must exceed minFrequency (%f)", c.MaxFrequency, c.MinFrequency).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	return nil
}

// Result is a single pitch estimate.
type Result struct {
	Frequency   float64
	Confidence  float64
	Clarity     float64
	TimestampMs float64
}

// Detector runs the YIN algorithm over fixed-size windows. Configuration
// changes replace the detector rather than mutate it in place (spec
// §4.3: "Configuration changes replace the internal detector ...
// Invalid configurations are rejected without mutating state").
type Detector struct {
	cfg              DetectorConfig
	nyquist          float64
	minPeriodSamples int
	maxPeriodSamples int
	diffBuf          []float64 // scratch, reused across Analyze calls
}

// New validates cfg and precomputes the period bounds and Nyquist limit.
func New(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	maxPeriod := int(math.Floor(cfg.SampleRate / cfg.MinFrequency))
	minPeriod := int(math.Ceil(cfg.SampleRate / cfg.MaxFrequency))
	if minPeriod < 2 {
		minPeriod = 2
	}
	if maxPeriod >= cfg.SampleWindowSize {
		maxPeriod = cfg.SampleWindowSize - 1
	}
	if maxPeriod <= minPeriod {
		return nil, coreerrors.Newf("window size %d too small for frequency range [%f, %f]",
			cfg.SampleWindowSize, cfg.MinFrequency, cfg.MaxFrequency).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}

	return &Detector{
		cfg:              cfg,
		nyquist:          cfg.SampleRate / 2.0,
		minPeriodSamples: minPeriod,
		maxPeriodSamples: maxPeriod,
		diffBuf:          make([]float64, maxPeriod+1),
	}, nil
}

// WindowSize returns the configured sample window size.
func (d *Detector) WindowSize() int { return d.cfg.SampleWindowSize }

// EstimatedLatencyMs reports the window-induced latency for diagnostics
// only; the detector never buffers beyond the window itself (spec §4.3).
func (d *Detector) EstimatedLatencyMs() float64 {
	return 1000.0 * float64(d.cfg.SampleWindowSize) / d.cfg.SampleRate
}

// Analyze runs the detector over exactly SampleWindowSize samples,
// returning ok=false when no pitch clears the energy gate, lag search, or
// confidence floor.
func (d *Detector) Analyze(samples []float32) (Result, bool, error) {
	if len(samples) != d.cfg.SampleWindowSize {
		return Result{}, false, coreerrors.Newf("expected %d samples, got %d", d.cfg.SampleWindowSize, len(samples)).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}

	energyGate := d.cfg.EnergyGate
	if energyGate <= 0 {
		energyGate = EnergyGate
	}
	confidenceFloor := d.cfg.ConfidenceFloor
	if confidenceFloor <= 0 {
		confidenceFloor = ConfidenceFloor
	}

	if rms(samples) <= energyGate {
		return Result{}, false, nil
	}

	cmnd := d.cumulativeMeanNormalizedDifference(samples)

	tau, found := selectLag(cmnd, d.minPeriodSamples, d.maxPeriodSamples, d.cfg.Threshold)
	if !found {
		return Result{}, false, nil
	}

	refinedTau := parabolicInterpolate(cmnd, tau)
	if refinedTau <= 0 {
		return Result{}, false, nil
	}

	frequency := d.cfg.SampleRate / refinedTau
	if frequency < d.cfg.MinFrequency || frequency > d.cfg.MaxFrequency || frequency > d.nyquist {
		return Result{}, false, nil
	}

	clarity := clamp01(cmnd[tau])
	confidence := 1.0 - clarity
	if confidence < confidenceFloor {
		return Result{}, false, nil
	}

	return Result{
		Frequency:   frequency,
		Confidence:  confidence,
		Clarity:     clarity,
		TimestampMs: float64(time.Now().UnixNano()) / 1e6,
	}, true, nil
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// cumulativeMeanNormalizedDifference computes YIN's d'(tau) for tau in
// [0, maxPeriodSamples], reusing d.diffBuf as scratch space.
func (d *Detector) cumulativeMeanNormalizedDifference(samples []float32) []float64 {
	maxTau := d.maxPeriodSamples
	diff := d.diffBuf
	diff[0] = 1.0

	var runningSum float64
	for tau := 1; tau <= maxTau; tau++ {
		var sum float64
		for i := 0; i < len(samples)-tau; i++ {
			delta := float64(samples[i]) - float64(samples[i+tau])
			sum += delta * delta
		}
		runningSum += sum
		if runningSum == 0 {
			diff[tau] = 1.0
		} else {
			diff[tau] = sum * float64(tau) / runningSum
		}
	}
	return diff
}

// selectLag picks the smallest tau in [minTau, maxTau] with d'(tau) below
// threshold; absent that, it falls back to the global argmin over the
// search range (spec §4.3 step 3).
func selectLag(cmnd []float64, minTau, maxTau int, threshold float64) (int, bool) {
	bestTau := -1
	bestVal := math.Inf(1)

	for tau := minTau; tau <= maxTau; tau++ {
		if cmnd[tau] < threshold {
			return tau, true
		}
		if cmnd[tau] < bestVal {
			bestVal = cmnd[tau]
			bestTau = tau
		}
	}
	if bestTau < 0 {
		return 0, false
	}
	return bestTau, true
}

// parabolicInterpolate refines an integer lag to a fractional sample
// position using its neighbors, falling back to the integer lag at the
// search-range boundary.
func parabolicInterpolate(cmnd []float64, tau int) float64 {
	if tau <= 0 || tau >= len(cmnd)-1 {
		return float64(tau)
	}

	s0, s1, s2 := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
	denom := 2*s1 - s2 - s0
	if denom == 0 {
		return float64(tau)
	}
	adjustment := (s2 - s0) / (2 * denom)
	return float64(tau) + adjustment
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
