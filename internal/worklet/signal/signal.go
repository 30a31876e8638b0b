// Package signal implements the worklet-side test signal generator:
// deterministic waveform production for both finite-duration buffers and
// realtime streaming, per spec §4.5. It is grounded on
// original_source/src/modules/audio_foundations/signal_generator.rs (the
// Rust implementation this module's numeric behavior was distilled from),
// rendered in the style of the corpus's buffer/processor types.
package signal

import (
	"math"
	"math/rand"

	"github.com/tphakala/intonationcore/internal/coreerrors"
)

const component = "signal-generator"

// Waveform enumerates the supported waveform types.
type Waveform int

const (
	Sine Waveform = iota
	Sawtooth
	Square
	Triangle
	Sweep
	WhiteNoise
	PinkNoise
)

// Config describes a signal request, validated per spec §4.5.
type Config struct {
	Waveform   Waveform
	Frequency  float64 // Hz
	Amplitude  float64 // 0..1
	SampleRate uint32
	// DurationMs is > 0 for finite generation, 0 for realtime streaming.
	DurationMs uint32
	// SweepEndFrequency is only consulted when Waveform == Sweep in
	// finite mode.
	SweepEndFrequency float64
}

// Validate checks the field invariants from spec §4.5.
func (c Config) Validate() error {
	if c.SampleRate == 0 {
		return coreerrors.Newf("sampleRate must be non-zero").
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	nyquist := float64(c.SampleRate) / 2.0
	if c.Frequency <= 0 || c.Frequency > nyquist {
		return coreerrors.Newf("frequency must be in (0, %f], got %f", nyquist, c.Frequency).
			Component(component).Category(coreerrors.CategoryValidation).
			Context("nyquist", nyquist).Build()
	}
	if c.Amplitude < 0 || c.Amplitude > 1 {
		return coreerrors.Newf("amplitude must be in [0, 1], got %f", c.Amplitude).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if c.DurationMs > 300_000 {
		return coreerrors.Newf("durationMs must be <= 300000, got %d", c.DurationMs).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	return nil
}

// pinkNoiseState holds Paul Kellett's six-pole filter state, per-instance
// so concurrent Generators never share noise coloring.
type pinkNoiseState struct {
	b0, b1, b2, b3, b4, b5, b6 float64
}

// sample advances the filter by one white-noise input and returns the
// next pink noise sample, scaled as in the reference implementation.
func (s *pinkNoiseState) sample(white float64) float64 {
	s.b0 = 0.99886*s.b0 + white*0.0555179
	s.b1 = 0.99332*s.b1 + white*0.0750759
	s.b2 = 0.96900*s.b2 + white*0.1538520
	s.b3 = 0.86650*s.b3 + white*0.3104856
	s.b4 = 0.55000*s.b4 + white*0.5329522
	s.b5 = -0.7616*s.b5 - white*0.0168980

	pink := s.b0 + s.b1 + s.b2 + s.b3 + s.b4 + s.b5 + s.b6 + white*0.5362
	s.b6 = white * 0.115926

	return pink * 0.11
}

// Generator is a stateful, single-instance waveform source. Phase is
// persisted across realtime calls and wraps at 2π; pink noise state is
// likewise per-instance (spec §4.5).
type Generator struct {
	rng        *rand.Rand
	phase      float64
	pink       pinkNoiseState
	sweepPhase float64
}

// New creates a Generator. rngSeed makes white/pink noise reproducible in
// tests; pass a value derived from a real entropy source in production
// wiring.
func New(rngSeed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(rngSeed))} //nolint:gosec // test-signal generator, not cryptographic
}

// GenerateFinite renders exactly the number of samples implied by
// cfg.DurationMs at cfg.SampleRate into a fresh slice.
func (g *Generator) GenerateFinite(cfg Config) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DurationMs == 0 {
		return nil, coreerrors.Newf("durationMs must be positive for finite generation").
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}

	sampleCount := int(float64(cfg.SampleRate) * float64(cfg.DurationMs) / 1000.0)
	out := make([]float32, sampleCount)
	g.fill(out, cfg)
	return out, nil
}

// GenerateRealtime renders len(buf) samples into buf in place, continuing
// phase from the previous call. Sweep falls back to a stationary sine at
// cfg.Frequency per spec §4.5 ("not supported in realtime mode").
func (g *Generator) GenerateRealtime(buf []float32, cfg Config) error {
	cfg.DurationMs = 0
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Waveform == Sweep {
		cfg.Waveform = Sine
	}
	g.fill(buf, cfg)
	return nil
}

func (g *Generator) fill(out []float32, cfg Config) {
	angularStep := 2.0 * math.Pi * cfg.Frequency / float64(cfg.SampleRate)

	for i := range out {
		var sample float64
		switch cfg.Waveform {
		case Sine:
			sample = math.Sin(g.phase)
		case Sawtooth:
			sample = 2.0*(g.phase/(2.0*math.Pi)) - 1.0
		case Square:
			if math.Sin(g.phase) >= 0 {
				sample = 1.0
			} else {
				sample = -1.0
			}
		case Triangle:
			norm := g.phase / (2.0 * math.Pi)
			sample = 2.0*math.Abs(2.0*(norm-math.Floor(norm+0.5))) - 1.0
		case Sweep:
			sample = g.sweepSample(cfg, float64(i)/float64(cfg.SampleRate))
		case WhiteNoise:
			sample = g.rng.Float64()*2.0 - 1.0
		case PinkNoise:
			white := g.rng.Float64()*2.0 - 1.0
			sample = g.pink.sample(white)
		}

		out[i] = float32(cfg.Amplitude * sample)

		g.phase += angularStep
		if g.phase >= 2.0*math.Pi {
			g.phase -= 2.0 * math.Pi
		}
	}
}

// sweepSample computes a linear-frequency-sweep sample at elapsed time t
// (seconds), only reachable from finite-mode generation.
func (g *Generator) sweepSample(cfg Config, t float64) float64 {
	end := cfg.SweepEndFrequency
	if end <= 0 {
		end = cfg.Frequency
	}
	durationSeconds := float64(cfg.DurationMs) / 1000.0
	if durationSeconds <= 0 {
		durationSeconds = 1.0
	}
	rate := (end - cfg.Frequency) / durationSeconds
	instantaneousFreq := cfg.Frequency + rate*t
	g.sweepPhase += 2.0 * math.Pi * instantaneousFreq / float64(cfg.SampleRate)
	if g.sweepPhase >= 2.0*math.Pi {
		g.sweepPhase -= 2.0 * math.Pi
	}
	return math.Sin(g.sweepPhase)
}
