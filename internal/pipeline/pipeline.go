// Package pipeline implements the main-thread orchestrator: it owns the
// audio-context lifecycle, drains worklet messages, routes batches to the
// volume and pitch detectors and then the note mapper, and exposes a pull
// interface for the latest AudioAnalysis, per spec §4.7. Grounded on
// audiocore.managerImpl (manager.go) for the mutex-guarded lifecycle and
// bounded-channel drain loop, and on
// audiocore.AudioHealthMonitor (health_monitor.go) for the
// recreation-attempt bookkeeping style.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/intonationcore/internal/analysis/pitch"
	"github.com/tphakala/intonationcore/internal/analysis/volume"
	"github.com/tphakala/intonationcore/internal/coreerrors"
	"github.com/tphakala/intonationcore/internal/notemap"
	"github.com/tphakala/intonationcore/internal/protocol"
	"github.com/tphakala/intonationcore/internal/telemetry/logging"
	"github.com/tphakala/intonationcore/internal/telemetry/metrics"
)

const component = "pipeline"

// recreateBackoffUnit/maxRecreateBackoff bound the delay Recreate waits
// before returning to Running, scaled by attempt count, per SPEC_FULL.md's
// "bounded pipeline recreation with backoff".
const (
	recreateBackoffUnit = 10 * time.Millisecond
	maxRecreateBackoff  = 100 * time.Millisecond
)

// defaultFork is the A4=440Hz concert-pitch reference used when a
// Pipeline's Config does not supply one.
var defaultFork = notemap.Fork{MIDINote: 69, Frequency: 440}

// State is the pipeline lifecycle state (spec §4.7).
type State int

const (
	Uninitialized State = iota
	Initializing
	Running
	Suspended
	Closed
	Recreating
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Closed:
		return "closed"
	case Recreating:
		return "recreating"
	default:
		return "unknown"
	}
}

// PermissionState is the separate microphone-permission sum type (spec
// §4.7: "Permission state is a separate ... sum").
type PermissionState int

const (
	PermissionNotRequested PermissionState = iota
	PermissionRequested
	PermissionGranted
	PermissionDenied
)

// AudioAnalysis merges the most recent volume, pitch, and intonation
// measurements, per spec §2's data flow ("mapper produces musical result
// -> merged analysis record") and §4.7's collection of "(volume, pitch,
// intonation) results for downstream layers".
type AudioAnalysis struct {
	Volume      *volume.Result
	Pitch       *pitch.Result
	Intonation  *notemap.MusicalNote
	TimestampMs float64
}

// Config bundles orchestrator-level settings.
type Config struct {
	MaxRecreationAttempts int
	PitchConfig           pitch.DetectorConfig

	// Fork and TuningSystem seed the note mapper; a zero Fork defaults to
	// A4=440Hz equal temperament. Both can be replaced afterward via
	// ConfigureTuningSystem (spec §6.2 configure_tuning_system).
	Fork         notemap.Fork
	TuningSystem notemap.TuningSystem

	// Metrics is optional; a nil Collector makes every Record* call a
	// no-op.
	Metrics *metrics.Collector
}

// Pipeline feeds the messages of one worklet's outbound channel to the
// volume and pitch detectors. Every method takes an internal mutex, so
// calls from several goroutines are serialized; it is designed to be
// driven by a single "main thread" goroutine, matching the
// two-cooperating-contexts model spec §1 describes.
type Pipeline struct {
	id  uuid.UUID
	cfg Config

	mu    sync.Mutex
	state State

	permission PermissionState

	volumeDetector *volume.Detector
	pitchDetector  *pitch.Detector
	metrics        *metrics.Collector

	fork         notemap.Fork
	tuningSystem notemap.TuningSystem

	lastVolume     *volume.Result
	lastPitch      *pitch.Result
	lastIntonation *notemap.MusicalNote

	errs []error

	recreationAttempts int

	logger *slog.Logger
}

// New validates cfg and constructs a Pipeline in the Uninitialized state.
func New(cfg Config) (*Pipeline, error) {
	pitchDetector, err := pitch.New(cfg.PitchConfig)
	if err != nil {
		return nil, err
	}

	fork := cfg.Fork
	if fork.Frequency <= 0 {
		fork = defaultFork
	}

	id := uuid.New()
	logger := logging.ForService("intonationcore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", component, "pipeline_id", id)

	return &Pipeline{
		id:             id,
		cfg:            cfg,
		state:          Uninitialized,
		permission:     PermissionNotRequested,
		volumeDetector: volume.New(),
		pitchDetector:  pitchDetector,
		metrics:        cfg.Metrics,
		fork:           fork,
		tuningSystem:   cfg.TuningSystem,
		logger:         logger,
	}, nil
}

// ID returns the pipeline instance's unique identifier, used to correlate
// log lines and analysis records back to a specific pipeline (spec §3's
// "source id").
func (p *Pipeline) ID() uuid.UUID { return p.id }

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PermissionState returns the current microphone permission state (spec
// §6.2 collect_permission_state).
func (p *Pipeline) PermissionState() PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// SetPermissionState records a permission transition driven by the host.
func (p *Pipeline) SetPermissionState(s PermissionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = s
}

// Initialize enforces initialization order: Uninitialized -> Initializing
// -> Running.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Uninitialized {
		return coreerrors.Newf("pipeline already initialized, state=%s", p.state).
			Component(component).Category(coreerrors.CategoryState).Build()
	}

	p.state = Initializing
	p.logger.Info("pipeline initializing")
	p.state = Running
	p.logger.Info("pipeline running")
	return nil
}

// Suspend transitions Running -> Suspended.
func (p *Pipeline) Suspend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Suspended
	p.logger.Info("pipeline suspended")
}

// Resume transitions Suspended -> Running.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Running
	p.logger.Info("pipeline resumed")
}

// Close transitions to Closed, a terminal state.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Closed
	p.logger.Info("pipeline closed")
}

// Recreate attempts stream recreation after a fatal worklet failure,
// bounded by cfg.MaxRecreationAttempts (spec §4.7). Each attempt waits a
// short backoff (scaled by attempt count, capped at maxRecreateBackoff)
// before returning to Running, so repeated failures don't spin tight.
// Returns an error once the bound is exceeded; the caller should then
// surface a fatal Not-supported/Stream-init-failed error per spec §7.
func (p *Pipeline) Recreate(ctx context.Context) error {
	p.mu.Lock()
	if p.recreationAttempts >= p.cfg.MaxRecreationAttempts {
		p.mu.Unlock()
		return coreerrors.Newf("exceeded max recreation attempts (%d)", p.cfg.MaxRecreationAttempts).
			Component(component).Category(coreerrors.CategoryLimit).Build()
	}

	p.state = Recreating
	p.recreationAttempts++
	attempt := p.recreationAttempts
	p.logger.Warn("recreating pipeline", "attempt", attempt, "max", p.cfg.MaxRecreationAttempts)
	p.mu.Unlock()

	backoff := time.Duration(attempt) * recreateBackoffUnit
	if backoff > maxRecreateBackoff {
		backoff = maxRecreateBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
	}

	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()
	return nil
}

// ConfigureTuningSystem replaces the note mapper's tuning system and
// reference fork (spec §6.2 configure_tuning_system). forkFrequency must be
// positive; an invalid fork is rejected without mutating state.
func (p *Pipeline) ConfigureTuningSystem(system notemap.TuningSystem, forkMIDINote int, forkFrequency float32) error {
	if forkFrequency <= 0 {
		return coreerrors.Newf("forkFrequency must be positive, got %f", forkFrequency).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tuningSystem = system
	p.fork = notemap.Fork{MIDINote: forkMIDINote, Frequency: forkFrequency}
	p.logger.Info("tuning system reconfigured", "kind", system.Kind, "fork_midi_note", forkMIDINote, "fork_frequency", forkFrequency)
	return nil
}

// ConfigurePitch validates cfg and, if valid, replaces the internal pitch
// detector (spec §4.3: "Configuration changes replace the internal
// detector ... Invalid configurations are rejected without mutating
// state."). Returns the validation error without touching the running
// detector when cfg is invalid.
func (p *Pipeline) ConfigurePitch(cfg pitch.DetectorConfig) error {
	newDetector, err := pitch.New(cfg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pitchDetector = newDetector
	p.cfg.PitchConfig = cfg
	p.logger.Info("pitch detector reconfigured", "window", cfg.SampleWindowSize, "threshold", cfg.Threshold)
	return nil
}

// Tick drains one round of pending messages from the worklet's outbound
// channel and processes them per spec §4.7's per-tick flow. It returns
// the control messages (ReturnBuffer, etc.) that must be sent back to the
// worklet's inbound channel. Decoupled from the concrete worklet type so
// the orchestrator only depends on the wire protocol, matching the
// "two cooperating single-threaded contexts" rendering described in
// DESIGN.md.
func (p *Pipeline) Tick(fromWorklet <-chan protocol.FromWorkletEnvelope) []protocol.ToWorkletMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var toWorklet []protocol.ToWorkletMessage

	for {
		select {
		case env := <-fromWorklet:
			toWorklet = append(toWorklet, p.handleFromWorklet(env)...)
		default:
			return toWorklet
		}
	}
}

func (p *Pipeline) handleFromWorklet(env protocol.FromWorkletEnvelope) []protocol.ToWorkletMessage {
	switch env.Payload.Kind {
	case protocol.KindAudioDataBatch:
		return p.handleAudioDataBatch(env.Payload.AudioDataBatch)
	case protocol.KindProcessingError:
		p.recordError(&env.Payload.Error)
		return nil
	case protocol.KindBatchConfigUpdated:
		return nil
	default:
		return nil
	}
}

func (p *Pipeline) handleAudioDataBatch(batch protocol.AudioDataBatch) []protocol.ToWorkletMessage {
	volResult := p.volumeDetector.Analyze(batch.Samples)
	p.lastVolume = &volResult
	p.metrics.RecordVolume(volResult.RMSDB)

	if len(batch.Samples) == p.pitchDetector.WindowSize() {
		start := time.Now()
		result, ok, err := p.pitchDetector.Analyze(batch.Samples)
		p.metrics.RecordPitchDetection(time.Since(start), ok)
		if err != nil {
			p.recordError(err)
		} else if ok {
			p.lastPitch = &result
			note := notemap.FrequencyToNote(float32(result.Frequency), p.fork, p.tuningSystem)
			p.lastIntonation = &note
		}
	}

	if batch.BufferID == nil {
		return nil
	}
	return []protocol.ToWorkletMessage{protocol.ReturnBuffer(*batch.BufferID)}
}

func (p *Pipeline) recordError(err error) {
	p.errs = append(p.errs, err)
	p.logger.Error("pipeline recorded worklet error", "error", err)
	const maxRetainedErrors = 100
	if len(p.errs) > maxRetainedErrors {
		p.errs = p.errs[len(p.errs)-maxRetainedErrors:]
	}
}

// CollectAudioAnalysis merges the most recent volume and pitch results
// (spec §4.7 step 4, §6.2 collect_audio_analysis). Returns ok=false when
// neither measurement is available yet.
func (p *Pipeline) CollectAudioAnalysis(now time.Time) (AudioAnalysis, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastVolume == nil && p.lastPitch == nil {
		return AudioAnalysis{}, false
	}

	return AudioAnalysis{
		Volume:      p.lastVolume,
		Pitch:       p.lastPitch,
		Intonation:  p.lastIntonation,
		TimestampMs: float64(now.UnixNano()) / 1e6,
	}, true
}

// CollectErrors returns and clears the bounded error list (spec §6.2
// collect_errors).
func (p *Pipeline) CollectErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := p.errs
	p.errs = nil
	return errs
}
