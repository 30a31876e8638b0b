// Package worklet implements the audio-callback-side processing step: a
// state machine that mixes a test oscillator and background noise into
// captured input, fills pool buffers, and emits batches to the main side,
// per spec §4.2. It is grounded on the processor-chain/state-transition
// style of audiocore.processorChainImpl (processor.go) generalized from a
// fixed effects chain to the fixed per-callback mixing pipeline this
// module requires.
package worklet

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/intonationcore/internal/coreerrors"
	"github.com/tphakala/intonationcore/internal/protocol"
	"github.com/tphakala/intonationcore/internal/telemetry/logging"
	"github.com/tphakala/intonationcore/internal/telemetry/metrics"
	"github.com/tphakala/intonationcore/internal/worklet/pool"
	"github.com/tphakala/intonationcore/internal/worklet/signal"
)

const component = "worklet"

// State is the processor lifecycle state (spec §4.2).
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Processing
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Processing:
		return "processing"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NoiseType selects the waveform used for background noise mixing.
type NoiseType int

const (
	NoiseWhite NoiseType = iota
	NoisePink
)

// TestSignalConfig configures the calibration oscillator mixed into the
// input when enabled (spec §4.2 step 2, §6.2 set_test_signal).
type TestSignalConfig struct {
	Enabled      bool
	Frequency    float64
	VolumePercent   float64 // 0..100
	NudgePercent float64 // -50..50
}

// BackgroundNoiseConfig configures the background noise mixed into the
// input when enabled (spec §4.2 step 3, §6.2 set_background_noise).
type BackgroundNoiseConfig struct {
	Enabled bool
	Level   float64 // 0..1
	Type    NoiseType
}

// Config bundles everything the worklet needs at construction time.
type Config struct {
	SampleRate    uint32
	ChunkSamples  int
	PoolSize      int
	BufferSamples int
	Batch         protocol.BatchConfig

	// Metrics is optional; a nil Collector makes every Record* call a
	// no-op, so callers that don't care about Prometheus export can leave
	// this unset.
	Metrics *metrics.Collector
}

// HealthSnapshot reports the worklet's consecutive-pool-failure count and
// the age of its last reported error, mirroring
// audiocore.AudioHealthMonitor's Snapshot for the bench CLI to print.
type HealthSnapshot struct {
	ConsecutivePoolFailures uint64
	LastError               error
	LastErrorAge            time.Duration
	Healthy                 bool
}

// Processor is the single-writer, per-callback audio worklet. It is not
// safe for concurrent use; intended to be driven by one goroutine
// standing in for the audio callback thread.
type Processor struct {
	id  uuid.UUID
	cfg Config

	state State

	pool       *pool.Pool
	testGen    *signal.Generator
	noiseGen   *signal.Generator
	metrics    *metrics.Collector

	testSignal      TestSignalConfig
	backgroundNoise BackgroundNoiseConfig
	outputToSpeakers bool

	batchConfig protocol.BatchConfig

	heldBufferID   uint32
	heldBuffer     []float32
	heldBufferLen  int
	haveHeldBuffer bool

	sequenceNumber uint32
	idGen          *protocol.IDGenerator

	consecutivePoolFailures uint64
	lastError               error
	lastErrorAt             time.Time

	inbound  chan protocol.ToWorkletMessage
	outbound chan protocol.FromWorkletEnvelope

	logger *slog.Logger
}

// New constructs a Processor in the Uninitialized state.
func New(cfg Config) (*Processor, error) {
	if cfg.SampleRate == 0 {
		return nil, coreerrors.Newf("sampleRate must be non-zero").
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if cfg.ChunkSamples <= 0 {
		return nil, coreerrors.Newf("chunkSamples must be positive, got %d", cfg.ChunkSamples).
			Component(component).Category(coreerrors.CategoryValidation).Build()
	}
	if err := cfg.Batch.Validate(); err != nil {
		return nil, err
	}

	p, err := pool.New(pool.Config{PoolSize: cfg.PoolSize, BufferSamples: cfg.BufferSamples})
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	logger := logging.ForService("intonationcore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", component, "worklet_id", id)

	return &Processor{
		id:          id,
		cfg:         cfg,
		state:       Uninitialized,
		pool:        p,
		testGen:     signal.New(1),
		noiseGen:    signal.New(2),
		metrics:     cfg.Metrics,
		batchConfig: cfg.Batch,
		idGen:       protocol.NewIDGenerator(),
		inbound:     make(chan protocol.ToWorkletMessage, 64),
		outbound:    make(chan protocol.FromWorkletEnvelope, 64),
		logger:      logger,
	}, nil
}

// ID returns the worklet instance's unique identifier, assigned at
// construction and used to correlate log lines and error reports back to a
// specific worklet (spec §3's "source id").
func (p *Processor) ID() uuid.UUID { return p.id }

// State returns the current lifecycle state.
func (p *Processor) State() State { return p.state }

// Health reports the worklet's current consecutive pool-failure count and
// the age of its last reported error, as of now.
func (p *Processor) Health(now time.Time) HealthSnapshot {
	snap := HealthSnapshot{
		ConsecutivePoolFailures: p.consecutivePoolFailures,
		LastError:               p.lastError,
		Healthy:                 p.consecutivePoolFailures == 0 && p.state != Failed,
	}
	if p.lastError != nil && !p.lastErrorAt.IsZero() {
		snap.LastErrorAge = now.Sub(p.lastErrorAt)
	}
	return snap
}

// Inbound returns the channel the main side sends control messages on.
func (p *Processor) Inbound() chan<- protocol.ToWorkletMessage { return p.inbound }

// Outbound returns the channel the main side receives data/status
// messages from.
func (p *Processor) Outbound() <-chan protocol.FromWorkletEnvelope { return p.outbound }

// Initialize transitions Uninitialized -> Initializing -> Ready.
func (p *Processor) Initialize() {
	p.state = Initializing
	p.logger.Info("worklet initializing")
	p.state = Ready
	p.logger.Info("worklet ready")
}

// SetTestSignal updates the calibration oscillator configuration.
func (p *Processor) SetTestSignal(cfg TestSignalConfig) {
	p.testSignal = cfg
}

// SetBackgroundNoise updates the background noise configuration.
func (p *Processor) SetBackgroundNoise(cfg BackgroundNoiseConfig) {
	p.backgroundNoise = cfg
}

// SetOutputToSpeakers toggles whether input is echoed to output.
func (p *Processor) SetOutputToSpeakers(enabled bool) {
	p.outputToSpeakers = enabled
}

// PoolSnapshot exposes the underlying buffer pool's current stats.
func (p *Processor) PoolSnapshot() protocol.BufferPoolStats {
	return p.pool.Snapshot()
}

// Process runs one audio callback: input is the captured microphone
// chunk, output receives what should be routed to speakers. Both must be
// len(cfg.ChunkSamples). Implements spec §4.2's seven-step processing
// sequence.
func (p *Processor) Process(input, output []float32) {
	p.drainInbound()

	if p.state != Processing {
		zero(output)
		return
	}

	mixed := make([]float32, len(input))
	copy(mixed, input)

	if p.testSignal.Enabled {
		p.mixTestSignal(mixed)
	}
	if p.backgroundNoise.Enabled {
		p.mixBackgroundNoise(mixed)
	}

	if p.outputToSpeakers {
		copy(output, mixed)
	} else {
		zero(output)
	}

	p.appendToHeldBuffer(mixed)
}

func (p *Processor) mixTestSignal(buf []float32) {
	freq := p.testSignal.Frequency * (1.0 + p.testSignal.NudgePercent/100.0)
	amplitude := p.testSignal.VolumePercent / 100.0
	if amplitude < 0 {
		amplitude = 0
	}
	if amplitude > 1 {
		amplitude = 1
	}

	cfg := signal.Config{
		Waveform:   signal.Sine,
		Frequency:  freq,
		Amplitude:  1.0, // scale ourselves so we can overwrite, not just add
		SampleRate: p.cfg.SampleRate,
	}
	gen := make([]float32, len(buf))
	if err := p.testGen.GenerateRealtime(gen, cfg); err != nil {
		p.reportError(protocol.ErrCodeProcessingFailed, err.Error())
		return
	}
	for i := range buf {
		buf[i] = gen[i] * float32(amplitude)
	}
}

func (p *Processor) mixBackgroundNoise(buf []float32) {
	waveform := signal.WhiteNoise
	if p.backgroundNoise.Type == NoisePink {
		waveform = signal.PinkNoise
	}

	cfg := signal.Config{
		Waveform:   waveform,
		Frequency:  1000, // unused by noise waveforms, kept in-range for Validate
		Amplitude:  p.backgroundNoise.Level,
		SampleRate: p.cfg.SampleRate,
	}
	noise := make([]float32, len(buf))
	if err := p.noiseGen.GenerateRealtime(noise, cfg); err != nil {
		p.reportError(protocol.ErrCodeProcessingFailed, err.Error())
		return
	}
	for i := range buf {
		buf[i] += noise[i]
	}
}

func (p *Processor) appendToHeldBuffer(chunk []float32) {
	if !p.haveHeldBuffer {
		id, data, ok := p.pool.Acquire()
		if !ok {
			p.consecutivePoolFailures++
			p.metrics.RecordPoolExhausted()
			p.lastError = coreerrors.Newf("buffer pool exhausted").
				Component(component).Category(coreerrors.CategoryResource).Build()
			p.lastErrorAt = time.Now()
			return
		}
		p.heldBufferID = id
		p.heldBuffer = data
		p.heldBufferLen = 0
		p.haveHeldBuffer = true
	}

	n := copy(p.heldBuffer[p.heldBufferLen:], chunk)
	p.heldBufferLen += n

	if p.heldBufferLen >= len(p.heldBuffer) {
		p.emitBatch()
	}
}

func (p *Processor) emitBatch() {
	seq := p.sequenceNumber
	p.sequenceNumber++
	bufferID := p.heldBufferID
	stats := p.pool.Snapshot()

	samples := make([]float32, p.heldBufferLen)
	copy(samples, p.heldBuffer[:p.heldBufferLen])

	p.pool.RecordTransfer(p.heldBufferLen)

	batch := protocol.AudioDataBatch{
		SampleRate:     p.cfg.SampleRate,
		SampleCount:    p.heldBufferLen,
		BufferLength:   len(p.heldBuffer),
		SequenceNumber: &seq,
		BufferID:       &bufferID,
		PoolStats:      &stats,
		Samples:        samples,
	}

	p.send(protocol.NewAudioDataBatch(batch))

	p.haveHeldBuffer = false
	p.heldBuffer = nil
	p.heldBufferLen = 0
}

func (p *Processor) drainInbound() {
	for {
		select {
		case msg := <-p.inbound:
			p.handleControlMessage(msg)
		default:
			return
		}
	}
}

func (p *Processor) handleControlMessage(msg protocol.ToWorkletMessage) {
	switch msg.Kind {
	case protocol.KindStartProcessing:
		p.state = Processing
	case protocol.KindStopProcessing:
		p.state = Stopped
	case protocol.KindReturnBuffer:
		if err := p.pool.Release(msg.BufferID); err != nil {
			p.reportError(protocol.ErrCodeGeneric, err.Error())
			return
		}
		p.consecutivePoolFailures = 0
	case protocol.KindUpdateBatchConfig:
		if err := msg.BatchConfig.Validate(); err != nil {
			p.reportError(protocol.ErrCodeInvalidConfiguration, err.Error())
			return
		}
		p.batchConfig = msg.BatchConfig
		p.send(protocol.NewBatchConfigUpdated(p.batchConfig))
	}
}

func (p *Processor) reportError(code protocol.WorkletErrorCode, message string) {
	p.lastError = coreerrors.Newf("%s", message).Component(component).Build()
	p.lastErrorAt = time.Now()
	p.logger.Error("worklet processing error", "code", code, "message", message)
	p.send(protocol.NewProcessingError(code, message))
}

func (p *Processor) send(msg protocol.FromWorkletMessage) {
	env := protocol.NewFromWorkletEnvelope(p.idGen, msg)
	select {
	case p.outbound <- env:
	default:
		p.logger.Warn("outbound channel full, dropping message", "kind", msg.Kind)
	}
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
