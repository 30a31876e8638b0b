// Package protocol defines the typed message protocol exchanged between
// the worklet (audio callback) side and the main (UI) side of
// intonationcore. Every message is a tagged union carried in an Envelope
// with a monotonically wrapping message id. Each message type has a
// Validate method that rejects unknown tags and invalid payloads; building
// or enveloping a message does not call it, so a message is checked only
// where a caller invokes Validate.
package protocol

import (
	"sync/atomic"

	"github.com/tphakala/intonationcore/internal/coreerrors"
)

const component = "protocol"

// ToWorkletKind tags a ToWorkletMessage payload.
type ToWorkletKind int

const (
	KindStartProcessing ToWorkletKind = iota
	KindStopProcessing
	KindUpdateBatchConfig
	KindReturnBuffer
)

// FromWorkletKind tags a FromWorkletMessage payload.
type FromWorkletKind int

const (
	KindAudioDataBatch FromWorkletKind = iota
	KindProcessingError
	KindBatchConfigUpdated
)

// BatchConfig controls how the worklet batches samples into buffers and
// reports status back to main. All fields must be > 0 except
// EnableCompression, which this core does not act on (see spec §3).
type BatchConfig struct {
	BatchSize         int
	MaxQueueSize      int
	TimeoutMs         uint32
	EnableCompression bool
}

// Validate checks BatchConfig field invariants.
func (c BatchConfig) Validate() error {
	if c.BatchSize <= 0 {
		return coreerrors.Newf("batchSize must be positive, got %d", c.BatchSize).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if c.MaxQueueSize <= 0 {
		return coreerrors.Newf("maxQueueSize must be positive, got %d", c.MaxQueueSize).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if c.TimeoutMs == 0 {
		return coreerrors.Newf("timeoutMs must be positive, got %d", c.TimeoutMs).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	return nil
}

// WorkletErrorCode enumerates the failure classes a worklet can report.
type WorkletErrorCode string

const (
	ErrCodeInitializationFailed  WorkletErrorCode = "initializationFailed"
	ErrCodeProcessingFailed      WorkletErrorCode = "processingFailed"
	ErrCodeBufferOverflow        WorkletErrorCode = "bufferOverflow"
	ErrCodeInvalidConfiguration  WorkletErrorCode = "invalidConfiguration"
	ErrCodeMemoryAllocationFailed WorkletErrorCode = "memoryAllocationFailed"
	ErrCodeGeneric               WorkletErrorCode = "generic"
)

// WorkletError is a non-fatal failure surfaced from the worklet side. It
// implements coreerrors.CategorizedError so it composes with errors.Is/As
// on the main-thread side.
type WorkletError struct {
	Code    WorkletErrorCode
	Message string
}

func (e *WorkletError) Error() string { return e.Message }

// ErrorCategory implements coreerrors.CategorizedError.
func (e *WorkletError) ErrorCategory() coreerrors.ErrorCategory {
	switch e.Code {
	case ErrCodeInvalidConfiguration:
		return coreerrors.CategoryValidation
	case ErrCodeBufferOverflow, ErrCodeMemoryAllocationFailed:
		return coreerrors.CategoryResource
	case ErrCodeProcessingFailed:
		return coreerrors.CategoryAudio
	default:
		return coreerrors.CategoryProcessing
	}
}

// Validate checks that the error carries a non-empty message.
func (e WorkletError) Validate() error {
	if e.Message == "" {
		return coreerrors.Newf("worklet error message must not be empty").
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	return nil
}

// BufferPoolStats is an immutable snapshot of worklet-side buffer pool
// utilization, carried on every AudioDataBatch (see pool.Snapshot).
type BufferPoolStats struct {
	PoolSize                  int
	AvailableBuffers          int
	InUseBuffers              int
	TotalBuffers              int
	AcquireCount              uint64
	TransferCount             uint64
	PoolExhaustedCount        uint64
	ConsecutivePoolFailures   uint64
	PoolHitRate               float64 // 0..100
	PoolEfficiency            float64
	BufferUtilizationPercent  float64 // 0..100
	TotalMegabytesTransferred float64
}

// Validate checks the bounded invariants on a stats snapshot (§6.1:
// "bounded percentages and ratios on pool stats (0..=100)";
// "inUse + available == total").
func (s BufferPoolStats) Validate() error {
	if s.InUseBuffers+s.AvailableBuffers != s.TotalBuffers {
		return coreerrors.Newf("inUse (%d) + available (%d) != total (%d)",
			s.InUseBuffers, s.AvailableBuffers, s.TotalBuffers).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if s.PoolHitRate < 0 || s.PoolHitRate > 100 {
		return coreerrors.Newf("poolHitRate out of bounds: %f", s.PoolHitRate).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if s.BufferUtilizationPercent < 0 || s.BufferUtilizationPercent > 100 {
		return coreerrors.Newf("bufferUtilizationPercent out of bounds: %f", s.BufferUtilizationPercent).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	return nil
}

// AudioDataBatch is a filled sample buffer handed from the worklet to
// main, plus the bookkeeping metadata needed to route and return it.
type AudioDataBatch struct {
	SampleRate      uint32
	SampleCount     int
	BufferLength    int
	SequenceNumber  *uint32
	BufferID        *uint32
	PoolStats       *BufferPoolStats
	Samples         []float32 // transferred by move: caller must not reuse
}

// Validate checks the non-zero invariants from spec §3.
func (b AudioDataBatch) Validate() error {
	if b.SampleRate == 0 {
		return coreerrors.Newf("sampleRate must be non-zero").
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if b.SampleCount <= 0 {
		return coreerrors.Newf("sampleCount must be positive, got %d", b.SampleCount).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if b.BufferLength <= 0 {
		return coreerrors.Newf("bufferLength must be positive, got %d", b.BufferLength).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if b.PoolStats != nil {
		if err := b.PoolStats.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToWorkletMessage is a tagged union of control messages sent main -> worklet.
type ToWorkletMessage struct {
	Kind        ToWorkletKind
	BatchConfig BatchConfig // valid when Kind == KindUpdateBatchConfig
	BufferID    uint32      // valid when Kind == KindReturnBuffer
}

// Validate rejects malformed payloads for the message's tag.
func (m ToWorkletMessage) Validate() error {
	switch m.Kind {
	case KindStartProcessing, KindStopProcessing, KindReturnBuffer:
		return nil
	case KindUpdateBatchConfig:
		return m.BatchConfig.Validate()
	default:
		return coreerrors.Newf("unknown ToWorkletMessage kind %d", m.Kind).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
}

// FromWorkletMessage is a tagged union of data/status messages sent
// worklet -> main.
type FromWorkletMessage struct {
	Kind            FromWorkletKind
	AudioDataBatch  AudioDataBatch // valid when Kind == KindAudioDataBatch
	Error           WorkletError   // valid when Kind == KindProcessingError
	UpdatedBatchConfig BatchConfig // valid when Kind == KindBatchConfigUpdated
}

// Validate rejects malformed payloads for the message's tag.
func (m FromWorkletMessage) Validate() error {
	switch m.Kind {
	case KindAudioDataBatch:
		return m.AudioDataBatch.Validate()
	case KindProcessingError:
		return m.Error.Validate()
	case KindBatchConfigUpdated:
		return m.UpdatedBatchConfig.Validate()
	default:
		return coreerrors.Newf("unknown FromWorkletMessage kind %d", m.Kind).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
}

// Envelope wraps a payload with a monotonically wrapping message id, one
// counter per direction/endpoint (see NewIDGenerator).
type Envelope[T any] struct {
	MessageID uint32
	Payload   T
}

// ToWorkletEnvelope is the envelope type for main -> worklet messages.
type ToWorkletEnvelope = Envelope[ToWorkletMessage]

// FromWorkletEnvelope is the envelope type for worklet -> main messages.
type FromWorkletEnvelope = Envelope[FromWorkletMessage]

// IDGenerator produces the monotonically wrapping message ids used for
// envelopes. Each endpoint (worklet, main) owns its own generator instance
// rather than sharing process-wide global state — this is what §9's
// design note about reducing global mutable state to an explicit,
// per-pipeline-instance factory means in practice.
type IDGenerator struct {
	next uint32
}

// NewIDGenerator returns a fresh, zeroed id generator.
func NewIDGenerator() *IDGenerator { return &IDGenerator{} }

// Next returns the next id and advances the counter, wrapping at the
// uint32 boundary.
func (g *IDGenerator) Next() uint32 {
	return atomic.AddUint32(&g.next, 1) - 1
}

// NewToWorkletEnvelope wraps payload with the next id from gen.
func NewToWorkletEnvelope(gen *IDGenerator, payload ToWorkletMessage) ToWorkletEnvelope {
	return ToWorkletEnvelope{MessageID: gen.Next(), Payload: payload}
}

// NewFromWorkletEnvelope wraps payload with the next id from gen.
func NewFromWorkletEnvelope(gen *IDGenerator, payload FromWorkletMessage) FromWorkletEnvelope {
	return FromWorkletEnvelope{MessageID: gen.Next(), Payload: payload}
}
