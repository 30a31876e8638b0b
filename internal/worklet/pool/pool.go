// Package pool implements the worklet-side buffer pool: a fixed-capacity,
// arena-plus-free-list allocator of sample buffers indexed by a stable id,
// guaranteeing bounded, allocation-free handoff between the audio callback
// and the main thread (spec §3 "Buffer pool", §4.1).
//
// The pool is single-writer from the audio (worklet) side: Acquire and
// Release are not safe to call concurrently from multiple goroutines. The
// corresponding Go rendering of "the return path ... is serialized via the
// ReturnBuffer message queue and applied before the next acquire in the
// same audio callback" (spec §4.1) is the worklet draining its inbound
// channel before calling Acquire again — see worklet.Processor.
package pool

import (
	"log/slog"

	"github.com/tphakala/intonationcore/internal/coreerrors"
	"github.com/tphakala/intonationcore/internal/protocol"
	"github.com/tphakala/intonationcore/internal/telemetry/logging"
)

const component = "buffer-pool"

// Config sizes a Pool.
type Config struct {
	// PoolSize is the fixed number of buffers pre-allocated at Start-up.
	PoolSize int
	// BufferSamples is the length of each sample buffer (spec: typically
	// 1024, a power of two).
	BufferSamples int
}

// Pool is a fixed-capacity, id-indexed free list of sample buffers. It
// never grows or shrinks after New returns.
type Pool struct {
	buffers []buffer
	free    []uint32 // stack of free ids, LIFO
	logger  *slog.Logger

	acquireCount            uint64
	transferCount           uint64
	poolExhaustedCount      uint64
	consecutivePoolFailures uint64
	totalBytesTransferred   uint64
}

type buffer struct {
	id     uint32
	data   []float32
	inUse  bool
}

// New pre-allocates cfg.PoolSize buffers of cfg.BufferSamples floats each.
func New(cfg Config) (*Pool, error) {
	if cfg.PoolSize <= 0 {
		return nil, coreerrors.Newf("pool size must be positive, got %d", cfg.PoolSize).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if cfg.BufferSamples <= 0 {
		return nil, coreerrors.Newf("buffer samples must be positive, got %d", cfg.BufferSamples).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Build()
	}

	logger := logging.ForService("intonationcore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", component)

	p := &Pool{
		buffers: make([]buffer, cfg.PoolSize),
		free:    make([]uint32, 0, cfg.PoolSize),
		logger:  logger,
	}
	for i := range p.buffers {
		id := uint32(i)
		p.buffers[i] = buffer{id: id, data: make([]float32, cfg.BufferSamples)}
		p.free = append(p.free, id)
	}

	logger.Info("buffer pool created", "pool_size", cfg.PoolSize, "buffer_samples", cfg.BufferSamples)
	return p, nil
}

// Acquire pops a free buffer id. It never allocates and never blocks: on
// exhaustion it returns ok=false and increments PoolExhaustedCount and
// ConsecutivePoolFailures.
func (p *Pool) Acquire() (id uint32, data []float32, ok bool) {
	if len(p.free) == 0 {
		p.poolExhaustedCount++
		p.consecutivePoolFailures++
		return 0, nil, false
	}

	last := len(p.free) - 1
	id = p.free[last]
	p.free = p.free[:last]

	p.buffers[id].inUse = true
	p.acquireCount++
	p.consecutivePoolFailures = 0

	return id, p.buffers[id].data, true
}

// Release returns a buffer id to the free list. It rejects an unknown id
// with a Validation-category error and an already-free id with a
// Conflict-category error; the worklet reports either to the main side as
// a ProcessingError with the generic error code.
func (p *Pool) Release(id uint32) error {
	if int(id) >= len(p.buffers) {
		return coreerrors.Newf("unknown buffer id %d", id).
			Component(component).
			Category(coreerrors.CategoryValidation).
			Context("buffer_id", id).
			Build()
	}
	if !p.buffers[id].inUse {
		return coreerrors.Newf("buffer id %d is already free", id).
			Component(component).
			Category(coreerrors.CategoryConflict).
			Context("buffer_id", id).
			Build()
	}

	p.buffers[id].inUse = false
	p.free = append(p.free, id)
	return nil
}

// RecordTransfer accounts for a buffer handed off in an AudioDataBatch,
// updating transfer count and bytes-transferred statistics. Called by the
// worklet while it builds each batch, just before sending it and clearing
// its held buffer reference.
func (p *Pool) RecordTransfer(sampleCount int) {
	p.transferCount++
	p.totalBytesTransferred += uint64(sampleCount) * 4 // float32
}

// Snapshot computes a point-in-time BufferPoolStats. Invariant:
// InUseBuffers + AvailableBuffers == TotalBuffers == PoolSize (spec §4.1).
func (p *Pool) Snapshot() protocol.BufferPoolStats {
	total := len(p.buffers)
	available := len(p.free)
	inUse := total - available

	var hitRate, efficiency, utilization float64
	if p.acquireCount > 0 {
		successfulAcquires := p.acquireCount
		attempts := p.acquireCount + p.poolExhaustedCount
		hitRate = 100.0 * float64(successfulAcquires) / float64(attempts)
	}
	if total > 0 {
		utilization = 100.0 * float64(inUse) / float64(total)
	}
	if p.transferCount > 0 {
		efficiency = float64(p.transferCount) / float64(p.acquireCount+1)
	}

	return protocol.BufferPoolStats{
		PoolSize:                  total,
		AvailableBuffers:          available,
		InUseBuffers:              inUse,
		TotalBuffers:              total,
		AcquireCount:              p.acquireCount,
		TransferCount:             p.transferCount,
		PoolExhaustedCount:        p.poolExhaustedCount,
		ConsecutivePoolFailures:   p.consecutivePoolFailures,
		PoolHitRate:               clampPercent(hitRate),
		PoolEfficiency:            efficiency,
		BufferUtilizationPercent:  clampPercent(utilization),
		TotalMegabytesTransferred: float64(p.totalBytesTransferred) / (1024.0 * 1024.0),
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
