package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorWraps(t *testing.T) {
	gen := &IDGenerator{next: ^uint32(0)} // one below wraparound
	first := gen.Next()
	second := gen.Next()
	assert.Equal(t, ^uint32(0), first)
	assert.Equal(t, uint32(0), second)
}

func TestBatchConfigValidation(t *testing.T) {
	valid := BatchConfig{BatchSize: 1024, MaxQueueSize: 16, TimeoutMs: 200}
	require.NoError(t, valid.Validate())

	invalid := BatchConfig{BatchSize: 0, MaxQueueSize: 16, TimeoutMs: 200}
	require.Error(t, invalid.Validate())
}

func TestToWorkletMessageValidateRejectsUnknownKind(t *testing.T) {
	msg := ToWorkletMessage{Kind: ToWorkletKind(99)}
	require.Error(t, msg.Validate())
}

func TestFromWorkletMessageValidateRoutesToPayload(t *testing.T) {
	batch := AudioDataBatch{SampleRate: 48000, SampleCount: 1024, BufferLength: 1024}
	msg := NewAudioDataBatch(batch)
	require.NoError(t, msg.Validate())

	bad := NewAudioDataBatch(AudioDataBatch{})
	require.Error(t, bad.Validate())
}

func TestWorkletErrorValidateRejectsEmptyMessage(t *testing.T) {
	err := WorkletError{Code: ErrCodeGeneric, Message: ""}
	require.Error(t, err.Validate())

	err.Message = "buffer overflow"
	require.NoError(t, err.Validate())
}

func TestWorkletErrorCategorization(t *testing.T) {
	assert.Equal(t, "validation", string((&WorkletError{Code: ErrCodeInvalidConfiguration}).ErrorCategory()))
	assert.Equal(t, "resource", string((&WorkletError{Code: ErrCodeBufferOverflow}).ErrorCategory()))
	assert.Equal(t, "audio-processing", string((&WorkletError{Code: ErrCodeProcessingFailed}).ErrorCategory()))
}

func TestBufferPoolStatsValidateInvariants(t *testing.T) {
	stats := BufferPoolStats{
		PoolSize: 8, AvailableBuffers: 5, InUseBuffers: 3, TotalBuffers: 8,
		PoolHitRate: 92.5, BufferUtilizationPercent: 37.5,
	}
	require.NoError(t, stats.Validate())

	broken := stats
	broken.TotalBuffers = 9
	require.Error(t, broken.Validate())

	outOfRange := stats
	outOfRange.PoolHitRate = 150
	require.Error(t, outOfRange.Validate())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	gen := NewIDGenerator()
	env := NewToWorkletEnvelope(gen, StartProcessing())
	assert.Equal(t, uint32(0), env.MessageID)
	assert.Equal(t, KindStartProcessing, env.Payload.Kind)

	env2 := NewToWorkletEnvelope(gen, StopProcessing())
	assert.Equal(t, uint32(1), env2.MessageID)
}
