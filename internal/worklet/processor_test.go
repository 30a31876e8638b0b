package worklet

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/intonationcore/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() Config {
	return Config{
		SampleRate:    48000,
		ChunkSamples:  128,
		PoolSize:      4,
		BufferSamples: 256,
		Batch:         protocol.BatchConfig{BatchSize: 256, MaxQueueSize: 16, TimeoutMs: 200},
	}
}

func TestProcessorStartsUninitialized(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, p.State())
}

func TestInitializeReachesReady(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	p.Initialize()
	assert.Equal(t, Ready, p.State())
}

func TestProcessZerosOutputWhenNotProcessing(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	p.Initialize()

	input := make([]float32, 128)
	output := make([]float32, 128)
	for i := range output {
		output[i] = 1.0
	}

	p.Process(input, output)
	for _, v := range output {
		assert.Equal(t, float32(0), v)
	}
}

func TestStartProcessingTransitionsState(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	p.Initialize()

	p.Inbound() <- protocol.StartProcessing()
	input := make([]float32, 128)
	output := make([]float32, 128)
	p.Process(input, output)

	assert.Equal(t, Processing, p.State())
}

func TestProcessEmitsBatchWhenBufferFills(t *testing.T) {
	cfg := testConfig()
	p, err := New(cfg)
	require.NoError(t, err)
	p.Initialize()
	p.Inbound() <- protocol.StartProcessing()

	input := make([]float32, cfg.ChunkSamples)
	output := make([]float32, cfg.ChunkSamples)

	// BufferSamples=256, ChunkSamples=128: second callback should fill it.
	p.Process(input, output)
	p.Process(input, output)

	select {
	case env := <-p.Outbound():
		assert.Equal(t, protocol.KindAudioDataBatch, env.Payload.Kind)
		assert.Equal(t, 256, env.Payload.AudioDataBatch.SampleCount)
	default:
		t.Fatal("expected an AudioDataBatch message")
	}
}

func TestOutputToSpeakersEchoesInput(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	p.Initialize()
	p.SetOutputToSpeakers(true)
	p.Inbound() <- protocol.StartProcessing()

	input := make([]float32, 128)
	input[0] = 0.5
	output := make([]float32, 128)

	p.Process(input, output)
	assert.Equal(t, float32(0.5), output[0])
}

func TestReturnBufferReleasesHeldBuffer(t *testing.T) {
	cfg := testConfig()
	p, err := New(cfg)
	require.NoError(t, err)
	p.Initialize()
	p.Inbound() <- protocol.StartProcessing()

	input := make([]float32, cfg.ChunkSamples)
	output := make([]float32, cfg.ChunkSamples)
	p.Process(input, output)
	p.Process(input, output)

	var bufferID uint32
	select {
	case env := <-p.Outbound():
		bufferID = *env.Payload.AudioDataBatch.BufferID
	default:
		t.Fatal("expected a batch")
	}

	p.Inbound() <- protocol.ReturnBuffer(bufferID)
	p.Process(input, output) // drains inbound, should not error

	snap := p.PoolSnapshot()
	require.NoError(t, snap.Validate())
}

func TestUpdateBatchConfigEchoesAcknowledgement(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	p.Initialize()
	p.Inbound() <- protocol.StartProcessing()

	newCfg := protocol.BatchConfig{BatchSize: 512, MaxQueueSize: 8, TimeoutMs: 100}
	p.Inbound() <- protocol.UpdateBatchConfig(newCfg)

	input := make([]float32, 128)
	output := make([]float32, 128)
	p.Process(input, output)

	select {
	case env := <-p.Outbound():
		assert.Equal(t, protocol.KindBatchConfigUpdated, env.Payload.Kind)
		assert.Equal(t, newCfg, env.Payload.UpdatedBatchConfig)
	default:
		t.Fatal("expected a batchConfigUpdated acknowledgement")
	}
}

func TestTestSignalMixingOverwritesInput(t *testing.T) {
	p, err := New(testConfig())
	require.NoError(t, err)
	p.Initialize()
	p.SetTestSignal(TestSignalConfig{Enabled: true, Frequency: 440, VolumePercent: 50})
	p.SetOutputToSpeakers(true)
	p.Inbound() <- protocol.StartProcessing()

	input := make([]float32, 128) // silence
	output := make([]float32, 128)
	p.Process(input, output)

	nonZero := false
	for _, v := range output {
		if v != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero, "test oscillator should have overwritten silent input")
}

func TestIDIsUniquePerProcessor(t *testing.T) {
	p1, err := New(testConfig())
	require.NoError(t, err)
	p2, err := New(testConfig())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p1.ID())
	assert.NotEqual(t, p1.ID(), p2.ID())
}

func TestHealthReflectsPoolExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 1
	p, err := New(cfg)
	require.NoError(t, err)
	p.Initialize()
	p.Inbound() <- protocol.StartProcessing()

	input := make([]float32, cfg.ChunkSamples)
	output := make([]float32, cfg.ChunkSamples)

	// Exhaust the single buffer: fill it, then keep processing without
	// returning it so the next acquire fails.
	p.Process(input, output)
	p.Process(input, output)
	p.Process(input, output)
	p.Process(input, output)

	health := p.Health(time.Now())
	assert.Greater(t, health.ConsecutivePoolFailures, uint64(0))
	assert.False(t, health.Healthy)
}
