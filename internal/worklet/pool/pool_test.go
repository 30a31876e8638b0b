package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{PoolSize: 0, BufferSamples: 1024})
	require.Error(t, err)

	_, err = New(Config{PoolSize: 8, BufferSamples: 0})
	require.Error(t, err)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p, err := New(Config{PoolSize: 2, BufferSamples: 4})
	require.NoError(t, err)

	id1, data1, ok := p.Acquire()
	require.True(t, ok)
	assert.Len(t, data1, 4)

	id2, _, ok := p.Acquire()
	require.True(t, ok)
	assert.NotEqual(t, id1, id2)

	_, _, ok = p.Acquire()
	assert.False(t, ok, "pool of size 2 should be exhausted after two acquires")

	require.NoError(t, p.Release(id1))

	id3, _, ok := p.Acquire()
	require.True(t, ok)
	assert.Equal(t, id1, id3, "freed id should be reused")
}

func TestReleaseRejectsUnknownID(t *testing.T) {
	p, err := New(Config{PoolSize: 1, BufferSamples: 4})
	require.NoError(t, err)

	require.Error(t, p.Release(99))
}

func TestReleaseRejectsAlreadyFreeID(t *testing.T) {
	p, err := New(Config{PoolSize: 1, BufferSamples: 4})
	require.NoError(t, err)

	id, _, ok := p.Acquire()
	require.True(t, ok)
	require.NoError(t, p.Release(id))

	require.Error(t, p.Release(id))
}

func TestSnapshotInvariant(t *testing.T) {
	p, err := New(Config{PoolSize: 4, BufferSamples: 8})
	require.NoError(t, err)

	_, _, _ = p.Acquire()
	_, _, _ = p.Acquire()

	snap := p.Snapshot()
	require.NoError(t, snap.Validate())
	assert.Equal(t, 4, snap.TotalBuffers)
	assert.Equal(t, 2, snap.InUseBuffers)
	assert.Equal(t, 2, snap.AvailableBuffers)
}

func TestSnapshotExhaustionTracksConsecutiveFailures(t *testing.T) {
	p, err := New(Config{PoolSize: 1, BufferSamples: 8})
	require.NoError(t, err)

	_, _, ok := p.Acquire()
	require.True(t, ok)

	_, _, ok = p.Acquire()
	require.False(t, ok)
	_, _, ok = p.Acquire()
	require.False(t, ok)

	snap := p.Snapshot()
	assert.Equal(t, uint64(2), snap.PoolExhaustedCount)
	assert.Equal(t, uint64(2), snap.ConsecutivePoolFailures)
}

func TestRecordTransferAccumulatesBytes(t *testing.T) {
	p, err := New(Config{PoolSize: 1, BufferSamples: 8})
	require.NoError(t, err)

	p.RecordTransfer(8)
	snap := p.Snapshot()
	assert.Equal(t, uint64(1), snap.TransferCount)
	assert.Greater(t, snap.TotalMegabytesTransferred, 0.0)
}
