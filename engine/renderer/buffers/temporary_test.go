package buffers

import (
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, size, alignment uint64) (*TemporaryBufferSpace, *headless.Device) {
	t.Helper()
	device := headless.NewDevice(metadata.DefaultDeviceLimits())
	ring, err := NewTemporaryBufferSpace(device, size, alignment)
	require.NoError(t, err)
	return ring, device
}

func TestRingWrapsOnlyAfterRetire(t *testing.T) {
	ring, device := newTestRing(t, 8192, 256)

	var first RingAllocation
	for i := 0; i < 4; i++ {
		a, ok := ring.Allocate(2048)
		require.True(t, ok)
		assert.Equal(t, uint64(i*2048), a.Offset)
		if i == 0 {
			first = a
		}
	}

	_, ok := ring.Allocate(2048)
	assert.False(t, ok, "the first allocation has not retired")

	tracker := device.ManualTracker()
	tracker.Submit()
	ring.FlushDestroys()
	_, ok = ring.Allocate(2048)
	assert.False(t, ok, "submitted is not retired")

	tracker.Retire(first.Marker)
	ring.FlushDestroys()
	a, ok := ring.Allocate(2048)
	require.True(t, ok)
	assert.Equal(t, uint64(0), a.Offset)
}

func TestRingReclaimIsOrderedByMarker(t *testing.T) {
	ring, device := newTestRing(t, 4096, 256)
	tracker := device.ManualTracker()

	a, ok := ring.Allocate(1024)
	require.True(t, ok)
	m1 := tracker.Submit()
	b, ok := ring.Allocate(1024)
	require.True(t, ok)
	m2 := tracker.Submit()
	_, ok = ring.Allocate(2048)
	require.True(t, ok)
	tracker.Submit()
	assert.Equal(t, m1, a.Marker)
	assert.Equal(t, m2, b.Marker)

	// only a's bytes come back
	tracker.Retire(m1)
	ring.FlushDestroys()
	c, ok := ring.Allocate(1024)
	require.True(t, ok)
	assert.Equal(t, uint64(0), c.Offset)
	_, ok = ring.Allocate(256)
	assert.False(t, ok)

	tracker.Retire(m2)
	ring.FlushDestroys()
	d, ok := ring.Allocate(1024)
	require.True(t, ok)
	assert.Equal(t, uint64(1024), d.Offset)
}

func TestRingRoundsToAlignment(t *testing.T) {
	ring, _ := newTestRing(t, 4096, 256)
	a, ok := ring.Allocate(10)
	require.True(t, ok)
	assert.Equal(t, uint64(256), a.Size)
	b, ok := ring.Allocate(300)
	require.True(t, ok)
	assert.Equal(t, uint64(256), b.Offset)
	assert.Equal(t, uint64(512), b.Size)

	_, ok = ring.Allocate(0)
	assert.False(t, ok)
	_, ok = ring.Allocate(8192)
	assert.False(t, ok)
}

func TestRingAlignmentHonorsDeviceLimits(t *testing.T) {
	limits := metadata.DefaultDeviceLimits()
	limits.MinUniformBufferOffsetAlignment = 64
	limits.MinStorageBufferOffsetAlignment = 512
	ring, err := NewTemporaryBufferSpace(headless.NewDevice(limits), 4096, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), ring.Alignment())

	a, ok := ring.Allocate(10)
	require.True(t, ok)
	b, ok := ring.Allocate(10)
	require.True(t, ok)
	assert.Equal(t, uint64(512), b.Offset-a.Offset)

	// a configured alignment above the device minimum wins
	ring, err = NewTemporaryBufferSpace(headless.NewDevice(limits), 4096, 1024)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), ring.Alignment())
}

func TestAllocateBufferWritesData(t *testing.T) {
	ring, device := newTestRing(t, 1024, 256)
	r, err := ring.AllocateBuffer([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r.Size)
	data := device.BufferData(ring.Buffer())
	assert.Equal(t, []byte{1, 2, 3, 4}, data[r.Offset:r.Offset+4])

	for i := 0; i < 3; i++ {
		_, err = ring.AllocateBuffer(make([]byte, 256))
		require.NoError(t, err)
	}
	_, err = ring.AllocateBuffer(make([]byte, 16))
	assert.ErrorIs(t, err, core.ErrRingExhausted)
}

func TestUploadImmediateDataFallsBack(t *testing.T) {
	ring, device := newTestRing(t, 512, 256)
	_, err := ring.UploadImmediateData(make([]byte, 512))
	require.NoError(t, err)

	before := core.MetricsSnapshotNow().TemporaryFallbacks
	r, err := ring.UploadImmediateData([]byte{9, 9})
	require.NoError(t, err)
	assert.NotEqual(t, ring.Buffer(), r.Buffer)
	assert.Equal(t, []byte{9, 9}, device.BufferData(r.Buffer))
	// the fallback may back a storage buffer slot as well as a constant buffer
	desc, ok := device.BufferDesc(r.Buffer)
	require.True(t, ok)
	assert.Equal(t, metadata.BufferUsageUniform|metadata.BufferUsageStorage, desc.Usage)
	assert.Equal(t, 1, ring.PendingFallbacks())
	assert.Equal(t, before+1, core.MetricsSnapshotNow().TemporaryFallbacks)

	ring.FlushDestroys()
	assert.True(t, device.IsBufferLive(r.Buffer))

	tracker := device.ManualTracker()
	tracker.Submit()
	tracker.RetireAll()
	ring.FlushDestroys()
	assert.False(t, device.IsBufferLive(r.Buffer))
	assert.Zero(t, ring.PendingFallbacks())
}

func TestWriteBarrierRanges(t *testing.T) {
	ring, device := newTestRing(t, 4096, 256)
	list, err := device.BeginCommandList()
	require.NoError(t, err)
	cmd := list.(*headless.CommandList)

	_, _ = ring.Allocate(512)
	ring.WriteBarrier(cmd, false)
	barriers := cmd.Filter(headless.OpBufferBarrier)
	require.Len(t, barriers, 1)
	assert.Equal(t, uint64(0), barriers[0].BufferOffset)
	assert.Equal(t, uint64(4096), barriers[0].Size)

	// nothing new: no barrier
	ring.WriteBarrier(cmd, false)
	assert.Len(t, cmd.Filter(headless.OpBufferBarrier), 1)

	_, _ = ring.Allocate(1024)
	ring.WriteBarrier(cmd, false)
	barriers = cmd.Filter(headless.OpBufferBarrier)
	require.Len(t, barriers, 2)
	assert.Equal(t, uint64(512), barriers[1].BufferOffset)
	assert.Equal(t, uint64(1024), barriers[1].Size)

	_, _ = ring.Allocate(256)
	ring.WriteBarrier(cmd, true)
	assert.Equal(t, 1, cmd.Count(headless.OpMemoryBarrier))
	assert.Len(t, cmd.Filter(headless.OpBufferBarrier), 2)
}

func TestWriteBarrierSplitsOnWrap(t *testing.T) {
	ring, device := newTestRing(t, 4096, 256)
	tracker := device.ManualTracker()
	list, err := device.BeginCommandList()
	require.NoError(t, err)
	cmd := list.(*headless.CommandList)

	a, _ := ring.Allocate(2048)
	_, _ = ring.Allocate(1024)
	ring.WriteBarrier(cmd, false)

	tracker.Submit()
	tracker.Retire(a.Marker)
	ring.FlushDestroys()
	// the ring is empty again; the cursor stays at 3072 and 2048 bytes no longer fit
	b, ok := ring.Allocate(2048)
	require.True(t, ok)
	assert.Equal(t, uint64(0), b.Offset)

	ring.WriteBarrier(cmd, false)
	barriers := cmd.Filter(headless.OpBufferBarrier)
	require.Len(t, barriers, 3)
	assert.Equal(t, uint64(3072), barriers[1].BufferOffset)
	assert.Equal(t, uint64(1024), barriers[1].Size)
	assert.Equal(t, uint64(0), barriers[2].BufferOffset)
	assert.Equal(t, uint64(2048), barriers[2].Size)
}
