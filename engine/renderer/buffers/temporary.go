package buffers

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// RingAllocation is a byte range of the temporary buffer owned by the GPU
// work recorded under Marker.
type RingAllocation struct {
	Buffer metadata.BufferHandle
	Offset uint64
	Size   uint64
	Marker renderer.Marker
}

func (a RingAllocation) Range() metadata.BufferRange {
	return metadata.BufferRange{Buffer: a.Buffer, Offset: a.Offset, Size: a.Size}
}

// reclaimUnit covers every allocation made under one marker. It ends at end;
// it starts where the previous unit ended.
type reclaimUnit struct {
	marker renderer.Marker
	end    uint64
}

type fallbackBuffer struct {
	buffer metadata.BufferHandle
	marker renderer.Marker
}

// TemporaryBufferSpace is a ring allocator over one persistent host visible
// buffer, used for short lived inline data. Space is reclaimed by comparing
// the GPU tracker markers, never by waiting.
type TemporaryBufferSpace struct {
	device    renderer.RenderDevice
	tracker   renderer.GPUTracker
	buffer    metadata.BufferHandle
	size      uint64
	alignment uint64

	// head is where the next allocation goes; tail is the start of the
	// oldest live allocation.
	head, tail uint64
	units      *containers.RingQueue[reclaimUnit]

	lastBarrierList uint64
	lastBarrierHead uint64

	fallbacks *containers.RingQueue[fallbackBuffer]
}

// NewTemporaryBufferSpace creates a ring of size bytes. Allocations are
// aligned to the larger of alignment and the device's minimum uniform and
// storage buffer offset alignments.
func NewTemporaryBufferSpace(device renderer.RenderDevice, size, alignment uint64) (*TemporaryBufferSpace, error) {
	limits := device.Limits()
	alignment = max(alignment, limits.MinUniformBufferOffsetAlignment, limits.MinStorageBufferOffsetAlignment, 1)
	size = metadata.GetAligned(size, alignment)
	buffer, err := device.CreateBuffer(metadata.BufferDesc{
		Name:        "temporary-buffer-space",
		Size:        size,
		Usage:       metadata.BufferUsageUniform | metadata.BufferUsageStorage,
		HostVisible: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: temporary buffer space: %v", core.ErrDeviceFailure, err)
	}

	units := containers.NewRingQueue[reclaimUnit](64)
	units.Grow = true
	fallbacks := containers.NewRingQueue[fallbackBuffer](16)
	fallbacks.Grow = true
	return &TemporaryBufferSpace{
		device:    device,
		tracker:   device.Tracker(),
		buffer:    buffer,
		size:      size,
		alignment: alignment,
		units:     units,
		fallbacks: fallbacks,
	}, nil
}

func (t *TemporaryBufferSpace) Buffer() metadata.BufferHandle { return t.buffer }

func (t *TemporaryBufferSpace) Size() uint64 { return t.size }

func (t *TemporaryBufferSpace) Alignment() uint64 { return t.alignment }

// Allocate reserves size bytes, rounded up to the alignment. It returns
// false when neither the space ahead of the cursor nor the space at the
// start of the buffer is free.
func (t *TemporaryBufferSpace) Allocate(size uint64) (RingAllocation, bool) {
	if size == 0 {
		return RingAllocation{}, false
	}
	size = metadata.GetAligned(size, t.alignment)
	if size > t.size {
		return RingAllocation{}, false
	}

	var offset uint64
	switch {
	case t.units.IsEmpty():
		if t.head+size <= t.size {
			offset = t.head
		} else {
			offset = 0
		}
		t.tail = offset
	case t.tail < t.head:
		if t.head+size <= t.size {
			offset = t.head
		} else if size <= t.tail {
			offset = 0
		} else {
			return RingAllocation{}, false
		}
	default:
		// wrapped: the free space is between head and tail
		if t.head+size <= t.tail {
			offset = t.head
		} else {
			return RingAllocation{}, false
		}
	}

	t.head = offset + size
	marker := t.tracker.ProducerMarker()
	if back, err := t.units.PeekBack(); err == nil && back.marker == marker {
		back.end = t.head
	} else {
		_ = t.units.Enqueue(reclaimUnit{marker: marker, end: t.head})
	}
	return RingAllocation{Buffer: t.buffer, Offset: offset, Size: size, Marker: marker}, true
}

// AllocateBuffer copies data into a new ring allocation.
func (t *TemporaryBufferSpace) AllocateBuffer(data []byte) (metadata.BufferRange, error) {
	a, ok := t.Allocate(uint64(len(data)))
	if !ok {
		return metadata.BufferRange{}, core.ErrRingExhausted
	}
	if err := t.device.WriteBuffer(t.buffer, a.Offset, data); err != nil {
		return metadata.BufferRange{}, err
	}
	return metadata.BufferRange{Buffer: a.Buffer, Offset: a.Offset, Size: uint64(len(data))}, nil
}

// UploadImmediateData places data in the ring, or in a dedicated buffer
// when the ring is full. Dedicated buffers are destroyed by FlushDestroys
// once their marker retires.
func (t *TemporaryBufferSpace) UploadImmediateData(data []byte) (metadata.BufferRange, error) {
	r, err := t.AllocateBuffer(data)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, core.ErrRingExhausted) {
		return metadata.BufferRange{}, err
	}

	core.LogWarn("temporary buffer space exhausted, creating a dedicated buffer for %d bytes", len(data))
	core.MetricsTemporaryFallback()
	buffer, err := t.device.CreateBuffer(metadata.BufferDesc{
		Name:        "immediate-data-fallback",
		Size:        uint64(len(data)),
		Usage:       metadata.BufferUsageUniform | metadata.BufferUsageStorage,
		HostVisible: true,
	})
	if err != nil {
		return metadata.BufferRange{}, fmt.Errorf("%w: immediate data buffer: %v", core.ErrDeviceFailure, err)
	}
	if err := t.device.WriteBuffer(buffer, 0, data); err != nil {
		t.device.DestroyBuffer(buffer)
		return metadata.BufferRange{}, err
	}
	_ = t.fallbacks.Enqueue(fallbackBuffer{buffer: buffer, marker: t.tracker.ProducerMarker()})
	return metadata.BufferRange{Buffer: buffer, Size: uint64(len(data))}, nil
}

// FlushDestroys reclaims every unit whose marker the GPU has passed.
func (t *TemporaryBufferSpace) FlushDestroys() {
	consumer := t.tracker.ConsumerMarker()
	for !t.units.IsEmpty() {
		front, _ := t.units.Peek()
		if front.marker > consumer {
			break
		}
		_, _ = t.units.Dequeue()
		t.tail = front.end
	}
	if t.units.IsEmpty() {
		t.tail = t.head
	}

	for !t.fallbacks.IsEmpty() {
		front, _ := t.fallbacks.Peek()
		if front.marker > consumer {
			break
		}
		_, _ = t.fallbacks.Dequeue()
		t.device.DestroyBuffer(front.buffer)
	}
}

// PendingFallbacks counts dedicated buffers waiting to be destroyed.
func (t *TemporaryBufferSpace) PendingFallbacks() int {
	return t.fallbacks.Len()
}

// WriteBarrier makes bytes written since the last barrier on cmd visible to
// the GPU. The first barrier on a command list covers the whole buffer.
// Inside a render pass only a memory barrier is allowed.
func (t *TemporaryBufferSpace) WriteBarrier(cmd renderer.CommandList, inRenderPass bool) {
	id := cmd.ID()
	if id == t.lastBarrierList && t.head == t.lastBarrierHead {
		return
	}

	switch {
	case inRenderPass:
		cmd.MemoryBarrier()
	case id != t.lastBarrierList:
		cmd.BufferBarrier(t.buffer, 0, t.size)
	case t.head > t.lastBarrierHead:
		cmd.BufferBarrier(t.buffer, t.lastBarrierHead, t.head-t.lastBarrierHead)
	default:
		// wrapped since the last barrier
		if t.lastBarrierHead < t.size {
			cmd.BufferBarrier(t.buffer, t.lastBarrierHead, t.size-t.lastBarrierHead)
		}
		cmd.BufferBarrier(t.buffer, 0, t.head)
	}
	t.lastBarrierList = id
	t.lastBarrierHead = t.head
}

// Destroy releases the backing buffer and any dedicated buffers. Only call
// once the GPU is idle.
func (t *TemporaryBufferSpace) Destroy() {
	for !t.fallbacks.IsEmpty() {
		f, _ := t.fallbacks.Dequeue()
		t.device.DestroyBuffer(f.buffer)
	}
	t.device.DestroyBuffer(t.buffer)
}
