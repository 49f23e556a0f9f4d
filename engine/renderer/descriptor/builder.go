package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// DefaultPendingWrites is the number of writes a builder accepts between flushes.
const DefaultPendingWrites = 32

const DummyDescription = "<DummyDescriptor>"

type pendingWrite struct {
	binding     uint32
	info        metadata.DescriptorInfo
	description string
}

// ProgressiveDescriptorSetBuilder accumulates writes for one descriptor set
// and commits them in a single batch.
type ProgressiveDescriptorSetBuilder struct {
	signature      []metadata.DescriptorSlot
	capacity       int
	writes         []pendingWrite
	sinceLastFlush containers.SlotMask
	descriptions   []string
}

// NewProgressiveDescriptorSetBuilder creates a builder for signature. A
// non-positive capacity allows one pending write per slot.
func NewProgressiveDescriptorSetBuilder(signature []metadata.DescriptorSlot, capacity int) *ProgressiveDescriptorSetBuilder {
	if len(signature) > containers.SlotMaskWidth {
		panic(fmt.Sprintf("descriptor set signature has %d slots, at most %d are supported", len(signature), containers.SlotMaskWidth))
	}
	if capacity <= 0 {
		capacity = len(signature)
	}
	return &ProgressiveDescriptorSetBuilder{
		signature:    signature,
		capacity:     capacity,
		writes:       make([]pendingWrite, 0, capacity),
		descriptions: make([]string, len(signature)),
	}
}

func (b *ProgressiveDescriptorSetBuilder) Signature() []metadata.DescriptorSlot {
	return b.signature
}

// Bind stages a write of info into slot. A second write to the same slot
// before the flush replaces the first.
func (b *ProgressiveDescriptorSetBuilder) Bind(slot uint32, info metadata.DescriptorInfo, description string) {
	if int(slot) >= len(b.signature) {
		panic(fmt.Sprintf("descriptor slot %d out of range, signature has %d slots", slot, len(b.signature)))
	}
	slotType := b.signature[slot].Type
	if !info.Compatible(slotType) {
		panic(fmt.Sprintf("cannot write %T into descriptor slot %d of type %s", info, slot, slotType))
	}

	if b.sinceLastFlush.Has(slot) {
		for i := range b.writes {
			if b.writes[i].binding == slot {
				b.writes[i].info = info
				b.writes[i].description = description
				return
			}
		}
		panic(fmt.Sprintf("descriptor slot %d marked pending without a pending write", slot))
	}

	if len(b.writes) >= b.capacity {
		panic(fmt.Sprintf("too many pending descriptor writes (capacity %d)", b.capacity))
	}
	b.sinceLastFlush = b.sinceLastFlush.With(slot)
	b.writes = append(b.writes, pendingWrite{binding: slot, info: info, description: description})
}

func (b *ProgressiveDescriptorSetBuilder) BindSampler(slot uint32, sampler metadata.SamplerHandle, description string) {
	b.Bind(slot, metadata.SamplerInfo{Sampler: sampler}, description)
}

// BindView writes a resource view. Image views go to texture slots, buffer
// views to buffer slots.
func (b *ProgressiveDescriptorSetBuilder) BindView(slot uint32, view metadata.ResourceView, description string) {
	if view.HasImage() {
		b.Bind(slot, metadata.ImageInfo{View: view.Image}, description)
		return
	}
	b.Bind(slot, metadata.BufferInfo{Buffer: view.Buffer.Buffer, Offset: view.Buffer.Offset, Range: view.Buffer.Size}, description)
}

func (b *ProgressiveDescriptorSetBuilder) BindBuffer(slot uint32, buffer metadata.BufferRange, description string) {
	b.Bind(slot, metadata.BufferInfo{Buffer: buffer.Buffer, Offset: buffer.Offset, Range: buffer.Size}, description)
}

// BindDummyDescriptors writes the blank resource of the matching kind into
// every slot of mask that has no pending write, and returns those slots.
func (b *ProgressiveDescriptorSetBuilder) BindDummyDescriptors(dummies *renderer.DummyResources, mask containers.SlotMask) containers.SlotMask {
	var written containers.SlotMask
	if len(b.signature) < containers.SlotMaskWidth {
		mask &= containers.AllSlots(len(b.signature))
	}
	for _, slot := range (mask &^ b.sinceLastFlush).Slots() {
		b.Bind(slot, dummies.InfoFor(b.signature[slot].Type), DummyDescription)
		written = written.With(slot)
	}
	core.MetricsDummyWrites(written.Count())
	return written
}

// FlushChanges commits the pending writes into dst. When prev is valid, the
// slots of prevMask that were not rewritten are copied from prev. Returns
// the slots written by this flush and clears the pending state.
func (b *ProgressiveDescriptorSetBuilder) FlushChanges(
	device renderer.RenderDevice,
	dst metadata.DescriptorSetHandle,
	prev metadata.DescriptorSetHandle,
	prevMask containers.SlotMask,
) containers.SlotMask {
	var copies []metadata.DescriptorCopy
	if prev != 0 && prevMask != 0 {
		copies = copyRuns(prev, dst, prevMask&^b.sinceLastFlush)
	}

	writes := make([]metadata.DescriptorWrite, len(b.writes))
	for i, w := range b.writes {
		writes[i] = metadata.DescriptorWrite{
			Set:     dst,
			Binding: w.binding,
			Type:    b.signature[w.binding].Type,
			Info:    w.info,
		}
		b.descriptions[w.binding] = w.description
	}
	device.UpdateDescriptorSets(writes, copies)
	core.MetricsDescriptorFlush(len(writes), len(copies))

	result := b.sinceLastFlush
	b.Reset()
	return result
}

// copyRuns turns mask into one copy per run of consecutive slots.
func copyRuns(src, dst metadata.DescriptorSetHandle, mask containers.SlotMask) []metadata.DescriptorCopy {
	var out []metadata.DescriptorCopy
	for _, slot := range mask.Slots() {
		if n := len(out); n > 0 && out[n-1].SrcBinding+out[n-1].Count == slot {
			out[n-1].Count++
			continue
		}
		out = append(out, metadata.DescriptorCopy{Src: src, SrcBinding: slot, Dst: dst, DstBinding: slot, Count: 1})
	}
	return out
}

func (b *ProgressiveDescriptorSetBuilder) HasChanges() bool {
	return b.sinceLastFlush != 0
}

func (b *ProgressiveDescriptorSetBuilder) PendingMask() containers.SlotMask {
	return b.sinceLastFlush
}

// Reset drops all pending writes.
func (b *ProgressiveDescriptorSetBuilder) Reset() {
	b.writes = b.writes[:0]
	b.sinceLastFlush = 0
}

// Descriptions returns the description of the last value flushed into each slot.
func (b *ProgressiveDescriptorSetBuilder) Descriptions() []string {
	return b.descriptions
}
