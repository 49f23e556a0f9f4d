package uniforms

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/encoder"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
)

// MaxNumericBindings is the number of registers of each type.
const MaxNumericBindings = 64

type numericTable uint8

const (
	numericSampler numericTable = iota
	numericConstantBuffer
	numericShaderResource
	numericUnorderedAccess
	numericShaderResourceBuffer
	numericUnorderedAccessBuffer
	numericTableCount
)

var numericTables = [numericTableCount]struct {
	register  descriptor.RegisterType
	qualifier descriptor.RegisterQualifier
	slotType  metadata.DescriptorType
}{
	numericSampler:               {descriptor.RegisterTypeSampler, descriptor.RegisterQualifierNone, metadata.DescriptorTypeSampler},
	numericConstantBuffer:        {descriptor.RegisterTypeConstantBuffer, descriptor.RegisterQualifierNone, metadata.DescriptorTypeConstantBuffer},
	numericShaderResource:        {descriptor.RegisterTypeShaderResource, descriptor.RegisterQualifierNone, metadata.DescriptorTypeTexture},
	numericUnorderedAccess:       {descriptor.RegisterTypeUnorderedAccess, descriptor.RegisterQualifierNone, metadata.DescriptorTypeUnorderedAccessTexture},
	numericShaderResourceBuffer:  {descriptor.RegisterTypeShaderResource, descriptor.RegisterQualifierBuffer, metadata.DescriptorTypeUnorderedAccessBuffer},
	numericUnorderedAccessBuffer: {descriptor.RegisterTypeUnorderedAccess, descriptor.RegisterQualifierBuffer, metadata.DescriptorTypeUnorderedAccessBuffer},
}

type numericTarget struct {
	set   *numericSet
	slot  uint32
	valid bool
}

type numericSet struct {
	index   uint32
	layout  *descriptor.CompiledDescriptorSetLayout
	builder *descriptor.ProgressiveDescriptorSetBuilder
	active  metadata.DescriptorSetHandle
	filled  containers.SlotMask
}

// UnmappedBinding is a register that was bound but has no slot in the
// active pipeline layout.
type UnmappedBinding struct {
	Register descriptor.RegisterType
	Buffer   bool
	Slot     uint32
}

func (u UnmappedBinding) String() string {
	if u.Buffer {
		return fmt.Sprintf("%c%d (buffer)", u.Register.RegisterPrefix(), u.Slot)
	}
	return fmt.Sprintf("%c%d", u.Register.RegisterPrefix(), u.Slot)
}

// NumericUniformsInterface binds resources by legacy register number, going
// through a legacy register binding table.
type NumericUniformsInterface struct {
	pools        *descriptor.GlobalPools
	pipelineType metadata.PipelineType
	legacy       *descriptor.LegacyRegisterBindingDesc

	tables [numericTableCount][MaxNumericBindings]numericTarget
	sets   []*numericSet

	unmapped     []UnmappedBinding
	unmappedSeen map[UnmappedBinding]struct{}
}

func NewNumericUniformsInterface(
	pools *descriptor.GlobalPools,
	layout *pipeline.CompiledPipelineLayout,
	legacy *descriptor.LegacyRegisterBindingDesc,
	pipelineType metadata.PipelineType,
) (*NumericUniformsInterface, error) {
	n := &NumericUniformsInterface{
		pools:        pools,
		pipelineType: pipelineType,
		legacy:       legacy,
		unmappedSeen: make(map[UnmappedBinding]struct{}),
	}

	for t := numericTable(0); t < numericTableCount; t++ {
		info := numericTables[t]
		for _, e := range legacy.Entries(info.register, info.qualifier) {
			if e.End > MaxNumericBindings {
				return nil, fmt.Errorf("%w: legacy binding %s maps %c%d..%d, registers stop at %d", core.ErrSignatureFile, legacy.Name, info.register.RegisterPrefix(), e.Begin, e.End, MaxNumericBindings)
			}
			index, ok := layout.DescriptorSetIndex(e.TargetSetHash)
			if !ok {
				core.LogDebug("legacy binding %s targets descriptor set (%s), which is not in the pipeline layout", legacy.Name, e.TargetSetName)
				continue
			}
			set := n.set(index, layout.DescriptorSets[index].Layout)
			slots := set.layout.Signature.Slots
			for r := e.Begin; r < e.End; r++ {
				slot := r - e.Begin + e.TargetBegin
				if int(slot) >= len(slots) {
					return nil, fmt.Errorf("%w: %c%d maps to slot %d of descriptor set (%s), which has %d slots", core.ErrMissingSlot, info.register.RegisterPrefix(), r, slot, e.TargetSetName, len(slots))
				}
				if slots[slot].Type != info.slotType {
					return nil, fmt.Errorf("%w: %c%d maps to slot %d of descriptor set (%s), which holds %s", core.ErrKindMismatch, info.register.RegisterPrefix(), r, slot, e.TargetSetName, slots[slot].Type)
				}
				n.tables[t][r] = numericTarget{set: set, slot: slot, valid: true}
			}
		}
	}

	n.Reset()
	return n, nil
}

func (n *NumericUniformsInterface) set(index uint32, layout *descriptor.CompiledDescriptorSetLayout) *numericSet {
	for _, s := range n.sets {
		if s.index == index {
			return s
		}
	}
	s := &numericSet{
		index:   index,
		layout:  layout,
		builder: descriptor.NewProgressiveDescriptorSetBuilder(layout.Signature.Slots, 0),
	}
	n.sets = append(n.sets, s)
	return s
}

func (n *NumericUniformsInterface) lookup(t numericTable, register uint32) (numericTarget, bool) {
	if register >= MaxNumericBindings {
		panic(fmt.Sprintf("numeric binding %d out of range, at most %d registers are supported", register, MaxNumericBindings))
	}
	target := n.tables[t][register]
	if !target.valid {
		info := numericTables[t]
		u := UnmappedBinding{Register: info.register, Buffer: info.qualifier == descriptor.RegisterQualifierBuffer, Slot: register}
		core.LogDebug("numeric binding (%s) is off root signature", u)
		core.MetricsUnmappedBinding()
		if _, seen := n.unmappedSeen[u]; !seen {
			n.unmappedSeen[u] = struct{}{}
			n.unmapped = append(n.unmapped, u)
		}
	}
	return target, target.valid
}

func registerName(prefix byte, register uint32) string {
	return fmt.Sprintf("%c%d", prefix, register)
}

// BindSRV binds shader resources starting at register start. Zero views are
// skipped; buffer views go through the buffer qualified registers.
func (n *NumericUniformsInterface) BindSRV(start uint32, views ...metadata.ResourceView) {
	n.bindViews(start, views, numericShaderResource, numericShaderResourceBuffer)
}

func (n *NumericUniformsInterface) BindUAV(start uint32, views ...metadata.ResourceView) {
	n.bindViews(start, views, numericUnorderedAccess, numericUnorderedAccessBuffer)
}

func (n *NumericUniformsInterface) bindViews(start uint32, views []metadata.ResourceView, imageTable, bufferTable numericTable) {
	for c, v := range views {
		register := start + uint32(c)
		t := imageTable
		switch {
		case v.HasImage():
		case v.HasBuffer():
			t = bufferTable
		default:
			continue
		}
		target, ok := n.lookup(t, register)
		if !ok {
			continue
		}
		target.set.builder.BindView(target.slot, v, registerName(numericTables[t].register.RegisterPrefix(), register))
	}
}

func (n *NumericUniformsInterface) BindConstantBuffers(start uint32, buffers ...metadata.BufferRange) {
	for c, b := range buffers {
		if b.Buffer == 0 {
			continue
		}
		register := start + uint32(c)
		target, ok := n.lookup(numericConstantBuffer, register)
		if !ok {
			continue
		}
		target.set.builder.BindBuffer(target.slot, b, registerName('b', register))
	}
}

func (n *NumericUniformsInterface) BindSamplers(start uint32, samplers ...metadata.SamplerHandle) {
	for c, s := range samplers {
		if s == 0 {
			continue
		}
		register := start + uint32(c)
		target, ok := n.lookup(numericSampler, register)
		if !ok {
			continue
		}
		target.set.builder.BindSampler(target.slot, s, registerName('s', register))
	}
}

func (n *NumericUniformsInterface) HasChanges() bool {
	for _, s := range n.sets {
		if s.builder.HasChanges() {
			return true
		}
	}
	return false
}

// Apply writes pending changes into a fresh set per descriptor set, copying
// the slots filled earlier from the previous set, and binds the results.
func (n *NumericUniformsInterface) Apply(ctx *encoder.DeviceContext) error {
	for _, s := range n.sets {
		if s.builder.HasChanges() {
			next, err := n.pools.DescriptorPool.Allocate(s.layout.Handle)
			if err != nil {
				return err
			}
			written := s.builder.FlushChanges(n.pools.Device, next, s.active, s.filled)
			s.filled |= written
			n.pools.DescriptorPool.Release(s.active)
			s.active = next
		}
		if s.active == 0 {
			continue
		}
		if err := ctx.BindDescriptorSet(n.pipelineType, s.index, s.active); err != nil {
			return err
		}
	}
	return nil
}

// Reset returns the current sets to the pool, forgets everything bound and
// stages a blank resource in every slot.
func (n *NumericUniformsInterface) Reset() {
	for _, s := range n.sets {
		s.builder.Reset()
		n.pools.DescriptorPool.Release(s.active)
		s.active = 0
		s.filled = 0
		s.builder.BindDummyDescriptors(n.pools.Dummies, containers.AllSlots(len(s.layout.Signature.Slots)))
	}
}

// UnmappedBindings lists every register bound without a mapping, in the
// order first seen.
func (n *NumericUniformsInterface) UnmappedBindings() []UnmappedBinding {
	return n.unmapped
}

// DescriptorSet is the set last applied at a pipeline layout index.
func (n *NumericUniformsInterface) DescriptorSet(index uint32) metadata.DescriptorSetHandle {
	for _, s := range n.sets {
		if s.index == index {
			return s.active
		}
	}
	return 0
}

func (n *NumericUniformsInterface) LegacyBinding() *descriptor.LegacyRegisterBindingDesc {
	return n.legacy
}
