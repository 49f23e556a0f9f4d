package descriptor

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// DescriptorSetSignature is the ordered list of slot kinds that defines the
// shape of a descriptor set. It must not be modified once compiled.
type DescriptorSetSignature struct {
	Name     string
	HashName uint64
	Slots    []metadata.DescriptorSlot
}

func NewDescriptorSetSignature(name string, slots ...metadata.DescriptorType) *DescriptorSetSignature {
	s := &DescriptorSetSignature{Name: name, HashName: core.HashName(name)}
	for _, t := range slots {
		s.Slots = append(s.Slots, metadata.Slot(t))
	}
	return s
}

// Hash identifies the signature by value; the name does not participate.
func (s *DescriptorSetSignature) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, slot := range s.Slots {
		binary.LittleEndian.PutUint32(buf[:4], uint32(slot.Type))
		binary.LittleEndian.PutUint32(buf[4:], slot.Count)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func (s *DescriptorSetSignature) Clone() *DescriptorSetSignature {
	c := *s
	c.Slots = append([]metadata.DescriptorSlot(nil), s.Slots...)
	return &c
}

// Counts returns the number of slots per descriptor type.
func (s *DescriptorSetSignature) Counts() DescriptorCounts {
	var c DescriptorCounts
	for _, slot := range s.Slots {
		switch slot.Type {
		case metadata.DescriptorTypeSampler:
			c.Samplers += slot.Count
		case metadata.DescriptorTypeTexture:
			c.SampledImages += slot.Count
		case metadata.DescriptorTypeConstantBuffer:
			c.UniformBuffers += slot.Count
		case metadata.DescriptorTypeUnorderedAccessBuffer:
			c.StorageBuffers += slot.Count
		case metadata.DescriptorTypeUnorderedAccessTexture:
			c.StorageImages += slot.Count
		}
	}
	return c
}

type DescriptorCounts struct {
	SampledImages  uint32
	Samplers       uint32
	UniformBuffers uint32
	StorageBuffers uint32
	StorageImages  uint32
}

func (c *DescriptorCounts) Add(o DescriptorCounts) {
	c.SampledImages += o.SampledImages
	c.Samplers += o.Samplers
	c.UniformBuffers += o.UniformBuffers
	c.StorageBuffers += o.StorageBuffers
	c.StorageImages += o.StorageImages
}

// PushConstantsRangeSignature is a named inline data range.
type PushConstantsRangeSignature struct {
	Name       string
	HashName   uint64
	Stages     metadata.ShaderStage
	RangeStart uint32
	RangeSize  uint32
}

type RegisterType uint8

const (
	RegisterTypeSampler RegisterType = iota
	RegisterTypeShaderResource
	RegisterTypeConstantBuffer
	RegisterTypeUnorderedAccess
	RegisterTypeUnknown
)

// RegisterPrefix is the single letter used for the register type in signature files.
func (r RegisterType) RegisterPrefix() byte {
	switch r {
	case RegisterTypeSampler:
		return 's'
	case RegisterTypeShaderResource:
		return 't'
	case RegisterTypeConstantBuffer:
		return 'b'
	case RegisterTypeUnorderedAccess:
		return 'u'
	}
	return ' '
}

func registerTypeFromPrefix(c byte) RegisterType {
	switch c {
	case 'b':
		return RegisterTypeConstantBuffer
	case 's':
		return RegisterTypeSampler
	case 't':
		return RegisterTypeShaderResource
	case 'u':
		return RegisterTypeUnorderedAccess
	}
	return RegisterTypeUnknown
}

type RegisterQualifier uint8

const (
	RegisterQualifierNone RegisterQualifier = iota
	RegisterQualifierTexture
	RegisterQualifierBuffer
)

// LegacyRegisterEntry maps registers [Begin, End) onto slots
// [TargetBegin, TargetEnd) of the named descriptor set.
type LegacyRegisterEntry struct {
	Begin, End             uint32
	TargetSetName          string
	TargetSetHash          uint64
	TargetBegin, TargetEnd uint32
}

// LegacyRegisterBindingDesc is the static numeric register remapping table.
type LegacyRegisterBindingDesc struct {
	Name     string
	HashName uint64

	samplerRegisters        []LegacyRegisterEntry
	srvRegisters            []LegacyRegisterEntry
	srvRegistersBoundToBuf  []LegacyRegisterEntry
	constantBufferRegisters []LegacyRegisterEntry
	uavRegisters            []LegacyRegisterEntry
	uavRegistersBoundToBuf  []LegacyRegisterEntry
}

func (l *LegacyRegisterBindingDesc) list(t RegisterType, q RegisterQualifier) *[]LegacyRegisterEntry {
	switch t {
	case RegisterTypeSampler:
		return &l.samplerRegisters
	case RegisterTypeShaderResource:
		if q == RegisterQualifierBuffer {
			return &l.srvRegistersBoundToBuf
		}
		return &l.srvRegisters
	case RegisterTypeConstantBuffer:
		return &l.constantBufferRegisters
	case RegisterTypeUnorderedAccess:
		if q == RegisterQualifierBuffer {
			return &l.uavRegistersBoundToBuf
		}
		return &l.uavRegisters
	}
	return nil
}

// Entries returns the entries for a register type, sorted by Begin.
func (l *LegacyRegisterBindingDesc) Entries(t RegisterType, q RegisterQualifier) []LegacyRegisterEntry {
	if p := l.list(t, q); p != nil {
		return *p
	}
	return nil
}

// AppendEntry inserts e keeping the list sorted; overlapping registers are rejected.
func (l *LegacyRegisterBindingDesc) AppendEntry(t RegisterType, q RegisterQualifier, e LegacyRegisterEntry) error {
	dest := l.list(t, q)
	if dest == nil {
		return fmt.Errorf("%w: unknown register type", core.ErrSignatureFile)
	}
	i := 0
	for i < len(*dest) && (*dest)[i].Begin < e.Begin {
		i++
	}
	if i > 0 && (*dest)[i-1].End > e.Begin {
		return fmt.Errorf("%w: register overlap found in legacy binding %s (%c%d..%d)", core.ErrSignatureFile, l.Name, t.RegisterPrefix(), e.Begin, e.End)
	}
	if i < len(*dest) && (*dest)[i].Begin < e.End {
		return fmt.Errorf("%w: register overlap found in legacy binding %s (%c%d..%d)", core.ErrSignatureFile, l.Name, t.RegisterPrefix(), e.Begin, e.End)
	}
	*dest = append(*dest, LegacyRegisterEntry{})
	copy((*dest)[i+1:], (*dest)[i:])
	(*dest)[i] = e
	return nil
}

type DescriptorSetType uint8

const (
	DescriptorSetTypeAdaptive DescriptorSetType = iota
	DescriptorSetTypeNumeric
	DescriptorSetTypeUnknown
)

var descriptorSetTypeNames = [...]string{"Adaptive", "Numeric", "Unknown"}

func (t DescriptorSetType) String() string {
	if int(t) < len(descriptorSetTypeNames) {
		return descriptorSetTypeNames[t]
	}
	return "Unknown"
}

func parseDescriptorSetType(s string) DescriptorSetType {
	for i, n := range descriptorSetTypeNames {
		if n == s {
			return DescriptorSetType(i)
		}
	}
	return DescriptorSetTypeUnknown
}

// NoUniformStream marks a root signature set that is not fed by a uniform stream.
const NoUniformStream = ^uint32(0)

type DescriptorSetReference struct {
	Type          DescriptorSetType
	UniformStream uint32
	Name          string
	HashName      uint64
}

type RootSignature struct {
	Name           string
	HashName       uint64
	LegacyBindings string
	DescriptorSets []DescriptorSetReference
	PushConstants  []string
}

// SignatureFile is the parsed content of a descriptor set signature file.
type SignatureFile struct {
	Path              string
	MainRootSignature string

	DescriptorSets []*DescriptorSetSignature
	LegacyBindings []*LegacyRegisterBindingDesc
	PushConstants  []PushConstantsRangeSignature
	RootSignatures []RootSignature
}

func (f *SignatureFile) RootSignature(hashName uint64) *RootSignature {
	for i := range f.RootSignatures {
		if f.RootSignatures[i].HashName == hashName {
			return &f.RootSignatures[i]
		}
	}
	return nil
}

func (f *SignatureFile) MainRoot() *RootSignature {
	return f.RootSignature(core.HashName(f.MainRootSignature))
}

func (f *SignatureFile) DescriptorSet(hashName uint64) *DescriptorSetSignature {
	for _, d := range f.DescriptorSets {
		if d.HashName == hashName {
			return d
		}
	}
	return nil
}

func (f *SignatureFile) LegacyBinding(hashName uint64) *LegacyRegisterBindingDesc {
	for _, l := range f.LegacyBindings {
		if l.HashName == hashName {
			return l
		}
	}
	return nil
}

func (f *SignatureFile) PushConstantsRange(hashName uint64) *PushConstantsRangeSignature {
	for i := range f.PushConstants {
		if f.PushConstants[i].HashName == hashName {
			return &f.PushConstants[i]
		}
	}
	return nil
}
