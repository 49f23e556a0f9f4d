package metadata

import (
	"fmt"
	"strings"
)

type DescriptorType uint8

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeTexture
	DescriptorTypeConstantBuffer
	DescriptorTypeUnorderedAccessTexture
	DescriptorTypeUnorderedAccessBuffer
	DescriptorTypeUnknown
)

var descriptorTypeNames = [...]string{
	DescriptorTypeSampler:                "Sampler",
	DescriptorTypeTexture:                "Texture",
	DescriptorTypeConstantBuffer:         "ConstantBuffer",
	DescriptorTypeUnorderedAccessTexture: "UnorderedAccessTexture",
	DescriptorTypeUnorderedAccessBuffer:  "UnorderedAccessBuffer",
	DescriptorTypeUnknown:                "Unknown",
}

func (t DescriptorType) String() string {
	if int(t) < len(descriptorTypeNames) {
		return descriptorTypeNames[t]
	}
	return fmt.Sprintf("DescriptorType(%d)", uint8(t))
}

// ParseDescriptorType is case insensitive. Unknown names return
// DescriptorTypeUnknown and false.
func ParseDescriptorType(name string) (DescriptorType, bool) {
	for i, n := range descriptorTypeNames {
		if DescriptorType(i) == DescriptorTypeUnknown {
			continue
		}
		if strings.EqualFold(n, name) {
			return DescriptorType(i), true
		}
	}
	return DescriptorTypeUnknown, false
}

func (t DescriptorType) IsImage() bool {
	return t == DescriptorTypeTexture || t == DescriptorTypeUnorderedAccessTexture
}

func (t DescriptorType) IsBuffer() bool {
	return t == DescriptorTypeConstantBuffer || t == DescriptorTypeUnorderedAccessBuffer
}

/** @brief One binding point of a descriptor set signature. */
type DescriptorSlot struct {
	Type  DescriptorType
	Count uint32
}

func Slot(t DescriptorType) DescriptorSlot {
	return DescriptorSlot{Type: t, Count: 1}
}

// DescriptorInfo is the payload of a single descriptor write. It is one of
// SamplerInfo, ImageInfo or BufferInfo.
type DescriptorInfo interface {
	// Compatible reports whether the payload can be written into a slot of type t.
	Compatible(t DescriptorType) bool
	isDescriptorInfo()
}

type SamplerInfo struct {
	Sampler SamplerHandle
}

type ImageInfo struct {
	View ImageViewHandle
}

type BufferInfo struct {
	Buffer BufferHandle
	Offset uint64
	Range  uint64
}

func (SamplerInfo) isDescriptorInfo() {}
func (ImageInfo) isDescriptorInfo()   {}
func (BufferInfo) isDescriptorInfo()  {}

func (SamplerInfo) Compatible(t DescriptorType) bool { return t == DescriptorTypeSampler }
func (ImageInfo) Compatible(t DescriptorType) bool   { return t.IsImage() }
func (BufferInfo) Compatible(t DescriptorType) bool  { return t.IsBuffer() }

// DescriptorWrite targets one binding of a descriptor set.
type DescriptorWrite struct {
	Set     DescriptorSetHandle
	Binding uint32
	Type    DescriptorType
	Info    DescriptorInfo
}

// DescriptorCopy copies Count consecutive bindings starting at SrcBinding.
type DescriptorCopy struct {
	Src        DescriptorSetHandle
	SrcBinding uint32
	Dst        DescriptorSetHandle
	DstBinding uint32
	Count      uint32
}

// ResourceView is what the application binds to a texture or buffer slot.
// Exactly one of Image or Buffer is valid.
type ResourceView struct {
	Image  ImageViewHandle
	Buffer BufferRange
}

func ImageView(h ImageViewHandle) ResourceView {
	return ResourceView{Image: h}
}

func BufferView(b BufferRange) ResourceView {
	return ResourceView{Buffer: b}
}

func (v ResourceView) HasImage() bool {
	return v.Image != 0
}

func (v ResourceView) HasBuffer() bool {
	return v.Buffer.Buffer != 0
}
