package uniforms

import (
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// FixedDescriptorSetBinding declares a descriptor set the caller builds
// itself and binds with BoundUniforms.ApplyDescriptorSets.
type FixedDescriptorSetBinding struct {
	Name      string
	HashName  uint64
	Signature *descriptor.DescriptorSetSignature
}

// UniformsStreamInterface is the list of inputs a call site intends to
// supply, by name. The position of a name in its list is the index of the
// value in the matching UniformsStream list.
type UniformsStreamInterface struct {
	ResourceViews       []uint64
	ImmediateData       []uint64
	Samplers            []uint64
	FixedDescriptorSets []FixedDescriptorSetBinding

	names map[uint64]string
}

func grow(list []uint64, index uint32) []uint64 {
	for uint32(len(list)) <= index {
		list = append(list, 0)
	}
	return list
}

func (u *UniformsStreamInterface) remember(name string) uint64 {
	h := core.HashName(name)
	if u.names == nil {
		u.names = make(map[uint64]string)
	}
	u.names[h] = name
	return h
}

func (u *UniformsStreamInterface) BindResourceView(index uint32, name string) *UniformsStreamInterface {
	u.ResourceViews = grow(u.ResourceViews, index)
	u.ResourceViews[index] = u.remember(name)
	return u
}

func (u *UniformsStreamInterface) BindImmediateData(index uint32, name string) *UniformsStreamInterface {
	u.ImmediateData = grow(u.ImmediateData, index)
	u.ImmediateData[index] = u.remember(name)
	return u
}

func (u *UniformsStreamInterface) BindSampler(index uint32, name string) *UniformsStreamInterface {
	u.Samplers = grow(u.Samplers, index)
	u.Samplers[index] = u.remember(name)
	return u
}

func (u *UniformsStreamInterface) BindFixedDescriptorSet(index uint32, name string, signature *descriptor.DescriptorSetSignature) *UniformsStreamInterface {
	for uint32(len(u.FixedDescriptorSets)) <= index {
		u.FixedDescriptorSets = append(u.FixedDescriptorSets, FixedDescriptorSetBinding{})
	}
	u.FixedDescriptorSets[index] = FixedDescriptorSetBinding{Name: name, HashName: u.remember(name), Signature: signature}
	return u
}

// Name returns the name a hash was bound with, if this interface knows it.
func (u *UniformsStreamInterface) Name(hashName uint64) string {
	return u.names[hashName]
}

func indexOf(list []uint64, hashName uint64) int {
	if hashName == 0 {
		return -1
	}
	for i, h := range list {
		if h == hashName {
			return i
		}
	}
	return -1
}

// UniformsStream carries the values for one draw, positioned like the
// names of the UniformsStreamInterface it was resolved against. Zero values
// are treated as not supplied.
type UniformsStream struct {
	ResourceViews []metadata.ResourceView
	ImmediateData [][]byte
	Samplers      []metadata.SamplerHandle
}
