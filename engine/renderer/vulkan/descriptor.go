package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

/**
 * @brief A descriptor set layout together with the slots it was built from.
 */
type VulkanDescriptorSetLayout struct {
	Handle vk.DescriptorSetLayout
	Name   string
	Slots  []metadata.DescriptorSlot
}

/** @brief A descriptor set allocated from the device pool. */
type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Layout *VulkanDescriptorSetLayout
}

// VulkanDescriptorPool is created with FreeDescriptorSet so sets can be
// returned one at a time.
type VulkanDescriptorPool struct {
	Handle  vk.DescriptorPool
	MaxSets uint32
}

var poolDescriptorTypes = []metadata.DescriptorType{
	metadata.DescriptorTypeSampler,
	metadata.DescriptorTypeTexture,
	metadata.DescriptorTypeConstantBuffer,
	metadata.DescriptorTypeUnorderedAccessTexture,
	metadata.DescriptorTypeUnorderedAccessBuffer,
}

func DescriptorPoolCreate(context *VulkanContext, maxSets, descriptorsPerKind uint32) (*VulkanDescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(poolDescriptorTypes))
	for i, t := range poolDescriptorTypes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            descriptorType(t),
			DescriptorCount: descriptorsPerKind,
		}
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(context.Device.LogicalDevice, &info, context.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	core.LogDebug("Descriptor pool created with %d sets, %d descriptors per kind.", maxSets, descriptorsPerKind)
	return &VulkanDescriptorPool{Handle: pool, MaxSets: maxSets}, nil
}

func (vp *VulkanDescriptorPool) Destroy(context *VulkanContext) {
	if vp.Handle != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, vp.Handle, context.Allocator)
		vp.Handle = nil
	}
}

func (vp *VulkanDescriptorPool) Allocate(context *VulkanContext, layout *VulkanDescriptorSetLayout) (*VulkanDescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     vp.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}
	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(context.Device.LogicalDevice, &info, &set), "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return &VulkanDescriptorSet{Handle: set, Layout: layout}, nil
}

func (vp *VulkanDescriptorPool) Free(context *VulkanContext, set *VulkanDescriptorSet) {
	if res := vk.FreeDescriptorSets(context.Device.LogicalDevice, vp.Handle, 1, &set.Handle); !VulkanResultIsSuccess(res) {
		core.LogWarn("vkFreeDescriptorSets failed with %s", VulkanResultString(res, false))
	}
	set.Handle = nil
}

func DescriptorSetLayoutCreate(context *VulkanContext, desc metadata.DescriptorSetLayoutDesc) (*VulkanDescriptorSetLayout, error) {
	stages := shaderStageFlags(desc.Stages)
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Slots))
	for i, slot := range desc.Slots {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  descriptorType(slot.Type),
			DescriptorCount: max(slot.Count, 1),
			StageFlags:      stages,
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &info, context.Allocator, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return &VulkanDescriptorSetLayout{
		Handle: layout,
		Name:   desc.Name,
		Slots:  append([]metadata.DescriptorSlot(nil), desc.Slots...),
	}, nil
}

func (vl *VulkanDescriptorSetLayout) Destroy(context *VulkanContext) {
	if vl.Handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, vl.Handle, context.Allocator)
		vl.Handle = vk.NullDescriptorSetLayout
	}
}

func (d *Device) CreateDescriptorSetLayout(desc metadata.DescriptorSetLayoutDesc) (metadata.DescriptorSetLayoutHandle, error) {
	var layout *VulkanDescriptorSetLayout
	err := d.context.Locks.SafeCall(DescriptorManagement, func() error {
		var err error
		layout, err = DescriptorSetLayoutCreate(d.context, desc)
		return err
	})
	if err != nil {
		return 0, err
	}
	h := metadata.DescriptorSetLayoutHandle(d.handle())
	d.setLayouts.put(h, layout)
	return h, nil
}

func (d *Device) AllocateDescriptorSet(layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	l, ok := d.setLayouts.get(layout)
	if !ok {
		return 0, fmt.Errorf("unknown descriptor set layout %d", layout)
	}
	var set *VulkanDescriptorSet
	err := d.context.Locks.SafeCall(DescriptorManagement, func() error {
		var err error
		set, err = d.descriptorPool.Allocate(d.context, l)
		return err
	})
	if err != nil {
		return 0, err
	}
	h := metadata.DescriptorSetHandle(d.handle())
	d.sets.put(h, set)
	return h, nil
}

func (d *Device) FreeDescriptorSet(set metadata.DescriptorSetHandle) {
	s, ok := d.sets.take(set)
	if !ok {
		return
	}
	_ = d.context.Locks.SafeCall(DescriptorManagement, func() error {
		d.descriptorPool.Free(d.context, s)
		return nil
	})
}

// descriptorWrite translates w. Writes naming unknown objects are dropped
// with an error log, the way a validation layer would reject them.
func (d *Device) descriptorWrite(w metadata.DescriptorWrite) (vk.WriteDescriptorSet, bool) {
	set, ok := d.sets.get(w.Set)
	if !ok {
		core.LogError("descriptor write to unknown set %d", w.Set)
		return vk.WriteDescriptorSet{}, false
	}
	out := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set.Handle,
		DstBinding:      w.Binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType(w.Type),
	}
	switch info := w.Info.(type) {
	case metadata.SamplerInfo:
		sampler, ok := d.samplers.get(info.Sampler)
		if !ok {
			core.LogError("descriptor write of unknown sampler %d", info.Sampler)
			return out, false
		}
		out.PImageInfo = []vk.DescriptorImageInfo{{Sampler: sampler}}
	case metadata.ImageInfo:
		image, ok := d.images.get(info.View)
		if !ok {
			core.LogError("descriptor write of unknown image view %d", info.View)
			return out, false
		}
		out.PImageInfo = []vk.DescriptorImageInfo{{ImageView: image.View, ImageLayout: imageLayout(w.Type)}}
	case metadata.BufferInfo:
		buffer, ok := d.buffers.get(info.Buffer)
		if !ok {
			core.LogError("descriptor write of unknown buffer %d", info.Buffer)
			return out, false
		}
		size := vk.DeviceSize(info.Range)
		if info.Range == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		out.PBufferInfo = []vk.DescriptorBufferInfo{{Buffer: buffer.Handle, Offset: vk.DeviceSize(info.Offset), Range: size}}
	default:
		core.LogError("descriptor write with no payload to set %d binding %d", w.Set, w.Binding)
		return out, false
	}
	return out, true
}

func (d *Device) UpdateDescriptorSets(writes []metadata.DescriptorWrite, copies []metadata.DescriptorCopy) {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		if out, ok := d.descriptorWrite(w); ok {
			vkWrites = append(vkWrites, out)
		}
	}
	vkCopies := make([]vk.CopyDescriptorSet, 0, len(copies))
	for _, c := range copies {
		src, srcOK := d.sets.get(c.Src)
		dst, dstOK := d.sets.get(c.Dst)
		if !srcOK || !dstOK {
			core.LogError("descriptor copy between unknown sets %d and %d", c.Src, c.Dst)
			continue
		}
		// one copy per binding, consecutive bindings may differ in type
		for i := uint32(0); i < c.Count; i++ {
			vkCopies = append(vkCopies, vk.CopyDescriptorSet{
				SType:           vk.StructureTypeCopyDescriptorSet,
				SrcSet:          src.Handle,
				SrcBinding:      c.SrcBinding + i,
				DstSet:          dst.Handle,
				DstBinding:      c.DstBinding + i,
				DescriptorCount: 1,
			})
		}
	}
	if len(vkWrites) == 0 && len(vkCopies) == 0 {
		return
	}
	_ = d.context.Locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, uint32(len(vkCopies)), vkCopies)
		return nil
	})
}
