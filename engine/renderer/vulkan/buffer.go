package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Name   string

	// persistently mapped when host visible
	mapped unsafe.Pointer
}

func NewVulkanBuffer(context *VulkanContext, desc metadata.BufferDesc) (*VulkanBuffer, error) {
	out := &VulkanBuffer{Size: desc.Size, Name: desc.Name}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &buffer), "vkCreateBuffer"); err != nil {
		return nil, err
	}
	out.Handle = buffer

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer, &requirements)

	properties := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memory, err := context.allocateMemory(requirements, properties)
	if err != nil {
		out.Destroy(context)
		return nil, err
	}
	out.Memory = memory

	if err := check(vk.BindBufferMemory(context.Device.LogicalDevice, buffer, memory, 0), "vkBindBufferMemory"); err != nil {
		out.Destroy(context)
		return nil, err
	}

	if desc.HostVisible {
		var mapped unsafe.Pointer
		if err := check(vk.MapMemory(context.Device.LogicalDevice, memory, 0, vk.DeviceSize(vk.WholeSize), 0, &mapped), "vkMapMemory"); err != nil {
			out.Destroy(context)
			return nil, err
		}
		out.mapped = mapped
	}
	return out, nil
}

// Write copies data into a host visible buffer at offset.
func (vb *VulkanBuffer) Write(offset uint64, data []byte) error {
	if vb.mapped == nil {
		return fmt.Errorf("buffer (%s) is not host visible", vb.Name)
	}
	if offset+uint64(len(data)) > vb.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer (%s) of %d bytes", len(data), offset, vb.Name, vb.Size)
	}
	if n := vk.Memcopy(unsafe.Add(vb.mapped, offset), data); n != len(data) {
		return fmt.Errorf("%w: copied %d of %d bytes into buffer (%s)", core.ErrDeviceFailure, n, len(data), vb.Name)
	}
	return nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.mapped != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
}
