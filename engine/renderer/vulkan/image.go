package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

const colorFormat = vk.FormatR8g8b8a8Unorm

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	// Layout the image is kept in once created.
	Layout vk.ImageLayout
}

// ImageCreate creates a 2D image with a single mip, bound to device local
// memory, and a view over it.
func ImageCreate(context *VulkanContext, width, height uint32, format vk.Format, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits, samples vk.SampleCountFlagBits) (*VulkanImage, error) {
	out := &VulkanImage{Width: width, Height: height, Format: format, Layout: vk.ImageLayoutUndefined}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check(vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &image), "vkCreateImage"); err != nil {
		return nil, err
	}
	out.Handle = image

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image, &requirements)
	memory, err := context.allocateMemory(requirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		out.Destroy(context)
		return nil, err
	}
	out.Memory = memory
	if err := check(vk.BindImageMemory(context.Device.LogicalDevice, image, memory, 0), "vkBindImageMemory"); err != nil {
		out.Destroy(context)
		return nil, err
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view), "vkCreateImageView"); err != nil {
		out.Destroy(context)
		return nil, err
	}
	out.View = view
	return out, nil
}

// newResourceImage creates an image to be bound to texture or storage slots
// and moves it into the layout those slots expect.
func newResourceImage(context *VulkanContext, desc metadata.ImageViewDesc) (*VulkanImage, error) {
	usage := vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit
	if desc.Storage {
		usage |= vk.ImageUsageStorageBit
	}
	image, err := ImageCreate(context, max(desc.Width, 1), max(desc.Height, 1), colorFormat, usage, vk.ImageAspectColorBit, vk.SampleCount1Bit)
	if err != nil {
		return nil, err
	}

	layout := imageLayout(metadata.DescriptorTypeTexture)
	if desc.Storage {
		layout = imageLayout(metadata.DescriptorTypeUnorderedAccessTexture)
	}
	err = context.Locks.SafeCall(CommandBufferManagement, func() error {
		cb, err := AllocateAndBeginSingleUse(context, context.Device.CommandPool)
		if err != nil {
			return err
		}
		image.TransitionLayout(cb, layout)
		return context.Locks.SafeQueueCall(uint32(context.Device.QueueIndex), func() error {
			return cb.EndSingleUse(context, context.Device.CommandPool, context.Device.Queue)
		})
	})
	if err != nil {
		image.Destroy(context)
		return nil, err
	}
	return image, nil
}

// TransitionLayout records a barrier moving the whole image from its current
// layout into layout.
func (vi *VulkanImage) TransitionLayout(cb *VulkanCommandBuffer, layout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       0,
		DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
		OldLayout:           vi.Layout,
		NewLayout:           layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cb.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	vi.Layout = layout
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	if vi.View != nil {
		vk.DestroyImageView(context.Device.LogicalDevice, vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}

// SamplerCreate creates a sampler from desc. Anisotropy is only enabled when
// the device supports it.
func SamplerCreate(context *VulkanContext, desc metadata.SamplerDesc) (vk.Sampler, error) {
	filter := vk.FilterNearest
	mipmap := vk.SamplerMipmapModeNearest
	if desc.LinearFilter {
		filter = vk.FilterLinear
		mipmap = vk.SamplerMipmapModeLinear
	}
	address := vk.SamplerAddressModeRepeat
	if desc.ClampToEdge {
		address = vk.SamplerAddressModeClampToEdge
	}
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              mipmap,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
	}
	if desc.MaxAnisotropy > 1 && context.Device.Features.SamplerAnisotropy == vk.True {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = min(desc.MaxAnisotropy, context.Device.Properties.Limits.MaxSamplerAnisotropy)
	}
	var sampler vk.Sampler
	if err := check(vk.CreateSampler(context.Device.LogicalDevice, &info, context.Allocator, &sampler), "vkCreateSampler"); err != nil {
		return nil, err
	}
	return sampler, nil
}
