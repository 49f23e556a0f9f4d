package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle        vk.Framebuffer
	Width, Height uint32
	// Images backing the attachments, owned by the framebuffer.
	Images     []*VulkanImage
	Renderpass *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Width:      width,
		Height:     height,
		Renderpass: renderpass,
	}
	samples := sampleCount(renderpass.Desc.Samples)

	views := make([]vk.ImageView, 0, renderpass.Desc.ColorCount+1)
	for i := uint32(0); i < renderpass.Desc.ColorCount; i++ {
		image, err := ImageCreate(context, width, height, colorFormat,
			vk.ImageUsageColorAttachmentBit|vk.ImageUsageSampledBit, vk.ImageAspectColorBit, samples)
		if err != nil {
			outFramebuffer.Destroy(context)
			return nil, err
		}
		outFramebuffer.Images = append(outFramebuffer.Images, image)
		views = append(views, image.View)
	}
	if renderpass.Desc.Depth {
		image, err := ImageCreate(context, width, height, renderpass.DepthFormat,
			vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit, samples)
		if err != nil {
			outFramebuffer.Destroy(context)
			return nil, err
		}
		outFramebuffer.Images = append(outFramebuffer.Images, image)
		views = append(views, image.View)
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if err := check(vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer), "vkCreateFramebuffer"); err != nil {
		outFramebuffer.Destroy(context)
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
		vfb.Handle = nil
	}
	for _, image := range vfb.Images {
		image.Destroy(context)
	}
	vfb.Images = nil
	vfb.Renderpass = nil
}
