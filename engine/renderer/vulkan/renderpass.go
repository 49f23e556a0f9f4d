package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type framebufferSize struct {
	Width, Height uint32
}

// VulkanRenderpass renders into attachments it owns. One framebuffer is
// kept per size it has been begun with.
type VulkanRenderpass struct {
	Handle      vk.RenderPass
	Desc        metadata.RenderPassDesc
	DepthFormat vk.Format
	// Clear values, color first then depth/stencil.
	R, G, B, A float32
	Depth      float32
	Stencil    uint32

	mu           sync.Mutex
	framebuffers map[framebufferSize]*VulkanFramebuffer
}

func RenderpassCreate(context *VulkanContext, desc metadata.RenderPassDesc) (*VulkanRenderpass, error) {
	if desc.SubpassCount == 0 {
		desc.SubpassCount = 1
	}
	if desc.Samples == 0 {
		desc.Samples = 1
	}
	outRenderpass := &VulkanRenderpass{
		Desc:         desc,
		DepthFormat:  context.Device.DepthFormat,
		A:            1.0,
		Depth:        1.0,
		framebuffers: make(map[framebufferSize]*VulkanFramebuffer),
	}
	samples := sampleCount(desc.Samples)

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, desc.ColorCount+1)
	colorAttachmentReferences := make([]vk.AttachmentReference, desc.ColorCount)
	for i := uint32(0); i < desc.ColorCount; i++ {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         colorFormat,
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined, // Do not expect any particular layout before render pass starts.
			FinalLayout:    vk.ImageLayoutShaderReadOnlyOptimal,
		})
		colorAttachmentReferences[i] = vk.AttachmentReference{
			Attachment: i, // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	// Depth attachment, if there is one
	var depthAttachmentReference *vk.AttachmentReference
	if desc.Depth {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         context.Device.DepthFormat,
			Samples:        samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		depthAttachmentReference = &vk.AttachmentReference{
			Attachment: desc.ColorCount,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Every subpass writes all attachments.
	subpasses := make([]vk.SubpassDescription, desc.SubpassCount)
	for i := range subpasses {
		subpasses[i] = vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    desc.ColorCount,
			PColorAttachments:       colorAttachmentReferences,
			PDepthStencilAttachment: depthAttachmentReference,
		}
	}

	attachmentAccess := vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	attachmentStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	shaderStages := vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit)

	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  attachmentStages,
		DstAccessMask: attachmentAccess,
	}}
	for i := uint32(0); i < desc.SubpassCount; i++ {
		// self dependency for MemoryBarrier inside the subpass
		dependencies = append(dependencies, vk.SubpassDependency{
			SrcSubpass:      i,
			DstSubpass:      i,
			SrcStageMask:    shaderStages,
			SrcAccessMask:   vk.AccessFlags(vk.AccessShaderWriteBit),
			DstStageMask:    shaderStages,
			DstAccessMask:   vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessUniformReadBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		})
		if i > 0 {
			dependencies = append(dependencies, vk.SubpassDependency{
				SrcSubpass:      i - 1,
				DstSubpass:      i,
				SrcStageMask:    attachmentStages,
				SrcAccessMask:   attachmentAccess,
				DstStageMask:    attachmentStages,
				DstAccessMask:   attachmentAccess,
				DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
			})
		}
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var pRenderPass vk.RenderPass
	if err := check(vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass), "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	outRenderpass.Handle = pRenderPass
	core.LogDebug("Render pass (%s) created with %d subpasses.", desc.Name, desc.SubpassCount)
	return outRenderpass, nil
}

// Framebuffer returns the framebuffer for a size, creating its attachments
// on first use.
func (vr *VulkanRenderpass) Framebuffer(context *VulkanContext, width, height uint32) (*VulkanFramebuffer, error) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	size := framebufferSize{Width: width, Height: height}
	if fb, ok := vr.framebuffers[size]; ok {
		return fb, nil
	}
	fb, err := FramebufferCreate(context, vr, width, height)
	if err != nil {
		return nil, err
	}
	vr.framebuffers[size] = fb
	return fb, nil
}

func (vr *VulkanRenderpass) ClearValues() []vk.ClearValue {
	values := make([]vk.ClearValue, 0, vr.Desc.ColorCount+1)
	for i := uint32(0); i < vr.Desc.ColorCount; i++ {
		values = append(values, vk.NewClearValue([]float32{vr.R, vr.G, vr.B, vr.A}))
	}
	if vr.Desc.Depth {
		values = append(values, vk.NewClearDepthStencil(vr.Depth, vr.Stencil))
	}
	return values
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	vr.mu.Lock()
	for size, fb := range vr.framebuffers {
		fb.Destroy(context)
		delete(vr.framebuffers, size)
	}
	vr.mu.Unlock()
	if vr.Handle != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = nil
	}
}
