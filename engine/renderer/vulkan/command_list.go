package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// CommandList records into a primary command buffer. Calls naming objects
// the device does not know are logged and dropped.
type CommandList struct {
	device *Device
	buffer *VulkanCommandBuffer
	id     uint64
}

var _ renderer.CommandList = (*CommandList)(nil)

func (cl *CommandList) ID() uint64 { return cl.id }

func (cl *CommandList) record(fn func(cb vk.CommandBuffer)) {
	_ = cl.device.context.Locks.SafeCall(CommandBufferManagement, func() error {
		fn(cl.buffer.Handle)
		return nil
	})
}

func (cl *CommandList) BindPipeline(pipelineType metadata.PipelineType, pipeline metadata.PipelineHandle) {
	p, ok := cl.device.pipelines.get(pipeline)
	if !ok {
		core.LogError("bind of unknown pipeline %d", pipeline)
		return
	}
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdBindPipeline(cb, bindPoint(pipelineType), p.Handle)
	})
}

func (cl *CommandList) BindDescriptorSets(pipelineType metadata.PipelineType, layout metadata.PipelineLayoutHandle, firstSet uint32, sets []metadata.DescriptorSetHandle) {
	l, ok := cl.device.pipelineLayouts.get(layout)
	if !ok {
		core.LogError("bind of descriptor sets with unknown pipeline layout %d", layout)
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, h := range sets {
		s, ok := cl.device.sets.get(h)
		if !ok {
			core.LogError("bind of unknown descriptor set %d at index %d", h, firstSet+uint32(i))
			return
		}
		handles[i] = s.Handle
	}
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdBindDescriptorSets(cb, bindPoint(pipelineType), l, firstSet, uint32(len(handles)), handles, 0, nil)
	})
}

func (cl *CommandList) PushConstants(layout metadata.PipelineLayoutHandle, stages metadata.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	l, ok := cl.device.pipelineLayouts.get(layout)
	if !ok {
		core.LogError("push constants with unknown pipeline layout %d", layout)
		return
	}
	// cgo must not see a pointer into Go memory holding pointers; a copy of
	// the bytes is safe to pass.
	values := append([]byte(nil), data...)
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdPushConstants(cb, l, shaderStageFlags(stages), offset, uint32(len(values)), unsafe.Pointer(&values[0]))
	})
}

func (cl *CommandList) BufferBarrier(buffer metadata.BufferHandle, offset, size uint64) {
	b, ok := cl.device.buffers.get(buffer)
	if !ok {
		core.LogError("barrier on unknown buffer %d", buffer)
		return
	}
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessHostWriteBit | vk.AccessTransferWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessUniformReadBit | vk.AccessShaderReadBit),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.Handle,
		Offset:              vk.DeviceSize(offset),
		Size:                vk.DeviceSize(size),
	}
	if size == 0 {
		barrier.Size = vk.DeviceSize(vk.WholeSize)
	}
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdPipelineBarrier(cb,
			vk.PipelineStageFlags(vk.PipelineStageHostBit|vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit|vk.PipelineStageComputeShaderBit),
			0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
	})
}

// MemoryBarrier matches the self dependency every subpass declares, so it is
// legal inside a render pass.
func (cl *CommandList) MemoryBarrier() {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessUniformReadBit),
	}
	stages := vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit)
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdPipelineBarrier(cb, stages, stages, vk.DependencyFlags(vk.DependencyByRegionBit),
			1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	})
}

func (cl *CommandList) BeginRenderPass(info renderer.RenderPassBeginInfo) {
	rp, ok := cl.device.renderPasses.get(info.RenderPass)
	if !ok {
		core.LogError("begin of unknown render pass %d", info.RenderPass)
		return
	}
	width, height := max(info.Width, 1), max(info.Height, 1)
	fb, err := rp.Framebuffer(cl.device.context, width, height)
	if err != nil {
		core.LogError("render pass (%s) has no framebuffer for %dx%d: %s", rp.Desc.Name, width, height, err)
		return
	}
	area := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	clearValues := rp.ClearValues()
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.Handle,
		Framebuffer:     fb.Handle,
		RenderArea:      area,
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdBeginRenderPass(cb, &beginInfo, vk.SubpassContentsInline)
		vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
			Width:    float32(width),
			Height:   float32(height),
			MinDepth: 0.0,
			MaxDepth: 1.0,
		}})
		vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{area})
	})
	cl.buffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cl *CommandList) NextSubpass() {
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdNextSubpass(cb, vk.SubpassContentsInline)
	})
}

func (cl *CommandList) EndRenderPass() {
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdEndRenderPass(cb)
	})
	cl.buffer.State = COMMAND_BUFFER_STATE_RECORDING
}

func (cl *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdDraw(cb, vertexCount, instanceCount, firstVertex, firstInstance)
	})
}

func (cl *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	})
}

func (cl *CommandList) Dispatch(x, y, z uint32) {
	cl.record(func(cb vk.CommandBuffer) {
		vk.CmdDispatch(cb, x, y, z)
	})
}

func (cl *CommandList) End() error {
	return cl.device.context.Locks.SafeCall(CommandBufferManagement, func() error {
		if cl.buffer.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
			core.LogWarn("command list %d ended inside a render pass", cl.id)
			vk.CmdEndRenderPass(cl.buffer.Handle)
		}
		return cl.buffer.End()
	})
}
