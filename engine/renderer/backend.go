package renderer

import "github.com/spaghettifunk/vkbind/engine/renderer/metadata"

// Marker is a GPU progress counter. Work recorded now is tagged with the
// producer marker; it is complete once the consumer marker reaches it.
type Marker uint64

type GPUTracker interface {
	ProducerMarker() Marker
	ConsumerMarker() Marker
}

// RenderDevice is the backend capability surface the binding layer is
// written against. Implementations: vulkan.Device and headless.Device.
type RenderDevice interface {
	Limits() metadata.DeviceLimits
	Tracker() GPUTracker

	CreateDescriptorSetLayout(desc metadata.DescriptorSetLayoutDesc) (metadata.DescriptorSetLayoutHandle, error)
	AllocateDescriptorSet(layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error)
	FreeDescriptorSet(set metadata.DescriptorSetHandle)
	// UpdateDescriptorSets applies all writes and copies as one batch.
	UpdateDescriptorSets(writes []metadata.DescriptorWrite, copies []metadata.DescriptorCopy)

	CreatePipelineLayout(desc metadata.PipelineLayoutDesc) (metadata.PipelineLayoutHandle, error)
	CreateGraphicsPipeline(desc *metadata.GraphicsPipelineDesc) (metadata.PipelineHandle, error)
	CreateComputePipeline(desc *metadata.ComputePipelineDesc) (metadata.PipelineHandle, error)
	DestroyPipeline(pipeline metadata.PipelineHandle)
	CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.ShaderModuleHandle, error)
	CreateRenderPass(desc metadata.RenderPassDesc) (metadata.RenderPassHandle, error)

	CreateBuffer(desc metadata.BufferDesc) (metadata.BufferHandle, error)
	WriteBuffer(buffer metadata.BufferHandle, offset uint64, data []byte) error
	DestroyBuffer(buffer metadata.BufferHandle)
	CreateImageView(desc metadata.ImageViewDesc) (metadata.ImageViewHandle, error)
	CreateSampler(desc metadata.SamplerDesc) (metadata.SamplerHandle, error)

	BeginCommandList() (CommandList, error)
	// Submit closes cmd and hands it to the queue under the current producer marker.
	Submit(cmd CommandList) error
	Shutdown() error
}

// RenderPassBeginInfo starts a render pass. The backend owns the attachments.
type RenderPassBeginInfo struct {
	RenderPass metadata.RenderPassHandle
	Width      uint32
	Height     uint32
}

// CommandList records GPU commands for one submission.
type CommandList interface {
	// ID changes for every recording, so cached per-list state can be invalidated.
	ID() uint64
	BindPipeline(pipelineType metadata.PipelineType, pipeline metadata.PipelineHandle)
	BindDescriptorSets(pipelineType metadata.PipelineType, layout metadata.PipelineLayoutHandle, firstSet uint32, sets []metadata.DescriptorSetHandle)
	PushConstants(layout metadata.PipelineLayoutHandle, stages metadata.ShaderStage, offset uint32, data []byte)
	BufferBarrier(buffer metadata.BufferHandle, offset, size uint64)
	// MemoryBarrier is the coarse barrier allowed inside a render pass.
	MemoryBarrier()
	BeginRenderPass(info RenderPassBeginInfo)
	NextSubpass()
	EndRenderPass()
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	End() error
}
