package metadata

type MemoryRange struct {
	Offset uint64
	Size   uint64
}

// BufferRange is a byte range of a buffer, bound as a constant or storage buffer.
type BufferRange struct {
	Buffer BufferHandle
	Offset uint64
	Size   uint64
}

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type BufferDesc struct {
	Name  string
	Size  uint64
	Usage BufferUsage
	// HostVisible buffers can be written with RenderDevice.WriteBuffer.
	HostVisible bool
}

type ImageViewDesc struct {
	Name   string
	Width  uint32
	Height uint32
	// Storage views are bound to UnorderedAccessTexture slots.
	Storage bool
}

type SamplerDesc struct {
	Name          string
	LinearFilter  bool
	ClampToEdge   bool
	MaxAnisotropy float32
}

// DeviceLimits are the descriptor related physical device limits.
type DeviceLimits struct {
	MaxBoundDescriptorSets uint32

	MaxPerStageDescriptorSamplers       uint32
	MaxPerStageDescriptorUniformBuffers uint32
	MaxPerStageDescriptorStorageBuffers uint32
	MaxPerStageDescriptorSampledImages  uint32
	MaxPerStageDescriptorStorageImages  uint32

	MaxDescriptorSetSamplers       uint32
	MaxDescriptorSetUniformBuffers uint32
	MaxDescriptorSetStorageBuffers uint32
	MaxDescriptorSetSampledImages  uint32
	MaxDescriptorSetStorageImages  uint32

	MaxPushConstantsSize            uint32
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
}

// DefaultDeviceLimits are the minimums every conformant device supports.
func DefaultDeviceLimits() DeviceLimits {
	return DeviceLimits{
		MaxBoundDescriptorSets:              4,
		MaxPerStageDescriptorSamplers:       16,
		MaxPerStageDescriptorUniformBuffers: 12,
		MaxPerStageDescriptorStorageBuffers: 4,
		MaxPerStageDescriptorSampledImages:  16,
		MaxPerStageDescriptorStorageImages:  4,
		MaxDescriptorSetSamplers:            96,
		MaxDescriptorSetUniformBuffers:      72,
		MaxDescriptorSetStorageBuffers:      24,
		MaxDescriptorSetSampledImages:       96,
		MaxDescriptorSetStorageImages:       24,
		MaxPushConstantsSize:                128,
		MinUniformBufferOffsetAlignment:     256,
		MinStorageBufferOffsetAlignment:     256,
	}
}
