package metadata

// Backend objects are referred to by small integer handles. Zero is never a
// valid handle.
type (
	DescriptorSetLayoutHandle uint64
	DescriptorSetHandle       uint64
	PipelineLayoutHandle      uint64
	PipelineHandle            uint64
	BufferHandle              uint64
	ImageViewHandle           uint64
	SamplerHandle             uint64
	ShaderModuleHandle        uint64
	RenderPassHandle          uint64
)

// PipelineType selects the bind point of descriptor sets and pipelines.
type PipelineType uint8

const (
	PipelineTypeGraphics PipelineType = iota
	PipelineTypeCompute
	PipelineTypeCount
)

func (p PipelineType) String() string {
	switch p {
	case PipelineTypeGraphics:
		return "graphics"
	case PipelineTypeCompute:
		return "compute"
	}
	return "unknown"
}
