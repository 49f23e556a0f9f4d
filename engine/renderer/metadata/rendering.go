package metadata

import (
	"encoding/binary"
	"hash/fnv"
)

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

type RasterizationDesc struct {
	CullMode             FaceCullMode
	Wireframe            bool
	FrontFaceClockwise   bool
	DepthBiasConstant    float32
	DepthBiasSlopeFactor float32
}

type BlendFactor uint8

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorSrcColor
	BlendFactorOneMinusSrcColor
)

type BlendOp uint8

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpMin
	BlendOpMax
)

const MaxColorAttachments = 8

type AttachmentBlendDesc struct {
	Enable   bool
	SrcColor BlendFactor
	DstColor BlendFactor
	ColorOp  BlendOp
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	AlphaOp  BlendOp
	// WriteMask is RGBA in the low four bits.
	WriteMask uint8
}

type BlendDesc struct {
	AlphaToCoverage bool
	AttachmentCount uint8
	Attachments     [MaxColorAttachments]AttachmentBlendDesc
}

// OpaqueBlend writes all channels of a single attachment without blending.
func OpaqueBlend() BlendDesc {
	b := BlendDesc{AttachmentCount: 1}
	b.Attachments[0] = AttachmentBlendDesc{SrcColor: BlendFactorOne, SrcAlpha: BlendFactorOne, WriteMask: 0xf}
	return b
}

// AlphaBlend is straight alpha over a single attachment.
func AlphaBlend() BlendDesc {
	b := BlendDesc{AttachmentCount: 1}
	b.Attachments[0] = AttachmentBlendDesc{
		Enable:    true,
		SrcColor:  BlendFactorSrcAlpha,
		DstColor:  BlendFactorOneMinusSrcAlpha,
		SrcAlpha:  BlendFactorOne,
		DstAlpha:  BlendFactorOneMinusSrcAlpha,
		WriteMask: 0xf,
	}
	return b
}

type CompareOp uint8

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpAlways
)

type DepthStencilDesc struct {
	DepthTest     bool
	DepthWrite    bool
	DepthCompare  CompareOp
	StencilEnable bool
}

type Topology uint8

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyLineStrip
	TopologyPointList
)

type VertexFormat uint8

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUnorm8x4
)

type InputElement struct {
	Location uint32
	Binding  uint32
	Format   VertexFormat
	Offset   uint32
}

// InputLayout describes the vertex input of a graphics pipeline.
type InputLayout struct {
	Elements []InputElement
	Strides  []uint32
}

// Hash identifies the layout by value; pipelines compare input layouts by it.
func (l *InputLayout) Hash() uint64 {
	if l == nil {
		return 0
	}
	h := fnv.New64a()
	var buf [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	for _, e := range l.Elements {
		put(e.Location)
		put(e.Binding)
		put(uint32(e.Format))
		put(e.Offset)
	}
	put(0xffffffff)
	for _, s := range l.Strides {
		put(s)
	}
	return h.Sum64()
}

type ShaderStageDesc struct {
	Stage      ShaderStage
	Module     ShaderModuleHandle
	EntryPoint string
}

// RenderPassDesc describes a render pass with SubpassCount identical subpasses.
type RenderPassDesc struct {
	Name         string
	ColorCount   uint32
	Depth        bool
	Samples      uint32
	SubpassCount uint32
}

type GraphicsPipelineDesc struct {
	Layout        PipelineLayoutHandle
	Stages        []ShaderStageDesc
	Rasterization RasterizationDesc
	Blend         BlendDesc
	DepthStencil  DepthStencilDesc
	Topology      Topology
	InputLayout   *InputLayout
	RenderPass    RenderPassHandle
	Subpass       uint32
	Samples       uint32
}

type ComputePipelineDesc struct {
	Layout PipelineLayoutHandle
	Stage  ShaderStageDesc
}

// PushConstantRange is an inline data range of a pipeline layout.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutDesc struct {
	SetLayouts    []DescriptorSetLayoutHandle
	PushConstants []PushConstantRange
}

type DescriptorSetLayoutDesc struct {
	Name   string
	Slots  []DescriptorSlot
	Stages ShaderStage
}
