package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

var stageBits = []struct {
	stage metadata.ShaderStage
	bit   vk.ShaderStageFlagBits
}{
	{metadata.ShaderStageVertex, vk.ShaderStageVertexBit},
	{metadata.ShaderStageGeometry, vk.ShaderStageGeometryBit},
	{metadata.ShaderStageFragment, vk.ShaderStageFragmentBit},
	{metadata.ShaderStageCompute, vk.ShaderStageComputeBit},
	{metadata.ShaderStageTessControl, vk.ShaderStageTessellationControlBit},
	{metadata.ShaderStageTessEvaluation, vk.ShaderStageTessellationEvaluationBit},
}

func shaderStageFlags(stages metadata.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	for _, s := range stageBits {
		if stages&s.stage != 0 {
			out |= vk.ShaderStageFlags(s.bit)
		}
	}
	return out
}

// shaderStageBit converts a single stage.
func shaderStageBit(stage metadata.ShaderStage) vk.ShaderStageFlagBits {
	for _, s := range stageBits {
		if stage == s.stage {
			return s.bit
		}
	}
	panic(fmt.Sprintf("%s is not a single shader stage", stage))
}

func descriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	case metadata.DescriptorTypeTexture:
		return vk.DescriptorTypeSampledImage
	case metadata.DescriptorTypeConstantBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.DescriptorTypeUnorderedAccessTexture:
		return vk.DescriptorTypeStorageImage
	case metadata.DescriptorTypeUnorderedAccessBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	panic(fmt.Sprintf("descriptor type %s has no Vulkan equivalent", t))
}

func imageLayout(t metadata.DescriptorType) vk.ImageLayout {
	if t == metadata.DescriptorTypeUnorderedAccessTexture {
		return vk.ImageLayoutGeneral
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func bufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&metadata.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&metadata.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	if u&metadata.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&metadata.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(out)
}

func cullMode(m metadata.FaceCullMode) vk.CullModeFlags {
	switch m {
	case metadata.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	default:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
}

var blendFactors = [...]vk.BlendFactor{
	metadata.BlendFactorZero:             vk.BlendFactorZero,
	metadata.BlendFactorOne:              vk.BlendFactorOne,
	metadata.BlendFactorSrcAlpha:         vk.BlendFactorSrcAlpha,
	metadata.BlendFactorOneMinusSrcAlpha: vk.BlendFactorOneMinusSrcAlpha,
	metadata.BlendFactorSrcColor:         vk.BlendFactorSrcColor,
	metadata.BlendFactorOneMinusSrcColor: vk.BlendFactorOneMinusSrcColor,
}

var blendOps = [...]vk.BlendOp{
	metadata.BlendOpAdd:      vk.BlendOpAdd,
	metadata.BlendOpSubtract: vk.BlendOpSubtract,
	metadata.BlendOpMin:      vk.BlendOpMin,
	metadata.BlendOpMax:      vk.BlendOpMax,
}

var compareOps = [...]vk.CompareOp{
	metadata.CompareOpNever:       vk.CompareOpNever,
	metadata.CompareOpLess:        vk.CompareOpLess,
	metadata.CompareOpEqual:       vk.CompareOpEqual,
	metadata.CompareOpLessOrEqual: vk.CompareOpLessOrEqual,
	metadata.CompareOpGreater:     vk.CompareOpGreater,
	metadata.CompareOpAlways:      vk.CompareOpAlways,
}

var topologies = [...]vk.PrimitiveTopology{
	metadata.TopologyTriangleList:  vk.PrimitiveTopologyTriangleList,
	metadata.TopologyTriangleStrip: vk.PrimitiveTopologyTriangleStrip,
	metadata.TopologyLineList:      vk.PrimitiveTopologyLineList,
	metadata.TopologyLineStrip:     vk.PrimitiveTopologyLineStrip,
	metadata.TopologyPointList:     vk.PrimitiveTopologyPointList,
}

var vertexFormats = [...]vk.Format{
	metadata.VertexFormatFloat32:   vk.FormatR32Sfloat,
	metadata.VertexFormatFloat32x2: vk.FormatR32g32Sfloat,
	metadata.VertexFormatFloat32x3: vk.FormatR32g32b32Sfloat,
	metadata.VertexFormatFloat32x4: vk.FormatR32g32b32a32Sfloat,
	metadata.VertexFormatUnorm8x4:  vk.FormatR8g8b8a8Unorm,
}

func colorBlendAttachment(a metadata.AttachmentBlendDesc) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: blendFactors[a.SrcColor],
		DstColorBlendFactor: blendFactors[a.DstColor],
		ColorBlendOp:        blendOps[a.ColorOp],
		SrcAlphaBlendFactor: blendFactors[a.SrcAlpha],
		DstAlphaBlendFactor: blendFactors[a.DstAlpha],
		AlphaBlendOp:        blendOps[a.AlphaOp],
		// RGBA share the bit layout of VkColorComponentFlags
		ColorWriteMask: vk.ColorComponentFlags(a.WriteMask & 0xf),
	}
	if a.Enable {
		state.BlendEnable = vk.True
	}
	return state
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func sampleCount(samples uint32) vk.SampleCountFlagBits {
	switch samples {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}

func bindPoint(p metadata.PipelineType) vk.PipelineBindPoint {
	if p == metadata.PipelineTypeCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}
