package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and the bind point it is used at.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief Graphics or compute. */
	BindPoint vk.PipelineBindPoint
}

/**
 * @brief A compiled shader module for a single stage.
 */
type VulkanShaderModule struct {
	Handle vk.ShaderModule
	Stage  metadata.ShaderStage
}

// ShaderModuleCreate wraps SPIR-V code, which must be a whole number of words.
func ShaderModuleCreate(context *VulkanContext, stage metadata.ShaderStage, code []byte) (*VulkanShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: shader code for stage %s is %d bytes, not a whole number of words", core.ErrDeviceFailure, stage, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(context.Device.LogicalDevice, &info, context.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return nil, err
	}
	return &VulkanShaderModule{Handle: module, Stage: stage}, nil
}

func (sm *VulkanShaderModule) Destroy(context *VulkanContext) {
	if sm.Handle != nil {
		vk.DestroyShaderModule(context.Device.LogicalDevice, sm.Handle, context.Allocator)
		sm.Handle = nil
	}
}

func PipelineLayoutCreate(context *VulkanContext, setLayouts []vk.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (vk.PipelineLayout, error) {
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}

	// Push constants
	if len(pushConstants) > 0 {
		// NOTE: 32 is the max number of ranges we can ever have, since Vulkan only guarantees 128 bytes with 4-byte alignment.
		if len(pushConstants) > 32 {
			return nil, fmt.Errorf("cannot have more than 32 push constant ranges. Passed count: %d", len(pushConstants))
		}
		ranges := make([]vk.PushConstantRange, len(pushConstants))
		for i, r := range pushConstants {
			ranges[i] = vk.PushConstantRange{
				StageFlags: shaderStageFlags(r.Stages),
				Offset:     r.Offset,
				Size:       r.Size,
			}
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = uint32(len(ranges))
		pipelineLayoutCreateInfo.PPushConstantRanges = ranges
	}

	var pPipelineLayout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout), "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}
	return pPipelineLayout, nil
}

// graphicsPipelineState holds every create info a graphics pipeline points
// at, so they stay alive until creation.
type graphicsPipelineState struct {
	stages        []vk.PipelineShaderStageCreateInfo
	vertexInput   vk.PipelineVertexInputStateCreateInfo
	inputAssembly vk.PipelineInputAssemblyStateCreateInfo
	viewport      vk.PipelineViewportStateCreateInfo
	rasterizer    vk.PipelineRasterizationStateCreateInfo
	multisampling vk.PipelineMultisampleStateCreateInfo
	depthStencil  vk.PipelineDepthStencilStateCreateInfo
	colorBlend    vk.PipelineColorBlendStateCreateInfo
	dynamic       vk.PipelineDynamicStateCreateInfo
}

func (d *Device) shaderStage(s metadata.ShaderStageDesc) (vk.PipelineShaderStageCreateInfo, error) {
	module, ok := d.shaderModules.get(s.Module)
	if !ok {
		return vk.PipelineShaderStageCreateInfo{}, fmt.Errorf("%w: unknown shader module %d", core.ErrDeviceFailure, s.Module)
	}
	entry := s.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageBit(s.Stage),
		Module: module.Handle,
		PName:  VulkanSafeString(entry),
	}, nil
}

func (d *Device) graphicsPipelineState(desc *metadata.GraphicsPipelineDesc, colorCount uint32) (*graphicsPipelineState, error) {
	st := &graphicsPipelineState{}
	for _, s := range desc.Stages {
		info, err := d.shaderStage(s)
		if err != nil {
			return nil, err
		}
		st.stages = append(st.stages, info)
	}

	// Vertex input
	var bindings []vk.VertexInputBindingDescription
	var attributes []vk.VertexInputAttributeDescription
	if desc.InputLayout != nil {
		for i, stride := range desc.InputLayout.Strides {
			bindings = append(bindings, vk.VertexInputBindingDescription{
				Binding:   uint32(i),
				Stride:    stride,
				InputRate: vk.VertexInputRateVertex,
			})
		}
		for _, e := range desc.InputLayout.Elements {
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Location: e.Location,
				Binding:  e.Binding,
				Format:   vertexFormats[e.Format],
				Offset:   e.Offset,
			})
		}
	}
	st.vertexInput = vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	st.inputAssembly = vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               topologies[desc.Topology],
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport and scissor are dynamic.
	st.viewport = vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	r := desc.Rasterization
	st.rasterizer = vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullMode(r.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vkBool(r.DepthBiasConstant != 0 || r.DepthBiasSlopeFactor != 0),
		DepthBiasConstantFactor: r.DepthBiasConstant,
		DepthBiasSlopeFactor:    r.DepthBiasSlopeFactor,
	}
	if r.Wireframe {
		st.rasterizer.PolygonMode = vk.PolygonModeLine
	}
	if r.FrontFaceClockwise {
		st.rasterizer.FrontFace = vk.FrontFaceClockwise
	}

	// Multisampling.
	st.multisampling = vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  sampleCount(desc.Samples),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vkBool(desc.Blend.AlphaToCoverage),
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	ds := desc.DepthStencil
	st.depthStencil = vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vkBool(ds.DepthTest),
		DepthWriteEnable:  vkBool(ds.DepthWrite),
		DepthCompareOp:    compareOps[ds.DepthCompare],
		StencilTestEnable: vkBool(ds.StencilEnable),
	}

	// One blend state per color attachment of the subpass. When the blend
	// description covers fewer, its last attachment repeats.
	attachments := make([]vk.PipelineColorBlendAttachmentState, colorCount)
	last := max(int(desc.Blend.AttachmentCount), 1) - 1
	for i := range attachments {
		attachments[i] = colorBlendAttachment(desc.Blend.Attachments[min(i, last)])
	}
	st.colorBlend = vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	st.dynamic = vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	return st, nil
}

func (d *Device) CreatePipelineLayout(desc metadata.PipelineLayoutDesc) (metadata.PipelineLayoutHandle, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, h := range desc.SetLayouts {
		l, ok := d.setLayouts.get(h)
		if !ok {
			return 0, fmt.Errorf("%w: unknown descriptor set layout %d", core.ErrDeviceFailure, h)
		}
		setLayouts[i] = l.Handle
	}
	var layout vk.PipelineLayout
	err := d.context.Locks.SafeCall(PipelineManagement, func() error {
		var err error
		layout, err = PipelineLayoutCreate(d.context, setLayouts, desc.PushConstants)
		return err
	})
	if err != nil {
		return 0, err
	}
	h := metadata.PipelineLayoutHandle(d.handle())
	d.pipelineLayouts.put(h, layout)
	return h, nil
}

func (d *Device) CreateGraphicsPipeline(desc *metadata.GraphicsPipelineDesc) (metadata.PipelineHandle, error) {
	layout, ok := d.pipelineLayouts.get(desc.Layout)
	if !ok {
		return 0, fmt.Errorf("%w: unknown pipeline layout %d", core.ErrDeviceFailure, desc.Layout)
	}
	renderpass, ok := d.renderPasses.get(desc.RenderPass)
	if !ok {
		return 0, fmt.Errorf("%w: unknown render pass %d", core.ErrDeviceFailure, desc.RenderPass)
	}
	st, err := d.graphicsPipelineState(desc, renderpass.Desc.ColorCount)
	if err != nil {
		return 0, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(st.stages)),
		PStages:             st.stages,
		PVertexInputState:   &st.vertexInput,
		PInputAssemblyState: &st.inputAssembly,
		PViewportState:      &st.viewport,
		PRasterizationState: &st.rasterizer,
		PMultisampleState:   &st.multisampling,
		PDepthStencilState:  &st.depthStencil,
		PColorBlendState:    &st.colorBlend,
		PDynamicState:       &st.dynamic,
		PTessellationState:  nil,
		Layout:              layout,
		RenderPass:          renderpass.Handle,
		Subpass:             desc.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := d.context.Locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateGraphicsPipelines(
			d.context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			d.context.Allocator,
			pPipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		return 0, err
	}

	core.LogDebug("Graphics pipeline created!")
	h := metadata.PipelineHandle(d.handle())
	d.pipelines.put(h, &VulkanPipeline{Handle: pPipelines[0], BindPoint: vk.PipelineBindPointGraphics})
	return h, nil
}

func (d *Device) CreateComputePipeline(desc *metadata.ComputePipelineDesc) (metadata.PipelineHandle, error) {
	layout, ok := d.pipelineLayouts.get(desc.Layout)
	if !ok {
		return 0, fmt.Errorf("%w: unknown pipeline layout %d", core.ErrDeviceFailure, desc.Layout)
	}
	stage, err := d.shaderStage(desc.Stage)
	if err != nil {
		return 0, err
	}
	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage,
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pPipelines := make([]vk.Pipeline, 1)
	if err := d.context.Locks.SafeCall(PipelineManagement, func() error {
		return check(vk.CreateComputePipelines(
			d.context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.ComputePipelineCreateInfo{info},
			d.context.Allocator,
			pPipelines), "vkCreateComputePipelines")
	}); err != nil {
		return 0, err
	}

	core.LogDebug("Compute pipeline created!")
	h := metadata.PipelineHandle(d.handle())
	d.pipelines.put(h, &VulkanPipeline{Handle: pPipelines[0], BindPoint: vk.PipelineBindPointCompute})
	return h, nil
}

// DestroyPipeline is only called once the GPU is done with the pipeline.
func (d *Device) DestroyPipeline(pipeline metadata.PipelineHandle) {
	p, ok := d.pipelines.take(pipeline)
	if !ok {
		return
	}
	_ = d.context.Locks.SafeCall(PipelineManagement, func() error {
		p.Destroy(d.context)
		return nil
	})
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
}

func (d *Device) CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.ShaderModuleHandle, error) {
	var module *VulkanShaderModule
	err := d.context.Locks.SafeCall(ShaderManagement, func() error {
		var err error
		module, err = ShaderModuleCreate(d.context, stage, code)
		return err
	})
	if err != nil {
		return 0, err
	}
	h := metadata.ShaderModuleHandle(d.handle())
	d.shaderModules.put(h, module)
	return h, nil
}
