package pipeline

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

var (
	ErrNoShaderProgram = errors.New("no shader program bound")
	ErrNoRenderPass    = errors.New("no render pass configuration set")
	ErrNoLayout        = errors.New("no pipeline layout")
)

/** @brief A compiled graphics pipeline and the state it was built from. */
type GraphicsPipeline struct {
	Handle         metadata.PipelineHandle
	Program        *ShaderProgram
	Layout         *CompiledPipelineLayout
	RenderPassHash uint64
}

/** @brief A compiled compute pipeline. */
type ComputePipeline struct {
	Handle  metadata.PipelineHandle
	Program *ShaderProgram
	Layout  *CompiledPipelineLayout
}

type retiredPipeline struct {
	handle metadata.PipelineHandle
	marker renderer.Marker
}

// retireQueue holds replaced pipelines until the GPU work that may still
// use them has retired.
type retireQueue struct {
	pending *containers.RingQueue[retiredPipeline]
}

func (q *retireQueue) push(handle metadata.PipelineHandle, marker renderer.Marker) {
	if q.pending == nil {
		q.pending = containers.NewRingQueue[retiredPipeline](8)
		q.pending.Grow = true
	}
	_ = q.pending.Enqueue(retiredPipeline{handle: handle, marker: marker})
}

func (q *retireQueue) flush(device renderer.RenderDevice) int {
	if q.pending == nil {
		return 0
	}
	consumer := device.Tracker().ConsumerMarker()
	n := 0
	for !q.pending.IsEmpty() {
		front, _ := q.pending.Peek()
		if front.marker > consumer {
			break
		}
		_, _ = q.pending.Dequeue()
		device.DestroyPipeline(front.handle)
		n++
	}
	return n
}

// GraphicsPipelineBuilder accumulates graphics state and compiles a
// pipeline when something relevant has changed.
type GraphicsPipelineBuilder struct {
	program       *ShaderProgram
	layout        *CompiledPipelineLayout
	rasterization metadata.RasterizationDesc
	blend         metadata.BlendDesc
	depthStencil  metadata.DepthStencilDesc
	inputLayout   *metadata.InputLayout
	inputHash     uint64
	topology      metadata.Topology
	renderPass    RenderPassConfiguration
	renderHash    uint64

	stale   bool
	current *GraphicsPipeline
	retired retireQueue
}

func NewGraphicsPipelineBuilder() *GraphicsPipelineBuilder {
	return &GraphicsPipelineBuilder{
		blend:    metadata.OpaqueBlend(),
		topology: metadata.TopologyTriangleList,
		rasterization: metadata.RasterizationDesc{
			CullMode: metadata.FaceCullModeBack,
		},
		depthStencil: metadata.DepthStencilDesc{
			DepthTest:    true,
			DepthWrite:   true,
			DepthCompare: metadata.CompareOpLessOrEqual,
		},
		stale: true,
	}
}

func (b *GraphicsPipelineBuilder) BindShaderProgram(program *ShaderProgram) {
	if b.program != program {
		b.program = program
		b.stale = true
	}
}

func (b *GraphicsPipelineBuilder) ShaderProgram() *ShaderProgram {
	return b.program
}

func (b *GraphicsPipelineBuilder) BindRasterization(desc metadata.RasterizationDesc) {
	if b.rasterization != desc {
		b.rasterization = desc
		b.stale = true
	}
}

func (b *GraphicsPipelineBuilder) BindBlend(desc metadata.BlendDesc) {
	if b.blend != desc {
		b.blend = desc
		b.stale = true
	}
}

func (b *GraphicsPipelineBuilder) BindDepthStencil(desc metadata.DepthStencilDesc) {
	if b.depthStencil != desc {
		b.depthStencil = desc
		b.stale = true
	}
}

// BindInputLayout compares input layouts by hash only.
func (b *GraphicsPipelineBuilder) BindInputLayout(layout *metadata.InputLayout, topology metadata.Topology) {
	if h := layout.Hash(); h != b.inputHash {
		b.inputLayout = layout
		b.inputHash = h
		b.stale = true
	}
	if topology != b.topology {
		b.topology = topology
		b.stale = true
	}
}

func (b *GraphicsPipelineBuilder) UnbindInputLayout() {
	if b.inputHash != 0 {
		b.inputLayout = nil
		b.inputHash = 0
		b.stale = true
	}
}

func (b *GraphicsPipelineBuilder) SetRenderPassConfiguration(cfg RenderPassConfiguration) {
	b.renderPass = cfg
	if h := cfg.Hash(); h != b.renderHash {
		b.renderHash = h
		b.stale = true
	}
}

func (b *GraphicsPipelineBuilder) RenderPassConfiguration() RenderPassConfiguration {
	return b.renderPass
}

// SetPipelineLayout overrides the layout of the bound program. Passing nil
// goes back to the program's own layout.
func (b *GraphicsPipelineBuilder) SetPipelineLayout(layout *CompiledPipelineLayout) {
	if b.layout != layout {
		b.layout = layout
		b.stale = true
	}
}

// PipelineLayout is the layout the next pipeline is built with.
func (b *GraphicsPipelineBuilder) PipelineLayout() *CompiledPipelineLayout {
	if b.layout != nil {
		return b.layout
	}
	if b.program != nil {
		return b.program.Layout
	}
	return nil
}

func (b *GraphicsPipelineBuilder) IsPipelineStale() bool {
	return b.stale || b.current == nil
}

func (b *GraphicsPipelineBuilder) CurrentPipeline() *GraphicsPipeline {
	return b.current
}

// CreatePipeline returns the current pipeline, compiling a new one first if
// the bound state changed. A replaced pipeline is destroyed by FlushDestroys
// once the GPU is done with it.
func (b *GraphicsPipelineBuilder) CreatePipeline(device renderer.RenderDevice) (*GraphicsPipeline, error) {
	if !b.IsPipelineStale() {
		return b.current, nil
	}
	if b.program == nil {
		return nil, ErrNoShaderProgram
	}
	if !b.renderPass.IsValid() {
		return nil, ErrNoRenderPass
	}
	layout := b.PipelineLayout()
	if layout == nil {
		return nil, ErrNoLayout
	}

	desc := &metadata.GraphicsPipelineDesc{
		Layout:        layout.Handle,
		Stages:        b.program.stageDescs(),
		Rasterization: b.rasterization,
		Blend:         b.blend,
		DepthStencil:  b.depthStencil,
		Topology:      b.topology,
		InputLayout:   b.inputLayout,
		RenderPass:    b.renderPass.RenderPass,
		Subpass:       b.renderPass.Subpass,
		Samples:       b.renderPass.Desc.Samples,
	}
	handle, err := device.CreateGraphicsPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: vkCreateGraphicsPipelines failed: %v", core.ErrDeviceFailure, err)
	}
	core.MetricsPipelineBuilt()

	if b.current != nil {
		b.retired.push(b.current.Handle, device.Tracker().ProducerMarker())
	}
	b.current = &GraphicsPipeline{
		Handle:         handle,
		Program:        b.program,
		Layout:         layout,
		RenderPassHash: b.renderHash,
	}
	b.stale = false
	return b.current, nil
}

// FlushDestroys destroys replaced pipelines the GPU has finished with.
func (b *GraphicsPipelineBuilder) FlushDestroys(device renderer.RenderDevice) int {
	return b.retired.flush(device)
}

// Clone copies the bound state. The copy compiles its own pipeline.
func (b *GraphicsPipelineBuilder) Clone() *GraphicsPipelineBuilder {
	c := *b
	c.current = nil
	c.retired = retireQueue{}
	c.stale = true
	return &c
}

// ComputePipelineBuilder is the compute counterpart of
// GraphicsPipelineBuilder: a single shader and no fixed function state.
type ComputePipelineBuilder struct {
	program *ShaderProgram
	layout  *CompiledPipelineLayout

	stale   bool
	current *ComputePipeline
	retired retireQueue
}

func NewComputePipelineBuilder() *ComputePipelineBuilder {
	return &ComputePipelineBuilder{stale: true}
}

func (b *ComputePipelineBuilder) BindShader(program *ShaderProgram) {
	if program != nil && !program.IsCompute() {
		panic("compute pipeline builder bound to a program without a compute stage")
	}
	if b.program != program {
		b.program = program
		b.stale = true
	}
}

func (b *ComputePipelineBuilder) ShaderProgram() *ShaderProgram {
	return b.program
}

func (b *ComputePipelineBuilder) SetPipelineLayout(layout *CompiledPipelineLayout) {
	if b.layout != layout {
		b.layout = layout
		b.stale = true
	}
}

func (b *ComputePipelineBuilder) PipelineLayout() *CompiledPipelineLayout {
	if b.layout != nil {
		return b.layout
	}
	if b.program != nil {
		return b.program.Layout
	}
	return nil
}

func (b *ComputePipelineBuilder) IsPipelineStale() bool {
	return b.stale || b.current == nil
}

func (b *ComputePipelineBuilder) CurrentPipeline() *ComputePipeline {
	return b.current
}

func (b *ComputePipelineBuilder) CreatePipeline(device renderer.RenderDevice) (*ComputePipeline, error) {
	if !b.IsPipelineStale() {
		return b.current, nil
	}
	if b.program == nil {
		return nil, ErrNoShaderProgram
	}
	layout := b.PipelineLayout()
	if layout == nil {
		return nil, ErrNoLayout
	}
	module, _ := b.program.Module(metadata.ShaderStageCompute)

	handle, err := device.CreateComputePipeline(&metadata.ComputePipelineDesc{
		Layout: layout.Handle,
		Stage:  metadata.ShaderStageDesc{Stage: module.Stage, Module: module.Module, EntryPoint: module.EntryPoint},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vkCreateComputePipelines failed: %v", core.ErrDeviceFailure, err)
	}
	core.MetricsPipelineBuilt()

	if b.current != nil {
		b.retired.push(b.current.Handle, device.Tracker().ProducerMarker())
	}
	b.current = &ComputePipeline{Handle: handle, Program: b.program, Layout: layout}
	b.stale = false
	return b.current, nil
}

func (b *ComputePipelineBuilder) FlushDestroys(device renderer.RenderDevice) int {
	return b.retired.flush(device)
}

func (b *ComputePipelineBuilder) Clone() *ComputePipelineBuilder {
	c := *b
	c.current = nil
	c.retired = retireQueue{}
	c.stale = true
	return &c
}
