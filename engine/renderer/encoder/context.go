package encoder

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/buffers"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
)

type EncoderState int

const (
	ENCODER_STATE_IDLE EncoderState = iota
	ENCODER_STATE_RECORDING
	ENCODER_STATE_RENDER_PASS
	ENCODER_STATE_COMPUTE_PASS
	ENCODER_STATE_COPY_PASS
)

func (s EncoderState) String() string {
	switch s {
	case ENCODER_STATE_IDLE:
		return "idle"
	case ENCODER_STATE_RECORDING:
		return "recording"
	case ENCODER_STATE_RENDER_PASS:
		return "render pass"
	case ENCODER_STATE_COMPUTE_PASS:
		return "compute pass"
	case ENCODER_STATE_COPY_PASS:
		return "copy pass"
	}
	return "unknown"
}

type boundSets struct {
	layout metadata.PipelineLayoutHandle
	sets   []metadata.DescriptorSetHandle
}

/**
 * @brief Records one command list at a time and enforces which passes may
 * be open. Not safe for concurrent use.
 */
type DeviceContext struct {
	device    renderer.RenderDevice
	pools     *descriptor.GlobalPools
	temporary *buffers.TemporaryBufferSpace

	Graphics *pipeline.GraphicsPipelineBuilder
	Compute  *pipeline.ComputePipelineBuilder

	state      EncoderState
	cmd        renderer.CommandList
	renderPass pipeline.RenderPassConfiguration
	subpass    uint32

	bound         [metadata.PipelineTypeCount]boundSets
	boundPipeline [metadata.PipelineTypeCount]metadata.PipelineHandle
	active        encoder
}

func NewDeviceContext(pools *descriptor.GlobalPools, temporary *buffers.TemporaryBufferSpace) *DeviceContext {
	return &DeviceContext{
		device:    pools.Device,
		pools:     pools,
		temporary: temporary,
		Graphics:  pipeline.NewGraphicsPipelineBuilder(),
		Compute:   pipeline.NewComputePipelineBuilder(),
	}
}

func (c *DeviceContext) Device() renderer.RenderDevice                { return c.device }
func (c *DeviceContext) Pools() *descriptor.GlobalPools               { return c.pools }
func (c *DeviceContext) Temporary() *buffers.TemporaryBufferSpace     { return c.temporary }
func (c *DeviceContext) State() EncoderState                          { return c.state }
func (c *DeviceContext) CommandList() renderer.CommandList            { return c.cmd }
func (c *DeviceContext) RenderPass() pipeline.RenderPassConfiguration { return c.renderPass }
func (c *DeviceContext) RenderPassSubpassIndex() uint32               { return c.subpass }

func (c *DeviceContext) IsInRenderPass() bool {
	return c.state == ENCODER_STATE_RENDER_PASS
}

func (c *DeviceContext) invalidState(op string) error {
	return fmt.Errorf("%w: %s while %s", core.ErrInvalidEncoderState, op, c.state)
}

func (c *DeviceContext) resetBindings() {
	for i := range c.bound {
		c.bound[i] = boundSets{}
		c.boundPipeline[i] = 0
	}
}

func (c *DeviceContext) BeginCommandList() error {
	if c.state != ENCODER_STATE_IDLE {
		return c.invalidState("BeginCommandList")
	}
	cmd, err := c.device.BeginCommandList()
	if err != nil {
		return err
	}
	c.cmd = cmd
	c.state = ENCODER_STATE_RECORDING
	c.resetBindings()
	return nil
}

// ResolveCommandList closes recording and hands the list to the caller.
func (c *DeviceContext) ResolveCommandList() (renderer.CommandList, error) {
	if c.state != ENCODER_STATE_RECORDING {
		return nil, c.invalidState("ResolveCommandList")
	}
	cmd := c.cmd
	c.cmd = nil
	c.state = ENCODER_STATE_IDLE
	c.resetBindings()
	if err := cmd.End(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Submit resolves the command list, submits it, and reclaims whatever the
// GPU has finished with.
func (c *DeviceContext) Submit() error {
	cmd, err := c.ResolveCommandList()
	if err != nil {
		return err
	}
	if err := c.device.Submit(cmd); err != nil {
		return err
	}
	c.FlushDestroys()
	return nil
}

func (c *DeviceContext) FlushDestroys() {
	c.pools.FlushDestroys()
	c.temporary.FlushDestroys()
	c.Graphics.FlushDestroys(c.device)
	c.Compute.FlushDestroys(c.device)
}

func (c *DeviceContext) BeginRenderPass(cfg pipeline.RenderPassConfiguration, width, height uint32) error {
	if c.state != ENCODER_STATE_RECORDING {
		return c.invalidState("BeginRenderPass")
	}
	if !cfg.IsValid() {
		return fmt.Errorf("%w: BeginRenderPass without a render pass", core.ErrInvalidEncoderState)
	}
	c.renderPass = cfg.WithSubpass(0)
	c.subpass = 0
	c.cmd.BeginRenderPass(renderer.RenderPassBeginInfo{RenderPass: cfg.RenderPass, Width: width, Height: height})
	c.Graphics.SetRenderPassConfiguration(c.renderPass)
	c.state = ENCODER_STATE_RENDER_PASS
	return nil
}

func (c *DeviceContext) NextSubpass() error {
	if c.state != ENCODER_STATE_RENDER_PASS {
		return c.invalidState("NextSubpass")
	}
	if c.active != nil {
		return fmt.Errorf("%w: NextSubpass with an active encoder", core.ErrInvalidEncoderState)
	}
	if c.subpass+1 >= c.renderPass.Desc.SubpassCount {
		return fmt.Errorf("%w: render pass (%s) has only %d subpasses", core.ErrInvalidEncoderState, c.renderPass.Desc.Name, c.renderPass.Desc.SubpassCount)
	}
	c.subpass++
	c.cmd.NextSubpass()
	c.renderPass = c.renderPass.WithSubpass(c.subpass)
	c.Graphics.SetRenderPassConfiguration(c.renderPass)
	return nil
}

func (c *DeviceContext) EndRenderPass() error {
	if c.state != ENCODER_STATE_RENDER_PASS {
		return c.invalidState("EndRenderPass")
	}
	if c.active != nil {
		return fmt.Errorf("%w: EndRenderPass with an active encoder", core.ErrInvalidEncoderState)
	}
	c.cmd.EndRenderPass()
	c.renderPass = pipeline.RenderPassConfiguration{}
	c.subpass = 0
	c.state = ENCODER_STATE_RECORDING
	return nil
}

func (c *DeviceContext) BeginComputePass() error {
	if c.state != ENCODER_STATE_RECORDING {
		return c.invalidState("BeginComputePass")
	}
	c.state = ENCODER_STATE_COMPUTE_PASS
	return nil
}

func (c *DeviceContext) EndComputePass() error {
	if c.state != ENCODER_STATE_COMPUTE_PASS {
		return c.invalidState("EndComputePass")
	}
	if c.active != nil {
		return fmt.Errorf("%w: EndComputePass with an active encoder", core.ErrInvalidEncoderState)
	}
	c.state = ENCODER_STATE_RECORDING
	return nil
}

func (c *DeviceContext) BeginCopyPass() error {
	if c.state != ENCODER_STATE_RECORDING {
		return c.invalidState("BeginCopyPass")
	}
	c.state = ENCODER_STATE_COPY_PASS
	return nil
}

func (c *DeviceContext) EndCopyPass() error {
	if c.state != ENCODER_STATE_COPY_PASS {
		return c.invalidState("EndCopyPass")
	}
	c.state = ENCODER_STATE_RECORDING
	return nil
}

func (c *DeviceContext) isRecording() bool {
	return c.state != ENCODER_STATE_IDLE
}

func (c *DeviceContext) pipelineLayout(pipelineType metadata.PipelineType) *pipeline.CompiledPipelineLayout {
	if pipelineType == metadata.PipelineTypeCompute {
		return c.Compute.PipelineLayout()
	}
	return c.Graphics.PipelineLayout()
}

// BindDescriptorSet binds set at index against the layout of the current
// pipeline builder. Binding the handle already bound there is a no-op.
func (c *DeviceContext) BindDescriptorSet(pipelineType metadata.PipelineType, index uint32, set metadata.DescriptorSetHandle) error {
	if !c.isRecording() {
		return c.invalidState("BindDescriptorSet")
	}
	layout := c.pipelineLayout(pipelineType)
	if layout == nil {
		return fmt.Errorf("%w: no %s pipeline layout to bind descriptor set %d against", core.ErrMissingDescriptorSet, pipelineType, index)
	}
	if int(index) >= len(layout.DescriptorSets) {
		return fmt.Errorf("%w: descriptor set index %d is outside the pipeline layout (%d sets)", core.ErrMissingDescriptorSet, index, len(layout.DescriptorSets))
	}

	b := &c.bound[pipelineType]
	if b.layout != layout.Handle {
		b.layout = layout.Handle
		b.sets = b.sets[:0]
	}
	for uint32(len(b.sets)) <= index {
		b.sets = append(b.sets, 0)
	}
	if b.sets[index] == set {
		return nil
	}
	b.sets[index] = set
	c.cmd.BindDescriptorSets(pipelineType, layout.Handle, index, []metadata.DescriptorSetHandle{set})
	return nil
}

// BoundDescriptorSet is the set last bound at index, or zero.
func (c *DeviceContext) BoundDescriptorSet(pipelineType metadata.PipelineType, index uint32) metadata.DescriptorSetHandle {
	b := c.bound[pipelineType]
	if int(index) >= len(b.sets) {
		return 0
	}
	return b.sets[index]
}

func (c *DeviceContext) PushConstants(pipelineType metadata.PipelineType, stages metadata.ShaderStage, offset uint32, data []byte) error {
	if !c.isRecording() {
		return c.invalidState("PushConstants")
	}
	layout := c.pipelineLayout(pipelineType)
	if layout == nil {
		return fmt.Errorf("%w: no %s pipeline layout for push constants", core.ErrPushConstantNotFound, pipelineType)
	}
	c.cmd.PushConstants(layout.Handle, stages, offset, data)
	return nil
}

func (c *DeviceContext) bindPipeline(pipelineType metadata.PipelineType, handle metadata.PipelineHandle) {
	if c.boundPipeline[pipelineType] == handle {
		return
	}
	c.boundPipeline[pipelineType] = handle
	c.cmd.BindPipeline(pipelineType, handle)
}
