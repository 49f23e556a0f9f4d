package encoder

import (
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/buffers"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	device *headless.Device
	ctx    *DeviceContext
	layout *pipeline.CompiledPipelineLayout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	device := headless.NewDevice(metadata.DefaultDeviceLimits())
	pools, err := descriptor.NewGlobalPools(device, descriptor.DefaultPendingWrites)
	require.NoError(t, err)
	temporary, err := buffers.NewTemporaryBufferSpace(device, 4096, 256)
	require.NoError(t, err)

	set, err := pools.Layouts.Compile(0, descriptor.NewDescriptorSetSignature("Material", metadata.DescriptorTypeTexture), metadata.ShaderStageAll)
	require.NoError(t, err)
	layouts := pipeline.NewPipelineLayoutBuilder(pipeline.NewPipelineLayoutCache(device), pools.Layouts, metadata.ShaderStageAll)
	layouts.SetFixedDescriptorSet(0, "Material", set)
	layout, err := layouts.SetShaderBasedDescriptorSets(&pipeline.ShaderBasedDescriptorSets{})
	require.NoError(t, err)

	return &fixture{device: device, ctx: NewDeviceContext(pools, temporary), layout: layout}
}

func (f *fixture) program(t *testing.T, stages ...metadata.ShaderStage) *pipeline.ShaderProgram {
	t.Helper()
	modules := make([]pipeline.ShaderModule, len(stages))
	for i, s := range stages {
		m, err := pipeline.LoadShaderModule(f.device, s, []byte{0x03, 0x02, 0x23, 0x07}, nil)
		require.NoError(t, err)
		modules[i] = m
	}
	return pipeline.NewShaderProgram(f.layout, modules...)
}

func (f *fixture) renderPass(t *testing.T, subpasses uint32) pipeline.RenderPassConfiguration {
	t.Helper()
	desc := metadata.RenderPassDesc{Name: "forward", ColorCount: 1, SubpassCount: subpasses}
	h, err := f.device.CreateRenderPass(desc)
	require.NoError(t, err)
	return pipeline.NewRenderPassConfiguration(h, desc)
}

func (f *fixture) list(t *testing.T) *headless.CommandList {
	t.Helper()
	cl, ok := f.ctx.CommandList().(*headless.CommandList)
	require.True(t, ok)
	return cl
}

func TestEncoderStateTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	require.ErrorIs(t, ctx.BeginComputePass(), core.ErrInvalidEncoderState)
	require.NoError(t, ctx.BeginCommandList())
	require.ErrorIs(t, ctx.BeginCommandList(), core.ErrInvalidEncoderState)

	require.NoError(t, ctx.BeginCopyPass())
	require.ErrorIs(t, ctx.BeginRenderPass(f.renderPass(t, 1), 64, 64), core.ErrInvalidEncoderState)
	require.NoError(t, ctx.EndCopyPass())

	require.NoError(t, ctx.BeginRenderPass(f.renderPass(t, 1), 64, 64))
	assert.True(t, ctx.IsInRenderPass())
	require.ErrorIs(t, ctx.BeginComputePass(), core.ErrInvalidEncoderState)
	_, err := ctx.BeginComputeEncoder()
	require.ErrorIs(t, err, core.ErrInvalidEncoderState)
	_, err = ctx.ResolveCommandList()
	require.ErrorIs(t, err, core.ErrInvalidEncoderState)
	require.NoError(t, ctx.EndRenderPass())
	assert.False(t, ctx.IsInRenderPass())

	require.NoError(t, ctx.Submit())
	assert.Equal(t, ENCODER_STATE_IDLE, ctx.State())
	assert.Len(t, f.device.Submitted(), 1)
}

func TestNextSubpassIsBounded(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	require.NoError(t, ctx.BeginCommandList())
	require.NoError(t, ctx.BeginRenderPass(f.renderPass(t, 2), 64, 64))
	assert.Equal(t, uint32(0), ctx.RenderPassSubpassIndex())

	require.NoError(t, ctx.NextSubpass())
	assert.Equal(t, uint32(1), ctx.RenderPassSubpassIndex())
	assert.Equal(t, uint32(1), ctx.Graphics.RenderPassConfiguration().Subpass)
	require.ErrorIs(t, ctx.NextSubpass(), core.ErrInvalidEncoderState)

	require.NoError(t, ctx.EndRenderPass())
	assert.Equal(t, 1, f.list(t).Count(headless.OpNextSubpass))
}

func TestOnlyOneEncoderAtATime(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	require.NoError(t, ctx.BeginCommandList())
	require.NoError(t, ctx.BeginRenderPass(f.renderPass(t, 1), 64, 64))

	enc, err := ctx.BeginGraphicsEncoder()
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = ctx.BeginGraphicsEncoder() })
	require.ErrorIs(t, ctx.EndRenderPass(), core.ErrInvalidEncoderState)

	enc.End()
	enc.End()
	assert.False(t, ctx.HasActiveEncoder())
	require.ErrorIs(t, enc.Draw(3, 0), core.ErrInvalidEncoderState)
	require.NoError(t, ctx.EndRenderPass())
}

func TestDrawBuildsAndBindsPipelineOnce(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	ctx.Graphics.BindShaderProgram(f.program(t, metadata.ShaderStageVertex, metadata.ShaderStageFragment))
	require.NoError(t, ctx.BeginCommandList())
	require.NoError(t, ctx.BeginRenderPass(f.renderPass(t, 1), 64, 64))

	enc, err := ctx.BeginGraphicsEncoder()
	require.NoError(t, err)
	require.NoError(t, enc.Draw(3, 0))
	require.NoError(t, enc.DrawIndexed(6, 0, 0))

	ctx.Graphics.BindBlend(metadata.AlphaBlend())
	require.NoError(t, enc.Draw(3, 0))
	enc.End()

	cl := f.list(t)
	assert.Equal(t, 2, cl.Count(headless.OpBindPipeline))
	assert.Equal(t, 2, cl.Count(headless.OpDraw))
	assert.Equal(t, 1, cl.Count(headless.OpDrawIndexed))
	assert.Equal(t, 2, f.device.Stats().GraphicsPipelines)
}

func TestDrawWithoutProgramFails(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	require.NoError(t, ctx.BeginCommandList())
	require.NoError(t, ctx.BeginRenderPass(f.renderPass(t, 1), 64, 64))
	enc, err := ctx.BeginGraphicsEncoder()
	require.NoError(t, err)
	require.ErrorIs(t, enc.Draw(3, 0), pipeline.ErrNoShaderProgram)
	enc.End()
}

func TestBindDescriptorSetSkipsRedundantBinds(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	ctx.Graphics.BindShaderProgram(f.program(t, metadata.ShaderStageVertex))
	require.NoError(t, ctx.BeginCommandList())

	set, err := ctx.Pools().DescriptorPool.Allocate(f.layout.DescriptorSets[0].Layout.Handle)
	require.NoError(t, err)

	require.NoError(t, ctx.BindDescriptorSet(metadata.PipelineTypeGraphics, 0, set))
	require.NoError(t, ctx.BindDescriptorSet(metadata.PipelineTypeGraphics, 0, set))
	assert.Equal(t, set, ctx.BoundDescriptorSet(metadata.PipelineTypeGraphics, 0))
	require.ErrorIs(t, ctx.BindDescriptorSet(metadata.PipelineTypeGraphics, 3, set), core.ErrMissingDescriptorSet)
	require.ErrorIs(t, ctx.BindDescriptorSet(metadata.PipelineTypeCompute, 0, set), core.ErrMissingDescriptorSet)

	binds := f.list(t).Filter(headless.OpBindDescriptorSets)
	require.Len(t, binds, 1)
	assert.Equal(t, f.layout.Handle, binds[0].Layout)
	assert.Equal(t, []metadata.DescriptorSetHandle{set}, binds[0].Sets)

	// a new command list forgets what was bound
	require.NoError(t, ctx.Submit())
	require.NoError(t, ctx.BeginCommandList())
	assert.Zero(t, ctx.BoundDescriptorSet(metadata.PipelineTypeGraphics, 0))
	require.NoError(t, ctx.BindDescriptorSet(metadata.PipelineTypeGraphics, 0, set))
	assert.Equal(t, 1, f.list(t).Count(headless.OpBindDescriptorSets))
}

func TestComputeEncoderDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	ctx.Compute.BindShader(f.program(t, metadata.ShaderStageCompute))
	require.NoError(t, ctx.BeginCommandList())
	require.NoError(t, ctx.BeginComputePass())

	enc, err := ctx.BeginComputeEncoder()
	require.NoError(t, err)
	require.NoError(t, ctx.PushConstants(metadata.PipelineTypeCompute, metadata.ShaderStageCompute, 0, []byte{1, 2, 3, 4}))
	require.NoError(t, enc.Dispatch(8, 8, 1))
	require.NoError(t, enc.Dispatch(4, 1, 1))
	require.ErrorIs(t, ctx.EndComputePass(), core.ErrInvalidEncoderState)
	enc.End()
	require.NoError(t, ctx.EndComputePass())

	cl := f.list(t)
	assert.Equal(t, 1, cl.Count(headless.OpBindPipeline))
	dispatches := cl.Filter(headless.OpDispatch)
	require.Len(t, dispatches, 2)
	assert.Equal(t, [4]uint32{8, 8, 1, 0}, dispatches[0].Counts)
	push := cl.Filter(headless.OpPushConstants)
	require.Len(t, push, 1)
	assert.Equal(t, f.layout.Handle, push[0].Layout)
}

func TestSubmitReclaimsRetiredWork(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	require.NoError(t, ctx.BeginCommandList())
	a, ok := ctx.Temporary().Allocate(4096)
	require.True(t, ok)
	require.NoError(t, ctx.Submit())

	require.NoError(t, ctx.BeginCommandList())
	_, ok = ctx.Temporary().Allocate(256)
	assert.False(t, ok)

	f.device.ManualTracker().Retire(a.Marker)
	ctx.FlushDestroys()
	_, ok = ctx.Temporary().Allocate(256)
	assert.True(t, ok)
}
