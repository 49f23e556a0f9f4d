package uniforms

import (
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/buffers"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/encoder"
	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	device    *headless.Device
	pools     *descriptor.GlobalPools
	temporary *buffers.TemporaryBufferSpace
	ctx       *encoder.DeviceContext
	layouts   *pipeline.PipelineLayoutCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	device := headless.NewDevice(metadata.DefaultDeviceLimits())
	pools, err := descriptor.NewGlobalPools(device, descriptor.DefaultPendingWrites)
	require.NoError(t, err)
	temporary, err := buffers.NewTemporaryBufferSpace(device, 64*1024, 256)
	require.NoError(t, err)
	return &testEnv{
		device:    device,
		pools:     pools,
		temporary: temporary,
		ctx:       encoder.NewDeviceContext(pools, temporary),
		layouts:   pipeline.NewPipelineLayoutCache(device),
	}
}

func (e *testEnv) compile(t *testing.T, name string, types ...metadata.DescriptorType) *descriptor.CompiledDescriptorSetLayout {
	t.Helper()
	l, err := e.pools.Layouts.Compile(0, descriptor.NewDescriptorSetSignature(name, types...), metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	return l
}

func (e *testEnv) pipelineLayout(t *testing.T, sets []pipeline.ShaderDescriptorSet, pushConstants ...descriptor.PushConstantsRangeSignature) *pipeline.CompiledPipelineLayout {
	t.Helper()
	builder := pipeline.NewPipelineLayoutBuilder(e.layouts, e.pools.Layouts, metadata.ShaderStageAllGraphics)
	l, err := builder.SetShaderBasedDescriptorSets(&pipeline.ShaderBasedDescriptorSets{DescriptorSets: sets, PushConstants: pushConstants})
	require.NoError(t, err)
	return l
}

func (e *testEnv) program(t *testing.T, layout *pipeline.CompiledPipelineLayout, reflections ...*metadata.ReflectionTable) *pipeline.ShaderProgram {
	t.Helper()
	modules := make([]pipeline.ShaderModule, len(reflections))
	for i, r := range reflections {
		m, err := pipeline.LoadShaderModule(e.device, r.Stage(), []byte{0x03, 0x02, 0x23, 0x07}, r)
		require.NoError(t, err)
		modules[i] = m
	}
	return pipeline.NewShaderProgram(layout, modules...)
}

// begin opens a command list with program bound to the graphics builder.
func (e *testEnv) begin(t *testing.T, program *pipeline.ShaderProgram) *headless.CommandList {
	t.Helper()
	e.ctx.Graphics.BindShaderProgram(program)
	require.NoError(t, e.ctx.BeginCommandList())
	cl, ok := e.ctx.CommandList().(*headless.CommandList)
	require.True(t, ok)
	return cl
}

func (e *testEnv) image(t *testing.T, name string) metadata.ImageViewHandle {
	t.Helper()
	h, err := e.device.CreateImageView(metadata.ImageViewDesc{Name: name, Width: 4, Height: 4})
	require.NoError(t, err)
	return h
}

func reflect(stage metadata.ShaderStage) *metadata.ReflectionTable {
	return metadata.NewReflectionTable(stage, core.HashName)
}

func pushConstants(name string, stages metadata.ShaderStage, start, size uint32) descriptor.PushConstantsRangeSignature {
	return descriptor.PushConstantsRangeSignature{Name: name, HashName: core.HashName(name), Stages: stages, RangeStart: start, RangeSize: size}
}
