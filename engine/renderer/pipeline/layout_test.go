package pipeline

import (
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	device  *headless.Device
	pools   *descriptor.GlobalPools
	layouts *PipelineLayoutCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	device := headless.NewDevice(metadata.DefaultDeviceLimits())
	pools, err := descriptor.NewGlobalPools(device, descriptor.DefaultPendingWrites)
	require.NoError(t, err)
	return &testEnv{device: device, pools: pools, layouts: NewPipelineLayoutCache(device)}
}

func (e *testEnv) compile(t *testing.T, name string, types ...metadata.DescriptorType) *descriptor.CompiledDescriptorSetLayout {
	t.Helper()
	l, err := e.pools.Layouts.Compile(0, descriptor.NewDescriptorSetSignature(name, types...), metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	return l
}

func TestSetShaderBasedDescriptorSetsReusesLayoutWhileGenerationHolds(t *testing.T) {
	env := newTestEnv(t)
	builder := NewPipelineLayoutBuilder(env.layouts, env.pools.Layouts, metadata.ShaderStageAllGraphics)
	builder.SetFixedDescriptorSet(0, "Sequencer", env.compile(t, "Sequencer", metadata.DescriptorTypeConstantBuffer))

	cfg := &ShaderBasedDescriptorSets{
		DescriptorSets: []ShaderDescriptorSet{{Index: 1, Name: "Material", Layout: env.compile(t, "Material", metadata.DescriptorTypeTexture, metadata.DescriptorTypeSampler)}},
	}

	first, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	created := env.device.Stats().PipelineLayouts
	assert.Equal(t, 1, created)

	// same fixed configuration: generation unchanged and nothing is created
	builder.SetFixedDescriptorSet(0, "Sequencer", first.DescriptorSets[0].Layout)
	second, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, created, env.device.Stats().PipelineLayouts)
	assert.Equal(t, first.Generation, builder.Generation())
}

func TestPipelineLayoutGenerationMovesOnlyOnChange(t *testing.T) {
	env := newTestEnv(t)
	builder := NewPipelineLayoutBuilder(env.layouts, env.pools.Layouts, metadata.ShaderStageAllGraphics)
	seq := env.compile(t, "Sequencer", metadata.DescriptorTypeConstantBuffer)

	g := builder.Generation()
	builder.ClearFixedDescriptorSet(0)
	assert.Equal(t, g, builder.Generation())

	builder.SetFixedDescriptorSet(0, "Sequencer", seq)
	assert.Equal(t, g+1, builder.Generation())
	builder.SetFixedDescriptorSet(0, "Sequencer", seq)
	assert.Equal(t, g+1, builder.Generation())

	builder.ClearFixedDescriptorSet(0)
	assert.Equal(t, g+2, builder.Generation())

	cfg := &ShaderBasedDescriptorSets{}
	a, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	builder.SetFixedDescriptorSet(0, "Sequencer", seq)
	b, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Len(t, b.DescriptorSets, 1)

	// going back to an earlier combination reuses the device object
	builder.ClearFixedDescriptorSet(0)
	c, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Handle, c.Handle)
	assert.Equal(t, 2, env.device.Stats().PipelineLayouts)
}

func TestSetShaderBasedDescriptorSetsFillsGaps(t *testing.T) {
	env := newTestEnv(t)
	builder := NewPipelineLayoutBuilder(env.layouts, env.pools.Layouts, metadata.ShaderStageAllGraphics)
	cfg := &ShaderBasedDescriptorSets{
		DescriptorSets: []ShaderDescriptorSet{{Index: 2, Name: "Draw", Layout: env.compile(t, "Draw", metadata.DescriptorTypeConstantBuffer)}},
	}
	l, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	require.Len(t, l.DescriptorSets, 3)
	assert.Zero(t, l.DescriptorSets[0].Layout.SlotCount())
	assert.Zero(t, l.DescriptorSets[1].Layout.SlotCount())
	assert.Equal(t, "Draw", l.DescriptorSets[2].Name)

	idx, ok := l.DescriptorSetIndex(core.HashName("Draw"))
	assert.True(t, ok)
	assert.Equal(t, uint32(2), idx)

	desc, ok := env.device.PipelineLayout(l.Handle)
	require.True(t, ok)
	assert.Len(t, desc.SetLayouts, 3)
}

func TestSetShaderBasedDescriptorSetsPanicsOnDoubleClaim(t *testing.T) {
	env := newTestEnv(t)
	builder := NewPipelineLayoutBuilder(env.layouts, env.pools.Layouts, metadata.ShaderStageAllGraphics)
	builder.SetFixedDescriptorSet(0, "Sequencer", env.compile(t, "Sequencer", metadata.DescriptorTypeConstantBuffer))
	cfg := &ShaderBasedDescriptorSets{
		DescriptorSets: []ShaderDescriptorSet{{Index: 0, Name: "Material", Layout: env.compile(t, "Material", metadata.DescriptorTypeTexture)}},
	}
	assert.Panics(t, func() { _, _ = builder.SetShaderBasedDescriptorSets(cfg) })
}

func TestPushConstantsFilteredByActiveStages(t *testing.T) {
	env := newTestEnv(t)
	builder := NewPipelineLayoutBuilder(env.layouts, env.pools.Layouts, metadata.ShaderStageAllGraphics)
	cfg := &ShaderBasedDescriptorSets{
		PushConstants: []descriptor.PushConstantsRangeSignature{
			{Name: "Local", HashName: core.HashName("Local"), Stages: metadata.ShaderStageVertex | metadata.ShaderStageCompute, RangeSize: 64},
			{Name: "Dispatch", HashName: core.HashName("Dispatch"), Stages: metadata.ShaderStageCompute, RangeStart: 64, RangeSize: 16},
		},
	}
	l, err := builder.SetShaderBasedDescriptorSets(cfg)
	require.NoError(t, err)
	require.Len(t, l.PushConstants, 1)
	pc, ok := l.PushConstantsRange(core.HashName("Local"))
	require.True(t, ok)
	assert.Equal(t, metadata.PushConstantRange{Stages: metadata.ShaderStageVertex, Offset: 0, Size: 64}, pc.Range)
	_, ok = l.PushConstantsRange(core.HashName("Dispatch"))
	assert.False(t, ok)
}

func TestPipelineLayoutCacheDeviceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.device.FailPipelines = true
	empty, err := env.pools.Layouts.Empty(metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	_, err = env.layouts.Get([]DescriptorSetBinding{{Name: "e", Layout: empty}}, nil, metadata.ShaderStageAllGraphics)
	assert.ErrorIs(t, err, core.ErrDeviceFailure)
	assert.Zero(t, env.layouts.Len())
}

func TestBuildRootSignatureLayout(t *testing.T) {
	env := newTestEnv(t)
	file, err := descriptor.ParseSignatureBytes([]byte(`
MainRootSignature = "Main"

[[DescriptorSet]]
name = "Sequencer"
Descriptors = [{ type = "ConstantBuffer", slots = "0..2" }, { type = "Texture", slots = "2..4" }]

[[DescriptorSet]]
name = "Numeric"
Descriptors = [{ type = "Texture", slots = "0..8" }]

[[PushConstants]]
name = "Local"
slots = "0..64"

[[PushConstants]]
name = "Dispatch"
slots = "64..80(c)"

[[RootSignature]]
name = "Main"
PushConstants = ["Local", "Dispatch"]

[[RootSignature.Set]]
type = "Adaptive"
name = "Sequencer"
uniformStream = 1

[[RootSignature.Set]]
type = "Numeric"
name = "Numeric"
`), descriptor.SignatureFormatTOML)
	require.NoError(t, err)
	bound, err := descriptor.NewBoundSignatureFile(env.pools, file, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)

	l, err := env.layouts.BuildRootSignatureLayout(bound, core.HashName("Main"))
	require.NoError(t, err)
	require.Len(t, l.DescriptorSets, 2)
	assert.Equal(t, descriptor.DescriptorSetTypeAdaptive, l.DescriptorSets[0].Type)
	assert.Equal(t, uint32(1), l.DescriptorSets[0].UniformStream)
	assert.Equal(t, descriptor.DescriptorSetTypeNumeric, l.DescriptorSets[1].Type)
	require.Len(t, l.PushConstants, 1)
	assert.Equal(t, "Local", l.PushConstants[0].Name)

	again, err := env.layouts.BuildRootSignatureLayout(bound, core.HashName("Main"))
	require.NoError(t, err)
	assert.Same(t, l, again)

	_, err = env.layouts.BuildRootSignatureLayout(bound, core.HashName("Other"))
	assert.ErrorIs(t, err, core.ErrSignatureFile)
}
