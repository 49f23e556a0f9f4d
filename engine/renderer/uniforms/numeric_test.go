package uniforms

import (
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const numericSignatureTOML = `
MainRootSignature = "GraphicsMain"

[[DescriptorSet]]
name = "Sequencer"
Descriptors = [
  { type = "ConstantBuffer", slots = "0" },
  { type = "Texture", slots = "1" },
]

[[DescriptorSet]]
name = "Numeric"
Descriptors = [
  { type = "ConstantBuffer", slots = "0..2" },
  { type = "Texture", slots = "2..6" },
  { type = "Sampler", slots = "6" },
  { type = "UnorderedAccessBuffer", slots = "7..9" },
]

[[DescriptorSet]]
name = "Material"
Descriptors = [
  { type = "Texture", slots = "0..2" },
]

[[LegacyBinding]]
name = "GraphicsLegacy"

[[LegacyBinding.Register]]
register = "b0..2"
set = "Numeric"
mapping = "0..2"

[[LegacyBinding.Register]]
register = "t0..4"
set = "Numeric"
mapping = "2..6"

[[LegacyBinding.Register]]
register = "t4..6"
set = "Material"
mapping = "0..2"

[[LegacyBinding.Register]]
register = "s0"
set = "Numeric"
mapping = "6"

[[LegacyBinding.Register]]
register = "t8..10(buffer)"
set = "Numeric"
mapping = "7..9"

[[RootSignature]]
name = "GraphicsMain"
legacyBindings = "GraphicsLegacy"

[[RootSignature.Set]]
type = "Adaptive"
name = "Sequencer"
uniformStream = 0

[[RootSignature.Set]]
type = "Numeric"
name = "Numeric"
`

type numericEnv struct {
	*testEnv
	layout *pipeline.CompiledPipelineLayout
	legacy *descriptor.LegacyRegisterBindingDesc
}

func newNumericEnv(t *testing.T) *numericEnv {
	t.Helper()
	env := newTestEnv(t)
	file, err := descriptor.ParseSignatureBytes([]byte(numericSignatureTOML), descriptor.SignatureFormatTOML)
	require.NoError(t, err)
	bound, err := descriptor.NewBoundSignatureFile(env.pools, file, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	layout, err := env.layouts.BuildRootSignatureLayout(bound, core.HashName("GraphicsMain"))
	require.NoError(t, err)
	legacy := file.LegacyBinding(core.HashName("GraphicsLegacy"))
	require.NotNil(t, legacy)
	return &numericEnv{testEnv: env, layout: layout, legacy: legacy}
}

// record opens a command list with the root layout on the graphics builder.
func (e *numericEnv) record(t *testing.T) *headless.CommandList {
	t.Helper()
	e.ctx.Graphics.SetPipelineLayout(e.layout)
	require.NoError(t, e.ctx.BeginCommandList())
	return e.ctx.CommandList().(*headless.CommandList)
}

func TestNumericApplyCopiesEarlierSlotsForward(t *testing.T) {
	env := newNumericEnv(t)
	numeric, err := NewNumericUniformsInterface(env.pools, env.layout, env.legacy, metadata.PipelineTypeGraphics)
	require.NoError(t, err)
	require.True(t, numeric.HasChanges())
	cl := env.record(t)

	a, b := env.image(t, "a"), env.image(t, "b")
	constants := metadata.BufferRange{Buffer: env.temporary.Buffer(), Offset: 256, Size: 64}
	numeric.BindSRV(0, metadata.ImageView(a))
	numeric.BindConstantBuffers(0, constants)
	require.NoError(t, numeric.Apply(env.ctx))

	first := numeric.DescriptorSet(1)
	require.NotZero(t, first)
	contents := env.device.DescriptorSetContents(first)
	assert.Equal(t, metadata.BufferInfo{Buffer: constants.Buffer, Offset: 256, Range: 64}, contents[0])
	assert.Equal(t, metadata.ImageInfo{View: a}, contents[2])
	assert.Equal(t, env.pools.Dummies.InfoFor(metadata.DescriptorTypeTexture), contents[3])
	assert.Equal(t, env.pools.Dummies.InfoFor(metadata.DescriptorTypeSampler), contents[6])

	numeric.BindSRV(1, metadata.ImageView(b))
	require.NoError(t, numeric.Apply(env.ctx))
	second := numeric.DescriptorSet(1)
	require.NotEqual(t, first, second)
	contents = env.device.DescriptorSetContents(second)
	assert.Equal(t, metadata.BufferInfo{Buffer: constants.Buffer, Offset: 256, Range: 64}, contents[0])
	assert.Equal(t, metadata.ImageInfo{View: a}, contents[2])
	assert.Equal(t, metadata.ImageInfo{View: b}, contents[3])
	for slot := range contents {
		assert.NotNil(t, contents[slot], "slot %d", slot)
	}
	assert.Equal(t, second, env.ctx.BoundDescriptorSet(metadata.PipelineTypeGraphics, 1))

	// nothing new: the same set stays bound
	assert.False(t, numeric.HasChanges())
	require.NoError(t, numeric.Apply(env.ctx))
	assert.Equal(t, second, numeric.DescriptorSet(1))
	assert.Equal(t, 2, cl.Count(headless.OpBindDescriptorSets))
}

func TestNumericBufferViewsUseBufferRegisters(t *testing.T) {
	env := newNumericEnv(t)
	numeric, err := NewNumericUniformsInterface(env.pools, env.layout, env.legacy, metadata.PipelineTypeGraphics)
	require.NoError(t, err)
	env.record(t)

	particles, err := env.device.CreateBuffer(metadata.BufferDesc{Name: "particles", Size: 512, Usage: metadata.BufferUsageStorage})
	require.NoError(t, err)
	numeric.BindSRV(8, metadata.BufferView(metadata.BufferRange{Buffer: particles, Size: 512}), metadata.ResourceView{})
	require.NoError(t, numeric.Apply(env.ctx))

	contents := env.device.DescriptorSetContents(numeric.DescriptorSet(1))
	assert.Equal(t, metadata.BufferInfo{Buffer: particles, Range: 512}, contents[7])
	assert.Equal(t, env.pools.Dummies.InfoFor(metadata.DescriptorTypeUnorderedAccessBuffer), contents[8])
	assert.Empty(t, numeric.UnmappedBindings())
}

func TestNumericUnmappedRegisters(t *testing.T) {
	env := newNumericEnv(t)
	numeric, err := NewNumericUniformsInterface(env.pools, env.layout, env.legacy, metadata.PipelineTypeGraphics)
	require.NoError(t, err)
	env.record(t)

	before := core.MetricsSnapshotNow().UnmappedBindings
	img := metadata.ImageView(env.image(t, "img"))
	numeric.BindSRV(9, img)
	numeric.BindSRV(9, img)
	// t4 targets Material, which the root signature leaves out
	numeric.BindSRV(4, img)
	numeric.BindUAV(0, img)
	numeric.BindSamplers(3, env.pools.Dummies.Sampler)

	assert.Equal(t, []UnmappedBinding{
		{Register: descriptor.RegisterTypeShaderResource, Slot: 9},
		{Register: descriptor.RegisterTypeShaderResource, Slot: 4},
		{Register: descriptor.RegisterTypeUnorderedAccess, Slot: 0},
		{Register: descriptor.RegisterTypeSampler, Slot: 3},
	}, numeric.UnmappedBindings())
	assert.Equal(t, "t9", numeric.UnmappedBindings()[0].String())
	assert.GreaterOrEqual(t, core.MetricsSnapshotNow().UnmappedBindings-before, uint64(5))

	assert.Panics(t, func() { numeric.BindSRV(MaxNumericBindings, img) })
}

func TestNumericResetDropsEverything(t *testing.T) {
	env := newNumericEnv(t)
	numeric, err := NewNumericUniformsInterface(env.pools, env.layout, env.legacy, metadata.PipelineTypeGraphics)
	require.NoError(t, err)
	env.record(t)

	a := env.image(t, "a")
	numeric.BindSRV(0, metadata.ImageView(a))
	require.NoError(t, numeric.Apply(env.ctx))
	applied := numeric.DescriptorSet(1)

	numeric.Reset()
	assert.Zero(t, numeric.DescriptorSet(1))
	require.True(t, numeric.HasChanges())
	require.NoError(t, numeric.Apply(env.ctx))
	contents := env.device.DescriptorSetContents(numeric.DescriptorSet(1))
	assert.Equal(t, env.pools.Dummies.InfoFor(metadata.DescriptorTypeTexture), contents[2])

	require.NoError(t, env.ctx.Submit())
	env.device.ManualTracker().RetireAll()
	env.ctx.FlushDestroys()
	assert.False(t, env.device.IsDescriptorSetLive(applied))
}

func TestNumericLegacyBindingValidation(t *testing.T) {
	env := newNumericEnv(t)
	numericSet := core.HashName("Numeric")

	tests := []struct {
		name     string
		register descriptor.RegisterType
		entry    descriptor.LegacyRegisterEntry
		err      error
	}{
		{
			name:     "registers past the table",
			register: descriptor.RegisterTypeShaderResource,
			entry:    descriptor.LegacyRegisterEntry{Begin: 60, End: 70, TargetSetName: "Numeric", TargetSetHash: numericSet, TargetBegin: 0, TargetEnd: 10},
			err:      core.ErrSignatureFile,
		},
		{
			name:     "slots past the descriptor set",
			register: descriptor.RegisterTypeSampler,
			entry:    descriptor.LegacyRegisterEntry{Begin: 0, End: 2, TargetSetName: "Numeric", TargetSetHash: numericSet, TargetBegin: 9, TargetEnd: 11},
			err:      core.ErrMissingSlot,
		},
		{
			name:     "slot of another type",
			register: descriptor.RegisterTypeConstantBuffer,
			entry:    descriptor.LegacyRegisterEntry{Begin: 0, End: 1, TargetSetName: "Numeric", TargetSetHash: numericSet, TargetBegin: 2, TargetEnd: 3},
			err:      core.ErrKindMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legacy := &descriptor.LegacyRegisterBindingDesc{Name: "Broken", HashName: core.HashName("Broken")}
			require.NoError(t, legacy.AppendEntry(tt.register, descriptor.RegisterQualifierNone, tt.entry))
			_, err := NewNumericUniformsInterface(env.pools, env.layout, legacy, metadata.PipelineTypeGraphics)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestBoundUniformsLeavesNumericSetsAlone(t *testing.T) {
	env := newNumericEnv(t)
	program := env.program(t, env.layout,
		reflect(metadata.ShaderStageVertex).AddBinding("GlobalTransform", 0, 0, cb),
		reflect(metadata.ShaderStageFragment).AddBinding("t0", 1, 2, tex).AddBinding("s0", 1, 6, sampler),
	)

	bound, err := NewBoundUniforms(program, nil, nil)
	require.NoError(t, err)
	rules := bound.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, AdaptiveSetRule{
		Kind:          AdaptiveSetRuleDummy,
		DescriptorSet: 0,
		Slot:          0,
		Source:        -1,
		Stages:        metadata.ShaderStageVertex,
		Type:          cb,
		Name:          "GlobalTransform",
	}, rules[0])
	assert.Zero(t, bound.AdaptiveSetUsage(1))
}
