package descriptor

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutCacheReturnsSameLayout(t *testing.T) {
	pools, device := newTestPools(t)
	sig := NewDescriptorSetSignature("Material",
		metadata.DescriptorTypeConstantBuffer,
		metadata.DescriptorTypeTexture,
		metadata.DescriptorTypeSampler)

	a, err := pools.Layouts.Compile(1, sig, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	b, err := pools.Layouts.Compile(1, sig, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, device.Stats().DescriptorSetLayouts)

	c, err := pools.Layouts.Compile(1, sig, metadata.ShaderStageCompute)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	d, err := pools.Layouts.Compile(2, sig, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.Equal(t, 3, pools.Layouts.Len())
}

func TestLayoutCacheKeepsItsOwnSignatureCopy(t *testing.T) {
	pools, _ := newTestPools(t)
	sig := NewDescriptorSetSignature("Copy", metadata.DescriptorTypeTexture)
	l, err := pools.Layouts.Compile(0, sig, metadata.ShaderStageFragment)
	require.NoError(t, err)

	sig.Slots[0].Type = metadata.DescriptorTypeSampler
	assert.Equal(t, metadata.DescriptorTypeTexture, l.Signature.Slots[0].Type)
}

func TestCompiledLayoutBlankSet(t *testing.T) {
	pools, device := newTestPools(t)
	sig := NewDescriptorSetSignature("Blank",
		metadata.DescriptorTypeConstantBuffer,
		metadata.DescriptorTypeTexture,
		metadata.DescriptorTypeSampler,
		metadata.DescriptorTypeUnorderedAccessBuffer)
	l, err := pools.Layouts.Compile(0, sig, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)

	require.NotZero(t, l.BlankSet)
	contents := device.DescriptorSetContents(l.BlankSet)
	require.Len(t, contents, 4)
	assert.Equal(t, pools.Dummies.InfoFor(metadata.DescriptorTypeConstantBuffer), contents[0])
	assert.Equal(t, pools.Dummies.InfoFor(metadata.DescriptorTypeTexture), contents[1])
	assert.Equal(t, pools.Dummies.InfoFor(metadata.DescriptorTypeSampler), contents[2])
	assert.Equal(t, pools.Dummies.InfoFor(metadata.DescriptorTypeUnorderedAccessBuffer), contents[3])
	for _, d := range l.BlankDescriptions {
		assert.Equal(t, DummyDescription, d)
	}
}

func TestEmptyLayoutHasNoBlankSet(t *testing.T) {
	pools, _ := newTestPools(t)
	l, err := pools.Layouts.Empty(metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	assert.Zero(t, l.SlotCount())
	assert.Zero(t, l.BlankSet)
}

func TestLayoutCacheConcurrentCompile(t *testing.T) {
	pools, device := newTestPools(t)
	sig := NewDescriptorSetSignature("Shared", metadata.DescriptorTypeTexture, metadata.DescriptorTypeSampler)

	var wg sync.WaitGroup
	results := make([]*CompiledDescriptorSetLayout, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := pools.Layouts.Compile(7, sig, metadata.ShaderStageFragment)
			assert.NoError(t, err)
			results[i] = l
		}(i)
	}
	wg.Wait()
	for _, l := range results {
		assert.Same(t, results[0], l)
	}
	assert.Equal(t, 1, device.Stats().DescriptorSetLayouts)
}

func TestValidateDescriptorSetLimits(t *testing.T) {
	limits := metadata.DefaultDeviceLimits()
	types := make([]metadata.DescriptorType, limits.MaxPerStageDescriptorSamplers+1)
	for i := range types {
		types[i] = metadata.DescriptorTypeSampler
	}
	err := ValidateDescriptorSetLimits(limits, NewDescriptorSetSignature("TooMany", types...))
	assert.ErrorIs(t, err, core.ErrDeviceLimits)

	err = ValidateDescriptorSetLimits(limits, NewDescriptorSetSignature("Fits", types[1:]...))
	assert.NoError(t, err)

	pools, _ := newTestPools(t)
	_, err = pools.Layouts.Compile(0, NewDescriptorSetSignature("TooMany", types...), metadata.ShaderStageFragment)
	assert.ErrorIs(t, err, core.ErrDeviceLimits)
}

func TestValidateRootSignature(t *testing.T) {
	limits := metadata.DefaultDeviceLimits()
	f := parseTOML(t, testSignatureTOML)
	require.NoError(t, ValidateRootSignature(limits, f))

	limits.MaxPushConstantsSize = 32
	assert.ErrorIs(t, ValidateRootSignature(limits, f), core.ErrDeviceLimits)

	limits = metadata.DefaultDeviceLimits()
	limits.MaxBoundDescriptorSets = 1
	assert.ErrorIs(t, ValidateRootSignature(limits, f), core.ErrDeviceLimits)

	// totals are summed over the sets of one root signature
	limits = metadata.DefaultDeviceLimits()
	limits.MaxDescriptorSetUniformBuffers = 6
	assert.ErrorIs(t, ValidateRootSignature(limits, f), core.ErrDeviceLimits)
	limits.MaxDescriptorSetUniformBuffers = 7
	assert.NoError(t, ValidateRootSignature(limits, f))
}

func TestNewBoundSignatureFile(t *testing.T) {
	pools, device := newTestPools(t)
	f := parseTOML(t, testSignatureTOML)

	bound, err := NewBoundSignatureFile(pools, f, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	seq := bound.DescriptorSetLayout(core.HashName("Sequencer"))
	require.NotNil(t, seq)
	assert.Equal(t, 7, seq.SlotCount())
	assert.NotNil(t, bound.DescriptorSetLayout(core.HashName("Numeric")))
	assert.Nil(t, bound.DescriptorSetLayout(core.HashName("Missing")))
	assert.Equal(t, 2, device.Stats().DescriptorSetLayouts)

	// a second binding of the same file gets its own layouts
	other, err := NewBoundSignatureFile(pools, f, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	assert.NotEqual(t, bound.ID.Hash, other.ID.Hash)
	assert.NotSame(t, seq, other.DescriptorSetLayout(core.HashName("Sequencer")))
}

func TestRebindReusesUnchangedLayouts(t *testing.T) {
	pools, device := newTestPools(t)
	f := parseTOML(t, testSignatureTOML)
	bound, err := NewBoundSignatureFile(pools, f, metadata.ShaderStageAllGraphics)
	require.NoError(t, err)
	cached := pools.Layouts.Len()
	layouts := device.Stats().DescriptorSetLayouts

	rebound, err := bound.Rebind(pools, parseTOML(t, testSignatureTOML))
	require.NoError(t, err)
	assert.Equal(t, bound.ID, rebound.ID)
	assert.Equal(t, bound.Stages, rebound.Stages)
	assert.Same(t, bound.DescriptorSetLayout(core.HashName("Sequencer")), rebound.DescriptorSetLayout(core.HashName("Sequencer")))
	assert.Same(t, bound.DescriptorSetLayout(core.HashName("Numeric")), rebound.DescriptorSetLayout(core.HashName("Numeric")))
	assert.Equal(t, cached, pools.Layouts.Len())
	assert.Equal(t, layouts, device.Stats().DescriptorSetLayouts)
}
