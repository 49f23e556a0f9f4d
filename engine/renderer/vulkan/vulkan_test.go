package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderStageFlags(t *testing.T) {
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		shaderStageFlags(metadata.ShaderStageVertex|metadata.ShaderStageFragment))
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageComputeBit), shaderStageFlags(metadata.ShaderStageCompute))
	assert.Zero(t, shaderStageFlags(0))

	assert.Equal(t, vk.ShaderStageGeometryBit, shaderStageBit(metadata.ShaderStageGeometry))
	assert.Panics(t, func() { shaderStageBit(metadata.ShaderStageVertex | metadata.ShaderStageFragment) })
}

func TestDescriptorTypes(t *testing.T) {
	tests := []struct {
		in     metadata.DescriptorType
		out    vk.DescriptorType
		layout vk.ImageLayout
	}{
		{metadata.DescriptorTypeSampler, vk.DescriptorTypeSampler, vk.ImageLayoutShaderReadOnlyOptimal},
		{metadata.DescriptorTypeTexture, vk.DescriptorTypeSampledImage, vk.ImageLayoutShaderReadOnlyOptimal},
		{metadata.DescriptorTypeConstantBuffer, vk.DescriptorTypeUniformBuffer, vk.ImageLayoutShaderReadOnlyOptimal},
		{metadata.DescriptorTypeUnorderedAccessTexture, vk.DescriptorTypeStorageImage, vk.ImageLayoutGeneral},
		{metadata.DescriptorTypeUnorderedAccessBuffer, vk.DescriptorTypeStorageBuffer, vk.ImageLayoutShaderReadOnlyOptimal},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.out, descriptorType(tt.in))
			assert.Equal(t, tt.layout, imageLayout(tt.in))
		})
	}
	assert.Panics(t, func() { descriptorType(metadata.DescriptorTypeUnknown) })
}

func TestFixedFunctionConversions(t *testing.T) {
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit|vk.BufferUsageTransferDstBit),
		bufferUsage(metadata.BufferUsageUniform|metadata.BufferUsageTransferDst))
	assert.Equal(t, vk.CullModeFlags(vk.CullModeNone), cullMode(metadata.FaceCullModeNone))
	assert.Equal(t, vk.CullModeFlags(vk.CullModeBackBit), cullMode(metadata.FaceCullModeBack))
	assert.Equal(t, vk.SampleCount4Bit, sampleCount(4))
	assert.Equal(t, vk.SampleCount1Bit, sampleCount(3))
	assert.Equal(t, vk.PipelineBindPointCompute, bindPoint(metadata.PipelineTypeCompute))
	assert.Equal(t, vk.PipelineBindPointGraphics, bindPoint(metadata.PipelineTypeGraphics))

	blend := metadata.AlphaBlend()
	state := colorBlendAttachment(blend.Attachments[0])
	assert.Equal(t, vk.Bool32(vk.True), state.BlendEnable)
	assert.Equal(t, vk.BlendFactorSrcAlpha, state.SrcColorBlendFactor)
	assert.Equal(t, vk.BlendFactorOneMinusSrcAlpha, state.DstColorBlendFactor)
	assert.Equal(t, vk.ColorComponentFlags(0xf), state.ColorWriteMask)

	opaque := colorBlendAttachment(metadata.OpaqueBlend().Attachments[0])
	assert.Equal(t, vk.Bool32(vk.False), opaque.BlendEnable)
}

func TestResultStrings(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", VulkanResultString(vk.Success, false))
	assert.Contains(t, VulkanResultString(vk.ErrorDeviceLost, true), "VK_ERROR_DEVICE_LOST ")
	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345), false))

	assert.True(t, VulkanResultIsSuccess(vk.Incomplete))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfHostMemory))

	require.NoError(t, check(vk.Success, "vkNothing"))
	err := check(vk.ErrorOutOfDeviceMemory, "vkAllocateMemory")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDeviceFailure))
	assert.Contains(t, err.Error(), "vkAllocateMemory")
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0])

	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte{'g', 'p', 'u', 0, 'x'}))
	assert.Equal(t, 2, FindFirstZeroInByteArray([]byte{'o', 'k'}))
}

func TestLockPool(t *testing.T) {
	pool := NewVulkanLockPool()

	var mu sync.Mutex
	inside := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(DescriptorManagement, func() error {
				mu.Lock()
				inside++
				assert.Equal(t, 1, inside)
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	sentinel := errors.New("boom")
	assert.ErrorIs(t, pool.SafeCall(PipelineManagement, func() error { return sentinel }), sentinel)

	assert.Panics(t, func() { _ = pool.SafeQueueCall(3, func() error { return nil }) })
	pool.SetQueueFamily(3)
	called := false
	require.NoError(t, pool.SafeQueueCall(3, func() error { called = true; return nil }))
	assert.True(t, called)
}

func TestHandleTable(t *testing.T) {
	var table handleTable[metadata.BufferHandle, string]
	_, ok := table.get(1)
	assert.False(t, ok)

	table.put(1, "a")
	table.put(2, "b")
	v, ok := table.get(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = table.take(2)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = table.get(2)
	assert.False(t, ok)

	assert.Equal(t, []string{"a"}, table.drain())
	assert.Empty(t, table.drain())
}
