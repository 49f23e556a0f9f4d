package descriptor

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

// CompiledDescriptorSetLayout is the device form of a signature, plus a set
// with every slot holding a blank resource.
type CompiledDescriptorSetLayout struct {
	Handle    metadata.DescriptorSetLayoutHandle
	Signature *DescriptorSetSignature
	Stages    metadata.ShaderStage
	BlankSet  metadata.DescriptorSetHandle
	// BlankDescriptions describe the contents of BlankSet per slot.
	BlankDescriptions []string
}

func (l *CompiledDescriptorSetLayout) SlotCount() int {
	return len(l.Signature.Slots)
}

// LayoutCache compiles signatures into layouts once and keeps them for its
// own lifetime. Lookups may run concurrently.
type LayoutCache struct {
	mu      sync.RWMutex
	device  renderer.RenderDevice
	pool    *DescriptorPool
	dummies *renderer.DummyResources
	layouts map[uint64]*CompiledDescriptorSetLayout
}

func NewLayoutCache(device renderer.RenderDevice, pool *DescriptorPool, dummies *renderer.DummyResources) *LayoutCache {
	return &LayoutCache{
		device:  device,
		pool:    pool,
		dummies: dummies,
		layouts: make(map[uint64]*CompiledDescriptorSetLayout),
	}
}

func layoutKey(ownerID uint64, signature *DescriptorSetSignature, stages metadata.ShaderStage) uint64 {
	return core.HashCombine(ownerID, signature.HashName, signature.Hash(), uint64(stages))
}

// Compile returns the cached layout for (ownerID, signature, stages), creating
// it on first use.
func (c *LayoutCache) Compile(ownerID uint64, signature *DescriptorSetSignature, stages metadata.ShaderStage) (*CompiledDescriptorSetLayout, error) {
	key := layoutKey(ownerID, signature, stages)

	c.mu.RLock()
	l, ok := c.layouts[key]
	c.mu.RUnlock()
	if ok {
		return l, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layouts[key]; ok {
		return l, nil
	}

	if err := ValidateDescriptorSetLimits(c.device.Limits(), signature); err != nil {
		return nil, err
	}

	sig := signature.Clone()
	handle, err := c.device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutDesc{
		Name:   sig.Name,
		Slots:  sig.Slots,
		Stages: stages,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: descriptor set layout (%s): %v", core.ErrDeviceFailure, sig.Name, err)
	}

	l = &CompiledDescriptorSetLayout{Handle: handle, Signature: sig, Stages: stages}
	if len(sig.Slots) > 0 {
		blank, err := c.pool.Allocate(handle)
		if err != nil {
			return nil, err
		}
		builder := NewProgressiveDescriptorSetBuilder(sig.Slots, len(sig.Slots))
		builder.BindDummyDescriptors(c.dummies, containers.AllSlots(len(sig.Slots)))
		builder.FlushChanges(c.device, blank, 0, 0)
		l.BlankSet = blank
		l.BlankDescriptions = append([]string(nil), builder.Descriptions()...)
	}

	c.layouts[key] = l
	core.LogDebug("descriptor set layout (%s) compiled with %d slots", sig.Name, len(sig.Slots))
	return l, nil
}

// Empty returns the layout with no slots, used to fill unused set indices.
func (c *LayoutCache) Empty(stages metadata.ShaderStage) (*CompiledDescriptorSetLayout, error) {
	return c.Compile(0, &DescriptorSetSignature{Name: "<empty>", HashName: core.HashName("<empty>")}, stages)
}

func (c *LayoutCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layouts)
}

// ValidateDescriptorSetLimits checks the per-stage descriptor limits of a
// single set.
func ValidateDescriptorSetLimits(limits metadata.DeviceLimits, signature *DescriptorSetSignature) error {
	counts := signature.Counts()
	if counts.SampledImages > limits.MaxPerStageDescriptorSampledImages ||
		counts.Samplers > limits.MaxPerStageDescriptorSamplers ||
		counts.UniformBuffers > limits.MaxPerStageDescriptorUniformBuffers ||
		counts.StorageBuffers > limits.MaxPerStageDescriptorStorageBuffers ||
		counts.StorageImages > limits.MaxPerStageDescriptorStorageImages {
		return fmt.Errorf("%w: descriptor set (%s) exceeds the maximum number of bound resources in a single descriptor set", core.ErrDeviceLimits, signature.Name)
	}
	return nil
}
