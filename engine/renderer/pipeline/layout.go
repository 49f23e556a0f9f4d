package pipeline

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

// DescriptorSetBinding is one descriptor set index of a pipeline layout.
type DescriptorSetBinding struct {
	Name     string
	HashName uint64
	Layout   *descriptor.CompiledDescriptorSetLayout
	Type     descriptor.DescriptorSetType
	// UniformStream is descriptor.NoUniformStream unless a root signature
	// assigns the set to a stream.
	UniformStream uint32
}

// PushConstantsBinding is a named push constant range of a pipeline layout.
type PushConstantsBinding struct {
	Name     string
	HashName uint64
	Range    metadata.PushConstantRange
}

/**
 * @brief The full ordered list of descriptor set layouts and push constant
 * ranges a shader program is built against.
 */
type CompiledPipelineLayout struct {
	/** @brief The device pipeline layout. */
	Handle metadata.PipelineLayoutHandle
	/** @brief Descriptor sets, indexed by set number. */
	DescriptorSets []DescriptorSetBinding
	/** @brief Push constant ranges visible to the active stages. */
	PushConstants []PushConstantsBinding
	/** @brief Stages the layout was built for. */
	Stages metadata.ShaderStage
	/** @brief Builder generation this layout was resolved at. Zero for layouts not made by a builder. */
	Generation uint64
}

// DescriptorSetIndex finds a set by name.
func (l *CompiledPipelineLayout) DescriptorSetIndex(hashName uint64) (uint32, bool) {
	for i, ds := range l.DescriptorSets {
		if ds.HashName == hashName {
			return uint32(i), true
		}
	}
	return 0, false
}

func (l *CompiledPipelineLayout) DescriptorSet(index uint32) *DescriptorSetBinding {
	if int(index) >= len(l.DescriptorSets) {
		return nil
	}
	return &l.DescriptorSets[index]
}

// PushConstantsRange finds a push constant range by name.
func (l *CompiledPipelineLayout) PushConstantsRange(hashName uint64) (PushConstantsBinding, bool) {
	for _, pc := range l.PushConstants {
		if pc.HashName == hashName {
			return pc, true
		}
	}
	return PushConstantsBinding{}, false
}

// PipelineLayoutCache creates one device pipeline layout per distinct
// combination of set layouts and push constant ranges.
type PipelineLayoutCache struct {
	mu      sync.RWMutex
	device  renderer.RenderDevice
	layouts map[uint64]*CompiledPipelineLayout
}

func NewPipelineLayoutCache(device renderer.RenderDevice) *PipelineLayoutCache {
	return &PipelineLayoutCache{
		device:  device,
		layouts: make(map[uint64]*CompiledPipelineLayout),
	}
}

func pipelineLayoutKey(sets []DescriptorSetBinding, pushConstants []PushConstantsBinding, stages metadata.ShaderStage) uint64 {
	h := core.HashCombine(uint64(stages), uint64(len(sets)), uint64(len(pushConstants)))
	for _, s := range sets {
		h = core.HashCombine(h, uint64(s.Layout.Handle), s.HashName)
	}
	for _, pc := range pushConstants {
		h = core.HashCombine(h, pc.HashName, uint64(pc.Range.Stages), uint64(pc.Range.Offset), uint64(pc.Range.Size))
	}
	return h
}

// Get returns the cached layout for the combination, creating the device
// object on first use.
func (c *PipelineLayoutCache) Get(sets []DescriptorSetBinding, pushConstants []PushConstantsBinding, stages metadata.ShaderStage) (*CompiledPipelineLayout, error) {
	key := pipelineLayoutKey(sets, pushConstants, stages)

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

	desc := metadata.PipelineLayoutDesc{
		SetLayouts:    make([]metadata.DescriptorSetLayoutHandle, len(sets)),
		PushConstants: make([]metadata.PushConstantRange, len(pushConstants)),
	}
	for i, s := range sets {
		desc.SetLayouts[i] = s.Layout.Handle
	}
	for i, pc := range pushConstants {
		desc.PushConstants[i] = pc.Range
	}
	if limits := c.device.Limits(); uint32(len(sets)) > limits.MaxBoundDescriptorSets {
		return nil, fmt.Errorf("%w: pipeline layout uses %d descriptor sets, the device supports %d", core.ErrDeviceLimits, len(sets), limits.MaxBoundDescriptorSets)
	}

	handle, err := c.device.CreatePipelineLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: vkCreatePipelineLayout failed: %v", core.ErrDeviceFailure, err)
	}
	core.MetricsPipelineLayoutBuilt()

	l = &CompiledPipelineLayout{
		Handle:         handle,
		DescriptorSets: slices.Clone(sets),
		PushConstants:  slices.Clone(pushConstants),
		Stages:         stages,
	}
	c.layouts[key] = l
	core.LogDebug("pipeline layout created with %d descriptor sets and %d push constant ranges", len(sets), len(pushConstants))
	return l, nil
}

func (c *PipelineLayoutCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layouts)
}

// BuildRootSignatureLayout builds the pipeline layout a root signature of a
// bound signature file describes. Push constant ranges that no bound stage
// can see are left out.
func (c *PipelineLayoutCache) BuildRootSignatureLayout(bound *descriptor.BoundSignatureFile, rootHashName uint64) (*CompiledPipelineLayout, error) {
	root := bound.File.RootSignature(rootHashName)
	if root == nil {
		return nil, fmt.Errorf("%w: root signature %x not found in %s", core.ErrSignatureFile, rootHashName, bound.File.Path)
	}

	sets := make([]DescriptorSetBinding, 0, len(root.DescriptorSets))
	for _, ref := range root.DescriptorSets {
		l := bound.DescriptorSetLayout(ref.HashName)
		if l == nil {
			return nil, fmt.Errorf("%w: could not build root signature (%s) because descriptor set (%s) is missing", core.ErrMissingDescriptorSet, root.Name, ref.Name)
		}
		sets = append(sets, DescriptorSetBinding{
			Name:          ref.Name,
			HashName:      ref.HashName,
			Layout:        l,
			Type:          ref.Type,
			UniformStream: ref.UniformStream,
		})
	}

	var pushConstants []PushConstantsBinding
	for _, name := range root.PushConstants {
		pc := bound.File.PushConstantsRange(core.HashName(name))
		if pc == nil {
			return nil, fmt.Errorf("%w: could not build root signature (%s) because push constant range (%s) is missing", core.ErrPushConstantNotFound, root.Name, name)
		}
		if pc.Stages&bound.Stages == 0 {
			continue
		}
		pushConstants = append(pushConstants, PushConstantsBinding{
			Name:     pc.Name,
			HashName: pc.HashName,
			Range:    metadata.PushConstantRange{Stages: pc.Stages & bound.Stages, Offset: pc.RangeStart, Size: pc.RangeSize},
		})
	}
	return c.Get(sets, pushConstants, bound.Stages)
}

// ShaderDescriptorSet is a descriptor set a shader program declares itself.
type ShaderDescriptorSet struct {
	Index  uint32
	Name   string
	Layout *descriptor.CompiledDescriptorSetLayout
}

// ShaderBasedDescriptorSets is the shader side of a pipeline layout. It
// remembers the layout last resolved for it, and the builder generation
// that layout belongs to.
type ShaderBasedDescriptorSets struct {
	DescriptorSets []ShaderDescriptorSet
	PushConstants  []descriptor.PushConstantsRangeSignature

	cached     *CompiledPipelineLayout
	cachedBy   *PipelineLayoutBuilder
	generation uint64
}

func (s *ShaderBasedDescriptorSets) Cached() *CompiledPipelineLayout {
	return s.cached
}

// PipelineLayoutBuilder combines fixed descriptor sets bound by the engine
// with the descriptor sets of a shader.
type PipelineLayoutBuilder struct {
	cache   *PipelineLayoutCache
	layouts *descriptor.LayoutCache
	stages  metadata.ShaderStage

	fixed      []DescriptorSetBinding
	generation uint64
}

func NewPipelineLayoutBuilder(cache *PipelineLayoutCache, layouts *descriptor.LayoutCache, activeStages metadata.ShaderStage) *PipelineLayoutBuilder {
	return &PipelineLayoutBuilder{
		cache:      cache,
		layouts:    layouts,
		stages:     activeStages,
		generation: 1,
	}
}

func (b *PipelineLayoutBuilder) Generation() uint64 {
	return b.generation
}

func (b *PipelineLayoutBuilder) ActiveStages() metadata.ShaderStage {
	return b.stages
}

// SetFixedDescriptorSet binds a fixed set layout at index. The generation
// only moves when the configuration actually changes.
func (b *PipelineLayoutBuilder) SetFixedDescriptorSet(index uint32, name string, layout *descriptor.CompiledDescriptorSetLayout) {
	for uint32(len(b.fixed)) <= index {
		b.fixed = append(b.fixed, DescriptorSetBinding{})
	}
	cur := &b.fixed[index]
	if cur.Layout == layout && cur.Name == name {
		return
	}
	*cur = DescriptorSetBinding{
		Name:          name,
		HashName:      core.HashName(name),
		Layout:        layout,
		UniformStream: descriptor.NoUniformStream,
	}
	b.generation++
}

func (b *PipelineLayoutBuilder) ClearFixedDescriptorSet(index uint32) {
	if index >= uint32(len(b.fixed)) || b.fixed[index].Layout == nil {
		return
	}
	b.fixed[index] = DescriptorSetBinding{}
	for len(b.fixed) > 0 && b.fixed[len(b.fixed)-1].Layout == nil {
		b.fixed = b.fixed[:len(b.fixed)-1]
	}
	b.generation++
}

// SetShaderBasedDescriptorSets returns the pipeline layout for cfg combined
// with the current fixed sets. The layout cached on cfg is reused while the
// builder generation has not moved.
func (b *PipelineLayoutBuilder) SetShaderBasedDescriptorSets(cfg *ShaderBasedDescriptorSets) (*CompiledPipelineLayout, error) {
	if cfg.cached != nil && cfg.cachedBy == b && cfg.generation == b.generation {
		return cfg.cached, nil
	}

	count := uint32(len(b.fixed))
	for _, s := range cfg.DescriptorSets {
		if s.Index+1 > count {
			count = s.Index + 1
		}
	}

	sets := make([]DescriptorSetBinding, count)
	for i, f := range b.fixed {
		if f.Layout != nil {
			sets[i] = f
		}
	}
	for _, s := range cfg.DescriptorSets {
		if sets[s.Index].Layout != nil {
			panic(fmt.Sprintf("descriptor set index %d is claimed by both fixed set (%s) and shader set (%s)", s.Index, sets[s.Index].Name, s.Name))
		}
		sets[s.Index] = DescriptorSetBinding{
			Name:          s.Name,
			HashName:      core.HashName(s.Name),
			Layout:        s.Layout,
			UniformStream: descriptor.NoUniformStream,
		}
	}
	for i := range sets {
		if sets[i].Layout != nil {
			continue
		}
		empty, err := b.layouts.Empty(b.stages)
		if err != nil {
			return nil, err
		}
		sets[i] = DescriptorSetBinding{Name: empty.Signature.Name, HashName: empty.Signature.HashName, Layout: empty, UniformStream: descriptor.NoUniformStream}
	}

	var pushConstants []PushConstantsBinding
	for _, pc := range cfg.PushConstants {
		if pc.Stages&b.stages == 0 {
			continue
		}
		pushConstants = append(pushConstants, PushConstantsBinding{
			Name:     pc.Name,
			HashName: pc.HashName,
			Range:    metadata.PushConstantRange{Stages: pc.Stages & b.stages, Offset: pc.RangeStart, Size: pc.RangeSize},
		})
	}

	shared, err := b.cache.Get(sets, pushConstants, b.stages)
	if err != nil {
		return nil, err
	}
	l := *shared
	l.Generation = b.generation

	cfg.cached = &l
	cfg.cachedBy = b
	cfg.generation = b.generation
	return cfg.cached, nil
}
