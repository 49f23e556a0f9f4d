package uniforms

import (
	"cmp"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spaghettifunk/vkbind/engine/containers"
	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/descriptor"
	"github.com/spaghettifunk/vkbind/engine/renderer/encoder"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbind/engine/renderer/pipeline"
	"golang.org/x/exp/slices"
)

// adaptiveSet is one descriptor set index fed by adaptive rules.
type adaptiveSet struct {
	index uint32
	// usage is every slot the shader reads, supplied or not.
	usage containers.SlotMask
	rules []AdaptiveSetRule
}

/**
 * @brief The resolved binding rules of one shader program against one
 * uniforms stream interface. Immutable once created.
 */
type BoundUniforms struct {
	program      *pipeline.ShaderProgram
	layout       *pipeline.CompiledPipelineLayout
	usi          *UniformsStreamInterface
	pipelineType metadata.PipelineType

	adaptive      []adaptiveSet
	pushConstants []PushConstantRule
	fixed         []FixedSetRule
}

// NewBoundUniforms resolves every binding and push constant block the
// program's stages declare. A nil layout means the program's own layout.
func NewBoundUniforms(program *pipeline.ShaderProgram, layout *pipeline.CompiledPipelineLayout, usi *UniformsStreamInterface) (*BoundUniforms, error) {
	if layout == nil {
		layout = program.Layout
	}
	if layout == nil {
		return nil, pipeline.ErrNoLayout
	}
	if usi == nil {
		usi = &UniformsStreamInterface{}
	}
	b := &BoundUniforms{
		program:      program,
		layout:       layout,
		usi:          usi,
		pipelineType: metadata.PipelineTypeGraphics,
	}
	if program.IsCompute() {
		b.pipelineType = metadata.PipelineTypeCompute
	}

	for _, m := range program.Modules() {
		if m.Reflection == nil {
			continue
		}
		for _, binding := range m.Reflection.Bindings() {
			if err := b.resolveBinding(m.Stage, binding); err != nil {
				return nil, err
			}
		}
		for _, pc := range m.Reflection.PushConstants() {
			if err := b.resolvePushConstants(m.Stage, pc); err != nil {
				return nil, err
			}
		}
	}

	slices.SortFunc(b.adaptive, func(x, y adaptiveSet) int { return cmp.Compare(x.index, y.index) })
	for i := range b.adaptive {
		slices.SortFunc(b.adaptive[i].rules, func(x, y AdaptiveSetRule) int { return cmp.Compare(x.Slot, y.Slot) })
	}
	slices.SortFunc(b.fixed, func(x, y FixedSetRule) int { return cmp.Compare(x.DescriptorSet, y.DescriptorSet) })
	slices.SortFunc(b.pushConstants, func(x, y PushConstantRule) int { return cmp.Compare(x.Offset, y.Offset) })

	core.LogDebug("bound uniforms resolved: %d adaptive sets, %d fixed sets, %d push constant ranges", len(b.adaptive), len(b.fixed), len(b.pushConstants))
	return b, nil
}

func (b *BoundUniforms) resolveBinding(stage metadata.ShaderStage, binding metadata.ReflectedBinding) error {
	set := b.layout.DescriptorSet(binding.Set)
	if set == nil {
		return fmt.Errorf("%w: %s (%s) uses descriptor set %d, the pipeline layout has %d", core.ErrMissingDescriptorSet, binding.Name, stage, binding.Set, len(b.layout.DescriptorSets))
	}
	slots := set.Layout.Signature.Slots
	if int(binding.Slot) >= len(slots) {
		return fmt.Errorf("%w: %s (%s) uses slot %d of descriptor set (%s), which has %d slots", core.ErrMissingSlot, binding.Name, stage, binding.Slot, set.Name, len(slots))
	}
	if slots[binding.Slot].Type != binding.Type {
		return fmt.Errorf("%w: %s (%s) expects %s at slot %d of descriptor set (%s), the signature has %s", core.ErrKindMismatch, binding.Name, stage, binding.Type, binding.Slot, set.Name, slots[binding.Slot].Type)
	}

	for i, f := range b.usi.FixedDescriptorSets {
		if f.HashName == 0 || f.HashName != set.HashName {
			continue
		}
		return b.addFixed(i, f, binding, stage)
	}
	if set.Type == descriptor.DescriptorSetTypeNumeric {
		// written by NumericUniformsInterface
		return nil
	}

	rule := AdaptiveSetRule{
		Kind:          AdaptiveSetRuleDummy,
		DescriptorSet: binding.Set,
		Slot:          binding.Slot,
		Source:        -1,
		Stages:        stage,
		Type:          binding.Type,
		Name:          binding.Name,
	}
	for _, candidate := range []struct {
		kind AdaptiveSetRuleKind
		list []uint64
	}{
		{AdaptiveSetRuleResourceView, b.usi.ResourceViews},
		{AdaptiveSetRuleImmediateData, b.usi.ImmediateData},
		{AdaptiveSetRuleSampler, b.usi.Samplers},
	} {
		src := indexOf(candidate.list, binding.HashName)
		if src < 0 {
			continue
		}
		if !candidate.kind.accepts(binding.Type) {
			return fmt.Errorf("%w: %s is bound as %s but the shader (%s) declares %s", core.ErrKindMismatch, binding.Name, candidate.kind, stage, binding.Type)
		}
		rule.Kind = candidate.kind
		rule.Source = src
		break
	}
	return b.addAdaptive(rule)
}

func (b *BoundUniforms) addFixed(source int, f FixedDescriptorSetBinding, binding metadata.ReflectedBinding, stage metadata.ShaderStage) error {
	if f.Signature != nil {
		if int(binding.Slot) >= len(f.Signature.Slots) {
			return fmt.Errorf("%w: %s (%s) uses slot %d of fixed descriptor set (%s), which has %d slots", core.ErrMissingSlot, binding.Name, stage, binding.Slot, f.Name, len(f.Signature.Slots))
		}
		if t := f.Signature.Slots[binding.Slot].Type; t != binding.Type {
			return fmt.Errorf("%w: %s (%s) expects %s at slot %d of fixed descriptor set (%s), which holds %s", core.ErrKindMismatch, binding.Name, stage, binding.Type, binding.Slot, f.Name, t)
		}
	}
	for i := range b.fixed {
		r := &b.fixed[i]
		if r.DescriptorSet != binding.Set {
			continue
		}
		if r.Source != source {
			return fmt.Errorf("%w: descriptor set %d is fed by fixed sets %d and %d", core.ErrAmbiguousBinding, binding.Set, r.Source, source)
		}
		r.Stages |= stage
		return nil
	}
	b.fixed = append(b.fixed, FixedSetRule{Source: source, DescriptorSet: binding.Set, Stages: stage, Name: f.Name})
	return nil
}

func (b *BoundUniforms) addAdaptive(rule AdaptiveSetRule) error {
	var set *adaptiveSet
	for i := range b.adaptive {
		if b.adaptive[i].index == rule.DescriptorSet {
			set = &b.adaptive[i]
			break
		}
	}
	if set == nil {
		b.adaptive = append(b.adaptive, adaptiveSet{index: rule.DescriptorSet})
		set = &b.adaptive[len(b.adaptive)-1]
	}

	for i := range set.rules {
		existing := &set.rules[i]
		if existing.Slot != rule.Slot {
			continue
		}
		if existing.Kind != rule.Kind || existing.Source != rule.Source {
			return fmt.Errorf("%w: set %d slot %d is claimed by %s and %s", core.ErrAmbiguousBinding, rule.DescriptorSet, rule.Slot, existing, rule)
		}
		existing.Stages |= rule.Stages
		return nil
	}
	set.rules = append(set.rules, rule)
	set.usage = set.usage.With(rule.Slot)
	return nil
}

func (b *BoundUniforms) resolvePushConstants(stage metadata.ShaderStage, pc metadata.ReflectedPushConstants) error {
	src := indexOf(b.usi.ImmediateData, pc.HashName)
	if src < 0 {
		return fmt.Errorf("%w: push constants (%s) of stage %s are not in the uniforms stream interface", core.ErrPushConstantNotFound, pc.Name, stage)
	}
	r, ok := b.layout.PushConstantsRange(pc.HashName)
	if !ok {
		return fmt.Errorf("%w: push constants (%s) of stage %s are not in the pipeline layout", core.ErrPushConstantNotFound, pc.Name, stage)
	}
	if r.Range.Stages&stage == 0 {
		return fmt.Errorf("%w: stage %s uses push constants (%s), which the pipeline layout assigns to %s", core.ErrPushConstantConflict, stage, pc.Name, r.Range.Stages)
	}
	if pc.Size > r.Range.Size {
		return fmt.Errorf("%w: stage %s declares %d bytes of push constants (%s), the range has %d", core.ErrPushConstantConflict, stage, pc.Size, pc.Name, r.Range.Size)
	}

	for i := range b.pushConstants {
		existing := &b.pushConstants[i]
		if existing.Name != r.Name {
			continue
		}
		if existing.Source != src || existing.Offset != r.Range.Offset || existing.Size != r.Range.Size {
			return fmt.Errorf("%w: push constants (%s) resolved differently for stages %s and %s", core.ErrPushConstantConflict, pc.Name, existing.ReferencedBy, stage)
		}
		existing.ReferencedBy |= stage
		return nil
	}
	b.pushConstants = append(b.pushConstants, PushConstantRule{
		Source:       src,
		Offset:       r.Range.Offset,
		Size:         r.Range.Size,
		Stages:       r.Range.Stages,
		ReferencedBy: stage,
		Name:         r.Name,
	})
	return nil
}

func (b *BoundUniforms) PipelineType() metadata.PipelineType { return b.pipelineType }

func (b *BoundUniforms) Layout() *pipeline.CompiledPipelineLayout { return b.layout }

// Rules lists every rule: adaptive rules by set and slot, then fixed sets,
// then push constants.
func (b *BoundUniforms) Rules() []BindingRule {
	var out []BindingRule
	for _, s := range b.adaptive {
		for _, r := range s.rules {
			out = append(out, r)
		}
	}
	for _, r := range b.fixed {
		out = append(out, r)
	}
	for _, r := range b.pushConstants {
		out = append(out, r)
	}
	return out
}

// AdaptiveSetUsage is the mask of slots the shader reads from an adaptive set.
func (b *BoundUniforms) AdaptiveSetUsage(set uint32) containers.SlotMask {
	for _, s := range b.adaptive {
		if s.index == set {
			return s.usage
		}
	}
	return 0
}

// ApplyLooseUniforms builds a fresh descriptor set for every adaptive set
// from stream, binds it, and emits the push constants.
func (b *BoundUniforms) ApplyLooseUniforms(ctx *encoder.DeviceContext, stream *UniformsStream) error {
	if stream == nil {
		stream = &UniformsStream{}
	}
	pools := ctx.Pools()
	wroteImmediate := false

	for _, s := range b.adaptive {
		layout := b.layout.DescriptorSets[s.index].Layout
		builder := descriptor.NewProgressiveDescriptorSetBuilder(layout.Signature.Slots, pools.PendingWrites)

		for _, r := range s.rules {
			switch r.Kind {
			case AdaptiveSetRuleResourceView:
				if r.Source >= len(stream.ResourceViews) {
					continue
				}
				view := stream.ResourceViews[r.Source]
				if !view.HasImage() && !view.HasBuffer() {
					continue
				}
				if view.HasImage() != r.Type.IsImage() {
					return fmt.Errorf("%w: resource view %s does not fit a %s slot", core.ErrKindMismatch, r.Name, r.Type)
				}
				builder.BindView(r.Slot, view, r.Name)
			case AdaptiveSetRuleImmediateData:
				if r.Source >= len(stream.ImmediateData) || len(stream.ImmediateData[r.Source]) == 0 {
					continue
				}
				rng, err := ctx.Temporary().UploadImmediateData(stream.ImmediateData[r.Source])
				if err != nil {
					return err
				}
				builder.BindBuffer(r.Slot, rng, r.Name)
				wroteImmediate = true
			case AdaptiveSetRuleSampler:
				if r.Source >= len(stream.Samplers) || stream.Samplers[r.Source] == 0 {
					continue
				}
				builder.BindSampler(r.Slot, stream.Samplers[r.Source], r.Name)
			}
		}
		builder.BindDummyDescriptors(pools.Dummies, s.usage)

		set, err := pools.DescriptorPool.Allocate(layout.Handle)
		if err != nil {
			return err
		}
		// slots the shader never reads take the layout's blank contents
		builder.FlushChanges(pools.Device, set, layout.BlankSet, containers.AllSlots(layout.SlotCount())&^s.usage)
		err = ctx.BindDescriptorSet(b.pipelineType, s.index, set)
		pools.DescriptorPool.Release(set)
		if err != nil {
			return err
		}
	}

	if wroteImmediate {
		ctx.Temporary().WriteBarrier(ctx.CommandList(), ctx.IsInRenderPass())
	}

	for _, r := range b.pushConstants {
		if r.Source >= len(stream.ImmediateData) {
			continue
		}
		data := stream.ImmediateData[r.Source]
		if len(data) == 0 {
			continue
		}
		if uint32(len(data)) > r.Size {
			return fmt.Errorf("%w: %d bytes supplied for push constants (%s) of %d bytes", core.ErrPushConstantConflict, len(data), r.Name, r.Size)
		}
		if err := ctx.PushConstants(b.pipelineType, r.Stages, r.Offset, data); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDescriptorSets binds caller built sets, positioned like the fixed
// descriptor sets of the uniforms stream interface.
func (b *BoundUniforms) ApplyDescriptorSets(ctx *encoder.DeviceContext, sets []metadata.DescriptorSetHandle) error {
	for _, r := range b.fixed {
		if r.Source >= len(sets) || sets[r.Source] == 0 {
			return fmt.Errorf("%w: fixed descriptor set (%s) was not supplied", core.ErrMissingDescriptorSet, r.Name)
		}
		if err := ctx.BindDescriptorSet(b.pipelineType, r.DescriptorSet, sets[r.Source]); err != nil {
			return err
		}
	}
	return nil
}

// Report writes a table of every rule.
func (b *BoundUniforms) Report(w io.Writer) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Rule", "Input", "Source", "Destination", "Type", "Stages")
	for _, s := range b.adaptive {
		for _, r := range s.rules {
			source := "-"
			if r.Source >= 0 {
				source = fmt.Sprint(r.Source)
			}
			t.Row(r.Kind.String(), r.Name, source, fmt.Sprintf("set %d slot %d", r.DescriptorSet, r.Slot), r.Type.String(), r.Stages.String())
		}
	}
	for _, r := range b.fixed {
		t.Row("FixedSet", r.Name, fmt.Sprint(r.Source), fmt.Sprintf("set %d", r.DescriptorSet), "DescriptorSet", r.Stages.String())
	}
	for _, r := range b.pushConstants {
		t.Row("PushConstants", r.Name, fmt.Sprint(r.Source), fmt.Sprintf("bytes %d..%d", r.Offset, r.Offset+r.Size), "Immediate", r.Stages.String())
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
