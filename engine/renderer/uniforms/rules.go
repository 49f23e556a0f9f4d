package uniforms

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type AdaptiveSetRuleKind uint8

const (
	AdaptiveSetRuleResourceView AdaptiveSetRuleKind = iota
	AdaptiveSetRuleImmediateData
	AdaptiveSetRuleSampler
	AdaptiveSetRuleDummy
)

func (k AdaptiveSetRuleKind) String() string {
	switch k {
	case AdaptiveSetRuleResourceView:
		return "ResourceView"
	case AdaptiveSetRuleImmediateData:
		return "ImmediateData"
	case AdaptiveSetRuleSampler:
		return "Sampler"
	case AdaptiveSetRuleDummy:
		return "Dummy"
	}
	return "Unknown"
}

// BindingRule is one resolved mapping from an input to where it lands. It
// is an AdaptiveSetRule, a PushConstantRule or a FixedSetRule.
type BindingRule interface {
	fmt.Stringer
	isBindingRule()
}

// AdaptiveSetRule writes one input into a slot of a descriptor set that is
// built fresh for every apply.
type AdaptiveSetRule struct {
	Kind          AdaptiveSetRuleKind
	DescriptorSet uint32
	Slot          uint32
	// Source indexes the stream list selected by Kind; -1 for Dummy.
	Source int
	Stages metadata.ShaderStage
	Type   metadata.DescriptorType
	Name   string
}

// PushConstantRule copies one immediate data input into push constants.
type PushConstantRule struct {
	Source int
	Offset uint32
	Size   uint32
	// Stages is the stage mask of the pipeline layout range.
	Stages metadata.ShaderStage
	// ReferencedBy are the shader stages that declare the block.
	ReferencedBy metadata.ShaderStage
	Name         string
}

// FixedSetRule binds a caller built descriptor set as is.
type FixedSetRule struct {
	Source        int
	DescriptorSet uint32
	Stages        metadata.ShaderStage
	Name          string
}

func (AdaptiveSetRule) isBindingRule()  {}
func (PushConstantRule) isBindingRule() {}
func (FixedSetRule) isBindingRule()     {}

func (r AdaptiveSetRule) String() string {
	if r.Kind == AdaptiveSetRuleDummy {
		return fmt.Sprintf("%s -> set %d slot %d (%s, dummy) [%s]", r.Name, r.DescriptorSet, r.Slot, r.Type, r.Stages)
	}
	return fmt.Sprintf("%s[%d] %s -> set %d slot %d (%s) [%s]", r.Kind, r.Source, r.Name, r.DescriptorSet, r.Slot, r.Type, r.Stages)
}

func (r PushConstantRule) String() string {
	return fmt.Sprintf("ImmediateData[%d] %s -> push constants %d..%d [%s]", r.Source, r.Name, r.Offset, r.Offset+r.Size, r.Stages)
}

func (r FixedSetRule) String() string {
	return fmt.Sprintf("DescriptorSet[%d] %s -> set %d [%s]", r.Source, r.Name, r.DescriptorSet, r.Stages)
}

// accepts reports whether an input of kind k can be written into a slot of
// type t.
func (k AdaptiveSetRuleKind) accepts(t metadata.DescriptorType) bool {
	switch k {
	case AdaptiveSetRuleResourceView:
		return t == metadata.DescriptorTypeTexture || t == metadata.DescriptorTypeUnorderedAccessTexture ||
			t == metadata.DescriptorTypeConstantBuffer || t == metadata.DescriptorTypeUnorderedAccessBuffer
	case AdaptiveSetRuleImmediateData:
		return t == metadata.DescriptorTypeConstantBuffer || t == metadata.DescriptorTypeUnorderedAccessBuffer
	case AdaptiveSetRuleSampler:
		return t == metadata.DescriptorTypeSampler
	case AdaptiveSetRuleDummy:
		return t != metadata.DescriptorTypeUnknown
	}
	return false
}
