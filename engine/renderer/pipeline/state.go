package pipeline

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

const defaultEntryPoint = "main"

// ShaderModule is one compiled stage of a shader program, with the binding
// surface its byte code declares.
type ShaderModule struct {
	Stage      metadata.ShaderStage
	Module     metadata.ShaderModuleHandle
	EntryPoint string
	Reflection metadata.ShaderReflection
}

// LoadShaderModule creates the device module for one stage.
func LoadShaderModule(device renderer.RenderDevice, stage metadata.ShaderStage, code []byte, reflection metadata.ShaderReflection) (ShaderModule, error) {
	if reflection != nil && reflection.Stage() != stage {
		return ShaderModule{}, fmt.Errorf("reflection is for stage %s, module is %s", reflection.Stage(), stage)
	}
	h, err := device.CreateShaderModule(stage, code)
	if err != nil {
		return ShaderModule{}, fmt.Errorf("%w: shader module (%s): %v", core.ErrDeviceFailure, stage, err)
	}
	return ShaderModule{Stage: stage, Module: h, EntryPoint: defaultEntryPoint, Reflection: reflection}, nil
}

// ShaderProgram groups the stages drawn together and the pipeline layout
// they were compiled against.
type ShaderProgram struct {
	ID      core.Identifier
	Layout  *CompiledPipelineLayout
	modules []ShaderModule
}

func NewShaderProgram(layout *CompiledPipelineLayout, modules ...ShaderModule) *ShaderProgram {
	p := &ShaderProgram{ID: core.NewIdentifier(), Layout: layout}
	for _, m := range modules {
		if m.EntryPoint == "" {
			m.EntryPoint = defaultEntryPoint
		}
		for _, existing := range p.modules {
			if existing.Stage == m.Stage {
				panic(fmt.Sprintf("shader program has two modules for stage %s", m.Stage))
			}
		}
		p.modules = append(p.modules, m)
	}
	return p
}

func (p *ShaderProgram) Modules() []ShaderModule {
	return p.modules
}

func (p *ShaderProgram) Module(stage metadata.ShaderStage) (ShaderModule, bool) {
	for _, m := range p.modules {
		if m.Stage == stage {
			return m, true
		}
	}
	return ShaderModule{}, false
}

// Stages is the union of the stages of every module.
func (p *ShaderProgram) Stages() metadata.ShaderStage {
	var s metadata.ShaderStage
	for _, m := range p.modules {
		s |= m.Stage
	}
	return s
}

func (p *ShaderProgram) IsCompute() bool {
	return p.Stages()&metadata.ShaderStageCompute != 0
}

func (p *ShaderProgram) stageDescs() []metadata.ShaderStageDesc {
	out := make([]metadata.ShaderStageDesc, len(p.modules))
	for i, m := range p.modules {
		out[i] = metadata.ShaderStageDesc{Stage: m.Stage, Module: m.Module, EntryPoint: m.EntryPoint}
	}
	return out
}

// RenderPassConfiguration is the render pass, subpass and sample count a
// graphics pipeline is compiled for.
type RenderPassConfiguration struct {
	RenderPass metadata.RenderPassHandle
	Desc       metadata.RenderPassDesc
	Subpass    uint32
}

func NewRenderPassConfiguration(renderPass metadata.RenderPassHandle, desc metadata.RenderPassDesc) RenderPassConfiguration {
	if desc.SubpassCount == 0 {
		desc.SubpassCount = 1
	}
	if desc.Samples == 0 {
		desc.Samples = 1
	}
	return RenderPassConfiguration{RenderPass: renderPass, Desc: desc}
}

func (c RenderPassConfiguration) WithSubpass(subpass uint32) RenderPassConfiguration {
	c.Subpass = subpass
	return c
}

func (c RenderPassConfiguration) IsValid() bool {
	return c.RenderPass != 0
}

// Hash covers only what a pipeline depends on: the shape of the subpass and
// the sample count.
func (c RenderPassConfiguration) Hash() uint64 {
	if !c.IsValid() {
		return 0
	}
	depth := uint64(0)
	if c.Desc.Depth {
		depth = 1
	}
	subpass := core.HashCombine(uint64(c.Desc.ColorCount), depth, uint64(c.Subpass))
	return core.HashCombine(subpass, uint64(c.Desc.Samples))
}
