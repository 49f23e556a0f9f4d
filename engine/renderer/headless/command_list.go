package headless

import (
	"errors"
	"sync/atomic"

	"github.com/spaghettifunk/vkbind/engine/renderer"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type Op uint8

const (
	OpBindPipeline Op = iota
	OpBindDescriptorSets
	OpPushConstants
	OpBufferBarrier
	OpMemoryBarrier
	OpBeginRenderPass
	OpNextSubpass
	OpEndRenderPass
	OpDraw
	OpDrawIndexed
	OpDispatch
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op           Op
	PipelineType metadata.PipelineType
	Pipeline     metadata.PipelineHandle
	Layout       metadata.PipelineLayoutHandle
	FirstSet     uint32
	Sets         []metadata.DescriptorSetHandle
	Stages       metadata.ShaderStage
	Offset       uint32
	Data         []byte
	Buffer       metadata.BufferHandle
	BufferOffset uint64
	Size         uint64
	RenderPass   renderer.RenderPassBeginInfo
	Counts       [4]uint32
}

var nextCommandListID atomic.Uint64

// CommandList records commands in memory.
type CommandList struct {
	id       uint64
	commands []Command
	ended    bool
}

func newCommandList() *CommandList {
	return &CommandList{id: nextCommandListID.Add(1)}
}

func (c *CommandList) ID() uint64 { return c.id }

func (c *CommandList) record(cmd Command) {
	if c.ended {
		panic("command recorded after End")
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandList) BindPipeline(pipelineType metadata.PipelineType, pipeline metadata.PipelineHandle) {
	c.record(Command{Op: OpBindPipeline, PipelineType: pipelineType, Pipeline: pipeline})
}

func (c *CommandList) BindDescriptorSets(pipelineType metadata.PipelineType, layout metadata.PipelineLayoutHandle, firstSet uint32, sets []metadata.DescriptorSetHandle) {
	c.record(Command{
		Op:           OpBindDescriptorSets,
		PipelineType: pipelineType,
		Layout:       layout,
		FirstSet:     firstSet,
		Sets:         append([]metadata.DescriptorSetHandle(nil), sets...),
	})
}

func (c *CommandList) PushConstants(layout metadata.PipelineLayoutHandle, stages metadata.ShaderStage, offset uint32, data []byte) {
	c.record(Command{Op: OpPushConstants, Layout: layout, Stages: stages, Offset: offset, Data: append([]byte(nil), data...)})
}

func (c *CommandList) BufferBarrier(buffer metadata.BufferHandle, offset, size uint64) {
	c.record(Command{Op: OpBufferBarrier, Buffer: buffer, BufferOffset: offset, Size: size})
}

func (c *CommandList) MemoryBarrier() {
	c.record(Command{Op: OpMemoryBarrier})
}

func (c *CommandList) BeginRenderPass(info renderer.RenderPassBeginInfo) {
	c.record(Command{Op: OpBeginRenderPass, RenderPass: info})
}

func (c *CommandList) NextSubpass() {
	c.record(Command{Op: OpNextSubpass})
}

func (c *CommandList) EndRenderPass() {
	c.record(Command{Op: OpEndRenderPass})
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.record(Command{Op: OpDraw, Counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.record(Command{Op: OpDrawIndexed, Counts: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance}, Offset: uint32(vertexOffset)})
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	c.record(Command{Op: OpDispatch, Counts: [4]uint32{x, y, z}})
}

func (c *CommandList) End() error {
	if c.ended {
		return errors.New("command list already ended")
	}
	c.ended = true
	return nil
}

func (c *CommandList) Commands() []Command {
	return c.commands
}

// Filter returns the recorded commands with the given op, in order.
func (c *CommandList) Filter(op Op) []Command {
	var out []Command
	for _, cmd := range c.commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *CommandList) Count(op Op) int {
	return len(c.Filter(op))
}
