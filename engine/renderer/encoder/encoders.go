package encoder

import (
	"fmt"

	"github.com/spaghettifunk/vkbind/engine/core"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
)

type encoder interface {
	pipelineType() metadata.PipelineType
}

// GraphicsEncoder issues draws inside a render pass. Only one encoder may be
// active on a context.
type GraphicsEncoder struct {
	ctx   *DeviceContext
	ended bool
}

// ComputeEncoder issues dispatches inside a compute pass.
type ComputeEncoder struct {
	ctx   *DeviceContext
	ended bool
}

func (e *GraphicsEncoder) pipelineType() metadata.PipelineType { return metadata.PipelineTypeGraphics }
func (e *ComputeEncoder) pipelineType() metadata.PipelineType  { return metadata.PipelineTypeCompute }

func (c *DeviceContext) claimEncoder(e encoder) {
	if c.active != nil {
		panic(fmt.Sprintf("a %s encoder is already active on this device context", c.active.pipelineType()))
	}
	c.active = e
}

func (c *DeviceContext) BeginGraphicsEncoder() (*GraphicsEncoder, error) {
	if c.state != ENCODER_STATE_RENDER_PASS {
		return nil, c.invalidState("BeginGraphicsEncoder")
	}
	e := &GraphicsEncoder{ctx: c}
	c.claimEncoder(e)
	return e, nil
}

func (c *DeviceContext) BeginComputeEncoder() (*ComputeEncoder, error) {
	if c.state != ENCODER_STATE_COMPUTE_PASS {
		return nil, c.invalidState("BeginComputeEncoder")
	}
	e := &ComputeEncoder{ctx: c}
	c.claimEncoder(e)
	return e, nil
}

func (c *DeviceContext) HasActiveEncoder() bool {
	return c.active != nil
}

func (e *GraphicsEncoder) Context() *DeviceContext { return e.ctx }

func (e *GraphicsEncoder) prepare() error {
	if e.ended {
		return fmt.Errorf("%w: draw on an ended encoder", core.ErrInvalidEncoderState)
	}
	p, err := e.ctx.Graphics.CreatePipeline(e.ctx.device)
	if err != nil {
		return err
	}
	e.ctx.bindPipeline(metadata.PipelineTypeGraphics, p.Handle)
	return nil
}

func (e *GraphicsEncoder) Draw(vertexCount, startVertex uint32) error {
	return e.DrawInstances(vertexCount, 1, startVertex)
}

func (e *GraphicsEncoder) DrawInstances(vertexCount, instanceCount, startVertex uint32) error {
	if err := e.prepare(); err != nil {
		return err
	}
	e.ctx.cmd.Draw(vertexCount, instanceCount, startVertex, 0)
	return nil
}

func (e *GraphicsEncoder) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) error {
	if err := e.prepare(); err != nil {
		return err
	}
	e.ctx.cmd.DrawIndexed(indexCount, 1, startIndex, baseVertex, 0)
	return nil
}

// End releases the encoder so another may begin.
func (e *GraphicsEncoder) End() {
	if e.ended {
		return
	}
	e.ended = true
	if e.ctx.active == e {
		e.ctx.active = nil
	}
}

func (e *ComputeEncoder) Context() *DeviceContext { return e.ctx }

func (e *ComputeEncoder) Dispatch(x, y, z uint32) error {
	if e.ended {
		return fmt.Errorf("%w: dispatch on an ended encoder", core.ErrInvalidEncoderState)
	}
	p, err := e.ctx.Compute.CreatePipeline(e.ctx.device)
	if err != nil {
		return err
	}
	e.ctx.bindPipeline(metadata.PipelineTypeCompute, p.Handle)
	e.ctx.cmd.Dispatch(x, y, z)
	return nil
}

func (e *ComputeEncoder) End() {
	if e.ended {
		return
	}
	e.ended = true
	if e.ctx.active == e {
		e.ctx.active = nil
	}
}
