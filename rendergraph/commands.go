// Package rendergraph implements the ordered GPU pass graph: a mask phase
// that stamps each visible tile's unique stencil value, a tile phase that
// draws vector/raster content clipped to that stencil, and an optional
// debug phase, dispatched through a bounded typed-command enum replayed
// against hal.RenderPassEncoder.
package rendergraph

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CommandType identifies the kind of GPU draw command recorded into a
// phase.
type CommandType uint8

const (
	CmdSetPipeline CommandType = iota
	CmdSetBindGroup
	CmdSetVertexBuffer
	CmdSetIndexBuffer
	CmdSetStencilReference
	CmdDrawIndexed
	CmdDraw
)

var commandTypeNames = [...]string{
	CmdSetPipeline:         "SetPipeline",
	CmdSetBindGroup:        "SetBindGroup",
	CmdSetVertexBuffer:     "SetVertexBuffer",
	CmdSetIndexBuffer:      "SetIndexBuffer",
	CmdSetStencilReference: "SetStencilReference",
	CmdDrawIndexed:         "DrawIndexed",
	CmdDraw:                "Draw",
}

func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is one recorded GPU draw operation. Execute replays it against a
// render pass encoder.
type Command interface {
	Type() CommandType
	Execute(rp hal.RenderPassEncoder)
}

type SetPipelineCommand struct {
	Pipeline hal.RenderPipeline
}

func (SetPipelineCommand) Type() CommandType { return CmdSetPipeline }
func (c SetPipelineCommand) Execute(rp hal.RenderPassEncoder) {
	rp.SetPipeline(c.Pipeline)
}

type SetBindGroupCommand struct {
	Index          uint32
	BindGroup      hal.BindGroup
	DynamicOffsets []uint32
}

func (SetBindGroupCommand) Type() CommandType { return CmdSetBindGroup }
func (c SetBindGroupCommand) Execute(rp hal.RenderPassEncoder) {
	rp.SetBindGroup(c.Index, c.BindGroup, c.DynamicOffsets)
}

type SetVertexBufferCommand struct {
	Slot   uint32
	Buffer hal.Buffer
	Offset uint64
}

func (SetVertexBufferCommand) Type() CommandType { return CmdSetVertexBuffer }
func (c SetVertexBufferCommand) Execute(rp hal.RenderPassEncoder) {
	rp.SetVertexBuffer(c.Slot, c.Buffer, c.Offset)
}

type SetIndexBufferCommand struct {
	Buffer hal.Buffer
	Format gputypes.IndexFormat
	Offset uint64
}

func (SetIndexBufferCommand) Type() CommandType { return CmdSetIndexBuffer }
func (c SetIndexBufferCommand) Execute(rp hal.RenderPassEncoder) {
	rp.SetIndexBuffer(c.Buffer, c.Format, c.Offset)
}

// SetStencilReferenceCommand sets the reference value fragments are tested
// or written against; the mask phase writes the target tile's value, and
// the tile phase tests against that same target tile's value.
type SetStencilReferenceCommand struct {
	Reference uint32
}

func (SetStencilReferenceCommand) Type() CommandType { return CmdSetStencilReference }
func (c SetStencilReferenceCommand) Execute(rp hal.RenderPassEncoder) {
	rp.SetStencilReference(c.Reference)
}

type DrawIndexedCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

func (DrawIndexedCommand) Type() CommandType { return CmdDrawIndexed }
func (c DrawIndexedCommand) Execute(rp hal.RenderPassEncoder) {
	rp.DrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.BaseVertex, c.FirstInstance)
}

type DrawCommand struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

func (DrawCommand) Type() CommandType { return CmdDraw }
func (c DrawCommand) Execute(rp hal.RenderPassEncoder) {
	rp.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
}

// Execute replays every command in order against rp. Used by a node's Run
// step once its phases are sorted.
func Execute(rp hal.RenderPassEncoder, commands []Command) {
	for _, cmd := range commands {
		cmd.Execute(rp)
	}
}
