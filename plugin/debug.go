package plugin

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/tcs"
)

// DebugPlugin draws a red outline around every visible target tile's
// footprint, unstenciled, reusing the mask phase's per-target bind groups
// so it needs no Queue-stage system of its own.
type DebugPlugin struct{}

func (DebugPlugin) Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	g.AddNode(rendergraph.Node{
		Name:   rendergraph.DebugPassNode,
		Inputs: []string{rendergraph.MainPassNode},
		Run:    recordDebugPass,
	})
	return nil
}

// outlineVertexCount is unitOutlineVertices' length: 4 edges, 2 vertices
// each, drawn as a LineList.
const outlineVertexCount = 8

// recordDebugPass draws one unstenciled outline per mask entry, sharing
// the mask phase's per-target bind groups so the debug overlay always
// lines up with the tile it outlines without a Queue-stage system of
// its own.
func recordDebugPass(rp hal.RenderPassEncoder, raw any) error {
	ctx := raw.(*frameContext)
	pipelines, ok := ctx.gpu.Pipelines.Get()
	if !ok {
		return fmt.Errorf("plugin: pipelines not initialized")
	}

	var commands []rendergraph.Command
	commands = append(commands,
		rendergraph.SetPipelineCommand{Pipeline: pipelines.Debug},
		rendergraph.SetBindGroupCommand{Index: 0, BindGroup: ctx.gpu.GlobalsBind},
		rendergraph.SetVertexBufferCommand{Slot: 0, Buffer: ctx.gpu.OutlineVertexBuffer},
	)
	for _, m := range ctx.phase.Mask {
		if m.BindGroup == nil {
			continue
		}
		commands = append(commands,
			rendergraph.SetBindGroupCommand{Index: 1, BindGroup: m.BindGroup},
			rendergraph.DrawCommand{VertexCount: outlineVertexCount, InstanceCount: 1},
		)
	}

	rendergraph.Execute(rp, commands)
	return nil
}
