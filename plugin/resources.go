package plugin

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/tileview"
	"github.com/gogpu/maptile/view"
)

// KernelResource makes the process-wide Kernel reachable from systems
// that only receive a *tcs.World.
type KernelResource struct {
	Kernel *kernel.Kernel
}

// ViewStateResource holds the camera/perspective/zoom state CorePlugin's
// resource_system reads each frame to build the current ViewRegion.
type ViewStateResource struct {
	State *view.ViewState
}

// StencilAssignerResource is reset once per frame, before the tile view
// pattern is generated, so every visible target gets a fresh reference.
type StencilAssignerResource struct {
	Assigner *coords.StencilAssigner
}

// PatternResource holds the current frame's resolved tile view pattern and
// its staged GPU rows, rebuilt by resource_system every frame.
type PatternResource struct {
	Pattern []tileview.ViewTile
	Rows    []tileview.ShaderTileMetadata
}

// GraphResource holds the draw subgraph plugins add MAIN_PASS/DEBUG_PASS/
// COPY_PASS nodes to.
type GraphResource struct {
	Graph *rendergraph.Graph
}

// GPUResource bundles the device-side objects every GPU-backed plugin
// shares: the compiled pipelines, the offscreen render target, the
// globals uniform, and the per-row tile metadata bind groups. Pipelines
// and Target are wrapped in Eventually since they depend on a device
// handle / surface size that are not known until the first frame runs.
type GPUResource struct {
	Pipelines Eventually[*rendergraph.Pipelines]
	Target    Eventually[*rendergraph.RenderTarget]

	GlobalsBuffer hal.Buffer
	GlobalsBind   hal.BindGroup

	TileBuffer     hal.Buffer
	TileBindGroups []hal.BindGroup

	// QuadVertexBuffer is the shared unit-square (two triangles, 6
	// vertices) geometry the mask draws and the background fill position
	// with their transform; OutlineVertexBuffer is its line-list edge form for
	// the debug pass.
	QuadVertexBuffer    hal.Buffer
	OutlineVertexBuffer hal.Buffer
}

// PhaseResource holds the current frame's mask entries and sorted tile
// draw items, populated by the Queue/PhaseSort stages and consumed by
// graph_runner.
type PhaseResource struct {
	Mask       []rendergraph.MaskEntry
	Items      []rendergraph.LayerItem
	Background *rendergraph.BackgroundDraw
}

// FrameCounterResource counts frames run, used by the headless demo to
// name output files. RenderedFrame is latched to Count's pre-increment
// value by graph_runner at the start of the Render stage, so a
// Cleanup-stage system naming an output file by frame number gets the
// frame actually just rendered regardless of whether it is registered
// before or after CorePlugin's advance_frame system within the stage.
type FrameCounterResource struct {
	Count         uint64
	RenderedFrame uint64
}
