package rendergraph

import (
	"sort"

	"github.com/gogpu/maptile/bufferpool"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/tileview"
	"github.com/gogpu/wgpu/hal"
)

// DrawFunction distinguishes which family of draw commands a LayerItem
// needs: vector content is an indexed triangle mesh, raster content is a
// six-vertex instanced textured quad.
type DrawFunction uint8

const (
	DrawFunctionVector DrawFunction = iota
	DrawFunctionRaster
)

// LayerItem is one style layer drawn for one tile, queued by the schedule's
// Queue stage and consumed by the tile phase.
type LayerItem struct {
	Tile             coords.WorldTileCoords
	StyleLayerIndex  int
	SourceShape      *tileview.TileShape
	DrawFunction     DrawFunction
	DistanceToCamera float64

	// StencilRef is the target tile's stamped stencil value. The tile
	// phase tests EQUAL against it so the source shape's content — which
	// for a parent fallback covers more than one target — is clipped to
	// this item's target footprint. A deduplicated source shape is drawn
	// once per target, each draw under its own target's reference.
	StencilRef uint8

	Entry bufferpool.IndexEntry

	Pipeline     hal.RenderPipeline
	BindGroup    hal.BindGroup
	VertexBuffer hal.Buffer
	IndexBuffer  hal.Buffer
	TextureBind  hal.BindGroup // raster only: the decoded tile's texture, bound at group(2)
	ColorBind    hal.BindGroup // vector only: the style layer's paint color, bound at group(2)
}

// SortPhase stable-sorts items by (style_layer.index, tile.distance_to_camera,
// source_shape.z): lowest index first (back to front),
// same index then nearer first, then coarser (lower z) first.
func SortPhase(items []LayerItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.StyleLayerIndex != b.StyleLayerIndex {
			return a.StyleLayerIndex < b.StyleLayerIndex
		}
		if a.DistanceToCamera != b.DistanceToCamera {
			return a.DistanceToCamera < b.DistanceToCamera
		}
		return a.SourceShape.Coords.Z < b.SourceShape.Coords.Z
	})
}

// MaskEntry is one target shape whose footprint must be stamped into the
// stencil buffer before the tile phase runs.
// One entry per distinct ViewTile target, not per source shape: a parent
// fallback still stamps the target's own footprint, not the parent's.
type MaskEntry struct {
	Target          coords.WorldTileCoords
	StencilRef      uint8
	QuadVertexCount uint32 // 6 ("6-vertex quad")
	BindGroup       hal.BindGroup
}

// BackgroundDraw is the current frame's background-color fill, queued at
// most once per frame and drawn before the mask phase stamps any tile
// footprint, covering the whole render target regardless of viewport.
type BackgroundDraw struct {
	BindGroup hal.BindGroup
}

// BuildMaskPhase derives one MaskEntry per ViewTile, in pattern order.
// bindGroupOf resolves a target's own TileShape.BufferRow to the bind
// group exposing its transform at group(1); a target with no resolved row
// yet (resource_system has not uploaded this frame's pattern) is skipped.
func BuildMaskPhase(pattern []tileview.ViewTile, bindGroupOf func(row int32) (hal.BindGroup, bool)) []MaskEntry {
	entries := make([]MaskEntry, 0, len(pattern))
	for _, vt := range pattern {
		if vt.TargetShape == nil || vt.TargetShape.BufferRow < 0 {
			continue
		}
		bind, ok := bindGroupOf(vt.TargetShape.BufferRow)
		if !ok {
			continue
		}
		entries = append(entries, MaskEntry{
			Target:          vt.Target,
			StencilRef:      vt.TargetShape.StencilRef,
			QuadVertexCount: 6,
			BindGroup:       bind,
		})
	}
	return entries
}
