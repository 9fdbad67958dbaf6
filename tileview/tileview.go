// Package tileview implements the tile view pattern: for each tile the
// current viewport needs, resolve a concrete drawable source — the tile
// itself, a coarser ancestor, or a set of finer descendants — and upload
// the resulting per-shape transforms to a GPU-addressable staging buffer.
package tileview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/maptile/coords"
)

// SourceKind tags how a ViewTile's drawable data was resolved.
type SourceKind int

const (
	// SourceNone means nothing drawable was found for this target.
	SourceNone SourceKind = iota
	// SourceEqTarget means the target tile itself has data.
	SourceEqTarget
	// SourceParent means an ancestor tile's data is used, scaled up to
	// cover the target's footprint.
	SourceParent
	// SourceChildren means one or more descendant tiles' data covers the
	// target, each clipped to its own footprint.
	SourceChildren
)

// maxChildrenDepth bounds the BFS search for descendant fallback data.
const maxChildrenDepth = 4

// TileShape is one drawable shape resolved for a ViewTile: its own
// coordinates (which may differ from the ViewTile's target for
// Parent/Children fallback), the zoom-relative scale factor, and the
// world-space transform placing it under the target. BufferRow is filled
// in by UploadPattern once the shape's ShaderTileMetadata row has been
// staged.
type TileShape struct {
	Coords     coords.WorldTileCoords
	ZoomFactor float32
	Transform  coords.Mat4
	StencilRef uint8

	BufferRow int32 // -1 until UploadPattern assigns it
}

// ViewTile binds a viewport target tile to the Source data resolved for
// it. TargetShape carries the target's own (never an ancestor's) footprint
// transform: the mask phase stamps this footprint regardless of which
// shape's content the tile phase ends up drawing into it.
type ViewTile struct {
	Target      coords.WorldTileCoords
	Kind        SourceKind
	Source      []*TileShape
	TargetShape *TileShape
}

// HasTile answers whether coord has drawable data in some registered
// source. Matches tcs.HasTile's shape without importing the tcs package,
// keeping tileview testable against a bare function.
type HasTile func(coords.WorldTileCoords) bool

// GeneratePattern resolves every target tile in region to a ViewTile: the
// canonical self/parent/children resolution, deduplicating parent shapes
// shared by more than one target. The frame's StencilAssigner assigns
// each target tile (not each source shape) a unique reference.
func GeneratePattern(region coords.ViewRegion, hasTile HasTile, zoom coords.Zoom, assigner *coords.StencilAssigner) ([]ViewTile, error) {
	targets := region.Iter()
	pattern := make([]ViewTile, 0, len(targets))

	// Dedup parent shapes shared by more than one target: keyed by the
	// ancestor's quadkey so two targets falling back to the same parent
	// reference the identical *TileShape.
	parentShapes := make(map[coords.Quadkey]*TileShape)

	for _, target := range targets {
		stencilRef, ok := assigner.Assign(target.Z)
		if !ok {
			return nil, fmt.Errorf("tileview: stencil budget exhausted at %v", target)
		}

		vt := ViewTile{Target: target, TargetShape: buildShape(target, zoom, stencilRef)}

		switch {
		case hasTile(target):
			vt.Kind = SourceEqTarget
			vt.Source = []*TileShape{vt.TargetShape}

		default:
			if parent, ok := findAncestor(target, hasTile); ok {
				key, _ := parent.BuildQuadKey()
				shape, cached := parentShapes[key]
				if !cached {
					shape = buildShape(parent, zoom, stencilRef)
					parentShapes[key] = shape
				}
				vt.Kind = SourceParent
				vt.Source = []*TileShape{shape}
			} else if descendants, ok := findDescendants(target, hasTile); ok {
				vt.Kind = SourceChildren
				vt.Source = make([]*TileShape, len(descendants))
				for i, d := range descendants {
					vt.Source[i] = buildShape(d, zoom, stencilRef)
				}
			} else {
				vt.Kind = SourceNone
			}
		}

		pattern = append(pattern, vt)
	}
	return pattern, nil
}

func buildShape(c coords.WorldTileCoords, zoom coords.Zoom, stencilRef uint8) *TileShape {
	return &TileShape{
		Coords:     c,
		ZoomFactor: float32(zoom.ScaleToTile(c)),
		Transform:  c.TransformForZoom(zoom),
		StencilRef: stencilRef,
		BufferRow:  -1,
	}
}

// findAncestor walks parents from c until hasTile returns true or the
// walk reaches z=0 without success.
func findAncestor(c coords.WorldTileCoords, hasTile HasTile) (coords.WorldTileCoords, bool) {
	cur := c
	for cur.Z > 0 {
		cur = cur.Parent()
		if hasTile(cur) {
			return cur, true
		}
	}
	return coords.WorldTileCoords{}, false
}

// findDescendants does a breadth-first search up to maxChildrenDepth
// levels, collecting every descendant with data and never descending
// further past a tile whose lineage is already satisfied.
func findDescendants(c coords.WorldTileCoords, hasTile HasTile) ([]coords.WorldTileCoords, bool) {
	type node struct {
		coord coords.WorldTileCoords
		depth int
	}
	queue := []node{{coord: c, depth: 0}}
	var found []coords.WorldTileCoords

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.depth >= maxChildrenDepth {
			continue
		}
		for _, child := range n.coord.Children() {
			if hasTile(child) {
				found = append(found, child)
				continue // lineage satisfied: do not descend further
			}
			queue = append(queue, node{coord: child, depth: n.depth + 1})
		}
	}
	return found, len(found) > 0
}

// DefaultPatternCapacity is the default number of rows the tile-view GPU
// buffer reserves.
const DefaultPatternCapacity = 512

// ErrBufferOverflow is returned by UploadPattern when pattern needs more
// rows than the buffer's capacity: an ordinary error return, unified with
// the buffer pool's error-return discipline.
var ErrBufferOverflow = errors.New("tileview: pattern exceeds tile-view buffer capacity")

// ShaderTileMetadata is one row of the tile-view GPU buffer: a tile's
// world-space transform and its zoom-relative scale factor, tightly
// packed for std140-compatible upload.
type ShaderTileMetadata struct {
	Transform  [16]float32
	ZoomFactor float32
}

// TileRowStride is the std140 array stride for ShaderTileMetadata: a mat4
// (64 bytes) plus a trailing float, rounded up to the next 16-byte
// multiple.
const TileRowStride = 80

// Pack serializes one row to exactly TileRowStride little-endian bytes,
// ready to write directly at row*TileRowStride in the tile metadata
// buffer.
func (m ShaderTileMetadata) Pack() []byte {
	buf := make([]byte, TileRowStride)
	for i, f := range m.Transform {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(m.ZoomFactor))
	return buf
}

// UploadPattern appends one ShaderTileMetadata row per distinct TileShape
// referenced by pattern (so a deduplicated parent shape is staged once
// even though multiple ViewTiles reference it), records each shape's
// BufferRow, and returns the staging rows to write to the tile-view GPU
// buffer. Returns ErrBufferOverflow if there are more distinct shapes than
// capacity allows.
func UploadPattern(pattern []ViewTile, capacity int) ([]ShaderTileMetadata, error) {
	if capacity <= 0 {
		capacity = DefaultPatternCapacity
	}

	seen := make(map[*TileShape]struct{})
	var rows []ShaderTileMetadata

	stage := func(shape *TileShape) error {
		if _, ok := seen[shape]; ok {
			return nil
		}
		seen[shape] = struct{}{}
		if len(rows) >= capacity {
			return ErrBufferOverflow
		}
		shape.BufferRow = int32(len(rows))
		rows = append(rows, ShaderTileMetadata{
			Transform:  shape.Transform.DowncastFloat32(),
			ZoomFactor: shape.ZoomFactor,
		})
		return nil
	}

	for _, vt := range pattern {
		if vt.TargetShape != nil {
			if err := stage(vt.TargetShape); err != nil {
				return nil, err
			}
		}
		for _, shape := range vt.Source {
			if err := stage(shape); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}
