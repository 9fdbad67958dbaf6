package tileview

import (
	"testing"

	"github.com/gogpu/maptile/coords"
)

func coordsAt(x, y int32, z coords.ZoomLevel) coords.WorldTileCoords {
	return coords.WorldTileCoords{X: x, Y: y, Z: z}
}

// S1: four sibling targets at z=2 with no data of their own all fall back
// to the same z=1 parent, deduplicated to a single TileShape.
func TestGeneratePatternParentFallbackDeduplicates(t *testing.T) {
	parent := coordsAt(0, 0, 1)
	hasTile := func(c coords.WorldTileCoords) bool {
		return c == parent
	}

	region := coords.NewViewRegion(coords.AABB{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, coords.Zoom(2), 2)
	assigner := coords.NewStencilAssigner()

	pattern, err := GeneratePattern(region, hasTile, coords.Zoom(2), assigner)
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	if len(pattern) == 0 {
		t.Fatal("expected at least one ViewTile")
	}

	var shapes []*TileShape
	for _, vt := range pattern {
		if vt.Kind != SourceParent {
			t.Fatalf("ViewTile %v: kind = %v, want SourceParent", vt.Target, vt.Kind)
		}
		shapes = append(shapes, vt.Source[0])
	}
	for _, s := range shapes[1:] {
		if s != shapes[0] {
			t.Fatal("expected every target to dedup to the identical parent TileShape")
		}
	}
	if shapes[0].Coords != parent {
		t.Fatalf("resolved shape coords = %v, want %v", shapes[0].Coords, parent)
	}
}

// S2: a target with no data of its own, and no ancestor with data either,
// falls back to its descendants found via BFS.
func TestGeneratePatternChildrenFallback(t *testing.T) {
	target := coordsAt(0, 0, 0)
	child := target.Children()[0]

	hasTile := func(c coords.WorldTileCoords) bool {
		return c == child
	}

	region := coords.NewViewRegion(coords.AABB{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, coords.Zoom(0), 0)
	assigner := coords.NewStencilAssigner()

	pattern, err := GeneratePattern(region, hasTile, coords.Zoom(0), assigner)
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	if len(pattern) != 1 {
		t.Fatalf("expected 1 ViewTile, got %d", len(pattern))
	}
	vt := pattern[0]
	if vt.Kind != SourceChildren {
		t.Fatalf("kind = %v, want SourceChildren", vt.Kind)
	}
	if len(vt.Source) != 1 || vt.Source[0].Coords != child {
		t.Fatalf("sources = %+v, want single shape at %v", vt.Source, child)
	}
}

func TestGeneratePatternSelfSource(t *testing.T) {
	target := coordsAt(0, 0, 0)
	hasTile := func(c coords.WorldTileCoords) bool { return c == target }

	region := coords.NewViewRegion(coords.AABB{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, coords.Zoom(0), 0)
	assigner := coords.NewStencilAssigner()

	pattern, err := GeneratePattern(region, hasTile, coords.Zoom(0), assigner)
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	if len(pattern) != 1 || pattern[0].Kind != SourceEqTarget {
		t.Fatalf("pattern = %+v, want single SourceEqTarget ViewTile", pattern)
	}
	if pattern[0].Source[0] != pattern[0].TargetShape {
		t.Fatal("self-resolved source should reuse the target shape, not stage a duplicate row")
	}
}

func TestGeneratePatternNoneWhenNothingFound(t *testing.T) {
	hasTile := func(coords.WorldTileCoords) bool { return false }

	region := coords.NewViewRegion(coords.AABB{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, coords.Zoom(0), 0)
	assigner := coords.NewStencilAssigner()

	pattern, err := GeneratePattern(region, hasTile, coords.Zoom(0), assigner)
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	if len(pattern) != 1 || pattern[0].Kind != SourceNone || len(pattern[0].Source) != 0 {
		t.Fatalf("pattern = %+v, want single SourceNone ViewTile with no sources", pattern)
	}
}

func TestUploadPatternDedupsRowsAndAssignsBufferRow(t *testing.T) {
	shared := &TileShape{Coords: coordsAt(0, 0, 0), BufferRow: -1}
	pattern := []ViewTile{
		{Target: coordsAt(0, 0, 1), Kind: SourceParent, Source: []*TileShape{shared}},
		{Target: coordsAt(1, 0, 1), Kind: SourceParent, Source: []*TileShape{shared}},
	}

	rows, err := UploadPattern(pattern, 4)
	if err != nil {
		t.Fatalf("UploadPattern() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 staged row for a deduplicated shape, got %d", len(rows))
	}
	if shared.BufferRow != 0 {
		t.Fatalf("BufferRow = %d, want 0", shared.BufferRow)
	}
}

func TestUploadPatternOverflow(t *testing.T) {
	pattern := []ViewTile{
		{Target: coordsAt(0, 0, 0), Kind: SourceEqTarget, Source: []*TileShape{{Coords: coordsAt(0, 0, 0)}}},
		{Target: coordsAt(1, 0, 0), Kind: SourceEqTarget, Source: []*TileShape{{Coords: coordsAt(1, 0, 0)}}},
	}

	if _, err := UploadPattern(pattern, 1); err != ErrBufferOverflow {
		t.Fatalf("UploadPattern() error = %v, want ErrBufferOverflow", err)
	}
}

func TestGeneratePatternStencilBudgetExhausted(t *testing.T) {
	hasTile := func(c coords.WorldTileCoords) bool { return true }
	region := coords.NewViewRegion(coords.AABB{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, coords.Zoom(0), 0)

	assigner := coords.NewStencilAssigner()
	// Exhaust the z=0 bucket's budget before calling GeneratePattern so
	// the very first Assign inside it fails.
	for {
		if _, ok := assigner.Assign(0); !ok {
			break
		}
	}

	if _, err := GeneratePattern(region, hasTile, coords.Zoom(0), assigner); err == nil {
		t.Fatal("expected an error once the stencil budget is exhausted")
	}
}

// S5: a full default-cap region's target shapes all carry distinct stencil
// references in [1, 255].
func TestGeneratePatternStencilReferencesUnique(t *testing.T) {
	hasTile := func(coords.WorldTileCoords) bool { return true }
	region := coords.NewViewRegion(coords.AABB{
		MinX: 0, MinY: 0,
		MaxX: 32 * coords.TileSize, MaxY: 32 * coords.TileSize,
	}, coords.Zoom(8), 8)

	pattern, err := GeneratePattern(region, hasTile, coords.Zoom(8), coords.NewStencilAssigner())
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	if len(pattern) != coords.DefaultViewRegionCap {
		t.Fatalf("expected a full region of %d targets, got %d", coords.DefaultViewRegionCap, len(pattern))
	}
	seen := make(map[uint8]bool, len(pattern))
	for _, vt := range pattern {
		ref := vt.TargetShape.StencilRef
		if ref == 0 {
			t.Fatalf("target %v got the stencil clear value 0", vt.Target)
		}
		if seen[ref] {
			t.Fatalf("duplicate stencil reference %d at target %v", ref, vt.Target)
		}
		seen[ref] = true
	}
}

// Given the same region, zoom, and oracle state, GeneratePattern resolves
// identically.
func TestGeneratePatternDeterministic(t *testing.T) {
	parent := coordsAt(0, 0, 1)
	hasTile := func(c coords.WorldTileCoords) bool {
		return c.Z <= 1 || c == parent
	}
	region := coords.NewViewRegion(coords.AABB{
		MinX: 0, MinY: 0, MaxX: 4 * coords.TileSize, MaxY: 4 * coords.TileSize,
	}, coords.Zoom(3), 3)

	a, err := GeneratePattern(region, hasTile, coords.Zoom(3), coords.NewStencilAssigner())
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	b, err := GeneratePattern(region, hasTile, coords.Zoom(3), coords.NewStencilAssigner())
	if err != nil {
		t.Fatalf("GeneratePattern() error = %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("pattern lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Target != b[i].Target || a[i].Kind != b[i].Kind || len(a[i].Source) != len(b[i].Source) {
			t.Fatalf("pattern differs at %d: %+v vs %+v", i, a[i], b[i])
		}
		for j := range a[i].Source {
			if a[i].Source[j].Coords != b[i].Source[j].Coords {
				t.Fatalf("source coords differ at %d/%d: %v vs %v", i, j, a[i].Source[j].Coords, b[i].Source[j].Coords)
			}
		}
	}
}
