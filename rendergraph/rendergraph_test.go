package rendergraph

import (
	"testing"

	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/tileview"
	"github.com/gogpu/wgpu/hal"
)

func TestTopoOrderRespectsInputs(t *testing.T) {
	g := New()
	g.AddNode(Node{Name: DebugPassNode, Inputs: []string{MainPassNode}, Run: noopRun})
	g.AddNode(Node{Name: CopyPassNode, Inputs: []string{DebugPassNode}, Run: noopRun})
	g.AddNode(Node{Name: MainPassNode, Run: noopRun})

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder() error = %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	if pos[MainPassNode] > pos[DebugPassNode] || pos[DebugPassNode] > pos[CopyPassNode] {
		t.Fatalf("order %v violates dependency chain MAIN -> DEBUG -> COPY", order)
	}
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	g := New()
	g.AddNode(Node{Name: "a", Inputs: []string{"b"}, Run: noopRun})
	g.AddNode(Node{Name: "b", Inputs: []string{"a"}, Run: noopRun})

	if _, err := g.TopoOrder(); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestTopoOrderMissingInput(t *testing.T) {
	g := New()
	g.AddNode(Node{Name: "a", Inputs: []string{"ghost"}, Run: noopRun})

	if _, err := g.TopoOrder(); err == nil {
		t.Fatal("expected an unknown-input error")
	}
}

func noopRun(rp hal.RenderPassEncoder, ctx any) error { return nil }

func TestSortPhaseOrdersByLayerThenDistanceThenZoom(t *testing.T) {
	shapeAt := func(z coords.ZoomLevel) *tileview.TileShape {
		return &tileview.TileShape{Coords: coords.WorldTileCoords{Z: z}}
	}

	items := []LayerItem{
		{StyleLayerIndex: 1, DistanceToCamera: 5, SourceShape: shapeAt(2)},
		{StyleLayerIndex: 0, DistanceToCamera: 10, SourceShape: shapeAt(1)},
		{StyleLayerIndex: 0, DistanceToCamera: 1, SourceShape: shapeAt(3)},
		{StyleLayerIndex: 0, DistanceToCamera: 1, SourceShape: shapeAt(1)},
	}

	SortPhase(items)

	if items[0].StyleLayerIndex != 0 || items[0].DistanceToCamera != 1 || items[0].SourceShape.Coords.Z != 1 {
		t.Fatalf("expected nearest, coarsest same-index item first, got %+v", items[0])
	}
	if items[len(items)-1].StyleLayerIndex != 1 {
		t.Fatalf("expected the higher style-layer index last, got %+v", items[len(items)-1])
	}
}

func TestBuildMaskPhaseSkipsUnassignedTargets(t *testing.T) {
	assigned := &tileview.TileShape{StencilRef: 7, BufferRow: 0}
	unassigned := &tileview.TileShape{StencilRef: 9, BufferRow: -1}

	pattern := []tileview.ViewTile{
		{Target: coords.WorldTileCoords{X: 0, Y: 0, Z: 0}, TargetShape: assigned},
		{Target: coords.WorldTileCoords{X: 1, Y: 0, Z: 0}, TargetShape: unassigned},
	}
	bindGroups := map[int32]hal.BindGroup{0: noopBindGroup{}}
	entries := BuildMaskPhase(pattern, func(row int32) (hal.BindGroup, bool) {
		b, ok := bindGroups[row]
		return b, ok
	})
	if len(entries) != 1 || entries[0].StencilRef != 7 || entries[0].QuadVertexCount != 6 {
		t.Fatalf("entries = %+v, want one 6-vertex entry with ref 7", entries)
	}
}

// noopBindGroup is a minimal hal.BindGroup stand-in used only to give
// BuildMaskPhase's bindGroupOf callback a non-nil value to return; no
// method on it is ever called.
type noopBindGroup struct{ hal.BindGroup }
