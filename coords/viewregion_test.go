package coords

import "testing"

func TestViewRegionIterOnlyEmitsPositionedCoords(t *testing.T) {
	// A region at z=0 only has one valid tile: (0,0,0). Center the AABB on
	// the origin with padding so neighboring (negative / out-of-range)
	// tiles would be considered if the quadkey guard didn't filter them.
	r := NewViewRegion(AABB{MinX: -600, MinY: -600, MaxX: 600, MaxY: 600}, Zoom(0), 0)
	got := r.Iter()
	for _, c := range got {
		if _, ok := c.BuildQuadKey(); !ok {
			t.Fatalf("Iter() emitted unpositioned coord %v", c)
		}
	}
	if len(got) != 1 || got[0] != (WorldTileCoords{X: 0, Y: 0, Z: 0}) {
		t.Fatalf("Iter() = %v, want exactly [(0,0,0)]", got)
	}
}

func TestViewRegionIterRespectsCap(t *testing.T) {
	r := NewViewRegion(AABB{MinX: 0, MinY: 0, MaxX: 100 * TileSize, MaxY: 100 * TileSize}, Zoom(8), 8)
	r.Cap = 10
	got := r.Iter()
	if len(got) != 10 {
		t.Fatalf("Iter() returned %d tiles, want capped at 10", len(got))
	}
}

func TestViewRegionIterSortedByDistanceThenZXY(t *testing.T) {
	r := NewViewRegion(AABB{MinX: 0, MinY: 0, MaxX: 4 * TileSize, MaxY: 4 * TileSize}, Zoom(6), 6)
	got := r.Iter()
	if len(got) < 2 {
		t.Fatalf("expected multiple tiles, got %d", len(got))
	}
	centerTileX := r.CenterX / TileSize
	centerTileY := r.CenterY / TileSize
	prev := distanceSq(got[0], centerTileX, centerTileY)
	for _, c := range got[1:] {
		d := distanceSq(c, centerTileX, centerTileY)
		if d < prev {
			t.Fatalf("Iter() not sorted by distance to center: %v", got)
		}
		prev = d
	}
}

func TestViewRegionIterDeterministic(t *testing.T) {
	r := NewViewRegion(AABB{MinX: 0, MinY: 0, MaxX: 10 * TileSize, MaxY: 10 * TileSize}, Zoom(10), 10)
	a := r.Iter()
	b := r.Iter()
	if len(a) != len(b) {
		t.Fatalf("non-deterministic Iter(): len %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic Iter() at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}
