package pipeline

import "testing"

func square(x0, y0, x1, y1 int32) Ring {
	return Ring{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestTessellateFillNonZeroSimpleSquare(t *testing.T) {
	verts, indices := TessellateFillNonZero([]Ring{square(0, 0, 10, 10)})
	if len(verts) < 3 {
		t.Fatalf("expected at least 3 vertices, got %d", len(verts))
	}
	if len(indices)%3 != 0 {
		t.Fatalf("expected a triangle list, got %d indices", len(indices))
	}
	if len(indices) == 0 {
		t.Fatal("expected at least one triangle")
	}
	for _, idx := range indices {
		if int(idx) >= len(verts) {
			t.Fatalf("index %d out of range for %d vertices", idx, len(verts))
		}
	}
}

func TestTessellateFillNonZeroWithHole(t *testing.T) {
	exterior := square(0, 0, 100, 100)
	// A hole must wind opposite the exterior (negative area).
	hole := Ring{{X: 25, Y: 25}, {X: 25, Y: 75}, {X: 75, Y: 75}, {X: 75, Y: 25}}

	verts, indices := TessellateFillNonZero([]Ring{exterior, hole})
	if len(indices) == 0 {
		t.Fatal("expected triangles for a square with a hole")
	}
	for _, idx := range indices {
		if int(idx) >= len(verts) {
			t.Fatalf("index %d out of range for %d vertices", idx, len(verts))
		}
	}
}

func TestGroupPolygonsSeparatesExteriorsAndHoles(t *testing.T) {
	ext1 := square(0, 0, 10, 10)
	hole1 := Ring{{X: 2, Y: 2}, {X: 2, Y: 8}, {X: 8, Y: 8}, {X: 8, Y: 2}}
	ext2 := square(20, 20, 30, 30)

	polys := groupPolygons([]Ring{ext1, hole1, ext2})
	if len(polys) != 2 {
		t.Fatalf("expected 2 polygons, got %d", len(polys))
	}
	if len(polys[0].holes) != 1 {
		t.Fatalf("expected first polygon to have 1 hole, got %d", len(polys[0].holes))
	}
	if len(polys[1].holes) != 0 {
		t.Fatalf("expected second polygon to have 0 holes, got %d", len(polys[1].holes))
	}
}

func TestEarClipTriangle(t *testing.T) {
	contour := Ring{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}
	indices := earClip(contour, 0)
	if len(indices) != 3 {
		t.Fatalf("expected exactly 1 triangle (3 indices), got %d", len(indices))
	}
}
