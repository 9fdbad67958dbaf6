package pipeline

import "math"

// tessellateTolerance is the fill tessellator's flattening tolerance in
// EXTENT units (0.02). This pipeline works
// directly on MVT's already-linear command stream, so the tolerance bounds
// the collinear-point simplification pass rather than curve flattening.
const tessellateTolerance = 0.02

// EXTENT mirrors coords.EXTENT without importing the coords package,
// since MVT geometry is tessellated in the tile's own local integer space
// before any world-space transform is applied.
const EXTENT = 4096

// Vertex2D is one tessellated fill vertex in tile-local EXTENT space.
type Vertex2D struct {
	X, Y float32
}

// TessellateFillNonZero triangulates a polygon feature's rings (exterior
// rings with positive signed area, holes with negative, per the MVT
// winding convention decodeGeometry assumes) using the non-zero fill rule
// and an ear-clipping triangulator over tile-local integer coordinates.
//
// It returns one interleaved vertex buffer and one index buffer covering
// every polygon found in rings (a feature may contain more than one
// exterior ring, i.e. a MultiPolygon).
func TessellateFillNonZero(rings []Ring) ([]Vertex2D, []uint32) {
	var verts []Vertex2D
	var indices []uint32

	for _, poly := range groupPolygons(rings) {
		contour := mergeHoles(poly.exterior, poly.holes)
		contour = simplify(contour, tessellateTolerance)
		if len(contour) < 3 {
			continue
		}
		base := uint32(len(verts))
		for _, p := range contour {
			verts = append(verts, Vertex2D{X: float32(p.X), Y: float32(p.Y)})
		}
		indices = append(indices, earClip(contour, base)...)
	}
	return verts, indices
}

type polygon struct {
	exterior Ring
	holes    []Ring
}

// groupPolygons partitions a feature's decoded rings into polygons:
// positive-area rings start a new polygon, negative-area rings that
// follow belong to the most recent polygon as holes.
func groupPolygons(rings []Ring) []polygon {
	var polys []polygon
	for _, r := range rings {
		if len(r) < 3 {
			continue
		}
		if r.SignedArea() >= 0 {
			polys = append(polys, polygon{exterior: r})
		} else if len(polys) > 0 {
			last := &polys[len(polys)-1]
			last.holes = append(last.holes, r)
		}
		// A hole ring with no preceding exterior is malformed input;
		// skip it rather than guessing an owner.
	}
	return polys
}

// mergeHoles splices each hole into the exterior ring via a bridge edge
// from the hole's rightmost vertex to the nearest contour vertex by
// straight-line distance, reducing polygon-with-holes triangulation to
// single-contour ear clipping. Whether the bridge edge crosses another
// edge is not checked.
func mergeHoles(exterior Ring, holes []Ring) Ring {
	contour := append(Ring(nil), exterior...)
	for _, hole := range holes {
		if len(hole) < 3 {
			continue
		}
		contour = bridgeHole(contour, hole)
	}
	return contour
}

func bridgeHole(contour, hole Ring) Ring {
	// Rightmost point of the hole is guaranteed visible to some point on
	// the outer boundary along the +X direction.
	hi := 0
	for i, p := range hole {
		if p.X > hole[hi].X {
			hi = i
		}
	}
	bridgePoint := hole[hi]

	ci := 0
	best := math.MaxFloat64
	for i, p := range contour {
		d := distanceSq(p, bridgePoint)
		if d < best {
			best = d
			ci = i
		}
	}

	out := make(Ring, 0, len(contour)+len(hole)+2)
	out = append(out, contour[:ci+1]...)
	out = append(out, hole[hi:]...)
	out = append(out, hole[:hi+1]...)
	out = append(out, contour[ci:]...)
	return out
}

func distanceSq(a, b Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return dx*dx + dy*dy
}

// simplify drops points that are within tolerance of the line between
// their neighbors, bounding the ear clipper's work on near-collinear
// vertex runs (common in MVT output from simplified source geometry).
func simplify(ring Ring, tolerance float64) Ring {
	if len(ring) < 4 {
		return ring
	}
	out := make(Ring, 0, len(ring))
	n := len(ring)
	for i := 0; i < n; i++ {
		prev := ring[(i-1+n)%n]
		cur := ring[i]
		next := ring[(i+1)%n]
		if perpendicularDistance(cur, prev, next) > tolerance {
			out = append(out, cur)
		}
	}
	if len(out) < 3 {
		return ring
	}
	return out
}

func perpendicularDistance(p, a, b Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(float64(p.X-a.X), float64(p.Y-a.Y))
	}
	cross := float64(p.X-a.X)*dy - float64(p.Y-a.Y)*dx
	return math.Abs(cross) / length
}

// earClip triangulates a simple polygon contour (or one bridged by
// mergeHoles, which repeats each bridge's two endpoints) using the classic ear
// clipping algorithm, emitting indices offset by base so callers can
// append into a shared vertex buffer.
func earClip(contour Ring, base uint32) []uint32 {
	n := len(contour)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	var out []uint32
	guard := 0
	for len(idx) > 3 && guard < n*n {
		guard++
		earFound := false
		for i := 0; i < len(idx); i++ {
			a := idx[(i-1+len(idx))%len(idx)]
			b := idx[i]
			c := idx[(i+1)%len(idx)]
			if !isConvex(contour[a], contour[b], contour[c]) {
				continue
			}
			if anyPointInside(contour, idx, a, b, c) {
				continue
			}
			out = append(out, base+uint32(a), base+uint32(b), base+uint32(c))
			idx = append(idx[:i], idx[i+1:]...)
			earFound = true
			break
		}
		if !earFound {
			// Degenerate or self-intersecting input: stop rather than
			// spin forever: the remaining vertices are dropped.
			break
		}
	}
	if len(idx) == 3 {
		out = append(out, base+uint32(idx[0]), base+uint32(idx[1]), base+uint32(idx[2]))
	}
	return out
}

func isConvex(a, b, c Point) bool {
	return cross(a, b, c) > 0
}

func cross(a, b, c Point) float64 {
	return float64(b.X-a.X)*float64(c.Y-a.Y) - float64(b.Y-a.Y)*float64(c.X-a.X)
}

func anyPointInside(contour Ring, idx []int, a, b, c int) bool {
	for _, pi := range idx {
		if pi == a || pi == b || pi == c {
			continue
		}
		// A bridged contour repeats its bridge endpoints; a copy of a
		// corner does not block the ear.
		if p := contour[pi]; p == contour[a] || p == contour[b] || p == contour[c] {
			continue
		}
		if pointInTriangle(contour[pi], contour[a], contour[b], contour[c]) {
			return true
		}
	}
	return false
}

func pointInTriangle(p, a, b, c Point) bool {
	d1 := cross(a, b, p)
	d2 := cross(b, c, p)
	d3 := cross(c, a, p)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}
