package pipeline

// MVT geometry command identifiers.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// Point is an integer tile-local coordinate in EXTENT space.
type Point struct {
	X, Y int32
}

// Ring is one closed (for polygons) or open (for lines) sequence of
// points decoded from a feature's geometry command stream.
type Ring []Point

// decodeGeometry walks an MVT geometry command stream (ZigZag-encoded
// parameters, commands MoveTo=1/LineTo=2/ClosePath=7) and
// returns the decoded parts. Each MoveTo starts a new part; ClosePath
// implicitly closes the current part back to its first point without
// adding an explicit coordinate.
func decodeGeometry(cmds []uint32) []Ring {
	var rings []Ring
	var current Ring
	var x, y int32
	i := 0
	for i < len(cmds) {
		cmdInt := cmds[i]
		i++
		id := cmdInt & 0x7
		count := cmdInt >> 3

		switch id {
		case cmdMoveTo:
			if len(current) > 0 {
				rings = append(rings, current)
			}
			current = make(Ring, 0, count)
			for c := uint32(0); c < count; c++ {
				if i+1 >= len(cmds) {
					break
				}
				dx := zigzagDecode(cmds[i])
				dy := zigzagDecode(cmds[i+1])
				i += 2
				x += dx
				y += dy
				current = append(current, Point{X: x, Y: y})
			}
		case cmdLineTo:
			for c := uint32(0); c < count; c++ {
				if i+1 >= len(cmds) {
					break
				}
				dx := zigzagDecode(cmds[i])
				dy := zigzagDecode(cmds[i+1])
				i += 2
				x += dx
				y += dy
				current = append(current, Point{X: x, Y: y})
			}
		case cmdClosePath:
			if len(current) > 0 {
				rings = append(rings, current)
				current = nil
			}
		default:
			// Unknown command: stop decoding this feature's geometry
			// rather than risk reading garbage as coordinates.
			i = len(cmds)
		}
	}
	if len(current) > 0 {
		rings = append(rings, current)
	}
	return rings
}

func zigzagDecode(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

// SignedArea returns twice the signed area of ring (shoelace formula,
// unscaled). The Mapbox Vector Tile spec gives polygon exterior rings a
// clockwise winding order (positive signed area in a Y-down coordinate
// system) and interior (hole) rings counter-clockwise (negative).
func (r Ring) SignedArea() float64 {
	if len(r) < 3 {
		return 0
	}
	var sum float64
	for i := range r {
		j := (i + 1) % len(r)
		sum += float64(r[i].X)*float64(r[j].Y) - float64(r[j].X)*float64(r[i].Y)
	}
	return sum
}

// AABB returns the axis-aligned bounding box of ring's points in
// EXTENT-space integer coordinates.
func (r Ring) AABB() (minX, minY, maxX, maxY int32) {
	if len(r) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = r[0].X, r[0].Y
	maxX, maxY = r[0].X, r[0].Y
	for _, p := range r[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return
}
