package coords

import (
	"math"
	"sort"
)

// AABB is an axis-aligned bounding box in world units (the same units as
// WorldTileCoords.X/Y scaled by TileSize at zoom ZoomLevel).
type AABB struct {
	MinX, MinY, MaxX, MaxY float64
}

// DefaultViewRegionCap is the default global cap on tiles emitted by a
// single ViewRegion.Iter() call, bounding worst-case per-frame work.
const DefaultViewRegionCap = 128

// DefaultViewRegionPadding is the default padding (in tiles) added around
// the projected AABB before enumerating tiles.
const DefaultViewRegionPadding = 1

// ViewRegion describes the set of tiles a frame needs: an AABB in world
// units, padding in tiles, a cap on emitted tiles, the continuous camera
// zoom, and the target integer zoom level tiles are requested at.
type ViewRegion struct {
	AABB    AABB
	Padding int
	Cap     int
	Zoom    Zoom
	ZoomLvl ZoomLevel
	CenterX float64
	CenterY float64
}

// NewViewRegion builds a ViewRegion with the default padding and cap.
func NewViewRegion(aabb AABB, zoom Zoom, level ZoomLevel) ViewRegion {
	return ViewRegion{
		AABB:    aabb,
		Padding: DefaultViewRegionPadding,
		Cap:     DefaultViewRegionCap,
		Zoom:    zoom,
		ZoomLvl: level,
		CenterX: (aabb.MinX + aabb.MaxX) / 2,
		CenterY: (aabb.MinY + aabb.MaxY) / 2,
	}
}

// Iter enumerates the WorldTileCoords inside the padded AABB at ZoomLvl,
// capped at Cap entries, sorted by distance to the region's center with
// ties broken by (z,x,y). Coordinates without a quadkey are never emitted.
func (r ViewRegion) Iter() []WorldTileCoords {
	minTileX := int32(floorDivFloat(r.AABB.MinX, TileSize)) - int32(r.Padding)
	maxTileX := int32(floorDivFloat(r.AABB.MaxX, TileSize)) + int32(r.Padding)
	minTileY := int32(floorDivFloat(r.AABB.MinY, TileSize)) - int32(r.Padding)
	maxTileY := int32(floorDivFloat(r.AABB.MaxY, TileSize)) + int32(r.Padding)

	var out []WorldTileCoords
	for y := minTileY; y <= maxTileY; y++ {
		for x := minTileX; x <= maxTileX; x++ {
			c := WorldTileCoords{X: x, Y: y, Z: r.ZoomLvl}
			if _, ok := c.BuildQuadKey(); !ok {
				continue
			}
			out = append(out, c)
		}
	}

	centerTileX := r.CenterX / TileSize
	centerTileY := r.CenterY / TileSize

	sort.Slice(out, func(i, j int) bool {
		di := distanceSq(out[i], centerTileX, centerTileY)
		dj := distanceSq(out[j], centerTileX, centerTileY)
		if di != dj {
			return di < dj
		}
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})

	if r.Cap > 0 && len(out) > r.Cap {
		out = out[:r.Cap]
	}
	return out
}

func distanceSq(c WorldTileCoords, centerX, centerY float64) float64 {
	dx := float64(c.X) + 0.5 - centerX
	dy := float64(c.Y) + 0.5 - centerY
	return dx*dx + dy*dy
}

func floorDivFloat(v, d float64) float64 {
	return math.Floor(v / d)
}
