// Package coords implements the tile coordinate and zoom algebra: integer
// tile identity, quadkeys, parent/child walks, world-space transforms, and
// the view-region iterator that decides which tiles a frame needs.
package coords

import (
	"fmt"
	"math"
)

// EXTENT is the tile pixel extent used by vector tile geometry (MVT
// convention: coordinates run 0..EXTENT within a tile).
const EXTENT = 4096

// TileSize is the tile's size in world units at its own zoom level.
const TileSize = 512

// MaxZoom is the highest representable integer zoom level.
const MaxZoom ZoomLevel = 32

// maxQuadkeyZoom bounds the zoom levels for which a lossless Quadkey can be
// packed into 64 bits: the top 6 bits encode z (0-63) and the remaining 58
// bits hold x and y interleaved, 29 bits per axis. Zoom levels beyond this
// are treated as unpositioned for quadkey purposes (see Quadkey).
const maxQuadkeyZoom = 29

// ZoomLevel is an integer zoom level in [0, MaxZoom].
type ZoomLevel uint8

// Zoom is a continuous camera zoom (log2 of scale).
type Zoom float64

// ZoomLevel returns the integer floor of z, clamped to [0, MaxZoom].
func (z Zoom) ZoomLevel() ZoomLevel {
	f := float64(z)
	if f < 0 {
		return 0
	}
	if f > float64(MaxZoom) {
		return MaxZoom
	}
	return ZoomLevel(f)
}

// ScaleToTile returns the linear scale factor applied to coords' tile when
// the camera is at this zoom: 2^(zoom - z).
func (z Zoom) ScaleToTile(coords WorldTileCoords) float64 {
	return math.Exp2(float64(z) - float64(coords.Z))
}

// WorldTileCoords identifies a single tile by its integer x/y position at
// zoom level z, using the XYZ (Google/OSM) convention: (0,0) is the
// northwest corner of the world at that zoom.
type WorldTileCoords struct {
	X, Y int32
	Z    ZoomLevel
}

// NewWorldTileCoords constructs a WorldTileCoords value.
func NewWorldTileCoords(x, y int32, z ZoomLevel) WorldTileCoords {
	return WorldTileCoords{X: x, Y: y, Z: z}
}

// String implements fmt.Stringer for debug logging.
func (c WorldTileCoords) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Z)
}

// IsPositioned reports whether 0 <= x,y < 2^z — the precondition for a
// tile to have a canonical Quadkey.
func (c WorldTileCoords) IsPositioned() bool {
	if c.Z > MaxZoom {
		return false
	}
	bound := int64(1) << uint(c.Z)
	return int64(c.X) >= 0 && int64(c.X) < bound && int64(c.Y) >= 0 && int64(c.Y) < bound
}

// Parent returns the coordinate at z-1 covering this tile. Calling Parent
// on a z=0 tile returns the same tile (there is no coarser coordinate).
func (c WorldTileCoords) Parent() WorldTileCoords {
	if c.Z == 0 {
		return c
	}
	return WorldTileCoords{X: floorDiv2(c.X), Y: floorDiv2(c.Y), Z: c.Z - 1}
}

// Children returns the four coordinates at z+1 this tile covers, in
// raster order: (2x,2y), (2x+1,2y), (2x,2y+1), (2x+1,2y+1).
func (c WorldTileCoords) Children() [4]WorldTileCoords {
	z := c.Z + 1
	x2, y2 := c.X*2, c.Y*2
	return [4]WorldTileCoords{
		{X: x2, Y: y2, Z: z},
		{X: x2 + 1, Y: y2, Z: z},
		{X: x2, Y: y2 + 1, Z: z},
		{X: x2 + 1, Y: y2 + 1, Z: z},
	}
}

func floorDiv2(v int32) int32 {
	if v >= 0 {
		return v / 2
	}
	return -((-v + 1) / 2)
}

// TransformForZoom returns a 4x4 matrix placing this tile in world space
// when the camera is at the given continuous zoom: the tile's EXTENT-space
// geometry is scaled by TileSize/EXTENT, scaled again by the camera's
// zoom-relative factor, and translated to its world position.
func (c WorldTileCoords) TransformForZoom(zoom Zoom) Mat4 {
	scale := zoom.ScaleToTile(c) * (TileSize / float64(EXTENT))
	tx := float64(c.X) * TileSize * zoom.ScaleToTile(c)
	ty := float64(c.Y) * TileSize * zoom.ScaleToTile(c)
	return Translation(tx, ty, 0).Multiply(Scaling(scale, scale, 1))
}
