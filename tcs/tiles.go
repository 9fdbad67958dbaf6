package tcs

import (
	"fmt"
	"reflect"

	"github.com/gogpu/maptile/coords"
)

// Tile is the identity of a spawned tile entity: its coordinates.
type Tile struct {
	Coords coords.WorldTileCoords
}

// Tiles holds every spawned tile and its components, keyed by Quadkey.
// Invariant: for every key k in the tiles map, components[k] exists
// (possibly empty) — maintained by always inserting both map entries
// together in SpawnMut.
type Tiles struct {
	tiles      map[coords.Quadkey]Tile
	components map[coords.Quadkey][]any
}

// NewTiles creates an empty tile store.
func NewTiles() *Tiles {
	return &Tiles{
		tiles:      make(map[coords.Quadkey]Tile),
		components: make(map[coords.Quadkey][]any),
	}
}

// Exists reports whether a tile has been spawned at c.
func (t *Tiles) Exists(c coords.WorldTileCoords) bool {
	key, ok := c.BuildQuadKey()
	if !ok {
		return false
	}
	_, exists := t.tiles[key]
	return exists
}

// Clear removes every tile and component, e.g. on style reconfiguration.
func (t *Tiles) Clear() {
	clear(t.tiles)
	clear(t.components)
}

// Len returns the number of spawned tiles.
func (t *Tiles) Len() int { return len(t.tiles) }

// Spawn is a handle returned by SpawnMut used to attach components to a
// freshly (or previously) spawned tile.
type Spawn struct {
	tiles *Tiles
	key   coords.Quadkey
	tile  Tile
}

// SpawnMut spawns a tile at c if it does not already exist, and returns a
// Spawn handle for attaching components. Returns false if c has no
// quadkey, matching the way queries return false for such a coordinate.
func (t *Tiles) SpawnMut(c coords.WorldTileCoords) (*Spawn, bool) {
	key, ok := c.BuildQuadKey()
	if !ok {
		return nil, false
	}
	tile, exists := t.tiles[key]
	if !exists {
		tile = Tile{Coords: c}
		t.tiles[key] = tile
		t.components[key] = nil
	}
	return &Spawn{tiles: t, key: key, tile: tile}, true
}

// Tile returns the coordinates of the tile this Spawn refers to.
func (s *Spawn) Tile() Tile { return s.tile }

// Insert attaches a component to the spawned tile's component list. The
// value is stored by pointer so later QueryMut calls observe mutations.
// Insert panics if the tile does not exist: a component may only be
// inserted after its tile has been spawned.
func Insert[T any](s *Spawn, v T) *Spawn {
	components, ok := s.tiles.components[s.key]
	if !ok {
		panic(fmt.Sprintf("tcs: cannot add a component at %v: entity does not exist", s.tile.Coords))
	}
	ptr := new(T)
	*ptr = v
	s.tiles.components[s.key] = append(components, ptr)
	return s
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// checkDisjoint panics with the offending type's name if any type appears
// more than once. Mutable multi-queries are only sound when every
// requested type is disjoint, since two pointers into the same
// component would let one query's mutation silently clobber another's.
func checkDisjoint(types ...reflect.Type) {
	seen := make(map[reflect.Type]bool, len(types))
	for _, ty := range types {
		if seen[ty] {
			panic(fmt.Sprintf("tcs: tried to borrow %s more than once mutably", ty.String()))
		}
		seen[ty] = true
	}
}

func findComponent[T any](t *Tiles, c coords.WorldTileCoords) (*T, bool) {
	key, ok := c.BuildQuadKey()
	if !ok {
		return nil, false
	}
	for _, comp := range t.components[key] {
		if p, ok := comp.(*T); ok {
			return p, true
		}
	}
	return nil, false
}
