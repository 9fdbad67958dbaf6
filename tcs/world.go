package tcs

import "github.com/gogpu/maptile/coords"

// HasTile answers whether a coordinate has drawable data according to one
// plugin's storage (the vector buffer pool, the raster resource table,
// ...). World.HasTile combines every registered HasTile into one oracle,
// true when any of them is, used to resolve parent/child fallback.
type HasTile func(c coords.WorldTileCoords, world *World) bool

// World is the central ECS-ish world: typed resources plus per-tile
// components, plus the registry of HasTile predicates contributed by
// plugins.
type World struct {
	Resources *Resources
	Tiles     *Tiles

	viewTileSources []HasTile
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		Resources: NewResources(),
		Tiles:     NewTiles(),
	}
}

// RegisterViewTileSource adds a HasTile predicate, typically called once
// per plugin during Plugin.Build.
func (w *World) RegisterViewTileSource(h HasTile) {
	w.viewTileSources = append(w.viewTileSources, h)
}

// HasTile reports whether any registered source has drawable data for c.
func (w *World) HasTile(c coords.WorldTileCoords) bool {
	for _, h := range w.viewTileSources {
		if h(c, w) {
			return true
		}
	}
	return false
}
