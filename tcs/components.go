package tcs

import "github.com/gogpu/maptile/coords"

// LayerState tags the availability of one style layer's data at a tile.
type LayerState int

const (
	// LayerMissing means no reply has arrived yet for this layer.
	LayerMissing LayerState = iota
	// LayerAvailable means tessellated/decoded data is present.
	LayerAvailable
	// LayerUnavailable means the source tile does not contain this layer.
	LayerUnavailable
)

// String implements fmt.Stringer.
func (s LayerState) String() string {
	switch s {
	case LayerMissing:
		return "Missing"
	case LayerAvailable:
		return "Available"
	case LayerUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// VectorLayerData holds one style layer's vector data at one tile.
type VectorLayerData struct {
	Coords      coords.WorldTileCoords
	SourceLayer string
	State       LayerState

	// Valid when State == LayerAvailable.
	BufferRange    BufferRange
	FeatureIndices []uint32
}

// BufferRange addresses a sub-range of the buffer pool's vertex/index
// storage; populated once the layer is uploaded.
type BufferRange struct {
	VerticesStart, VerticesEnd uint64
	IndicesStart, IndicesEnd   uint64
	UsableIndices              uint32
}

// VectorLayersDataComponent is the per-tile component holding every
// requested vector style layer's state.
type VectorLayersDataComponent struct {
	Layers []VectorLayerData
}

// RasterLayerData holds one style layer's raster image at one tile.
type RasterLayerData struct {
	Coords      coords.WorldTileCoords
	SourceLayer string
	State       LayerState
	Image       RGBAImage
}

// RGBAImage is a minimal decoded raster image: width/height plus tightly
// packed RGBA8 pixels, avoiding a hard dependency on image.Image for
// components that must stay cheap to move across the APC boundary.
type RGBAImage struct {
	Width, Height int
	Pixels        []byte
}

// RasterLayersDataComponent is the per-tile component holding every
// requested raster style layer's state.
type RasterLayersDataComponent struct {
	Layers []RasterLayerData
}
