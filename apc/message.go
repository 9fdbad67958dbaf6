package apc

import (
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/tcs"
)

// MessageKind tags the variant carried by a Message.
type MessageKind uint8

const (
	// KindTileTessellated signals that every requested layer for a tile
	// has been processed (available or unavailable). Always the last
	// message for a given tile.
	KindTileTessellated MessageKind = iota
	// KindLayerUnavailable signals a requested vector layer was absent
	// from the source tile.
	KindLayerUnavailable
	// KindLayerTessellated carries a tessellated vector layer's geometry.
	KindLayerTessellated
	// KindLayerIndexed carries a layer's spatial index.
	KindLayerIndexed
	// KindLayerRaster carries a decoded raster image.
	KindLayerRaster
	// KindLayerRasterMissing signals a raster tile failed to decode or
	// fetch.
	KindLayerRasterMissing
)

// String implements fmt.Stringer for debug logging.
func (k MessageKind) String() string {
	switch k {
	case KindTileTessellated:
		return "TileTessellated"
	case KindLayerUnavailable:
		return "LayerUnavailable"
	case KindLayerTessellated:
		return "LayerTessellated"
	case KindLayerIndexed:
		return "LayerIndexed"
	case KindLayerRaster:
		return "LayerRaster"
	case KindLayerRasterMissing:
		return "LayerRasterMissing"
	default:
		return "Unknown"
	}
}

// IndexedFeature is one feature's spatial index entry: its bounding box
// and style properties. A linear list of these, rather than an R-tree, is
// the chosen index structure (see DESIGN.md).
type IndexedFeature struct {
	AABB       coords.AABB
	Properties map[string]any
}

// Message is the tagged union of replies a worker sends back to the main
// thread through the APC. Only the fields relevant to Kind are populated;
// a single struct with a discriminant keeps the single-threaded
// transport's length-prefixed encoding simple (see transport.go).
type Message struct {
	Kind MessageKind

	Coords      coords.WorldTileCoords
	SourceLayer string

	// KindLayerTessellated
	LayerName      string
	Buffer         []byte
	FeatureIndices []uint32

	// KindLayerIndexed
	Index []IndexedFeature

	// KindLayerRaster
	Image tcs.RGBAImage
}

// TileTessellated builds the terminal per-tile message.
func TileTessellated(c coords.WorldTileCoords) Message {
	return Message{Kind: KindTileTessellated, Coords: c}
}

// LayerUnavailable builds a message reporting a missing vector layer.
func LayerUnavailable(c coords.WorldTileCoords, sourceLayer string) Message {
	return Message{Kind: KindLayerUnavailable, Coords: c, SourceLayer: sourceLayer}
}

// LayerTessellated builds a message carrying tessellated geometry.
func LayerTessellated(c coords.WorldTileCoords, layerName string, buffer []byte, featureIndices []uint32) Message {
	return Message{
		Kind:           KindLayerTessellated,
		Coords:         c,
		LayerName:      layerName,
		Buffer:         buffer,
		FeatureIndices: featureIndices,
	}
}

// LayerIndexed builds a message carrying a layer's spatial index.
func LayerIndexed(c coords.WorldTileCoords, index []IndexedFeature) Message {
	return Message{Kind: KindLayerIndexed, Coords: c, Index: index}
}

// LayerRaster builds a message carrying a decoded raster image.
func LayerRaster(c coords.WorldTileCoords, sourceLayer string, img tcs.RGBAImage) Message {
	return Message{Kind: KindLayerRaster, Coords: c, SourceLayer: sourceLayer, Image: img}
}

// LayerRasterMissing builds a message reporting a raster tile that could
// not be fetched or decoded.
func LayerRasterMissing(c coords.WorldTileCoords) Message {
	return Message{Kind: KindLayerRasterMissing, Coords: c}
}
