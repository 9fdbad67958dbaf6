package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/source"
)

// VectorTileRequest is the Input to RunVectorPipeline: the tile to fetch
// plus the set of style source-layers it needs.
type VectorTileRequest struct {
	Coords coords.WorldTileCoords
	Layers map[string]struct{}
	Source source.Request
}

// RunVectorPipeline is the AsyncProcedure body for vector tiles: fetch
// bytes, decode the MVT protobuf, then walk the requested layers in map
// iteration order. A layer absent from the tile yields LayerUnavailable;
// a present layer is tessellated and yields LayerTessellated, followed
// at once by its per-layer spatial index (LayerIndexed). Messages of
// different layers interleave in that walk order and are not grouped by
// kind. The terminal TileTessellated is always sent last, satisfying the
// "per-tile done is last" ordering guarantee.
func RunVectorPipeline(ctx context.Context, input VectorTileRequest, pctx *apc.Context, env apc.KernelEnvironment) error {
	data, err := pctx.SourceClient().Fetch(ctx, input.Source)
	if err != nil {
		for name := range input.Layers {
			_ = pctx.Send(apc.LayerUnavailable(input.Coords, name))
		}
		return pctx.Send(apc.TileTessellated(input.Coords))
	}

	layers, err := decodeTile(data)
	if err != nil {
		for name := range input.Layers {
			_ = pctx.Send(apc.LayerUnavailable(input.Coords, name))
		}
		_ = pctx.Send(apc.TileTessellated(input.Coords))
		return apc.ExecutionError(fmt.Errorf("decode tile %v: %w", input.Coords, err))
	}

	byName := make(map[string]mvtLayer, len(layers))
	for _, l := range layers {
		byName[l.Name] = l
	}

	var firstErr error
	for name := range input.Layers {
		layer, ok := byName[name]
		if !ok {
			if err := pctx.Send(apc.LayerUnavailable(input.Coords, name)); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}

		verts, indices, featureIndices, index := tessellateLayer(layer)
		buf := encodeVertexBuffer(verts)
		if err := pctx.Send(apc.LayerTessellated(input.Coords, name, appendIndices(buf, indices), featureIndices)); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := pctx.Send(apc.LayerIndexed(input.Coords, index)); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := pctx.Send(apc.TileTessellated(input.Coords)); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return apc.ExecutionError(firstErr)
	}
	return nil
}

// tessellateLayer triangulates every polygon feature in layer and returns
// the combined vertex/index buffers, a per-feature triangle-count list
// (feature_indices), and a linear spatial index of every feature.
func tessellateLayer(layer mvtLayer) ([]Vertex2D, []uint32, []uint32, []apc.IndexedFeature) {
	var verts []Vertex2D
	var indices []uint32
	var featureIndices []uint32
	index := make([]apc.IndexedFeature, 0, len(layer.Features))

	for _, f := range layer.Features {
		rings := decodeGeometry(f.Geometry)

		props := make(map[string]any, len(f.Tags))
		for k, v := range f.Tags {
			props[k] = v.Any()
		}

		var minX, minY, maxX, maxY int32
		first := true
		for _, r := range rings {
			rMinX, rMinY, rMaxX, rMaxY := r.AABB()
			if first {
				minX, minY, maxX, maxY = rMinX, rMinY, rMaxX, rMaxY
				first = false
				continue
			}
			minX, minY = min(minX, rMinX), min(minY, rMinY)
			maxX, maxY = max(maxX, rMaxX), max(maxY, rMaxY)
		}
		index = append(index, apc.IndexedFeature{
			AABB: coords.AABB{
				MinX: float64(minX), MinY: float64(minY),
				MaxX: float64(maxX), MaxY: float64(maxY),
			},
			Properties: props,
		})

		if f.Type != GeomPolygon {
			featureIndices = append(featureIndices, 0)
			continue
		}

		offset := uint32(len(verts))
		fv, fi := TessellateFillNonZero(rings)
		verts = append(verts, fv...)
		for _, i := range fi {
			indices = append(indices, i+offset)
		}
		featureIndices = append(featureIndices, uint32(len(fi)/3))
	}
	return verts, indices, featureIndices, index
}

// encodeVertexBuffer packs Vertex2D values as tightly-packed little-endian
// float32 pairs, the layout the buffer pool's vertex sub-buffer expects.
func encodeVertexBuffer(verts []Vertex2D) []byte {
	buf := make([]byte, 0, len(verts)*8)
	for _, v := range verts {
		buf = appendFloat32(buf, v.X)
		buf = appendFloat32(buf, v.Y)
	}
	return buf
}

func appendFloat32(buf []byte, f float32) []byte {
	bits := math.Float32bits(f)
	return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

func appendIndices(vertexBuf []byte, indices []uint32) []byte {
	buf := make([]byte, len(vertexBuf), len(vertexBuf)+4+len(indices)*4)
	copy(buf, vertexBuf)
	n := uint32(len(vertexBuf))
	buf = append(buf, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	for _, idx := range indices {
		buf = append(buf, byte(idx), byte(idx>>8), byte(idx>>16), byte(idx>>24))
	}
	return buf
}
