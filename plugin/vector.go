package plugin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/bufferpool"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/internal/logging"
	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/pipeline"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/source"
	"github.com/gogpu/maptile/style"
	"github.com/gogpu/maptile/tcs"
	"github.com/gogpu/maptile/tileview"
	"github.com/gogpu/maptile/view"
)

// layerPaintUniformSize is one RGBA float32 color per style layer.
const layerPaintUniformSize = 16

// defaultVectorPoolSizes sizes the four ring sub-buffers generously enough
// for a few hundred tiles of tessellated geometry.
var defaultVectorPoolSizes = bufferpool.Sizes{
	Vertices:        16 << 20,
	Indices:         16 << 20,
	LayerMetadata:   1 << 20,
	FeatureMetadata: 4 << 20,
}

// VectorConfig bundles VectorPlugin's construction-time parameters: the
// source request template (Coords is overwritten per tile) and the style
// layers (fill and line) whose source-layers to tessellate and draw.
type VectorConfig struct {
	Source    source.Request
	Layers    []style.Layer
	PoolSizes bufferpool.Sizes
}

// VectorResource owns the vector tile content pipeline's state: the
// software-backed buffer pool tracking vertex/index byte ranges, the GPU
// buffers those ranges address, and the set of tiles already requested
// this session.
type VectorResource struct {
	Pool  *bufferpool.Pool
	sizes bufferpool.Sizes

	VertexBuffer hal.Buffer
	IndexBuffer  hal.Buffer

	Requested map[coords.Quadkey]struct{}
	// index holds each tile's decoded spatial index, concatenated across
	// every layer: no consumer reads it yet (no picking/hit-test feature
	// is implemented), but the messages are drained and kept rather than
	// silently dropped.
	index map[coords.Quadkey][]apc.IndexedFeature

	// colorBinds maps a style layer's index to the bind group exposing
	// its paint-color uniform at group(2), created lazily once a device
	// and the compiled pipelines are available.
	colorBuffers map[int]hal.Buffer
	colorBinds   map[int]hal.BindGroup
}

// VectorPlugin fetches and tessellates MVT vector tiles, uploads their
// geometry into a GPU vertex/index buffer pair, and queues one LayerItem
// per (tile, style layer) pair for the tile phase to draw.
type VectorPlugin struct {
	Config VectorConfig
}

func (p VectorPlugin) Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	sizes := p.Config.PoolSizes
	if sizes == (bufferpool.Sizes{}) {
		sizes = defaultVectorPoolSizes
	}
	layers := vectorStyleLayers(p.Config.Layers)
	reqTemplate := p.Config.Source

	tcs.InsertResource(w.Resources, VectorResource{
		Pool:         bufferpool.New(sizes),
		sizes:        sizes,
		Requested:    make(map[coords.Quadkey]struct{}),
		index:        make(map[coords.Quadkey][]apc.IndexedFeature),
		colorBuffers: make(map[int]hal.Buffer),
		colorBinds:   make(map[int]hal.BindGroup),
	})

	w.RegisterViewTileSource(func(c coords.WorldTileCoords, world *tcs.World) bool {
		vr, ok := tcs.GetResource[VectorResource](world.Resources)
		if !ok {
			return false
		}
		_, has := vr.Pool.GetLoadedSourceLayersAt(c)
		return has
	})

	s.AddSystem(schedule.Prepare, schedule.SystemContainer{
		Name:     "vector_populate_world",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[VectorResource]()},
		Run:      vectorPopulateWorldSystem,
	})

	s.AddSystem(schedule.Prepare, schedule.SystemContainer{
		Name:     "vector_paint_resource",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[GPUResource](), tcs.TypeOf[VectorResource]()},
		Run:      vectorPaintResourceSystem(layers),
	})

	s.AddSystem(schedule.Queue, schedule.SystemContainer{
		Name:     "vector_request",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[PatternResource](), tcs.TypeOf[VectorResource]()},
		Run:      vectorRequestSystem(layers, reqTemplate),
	})

	s.AddSystem(schedule.Queue, schedule.SystemContainer{
		Name:     "vector_queue",
		Requires: []reflect.Type{tcs.TypeOf[ViewStateResource](), tcs.TypeOf[PatternResource](), tcs.TypeOf[VectorResource](), tcs.TypeOf[GPUResource](), tcs.TypeOf[PhaseResource]()},
		Run:      vectorQueueSystem(layers),
	})

	return nil
}

// vectorStyleLayers filters the configured style down to the layers this
// plugin can draw: fill and line layers naming a source-layer.
func vectorStyleLayers(layers []style.Layer) []style.Layer {
	var out []style.Layer
	for _, l := range layers {
		if l.Type != style.LayerTypeFill && l.Type != style.LayerTypeLine {
			continue
		}
		if l.SourceLayer == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// vectorPaintResourceSystem creates each style layer's paint-color uniform
// and bind group the first time a device and the compiled pipelines are
// available, keyed by style layer index.
func vectorPaintResourceSystem(layers []style.Layer) schedule.SystemFunc {
	return func(world *tcs.World) error {
		kr, _ := tcs.GetResource[KernelResource](world.Resources)
		gpu, _ := tcs.GetResource[GPUResource](world.Resources)
		vr, _ := tcs.GetResource[VectorResource](world.Resources)

		device, queue, hasDevice := kernel.HalDevice(kr.Kernel.Device)
		if !hasDevice {
			return nil
		}
		pipelines, ok := gpu.Pipelines.Get()
		if !ok {
			return nil
		}

		for _, l := range layers {
			if _, ok := vr.colorBinds[l.Index]; ok {
				continue
			}
			color, ok := l.Color()
			if !ok {
				continue
			}
			buf, err := device.CreateBuffer(&hal.BufferDescriptor{
				Label: "maptile_layer_paint", Size: layerPaintUniformSize,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("plugin: create layer paint buffer %q: %w", l.ID, err)
			}
			if err := queue.WriteBuffer(buf, 0, packColor(color.Vec4())); err != nil {
				return fmt.Errorf("plugin: write layer paint buffer %q: %w", l.ID, err)
			}
			bind, err := pipelines.CreateLayerColorBindGroup(device, buf, layerPaintUniformSize)
			if err != nil {
				return fmt.Errorf("plugin: create layer paint bind group %q: %w", l.ID, err)
			}
			vr.colorBuffers[l.Index], vr.colorBinds[l.Index] = buf, bind
		}
		return nil
	}
}

// vectorRequestSystem dispatches one RunVectorPipeline call per target
// tile with no uploaded data of its own. A parent or children fallback
// does not suppress the fetch: the fallback draws already-resident
// coarser/finer data only until the exact tile's reply lands.
func vectorRequestSystem(layers []style.Layer, reqTemplate source.Request) schedule.SystemFunc {
	wanted := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		wanted[l.SourceLayer] = struct{}{}
	}

	return func(world *tcs.World) error {
		kr, _ := tcs.GetResource[KernelResource](world.Resources)
		pr, _ := tcs.GetResource[PatternResource](world.Resources)
		vr, _ := tcs.GetResource[VectorResource](world.Resources)

		for _, vt := range pr.Pattern {
			c := vt.Target
			key, ok := c.BuildQuadKey()
			if !ok {
				continue
			}
			if _, ok := vr.Requested[key]; ok {
				continue
			}
			if _, ok := vr.Pool.GetLoadedSourceLayersAt(c); ok {
				continue
			}

			req := reqTemplate
			req.Coords = c
			req.Type = source.Tessellate
			input := pipeline.VectorTileRequest{Coords: c, Layers: wanted, Source: req}

			if err := apc.Call(kr.Kernel.APC, input, pipeline.RunVectorPipeline); err != nil {
				var callErr *apc.CallError
				if errors.As(err, &callErr) && callErr.Schedule {
					continue
				}
				return err
			}
			vr.Requested[key] = struct{}{}
		}
		return nil
	}
}

// vectorPopulateWorldSystem drains every vector-pipeline reply, uploading
// tessellated geometry into the buffer pool (and, once a device is bound,
// the backing GPU buffers) and recording each layer's availability as a
// per-tile component.
func vectorPopulateWorldSystem(world *tcs.World) error {
	kr, _ := tcs.GetResource[KernelResource](world.Resources)
	vr, _ := tcs.GetResource[VectorResource](world.Resources)

	device, queue, hasDevice := kernel.HalDevice(kr.Kernel.Device)
	if hasDevice {
		if err := ensureVectorBuffers(device, vr); err != nil {
			return err
		}
	}

	msgs := kr.Kernel.APC.Receive(func(m apc.Message) bool {
		switch m.Kind {
		case apc.KindLayerTessellated, apc.KindLayerUnavailable, apc.KindLayerIndexed, apc.KindTileTessellated:
			return true
		default:
			return false
		}
	})

	for _, m := range msgs {
		switch m.Kind {
		case apc.KindLayerTessellated:
			entry, vertices, indices, err := uploadTessellatedLayer(vr.Pool, m)
			if err != nil {
				logging.Logger().Warn("plugin: vector layer upload failed", "coords", m.Coords, "layer", m.LayerName, "error", err)
				continue
			}
			if hasDevice {
				if err := queue.WriteBuffer(vr.VertexBuffer, entry.Vertices.Start, vertices); err != nil {
					logging.Logger().Warn("plugin: write vector vertices failed", "coords", m.Coords, "error", err)
				}
				if len(indices) > 0 {
					if err := queue.WriteBuffer(vr.IndexBuffer, entry.Indices.Start, indices); err != nil {
						logging.Logger().Warn("plugin: write vector indices failed", "coords", m.Coords, "error", err)
					}
				}
			}
			insertVectorLayer(world, m.Coords, m.LayerName, tcs.LayerAvailable, entry, m.FeatureIndices)
		case apc.KindLayerUnavailable:
			insertVectorLayer(world, m.Coords, m.SourceLayer, tcs.LayerUnavailable, bufferpool.IndexEntry{}, nil)
		case apc.KindLayerIndexed:
			key, ok := m.Coords.BuildQuadKey()
			if ok {
				vr.index[key] = append(vr.index[key], m.Index...)
			}
		case apc.KindTileTessellated:
			// Terminal marker: nothing further to record.
		}
	}
	return nil
}

func ensureVectorBuffers(device hal.Device, vr *VectorResource) error {
	if vr.VertexBuffer == nil {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: "maptile_vector_vertices", Size: vr.sizes.Vertices,
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		vr.VertexBuffer = buf
	}
	if vr.IndexBuffer == nil {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: "maptile_vector_indices", Size: vr.sizes.Indices,
			Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		vr.IndexBuffer = buf
	}
	return nil
}

// uploadTessellatedLayer splits a LayerTessellated message's combined
// buffer back into its vertex and index halves and reserves space for
// both (plus a feature-count metadata buffer) in the pool.
func uploadTessellatedLayer(pool *bufferpool.Pool, m apc.Message) (bufferpool.IndexEntry, []byte, []byte, error) {
	vertices, indices := splitTessellatedBuffer(m.Buffer, m.FeatureIndices)
	featureMeta := encodeUint32LE(m.FeatureIndices)
	usableIndices := uint32(len(indices) / 4)
	entry, err := pool.Allocate(m.Coords, m.LayerName, vertices, indices, nil, featureMeta, usableIndices)
	return entry, vertices, indices, err
}

// splitTessellatedBuffer undoes pipeline.appendIndices: the vertex bytes,
// a trailing uint32 restating their length, then the index bytes. The
// split point is found from the end, using featureIndices' triangle
// counts to know exactly how many index bytes trail the length field.
func splitTessellatedBuffer(buf []byte, featureIndices []uint32) (vertices, indices []byte) {
	var triangles uint64
	for _, n := range featureIndices {
		triangles += uint64(n)
	}
	indexBytes := int(triangles * 3 * 4)
	if indexBytes+4 > len(buf) {
		return buf, nil
	}
	indicesStart := len(buf) - indexBytes
	lengthFieldStart := indicesStart - 4
	vertexLen := int(binary.LittleEndian.Uint32(buf[lengthFieldStart:]))
	if vertexLen < 0 || vertexLen > lengthFieldStart {
		vertexLen = lengthFieldStart
	}
	return buf[:vertexLen], buf[indicesStart:]
}

func encodeUint32LE(values []uint32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func insertVectorLayer(world *tcs.World, c coords.WorldTileCoords, sourceLayer string, state tcs.LayerState, entry bufferpool.IndexEntry, featureIndices []uint32) {
	spawn, ok := world.Tiles.SpawnMut(c)
	if !ok {
		return
	}
	data := tcs.VectorLayerData{
		Coords:         c,
		SourceLayer:    sourceLayer,
		State:          state,
		BufferRange:    bufferRangeOf(entry),
		FeatureIndices: featureIndices,
	}
	if existing, ok := tcs.QueryMut1[tcs.VectorLayersDataComponent](world.Tiles, c); ok {
		for i := range existing.Layers {
			if existing.Layers[i].SourceLayer == sourceLayer {
				existing.Layers[i] = data
				return
			}
		}
		existing.Layers = append(existing.Layers, data)
		return
	}
	tcs.Insert(spawn, tcs.VectorLayersDataComponent{Layers: []tcs.VectorLayerData{data}})
}

func bufferRangeOf(entry bufferpool.IndexEntry) tcs.BufferRange {
	return tcs.BufferRange{
		VerticesStart: entry.Vertices.Start, VerticesEnd: entry.Vertices.End,
		IndicesStart: entry.Indices.Start, IndicesEnd: entry.Indices.End,
		UsableIndices: entry.UsableIndices,
	}
}

// vectorQueueSystem builds one LayerItem per (resolved source shape,
// visible style layer) pair present in the buffer pool. A source-layer
// drawn by several style layers (say a fill and a line) queues one item
// per style layer.
func vectorQueueSystem(layers []style.Layer) schedule.SystemFunc {
	bySourceLayer := make(map[string][]style.Layer, len(layers))
	for _, l := range layers {
		bySourceLayer[l.SourceLayer] = append(bySourceLayer[l.SourceLayer], l)
	}

	return func(world *tcs.World) error {
		vsr, _ := tcs.GetResource[ViewStateResource](world.Resources)
		pr, _ := tcs.GetResource[PatternResource](world.Resources)
		vr, _ := tcs.GetResource[VectorResource](world.Resources)
		gpu, _ := tcs.GetResource[GPUResource](world.Resources)
		phase, _ := tcs.GetResource[PhaseResource](world.Resources)

		cam := vsr.State.Camera()
		level := vsr.State.Zoom().ZoomLevel()

		for _, vt := range pr.Pattern {
			if vt.TargetShape == nil {
				continue
			}
			for _, shape := range vt.Source {
				entries, ok := vr.Pool.GetLayers(shape.Coords)
				if !ok {
					continue
				}
				for _, entry := range entries {
					for _, l := range bySourceLayer[entry.StyleLayer] {
						if !l.VisibleAt(level) {
							continue
						}
						item := rendergraph.LayerItem{
							Tile:             vt.Target,
							StencilRef:       vt.TargetShape.StencilRef,
							StyleLayerIndex:  l.Index,
							SourceShape:      shape,
							DrawFunction:     rendergraph.DrawFunctionVector,
							DistanceToCamera: distanceToCamera(cam, shape),
							Entry:            entry,
							VertexBuffer:     vr.VertexBuffer,
							IndexBuffer:      vr.IndexBuffer,
							ColorBind:        vr.colorBinds[l.Index],
						}
						if shape.BufferRow >= 0 && int(shape.BufferRow) < len(gpu.TileBindGroups) {
							item.BindGroup = gpu.TileBindGroups[shape.BufferRow]
						}
						phase.Items = append(phase.Items, item)
					}
				}
			}
		}
		return nil
	}
}

// distanceToCamera returns the Euclidean distance from the camera eye to
// the source shape's tile center, used to order same-style-layer draws
// nearest-first.
func distanceToCamera(cam view.Camera, shape *tileview.TileShape) float64 {
	cx, cy, cz := shape.Transform.TransformPoint(coords.EXTENT/2, coords.EXTENT/2, 0)
	dx, dy, dz := cx-cam.X, cy-cam.Y, cz-cam.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
