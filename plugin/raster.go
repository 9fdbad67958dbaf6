package plugin

import (
	"errors"
	"reflect"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/internal/logging"
	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/pipeline"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/source"
	"github.com/gogpu/maptile/style"
	"github.com/gogpu/maptile/tcs"
)

// RasterConfig bundles RasterPlugin's construction-time parameters: the
// source request template and the raster style layer whose index, zoom
// bounds, and raster-* paint drive queueing and sampling.
type RasterConfig struct {
	Source source.Request
	Layer  style.Layer
}

// rasterTile holds one resident raster tile's GPU-side objects, keyed by
// quadkey so a re-request of an already-loaded tile is a no-op.
type rasterTile struct {
	Texture   hal.Texture
	View      hal.TextureView
	BindGroup hal.BindGroup
	Missing   bool
}

// RasterResource owns every resident raster tile's decoded texture and its
// bind group, plus the set of tiles already requested this session.
type RasterResource struct {
	Tiles     map[coords.Quadkey]*rasterTile
	Requested map[coords.Quadkey]struct{}
}

// RasterPlugin fetches and decodes raster tiles, uploads them into
// per-tile GPU textures, and queues one LayerItem per resolved tile for
// the tile phase to draw as a textured quad.
type RasterPlugin struct {
	Config RasterConfig
}

func (p RasterPlugin) Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	reqTemplate := p.Config.Source
	layer := p.Config.Layer
	nearest := layer.Raster().Resampling == style.RasterResamplingNearest

	tcs.InsertResource(w.Resources, RasterResource{
		Tiles:     make(map[coords.Quadkey]*rasterTile),
		Requested: make(map[coords.Quadkey]struct{}),
	})

	w.RegisterViewTileSource(func(c coords.WorldTileCoords, world *tcs.World) bool {
		rr, ok := tcs.GetResource[RasterResource](world.Resources)
		if !ok {
			return false
		}
		key, ok := c.BuildQuadKey()
		if !ok {
			return false
		}
		t, ok := rr.Tiles[key]
		return ok && !t.Missing
	})

	s.AddSystem(schedule.Queue, schedule.SystemContainer{
		Name:     "raster_request",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[PatternResource](), tcs.TypeOf[RasterResource]()},
		Run:      rasterRequestSystem(reqTemplate),
	})

	s.AddSystem(schedule.Prepare, schedule.SystemContainer{
		Name:     "raster_populate_world",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[RasterResource](), tcs.TypeOf[GPUResource]()},
		Run:      rasterPopulateWorldSystem(nearest),
	})

	s.AddSystem(schedule.Queue, schedule.SystemContainer{
		Name:     "raster_queue",
		Requires: []reflect.Type{tcs.TypeOf[ViewStateResource](), tcs.TypeOf[PatternResource](), tcs.TypeOf[RasterResource](), tcs.TypeOf[PhaseResource]()},
		Run:      rasterQueueSystem(layer),
	})

	return nil
}

// rasterRequestSystem dispatches one RunRasterPipeline call per target
// tile with no resident texture, regardless of how the pattern resolved
// it this frame: a fallback draws neighboring-zoom data only until the
// exact tile's reply lands.
func rasterRequestSystem(reqTemplate source.Request) schedule.SystemFunc {
	return func(world *tcs.World) error {
		kr, _ := tcs.GetResource[KernelResource](world.Resources)
		pr, _ := tcs.GetResource[PatternResource](world.Resources)
		rr, _ := tcs.GetResource[RasterResource](world.Resources)

		for _, vt := range pr.Pattern {
			c := vt.Target
			key, ok := c.BuildQuadKey()
			if !ok {
				continue
			}
			if _, ok := rr.Requested[key]; ok {
				continue
			}
			if _, ok := rr.Tiles[key]; ok {
				continue
			}

			req := reqTemplate
			req.Coords = c
			req.Type = source.Raster
			input := pipeline.RasterTileRequest{Coords: c, Source: req}

			if err := apc.Call(kr.Kernel.APC, input, pipeline.RunRasterPipeline); err != nil {
				var callErr *apc.CallError
				if errors.As(err, &callErr) && callErr.Schedule {
					continue
				}
				return err
			}
			rr.Requested[key] = struct{}{}
		}
		return nil
	}
}

// rasterPopulateWorldSystem drains every raster-pipeline reply, uploading
// decoded pixels into a freshly created GPU texture and recording the
// tile's availability as a per-tile component.
func rasterPopulateWorldSystem(nearest bool) schedule.SystemFunc {
	return func(world *tcs.World) error {
		kr, _ := tcs.GetResource[KernelResource](world.Resources)
		rr, _ := tcs.GetResource[RasterResource](world.Resources)
		gpu, _ := tcs.GetResource[GPUResource](world.Resources)

		device, queue, hasDevice := kernel.HalDevice(kr.Kernel.Device)

		msgs := kr.Kernel.APC.Receive(func(m apc.Message) bool {
			return m.Kind == apc.KindLayerRaster || m.Kind == apc.KindLayerRasterMissing
		})

		for _, m := range msgs {
			key, ok := m.Coords.BuildQuadKey()
			if !ok {
				continue
			}

			switch m.Kind {
			case apc.KindLayerRasterMissing:
				rr.Tiles[key] = &rasterTile{Missing: true}
				insertRasterLayer(world, m.Coords, tcs.LayerUnavailable, tcs.RGBAImage{})

			case apc.KindLayerRaster:
				if !hasDevice {
					// No device bound yet (headless construction phase):
					// forget the request so it is reissued once a device
					// is available.
					delete(rr.Requested, key)
					continue
				}
				pipelines, ok := gpu.Pipelines.Get()
				if !ok {
					delete(rr.Requested, key)
					continue
				}
				t, err := uploadRasterTile(device, queue, pipelines, m.Image, nearest)
				if err != nil {
					logging.Logger().Warn("plugin: raster upload failed", "coords", m.Coords, "error", err)
					continue
				}
				rr.Tiles[key] = t
				insertRasterLayer(world, m.Coords, tcs.LayerAvailable, m.Image)
			}
		}
		return nil
	}
}

// uploadRasterTile creates a texture sized from img, writes its pixels,
// and binds the resulting view at group(2), following the globals/tile/
// texture bind group layout every raster draw shares. nearest carries the
// style layer's raster-resampling choice into the sampler.
func uploadRasterTile(device hal.Device, queue hal.Queue, pipelines *rendergraph.Pipelines, img tcs.RGBAImage, nearest bool) (*rasterTile, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "maptile_raster_tile",
		Size:          gputypes.Extent3D{Width: uint32(img.Width), Height: uint32(img.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}

	queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		img.Pixels,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(img.Width) * 4, RowsPerImage: uint32(img.Height)},
		&hal.Extent3D{Width: uint32(img.Width), Height: uint32(img.Height), DepthOrArrayLayers: 1},
	)

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "maptile_raster_tile_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, err
	}

	bind, err := pipelines.CreateRasterTextureBindGroup(device, view, nearest)
	if err != nil {
		device.DestroyTexture(tex)
		return nil, err
	}

	return &rasterTile{Texture: tex, View: view, BindGroup: bind}, nil
}

func insertRasterLayer(world *tcs.World, c coords.WorldTileCoords, state tcs.LayerState, img tcs.RGBAImage) {
	spawn, ok := world.Tiles.SpawnMut(c)
	if !ok {
		return
	}
	data := tcs.RasterLayerData{Coords: c, SourceLayer: "raster", State: state, Image: img}
	if existing, ok := tcs.QueryMut1[tcs.RasterLayersDataComponent](world.Tiles, c); ok {
		for i := range existing.Layers {
			if existing.Layers[i].SourceLayer == data.SourceLayer {
				existing.Layers[i] = data
				return
			}
		}
		existing.Layers = append(existing.Layers, data)
		return
	}
	tcs.Insert(spawn, tcs.RasterLayersDataComponent{Layers: []tcs.RasterLayerData{data}})
}

// rasterQueueSystem builds one LayerItem per resolved source shape whose
// tile has a resident texture, skipping frames whose zoom level falls
// outside the style layer's bounds.
func rasterQueueSystem(layer style.Layer) schedule.SystemFunc {
	return func(world *tcs.World) error {
		vsr, _ := tcs.GetResource[ViewStateResource](world.Resources)
		pr, _ := tcs.GetResource[PatternResource](world.Resources)
		rr, _ := tcs.GetResource[RasterResource](world.Resources)
		phase, _ := tcs.GetResource[PhaseResource](world.Resources)
		gpu, _ := tcs.GetResource[GPUResource](world.Resources)

		cam := vsr.State.Camera()
		if !layer.VisibleAt(vsr.State.Zoom().ZoomLevel()) {
			return nil
		}

		for _, vt := range pr.Pattern {
			if vt.TargetShape == nil {
				continue
			}
			for _, shape := range vt.Source {
				key, ok := shape.Coords.BuildQuadKey()
				if !ok {
					continue
				}
				t, ok := rr.Tiles[key]
				if !ok || t.Missing || t.BindGroup == nil {
					continue
				}
				item := rendergraph.LayerItem{
					Tile:             vt.Target,
					StencilRef:       vt.TargetShape.StencilRef,
					StyleLayerIndex:  layer.Index,
					SourceShape:      shape,
					DrawFunction:     rendergraph.DrawFunctionRaster,
					DistanceToCamera: distanceToCamera(cam, shape),
					TextureBind:      t.BindGroup,
				}
				if shape.BufferRow >= 0 && int(shape.BufferRow) < len(gpu.TileBindGroups) {
					item.BindGroup = gpu.TileBindGroups[shape.BufferRow]
				}
				phase.Items = append(phase.Items, item)
			}
		}
		return nil
	}
}
