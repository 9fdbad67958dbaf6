package plugin

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/tcs"
	"github.com/gogpu/maptile/tileview"
	"github.com/gogpu/maptile/view"
)

// globalsBufferSize is the byte size of the shared globals uniform: the
// float32 view-projection mat4 plus the camera position as a vec4.
const globalsBufferSize = 80

// Config bundles CorePlugin's construction-time parameters.
type Config struct {
	// Width, Height are the offscreen render target's pixel size.
	Width, Height uint32
	// PatternCapacity bounds the tile-view GPU buffer's row count; 0 uses
	// tileview.DefaultPatternCapacity.
	PatternCapacity int
}

// CorePlugin owns the resources and systems every other canonical plugin
// depends on: the view state, the stencil assigner, the tile view
// pattern, the compiled pipelines and render target, and the graph runner
// that submits one frame's commands. It must be registered before
// VectorPlugin, RasterPlugin, DebugPlugin, or WriteSurfaceBufferPlugin.
type CorePlugin struct {
	Config Config
}

func (p CorePlugin) Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	width, height := p.Config.Width, p.Config.Height
	if width == 0 {
		width = 1024
	}
	if height == 0 {
		height = 1024
	}
	capacity := p.Config.PatternCapacity
	if capacity <= 0 {
		capacity = tileview.DefaultPatternCapacity
	}

	tcs.InsertResource(w.Resources, KernelResource{Kernel: k})
	tcs.InsertResource(w.Resources, ViewStateResource{State: view.NewViewState(float64(width), float64(height))})
	tcs.InsertResource(w.Resources, StencilAssignerResource{Assigner: coords.NewStencilAssigner()})
	tcs.InsertResource(w.Resources, PatternResource{})
	tcs.InsertResource(w.Resources, GPUResource{})
	tcs.InsertResource(w.Resources, GraphResource{Graph: g})
	tcs.InsertResource(w.Resources, PhaseResource{})
	tcs.InsertResource(w.Resources, FrameCounterResource{})

	s.AddSystem(schedule.Extract, schedule.SystemContainer{
		Name:     "phase_reset",
		Requires: []reflect.Type{tcs.TypeOf[PhaseResource]()},
		Run:      phaseResetSystem,
	})

	s.AddSystem(schedule.Prepare, schedule.SystemContainer{
		Name: "resource_system",
		Requires: []reflect.Type{
			tcs.TypeOf[KernelResource](),
			tcs.TypeOf[ViewStateResource](),
			tcs.TypeOf[StencilAssignerResource](),
			tcs.TypeOf[PatternResource](),
			tcs.TypeOf[GPUResource](),
		},
		Run: resourceSystem(width, height, capacity),
	})

	s.AddSystem(schedule.PhaseSort, schedule.SystemContainer{
		Name: "phase_sort",
		Requires: []reflect.Type{
			tcs.TypeOf[PatternResource](),
			tcs.TypeOf[PhaseResource](),
			tcs.TypeOf[GPUResource](),
		},
		Run: phaseSortSystem,
	})

	s.AddSystem(schedule.Render, schedule.SystemContainer{
		Name: "graph_runner",
		Requires: []reflect.Type{
			tcs.TypeOf[KernelResource](),
			tcs.TypeOf[GraphResource](),
			tcs.TypeOf[GPUResource](),
			tcs.TypeOf[PhaseResource](),
			tcs.TypeOf[PatternResource](),
			tcs.TypeOf[FrameCounterResource](),
		},
		Run: graphRunnerSystem,
	})

	s.AddSystem(schedule.Cleanup, schedule.SystemContainer{
		Name:     "advance_frame",
		Requires: []reflect.Type{tcs.TypeOf[ViewStateResource](), tcs.TypeOf[FrameCounterResource]()},
		Run:      advanceFrameSystem,
	})

	g.AddNode(rendergraph.Node{Name: rendergraph.MainPassNode, Run: recordMainPass})

	return nil
}

// targetZoomLevel picks the integer tile zoom a ViewRegion requests tiles
// at: the floor of the continuous camera zoom.
func targetZoomLevel(z coords.Zoom) coords.ZoomLevel { return z.ZoomLevel() }

func resourceSystem(width, height uint32, capacity int) schedule.SystemFunc {
	return func(world *tcs.World) error {
		kr, _ := tcs.GetResource[KernelResource](world.Resources)
		vr, _ := tcs.GetResource[ViewStateResource](world.Resources)
		sr, _ := tcs.GetResource[StencilAssignerResource](world.Resources)
		pr, _ := tcs.GetResource[PatternResource](world.Resources)
		gpu, _ := tcs.GetResource[GPUResource](world.Resources)

		sr.Assigner.Reset()

		region, ok := vr.State.CreateViewRegion(targetZoomLevel(vr.State.Zoom()))
		if !ok {
			pr.Pattern, pr.Rows = nil, nil
			return nil
		}

		pattern, err := tileview.GeneratePattern(region, world.HasTile, vr.State.Zoom(), sr.Assigner)
		if err != nil {
			return fmt.Errorf("plugin: generate tile view pattern: %w", err)
		}
		rows, err := tileview.UploadPattern(pattern, capacity)
		if err != nil {
			return fmt.Errorf("plugin: upload tile view pattern: %w", err)
		}
		pr.Pattern, pr.Rows = pattern, rows

		device, queue, hasDevice := kernel.HalDevice(kr.Kernel.Device)
		if !hasDevice {
			return nil
		}

		pipelines, err := gpu.Pipelines.GetOrInit(device, func() (*rendergraph.Pipelines, error) {
			return rendergraph.CreatePipelines(device)
		})
		if err != nil {
			return fmt.Errorf("plugin: create pipelines: %w", err)
		}
		if _, err := gpu.Target.GetOrInit([2]uint32{width, height}, func() (*rendergraph.RenderTarget, error) {
			return rendergraph.NewRenderTarget(device, width, height)
		}); err != nil {
			return fmt.Errorf("plugin: create render target: %w", err)
		}

		if gpu.GlobalsBuffer == nil {
			buf, err := device.CreateBuffer(&hal.BufferDescriptor{
				Label: "maptile_globals_uniform",
				Size:  globalsBufferSize,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("plugin: create globals buffer: %w", err)
			}
			bind, err := pipelines.CreateGlobalsBindGroup(device, buf, globalsBufferSize)
			if err != nil {
				return fmt.Errorf("plugin: create globals bind group: %w", err)
			}
			gpu.GlobalsBuffer, gpu.GlobalsBind = buf, bind
		}
		if err := queue.WriteBuffer(gpu.GlobalsBuffer, 0, packGlobals(vr.State.ViewProjection(), vr.State.Camera())); err != nil {
			return fmt.Errorf("plugin: write globals buffer: %w", err)
		}

		if gpu.TileBuffer == nil {
			size := uint64(capacity) * tileview.TileRowStride
			buf, err := device.CreateBuffer(&hal.BufferDescriptor{
				Label: "maptile_tile_metadata",
				Size:  size,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("plugin: create tile metadata buffer: %w", err)
			}
			gpu.TileBuffer = buf
			gpu.TileBindGroups = make([]hal.BindGroup, capacity)
		}
		if gpu.QuadVertexBuffer == nil {
			buf, err := device.CreateBuffer(&hal.BufferDescriptor{
				Label: "maptile_unit_quad", Size: uint64(len(unitQuadVertices())),
				Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("plugin: create unit quad buffer: %w", err)
			}
			if err := queue.WriteBuffer(buf, 0, unitQuadVertices()); err != nil {
				return fmt.Errorf("plugin: write unit quad buffer: %w", err)
			}
			gpu.QuadVertexBuffer = buf
		}
		if gpu.OutlineVertexBuffer == nil {
			buf, err := device.CreateBuffer(&hal.BufferDescriptor{
				Label: "maptile_unit_quad_outline", Size: uint64(len(unitOutlineVertices())),
				Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("plugin: create unit quad outline buffer: %w", err)
			}
			if err := queue.WriteBuffer(buf, 0, unitOutlineVertices()); err != nil {
				return fmt.Errorf("plugin: write unit quad outline buffer: %w", err)
			}
			gpu.OutlineVertexBuffer = buf
		}

		for row, meta := range rows {
			offset := uint64(row) * tileview.TileRowStride
			if err := queue.WriteBuffer(gpu.TileBuffer, offset, meta.Pack()); err != nil {
				return fmt.Errorf("plugin: write tile metadata row %d: %w", row, err)
			}
			if gpu.TileBindGroups[row] == nil {
				bind, err := pipelines.CreateTileBindGroup(device, gpu.TileBuffer, offset, tileview.TileRowStride)
				if err != nil {
					return fmt.Errorf("plugin: create tile bind group row %d: %w", row, err)
				}
				gpu.TileBindGroups[row] = bind
			}
		}
		return nil
	}
}

// unitQuadVertices returns two triangles covering the unit square [0,1] x
// [0,1] in tile-local space, the shared geometry the mask draws and the
// background fill scale and translate via their bind group's transform.
func unitQuadVertices() []byte {
	points := [][2]float32{
		{0, 0}, {1, 0}, {0, 1},
		{0, 1}, {1, 0}, {1, 1},
	}
	return packPoints(points)
}

// unitOutlineVertices returns the four edges of the unit square as 8
// vertices for a LineList draw, used by the debug pass.
func unitOutlineVertices() []byte {
	points := [][2]float32{
		{0, 0}, {1, 0},
		{1, 0}, {1, 1},
		{1, 1}, {0, 1},
		{0, 1}, {0, 0},
	}
	return packPoints(points)
}

func packPoints(points [][2]float32) []byte {
	buf := make([]byte, len(points)*8)
	for i, p := range points {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(p[0]))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(p[1]))
	}
	return buf
}

// packGlobals serializes the shared globals uniform: the view-projection
// matrix followed by the camera position as a vec4 (w = 1).
func packGlobals(m coords.Mat4, cam view.Camera) []byte {
	f32 := m.DowncastFloat32()
	buf := make([]byte, globalsBufferSize)
	for i, f := range f32 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	for i, f := range [4]float32{float32(cam.X), float32(cam.Y), float32(cam.Z), 1} {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(f))
	}
	return buf
}

// phaseResetSystem clears the previous frame's mask entries and draw items
// before any plugin's Queue-stage system appends this frame's; every
// Queue-stage append assumes an empty starting slice.
func phaseResetSystem(world *tcs.World) error {
	phase, _ := tcs.GetResource[PhaseResource](world.Resources)
	phase.Mask = phase.Mask[:0]
	phase.Items = phase.Items[:0]
	phase.Background = nil
	return nil
}

func phaseSortSystem(world *tcs.World) error {
	pr, _ := tcs.GetResource[PatternResource](world.Resources)
	phase, _ := tcs.GetResource[PhaseResource](world.Resources)
	gpu, _ := tcs.GetResource[GPUResource](world.Resources)

	phase.Mask = rendergraph.BuildMaskPhase(pr.Pattern, func(row int32) (hal.BindGroup, bool) {
		if row < 0 || int(row) >= len(gpu.TileBindGroups) {
			return nil, false
		}
		bind := gpu.TileBindGroups[row]
		return bind, bind != nil
	})
	rendergraph.SortPhase(phase.Items)
	return nil
}

func graphRunnerSystem(world *tcs.World) error {
	kr, _ := tcs.GetResource[KernelResource](world.Resources)
	gr, _ := tcs.GetResource[GraphResource](world.Resources)
	gpu, _ := tcs.GetResource[GPUResource](world.Resources)
	phase, _ := tcs.GetResource[PhaseResource](world.Resources)
	pattern, _ := tcs.GetResource[PatternResource](world.Resources)
	fc, _ := tcs.GetResource[FrameCounterResource](world.Resources)
	fc.RenderedFrame = fc.Count

	device, queue, ok := kernel.HalDevice(kr.Kernel.Device)
	if !ok {
		return nil
	}
	target, ok := gpu.Target.Get()
	if !ok {
		return nil
	}

	fctx := &frameContext{world: world, device: device, queue: queue, gpu: gpu, phase: phase, pattern: pattern, target: target}

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "maptile_frame_encoder"})
	if err != nil {
		return fmt.Errorf("plugin: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("maptile_frame"); err != nil {
		return fmt.Errorf("plugin: begin encoding: %w", err)
	}
	fctx.encoder = encoder

	firstRenderPass := true
	err = gr.Graph.RunGraph(fctx, func(nodeName string) (hal.RenderPassEncoder, func() error, error) {
		if nodeName == rendergraph.CopyPassNode {
			if err := fctx.finishRenderEncoder(); err != nil {
				return nil, nil, err
			}
			return nil, func() error { return nil }, nil
		}
		desc := target.PassDescriptor(firstRenderPass)
		firstRenderPass = false
		rp := fctx.encoder.BeginRenderPass(desc)
		return rp, func() error { rp.End(); return nil }, nil
	})
	if err != nil {
		if fctx.encoder != nil {
			fctx.encoder.DiscardEncoding()
		}
		return err
	}
	return fctx.finishRenderEncoder()
}

func advanceFrameSystem(world *tcs.World) error {
	vr, _ := tcs.GetResource[ViewStateResource](world.Resources)
	fc, _ := tcs.GetResource[FrameCounterResource](world.Resources)
	vr.State.UpdateReferences()
	fc.Count++
	return nil
}

// frameContext is threaded through Graph.RunGraph as the per-frame ctx
// value: node Run functions type-assert it back to read the shared
// device/queue/resources. The COPY_PASS node records no work of its own;
// surface readback happens in the Cleanup stage's write-surface-buffer
// system.
type frameContext struct {
	world   *tcs.World
	device  hal.Device
	queue   hal.Queue
	gpu     *GPUResource
	phase   *PhaseResource
	pattern *PatternResource
	target  *rendergraph.RenderTarget

	encoder hal.CommandEncoder
}

// finishRenderEncoder ends, submits, and waits on the frame's render
// encoder. Idempotent: a second call after the encoder has already been
// finished is a no-op, so both the COPY_PASS node (which needs the render
// work visible before it reads back pixels) and graph_runner's own
// cleanup can call it unconditionally.
func (c *frameContext) finishRenderEncoder() error {
	if c.encoder == nil {
		return nil
	}
	encoder := c.encoder
	c.encoder = nil

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("plugin: end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.device.CreateFence()
	if err != nil {
		return fmt.Errorf("plugin: create fence: %w", err)
	}
	defer c.device.DestroyFence(fence)

	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("plugin: submit: %w", err)
	}
	ok, err := c.device.Wait(fence, 1, 5*time.Second)
	if err != nil || !ok {
		return fmt.Errorf("plugin: wait for gpu: ok=%v err=%w", ok, err)
	}
	return nil
}

func recordMainPass(rp hal.RenderPassEncoder, raw any) error {
	ctx := raw.(*frameContext)
	pipelines, ok := ctx.gpu.Pipelines.Get()
	if !ok {
		return fmt.Errorf("plugin: pipelines not initialized")
	}

	var commands []rendergraph.Command
	commands = append(commands, rendergraph.SetBindGroupCommand{Index: 0, BindGroup: ctx.gpu.GlobalsBind})

	if ctx.phase.Background != nil {
		commands = append(commands,
			rendergraph.SetPipelineCommand{Pipeline: pipelines.Background},
			rendergraph.SetBindGroupCommand{Index: 1, BindGroup: ctx.phase.Background.BindGroup},
			rendergraph.SetVertexBufferCommand{Slot: 0, Buffer: ctx.gpu.QuadVertexBuffer},
			rendergraph.DrawCommand{VertexCount: 6, InstanceCount: 1},
		)
	}

	if len(ctx.phase.Mask) > 0 {
		commands = append(commands, rendergraph.SetVertexBufferCommand{Slot: 0, Buffer: ctx.gpu.QuadVertexBuffer})
	}
	for _, m := range ctx.phase.Mask {
		commands = append(commands, rendergraph.SetPipelineCommand{Pipeline: pipelines.Mask})
		if m.BindGroup != nil {
			commands = append(commands, rendergraph.SetBindGroupCommand{Index: 1, BindGroup: m.BindGroup})
		}
		commands = append(commands,
			rendergraph.SetStencilReferenceCommand{Reference: uint32(m.StencilRef)},
			rendergraph.DrawCommand{VertexCount: m.QuadVertexCount, InstanceCount: 1},
		)
	}

	for _, item := range ctx.phase.Items {
		pipeline := pipelines.VectorTile
		if item.DrawFunction == rendergraph.DrawFunctionRaster {
			pipeline = pipelines.RasterTile
		}
		commands = append(commands, rendergraph.SetPipelineCommand{Pipeline: pipeline})
		if item.BindGroup != nil {
			commands = append(commands, rendergraph.SetBindGroupCommand{Index: 1, BindGroup: item.BindGroup})
		}
		if item.TextureBind != nil {
			commands = append(commands, rendergraph.SetBindGroupCommand{Index: 2, BindGroup: item.TextureBind})
		}
		if item.ColorBind != nil {
			commands = append(commands, rendergraph.SetBindGroupCommand{Index: 2, BindGroup: item.ColorBind})
		}
		commands = append(commands, rendergraph.SetStencilReferenceCommand{Reference: uint32(item.StencilRef)})
		if item.VertexBuffer != nil {
			commands = append(commands, rendergraph.SetVertexBufferCommand{Slot: 0, Buffer: item.VertexBuffer, Offset: item.Entry.Vertices.Start})
		}

		switch item.DrawFunction {
		case rendergraph.DrawFunctionRaster:
			commands = append(commands, rendergraph.DrawCommand{VertexCount: 6, InstanceCount: 1})
		default:
			if item.IndexBuffer != nil {
				commands = append(commands, rendergraph.SetIndexBufferCommand{Buffer: item.IndexBuffer, Format: gputypes.IndexFormatUint32, Offset: item.Entry.Indices.Start})
			}
			commands = append(commands, rendergraph.DrawIndexedCommand{IndexCount: item.Entry.UsableIndices, InstanceCount: 1})
		}
	}

	rendergraph.Execute(rp, commands)
	return nil
}
