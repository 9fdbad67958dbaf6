package plugin

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/style"
	"github.com/gogpu/maptile/tcs"
)

// testDeviceHandle adapts a hal/noop device/queue pair to
// kernel.DeviceHandle so plugin tests can exercise the real GPU code
// paths without a platform backend.
type testDeviceHandle struct {
	device hal.Device
	queue  hal.Queue
}

func (testDeviceHandle) Device() gpucontext.Device   { return nil }
func (testDeviceHandle) Queue() gpucontext.Queue     { return nil }
func (testDeviceHandle) Adapter() gpucontext.Adapter { return nil }
func (testDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}
func (h testDeviceHandle) HalDevice() any { return h.device }
func (h testDeviceHandle) HalQueue() any  { return h.queue }

func newNoopHandle(t *testing.T) (kernel.DeviceHandle, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("no adapters enumerated")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open() error = %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return testDeviceHandle{device: openDev.Device, queue: openDev.Queue}, cleanup
}

func newTestKernel(t *testing.T, handle kernel.DeviceHandle) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(kernel.Config{Workers: 1, RequestsPerSecond: 1000, Device: handle})
	if err != nil {
		t.Fatalf("kernel.New() error = %v", err)
	}
	t.Cleanup(k.Close)
	return k
}

// TestCorePluginResetsPhaseItemsEveryFrame guards the Extract-stage
// phase_reset system: without it, Items appended by a Queue-stage system
// would grow unbounded across frames instead of reflecting only the
// current frame's pattern.
func TestCorePluginResetsPhaseItemsEveryFrame(t *testing.T) {
	handle, cleanup := newNoopHandle(t)
	defer cleanup()
	k := newTestKernel(t, handle)

	w := tcs.NewWorld()
	s := schedule.New()
	g := rendergraph.New()

	if err := (CorePlugin{Config: Config{Width: 64, Height: 64}}).Build(s, k, w, g); err != nil {
		t.Fatalf("CorePlugin.Build() error = %v", err)
	}

	s.AddSystem(schedule.Queue, schedule.SystemContainer{
		Name: "fake_queue",
		Run: func(world *tcs.World) error {
			phase, _ := tcs.GetResource[PhaseResource](world.Resources)
			phase.Items = append(phase.Items, rendergraph.LayerItem{})
			return nil
		},
	})

	for i := 0; i < 3; i++ {
		if err := s.RunFrame(w); err != nil {
			t.Fatalf("RunFrame() error = %v", err)
		}
	}

	phase, ok := tcs.GetResource[PhaseResource](w.Resources)
	if !ok {
		t.Fatal("PhaseResource missing")
	}
	if len(phase.Items) != 1 {
		t.Fatalf("len(phase.Items) = %d, want 1 (stale items should be cleared each frame)", len(phase.Items))
	}
}

// TestBackgroundPluginQueuesDraw checks BackgroundPlugin creates its GPU
// resources once a device is bound and queues exactly one background draw
// per frame.
func TestBackgroundPluginQueuesDraw(t *testing.T) {
	handle, cleanup := newNoopHandle(t)
	defer cleanup()
	k := newTestKernel(t, handle)
	red := style.RGB(1, 0, 0)

	w := tcs.NewWorld()
	s := schedule.New()
	g := rendergraph.New()

	plugins := []Plugin{
		CorePlugin{Config: Config{Width: 64, Height: 64}},
		BackgroundPlugin{Config: BackgroundConfig{Layer: style.Layer{
			ID:    "background",
			Type:  style.LayerTypeBackground,
			Paint: style.BackgroundPaint{Color: &red},
		}}},
	}
	if err := BuildAll(plugins, s, k, w, g); err != nil {
		t.Fatalf("BuildAll() error = %v", err)
	}

	if err := s.RunFrame(w); err != nil {
		t.Fatalf("RunFrame() error = %v", err)
	}

	phase, _ := tcs.GetResource[PhaseResource](w.Resources)
	if phase.Background == nil {
		t.Fatal("expected phase.Background to be set after a frame with a bound device")
	}
	if phase.Background.BindGroup == nil {
		t.Fatal("expected phase.Background.BindGroup to be non-nil")
	}
}

// TestBackgroundPluginDefaultsToBlack checks an unset background-color
// paint resolves to opaque black, per the style defaults.
func TestBackgroundPluginDefaultsToBlack(t *testing.T) {
	handle, cleanup := newNoopHandle(t)
	defer cleanup()
	k := newTestKernel(t, handle)

	w := tcs.NewWorld()
	s := schedule.New()
	g := rendergraph.New()

	if err := BuildAll([]Plugin{
		CorePlugin{Config: Config{Width: 32, Height: 32}},
		BackgroundPlugin{},
	}, s, k, w, g); err != nil {
		t.Fatalf("BuildAll() error = %v", err)
	}

	br, ok := tcs.GetResource[BackgroundResource](w.Resources)
	if !ok {
		t.Fatal("BackgroundResource missing")
	}
	if br.Color != ([4]float32{0, 0, 0, 1}) {
		t.Fatalf("Color = %v, want opaque black", br.Color)
	}
}

// TestVectorStyleLayers checks VectorPlugin only adopts fill and line
// layers that name a source-layer; background, raster, and symbol layers
// belong to other plugins.
func TestVectorStyleLayers(t *testing.T) {
	blue := style.RGB(0, 0, 1)
	st := style.New("test",
		style.Layer{ID: "background", Type: style.LayerTypeBackground},
		style.Layer{ID: "satellite", Type: style.LayerTypeRaster, SourceLayer: "raster"},
		style.Layer{ID: "water", Type: style.LayerTypeFill, SourceLayer: "water", Paint: style.FillPaint{Color: &blue}},
		style.Layer{ID: "roads", Type: style.LayerTypeLine, SourceLayer: "roads"},
		style.Layer{ID: "nameless fill", Type: style.LayerTypeFill},
		style.Layer{ID: "labels", Type: style.LayerTypeSymbol, SourceLayer: "place"},
	)
	got := vectorStyleLayers(st.Layers)
	if len(got) != 2 || got[0].ID != "water" || got[1].ID != "roads" {
		t.Fatalf("vectorStyleLayers() = %+v, want water and roads only", got)
	}
	if got[0].Index != 2 || got[1].Index != 3 {
		t.Errorf("kept indices = %d, %d, want array positions 2, 3", got[0].Index, got[1].Index)
	}
}

// TestWriteSurfaceBufferPluginWritesPNG runs CorePlugin plus
// WriteSurfaceBufferPlugin for a couple of frames against a noop device and
// checks each frame's PNG is written with the latched RenderedFrame number.
func TestWriteSurfaceBufferPluginWritesPNG(t *testing.T) {
	handle, cleanup := newNoopHandle(t)
	defer cleanup()
	k := newTestKernel(t, handle)

	w := tcs.NewWorld()
	s := schedule.New()
	g := rendergraph.New()

	dir := t.TempDir()
	plugins := []Plugin{
		CorePlugin{Config: Config{Width: 32, Height: 32}},
		WriteSurfaceBufferPlugin{Config: WriteSurfaceBufferConfig{OutputDir: dir}},
	}
	if err := BuildAll(plugins, s, k, w, g); err != nil {
		t.Fatalf("BuildAll() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.RunFrame(w); err != nil {
			t.Fatalf("RunFrame() error = %v", err)
		}
		path := filepath.Join(dir, "frame_"+strconv.Itoa(i)+".png")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
}

// TestDebugPluginRegistersNode checks DebugPlugin adds DEBUG_PASS after
// MAIN_PASS in the draw subgraph's topological order.
func TestDebugPluginRegistersNode(t *testing.T) {
	handle, cleanup := newNoopHandle(t)
	defer cleanup()
	k := newTestKernel(t, handle)

	w := tcs.NewWorld()
	s := schedule.New()
	g := rendergraph.New()

	plugins := []Plugin{
		CorePlugin{Config: Config{Width: 32, Height: 32}},
		DebugPlugin{},
	}
	if err := BuildAll(plugins, s, k, w, g); err != nil {
		t.Fatalf("BuildAll() error = %v", err)
	}

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder() error = %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	if _, ok := pos[rendergraph.DebugPassNode]; !ok {
		t.Fatal("expected DEBUG_PASS to be registered")
	}
	if pos[rendergraph.MainPassNode] > pos[rendergraph.DebugPassNode] {
		t.Fatalf("order %v violates MAIN_PASS -> DEBUG_PASS dependency", order)
	}
}
