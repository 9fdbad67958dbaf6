// Command maptiledemo renders a few frames of a headless tile view and
// writes each one to a PNG file, wiring every canonical plugin against a
// noop GPU backend so the demo runs without a real display or driver.
package main

import (
	"flag"
	"log"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/plugin"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/source"
	"github.com/gogpu/maptile/style"
	"github.com/gogpu/maptile/tcs"
)

// demoStyle builds a small OpenMapTiles-shaped style: a light backdrop, a
// satellite base, then water, roads, and buildings on top. Layer order is
// draw order.
func demoStyle() *style.Style {
	background, _ := style.ParseColor("rgb(239,239,239)")
	water, _ := style.ParseColor("#80b3ff")
	roads, _ := style.ParseColor("#3D3D3D")
	buildings, _ := style.ParseColor("#d9cfc3")
	return style.New("maptiledemo",
		style.Layer{ID: "background", Type: style.LayerTypeBackground, Paint: style.BackgroundPaint{Color: &background}},
		style.Layer{ID: "satellite", Type: style.LayerTypeRaster, SourceLayer: "raster", Paint: style.DefaultRasterPaint()},
		style.Layer{ID: "water", Type: style.LayerTypeFill, SourceLayer: "water", Paint: style.FillPaint{Color: &water}},
		style.Layer{ID: "roads", Type: style.LayerTypeLine, SourceLayer: "roads", Paint: style.LinePaint{Color: &roads}},
		style.Layer{ID: "buildings", Type: style.LayerTypeFill, SourceLayer: "buildings", MinZoom: 14, Paint: style.FillPaint{Color: &buildings}},
	)
}

// noopDeviceHandle satisfies kernel.DeviceHandle (gpucontext.DeviceProvider)
// and the package-private halProvider duck type kernel.HalDevice looks for,
// wrapping a hal/noop device/queue pair so the demo can exercise the real
// render graph without a platform GPU backend.
type noopDeviceHandle struct {
	device hal.Device
	queue  hal.Queue
}

func (noopDeviceHandle) Device() gpucontext.Device   { return nil }
func (noopDeviceHandle) Queue() gpucontext.Queue     { return nil }
func (noopDeviceHandle) Adapter() gpucontext.Adapter { return nil }
func (noopDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}
func (h noopDeviceHandle) HalDevice() any { return h.device }
func (h noopDeviceHandle) HalQueue() any  { return h.queue }

var _ kernel.DeviceHandle = noopDeviceHandle{}

func main() {
	var (
		width   = flag.Uint("width", 1024, "offscreen render target width")
		height  = flag.Uint("height", 1024, "offscreen render target height")
		frames  = flag.Int("frames", 3, "number of frames to render")
		output  = flag.String("output", ".", "directory frame_<n>.png files are written to")
		tileURL = flag.String("vector-url", "https://example.com/tiles/{z}/{x}/{y}.mvt", "vector tile URL template")
	)
	flag.Parse()

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		log.Fatalf("maptiledemo: create instance: %v", err)
	}
	defer instance.Destroy()

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		log.Fatal("maptiledemo: no adapters enumerated")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		log.Fatalf("maptiledemo: open device: %v", err)
	}
	defer openDev.Device.Destroy()

	handle := noopDeviceHandle{device: openDev.Device, queue: openDev.Queue}

	k, err := kernel.New(kernel.Config{
		Workers:           4,
		RequestsPerSecond: 20,
		Device:            handle,
	})
	if err != nil {
		log.Fatalf("maptiledemo: new kernel: %v", err)
	}
	defer k.Close()

	w := tcs.NewWorld()
	s := schedule.New()
	g := rendergraph.New()

	st := demoStyle()
	plugins := []plugin.Plugin{
		plugin.CorePlugin{Config: plugin.Config{Width: uint32(*width), Height: uint32(*height)}},
		plugin.BackgroundPlugin{Config: plugin.BackgroundConfig{
			Layer: st.LayersOfType(style.LayerTypeBackground)[0],
		}},
		plugin.RasterPlugin{Config: plugin.RasterConfig{
			Source: source.Request{URL: "https://example.com/raster/{z}/{x}/{y}.png", Ext: "png"},
			Layer:  st.LayersOfType(style.LayerTypeRaster)[0],
		}},
		plugin.VectorPlugin{Config: plugin.VectorConfig{
			Source: source.Request{URL: *tileURL, Ext: "mvt"},
			Layers: st.Layers,
		}},
		plugin.DebugPlugin{},
		plugin.WriteSurfaceBufferPlugin{Config: plugin.WriteSurfaceBufferConfig{OutputDir: *output}},
	}
	if err := plugin.BuildAll(plugins, s, k, w, g); err != nil {
		log.Fatalf("maptiledemo: build plugins: %v", err)
	}

	for i := 0; i < *frames; i++ {
		if err := s.RunFrame(w); err != nil {
			log.Fatalf("maptiledemo: run frame %d: %v", i, err)
		}
	}

	log.Printf("maptiledemo: wrote %d frames to %s\n", *frames, *output)
}
