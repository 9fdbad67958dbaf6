package plugin

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/style"
	"github.com/gogpu/maptile/tcs"
)

// backgroundUniformSize is one RGBA float32 color.
const backgroundUniformSize = 16

// BackgroundConfig bundles BackgroundPlugin's construction-time parameters.
type BackgroundConfig struct {
	// Layer is the style's background layer. An unset background-color
	// paint resolves to opaque black.
	Layer style.Layer
}

// BackgroundResource owns the background fill's GPU-side color uniform and
// its bind group, created once and rewritten only when Color changes.
type BackgroundResource struct {
	Color  [4]float32
	Buffer hal.Buffer
	Bind   hal.BindGroup
}

// BackgroundPlugin draws a flat-color backdrop covering the whole render
// target before the mask phase stamps any tile footprint, the bottommost
// layer of every style.
type BackgroundPlugin struct {
	Config BackgroundConfig
}

func (p BackgroundPlugin) Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	layer := p.Config.Layer
	if layer.Type == "" {
		layer.Type = style.LayerTypeBackground
	}
	color, _ := layer.Color()
	tcs.InsertResource(w.Resources, BackgroundResource{Color: color.Vec4()})

	s.AddSystem(schedule.Prepare, schedule.SystemContainer{
		Name:     "background_resource",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[GPUResource](), tcs.TypeOf[BackgroundResource]()},
		Run:      backgroundResourceSystem,
	})

	s.AddSystem(schedule.Queue, schedule.SystemContainer{
		Name:     "background_queue",
		Requires: []reflect.Type{tcs.TypeOf[BackgroundResource](), tcs.TypeOf[PhaseResource]()},
		Run:      backgroundQueueSystem,
	})

	return nil
}

// backgroundResourceSystem creates the color uniform buffer and its bind
// group the first time a device is available, grounded on resourceSystem's
// own GlobalsBuffer lazy-init in core.go.
func backgroundResourceSystem(world *tcs.World) error {
	kr, _ := tcs.GetResource[KernelResource](world.Resources)
	gpu, _ := tcs.GetResource[GPUResource](world.Resources)
	br, _ := tcs.GetResource[BackgroundResource](world.Resources)

	device, queue, hasDevice := kernel.HalDevice(kr.Kernel.Device)
	if !hasDevice {
		return nil
	}
	pipelines, ok := gpu.Pipelines.Get()
	if !ok {
		return nil
	}

	if br.Buffer == nil {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: "maptile_background_uniform",
			Size:  backgroundUniformSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("plugin: create background buffer: %w", err)
		}
		bind, err := pipelines.CreateBackgroundBindGroup(device, buf, backgroundUniformSize)
		if err != nil {
			return fmt.Errorf("plugin: create background bind group: %w", err)
		}
		br.Buffer, br.Bind = buf, bind
		if err := queue.WriteBuffer(br.Buffer, 0, packColor(br.Color)); err != nil {
			return fmt.Errorf("plugin: write background buffer: %w", err)
		}
	}
	return nil
}

func backgroundQueueSystem(world *tcs.World) error {
	br, _ := tcs.GetResource[BackgroundResource](world.Resources)
	phase, _ := tcs.GetResource[PhaseResource](world.Resources)
	if br.Bind == nil {
		return nil
	}
	phase.Background = &rendergraph.BackgroundDraw{BindGroup: br.Bind}
	return nil
}

func packColor(c [4]float32) []byte {
	buf := make([]byte, backgroundUniformSize)
	for i, f := range c {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
