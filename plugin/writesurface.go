package plugin

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/tcs"
)

// copyPitchAlignment is WebGPU/DX12's required row pitch for a
// texture-to-buffer copy.
const copyPitchAlignment = 256

// WriteSurfaceBufferConfig bundles WriteSurfaceBufferPlugin's
// construction-time parameters.
type WriteSurfaceBufferConfig struct {
	// OutputDir is the directory frame_<n>.png files are written to. "."
	// if empty.
	OutputDir string
}

// WriteSurfaceBufferPlugin adds the headless COPY_PASS node and a
// Cleanup-stage system that copies the resolved color target back to the
// CPU and encodes it as a PNG. Only meaningful with a real
// hal.Device/hal.Queue bound (kernel.NullDeviceHandle skips it silently),
// since a windowed host application presents the surface directly and
// never needs a readback.
type WriteSurfaceBufferPlugin struct {
	Config WriteSurfaceBufferConfig
}

func (p WriteSurfaceBufferPlugin) Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	dir := p.Config.OutputDir
	if dir == "" {
		dir = "."
	}

	g.AddNode(rendergraph.Node{
		Name:   rendergraph.CopyPassNode,
		Inputs: []string{rendergraph.MainPassNode},
		// graph_runner special-cases COPY_PASS: it finishes and waits on
		// the render encoder before calling Run with rp == nil, so this
		// node has nothing left to record into a render pass.
		Run: func(rp hal.RenderPassEncoder, ctx any) error { return nil },
	})

	s.AddSystem(schedule.Cleanup, schedule.SystemContainer{
		Name:     "write_surface_buffer",
		Requires: []reflect.Type{tcs.TypeOf[KernelResource](), tcs.TypeOf[GPUResource](), tcs.TypeOf[FrameCounterResource]()},
		Run:      writeSurfaceBufferSystem(dir),
	})

	return nil
}

// writeSurfaceBufferSystem names each output file after
// fc.RenderedFrame, latched by graph_runner during the Render stage, so
// numbering is correct regardless of this plugin's registration order
// relative to CorePlugin's Cleanup-stage advance_frame system.
func writeSurfaceBufferSystem(dir string) schedule.SystemFunc {
	return func(world *tcs.World) error {
		kr, _ := tcs.GetResource[KernelResource](world.Resources)
		gpu, _ := tcs.GetResource[GPUResource](world.Resources)
		fc, _ := tcs.GetResource[FrameCounterResource](world.Resources)

		device, queue, hasDevice := kernel.HalDevice(kr.Kernel.Device)
		if !hasDevice {
			return nil
		}
		target, ok := gpu.Target.Get()
		if !ok {
			return nil
		}

		img, err := readbackRGBA(device, queue, target)
		if err != nil {
			return fmt.Errorf("plugin: write surface buffer: %w", err)
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("plugin: create output dir: %w", err)
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%d.png", fc.RenderedFrame))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("plugin: create %s: %w", path, err)
		}
		defer f.Close()
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("plugin: encode %s: %w", path, err)
		}
		return nil
	}
}

// readbackRGBA copies target's resolved color texture to a staging buffer,
// submits, waits, and converts the BGRA readback to an *image.RGBA,
// honoring the 256-byte row-pitch the copy requires.
func readbackRGBA(device hal.Device, queue hal.Queue, target *rendergraph.RenderTarget) (*image.RGBA, error) {
	w, h := target.Width, target.Height

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "maptile_copy_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("maptile_copy_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: target.ResolveTexture(),
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "maptile_readback_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer device.DestroyBuffer(staging)

	encoder.CopyTextureToBuffer(target.ResolveTexture(), staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: target.ResolveTexture(), MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: target.ResolveTexture(),
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	ok, err := device.Wait(fence, 1, 5*time.Second)
	if err != nil || !ok {
		return nil, fmt.Errorf("wait for gpu: ok=%v err=%w", ok, err)
	}

	readback := make([]byte, stagingSize)
	if err := queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	if alignedBytesPerRow == bytesPerRow {
		convertBGRAToRGBA(readback, img.Pix, int(w*h))
	} else {
		tight := make([]byte, uint64(bytesPerRow)*uint64(h))
		for row := uint32(0); row < h; row++ {
			srcOff := int(row) * int(alignedBytesPerRow)
			dstOff := int(row) * int(bytesPerRow)
			copy(tight[dstOff:dstOff+int(bytesPerRow)], readback[srcOff:srcOff+int(bytesPerRow)])
		}
		convertBGRAToRGBA(tight, img.Pix, int(w*h))
	}
	return img, nil
}

// convertBGRAToRGBA swaps the red and blue channels between src and dst.
func convertBGRAToRGBA(src, dst []byte, pixelCount int) {
	for i := 0; i < pixelCount; i++ {
		off := i * 4
		b, g, r, a := src[off], src[off+1], src[off+2], src[off+3]
		dst[off] = r
		dst[off+1] = g
		dst[off+2] = b
		dst[off+3] = a
	}
}
