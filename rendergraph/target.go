package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// RenderTarget is the offscreen MSAA color / depth-stencil / resolve
// texture set every frame renders into: 4x MSAA color resolving to a
// single-sample CopySrc texture for CPU readback, plus a combined
// depth/stencil attachment the mask and tile phases share.
type RenderTarget struct {
	msaaTex     hal.Texture
	msaaView    hal.TextureView
	stencilTex  hal.Texture
	stencilView hal.TextureView
	resolveTex  hal.Texture
	resolveView hal.TextureView

	Width, Height uint32
}

// NewRenderTarget allocates a RenderTarget of the given pixel size.
func NewRenderTarget(device hal.Device, width, height uint32) (*RenderTarget, error) {
	size := gputypes.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1}

	msaaTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: "maptile_msaa_color", Size: size, MipLevelCount: 1, SampleCount: sampleCount,
		Dimension: gputypes.TextureDimension2D, Format: gputypes.TextureFormatBGRA8Unorm,
		Usage: gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create msaa color texture: %w", err)
	}
	msaaView, err := device.CreateTextureView(msaaTex, &hal.TextureViewDescriptor{Label: "maptile_msaa_color_view"})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create msaa color view: %w", err)
	}

	stencilTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: "maptile_depth_stencil", Size: size, MipLevelCount: 1, SampleCount: sampleCount,
		Dimension: gputypes.TextureDimension2D, Format: gputypes.TextureFormatDepth24PlusStencil8,
		Usage: gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create depth/stencil texture: %w", err)
	}
	stencilView, err := device.CreateTextureView(stencilTex, &hal.TextureViewDescriptor{Label: "maptile_depth_stencil_view"})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create depth/stencil view: %w", err)
	}

	resolveTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: "maptile_resolve", Size: size, MipLevelCount: 1, SampleCount: 1,
		Dimension: gputypes.TextureDimension2D, Format: gputypes.TextureFormatBGRA8Unorm,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create resolve texture: %w", err)
	}
	resolveView, err := device.CreateTextureView(resolveTex, &hal.TextureViewDescriptor{Label: "maptile_resolve_view"})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create resolve view: %w", err)
	}

	return &RenderTarget{
		msaaTex: msaaTex, msaaView: msaaView,
		stencilTex: stencilTex, stencilView: stencilView,
		resolveTex: resolveTex, resolveView: resolveView,
		Width: width, Height: height,
	}, nil
}

// ResolveTexture returns the single-sample texture MAIN_PASS resolves
// into, the source for COPY_PASS's readback.
func (t *RenderTarget) ResolveTexture() hal.Texture { return t.resolveTex }

// PassDescriptor returns the render pass descriptor for the MAIN_PASS and
// DEBUG_PASS nodes: clear-to-transparent color on the first use of a
// frame, load-and-keep on subsequent nodes sharing the same target, and a
// stencil cleared to zero once per frame.
func (t *RenderTarget) PassDescriptor(clear bool) *hal.RenderPassDescriptor {
	colorLoad := gputypes.LoadOpLoad
	stencilLoad := gputypes.LoadOpLoad
	if clear {
		colorLoad = gputypes.LoadOpClear
		stencilLoad = gputypes.LoadOpClear
	}
	return &hal.RenderPassDescriptor{
		Label: "maptile_main_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:          t.msaaView,
				ResolveTarget: t.resolveView,
				LoadOp:        colorLoad,
				StoreOp:       gputypes.StoreOpStore,
				ClearValue:    gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              t.stencilView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1,
			StencilLoadOp:     stencilLoad,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		},
	}
}

// Destroy releases every texture and view the target owns.
func (t *RenderTarget) Destroy(device hal.Device) {
	if t.msaaTex != nil {
		device.DestroyTexture(t.msaaTex)
	}
	if t.stencilTex != nil {
		device.DestroyTexture(t.stencilTex)
	}
	if t.resolveTex != nil {
		device.DestroyTexture(t.resolveTex)
	}
}
