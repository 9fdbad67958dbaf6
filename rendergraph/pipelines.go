package rendergraph

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/mask.wgsl
var maskShaderSource string

//go:embed shaders/vector_tile.wgsl
var vectorTileShaderSource string

//go:embed shaders/raster_tile.wgsl
var rasterTileShaderSource string

//go:embed shaders/debug.wgsl
var debugShaderSource string

//go:embed shaders/background.wgsl
var backgroundShaderSource string

// sampleCount is the MSAA sample count shared by every pass pipeline.
const sampleCount = 4

const vertexStride = 8 // 2 x float32 (x, y)

// Pipelines holds the render pipelines the MAIN_PASS and DEBUG_PASS nodes
// dispatch against: one that only stamps the stencil buffer (mask phase)
// and two that test it with an EQUAL compare (tile phase, vector and
// raster draw functions), plus an unstenciled debug outline pipeline.
type Pipelines struct {
	globalsLayout  hal.BindGroupLayout
	tileLayout     hal.BindGroupLayout
	textureLayout  hal.BindGroupLayout
	layerLayout    hal.BindGroupLayout
	sampler        hal.Sampler
	nearestSampler hal.Sampler

	Mask       hal.RenderPipeline
	VectorTile hal.RenderPipeline
	RasterTile hal.RenderPipeline
	Debug      hal.RenderPipeline
	Background hal.RenderPipeline
}

func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: vertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		},
	}
}

// CreatePipelines compiles the five pass shaders and builds their render
// pipelines against device. Called once by the Prepare stage's
// resource_system, idempotently, via the plugin package's
// Eventually wrapper.
func CreatePipelines(device hal.Device) (*Pipelines, error) {
	globalsLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rendergraph_globals_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create globals bind group layout: %w", err)
	}

	tileLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rendergraph_tile_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create tile bind group layout: %w", err)
	}

	maskShader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mask_shader",
		Source: hal.ShaderSource{WGSL: maskShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: compile mask shader: %w", err)
	}
	vectorShader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "vector_tile_shader",
		Source: hal.ShaderSource{WGSL: vectorTileShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: compile vector tile shader: %w", err)
	}
	rasterShader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "raster_tile_shader",
		Source: hal.ShaderSource{WGSL: rasterTileShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: compile raster tile shader: %w", err)
	}
	debugShader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "debug_shader",
		Source: hal.ShaderSource{WGSL: debugShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: compile debug shader: %w", err)
	}
	backgroundShader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "background_shader",
		Source: hal.ShaderSource{WGSL: backgroundShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: compile background shader: %w", err)
	}

	// textureLayout is bound at group(2) by the raster pipeline only; the
	// mask, vector, and debug pipelines never set it.
	textureLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rendergraph_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create texture bind group layout: %w", err)
	}

	// layerLayout is bound at group(2) by the vector pipeline only: one
	// small uniform per style layer carrying its resolved paint color.
	layerLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rendergraph_layer_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create layer bind group layout: %w", err)
	}

	layout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rendergraph_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{globalsLayout, tileLayout, textureLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create pipeline layout: %w", err)
	}

	vectorLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rendergraph_vector_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{globalsLayout, tileLayout, layerLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create vector pipeline layout: %w", err)
	}

	multisample := gputypes.MultisampleState{Count: sampleCount, Mask: 0xFFFFFFFF}
	primitive := gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList, CullMode: gputypes.CullModeNone}

	// Mask pipeline: both faces replace the stencil value with the
	// reference set via SetStencilReference; color writes disabled.
	maskPipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "mask_pipeline",
		Layout: layout,
		Vertex: hal.VertexState{Module: maskShader, EntryPoint: "vs_main", Buffers: vertexLayout()},
		Fragment: &hal.FragmentState{
			Module:     maskShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, WriteMask: gputypes.ColorWriteMaskNone},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      stencilFace(gputypes.CompareFunctionAlways, hal.StencilOperationReplace),
			StencilBack:       stencilFace(gputypes.CompareFunctionAlways, hal.StencilOperationReplace),
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		},
		Multisample: multisample,
		Primitive:   primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create mask pipeline: %w", err)
	}

	vectorTilePipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "vector_tile_pipeline",
		Layout: vectorLayout,
		Vertex: hal.VertexState{Module: vectorShader, EntryPoint: "vs_main", Buffers: vertexLayout()},
		Fragment: &hal.FragmentState{
			Module:     vectorShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      stencilFace(gputypes.CompareFunctionEqual, hal.StencilOperationKeep),
			StencilBack:       stencilFace(gputypes.CompareFunctionEqual, hal.StencilOperationKeep),
			StencilReadMask:   0xFF,
			StencilWriteMask:  0x00,
		},
		Multisample: multisample,
		Primitive:   primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create vector tile pipeline: %w", err)
	}

	rasterTilePipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "raster_tile_pipeline",
		Layout: layout,
		Vertex: hal.VertexState{Module: rasterShader, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{
			Module:     rasterShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      stencilFace(gputypes.CompareFunctionEqual, hal.StencilOperationKeep),
			StencilBack:       stencilFace(gputypes.CompareFunctionEqual, hal.StencilOperationKeep),
			StencilReadMask:   0xFF,
			StencilWriteMask:  0x00,
		},
		Multisample: multisample,
		Primitive:   primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create raster tile pipeline: %w", err)
	}

	// passthroughStencil declares the depth/stencil attachment every pass
	// carries without touching it: the debug and background pipelines draw
	// unclipped.
	passthroughStencil := &hal.DepthStencilState{
		Format:            gputypes.TextureFormatDepth24PlusStencil8,
		DepthWriteEnabled: false,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilFront:      stencilFace(gputypes.CompareFunctionAlways, hal.StencilOperationKeep),
		StencilBack:       stencilFace(gputypes.CompareFunctionAlways, hal.StencilOperationKeep),
		StencilReadMask:   0x00,
		StencilWriteMask:  0x00,
	}

	debugPipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "debug_pipeline",
		Layout: layout,
		Vertex: hal.VertexState{Module: debugShader, EntryPoint: "vs_main", Buffers: vertexLayout()},
		Fragment: &hal.FragmentState{
			Module:     debugShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: passthroughStencil,
		Multisample:  multisample,
		Primitive:    gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyLineList, CullMode: gputypes.CullModeNone},
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create debug pipeline: %w", err)
	}

	// Background pipeline shares the main three-group layout (its shader
	// only reads group(1)'s uniform, reinterpreted as a color instead of a
	// tile transform) so it needs no bind group layout of its own, and the
	// same passthrough stencil state as the debug pipeline: an unclipped
	// full-target draw.
	backgroundPipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "background_pipeline",
		Layout: layout,
		Vertex: hal.VertexState{Module: backgroundShader, EntryPoint: "vs_main", Buffers: vertexLayout()},
		Fragment: &hal.FragmentState{
			Module:     backgroundShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: passthroughStencil,
		Multisample:  multisample,
		Primitive:    primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create background pipeline: %w", err)
	}

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "raster_tile_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create raster sampler: %w", err)
	}

	// nearestSampler serves raster layers styled with
	// raster-resampling: nearest.
	nearestSampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "raster_tile_sampler_nearest",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("rendergraph: create nearest raster sampler: %w", err)
	}

	return &Pipelines{
		globalsLayout:  globalsLayout,
		tileLayout:     tileLayout,
		textureLayout:  textureLayout,
		layerLayout:    layerLayout,
		sampler:        sampler,
		nearestSampler: nearestSampler,
		Mask:           maskPipeline,
		VectorTile:     vectorTilePipeline,
		RasterTile:     rasterTilePipeline,
		Debug:          debugPipeline,
		Background:     backgroundPipeline,
	}, nil
}

// CreateGlobalsBindGroup binds buffer (the view-projection uniform) at
// group(0) binding(0), the layout every pipeline's Layout shares.
func (p *Pipelines) CreateGlobalsBindGroup(device hal.Device, buffer hal.Buffer, size uint64) (hal.BindGroup, error) {
	return device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "rendergraph_globals_bind", Layout: p.globalsLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buffer.NativeHandle(), Offset: 0, Size: size}},
		},
	})
}

// CreateTileBindGroup binds a fixed-offset view of the tile metadata
// buffer at group(1) binding(0): one bind group per tile-view buffer row.
// Bind groups are cached per row, so the fixed-offset form costs one
// allocation per row ever rather than a dynamic offset per draw.
func (p *Pipelines) CreateTileBindGroup(device hal.Device, buffer hal.Buffer, offset, size uint64) (hal.BindGroup, error) {
	return device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "rendergraph_tile_bind", Layout: p.tileLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buffer.NativeHandle(), Offset: offset, Size: size}},
		},
	})
}

// CreateRasterTextureBindGroup binds a decoded raster tile's texture view
// at group(2) binding(0) and a shared sampler at binding(1), one per
// resident raster tile. nearest selects the point-filtered sampler
// (raster-resampling: nearest) over the default linear one.
func (p *Pipelines) CreateRasterTextureBindGroup(device hal.Device, view hal.TextureView, nearest bool) (hal.BindGroup, error) {
	sampler := p.sampler
	if nearest {
		sampler = p.nearestSampler
	}
	return device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "rendergraph_raster_texture_bind", Layout: p.textureLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}},
		},
	})
}

// CreateLayerColorBindGroup binds one style layer's paint-color uniform at
// group(2) binding(0), the vector pipeline's per-layer slot.
func (p *Pipelines) CreateLayerColorBindGroup(device hal.Device, buffer hal.Buffer, size uint64) (hal.BindGroup, error) {
	return device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "rendergraph_layer_color_bind", Layout: p.layerLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buffer.NativeHandle(), Offset: 0, Size: size}},
		},
	})
}

// CreateBackgroundBindGroup binds buffer (a 16-byte RGBA color uniform) at
// group(1) binding(0), reusing the tile metadata bind group layout since
// both are a single vertex|fragment-visible uniform buffer.
func (p *Pipelines) CreateBackgroundBindGroup(device hal.Device, buffer hal.Buffer, size uint64) (hal.BindGroup, error) {
	return device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "rendergraph_background_bind", Layout: p.tileLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buffer.NativeHandle(), Offset: 0, Size: size}},
		},
	})
}

func stencilFace(compare gputypes.CompareFunction, passOp hal.StencilOperation) hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     compare,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      passOp,
	}
}
