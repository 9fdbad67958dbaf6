package style

import (
	"math"
	"testing"

	"github.com/gogpu/maptile/coords"
)

func colorsClose(a, b Color) bool {
	const eps = 1e-9
	return math.Abs(a.R-b.R) < eps && math.Abs(a.G-b.G) < eps &&
		math.Abs(a.B-b.B) < eps && math.Abs(a.A-b.A) < eps
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Color
		ok    bool
	}{
		{"hex short", "#fff", Color{1, 1, 1, 1}, true},
		{"hex short alpha", "#f00f", Color{1, 0, 0, 1}, true},
		{"hex long", "#3D3D3D", Color{0x3d / 255.0, 0x3d / 255.0, 0x3d / 255.0, 1}, true},
		{"hex long alpha", "#ff000080", Color{1, 0, 0, 0x80 / 255.0}, true},
		{"rgb", "rgb(239,239,239)", Color{239 / 255.0, 239 / 255.0, 239 / 255.0, 1}, true},
		{"rgb spaces", "rgb(255, 0, 0)", Color{1, 0, 0, 1}, true},
		{"rgba", "rgba(0,0,255,0.5)", Color{0, 0, 1, 0.5}, true},
		{"transparent", "transparent", Color{}, true},
		{"padded", "  #fff  ", Color{1, 1, 1, 1}, true},
		{"empty", "", Color{}, false},
		{"bad hex length", "#ffff0", Color{}, false},
		{"bad hex digit", "#zzz", Color{}, false},
		{"rgb out of range", "rgb(256,0,0)", Color{}, false},
		{"rgb missing channel", "rgb(1,2)", Color{}, false},
		{"rgba alpha out of range", "rgba(0,0,0,1.5)", Color{}, false},
		{"named unsupported", "cornflowerblue", Color{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseColor(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseColor(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !colorsClose(got, tt.want) {
				t.Errorf("ParseColor(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLayerColorDefaults(t *testing.T) {
	red := RGB(1, 0, 0)

	tests := []struct {
		name   string
		layer  Layer
		want   Color
		wantOK bool
	}{
		{"fill with color", Layer{Type: LayerTypeFill, Paint: FillPaint{Color: &red}}, red, true},
		{"line with color", Layer{Type: LayerTypeLine, Paint: LinePaint{Color: &red}}, red, true},
		{"background with color", Layer{Type: LayerTypeBackground, Paint: BackgroundPaint{Color: &red}}, red, true},
		{"fill unset color", Layer{Type: LayerTypeFill, Paint: FillPaint{}}, Black, true},
		{"fill no paint", Layer{Type: LayerTypeFill}, Black, true},
		{"background no paint", Layer{Type: LayerTypeBackground}, Black, true},
		{"raster has no color", Layer{Type: LayerTypeRaster, Paint: RasterPaint{}}, Color{}, false},
		{"symbol has no color", Layer{Type: LayerTypeSymbol}, Color{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.layer.Color()
			if ok != tt.wantOK {
				t.Fatalf("Color() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !colorsClose(got, tt.want) {
				t.Errorf("Color() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLayerRasterDefaults(t *testing.T) {
	got := Layer{Type: LayerTypeRaster}.Raster()
	if got.Opacity != 1 || got.BrightnessMax != 1 || got.Resampling != RasterResamplingLinear {
		t.Errorf("Raster() defaults = %+v", got)
	}

	set := Layer{Type: LayerTypeRaster, Paint: RasterPaint{Opacity: 0.5, Resampling: RasterResamplingNearest}}.Raster()
	if set.Opacity != 0.5 || set.Resampling != RasterResamplingNearest {
		t.Errorf("Raster() = %+v, want explicit paint preserved", set)
	}

	unsetResampling := Layer{Type: LayerTypeRaster, Paint: RasterPaint{Opacity: 0.5}}.Raster()
	if unsetResampling.Resampling != RasterResamplingLinear {
		t.Errorf("Raster().Resampling = %q, want linear default", unsetResampling.Resampling)
	}
}

func TestLayerVisibleAt(t *testing.T) {
	tests := []struct {
		name    string
		min     uint8
		max     uint8
		z       coords.ZoomLevel
		visible bool
	}{
		{"unbounded at 0", 0, 0, 0, true},
		{"unbounded at max", 0, 0, 32, true},
		{"below minzoom", 14, 15, 13, false},
		{"at minzoom", 14, 15, 14, true},
		{"at maxzoom excluded", 14, 15, 15, false},
		{"min only", 5, 0, 22, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Layer{MinZoom: tt.min, MaxZoom: tt.max}
			if got := l.VisibleAt(tt.z); got != tt.visible {
				t.Errorf("VisibleAt(%d) = %v, want %v", tt.z, got, tt.visible)
			}
		})
	}
}

func TestNewAssignsIndicesFromArrayOrder(t *testing.T) {
	s := New("test",
		Layer{ID: "background", Type: LayerTypeBackground},
		Layer{ID: "water", Type: LayerTypeFill},
		Layer{ID: "roads", Type: LayerTypeLine},
		Layer{ID: "labels", Type: LayerTypeSymbol},
	)
	for i, l := range s.Layers {
		if l.Index != i {
			t.Errorf("Layers[%d].Index = %d, want %d", i, l.Index, i)
		}
	}
}

func TestLayersOfType(t *testing.T) {
	s := New("test",
		Layer{ID: "background", Type: LayerTypeBackground},
		Layer{ID: "water", Type: LayerTypeFill},
		Layer{ID: "satellite", Type: LayerTypeRaster},
		Layer{ID: "buildings", Type: LayerTypeFill},
	)
	fills := s.LayersOfType(LayerTypeFill)
	if len(fills) != 2 || fills[0].ID != "water" || fills[1].ID != "buildings" {
		t.Fatalf("LayersOfType(fill) = %+v", fills)
	}
	if fills[0].Index != 1 || fills[1].Index != 3 {
		t.Errorf("fill indices = %d, %d, want 1, 3 (array positions preserved)", fills[0].Index, fills[1].Index)
	}
	if got := s.LayersOfType(LayerTypeLine); got != nil {
		t.Errorf("LayersOfType(line) = %+v, want nil", got)
	}
}
