// Package style holds the in-memory map style surface the rendering core
// reads: per-layer paint colors, zoom visibility bounds, and draw order.
// Parsing a style document into these types is a host concern; the core
// only consumes them.
package style

import (
	"strconv"
	"strings"

	"github.com/gogpu/maptile/coords"
)

// LayerType names the kinds of style layers the core understands.
type LayerType string

const (
	LayerTypeBackground LayerType = "background"
	LayerTypeFill       LayerType = "fill"
	LayerTypeLine       LayerType = "line"
	LayerTypeRaster     LayerType = "raster"
	LayerTypeSymbol     LayerType = "symbol"
)

// Color is an sRGB color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Black is the fallback for an unset fill, line, or background paint.
var Black = Color{0, 0, 0, 1}

// RGB creates an opaque color from RGB components.
func RGB(r, g, b float64) Color {
	return Color{R: r, G: g, B: b, A: 1}
}

// Vec4 packs the color for a shader uniform.
func (c Color) Vec4() [4]float32 {
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}

// ParseColor reads the color notations a style document carries:
// "#RGB", "#RGBA", "#RRGGBB", "#RRGGBBAA", "rgb(r,g,b)" and
// "rgba(r,g,b,a)" with byte components, plus "transparent". Reports false
// on anything else.
func ParseColor(s string) (Color, bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "transparent":
		return Color{}, true
	case strings.HasPrefix(s, "#"):
		return parseHexColor(s[1:])
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseRGBColor(s[4:len(s)-1], false)
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseRGBColor(s[5:len(s)-1], true)
	}
	return Color{}, false
}

func parseHexColor(hex string) (Color, bool) {
	var r, g, b uint64
	a := uint64(255)
	var err [4]error
	switch len(hex) {
	case 3, 4:
		r, err[0] = strconv.ParseUint(hex[0:1], 16, 8)
		g, err[1] = strconv.ParseUint(hex[1:2], 16, 8)
		b, err[2] = strconv.ParseUint(hex[2:3], 16, 8)
		if len(hex) == 4 {
			a, err[3] = strconv.ParseUint(hex[3:4], 16, 8)
			a *= 17
		}
		r, g, b = r*17, g*17, b*17
	case 6, 8:
		r, err[0] = strconv.ParseUint(hex[0:2], 16, 8)
		g, err[1] = strconv.ParseUint(hex[2:4], 16, 8)
		b, err[2] = strconv.ParseUint(hex[4:6], 16, 8)
		if len(hex) == 8 {
			a, err[3] = strconv.ParseUint(hex[6:8], 16, 8)
		}
	default:
		return Color{}, false
	}
	for _, e := range err {
		if e != nil {
			return Color{}, false
		}
	}
	return Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
		A: float64(a) / 255,
	}, true
}

func parseRGBColor(args string, alpha bool) (Color, bool) {
	parts := strings.Split(args, ",")
	want := 3
	if alpha {
		want = 4
	}
	if len(parts) != want {
		return Color{}, false
	}
	var channels [3]uint64
	for i := range channels {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return Color{}, false
		}
		channels[i] = v
	}
	a := 1.0
	if alpha {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || v < 0 || v > 1 {
			return Color{}, false
		}
		a = v
	}
	return Color{
		R: float64(channels[0]) / 255,
		G: float64(channels[1]) / 255,
		B: float64(channels[2]) / 255,
		A: a,
	}, true
}

// Paint is one layer's paint block. Exactly one concrete paint type
// matches each LayerType.
type Paint interface {
	paint()
}

// BackgroundPaint carries the background-color paint property.
type BackgroundPaint struct {
	Color *Color // background-color
}

// FillPaint carries the fill-color paint property.
type FillPaint struct {
	Color *Color // fill-color
}

// LinePaint carries the line-color paint property.
type LinePaint struct {
	Color *Color // line-color
}

// RasterResampling selects the sampler filter for raster layers.
type RasterResampling string

const (
	RasterResamplingLinear  RasterResampling = "linear"
	RasterResamplingNearest RasterResampling = "nearest"
)

// RasterPaint carries the raster-* paint properties.
type RasterPaint struct {
	BrightnessMin float64 // raster-brightness-min
	BrightnessMax float64 // raster-brightness-max
	Contrast      float64 // raster-contrast
	HueRotate     float64 // raster-hue-rotate
	Opacity       float64 // raster-opacity
	Saturation    float64 // raster-saturation
	FadeDuration  uint32  // raster-fade-duration, milliseconds
	Resampling    RasterResampling
}

// DefaultRasterPaint returns the property defaults an absent raster paint
// block implies.
func DefaultRasterPaint() RasterPaint {
	return RasterPaint{
		BrightnessMin: 0,
		BrightnessMax: 1,
		Opacity:       1,
		Resampling:    RasterResamplingLinear,
	}
}

// SymbolPaint is recognized but carries nothing the core draws.
type SymbolPaint struct{}

func (BackgroundPaint) paint() {}
func (FillPaint) paint()       {}
func (LinePaint) paint()       {}
func (RasterPaint) paint()     {}
func (SymbolPaint) paint()     {}

// Layer is one entry of a style's layer array. Index is its array
// position, which fixes draw order: lower indices draw first.
type Layer struct {
	Index       int
	ID          string
	Type        LayerType
	Source      string
	SourceLayer string

	// MinZoom and MaxZoom bound the integer zoom levels the layer is
	// drawn at. MaxZoom 0 means unbounded.
	MinZoom uint8
	MaxZoom uint8

	Metadata map[string]string
	Paint    Paint
}

// Color resolves the layer's paint color. Background, fill, and line
// layers with no color set fall back to opaque black; raster and symbol
// layers have no paint color and report false.
func (l Layer) Color() (Color, bool) {
	switch p := l.Paint.(type) {
	case BackgroundPaint:
		return colorOrBlack(p.Color), true
	case FillPaint:
		return colorOrBlack(p.Color), true
	case LinePaint:
		return colorOrBlack(p.Color), true
	}
	switch l.Type {
	case LayerTypeBackground, LayerTypeFill, LayerTypeLine:
		return Black, true
	}
	return Color{}, false
}

func colorOrBlack(c *Color) Color {
	if c == nil {
		return Black
	}
	return *c
}

// Raster resolves the layer's raster paint, applying defaults for an
// absent paint block.
func (l Layer) Raster() RasterPaint {
	p, ok := l.Paint.(RasterPaint)
	if !ok {
		return DefaultRasterPaint()
	}
	if p.Resampling == "" {
		p.Resampling = RasterResamplingLinear
	}
	return p
}

// VisibleAt reports whether the layer is drawn at integer zoom level z.
func (l Layer) VisibleAt(z coords.ZoomLevel) bool {
	if uint8(z) < l.MinZoom {
		return false
	}
	return l.MaxZoom == 0 || uint8(z) < l.MaxZoom
}

// Style is an ordered set of layers. Layer order equals draw order.
type Style struct {
	Name   string
	Layers []Layer
}

// New builds a Style, assigning each layer's Index from its array
// position.
func New(name string, layers ...Layer) *Style {
	for i := range layers {
		layers[i].Index = i
	}
	return &Style{Name: name, Layers: layers}
}

// LayersOfType returns the layers of kind t in draw order.
func (s *Style) LayersOfType(t LayerType) []Layer {
	var out []Layer
	for _, l := range s.Layers {
		if l.Type == t {
			out = append(out, l)
		}
	}
	return out
}
