package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/source"
	"github.com/gogpu/maptile/tcs"
)

// RasterTileRequest is the Input to RunRasterPipeline.
type RasterTileRequest struct {
	Coords coords.WorldTileCoords
	Source source.Request
}

// RunRasterPipeline is the AsyncProcedure body for raster tiles: fetch
// image bytes, decode them with the format-appropriate decoder, and emit
// LayerRaster on success or LayerRasterMissing on any failure.
func RunRasterPipeline(ctx context.Context, input RasterTileRequest, pctx *apc.Context, env apc.KernelEnvironment) error {
	data, err := pctx.SourceClient().Fetch(ctx, input.Source)
	if err != nil {
		return pctx.Send(apc.LayerRasterMissing(input.Coords))
	}

	img, decodeErr := decodeRasterImage(data)
	if decodeErr != nil {
		if err := pctx.Send(apc.LayerRasterMissing(input.Coords)); err != nil {
			return err
		}
		return apc.ExecutionError(fmt.Errorf("decode raster %v: %w", input.Coords, decodeErr))
	}

	return pctx.Send(apc.LayerRaster(input.Coords, "raster", img))
}

// decodeRasterImage tries PNG and JPEG before falling back to WebP via
// github.com/gen2brain/webp.
func decodeRasterImage(data []byte) (tcs.RGBAImage, error) {
	if img, err := png.Decode(bytes.NewReader(data)); err == nil {
		return toRGBAImage(img), nil
	}
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return toRGBAImage(img), nil
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return tcs.RGBAImage{}, fmt.Errorf("pipeline: unsupported raster format: %w", err)
	}
	return toRGBAImage(img), nil
}

func toRGBAImage(img image.Image) tcs.RGBAImage {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := tcs.RGBAImage{Width: w, Height: h, Pixels: make([]byte, w*h*4)}

	rgba, ok := img.(*image.RGBA)
	if ok && rgba.Stride == w*4 {
		copy(out.Pixels, rgba.Pix)
		return out
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.Pixels[i] = byte(r >> 8)
			out.Pixels[i+1] = byte(g >> 8)
			out.Pixels[i+2] = byte(b >> 8)
			out.Pixels[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return out
}
