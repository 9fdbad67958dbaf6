package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/source"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func runRasterProcedure(t *testing.T, input RasterTileRequest) []apc.Message {
	t.Helper()
	var got []apc.Message
	a := apc.New(1, source.NewClient(0, nil), apc.KernelEnvironment{})
	defer a.Close()

	done := make(chan struct{})
	proc := func(ctx context.Context, in RasterTileRequest, pctx *apc.Context, env apc.KernelEnvironment) error {
		defer close(done)
		return RunRasterPipeline(ctx, in, pctx, env)
	}
	if err := apc.Call(a, input, proc); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	<-done

	for {
		msgs := a.Receive(func(apc.Message) bool { return true })
		if len(msgs) == 0 {
			break
		}
		got = append(got, msgs...)
	}
	return got
}

func TestRunRasterPipelineDecodesPNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(encodeTestPNG(t, 4, 4))
	}))
	defer srv.Close()

	input := RasterTileRequest{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		Source: source.Request{
			Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
			URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
			Ext:    "png",
		},
	}

	msgs := runRasterProcedure(t, input)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Kind != apc.KindLayerRaster {
		t.Fatalf("expected LayerRaster, got %v", msgs[0].Kind)
	}
	if msgs[0].Image.Width != 4 || msgs[0].Image.Height != 4 {
		t.Fatalf("decoded image = %dx%d, want 4x4", msgs[0].Image.Width, msgs[0].Image.Height)
	}
}

func TestRunRasterPipelineMissingOnFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	input := RasterTileRequest{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		Source: source.Request{
			Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
			URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
			Ext:    "png",
		},
	}

	msgs := runRasterProcedure(t, input)
	if len(msgs) != 1 || msgs[0].Kind != apc.KindLayerRasterMissing {
		t.Fatalf("expected a single LayerRasterMissing message, got %+v", msgs)
	}
}
