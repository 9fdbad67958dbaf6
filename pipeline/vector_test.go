package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gogpu/maptile/apc"
	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/source"
)

func runProcedure(t *testing.T, input VectorTileRequest) []apc.Message {
	t.Helper()
	var got []apc.Message
	a := apc.New(1, source.NewClient(0, nil), apc.KernelEnvironment{})
	defer a.Close()

	done := make(chan struct{})
	proc := func(ctx context.Context, in VectorTileRequest, pctx *apc.Context, env apc.KernelEnvironment) error {
		defer close(done)
		return RunVectorPipeline(ctx, in, pctx, env)
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

func TestRunVectorPipelineUnavailableLayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buildTestTile(t))
	}))
	defer srv.Close()

	input := VectorTileRequest{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		Layers: map[string]struct{}{"landuse": {}, "water": {}},
		Source: source.Request{
			Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
			URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
			Ext:    "pbf",
		},
	}

	msgs := runProcedure(t, input)

	var sawLanduseTessellated, sawWaterUnavailable, sawTileDone bool
	for _, m := range msgs {
		switch {
		case m.Kind == apc.KindLayerTessellated && m.LayerName == "landuse":
			sawLanduseTessellated = true
		case m.Kind == apc.KindLayerUnavailable && m.SourceLayer == "water":
			sawWaterUnavailable = true
		case m.Kind == apc.KindTileTessellated:
			sawTileDone = true
		}
	}
	if !sawLanduseTessellated {
		t.Error("expected a LayerTessellated message for landuse")
	}
	if !sawWaterUnavailable {
		t.Error("expected a LayerUnavailable message for water")
	}
	if !sawTileDone {
		t.Error("expected a terminal TileTessellated message")
	}
	if msgs[len(msgs)-1].Kind != apc.KindTileTessellated {
		t.Error("expected TileTessellated to be the last message for this tile")
	}
}

func TestRunVectorPipelineFetchFailureMarksAllUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	input := VectorTileRequest{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		Layers: map[string]struct{}{"landuse": {}},
		Source: source.Request{
			Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
			URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
			Ext:    "pbf",
		},
	}

	msgs := runProcedure(t, input)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (unavailable + tile-done), got %d", len(msgs))
	}
	if msgs[0].Kind != apc.KindLayerUnavailable {
		t.Fatalf("expected LayerUnavailable first, got %v", msgs[0].Kind)
	}
	if msgs[1].Kind != apc.KindTileTessellated {
		t.Fatalf("expected TileTessellated last, got %v", msgs[1].Kind)
	}
}
