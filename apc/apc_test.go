package apc

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/source"
	"github.com/gogpu/maptile/tcs"
)

func testCoords() coords.WorldTileCoords {
	return coords.WorldTileCoords{X: 1, Y: 2, Z: 3}
}

func rasterImage() tcs.RGBAImage {
	return tcs.RGBAImage{Width: 2, Height: 1, Pixels: []byte{255, 0, 0, 255, 0, 255, 0, 255}}
}

func waitForMessages(t *testing.T, a *APC, predicate func(Message) bool, want int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs := a.Receive(predicate)
		if len(msgs) >= want {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", want)
	return nil
}

func TestCallDeliversMessages(t *testing.T) {
	a := New(2, source.NewClient(0, nil), KernelEnvironment{})
	defer a.Close()

	c := testCoords()
	proc := func(ctx context.Context, input coords.WorldTileCoords, pctx *Context, env KernelEnvironment) error {
		if err := pctx.Send(LayerTessellated(input, "water", nil, nil)); err != nil {
			return err
		}
		return pctx.Send(TileTessellated(input))
	}

	if err := Call(a, c, proc); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	msgs := waitForMessages(t, a, func(Message) bool { return true }, 2)
	if msgs[0].Kind != KindLayerTessellated {
		t.Fatalf("expected LayerTessellated first, got %v", msgs[0].Kind)
	}
	if msgs[1].Kind != KindTileTessellated {
		t.Fatalf("expected TileTessellated second, got %v", msgs[1].Kind)
	}
}

func TestReceivePreservesUnmatchedMessages(t *testing.T) {
	a := New(1, source.NewClient(0, nil), KernelEnvironment{})
	defer a.Close()

	c := testCoords()
	proc := func(ctx context.Context, input coords.WorldTileCoords, pctx *Context, env KernelEnvironment) error {
		if err := pctx.Send(LayerTessellated(input, "water", nil, nil)); err != nil {
			return err
		}
		return pctx.Send(TileTessellated(input))
	}
	if err := Call(a, c, proc); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	layerMsgs := waitForMessages(t, a, func(m Message) bool { return m.Kind == KindLayerTessellated }, 1)
	if len(layerMsgs) != 1 {
		t.Fatalf("expected 1 layer message, got %d", len(layerMsgs))
	}

	tileMsgs := waitForMessages(t, a, func(m Message) bool { return m.Kind == KindTileTessellated }, 1)
	if len(tileMsgs) != 1 {
		t.Fatalf("expected the tile-tessellated message to still be pending, got %d", len(tileMsgs))
	}
}

func TestCallScheduleErrorOnFullMailbox(t *testing.T) {
	a := New(1, source.NewClient(0, nil), KernelEnvironment{})
	defer a.Close()

	block := make(chan struct{})
	blocker := func(ctx context.Context, input int, pctx *Context, env KernelEnvironment) error {
		<-block
		return nil
	}
	// Occupy the sole worker so every subsequent job queues up.
	if err := Call(a, 0, blocker); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	noop := func(ctx context.Context, input int, pctx *Context, env KernelEnvironment) error { return nil }
	var lastErr error
	for i := 0; i < mailboxCapacity+4; i++ {
		lastErr = Call(a, i, noop)
	}
	close(block)

	var callErr *CallError
	if lastErr == nil {
		t.Fatal("expected a schedule error once the mailbox saturates")
	}
	if !asCallError(lastErr, &callErr) || !callErr.Schedule {
		t.Fatalf("expected CallError{Schedule: true}, got %v", lastErr)
	}
}

func asCallError(err error, target **CallError) bool {
	ce, ok := err.(*CallError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	original := LayerTessellated(testCoords(), "water", []byte{1, 2, 3, 4}, []uint32{0, 3})
	frame := EncodeMessage(original)

	decoded, n, err := DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if n != len(frame) {
		t.Fatalf("DecodeMessage() consumed %d bytes, want %d", n, len(frame))
	}
	if decoded.Kind != original.Kind || decoded.Coords != original.Coords || decoded.LayerName != original.LayerName {
		t.Fatalf("DecodeMessage() = %+v, want %+v", decoded, original)
	}
	if string(decoded.Buffer) != string(original.Buffer) {
		t.Fatalf("Buffer = %v, want %v", decoded.Buffer, original.Buffer)
	}
	if len(decoded.FeatureIndices) != len(original.FeatureIndices) {
		t.Fatalf("FeatureIndices = %v, want %v", decoded.FeatureIndices, original.FeatureIndices)
	}
}

func TestEncodeDecodeMessageRaster(t *testing.T) {
	img := rasterImage()
	original := LayerRaster(testCoords(), "raster", img)
	frame := EncodeMessage(original)

	decoded, _, err := DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if decoded.Image.Width != img.Width || decoded.Image.Height != img.Height {
		t.Fatalf("Image dims = %dx%d, want %dx%d", decoded.Image.Width, decoded.Image.Height, img.Width, img.Height)
	}
	if len(decoded.Image.Pixels) != len(img.Pixels) {
		t.Fatalf("Image pixels len = %d, want %d", len(decoded.Image.Pixels), len(img.Pixels))
	}
}
