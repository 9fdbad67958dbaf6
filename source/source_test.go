package source

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gogpu/maptile/coords"
)

func TestFormatURLXYZ(t *testing.T) {
	req := Request{
		Coords: coords.WorldTileCoords{X: 3, Y: 5, Z: 4},
		URL:    "https://example.com/tiles/{z}/{x}/{y}.{ext}",
		Ext:    "pbf",
	}
	got := req.FormatURL()
	want := "https://example.com/tiles/4/3/5.pbf"
	if got != want {
		t.Fatalf("FormatURL() = %q, want %q", got, want)
	}
}

func TestFormatURLTMSFlipsY(t *testing.T) {
	req := Request{
		Coords: coords.WorldTileCoords{X: 1, Y: 1, Z: 2},
		URL:    "https://example.com/{z}/{x}/{y}.{ext}",
		Ext:    "png",
		Scheme: TMS,
	}
	got := req.FormatURL()
	want := "https://example.com/2/1/2.png" // 2^2-1-1 = 2
	if got != want {
		t.Fatalf("FormatURL() = %q, want %q", got, want)
	}
}

func TestFormatURLWithKey(t *testing.T) {
	req := Request{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		URL:    "https://example.com/{z}/{x}/{y}.{ext}",
		Ext:    "pbf",
		Key:    "abc123",
	}
	got := req.FormatURL()
	want := "https://example.com/0/0/0.pbf?key=abc123"
	if got != want {
		t.Fatalf("FormatURL() = %q, want %q", got, want)
	}
}

func TestClientFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	defer srv.Close()

	c := NewClient(0, nil)
	data, err := c.Fetch(t.Context(), Request{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
		Ext:    "pbf",
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "tile-bytes" {
		t.Fatalf("Fetch() = %q, want %q", data, "tile-bytes")
	}
}

func TestClientFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(0, nil)
	_, err := c.Fetch(t.Context(), Request{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
		Ext:    "pbf",
	})
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestClientFetchUsesDiskCache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("cached"))
	}))
	defer srv.Close()

	cache, err := NewDiskCache(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	c := NewClient(0, cache)
	req := Request{
		Coords: coords.WorldTileCoords{X: 0, Y: 0, Z: 0},
		URL:    srv.URL + "/{z}/{x}/{y}.{ext}",
		Ext:    "pbf",
	}

	if _, err := c.Fetch(t.Context(), req); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if _, err := c.Fetch(t.Context(), req); err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected 1 upstream request, got %d", hits)
	}
}
