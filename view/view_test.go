package view

import (
	"math"
	"testing"

	"github.com/gogpu/maptile/coords"
)

func TestChangeObserverThreshold(t *testing.T) {
	obs := NewChangeObserver(0.0, func(a, b float64) float64 { return math.Abs(a - b) })
	if obs.DidChange(1e-3) {
		t.Fatalf("fresh observer should report no change")
	}
	obs.Set(0.01)
	if obs.DidChange(0.05) {
		t.Fatalf("small delta should be below threshold")
	}
	obs.Set(1.0)
	if !obs.DidChange(0.05) {
		t.Fatalf("large delta should exceed threshold")
	}
	obs.UpdateReferences()
	if obs.DidChange(0.05) {
		t.Fatalf("UpdateReferences should reset the baseline")
	}
}

func TestViewStateCameraZoomChange(t *testing.T) {
	vs := NewViewState(800, 600)
	if vs.DidCameraChange() || vs.DidZoomChange() {
		t.Fatalf("fresh view state should report no change")
	}

	vs.CameraMut(func(c *Camera) { c.X += 1 })
	if !vs.DidCameraChange() {
		t.Fatalf("camera move should be detected")
	}
	vs.UpdateReferences()
	if vs.DidCameraChange() {
		t.Fatalf("UpdateReferences should clear the camera change flag")
	}

	vs.UpdateZoom(coords.Zoom(1))
	if !vs.DidZoomChange() {
		t.Fatalf("zoom change should be detected")
	}
}

func TestCreateViewRegionLooksStraightDown(t *testing.T) {
	vs := NewViewState(800, 600)
	region, ok := vs.CreateViewRegion(0)
	if !ok {
		t.Fatalf("expected a view region looking straight down")
	}
	if region.AABB.MinX >= region.AABB.MaxX || region.AABB.MinY >= region.AABB.MaxY {
		t.Fatalf("expected a non-degenerate AABB, got %+v", region.AABB)
	}
}

func TestCreateViewRegionFailsLookingSideways(t *testing.T) {
	vs := NewViewState(800, 600)
	vs.CameraMut(func(c *Camera) { c.Pitch = math.Pi / 2 })
	if _, ok := vs.CreateViewRegion(0); ok {
		t.Fatalf("expected no view region when looking along the ground plane")
	}
}

func TestResizeUpdatesAspectRatio(t *testing.T) {
	vs := NewViewState(800, 600)
	vs.Resize(1600, 900)
	if vs.perspective.AspectRatio != 1600.0/900.0 {
		t.Fatalf("expected aspect ratio to update, got %f", vs.perspective.AspectRatio)
	}
}
