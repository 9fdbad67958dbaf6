// Package view implements the camera/perspective/zoom state that drives
// each frame's view region, plus change observation used to decide
// whether the tile request systems have new work to do.
package view

import (
	"math"

	"github.com/gogpu/maptile/coords"
)

// cameraChangeThreshold and zoomChangeThreshold are the minimum deltas (in screen units or zoom levels)
// that counts as a meaningful change.
const (
	cameraChangeThreshold = 5e-2
	zoomChangeThreshold   = 5e-2
)

// ChangeObserver wraps a value of type T with a remembered reference
// value, reporting whether the current value has drifted from the
// reference by more than a threshold. Systems call UpdateReferences once
// they have acted on a change so the next frame starts from a clean
// baseline.
type ChangeObserver[T any] struct {
	current   T
	reference T
	distance  func(a, b T) float64
}

// NewChangeObserver creates an observer seeded with an initial value and
// the distance function used to compare current vs. reference.
func NewChangeObserver[T any](initial T, distance func(a, b T) float64) ChangeObserver[T] {
	return ChangeObserver[T]{current: initial, reference: initial, distance: distance}
}

// Get returns the current value.
func (o *ChangeObserver[T]) Get() T { return o.current }

// Set replaces the current value without touching the reference.
func (o *ChangeObserver[T]) Set(v T) { o.current = v }

// DidChange reports whether the current value differs from the reference
// by more than threshold.
func (o *ChangeObserver[T]) DidChange(threshold float64) bool {
	return o.distance(o.current, o.reference) > threshold
}

// UpdateReferences promotes the current value to the reference value.
func (o *ChangeObserver[T]) UpdateReferences() {
	o.reference = o.current
}

// Camera is the eye position and orientation in tile-space world units.
type Camera struct {
	X, Y, Z float64
	Yaw     float64
	Pitch   float64
	Roll    float64
}

func cameraDistance(a, b Camera) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	dYaw, dPitch, dRoll := a.Yaw-b.Yaw, a.Pitch-b.Pitch, a.Roll-b.Roll
	return math.Sqrt(dx*dx + dy*dy + dz*dz + dYaw*dYaw + dPitch*dPitch + dRoll*dRoll)
}

// Perspective holds the projection parameters. Near/far are fixed in
// tile-space units.
type Perspective struct {
	Fovy        float64
	AspectRatio float64
	Near        float64
	Far         float64
}

// DefaultPerspective returns a perspective with the fixed near/far
// planes and a 45 degree vertical field of view.
func DefaultPerspective(aspect float64) Perspective {
	return Perspective{
		Fovy:        math.Pi / 4,
		AspectRatio: aspect,
		Near:        1024,
		Far:         2048,
	}
}

// ViewState bundles the camera, perspective, and zoom, each guarded by a
// ChangeObserver, plus the viewport size used to build view regions.
type ViewState struct {
	camera      ChangeObserver[Camera]
	perspective Perspective
	zoom        ChangeObserver[coords.Zoom]

	width, height float64
}

// NewViewState creates a view state at the origin, zoom 0, for a surface
// of the given pixel size.
func NewViewState(width, height float64) *ViewState {
	vs := &ViewState{
		camera:      NewChangeObserver(Camera{Z: coords.TileSize}, cameraDistance),
		perspective: DefaultPerspective(width / height),
		zoom:        NewChangeObserver[coords.Zoom](0, func(a, b coords.Zoom) float64 { return math.Abs(float64(a - b)) }),
		width:       width,
		height:      height,
	}
	return vs
}

// Resize updates the surface size and the perspective's aspect ratio.
func (v *ViewState) Resize(width, height float64) {
	v.width, v.height = width, height
	if height != 0 {
		v.perspective.AspectRatio = width / height
	}
}

// Camera returns a copy of the current camera state.
func (v *ViewState) Camera() Camera { return v.camera.Get() }

// CameraMut applies fn to a copy of the camera and stores the result,
// giving callers mutable access without exposing an internal pointer that
// could be retained across frames.
func (v *ViewState) CameraMut(fn func(*Camera)) {
	c := v.camera.Get()
	fn(&c)
	v.camera.Set(c)
}

// Zoom returns the current continuous zoom.
func (v *ViewState) Zoom() coords.Zoom { return v.zoom.Get() }

// UpdateZoom sets the continuous zoom directly.
func (v *ViewState) UpdateZoom(z coords.Zoom) { v.zoom.Set(z) }

// DidCameraChange reports whether the camera moved more than the
// camera-change threshold since the last UpdateReferences call.
func (v *ViewState) DidCameraChange() bool { return v.camera.DidChange(cameraChangeThreshold) }

// DidZoomChange reports whether the zoom moved more than the
// zoom-change threshold since the last UpdateReferences call.
func (v *ViewState) DidZoomChange() bool { return v.zoom.DidChange(zoomChangeThreshold) }

// UpdateReferences promotes the camera and zoom current values to their
// reference values, typically called once per frame after Request systems
// have reacted to any change.
func (v *ViewState) UpdateReferences() {
	v.camera.UpdateReferences()
	v.zoom.UpdateReferences()
}

// ViewProjection builds the combined view-projection matrix for the
// current camera and perspective. This is a simplified look-down
// perspective projection adequate for the 2.5D slippy-map camera model:
// yaw/pitch orient the view, then a standard perspective matrix is
// applied.
func (v *ViewState) ViewProjection() coords.Mat4 {
	cam := v.camera.Get()
	view := lookAt(cam)
	proj := perspectiveMatrix(v.perspective)
	return proj.Multiply(view)
}

func lookAt(cam Camera) coords.Mat4 {
	cy, sy := math.Cos(cam.Yaw), math.Sin(cam.Yaw)
	cp, sp := math.Cos(cam.Pitch), math.Sin(cam.Pitch)

	rotYaw := coords.Mat4{
		cy, 0, sy, 0,
		0, 1, 0, 0,
		-sy, 0, cy, 0,
		0, 0, 0, 1,
	}
	rotPitch := coords.Mat4{
		1, 0, 0, 0,
		0, cp, -sp, 0,
		0, sp, cp, 0,
		0, 0, 0, 1,
	}
	rot := rotPitch.Multiply(rotYaw)
	return rot.Multiply(coords.Translation(-cam.X, -cam.Y, -cam.Z))
}

func perspectiveMatrix(p Perspective) coords.Mat4 {
	f := 1 / math.Tan(p.Fovy/2)
	rangeInv := 1 / (p.Near - p.Far)
	return coords.Mat4{
		f / p.AspectRatio, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (p.Near + p.Far) * rangeInv, 2 * p.Near * p.Far * rangeInv,
		0, 0, -1, 0,
	}
}

// CreateViewRegion projects the current camera frustum onto the ground
// plane (z=0 in tile-space) and builds a ViewRegion at the requested
// integer zoom level. It returns false if no AABB can be projected, e.g.
// the camera looks away from the ground plane entirely.
func (v *ViewState) CreateViewRegion(level coords.ZoomLevel) (coords.ViewRegion, bool) {
	cam := v.camera.Get()
	if cam.Pitch >= math.Pi/2-1e-6 || cam.Pitch <= -math.Pi/2+1e-6 {
		return coords.ViewRegion{}, false
	}

	// Half-extents of the ground footprint visible at the camera's
	// height, derived from the vertical FOV and aspect ratio.
	halfHeight := cam.Z * math.Tan(v.perspective.Fovy/2)
	halfWidth := halfHeight * v.perspective.AspectRatio
	if halfWidth <= 0 || halfHeight <= 0 || math.IsInf(halfWidth, 0) || math.IsInf(halfHeight, 0) {
		return coords.ViewRegion{}, false
	}

	aabb := coords.AABB{
		MinX: cam.X - halfWidth,
		MaxX: cam.X + halfWidth,
		MinY: cam.Y - halfHeight,
		MaxY: cam.Y + halfHeight,
	}
	return coords.NewViewRegion(aabb, v.zoom.Get(), level), true
}
