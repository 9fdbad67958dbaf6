package coords

// stencilZoomBuckets (K) and stencilSlotsPerBucket (M) partition the 8-bit
// stencil reference space: reference = (z mod K) * M + local_index. With a
// single bucket the formula degenerates to the local index alone, which is
// exactly right here: every target tile in a frame sits at one zoom level,
// so splitting the space by zoom only shrinks the per-frame budget.
// Reference 0 is never handed out: the stencil attachment clears to 0, and
// a tile stamped 0 would pass the EQUAL test across the whole uncovered
// target. That leaves 255 usable references per frame, comfortably above
// the default view-region cap.
const (
	stencilZoomBuckets    = 1
	stencilSlotsPerBucket = 256
)

// StencilAssigner hands out unique per-frame stencil reference values. A
// single assigner is used to build the stencil references for every
// target shape drawn in one frame, then Reset before the next frame.
type StencilAssigner struct {
	counts [stencilZoomBuckets]int
}

// NewStencilAssigner creates an assigner ready for a fresh frame.
func NewStencilAssigner() *StencilAssigner {
	return &StencilAssigner{}
}

// Reset clears per-bucket counters for a new frame.
func (a *StencilAssigner) Reset() {
	for i := range a.counts {
		a.counts[i] = 0
	}
}

// Assign returns the next unique stencil reference in [1, 255] for a tile
// at zoom level z, or false if the bucket for z has exhausted its slots.
func (a *StencilAssigner) Assign(z ZoomLevel) (uint8, bool) {
	bucket := int(z) % stencilZoomBuckets
	// Skip reference 0, the stencil clear value.
	local := a.counts[bucket] + 1
	if local >= stencilSlotsPerBucket {
		return 0, false
	}
	a.counts[bucket]++
	return uint8(bucket*stencilSlotsPerBucket + local), true
}

// StencilReferenceValue3D computes the bucket/local-index formula directly
// from a caller-assigned local index, for callers (tests, render graph
// code) that already know the tile's position within the frame's visible
// set.
func (c WorldTileCoords) StencilReferenceValue3D(localIndex int) uint8 {
	bucket := int(c.Z) % stencilZoomBuckets
	return uint8(bucket*stencilSlotsPerBucket + localIndex%stencilSlotsPerBucket)
}
