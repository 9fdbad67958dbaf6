// Package plugin defines the Plugin interface used to wire resources,
// systems, and render graph nodes into the kernel's schedule and draw
// subgraph, plus the canonical Vector/Raster/Debug/
// WriteSurfaceBuffer plugins.
package plugin

// EventuallyState tags which of Eventually[T]'s two states is current.
type EventuallyState int

const (
	// Uninitialized means no value has been built yet.
	Uninitialized EventuallyState = iota
	// Initialized means a value is present and current for its last-seen key.
	Initialized
)

// Eventually is a lazily-initialized, reinitializable slot: GPU objects
// (pipelines, surface views, textures) are not allocated until first
// needed, and are rebuilt when the caller-supplied key changes (e.g. a
// surface resize). Two states suffice since maptile's resources have no
// "pending" (asynchronous allocation) phase.
type Eventually[T any] struct {
	state EventuallyState
	key   any
	value T
}

// State returns the slot's current state.
func (e *Eventually[T]) State() EventuallyState { return e.state }

// Get returns the current value and whether the slot is initialized.
func (e *Eventually[T]) Get() (T, bool) {
	return e.value, e.state == Initialized
}

// GetOrInit returns the current value if it is initialized and key
// matches the last build key; otherwise it calls build(key), stores the
// result under key, and returns it. build is only called when the slot
// needs (re)building, matching the GPU resources' lazy/idempotent init
// discipline.
func (e *Eventually[T]) GetOrInit(key any, build func() (T, error)) (T, error) {
	if e.state == Initialized && e.key == key {
		return e.value, nil
	}
	v, err := build()
	if err != nil {
		var zero T
		return zero, err
	}
	e.value = v
	e.key = key
	e.state = Initialized
	return e.value, nil
}

// Reset clears the slot back to Uninitialized, e.g. on style reload.
func (e *Eventually[T]) Reset() {
	var zero T
	e.value = zero
	e.key = nil
	e.state = Uninitialized
}
