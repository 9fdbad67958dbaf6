// Package tcs implements the Tile Component Store: a small
// entity-component-resource world keyed by tile coordinates, plus a typed
// resource bag shared across systems.
package tcs

import "reflect"

// Resources is a typed bag holding exactly one instance per type. It backs
// globally shared state (GPU device handles, style data, buffer pools)
// that every system can reach without threading it through call chains.
//
// Resources is only ever touched from the main thread, so no internal
// locking is used.
type Resources struct {
	values map[reflect.Type]any
}

// NewResources creates an empty resource bag.
func NewResources() *Resources {
	return &Resources{values: make(map[reflect.Type]any)}
}

func resourceKey[R any]() reflect.Type {
	return reflect.TypeOf((*R)(nil)).Elem()
}

// InsertResource stores v as the Resources instance of type R, replacing
// any previous value of that type.
func InsertResource[R any](res *Resources, v R) {
	ptr := new(R)
	*ptr = v
	res.values[resourceKey[R]()] = ptr
}

// InitResource ensures a value of type R exists, creating its zero value
// if absent (Go has no Default trait; the zero value stands in for it).
func InitResource[R any](res *Resources) *R {
	if existing, ok := GetResource[R](res); ok {
		return existing
	}
	ptr := new(R)
	res.values[resourceKey[R]()] = ptr
	return ptr
}

// GetResource returns a pointer to the stored value of type R, or false if
// none has been inserted. The returned pointer may be used for both
// read-only and mutable access (Go has no borrow checker distinguishing
// the two).
func GetResource[R any](res *Resources) (*R, bool) {
	v, ok := res.values[resourceKey[R]()]
	if !ok {
		return nil, false
	}
	return v.(*R), true
}

// GetResourceMut is an alias for GetResource kept for callers that want to
// make a mutable intent explicit at the call site.
func GetResourceMut[R any](res *Resources) (*R, bool) {
	return GetResource[R](res)
}

// QueryResources2 finds the resources of types A and B, returning false
// if either is absent. Read-only resource queries never conflict, so no
// aliasing check is performed.
func QueryResources2[A, B any](res *Resources) (*A, *B, bool) {
	a, ok := GetResource[A](res)
	if !ok {
		return nil, nil, false
	}
	b, ok := GetResource[B](res)
	if !ok {
		return nil, nil, false
	}
	return a, b, true
}

// QueryResources3 finds the resources of types A, B, C.
func QueryResources3[A, B, C any](res *Resources) (*A, *B, *C, bool) {
	a, b, ok := QueryResources2[A, B](res)
	if !ok {
		return nil, nil, nil, false
	}
	c, ok := GetResource[C](res)
	if !ok {
		return nil, nil, nil, false
	}
	return a, b, c, true
}

// QueryResources4 finds the resources of types A, B, C, D.
func QueryResources4[A, B, C, D any](res *Resources) (*A, *B, *C, *D, bool) {
	a, b, c, ok := QueryResources3[A, B, C](res)
	if !ok {
		return nil, nil, nil, nil, false
	}
	d, ok := GetResource[D](res)
	if !ok {
		return nil, nil, nil, nil, false
	}
	return a, b, c, d, true
}

// QueryResources5 finds the resources of types A, B, C, D, E.
func QueryResources5[A, B, C, D, E any](res *Resources) (*A, *B, *C, *D, *E, bool) {
	a, b, c, d, ok := QueryResources4[A, B, C, D](res)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	e, ok := GetResource[E](res)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	return a, b, c, d, e, true
}

// QueryResources6 finds the resources of types A, B, C, D, E, F — the
// widest supported tuple query.
func QueryResources6[A, B, C, D, E, F any](res *Resources) (*A, *B, *C, *D, *E, *F, bool) {
	a, b, c, d, e, ok := QueryResources5[A, B, C, D, E](res)
	if !ok {
		return nil, nil, nil, nil, nil, nil, false
	}
	f, ok := GetResource[F](res)
	if !ok {
		return nil, nil, nil, nil, nil, nil, false
	}
	return a, b, c, d, e, f, true
}

// QueryResourcesMut2 mutably finds the resources of types A and B. Panics
// if A and B are the same concrete type: two pointers to one resource
// would let one caller's mutation silently clobber the other's.
func QueryResourcesMut2[A, B any](res *Resources) (*A, *B, bool) {
	checkDisjoint(typeOf[A](), typeOf[B]())
	return QueryResources2[A, B](res)
}

// QueryResourcesMut3 mutably finds the resources of types A, B, C.
func QueryResourcesMut3[A, B, C any](res *Resources) (*A, *B, *C, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C]())
	return QueryResources3[A, B, C](res)
}

// QueryResourcesMut4 mutably finds the resources of types A, B, C, D.
func QueryResourcesMut4[A, B, C, D any](res *Resources) (*A, *B, *C, *D, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D]())
	return QueryResources4[A, B, C, D](res)
}

// QueryResourcesMut5 mutably finds the resources of types A, B, C, D, E.
func QueryResourcesMut5[A, B, C, D, E any](res *Resources) (*A, *B, *C, *D, *E, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D](), typeOf[E]())
	return QueryResources5[A, B, C, D, E](res)
}

// QueryResourcesMut6 mutably finds the resources of types A, B, C, D, E,
// F — the widest supported tuple query.
func QueryResourcesMut6[A, B, C, D, E, F any](res *Resources) (*A, *B, *C, *D, *E, *F, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D](), typeOf[E](), typeOf[F]())
	return QueryResources6[A, B, C, D, E, F](res)
}

// RemoveResource deletes the stored value of type R, if any.
func RemoveResource[R any](res *Resources) {
	delete(res.values, resourceKey[R]())
}

// HasType reports whether a resource of the given reflect.Type has been
// inserted. Used by SystemContainer's declared-dependency check, which
// works in terms of reflect.Type rather than a generic parameter since a
// system's Requires list is built at registration time from multiple,
// unrelated resource types.
func (r *Resources) HasType(t reflect.Type) bool {
	_, ok := r.values[t]
	return ok
}

// TypeOf returns the reflect.Type key InsertResource/GetResource use for R,
// for building a SystemContainer's Requires list.
func TypeOf[R any]() reflect.Type {
	return resourceKey[R]()
}
