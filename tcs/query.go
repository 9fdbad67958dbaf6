package tcs

import "github.com/gogpu/maptile/coords"

// Query1 finds the single component of type A at c. Read-only queries
// never conflict with each other, so no aliasing check is performed.
func Query1[A any](t *Tiles, c coords.WorldTileCoords) (*A, bool) {
	return findComponent[A](t, c)
}

// Query2 finds components A and B at c, returning false if either is
// absent or c is unpositioned.
func Query2[A, B any](t *Tiles, c coords.WorldTileCoords) (*A, *B, bool) {
	a, ok := findComponent[A](t, c)
	if !ok {
		return nil, nil, false
	}
	b, ok := findComponent[B](t, c)
	if !ok {
		return nil, nil, false
	}
	return a, b, true
}

// Query3 finds components A, B, C at c.
func Query3[A, B, C any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, bool) {
	a, ok := findComponent[A](t, c)
	if !ok {
		return nil, nil, nil, false
	}
	b, ok := findComponent[B](t, c)
	if !ok {
		return nil, nil, nil, false
	}
	cc, ok := findComponent[C](t, c)
	if !ok {
		return nil, nil, nil, false
	}
	return a, b, cc, true
}

// Query4 finds components A, B, C, D at c.
func Query4[A, B, C, D any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, *D, bool) {
	a, b, cc, ok := Query3[A, B, C](t, c)
	if !ok {
		return nil, nil, nil, nil, false
	}
	d, ok := findComponent[D](t, c)
	if !ok {
		return nil, nil, nil, nil, false
	}
	return a, b, cc, d, true
}

// Query5 finds components A, B, C, D, E at c.
func Query5[A, B, C, D, E any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, *D, *E, bool) {
	a, b, cc, d, ok := Query4[A, B, C, D](t, c)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	e, ok := findComponent[E](t, c)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	return a, b, cc, d, e, true
}

// Query6 finds components A, B, C, D, E, F at c — the widest supported
// tuple query.
func Query6[A, B, C, D, E, F any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, *D, *E, *F, bool) {
	a, b, cc, d, e, ok := Query5[A, B, C, D, E](t, c)
	if !ok {
		return nil, nil, nil, nil, nil, nil, false
	}
	f, ok := findComponent[F](t, c)
	if !ok {
		return nil, nil, nil, nil, nil, nil, false
	}
	return a, b, cc, d, e, f, true
}

// QueryMut1 mutably finds the single component of type A at c.
func QueryMut1[A any](t *Tiles, c coords.WorldTileCoords) (*A, bool) {
	return findComponent[A](t, c)
}

// QueryMut2 mutably finds components A and B at c. Panics if A and B are
// the same concrete type (see checkDisjoint).
func QueryMut2[A, B any](t *Tiles, c coords.WorldTileCoords) (*A, *B, bool) {
	checkDisjoint(typeOf[A](), typeOf[B]())
	return Query2[A, B](t, c)
}

// QueryMut3 mutably finds components A, B, C at c.
func QueryMut3[A, B, C any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C]())
	return Query3[A, B, C](t, c)
}

// QueryMut4 mutably finds components A, B, C, D at c.
func QueryMut4[A, B, C, D any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, *D, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D]())
	return Query4[A, B, C, D](t, c)
}

// QueryMut5 mutably finds components A, B, C, D, E at c.
func QueryMut5[A, B, C, D, E any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, *D, *E, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D](), typeOf[E]())
	return Query5[A, B, C, D, E](t, c)
}

// QueryMut6 mutably finds components A, B, C, D, E, F at c — the widest
// supported tuple query.
func QueryMut6[A, B, C, D, E, F any](t *Tiles, c coords.WorldTileCoords) (*A, *B, *C, *D, *E, *F, bool) {
	checkDisjoint(typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D](), typeOf[E](), typeOf[F]())
	return Query6[A, B, C, D, E, F](t, c)
}
