// Package bufferpool implements the ring-allocated GPU vertex/index
// buffer pool with LRU eviction: a single large backing buffer per kind
// (vertex, index, layer-metadata, feature-metadata), addressed by
// IndexEntry ranges and reclaimed oldest-first when new data no longer
// fits.
package bufferpool

import (
	"errors"
	"fmt"

	"github.com/gogpu/maptile/coords"
	"github.com/gogpu/maptile/internal/lru"
)

// CopyBufferAlignment is the byte alignment every sub-buffer range must
// satisfy, matching the GPU copy-buffer alignment constraint.
const CopyBufferAlignment = 4

// ErrOverflow is returned when, even after evicting every entry, a new
// allocation still would not fit in the backing buffer. This is a hard,
// propagated error; the caller (Upload system) skips the affected layer
// for this frame rather than crashing.
var ErrOverflow = errors.New("bufferpool: allocation exceeds buffer capacity after full eviction")

// Range is a half-open byte range [Start, End) within one sub-buffer.
type Range struct {
	Start, End uint64
}

func (r Range) Len() uint64 { return r.End - r.Start }

// IndexEntry records one uploaded layer's sub-ranges across the four
// backing buffers, plus the real (unpadded) index count.
type IndexEntry struct {
	Coords        coords.WorldTileCoords
	StyleLayer    string
	Vertices      Range
	Indices       Range
	LayerMeta     Range
	FeatureMeta   Range
	UsableIndices uint32
}

// ring treats a single fixed-capacity byte arena as a circular allocator:
// new spans are placed at the write cursor, the oldest live span starts at
// the read cursor, and eviction advances the read cursor span by span.
// Live spans never move, so ranges handed out stay valid (and so do the
// GPU bytes behind them) until their entry is evicted.
type ring struct {
	capacity uint64
	// entries, in LRU order (front = most recently allocated, tail =
	// oldest; eviction pops the tail).
	order *lru.List[uint64]
	spans map[uint64]Range
	next  uint64 // id counter
	head  uint64 // start offset of the oldest live span
	tail  uint64 // one past the newest live span's end
}

func newRing(capacity uint64) *ring {
	return &ring{
		capacity: capacity,
		order:    lru.New[uint64](),
		spans:    make(map[uint64]Range),
	}
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// allocate reserves a byte range of size n (aligned up to
// CopyBufferAlignment), evicting oldest entries via evictOldest until a
// contiguous span fits. An allocation that would cross the end of the
// arena wraps to offset 0 instead, leaving the end gap unused until the
// spans before it are evicted.
func (r *ring) allocate(n uint64, evict func(id uint64)) (Range, uint64, error) {
	n = alignUp(n, CopyBufferAlignment)
	if n > r.capacity {
		return Range{}, 0, ErrOverflow
	}

	for {
		start, ok := r.fit(n)
		if ok {
			rng := Range{Start: start, End: start + n}
			r.tail = rng.End
			id := r.next
			r.next++
			r.spans[id] = rng
			r.order.PushFront(id)
			return rng, id, nil
		}
		if !r.evictOldest(evict) {
			return Range{}, 0, ErrOverflow
		}
	}
}

// fit returns the start offset of a free contiguous span of length n, or
// false if none exists at the current head/tail positions.
func (r *ring) fit(n uint64) (uint64, bool) {
	if r.order.Len() == 0 {
		r.head, r.tail = 0, 0
		return 0, true
	}
	if r.tail > r.head {
		// Live data sits in [head, tail); free space is the end gap
		// plus the prefix before head.
		if r.capacity-r.tail >= n {
			return r.tail, true
		}
		if r.head >= n {
			return 0, true
		}
		return 0, false
	}
	// Wrapped: free space is the single gap [tail, head).
	if r.head-r.tail >= n {
		return r.tail, true
	}
	return 0, false
}

// evictOldest removes the least-recently-used span, invokes evict with its
// id so the pool can drop the matching IndexEntry, and advances head to
// the next-oldest span's start (skipping any wasted end gap).
func (r *ring) evictOldest(evict func(id uint64)) bool {
	oldest, ok := r.order.RemoveOldest()
	if !ok {
		return false
	}
	delete(r.spans, oldest)
	evict(oldest)

	if next, ok := r.order.Oldest(); ok {
		r.head = r.spans[next].Start
	} else {
		r.head, r.tail = 0, 0
	}
	return true
}

// Pool backs the four GPU sub-buffers (vertex, index, layer-metadata,
// feature-metadata) as independent rings sharing one Quadkey-indexed
// table of IndexEntry values.
type Pool struct {
	vertices    *ring
	indices     *ring
	layerMeta   *ring
	featureMeta *ring

	// index maps each tile to every layer uploaded for it, in upload
	// order.
	index map[coords.Quadkey][]entryHandle
}

type entryHandle struct {
	entry                                    IndexEntry
	vertID, indexID, layerMetaID, featMetaID uint64
}

// Sizes bundles the four backing-buffer capacities used to construct a
// Pool, one per sub-buffer kind.
type Sizes struct {
	Vertices, Indices, LayerMetadata, FeatureMetadata uint64
}

// New creates an empty Pool with the given per-kind capacities.
func New(sizes Sizes) *Pool {
	return &Pool{
		vertices:    newRing(sizes.Vertices),
		indices:     newRing(sizes.Indices),
		layerMeta:   newRing(sizes.LayerMetadata),
		featureMeta: newRing(sizes.FeatureMetadata),
		index:       make(map[coords.Quadkey][]entryHandle),
	}
}

// Allocate reserves space for one layer's four sub-buffers and records an
// IndexEntry for it, evicting the least-recently-used entries (across
// whichever ring runs out of room) until everything fits. It returns
// ErrOverflow if, even after evicting every entry in the relevant ring(s),
// the new data still does not fit.
func (p *Pool) Allocate(c coords.WorldTileCoords, styleLayer string, vertices, indices, layerMeta, featureMeta []byte, usableIndices uint32) (IndexEntry, error) {
	key, ok := c.BuildQuadKey()
	if !ok {
		return IndexEntry{}, fmt.Errorf("bufferpool: coords %v have no quadkey", c)
	}

	vertRange, vertID, err := p.vertices.allocate(uint64(len(vertices)), func(id uint64) {
		p.removeByRingID(func(h *entryHandle) bool { return h.vertID == id })
	})
	if err != nil {
		return IndexEntry{}, err
	}
	idxRange, idxID, err := p.indices.allocate(uint64(len(indices)), func(id uint64) {
		p.removeByRingID(func(h *entryHandle) bool { return h.indexID == id })
	})
	if err != nil {
		return IndexEntry{}, err
	}
	lmRange, lmID, err := p.layerMeta.allocate(uint64(len(layerMeta)), func(id uint64) {
		p.removeByRingID(func(h *entryHandle) bool { return h.layerMetaID == id })
	})
	if err != nil {
		return IndexEntry{}, err
	}
	fmRange, fmID, err := p.featureMeta.allocate(uint64(len(featureMeta)), func(id uint64) {
		p.removeByRingID(func(h *entryHandle) bool { return h.featMetaID == id })
	})
	if err != nil {
		return IndexEntry{}, err
	}

	entry := IndexEntry{
		Coords:        c,
		StyleLayer:    styleLayer,
		Vertices:      vertRange,
		Indices:       idxRange,
		LayerMeta:     lmRange,
		FeatureMeta:   fmRange,
		UsableIndices: usableIndices,
	}
	p.index[key] = append(p.index[key], entryHandle{entry: entry, vertID: vertID, indexID: idxID, layerMetaID: lmID, featMetaID: fmID})
	return entry, nil
}

// removeByRingID deletes the index-table entry identified by match from
// every tile's layer list, keeping the table consistent with the ring
// that just evicted it.
func (p *Pool) removeByRingID(match func(*entryHandle) bool) {
	for key, handles := range p.index {
		kept := handles[:0]
		for i := range handles {
			if !match(&handles[i]) {
				kept = append(kept, handles[i])
			}
		}
		if len(kept) == 0 {
			delete(p.index, key)
		} else {
			p.index[key] = kept
		}
	}
}

// GetLayers returns every IndexEntry uploaded for c, or false if none
// exist.
func (p *Pool) GetLayers(c coords.WorldTileCoords) ([]IndexEntry, bool) {
	key, ok := c.BuildQuadKey()
	if !ok {
		return nil, false
	}
	handles, ok := p.index[key]
	if !ok || len(handles) == 0 {
		return nil, false
	}
	out := make([]IndexEntry, len(handles))
	for i, h := range handles {
		out[i] = h.entry
	}
	return out, true
}

// GetLoadedSourceLayersAt returns the set of style-layer names uploaded
// for c.
func (p *Pool) GetLoadedSourceLayersAt(c coords.WorldTileCoords) (map[string]struct{}, bool) {
	layers, ok := p.GetLayers(c)
	if !ok {
		return nil, false
	}
	out := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		out[l.StyleLayer] = struct{}{}
	}
	return out, true
}

// Clear empties every ring and the index table, e.g. on style
// reconfiguration.
func (p *Pool) Clear() {
	p.vertices = newRing(p.vertices.capacity)
	p.indices = newRing(p.indices.capacity)
	p.layerMeta = newRing(p.layerMeta.capacity)
	p.featureMeta = newRing(p.featureMeta.capacity)
	clear(p.index)
}
