package source

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/maptile/internal/lru"
)

// DiskCache is an LRU-bounded on-disk byte cache keyed by tile URL. It
// reuses the same eviction list as the buffer pool
// (internal/lru), here tracking files instead of byte ranges.
type DiskCache struct {
	dir      string
	maxBytes int64

	mu       sync.Mutex
	list     *lru.List[string]
	nodes    map[string]*lru.Node[string]
	sizes    map[string]int64
	curBytes int64
}

// NewDiskCache creates a cache rooted at dir, evicting least-recently-used
// entries once the total cached size would exceed maxBytes. The directory
// is created if absent; an error here is non-fatal to the caller, which
// may simply run without a cache.
func NewDiskCache(dir string, maxBytes int64) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{
		dir:      dir,
		maxBytes: maxBytes,
		list:     lru.New[string](),
		nodes:    make(map[string]*lru.Node[string]),
		sizes:    make(map[string]int64),
	}, nil
}

func (c *DiskCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".tile")
}

// Get returns the cached bytes for key, marking it most-recently-used.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	node, ok := c.nodes[key]
	if ok {
		c.list.MoveToFront(node)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key, evicting least-recently-used entries until
// the cache fits within maxBytes.
func (c *DiskCache) Put(key string, data []byte) {
	if err := os.WriteFile(c.pathFor(key), data, 0o644); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.nodes[key]; ok {
		c.curBytes -= c.sizes[key]
		c.list.MoveToFront(node)
	} else {
		c.nodes[key] = c.list.PushFront(key)
	}
	c.sizes[key] = int64(len(data))
	c.curBytes += int64(len(data))

	for c.maxBytes > 0 && c.curBytes > c.maxBytes {
		oldest, ok := c.list.RemoveOldest()
		if !ok {
			break
		}
		delete(c.nodes, oldest)
		c.curBytes -= c.sizes[oldest]
		delete(c.sizes, oldest)
		_ = os.Remove(c.pathFor(oldest))
	}
}
