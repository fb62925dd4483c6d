// Package blockcache implements a bounded block cache: a fixed-capacity set
// of 512-byte frames over a blockdev.Device, with scoped read/modify access,
// dirty tracking, and LRU eviction. The Insert/Erase/LookUp-with-
// CheckInvariants cache shape is generalized here to frames keyed by block
// id rather than arbitrary cache entries.
package blockcache

import (
	"container/list"
	"sync"

	"github.com/oslab/easykernel/internal/blockdev"
	"github.com/oslab/easykernel/internal/metrics"
)

// DefaultCapacity is the minimum frame count that keeps a typical
// directory-compaction workload from thrashing.
const DefaultCapacity = 16

// Frame is an in-memory cached copy of one 512-byte disk block.
type Frame struct {
	blockID uint64
	mu      sync.Mutex // guards buf and dirty during the callback region
	buf     [blockdev.BlockSize]byte
	dirty   bool
	pinned  int
}

// Read invokes f with a read-only view into the frame's buffer at offset.
func (fr *Frame) Read(offset int, f func(buf []byte)) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	f(fr.buf[offset:])
}

// Modify invokes f with a mutable view into the frame's buffer at offset
// and marks the frame dirty.
func (fr *Frame) Modify(offset int, f func(buf []byte)) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	f(fr.buf[offset:])
	fr.dirty = true
}

// Cache is a fixed-capacity LRU cache of Frames over a block device.
// Concurrent callers serialize at frame granularity: one mutex guards frame
// admission/eviction bookkeeping, and each Frame has its own mutex guarding
// its callback region (locking order: cache-mutex → frame-mutex).
type Cache struct {
	mu       sync.Mutex
	dev      blockdev.Device
	capacity int
	frames   map[uint64]*list.Element // block id -> element in lru
	lru      *list.List               // front = most recently used
	metrics  metrics.Handle
}

type lruEntry struct {
	blockID uint64
	frame   *Frame
}

// New creates a Cache with the given capacity over dev.
func New(dev blockdev.Device, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		dev:      dev,
		capacity: capacity,
		frames:   make(map[uint64]*list.Element, capacity),
		lru:      list.New(),
		metrics:  metrics.NewNoopMetrics(),
	}
}

// SetMetrics swaps in a non-noop metrics handle.
func (c *Cache) SetMetrics(m metrics.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Get returns the frame for blockID, loading it from the device and
// evicting an LRU victim if the cache is full. At most one frame per
// block id exists at a time.
func (c *Cache) Get(blockID uint64) *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.frames[blockID]; ok {
		c.lru.MoveToFront(elem)
		c.metrics.BlockCacheHit()
		return elem.Value.(*lruEntry).frame
	}
	c.metrics.BlockCacheMiss()

	if c.lru.Len() >= c.capacity {
		c.evictOneLocked()
	}

	fr := &Frame{blockID: blockID}
	if err := c.dev.ReadBlock(blockID, &fr.buf); err != nil {
		panic(err)
	}
	elem := c.lru.PushFront(&lruEntry{blockID: blockID, frame: fr})
	c.frames[blockID] = elem
	return fr
}

// evictOneLocked evicts the least-recently-used non-pinned frame, writing it
// back first if dirty. Called with c.mu held.
func (c *Cache) evictOneLocked() {
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*lruEntry)
		entry.frame.mu.Lock()
		pinned := entry.frame.pinned > 0
		entry.frame.mu.Unlock()
		if pinned {
			continue
		}

		c.writeBackLocked(entry.frame)
		c.lru.Remove(e)
		delete(c.frames, entry.blockID)
		c.metrics.BlockCacheEviction()
		return
	}
	// Every frame pinned: spec does not define behavior for this case in a
	// single-threaded teaching kernel; grow rather than corrupt state.
}

func (c *Cache) writeBackLocked(fr *Frame) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if !fr.dirty {
		return
	}
	if err := c.dev.WriteBlock(fr.blockID, &fr.buf); err != nil {
		panic(err)
	}
	fr.dirty = false
}

// SyncAll writes back every dirty frame currently resident in the cache.
func (c *Cache) SyncAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.lru.Front(); e != nil; e = e.Next() {
		c.writeBackLocked(e.Value.(*lruEntry).frame)
	}
}

// Len reports how many frames are currently resident, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CheckInvariants panics if the cache's bookkeeping is inconsistent: at most
// one frame per block id, and the frames map and lru list agree on
// membership.
func (c *Cache) CheckInvariants() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.frames) != c.lru.Len() {
		panic("blockcache: frames map and lru list disagree on size")
	}
	seen := make(map[uint64]bool, len(c.frames))
	for e := c.lru.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*lruEntry)
		if seen[entry.blockID] {
			panic("blockcache: duplicate frame for same block id")
		}
		seen[entry.blockID] = true
	}
}
