package pager

import (
	"container/list"
	"sync"

	"github.com/sphildreth/decentdb-sub007/internal/pageformat"
)

// numShards is the shard count for the page cache. Generalizes the
// teacher's single container/list LRU (btree/pager.go's cache/lru/lruMap
// trio) into spec.md §4.2's sharded design: "shard index =
// splitmix64(pageId) mod N_shards".
const numShards = 16

// splitmix64 is the shard-selection hash named in spec.md §4.2.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func shardFor(id pageformat.PageID) int {
	return int(splitmix64(uint64(id)) % numShards)
}

// cacheEntry mirrors the teacher's lruEntry plus the actual page buffer
// and dirty/WAL-location bookkeeping spec.md §4.2 requires: a dirty page
// flushed through the WAL under memory pressure still needs to be found
// by future reads before commit.
type cacheEntry struct {
	id        pageformat.PageID
	data      []byte
	dirty     bool
	walLSN    uint64 // 0 if not flushed to WAL
	elem      *list.Element
}

// shard is one independently-locked slice of the page cache.
type shard struct {
	mu      sync.Mutex
	entries map[pageformat.PageID]*cacheEntry
	lru     *list.List
}

func newShard() *shard {
	return &shard{
		entries: make(map[pageformat.PageID]*cacheEntry),
		lru:     list.New(),
	}
}

// cache is the sharded LRU page cache of spec.md §4.2.
type cache struct {
	shards    [numShards]*shard
	capacity  int // total pages across all shards
}

func newCache(capacityPages int) *cache {
	c := &cache{capacity: capacityPages}
	for i := range c.shards {
		c.shards[i] = newShard()
	}
	return c
}

func (c *cache) shardFor(id pageformat.PageID) *shard {
	return c.shards[shardFor(id)]
}

func (c *cache) perShardCapacity() int {
	cap := c.capacity / numShards
	if cap < 1 {
		cap = 1
	}
	return cap
}

// get returns the cached entry for id and bumps its LRU position, or nil
// if absent.
func (c *cache) get(id pageformat.PageID) *cacheEntry {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	s.lru.MoveToFront(e.elem)
	return e
}

// put inserts or replaces the cached entry for id, evicting a clean LRU
// victim if the shard is full. evictFlush is invoked (outside the shard
// lock having been dropped by the caller contract: evictFlush MUST NOT
// re-enter the cache) when a dirty page needs to go through the WAL
// before it can be evicted; if evictFlush returns false no dirty page is
// evicted and the shard is allowed to grow by one over capacity rather
// than block forever (matches spec.md §4.2: dirty pages are never
// evicted during an uncommitted transaction unless flushed through the
// WAL).
func (c *cache) put(id pageformat.PageID, data []byte, evictFlush func(victim *cacheEntry) bool) *cacheEntry {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok {
		existing.data = data
		s.lru.MoveToFront(existing.elem)
		return existing
	}

	if s.lru.Len() >= c.perShardCapacity() {
		c.evictLocked(s, evictFlush)
	}

	e := &cacheEntry{id: id, data: data}
	e.elem = s.lru.PushFront(e)
	s.entries[id] = e
	return e
}

// evictLocked scans from the back of the LRU list for a clean page to
// evict, flushing at most one dirty page through evictFlush if every
// candidate up to a small scan horizon is dirty.
func (c *cache) evictLocked(s *shard, evictFlush func(victim *cacheEntry) bool) {
	const scanHorizon = 8
	elem := s.lru.Back()
	for i := 0; elem != nil && i < scanHorizon; i, elem = i+1, elem.Prev() {
		victim := elem.Value.(*cacheEntry)
		if !victim.dirty {
			delete(s.entries, victim.id)
			s.lru.Remove(elem)
			return
		}
	}
	// Every candidate we looked at is dirty: flush the single
	// least-recently-used one through the WAL, then evict it.
	elem = s.lru.Back()
	if elem == nil {
		return
	}
	victim := elem.Value.(*cacheEntry)
	if evictFlush != nil && evictFlush(victim) {
		victim.dirty = false
		delete(s.entries, victim.id)
		s.lru.Remove(elem)
	}
	// If evictFlush couldn't flush (no WAL attached), we let the shard
	// grow past capacity rather than drop an uncommitted dirty page.
}

// markDirty flags id as dirty and records its WAL location (0 when it
// has not been flushed through the WAL).
func (c *cache) markDirty(id pageformat.PageID, walLSN uint64) {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.dirty = true
		e.walLSN = walLSN
	}
}

// clearDirty unmarks id as dirty, used after a checkpoint writes the
// page's authoritative image back to the main file.
func (c *cache) clearDirty(id pageformat.PageID) {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.dirty = false
		e.walLSN = 0
	}
}

// invalidate drops id from cache entirely, forcing the next read to hit
// the file (used after checkpoint copies a WAL image into the main file,
// spec.md §4.2).
func (c *cache) invalidate(id pageformat.PageID) {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		s.lru.Remove(e.elem)
		delete(s.entries, id)
	}
}

// forEachDirty calls fn for every currently-dirty page across all shards.
// Used by Flush/Close/checkpoint scans.
func (c *cache) forEachDirty(fn func(e *cacheEntry)) {
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.dirty {
				fn(e)
			}
		}
		s.mu.Unlock()
	}
}
