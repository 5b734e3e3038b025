// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the bounded artifact cache (spec component
// C6): a bytes-bounded LRU over FrameKey -> finished DNG bytes, with
// single-flight coalescing so concurrent lookups of an in-progress key
// share one build. Grounded on lib/artifactstore/cache.go's
// Get/Put/Stats shape (replacing its device-backed block ring with a
// plain in-memory LRU, since the spec's cache is in-memory only — see
// DESIGN.md) and lib/artifactstore/compress.go's LZ4 block-compression
// helpers for resident storage.
package cache

import (
	"container/list"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/motioncam/mcrawfs/lib/errs"
)

// Key identifies one cached artifact: a mount, an output frame index,
// and the fingerprint of the RenderSettings used to build it (spec
// §4.7).
type Key struct {
	MountID      string
	OutputIndex  int
	Fingerprint  [32]byte
}

// Stats reports current cache utilization.
type Stats struct {
	Entries   int
	UsedBytes int64
	CapBytes  int64
}

type entry struct {
	key        Key
	compressed []byte
	rawSize    int
}

// buildState tracks an in-progress or completed build for single-flight
// coalescing: concurrent Get calls for the same key that misses attach
// to done and read result/err once it closes.
type buildState struct {
	done   chan struct{}
	result []byte
	err    error
}

// Cache is a bytes-bounded LRU keyed by Key, storing LZ4-compressed
// blobs. Get always returns the original uncompressed bytes.
type Cache struct {
	mu        sync.Mutex
	capBytes  int64
	used      int64
	order     *list.List // list of *entry, front = most recently used
	index     map[Key]*list.Element
	inflight  map[Key]*buildState
}

// New creates a Cache bounded to capBytes of compressed storage.
func New(capBytes int64) *Cache {
	return &Cache{
		capBytes: capBytes,
		order:    list.New(),
		index:    make(map[Key]*list.Element),
		inflight: make(map[Key]*buildState),
	}
}

// Get returns the cached bytes for key, if present, promoting it to
// most-recently-used.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	elem, ok := c.index[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	c.order.MoveToFront(elem)
	e := elem.Value.(*entry)
	c.mu.Unlock()

	raw, err := decompress(e.compressed, e.rawSize)
	if err != nil {
		// Corrupt resident entry: drop it and report a miss rather
		// than returning garbage.
		c.mu.Lock()
		c.removeLocked(key)
		c.mu.Unlock()
		return nil, false
	}
	return raw, true
}

// GetOrBuild implements the single-flight lookup-or-build path: if key
// is already cached, its bytes are returned immediately. If a build
// for key is already in flight, the caller blocks on its completion
// and shares the result. Otherwise build runs and its result is
// published to other concurrent callers and inserted into the cache.
func (c *Cache) GetOrBuild(key Key, build func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}

	c.mu.Lock()
	if state, inflight := c.inflight[key]; inflight {
		c.mu.Unlock()
		<-state.done
		return state.result, state.err
	}

	state := &buildState{done: make(chan struct{})}
	c.inflight[key] = state
	c.mu.Unlock()

	data, err := build()

	// Insert before leaving the in-flight map, so a caller arriving in
	// between finds the key either cached or in flight, never neither.
	if err == nil {
		c.Insert(key, data)
	}

	state.result, state.err = data, err
	close(state.done)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return data, nil
}

// Insert stores data under key, evicting least-recently-used entries
// until there is room. Sizes are measured as stored (LZ4-compressed,
// or raw when incompressible): an artifact whose stored size exceeds
// the entire cap is served uncached (spec §4.7), and Insert is then a
// silent no-op.
func (c *Cache) Insert(key Key, data []byte) {
	compressed, ok := compress(data)
	size := int64(len(compressed))
	if !ok {
		size = int64(len(data))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.capBytes {
		return
	}

	if elem, exists := c.index[key]; exists {
		c.used -= int64(len(elem.Value.(*entry).compressed))
		c.order.Remove(elem)
		delete(c.index, key)
	}

	for c.used+size > c.capBytes && c.order.Len() > 0 {
		back := c.order.Back()
		c.removeElementLocked(back)
	}

	e := &entry{key: key, rawSize: len(data)}
	if ok {
		e.compressed = compressed
	} else {
		e.compressed = data
	}
	elem := c.order.PushFront(e)
	c.index[key] = elem
	c.used += int64(len(e.compressed))
}

// InvalidateMount drops every cached entry for a mount. Per spec §4.7,
// a RenderSettings change does not require this — changed fingerprints
// simply miss and age out — but an explicit Unmount should not leave
// stale bytes serving a since-recreated mount ID.
func (c *Cache) InvalidateMount(mountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if elem.Value.(*entry).key.MountID == mountID {
			c.removeElementLocked(elem)
		}
	}
}

// Stats reports current utilization.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.order.Len(), UsedBytes: c.used, CapBytes: c.capBytes}
}

func (c *Cache) removeLocked(key Key) {
	if elem, ok := c.index[key]; ok {
		c.removeElementLocked(elem)
	}
}

func (c *Cache) removeElementLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.used -= int64(len(e.compressed))
	delete(c.index, e.key)
	c.order.Remove(elem)
}

// compress LZ4-block-compresses data, returning ok=false when the
// result would not be smaller (matching
// lib/artifactstore/compress.go's "incompressible" fallback, stored
// uncompressed instead).
func compress(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return data, false
	}
	bound := lz4.CompressBlockBound(len(data))
	dst := make([]byte, bound)
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil || written == 0 || written >= len(data) {
		return nil, false
	}
	return dst[:written], true
}

func decompress(compressed []byte, rawSize int) ([]byte, error) {
	if len(compressed) == rawSize {
		// Stored uncompressed (incompressible or empty input).
		return compressed, nil
	}
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, errs.ErrIO
	}
	if n != rawSize {
		return nil, errs.ErrIO
	}
	return dst, nil
}
