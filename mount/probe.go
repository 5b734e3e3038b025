// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"sync"

	"github.com/motioncam/mcrawfs/lib/codec"
	"github.com/motioncam/mcrawfs/lib/fingerprint"
)

// probeKey identifies one (source file, RenderSettings) pair's probe
// result (spec §4.10).
type probeKey struct {
	source   fingerprint.Hash
	settings fingerprint.Hash
}

// probeDescriptor is the CBOR-encoded record persisted per probeKey.
// Its shape mirrors what a future on-disk sidecar file would store;
// for now the registry only keeps it in memory for the process's
// lifetime (spec §4.10: "skips a redundant probe" is scoped to "the
// same process").
type probeDescriptor struct {
	TypicalDngSize int64 `cbor:"typical_dng_size"`
}

// probeCache is a process-lifetime cache of probe descriptors, keyed
// by source-file content fingerprint and RenderSettings fingerprint.
// Encoding through lib/codec (rather than storing the int64 directly)
// keeps the cache's entries in the same wire format a later on-disk
// sidecar would use, per DESIGN.md's Open Question decision on §4.10.
type probeCache struct {
	mu      sync.Mutex
	entries map[probeKey][]byte
}

func newProbeCache() *probeCache {
	return &probeCache{entries: make(map[probeKey][]byte)}
}

func (p *probeCache) lookup(key probeKey) (int64, bool) {
	p.mu.Lock()
	data, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return 0, false
	}

	var descriptor probeDescriptor
	if err := codec.Unmarshal(data, &descriptor); err != nil {
		return 0, false
	}
	return descriptor.TypicalDngSize, true
}

func (p *probeCache) store(key probeKey, size int64) error {
	data, err := codec.Marshal(probeDescriptor{TypicalDngSize: size})
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.entries[key] = data
	p.mu.Unlock()
	return nil
}
