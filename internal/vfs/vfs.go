// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package vfs implements the virtual directory projection (spec
// component C5): enumerating synthetic per-frame .dng entries plus one
// audio.wav entry from a frame-rate plan, and resolving path lookups
// against them.
package vfs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/errs"
)

// Directory is one mount's published entry set: per-frame DNGs plus an
// optional audio entry. Safe for concurrent reads; Rebuild replaces
// the entire entry set atomically (spec §4.1's updateOptions may shift
// frame sizes).
type Directory struct {
	mu      sync.RWMutex
	base    string
	byPath  map[string]types.Entry
	ordered []types.Entry
}

// New builds a Directory for baseName (the mount's published root
// directory segment) with frameCount frames, each sized typicalDngSize
// (a conservative upper bound, spec §3 Invariants), plus an audio
// entry of audioSize bytes when hasAudio is true.
func New(baseName string, frameCount int, typicalDngSize int64, hasAudio bool, audioSize int64) *Directory {
	d := &Directory{base: baseName}
	d.Rebuild(frameCount, typicalDngSize, hasAudio, audioSize)
	return d
}

// Rebuild replaces the published entry set. Called on mount and again
// whenever updateOptions changes a size-affecting RenderSettings field
// (spec §4.1).
func (d *Directory) Rebuild(frameCount int, typicalDngSize int64, hasAudio bool, audioSize int64) {
	byPath := make(map[string]types.Entry, frameCount+2)
	ordered := make([]types.Entry, 0, frameCount+2)

	dirEntry := types.Entry{Type: types.EntryDir, Name: d.base}
	byPath[dirEntry.Path()] = dirEntry

	if hasAudio {
		audio := types.Entry{
			Type:         types.EntryFile,
			PathSegments: []string{d.base},
			Name:         "audio.wav",
			Size:         audioSize,
		}
		byPath[audio.Path()] = audio
		ordered = append(ordered, audio)
	}

	for i := 0; i < frameCount; i++ {
		frame := types.Entry{
			Type:         types.EntryFile,
			PathSegments: []string{d.base},
			Name:         frameName(d.base, i),
			Size:         typicalDngSize,
		}
		byPath[frame.Path()] = frame
		ordered = append(ordered, frame)
	}

	d.mu.Lock()
	d.byPath = byPath
	d.ordered = ordered
	d.mu.Unlock()
}

// frameName formats the NNNNNN-padded per-frame file name (spec
// §4.2): "<base>_<NNNNNN>.dng", zero-padded to 6 digits starting at 0.
func frameName(base string, outputIndex int) string {
	return fmt.Sprintf("%s_%06d.dng", base, outputIndex)
}

// FindEntry resolves a full path to its Entry. Returns errs.ErrNotFound
// when no entry matches.
func (d *Directory) FindEntry(fullPath string) (types.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byPath[fullPath]
	if !ok {
		return types.Entry{}, fmt.Errorf("vfs: %q: %w", fullPath, errs.ErrNotFound)
	}
	return e, nil
}

// List returns the published entries in listing order: audio first,
// then frames ascending by output index (spec §4.2). The OS filesystem
// bridge may reorder this for its own directory-read semantics.
func (d *Directory) List() []types.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.Entry, len(d.ordered))
	copy(out, d.ordered)
	return out
}

// OutputIndexForName parses a frame entry's Name back to its output
// frame index, or ok=false if name doesn't match the frame pattern.
func (d *Directory) OutputIndexForName(name string) (index int, ok bool) {
	prefix := d.base + "_"
	const suffix = ".dng"
	if len(name) != len(prefix)+6+len(suffix) || name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	digits := name[len(prefix) : len(name)-len(suffix)]
	n := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// SortedNames returns the published file names (excluding the root
// directory) in ascending audio-then-frame order, primarily for tests
// asserting listing stability.
func (d *Directory) SortedNames() []string {
	entries := d.List()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	sort.SliceStable(names, func(i, j int) bool {
		if names[i] == "audio.wav" {
			return true
		}
		if names[j] == "audio.wav" {
			return false
		}
		return names[i] < names[j]
	})
	return names
}
