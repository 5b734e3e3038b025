// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"

	"github.com/motioncam/mcrawfs/internal/cache"
	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/errs"
)

// Status codes returned by ReadFile's completion callback and its
// synchronous return value (spec §7): 0 is success, negative values
// classify a failure.
const (
	StatusOK               = 0
	StatusInvalidContainer = -1
	StatusInvalidArgument  = -2
	StatusNotFound         = -3
	StatusCancelled        = -4
	StatusIOError          = -5
)

// StatusFor classifies err into one of the status codes above,
// matching it against lib/errs's sentinel kinds. Exported so callers
// above this package (the mount registry's own lookup/FindEntry
// failures) report the same status-code space as a build failure.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, errs.ErrInvalidContainer):
		return StatusInvalidContainer
	case errors.Is(err, errs.ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, errs.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, errs.ErrCancelled):
		return StatusCancelled
	default:
		return StatusIOError
	}
}

// ReadFile implements the file-system bridge's single read operation
// (spec §4.8): copy up to length bytes of entry's content, starting at
// offset, into dst, returning the frame-or-audio artifact's full bytes
// by building (or reusing a cached build of) it first.
//
// When async is false, ReadFile blocks until the copy completes and
// also returns (bytesWritten, status) directly; completion is still
// invoked. When async is true, a frame read returns (0, StatusOK)
// immediately and the real result arrives only through completion,
// invoked from a goroutine ReadFile starts for the build. Audio reads
// and cache-key failures complete synchronously in either mode:
// completion runs before ReadFile returns, and the return value
// carries the same (bytesWritten, status).
func (s *Scheduler) ReadFile(ctx context.Context, b *Builder, entry types.Entry, outputIndex int, isAudio bool, audio []byte, settings types.RenderSettings, offset, length int, dst []byte, async bool, completion func(n int, status int)) (int, int) {
	if isAudio {
		n, status := copyRange(audio, offset, length, dst)
		completion(n, status)
		return n, status
	}

	key, err := b.CacheKey(outputIndex, settings)
	if err != nil {
		status := StatusFor(err)
		completion(0, status)
		return 0, status
	}

	deliver := func(data []byte, err error) (n, status int) {
		if err != nil {
			status = StatusFor(err)
			completion(0, status)
			return 0, status
		}
		n, status = copyRange(data, offset, length, dst)
		completion(n, status)
		return n, status
	}

	if async {
		go s.buildAndDeliver(ctx, b, key, outputIndex, settings, func(data []byte, err error) {
			deliver(data, err)
		})
		return 0, StatusOK
	}

	result := make(chan [2]int, 1)
	s.buildAndDeliver(ctx, b, key, outputIndex, settings, func(data []byte, err error) {
		n, status := deliver(data, err)
		result <- [2]int{n, status}
	})
	r := <-result
	return r[0], r[1]
}

// buildAndDeliver resolves key via the cache's single-flight
// GetOrBuild, running the build on the scheduler's pools rather than
// blocking the caller's own goroutine on ioStage/cpuStage directly.
func (s *Scheduler) buildAndDeliver(ctx context.Context, b *Builder, key cache.Key, outputIndex int, settings types.RenderSettings, deliver func(data []byte, err error)) {
	data, err := b.Cache.GetOrBuild(key, func() ([]byte, error) {
		built := make(chan struct {
			data []byte
			err  error
		}, 1)
		task := b.BuildTask(outputIndex, settings, func(data []byte, err error) {
			built <- struct {
				data []byte
				err  error
			}{data, err}
		})
		s.Submit(ctx, task)
		r := <-built
		return r.data, r.err
	})
	deliver(data, err)
}

// copyRange copies the [offset, offset+length) slice of data into dst,
// truncating at data's end (spec §4.8's partial-read-at-tail rule). An
// offset at or beyond len(data) yields a successful zero-byte read,
// matching end-of-file read semantics.
func copyRange(data []byte, offset, length int, dst []byte) (n int, status int) {
	if offset < 0 || length < 0 {
		return 0, StatusInvalidArgument
	}
	if offset >= len(data) {
		return 0, StatusOK
	}
	end := offset + length
	if end > len(data) {
		end = len(data)
	}
	n = copy(dst, data[offset:end])
	return n, StatusOK
}
