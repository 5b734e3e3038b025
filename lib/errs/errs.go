// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package errs defines the sentinel error kinds returned across the
// mcrawfs core packages. Callers use errors.Is to classify a failure;
// every wrapping site uses fmt.Errorf("...: %w", err) so context
// accumulates without losing the sentinel.
package errs

import "errors"

var (
	// ErrInvalidContainer indicates the source MCRAW file is
	// malformed or unusable: fewer than two frames, non-monotonic
	// timestamps after sort, or a decode failure surfaced by the
	// container reader.
	ErrInvalidContainer = errors.New("mcrawfs: invalid container")

	// ErrInvalidArgument indicates a caller-supplied value is out of
	// range or inconsistent, such as an output frame index outside the
	// mount's frame-rate plan. Malformed crop-target and levels strings
	// are not reported with it: they fall back to defaults.
	ErrInvalidArgument = errors.New("mcrawfs: invalid argument")

	// ErrNotFound indicates a lookup against the virtual directory or
	// mount registry found no matching entry.
	ErrNotFound = errors.New("mcrawfs: not found")

	// ErrCancelled indicates the caller's context was cancelled
	// before a read completed.
	ErrCancelled = errors.New("mcrawfs: cancelled")

	// ErrIO indicates an underlying I/O failure reading the source
	// file or writing output.
	ErrIO = errors.New("mcrawfs: I/O error")
)
