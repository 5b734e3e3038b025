// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrappedSentinelsClassify(t *testing.T) {
	cases := []error{
		ErrInvalidContainer,
		ErrInvalidArgument,
		ErrNotFound,
		ErrCancelled,
		ErrIO,
	}

	for _, sentinel := range cases {
		wrapped := fmt.Errorf("reading frame 3: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("errors.Is(%v, %v) = false, want true", wrapped, sentinel)
		}
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	cases := []error{
		ErrInvalidContainer,
		ErrInvalidArgument,
		ErrNotFound,
		ErrCancelled,
		ErrIO,
	}
	for i, a := range cases {
		for j, b := range cases {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Errorf("%v unexpectedly matches %v", a, b)
			}
		}
	}
}
