// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for mount IDs or fixture names that
// must be distinguishable within a single test binary run.
//
//	mountID := testutil.UniqueID("mnt")   // "mnt-1", "mnt-2", ...
//	name := testutil.UniqueID("clip-a")   // "clip-a-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
