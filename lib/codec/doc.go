// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides mcrawfs's standard CBOR encoding configuration.
//
// mcrawfs uses CBOR for internal, non-human-facing state: the
// render-settings encoding hashed by lib/fingerprint, the mount
// package's in-memory probe-size cache entries, and any other
// structured state that never crosses a JSON API boundary.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes. This determinism is
// load-bearing: render-settings fingerprints are computed by hashing
// the CBOR encoding of a RenderSettings value, so two equal values must
// always encode to the same bytes.
//
// For buffer-oriented operations (files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// Struct fields use `cbor` tags; this package never sees JSON.
package codec
