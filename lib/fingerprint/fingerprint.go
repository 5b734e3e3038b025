// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes the stable BLAKE3 digest of a
// RenderSettings value used as part of an artifact cache key. Two
// RenderSettings values that compare equal must fingerprint
// identically (testable property 1); fingerprint determinism is
// delegated to lib/codec's CBOR Core Deterministic Encoding rather
// than a hand-rolled field concatenation, so adding a field to
// RenderSettings cannot silently produce non-deterministic digests.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/motioncam/mcrawfs/internal/types"
	"github.com/motioncam/mcrawfs/lib/codec"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// String returns the hex-encoded digest.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// domainKey separates render-settings fingerprints from any other
// hash domain that might later share the same BLAKE3 key space.
var domainKey = [32]byte{
	'm', 'c', 'r', 'a', 'w', 'f', 's', '.', 'r', 'e', 'n', 'd', 'e', 'r', '.',
	's', 'e', 't', 't', 'i', 'n', 'g', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// sourceDomainKey separates source-file content fingerprints (the
// mount package's probe-descriptor cache key, spec §4.10) from the
// render-settings domain above.
var sourceDomainKey = [32]byte{
	'm', 'c', 'r', 'a', 'w', 'f', 's', '.', 's', 'o', 'u', 'r', 'c', 'e', '.',
	'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// RenderSettings returns the fingerprint of settings: the BLAKE3
// keyed hash of its CBOR Core Deterministic Encoding.
func RenderSettings(settings types.RenderSettings) (Hash, error) {
	encoded, err := codec.Marshal(settings)
	if err != nil {
		return Hash{}, fmt.Errorf("fingerprint: encoding render settings: %w", err)
	}

	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}

// Source returns the BLAKE3 keyed digest of a source MCRAW file's raw
// bytes, read from r, used to key the mount package's probe-descriptor
// cache (spec §4.10: re-mounting the same source with unchanged
// settings skips a redundant size probe).
func Source(r io.Reader) (Hash, error) {
	hasher, err := blake3.NewKeyed(sourceDomainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, fmt.Errorf("fingerprint: reading source file: %w", err)
	}

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}
