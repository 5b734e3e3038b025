// Copyright 2026 The mcrawfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package dng implements the DNG encoder (spec component C2) and the
// shading-map opcode builder (C9). tiff.go is a minimal, little-endian
// single-IFD TIFF/DNG writer: TIFF/DNG is a small, fully-specified
// binary format and no third-party TIFF-writing library exists in the
// teacher corpus to reach for (see DESIGN.md).
package dng

import (
	"bytes"
	"encoding/binary"
)

// tiffType is a TIFF field type code.
type tiffType uint16

const (
	typeByte     tiffType = 1
	typeASCII    tiffType = 2
	typeShort    tiffType = 3
	typeLong     tiffType = 4
	typeRational tiffType = 5
	typeSByte    tiffType = 6
	typeUndef    tiffType = 7
	typeSShort   tiffType = 8
	typeSLong    tiffType = 9
	typeSRational tiffType = 10
	typeFloat    tiffType = 11
	typeDouble   tiffType = 12
)

var typeSize = map[tiffType]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndef: 1, typeSShort: 2, typeSLong: 4, typeSRational: 8,
	typeFloat: 4, typeDouble: 8,
}

// tiffField is one IFD entry queued for writing. value holds the
// field's payload pre-encoded in little-endian byte order; count is
// the number of type-sized elements it represents.
type tiffField struct {
	tag   uint16
	typ   tiffType
	count uint32
	value []byte
}

func byteField(tag uint16, v []byte) tiffField {
	return tiffField{tag: tag, typ: typeByte, count: uint32(len(v)), value: v}
}

func asciiField(tag uint16, s string) tiffField {
	b := append([]byte(s), 0)
	return tiffField{tag: tag, typ: typeASCII, count: uint32(len(b)), value: b}
}

func shortField(tag uint16, vs ...uint16) tiffField {
	buf := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	return tiffField{tag: tag, typ: typeShort, count: uint32(len(vs)), value: buf}
}

func longField(tag uint16, vs ...uint32) tiffField {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return tiffField{tag: tag, typ: typeLong, count: uint32(len(vs)), value: buf}
}

func rationalField(tag uint16, pairs ...[2]uint32) tiffField {
	buf := make([]byte, 8*len(pairs))
	for i, p := range pairs {
		binary.LittleEndian.PutUint32(buf[i*8:], p[0])
		binary.LittleEndian.PutUint32(buf[i*8+4:], p[1])
	}
	return tiffField{tag: tag, typ: typeRational, count: uint32(len(pairs)), value: buf}
}

func srationalField(tag uint16, pairs ...[2]int32) tiffField {
	buf := make([]byte, 8*len(pairs))
	for i, p := range pairs {
		binary.LittleEndian.PutUint32(buf[i*8:], uint32(p[0]))
		binary.LittleEndian.PutUint32(buf[i*8+4:], uint32(p[1]))
	}
	return tiffField{tag: tag, typ: typeSRational, count: uint32(len(pairs)), value: buf}
}

func undefField(tag uint16, v []byte) tiffField {
	return tiffField{tag: tag, typ: typeUndef, count: uint32(len(v)), value: v}
}

// writeTIFF assembles a single-IFD little-endian TIFF file: the 8-byte
// header, one IFD (sorted by tag, as required by the spec), the
// inline/offset field values, and the strip data, in that order.
// Fields are written in ascending tag order; values that fit in 4
// bytes are stored inline in the IFD entry, others are placed after
// the IFD and referenced by offset.
func writeTIFF(fields []tiffField, strip []byte) []byte {
	sortFields(fields)

	const headerSize = 8
	ifdEntrySize := 12
	ifdSize := 2 + len(fields)*ifdEntrySize + 4 // count + entries + next-IFD offset

	overflow := &bytes.Buffer{}
	entries := make([]byte, 0, len(fields)*ifdEntrySize)

	overflowBase := uint32(headerSize + ifdSize)

	for _, f := range fields {
		entry := make([]byte, ifdEntrySize)
		binary.LittleEndian.PutUint16(entry[0:], f.tag)
		binary.LittleEndian.PutUint16(entry[2:], uint16(f.typ))
		binary.LittleEndian.PutUint32(entry[4:], f.count)

		if len(f.value) <= 4 {
			copy(entry[8:], f.value)
		} else {
			offset := overflowBase + uint32(overflow.Len())
			binary.LittleEndian.PutUint32(entry[8:], offset)
			overflow.Write(f.value)
			if overflow.Len()%2 != 0 {
				overflow.WriteByte(0) // word-align the next field's offset
			}
		}
		entries = append(entries, entry...)
	}

	stripOffset := overflowBase + uint32(overflow.Len())

	out := &bytes.Buffer{}
	out.Write([]byte{'I', 'I', 42, 0})
	binary.Write(out, binary.LittleEndian, uint32(headerSize))

	binary.Write(out, binary.LittleEndian, uint16(len(fields)))
	out.Write(entries)
	binary.Write(out, binary.LittleEndian, uint32(0)) // no next IFD

	out.Write(overflow.Bytes())

	_ = stripOffset // strip offset tag is set by the caller before this call
	out.Write(strip)

	return out.Bytes()
}

func sortFields(fields []tiffField) {
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j-1].tag > fields[j].tag; j-- {
			fields[j-1], fields[j] = fields[j], fields[j-1]
		}
	}
}

// stripOffsetPlaceholder computes the byte offset the image strip
// will land at for a given field set, so StripOffsets can be set
// before the final writeTIFF call.
func stripOffsetPlaceholder(fields []tiffField) uint32 {
	sorted := make([]tiffField, len(fields))
	copy(sorted, fields)
	sortFields(sorted)

	const headerSize = 8
	ifdEntrySize := 12
	ifdSize := 2 + len(sorted)*ifdEntrySize + 4
	overflow := 0
	for _, f := range sorted {
		if len(f.value) > 4 {
			overflow += len(f.value)
			if overflow%2 != 0 {
				overflow++
			}
		}
	}
	return uint32(headerSize + ifdSize + overflow)
}
