/*
NAME
  vaultmeta.go

DESCRIPTION
  vaultmeta builds and parses the CRC-protected metadata record that
  occupies the second frame of a FileVault stream. The on-disk layout is
  fixed and documented below, in the same ASCII-diagram style the
  teacher uses for its own wire formats (see container/mts/mpegts.go's
  Packet).

  Metadata record layout (big-endian, version 3):

  ============================================================
  | offset | size | field          | meaning                 |
  ============================================================
  | 0      | 4    | magic          | literal "FVLT"          |
  | 4      | 1    | version        | 3                       |
  | 5      | 1    | block_size     | bs                      |
  | 6      | 1    | bpc            | 2 or 3                  |
  | 7      | 2    | width          | pixels                  |
  | 9      | 2    | height         | pixels                  |
  | 11     | 1    | fps            | informational            |
  | 12     | 1    | repeat         | data-frame repeat count  |
  | 13     | 1    | flags          | bit0 compressed, bit1 enc|
  | 14     | 1    | name_len       | <= 255                   |
  | 15     | N    | filename       | UTF-8, N = name_len      |
  | 15+N   | 8    | original_size  | uncompressed length      |
  | 23+N   | 8    | payload_size   | post-pipeline length     |
  | 31+N   | 32   | file_hash      | SHA-256 of plaintext     |
  | 63+N   | 16   | salt           | zero if not encrypted    |
  | 79+N   | 4    | crc32          | CRC-32 (IEEE) of [0,79+N)|
  ============================================================

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package vaultmeta builds and parses the FileVault metadata record.
package vaultmeta

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// Magic is the literal 4-byte magic that opens every metadata record.
var Magic = [4]byte{'F', 'V', 'L', 'T'}

// Version is the metadata record version this package writes.
const Version = 3

// MaxOriginalSize is the largest original_size this package will accept
// on parse.
const MaxOriginalSize = 2 * 1024 * 1024 * 1024

// Flag bits within the flags field.
const (
	FlagCompressed = 1 << 0
	FlagEncrypted  = 1 << 1
)

// ErrNoMetadata is returned by Parse whenever buf does not hold a valid
// metadata record: bad magic, a length prefix that runs off the buffer,
// a CRC mismatch, or an original_size of zero or above MaxOriginalSize.
// Parse never panics on malformed input; every failure mode collapses to
// this one sentinel, matching the Python reference's try/except-then-nil
// contract.
var ErrNoMetadata = errors.New("vaultmeta: no metadata record found")

// Record holds a fully-parsed (or about-to-be-built) metadata record.
type Record struct {
	Version       uint8
	BlockSize     uint8
	BPC           uint8
	Width         uint16
	Height        uint16
	FPS           uint8
	Repeat        uint8
	Compressed    bool
	Encrypted     bool
	Filename      string
	OriginalSize  uint64
	PayloadSize   uint64
	FileHash      [32]byte
	Salt          [16]byte
}

// Build renders rec into exactly frameSize bytes: the record followed
// by zero padding. It panics if the record (including its filename)
// does not fit in frameSize bytes, which indicates a geometry far too
// small to ever have been offered to an encoder.
func Build(rec Record, frameSize int) []byte {
	name := []byte(rec.Filename)
	if len(name) > 255 {
		name = name[:255]
	}

	buf := make([]byte, 0, 15+len(name)+8+8+32+16+4)
	buf = append(buf, Magic[:]...)
	buf = append(buf, Version)
	buf = append(buf, rec.BlockSize)
	buf = append(buf, rec.BPC)
	buf = appendUint16(buf, rec.Width)
	buf = appendUint16(buf, rec.Height)
	buf = append(buf, rec.FPS)
	buf = append(buf, rec.Repeat)

	var flags byte
	if rec.Compressed {
		flags |= FlagCompressed
	}
	if rec.Encrypted {
		flags |= FlagEncrypted
	}
	buf = append(buf, flags)

	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)

	buf = appendUint64(buf, rec.OriginalSize)
	buf = appendUint64(buf, rec.PayloadSize)
	buf = append(buf, rec.FileHash[:]...)
	buf = append(buf, rec.Salt[:]...)

	crc := crc32.ChecksumIEEE(buf)
	buf = appendUint32(buf, crc)

	if len(buf) > frameSize {
		panic("vaultmeta: record does not fit in one frame")
	}

	out := make([]byte, frameSize)
	copy(out, buf)
	return out
}

// Parse recovers a Record from a buffer produced by rendering a
// metadata frame into blocks and unpacking it back to bytes (see
// internal/blockpack). It returns ErrNoMetadata for any malformed or
// non-FileVault input.
func Parse(data []byte) (Record, error) {
	var rec Record

	if len(data) < 4 || data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] || data[3] != Magic[3] {
		return rec, ErrNoMetadata
	}

	p := 4
	need := func(n int) bool { return p+n <= len(data) }

	if !need(1) {
		return Record{}, ErrNoMetadata
	}
	rec.Version = data[p]
	p++

	if !need(1) {
		return Record{}, ErrNoMetadata
	}
	rec.BlockSize = data[p]
	p++

	if !need(1) {
		return Record{}, ErrNoMetadata
	}
	rec.BPC = data[p]
	p++

	if !need(2) {
		return Record{}, ErrNoMetadata
	}
	rec.Width = binary.BigEndian.Uint16(data[p:])
	p += 2

	if !need(2) {
		return Record{}, ErrNoMetadata
	}
	rec.Height = binary.BigEndian.Uint16(data[p:])
	p += 2

	if !need(1) {
		return Record{}, ErrNoMetadata
	}
	rec.FPS = data[p]
	p++

	var flags byte
	if rec.Version >= 3 {
		if !need(2) {
			return Record{}, ErrNoMetadata
		}
		rec.Repeat = data[p]
		flags = data[p+1]
		p += 2
	} else {
		rec.Repeat = 1
	}
	rec.Compressed = flags&FlagCompressed != 0
	rec.Encrypted = flags&FlagEncrypted != 0

	if !need(1) {
		return rec, ErrNoMetadata
	}
	nameLen := int(data[p])
	p++
	if nameLen == 0 || !need(nameLen) {
		return rec, ErrNoMetadata
	}
	rec.Filename = string(data[p : p+nameLen])
	p += nameLen

	if !need(8) {
		return rec, ErrNoMetadata
	}
	rec.OriginalSize = binary.BigEndian.Uint64(data[p:])
	p += 8

	if rec.Version >= 3 {
		if !need(8) {
			return rec, ErrNoMetadata
		}
		rec.PayloadSize = binary.BigEndian.Uint64(data[p:])
		p += 8
	} else {
		rec.PayloadSize = rec.OriginalSize
	}

	if !need(32) {
		return rec, ErrNoMetadata
	}
	copy(rec.FileHash[:], data[p:p+32])
	p += 32

	if rec.Version >= 3 {
		if !need(16) {
			return rec, ErrNoMetadata
		}
		copy(rec.Salt[:], data[p:p+16])
		p += 16
	}

	if !need(4) {
		return rec, ErrNoMetadata
	}
	storedCRC := binary.BigEndian.Uint32(data[p : p+4])
	calcCRC := crc32.ChecksumIEEE(data[:p])
	if storedCRC != calcCRC {
		return Record{}, ErrNoMetadata
	}

	if rec.OriginalSize == 0 || rec.OriginalSize > MaxOriginalSize {
		return Record{}, ErrNoMetadata
	}

	return rec, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
