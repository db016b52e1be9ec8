/*
NAME
  payload.go

DESCRIPTION
  payload implements the encode-side compress-then-obfuscate pipeline and
  its decode-side inverse. Compression follows the pack's own precedent
  (google/wuffs' lib/flatecut and lib/zlibcut both build on
  compress/flate) of reaching for the standard library's DEFLATE
  implementation rather than a third-party one.

  The "obfuscation" cipher is a keystream XOR, deliberately not named
  Encrypt/Decrypt: it provides no authentication and is retained only
  for wire-compatibility with the format it was distilled from. Do not
  use it to protect anything that matters.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package payload implements the compress/obfuscate pipeline applied to
// a FileVault payload before it is framed into blocks.
package payload

import (
	"bytes"
	"compress/flate"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Compress deflates data at the best compression level. If the result is
// not strictly smaller than the input, Compress returns the original
// data unmodified and reports compressed=false.
func Compress(data []byte) (out []byte, compressed bool, err error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, false, errors.Wrap(err, "payload: create flate writer")
	}
	if _, err := w.Write(data); err != nil {
		return nil, false, errors.Wrap(err, "payload: flate write")
	}
	if err := w.Close(); err != nil {
		return nil, false, errors.Wrap(err, "payload: flate close")
	}

	if buf.Len() < len(data) {
		return buf.Bytes(), true, nil
	}
	return data, false, nil
}

// Decompress inflates data if compressed is true; otherwise it returns
// data unmodified.
func Decompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "payload: decompression failed")
	}
	return out, nil
}

// NewSalt returns a fresh 16-byte salt: the first 16 bytes of
// SHA-256(32 random bytes).
func NewSalt() ([16]byte, error) {
	var salt [16]byte
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return salt, errors.Wrap(err, "payload: generate salt")
	}
	sum := sha256.Sum256(seed[:])
	copy(salt[:], sum[:16])
	return salt, nil
}

// DeriveKey produces length bytes of keystream from password and salt by
// concatenating SHA-256(BE32(block) || password || salt) for
// block = 0, 1, 2, ... and truncating to length. This is a homebrew KDF
// with no published security analysis: it exists only so that a file
// obfuscated by an older build of this tool still decodes, and it MUST
// NOT be treated as authenticated encryption.
func DeriveKey(password string, salt [16]byte, length int) []byte {
	key := make([]byte, 0, length+sha256.Size)
	pw := []byte(password)
	var block uint32
	for len(key) < length {
		h := sha256.New()
		var be [4]byte
		binary.BigEndian.PutUint32(be[:], block)
		h.Write(be[:])
		h.Write(pw)
		h.Write(salt[:])
		key = h.Sum(key)
		block++
	}
	return key[:length]
}

// Obfuscate XORs data with a keystream derived from password and salt.
// It is its own inverse: Obfuscate(Obfuscate(d, p, s), p, s) == d.
func Obfuscate(data []byte, password string, salt [16]byte) []byte {
	key := DeriveKey(password, salt, len(data))
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i]
	}
	return out
}

// Deobfuscate reverses Obfuscate; the operation is identical, the name
// differs only to read naturally at call sites.
func Deobfuscate(data []byte, password string, salt [16]byte) []byte {
	return Obfuscate(data, password, salt)
}
