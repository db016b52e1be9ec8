package vaultmeta

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleRecord() Record {
	var rec Record
	rec.BlockSize = 4
	rec.BPC = 3
	rec.Width = 640
	rec.Height = 480
	rec.FPS = 10
	rec.Repeat = 1
	rec.Compressed = true
	rec.Filename = "hello.txt"
	rec.OriginalSize = 12
	rec.PayloadSize = 10
	for i := range rec.FileHash {
		rec.FileHash[i] = byte(i)
	}
	return rec
}

func TestBuildParseRoundTrip(t *testing.T) {
	rec := sampleRecord()
	buf := Build(rec, 4096)

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	rec.Version = Version // Parse fills in the on-wire version.
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := Build(sampleRecord(), 4096)
	buf[0] = 'X'
	if _, err := Parse(buf); err != ErrNoMetadata {
		t.Errorf("got %v, want ErrNoMetadata", err)
	}
}

func TestParseRejectsTruncatedBuffer(t *testing.T) {
	buf := Build(sampleRecord(), 4096)
	if _, err := Parse(buf[:10]); err != ErrNoMetadata {
		t.Errorf("got %v, want ErrNoMetadata", err)
	}
}

func TestParseRejectsCRCMutation(t *testing.T) {
	buf := Build(sampleRecord(), 4096)
	for i := 0; i < len(buf); i++ {
		mutated := bytes.Clone(buf)
		mutated[i] ^= 0xFF
		if _, err := Parse(mutated); err == nil {
			// Byte mutated into trailing zero padding is invisible to the
			// parser since it never reads past the record; only flag a
			// failure for bytes within the actual record body.
			if i < 15+len("hello.txt")+8+8+32+16+4 {
				t.Errorf("byte %d: mutation not detected", i)
			}
		}
	}
}

func TestParseRejectsZeroOriginalSize(t *testing.T) {
	rec := sampleRecord()
	rec.OriginalSize = 0
	buf := Build(rec, 4096)
	if _, err := Parse(buf); err != ErrNoMetadata {
		t.Errorf("got %v, want ErrNoMetadata", err)
	}
}

func TestParseRejectsOversizeOriginalSize(t *testing.T) {
	rec := sampleRecord()
	rec.OriginalSize = MaxOriginalSize + 1
	buf := Build(rec, 4096)
	if _, err := Parse(buf); err != ErrNoMetadata {
		t.Errorf("got %v, want ErrNoMetadata", err)
	}
}

func TestParseLegacyVersionDefaults(t *testing.T) {
	// Hand-build a version-2 record: no repeat/flags/payload_size/salt.
	var buf []byte
	buf = append(buf, Magic[:]...)
	buf = append(buf, 2)    // version
	buf = append(buf, 4)    // block size
	buf = append(buf, 3)    // bpc
	buf = append(buf, 2, 128) // width = 640
	buf = append(buf, 1, 224) // height = 480
	buf = append(buf, 10) // fps
	name := "f.bin"
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	var sz [8]byte
	sz[7] = 42
	buf = append(buf, sz[:]...)
	var hash [32]byte
	buf = append(buf, hash[:]...)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(buf))
	buf = append(buf, crc[:]...)

	rec, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse legacy record: %v", err)
	}
	if rec.Repeat != 1 || rec.Compressed || rec.Encrypted || rec.PayloadSize != rec.OriginalSize {
		t.Errorf("legacy defaults not applied: %+v", rec)
	}
}
