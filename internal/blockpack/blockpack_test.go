package blockpack

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTripExactLength(t *testing.T) {
	for _, bpc := range []int{2, 3} {
		data := []byte("hello world\n")
		need := (len(data)*8 + bpc*3 - 1) / (bpc * 3)
		triples := Pack(data, need, bpc)
		got := Unpack(triples, bpc)
		if !bytes.HasPrefix(got, data) {
			t.Fatalf("bpc=%d: got %q, want prefix %q", bpc, got, data)
		}
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bpc := range []int{2, 3} {
		for n := 0; n < 50; n++ {
			size := rng.Intn(300)
			data := make([]byte, size)
			rng.Read(data)

			bpb := bpc * 3
			need := (len(data)*8 + bpb - 1) / bpb
			extra := rng.Intn(4)

			triples := Pack(data, need+extra, bpc)
			got := Unpack(triples, bpc)
			if !bytes.HasPrefix(got, data) {
				t.Fatalf("bpc=%d size=%d: round trip mismatch: got %x want prefix %x", bpc, size, got, data)
			}
		}
	}
}

func TestPackIndicesInRange(t *testing.T) {
	for _, bpc := range []int{2, 3} {
		data := make([]byte, 64)
		for i := range data {
			data[i] = 0xFF
		}
		triples := Pack(data, 64, bpc)
		limit := uint8(1<<uint(bpc)) - 1
		for _, tr := range triples {
			if tr.R > limit || tr.G > limit || tr.B > limit {
				t.Fatalf("bpc=%d: index out of range: %+v", bpc, tr)
			}
		}
	}
}

func TestPackPadsShortInput(t *testing.T) {
	// A single 0xFF byte packed into enough blocks to exceed 8 bits:
	// trailing blocks must be zero, not garbage.
	data := []byte{0xFF}
	triples := Pack(data, 8, 2)
	for i, tr := range triples[2:] {
		if tr.R != 0 || tr.G != 0 || tr.B != 0 {
			t.Errorf("triple %d beyond input should be zero, got %+v", i+2, tr)
		}
	}
}
