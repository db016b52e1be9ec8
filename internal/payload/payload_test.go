package payload

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 4096)
	out, compressed, err := Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	if !compressed {
		t.Fatal("expected highly repetitive data to compress")
	}
	if len(out) >= len(data) {
		t.Fatalf("compressed size %d not smaller than input %d", len(out), len(data))
	}

	back, err := Decompress(out, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, data) {
		t.Fatal("decompressed data does not match original")
	}
}

func TestCompressSkipsWhenNotSmaller(t *testing.T) {
	data := []byte{1, 2, 3}
	out, compressed, err := Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	if compressed {
		t.Fatal("tiny input should not be reported as compressed")
	}
	if !bytes.Equal(out, data) {
		t.Fatal("uncompressed output should equal input")
	}
}

func TestObfuscateRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("the quick brown fox jumps over the lazy dog")
	enc := Obfuscate(data, "correct horse", salt)
	if bytes.Equal(enc, data) {
		t.Fatal("obfuscated output equals plaintext")
	}
	dec := Deobfuscate(enc, "correct horse", salt)
	if !bytes.Equal(dec, data) {
		t.Fatal("deobfuscate did not recover plaintext")
	}
}

func TestObfuscateWrongPasswordDiffers(t *testing.T) {
	salt, _ := NewSalt()
	data := []byte("the quick brown fox jumps over the lazy dog")
	enc := Obfuscate(data, "right", salt)
	wrong := Deobfuscate(enc, "wrong", salt)
	if bytes.Equal(wrong, data) {
		t.Fatal("decoding with the wrong password should not recover plaintext")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, _ := NewSalt()
	a := DeriveKey("pw", salt, 100)
	b := DeriveKey("pw", salt, 100)
	if !bytes.Equal(a, b) {
		t.Fatal("DeriveKey is not deterministic for identical inputs")
	}
	if len(a) != 100 {
		t.Fatalf("got length %d want 100", len(a))
	}
}
