package decoder

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/vaultcodec/filevault/encoder"
)

type fakeSink struct {
	frames [][]byte
}

func (f *fakeSink) Write(rgb []byte) error {
	cp := make([]byte, len(rgb))
	copy(cp, rgb)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSink) Close() error { return nil }

type fakeSrc struct {
	frames [][]byte
	pos    int
}

func (f *fakeSrc) ReadFrame() ([]byte, error) {
	if f.pos >= len(f.frames) {
		return nil, io.EOF
	}
	out := f.frames[f.pos]
	f.pos++
	return out, nil
}

func (f *fakeSrc) Close() error { return nil }

func encodeToFrames(t *testing.T, content []byte, mode encoder.Mode, opts ...encoder.Option) [][]byte {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orig.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := encoder.New(path, mode, 320, 240, 10, opts...)
	if err != nil {
		t.Fatal(err)
	}
	sink := &fakeSink{}
	if _, err := encoder.Encode(cfg, sink); err != nil {
		t.Fatal(err)
	}
	return sink.frames
}

func TestDecodeRoundTripNoLoss(t *testing.T) {
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 50)
	frames := encodeToFrames(t, content, encoder.ModeLocal)

	cfg, err := New(320, 240)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Decode(cfg, &fakeSrc{frames: frames})
	if err != nil {
		t.Fatal(err)
	}
	if !res.HashOK {
		t.Error("expected hash to match")
	}
	if !bytes.Equal(res.Data, content) {
		t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(res.Data), len(content))
	}
	if res.Filename != "orig.bin" {
		t.Errorf("got filename %q, want orig.bin", res.Filename)
	}
}

func TestDecodeRoundTripWithRepeatAndDefaultBlockSize(t *testing.T) {
	content := []byte("a short file that still spans more than one frame if geometry is tiny")
	frames := encodeToFrames(t, content, encoder.ModeYouTube, encoder.WithRepeat(3))

	cfg, err := New(320, 240)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Decode(cfg, &fakeSrc{frames: frames})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, content) {
		t.Errorf("round trip with repeats mismatch: got %q, want %q", res.Data, content)
	}
}

func TestDecodeRoundTripWithPassword(t *testing.T) {
	content := []byte("only readable with the right password")
	frames := encodeToFrames(t, content, encoder.ModeYouTube, encoder.WithPassword("hunter2"))

	cfg, err := New(320, 240, WithPassword("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := Decode(cfg, &fakeSrc{frames: frames})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, content) {
		t.Errorf("got %q, want %q", res.Data, content)
	}
}

func TestDecodeRequiresPasswordWhenEncrypted(t *testing.T) {
	content := []byte("secret")
	frames := encodeToFrames(t, content, encoder.ModeYouTube, encoder.WithPassword("hunter2"))

	cfg, err := New(320, 240)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(cfg, &fakeSrc{frames: frames}); err != ErrPasswordRequired {
		t.Errorf("got %v, want ErrPasswordRequired", err)
	}
}

func TestDecodeProbesNonDefaultBlockSize(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 2000)
	frames := encodeToFrames(t, content, encoder.ModeYouTube, encoder.WithBlockSize(16))

	cfg, err := New(320, 240)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Decode(cfg, &fakeSrc{frames: frames})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, content) {
		t.Error("probe across block sizes failed to recover original data")
	}
}

func TestDecodeFailsOnNonFileVaultStream(t *testing.T) {
	junk := make([][]byte, 3)
	for i := range junk {
		junk[i] = make([]byte, 320*240*3)
	}
	cfg, err := New(320, 240)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(cfg, &fakeSrc{frames: junk}); err != ErrProbeFailed {
		t.Errorf("got %v, want ErrProbeFailed", err)
	}
}
