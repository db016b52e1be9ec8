package transcode

import (
	"encoding/json"
	"os/exec"
	"testing"

	"github.com/pkg/errors"
)

func TestTailBufferKeepsOnlyLastN(t *testing.T) {
	tail := newTailBuffer(8)
	tail.Write([]byte("0123456789"))
	if got := tail.String(); got != "23456789" {
		t.Errorf("got %q, want last 8 bytes", got)
	}
}

func TestTailBufferUnderLimit(t *testing.T) {
	tail := newTailBuffer(100)
	tail.Write([]byte("short"))
	if got := tail.String(); got != "short" {
		t.Errorf("got %q, want %q", got, "short")
	}
}

func TestProbeResultParsesFirstVideoStream(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_type": "video", "width": 640, "height": 480},
			{"codec_type": "audio"}
		]
	}`
	var res probeResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatal(err)
	}
	var w, h int
	for _, s := range res.Streams {
		if s.Width > 0 && s.Height > 0 {
			w, h = s.Width, s.Height
			break
		}
	}
	if w != 640 || h != 480 {
		t.Errorf("got %dx%d, want 640x480", w, h)
	}
}

func TestClassifyExecErrNotFound(t *testing.T) {
	err := classifyExecErr(exec.ErrNotFound)
	if !errors.Is(err, ErrCodecMissing) {
		t.Errorf("got %v, want wrapped ErrCodecMissing", err)
	}
}

func TestClassifyExecErrNil(t *testing.T) {
	if err := classifyExecErr(nil); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestTailBufferTrimPreservesSuffixAcrossWrites(t *testing.T) {
	tail := newTailBuffer(5)
	for _, chunk := range []string{"ab", "cd", "ef", "gh"} {
		tail.Write([]byte(chunk))
	}
	const full = "abcdefgh"
	want := full[len(full)-5:]
	if got := tail.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
