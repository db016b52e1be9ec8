/*
NAME
  transcode.go

DESCRIPTION
  transcode wraps the ffmpeg and ffprobe binaries the way
  device/raspivid/raspivid.go wraps raspivid: an exec.Cmd started with
  piped stdin/stdout, a goroutine draining stderr into a bounded buffer,
  and a Stop/Close path that kills the process and closes the pipe
  without deadlocking the drain goroutine.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package transcode shells out to ffmpeg and ffprobe to mux a raw RGB24
// frame stream into a playable video container and back, and to probe
// an existing video's frame geometry.
package transcode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/vaultcodec/filevault/internal/frame"
)

// Mode selects the ffmpeg output profile.
type Mode int

const (
	// ModeYouTube produces a 4:2:0 stream tuned for re-encoding survival
	// on upload: CRF 18, stillimage tuning.
	ModeYouTube Mode = iota
	// ModeLocal produces a lossless 4:4:4 stream for local archival.
	ModeLocal
)

// stderrTailLimit bounds how much of a failed child's stderr is kept for
// error reporting.
const stderrTailLimit = 500

// ErrCodecMissing is returned when ffmpeg or ffprobe is not on PATH.
var ErrCodecMissing = errors.New("transcode: ffmpeg/ffprobe not found on PATH")

// ErrCodecProcessFailed is returned when ffmpeg or ffprobe started but
// exited with a non-zero status.
var ErrCodecProcessFailed = errors.New("transcode: external codec process failed")

// classifyExecErr maps an exec.Cmd start/run error to ErrCodecMissing or
// ErrCodecProcessFailed, preserving the underlying error as context.
func classifyExecErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return errors.Wrap(ErrCodecMissing, err.Error())
	}
	if _, ok := err.(*exec.ExitError); ok {
		return errors.Wrap(ErrCodecProcessFailed, err.Error())
	}
	return err
}

// Writer is the raw-RGB24 frame sink the encoder driver writes to. *Encoder
// implements it; tests may substitute a fake.
type Writer interface {
	Write(rgb []byte) error
	Close() error
}

// Reader is the raw-RGB24 frame source the decoder driver reads from.
// *Decoder implements it; tests may substitute a fake.
type Reader interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Encoder writes raw RGB24 frames to an ffmpeg process that muxes them
// into a video file.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	geom   frame.Geometry
	fps    int
}

// NewEncoder starts ffmpeg, ready to receive raw RGB24 frames of the
// given geometry at fps frames per second, writing the muxed result to
// outputPath. The caller must call Write for each frame and then Close.
func NewEncoder(outputPath string, geom frame.Geometry, fps int, mode Mode) (*Encoder, error) {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", geom.Width, geom.Height),
		"-r", fmt.Sprint(fps),
		"-i", "-",
	}
	switch mode {
	case ModeYouTube:
		args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", "-crf", "18", "-preset", "medium", "-tune", "stillimage")
	case ModeLocal:
		args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv444p", "-crf", "0", "-preset", "ultrafast")
	default:
		return nil, errors.Errorf("transcode: unknown mode %d", mode)
	}
	args = append(args, outputPath)

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transcode: pipe ffmpeg stdin")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transcode: pipe ffmpeg stderr")
	}

	tail := newTailBuffer(stderrTailLimit)
	go tail.drain(stderrPipe)

	if err := cmd.Start(); err != nil {
		return nil, classifyExecErr(err)
	}

	return &Encoder{cmd: cmd, stdin: stdin, stderr: tail, geom: geom, fps: fps}, nil
}

// Write writes one raw RGB24 frame. frame must be exactly
// geom.Width*geom.Height*3 bytes.
func (e *Encoder) Write(rgb []byte) error {
	want := e.geom.Width * e.geom.Height * 3
	if len(rgb) != want {
		return errors.Errorf("transcode: frame is %d bytes, want %d", len(rgb), want)
	}
	if _, err := e.stdin.Write(rgb); err != nil {
		return errors.Wrap(err, "transcode: write frame to ffmpeg")
	}
	return nil
}

// Close finishes encoding: it closes stdin so ffmpeg flushes and exits,
// then waits for the process. It returns the tail of ffmpeg's stderr
// wrapped into the error if the process exits non-zero.
func (e *Encoder) Close() error {
	if err := e.stdin.Close(); err != nil {
		return errors.Wrap(err, "transcode: close ffmpeg stdin")
	}
	if err := e.cmd.Wait(); err != nil {
		return errors.Wrapf(classifyExecErr(err), "ffmpeg encode failed: %s", e.stderr.String())
	}
	return nil
}

// Decoder reads raw RGB24 frames back out of a video file via ffmpeg.
type Decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	geom   frame.Geometry
}

// NewDecoder starts ffmpeg reading inputPath and producing raw RGB24
// frames of the given geometry on its stdout.
func NewDecoder(inputPath string, geom frame.Geometry) (*Decoder, error) {
	args := []string{
		"-i", inputPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", geom.Width, geom.Height),
		"-",
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transcode: pipe ffmpeg stdout")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "transcode: pipe ffmpeg stderr")
	}

	tail := newTailBuffer(stderrTailLimit)
	go tail.drain(stderrPipe)

	if err := cmd.Start(); err != nil {
		return nil, classifyExecErr(err)
	}

	return &Decoder{cmd: cmd, stdout: stdout, stderr: tail, geom: geom}, nil
}

// ReadFrame reads exactly one raw RGB24 frame. It returns io.EOF once the
// input is exhausted; a trailing partial frame is discarded and also
// reported as io.EOF.
func (d *Decoder) ReadFrame() ([]byte, error) {
	size := d.geom.Width * d.geom.Height * 3
	buf := make([]byte, size)
	_, err := io.ReadFull(d.stdout, buf)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return nil, io.EOF
	case err != nil:
		return nil, errors.Wrap(err, "transcode: read frame from ffmpeg")
	}
	return buf, nil
}

// Close terminates the decode process. It tolerates a process that has
// already exited on its own after EOF.
func (d *Decoder) Close() error {
	_ = d.stdout.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	return nil
}

// probeResult mirrors the subset of ffprobe's -show_streams JSON this
// package needs.
type probeResult struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// Probe shells out to ffprobe to recover the pixel geometry of the first
// video stream in path.
func Probe(path string) (width, height int, err error) {
	cmd := exec.Command("ffprobe", "-v", "quiet", "-print_format", "json", "-show_streams", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > stderrTailLimit {
			tail = tail[len(tail)-stderrTailLimit:]
		}
		return 0, 0, errors.Wrapf(classifyExecErr(err), "ffprobe failed: %s", tail)
	}

	var res probeResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return 0, 0, errors.Wrap(err, "transcode: parse ffprobe output")
	}
	for _, s := range res.Streams {
		if s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, errors.New("transcode: ffprobe reported no video stream")
}

// tailBuffer keeps only the last n bytes written to it, matching the
// bounded stderr-tail behaviour used for error reporting throughout this
// package.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// drain copies r into the tail buffer until r is closed or errors, the
// same unconditional best-effort drain raspivid.go runs over its own
// child's stderr pipe.
func (t *tailBuffer) drain(r io.Reader) {
	io.Copy(t, r)
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		trimmed := t.buf.Bytes()[t.buf.Len()-t.limit:]
		t.buf = *bytes.NewBuffer(append([]byte(nil), trimmed...))
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
