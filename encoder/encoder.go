/*
NAME
  encoder.go

DESCRIPTION
  encoder orchestrates the color codec, bit packer, frame renderer,
  calibration generator, metadata builder and payload pipeline into a
  raw RGB24 frame stream, configured via Config and functional Options
  in the style of container/mts's NewEncoder, validated up front the
  way revid/config.Config.Validate defaults bad fields instead of
  failing hard.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package encoder drives the FileVault encode pipeline: read a file,
// compress and optionally obfuscate it, and emit a calibration frame, a
// metadata frame, and a sequence of data frames to a transcode.Writer.
package encoder

import (
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vaultcodec/filevault/internal/blockpack"
	"github.com/vaultcodec/filevault/internal/calibration"
	"github.com/vaultcodec/filevault/internal/colorcodec"
	"github.com/vaultcodec/filevault/internal/frame"
	"github.com/vaultcodec/filevault/internal/payload"
	"github.com/vaultcodec/filevault/internal/transcode"
	"github.com/vaultcodec/filevault/internal/vaultmeta"
	"github.com/vaultcodec/filevault/internal/vlog"
)

// Mode selects the output color palette (and, by default, block size).
type Mode int

const (
	// ModeYouTube uses the 4-level (2 bpc) palette tuned to survive
	// YouTube's re-encode.
	ModeYouTube Mode = iota
	// ModeLocal uses the 8-level (3 bpc) palette for lossless local
	// storage.
	ModeLocal
)

const (
	defaultYouTubeBlockSize = 8
	defaultLocalBlockSize   = 4
	defaultWidth            = 640
	defaultHeight           = 480
	defaultFPS              = 10
	defaultRepeat           = 1
)

// ErrInputMissing is returned when the configured input file does not
// exist.
var ErrInputMissing = errors.New("encoder: input file not found")

// Config holds everything Encode needs to turn one file into a frame
// stream. Build one with New and zero or more Options.
type Config struct {
	InputPath string
	Mode      Mode
	Width     int
	Height    int
	FPS       int
	Repeat    int
	BlockSize int
	Password  string
	Log       vlog.Logger
}

// Option configures a Config at construction time.
type Option func(*Config) error

// WithBlockSize overrides the default block size for the selected mode.
func WithBlockSize(bs int) Option {
	return func(c *Config) error {
		if bs <= 0 {
			return errors.New("encoder: block size must be positive")
		}
		c.BlockSize = bs
		return nil
	}
}

// WithRepeat sets how many identical copies of each data frame are
// emitted, for majority-vote tolerance on decode.
func WithRepeat(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return errors.New("encoder: repeat must be at least 1")
		}
		c.Repeat = n
		return nil
	}
}

// WithPassword enables obfuscation of the compressed payload.
func WithPassword(password string) Option {
	return func(c *Config) error {
		c.Password = password
		return nil
	}
}

// WithLogger attaches a logger; New defaults to vlog.Discard if this
// option is never applied.
func WithLogger(l vlog.Logger) Option {
	return func(c *Config) error {
		c.Log = l
		return nil
	}
}

// New builds a Config for inputPath in the given mode and frame geometry
// (fps included), applying opts in order. A non-positive width, height
// or fps is replaced by its default. New returns an error for an
// unknown mode or when an option rejects its value (e.g. a
// non-positive block size).
func New(inputPath string, mode Mode, width, height, fps int, opts ...Option) (*Config, error) {
	c := &Config{
		InputPath: inputPath,
		Mode:      mode,
		Width:     width,
		Height:    height,
		FPS:       fps,
		Repeat:    defaultRepeat,
		Log:       vlog.Discard,
	}
	if c.Width <= 0 {
		c.Width = defaultWidth
	}
	if c.Height <= 0 {
		c.Height = defaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = defaultFPS
	}
	switch mode {
	case ModeYouTube:
		c.BlockSize = defaultYouTubeBlockSize
	case ModeLocal:
		c.BlockSize = defaultLocalBlockSize
	default:
		return nil, errors.Errorf("encoder: unknown mode %d", mode)
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// levels returns the color palette for c.Mode.
func (c *Config) levels() []byte {
	if c.Mode == ModeLocal {
		return colorcodec.LocalLevels
	}
	return colorcodec.YouTubeLevels
}

// bpc returns the bits-per-channel implied by c.Mode's palette.
func (c *Config) bpc() int {
	levels := c.levels()
	n := 0
	for 1<<n < len(levels) {
		n++
	}
	return n
}

// geometry returns the frame.Geometry this config renders to.
func (c *Config) geometry() frame.Geometry {
	return frame.Geometry{Width: c.Width, Height: c.Height, BlockSize: c.BlockSize}
}

// bytesPerFrame returns the payload capacity, in bytes, of one data
// frame: (grid_w * grid_h * 3 * bpc) / 8.
func bytesPerFrame(geom frame.Geometry, bpc int) int {
	return geom.BlockCount() * 3 * bpc / 8
}

// Encode reads c.InputPath, builds the calibration, metadata, and data
// frames, and writes them to sink in order. It returns the number of
// data frames written (excluding repeats and the calibration/metadata
// frames).
func Encode(c *Config, sink transcode.Writer) (int, error) {
	raw, err := os.ReadFile(c.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrInputMissing
		}
		return 0, errors.Wrap(err, "encoder: read input file")
	}

	hash := sha256.Sum256(raw)
	geom := c.geometry()
	bpc := c.bpc()
	levels := c.levels()
	bpf := bytesPerFrame(geom, bpc)
	if bpf <= 0 {
		return 0, errors.New("encoder: geometry too small to carry any payload")
	}

	compressed, isCompressed, err := payload.Compress(raw)
	if err != nil {
		return 0, errors.Wrap(err, "encoder: compress payload")
	}

	var body []byte
	var salt [16]byte
	encrypted := c.Password != ""
	if encrypted {
		salt, err = payload.NewSalt()
		if err != nil {
			return 0, errors.Wrap(err, "encoder: generate salt")
		}
		body = payload.Obfuscate(compressed, c.Password, salt)
	} else {
		body = compressed
	}

	rec := vaultmeta.Record{
		BlockSize:    uint8(geom.BlockSize),
		BPC:          uint8(bpc),
		Width:        uint16(geom.Width),
		Height:       uint16(geom.Height),
		FPS:          uint8(c.FPS),
		Repeat:       uint8(c.Repeat),
		Compressed:   isCompressed,
		Encrypted:    encrypted,
		Filename:     filepath.Base(c.InputPath),
		OriginalSize: uint64(len(raw)),
		PayloadSize:  uint64(len(body)),
		FileHash:     hash,
		Salt:         salt,
	}

	emit := func(data []byte, repeats int) error {
		triples := blockpack.Pack(data, geom.BlockCount(), bpc)
		frameLevels := make([]frame.Level, len(triples))
		for i, t := range triples {
			frameLevels[i] = frame.Level{R: levels[t.R], G: levels[t.G], B: levels[t.B]}
		}
		raw := frame.Render(geom, frameLevels)
		for i := 0; i < repeats; i++ {
			if err := sink.Write(raw); err != nil {
				return err
			}
		}
		return nil
	}

	c.Log.Info("encoding", "input", c.InputPath, "bytes", len(raw), "bpf", bpf)

	if err := sink.Write(calibration.Generate(geom, levels)); err != nil {
		return 0, errors.Wrap(err, "encoder: write calibration frame")
	}

	metaFrame := vaultmeta.Build(rec, bpf)
	if err := emit(metaFrame, 1); err != nil {
		return 0, errors.Wrap(err, "encoder: write metadata frame")
	}

	frames := 0
	for off := 0; off < len(body); off += bpf {
		end := off + bpf
		var chunk []byte
		if end <= len(body) {
			chunk = body[off:end]
		} else {
			chunk = make([]byte, bpf)
			copy(chunk, body[off:])
		}
		if err := emit(chunk, c.Repeat); err != nil {
			return frames, errors.Wrapf(err, "encoder: write data frame %d", frames)
		}
		frames++
	}
	if len(body) == 0 {
		if err := emit(make([]byte, bpf), c.Repeat); err != nil {
			return frames, errors.Wrap(err, "encoder: write empty data frame")
		}
		frames++
	}

	c.Log.Info("encode complete", "frames", frames, "compressed", isCompressed, "encrypted", encrypted)
	return frames, nil
}
