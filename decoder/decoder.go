/*
NAME
  decoder.go

DESCRIPTION
  decoder drives the FileVault decode pipeline: probe an unknown block
  size and color depth against the metadata frame, apply a calibration-
  derived color correction if a straight parse fails, merge repeated
  data frames by per-channel majority vote, and verify the recovered
  plaintext against its recorded SHA-256. Configured via Config and
  functional Options, mirroring encoder's Config/Option pair and, in
  turn, container/mts's NewEncoder options.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package decoder drives the FileVault decode pipeline.
package decoder

import (
	"crypto/sha256"
	"io"

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

// blockSizeCandidates is the ordered set of block sizes probed when
// (bs, bpc) are not known up front. The order matters: it is the order
// in which candidates are tried, and the first one that parses wins.
var blockSizeCandidates = []int{8, 4, 16, 6, 10, 12, 2}

// bpcCandidates is the ordered set of bits-per-channel values probed
// alongside each block size candidate.
var bpcCandidates = []int{2, 3}

// shiftTolerance is the per-channel offset magnitude, in 8-bit levels,
// beyond which a color-adjusted retry is attempted.
const shiftTolerance = 2

// ErrProbeFailed is returned when no (block size, bpc) combination in
// blockSizeCandidates x bpcCandidates yields a valid metadata record.
var ErrProbeFailed = errors.New("decoder: not a FileVault video")

// ErrPasswordRequired is returned when the metadata record flags
// encryption but no password was configured.
var ErrPasswordRequired = errors.New("decoder: password required")

// ErrDecompressionFailed is returned when inflating the payload fails
// after obfuscation is reversed, most often because the password (or
// lack of one) was wrong.
var ErrDecompressionFailed = errors.New("decoder: decompression failed, password may be wrong")

// Config holds everything Decode needs to recover a file from a raw
// frame stream. Build one with New and zero or more Options.
type Config struct {
	Width    int
	Height   int
	Password string
	Verify   bool
	Log      vlog.Logger
}

// Option configures a Config at construction time.
type Option func(*Config) error

// WithPassword supplies the password used to reverse obfuscation, if
// the stream's metadata flags encryption.
func WithPassword(password string) Option {
	return func(c *Config) error {
		c.Password = password
		return nil
	}
}

// WithVerify causes Decode to report a non-nil error when the recovered
// plaintext's hash disagrees with the recorded one, instead of merely
// logging a warning.
func WithVerify(v bool) Option {
	return func(c *Config) error {
		c.Verify = v
		return nil
	}
}

// WithLogger attaches a logger; New defaults to vlog.Discard.
func WithLogger(l vlog.Logger) Option {
	return func(c *Config) error {
		c.Log = l
		return nil
	}
}

// New builds a Config for a stream of the given pixel geometry.
func New(width, height int, opts ...Option) (*Config, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("decoder: width and height must be positive")
	}
	c := &Config{Width: width, Height: height, Log: vlog.Discard}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Result is the outcome of a successful probe and decode.
type Result struct {
	Filename   string
	Data       []byte
	HashOK     bool
	Compressed bool
	Encrypted  bool
}

// candidate bundles one probed (block size, bpc) combination with its
// derived geometry, palette, and LUTs.
type candidate struct {
	geom         frame.Geometry
	bpc          int
	levels       []byte
	lutR         colorcodec.LUT
	lutG         colorcodec.LUT
	lutB         colorcodec.LUT
	rOff         int
	gOff         int
	bOff         int
}

func levelsForBPC(bpc int) []byte {
	if bpc == 3 {
		return colorcodec.LocalLevels
	}
	return colorcodec.YouTubeLevels
}

func sampleTriples(raw []byte, cand candidate) []blockpack.Triple {
	levels := frame.SampleAdjusted(raw, cand.geom, cand.lutR, cand.lutG, cand.lutB)
	tri := make([]blockpack.Triple, len(levels))
	for i, l := range levels {
		tri[i] = blockpack.Triple{R: l.R, G: l.G, B: l.B}
	}
	return tri
}

func tryParse(raw []byte, cand candidate) (vaultmeta.Record, bool) {
	tri := sampleTriples(raw, cand)
	data := blockpack.Unpack(tri, cand.bpc)
	rec, err := vaultmeta.Parse(data)
	return rec, err == nil
}

// ProbeInfo reports the outcome of probing a stream's geometry and
// color shift, for the CLI's info subcommand.
type ProbeInfo struct {
	BlockSize int
	BPC       int
	// Legacy is true when the metadata record only parsed on the step-4
	// retry, after every plain and color-adjusted candidate failed once.
	Legacy                    bool
	ROffset, GOffset, BOffset int
	ErrorRate                 float64
}

// probeResult bundles everything the shared probe step recovers: the
// matched candidate, the parsed metadata record, and whether the match
// only succeeded on the step-4 retry.
type probeResult struct {
	cand    candidate
	rec     vaultmeta.Record
	legacy  bool
	errRate float64
}

// probeStream reads the first frames of src and recovers (block size,
// bpc), the metadata record, and any color-shift correction needed,
// following the procedure in decoder's package documentation. Frames
// consumed while probing are never replayed as data: once the metadata
// record is found, the data-frame sequence begins at whatever frame src
// hands back next.
func probeStream(c *Config, src transcode.Reader) (*probeResult, error) {
	cache := colorcodec.NewCache()

	f0, err := src.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(ErrProbeFailed, "could not read first frame")
	}
	f1, err := src.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(ErrProbeFailed, "could not read second frame")
	}

	plainCandidates := func() []candidate {
		out := make([]candidate, 0, len(blockSizeCandidates)*len(bpcCandidates))
		for _, bs := range blockSizeCandidates {
			for _, bpc := range bpcCandidates {
				levels := levelsForBPC(bpc)
				lut := cache.Get(levels)
				out = append(out, candidate{
					geom:   frame.Geometry{Width: c.Width, Height: c.Height, BlockSize: bs},
					bpc:    bpc,
					levels: levels,
					lutR:   lut, lutG: lut, lutB: lut,
				})
			}
		}
		return out
	}()

	var found *candidate
	var rec vaultmeta.Record
	var errRate float64
	legacy := false

	// Step 2: straight probe against f1, no color correction. A match
	// here still has its color offsets computed from f0: metadata bytes
	// need not straddle the same palette boundaries as data bytes, so a
	// real per-channel shift can be present even when the metadata frame
	// happens to parse cleanly under the unadjusted LUT.
	for i := range plainCandidates {
		if r, ok := tryParse(f1, plainCandidates[i]); ok {
			cand := plainCandidates[i]
			rOff, gOff, bOff, rate := calibration.DetectShift(f0, cand.geom, cand.levels)
			cand.rOff, cand.gOff, cand.bOff = rOff, gOff, bOff
			errRate = rate
			if abs(rOff) > shiftTolerance || abs(gOff) > shiftTolerance || abs(bOff) > shiftTolerance {
				cand.lutR, cand.lutG, cand.lutB = colorcodec.BuildAdjustedLUT(cand.levels, rOff, gOff, bOff)
			}
			plainCandidates[i] = cand
			found, rec = &plainCandidates[i], r
			break
		}
	}

	// Step 3: retry with calibration-adjusted LUTs derived from f0.
	if found == nil {
		for i := range plainCandidates {
			cand := plainCandidates[i]
			rOff, gOff, bOff, rate := calibration.DetectShift(f0, cand.geom, cand.levels)
			if abs(rOff) <= shiftTolerance && abs(gOff) <= shiftTolerance && abs(bOff) <= shiftTolerance {
				continue
			}
			cand.rOff, cand.gOff, cand.bOff = rOff, gOff, bOff
			cand.lutR, cand.lutG, cand.lutB = colorcodec.BuildAdjustedLUT(cand.levels, rOff, gOff, bOff)
			if r, ok := tryParse(f1, cand); ok {
				plainCandidates[i] = cand
				found, rec = &plainCandidates[i], r
				errRate = rate
				break
			}
		}
	}

	// Step 4: the metadata frame failed to parse under every candidate
	// either plain or color-adjusted. Before giving up, confirm the
	// stream carries at least one frame beyond the metadata frame, then
	// retry the plain, unadjusted probe against the metadata frame
	// (f1, the original C1 position) once more.
	if found == nil {
		if _, err := src.ReadFrame(); err != nil {
			return nil, ErrProbeFailed
		}
		for i := range plainCandidates {
			if r, ok := tryParse(f1, plainCandidates[i]); ok {
				found, rec = &plainCandidates[i], r
				legacy = true
				break
			}
		}
		if found == nil {
			return nil, ErrProbeFailed
		}
	}

	return &probeResult{cand: *found, rec: rec, legacy: legacy, errRate: errRate}, nil
}

// Probe recovers a stream's metadata record and color-shift diagnostics
// without decoding the full payload, for the CLI's info subcommand.
func Probe(c *Config, src transcode.Reader) (vaultmeta.Record, ProbeInfo, error) {
	pr, err := probeStream(c, src)
	if err != nil {
		return vaultmeta.Record{}, ProbeInfo{}, err
	}
	info := ProbeInfo{
		BlockSize: pr.cand.geom.BlockSize,
		BPC:       pr.cand.bpc,
		Legacy:    pr.legacy,
		ROffset:   pr.cand.rOff,
		GOffset:   pr.cand.gOff,
		BOffset:   pr.cand.bOff,
		ErrorRate: pr.errRate,
	}
	return pr.rec, info, nil
}

// Decode reads frames from src and reconstructs the original file.
func Decode(c *Config, src transcode.Reader) (*Result, error) {
	pr, err := probeStream(c, src)
	if err != nil {
		return nil, err
	}
	found := &pr.cand
	rec := pr.rec
	legacy := pr.legacy

	if rec.Encrypted && c.Password == "" {
		return nil, ErrPasswordRequired
	}

	c.Log.Info("probe succeeded", "block_size", found.geom.BlockSize, "bpc", found.bpc, "legacy", legacy)

	bpf := found.geom.BlockCount() * 3 * found.bpc / 8
	needFrames := int((rec.PayloadSize + uint64(bpf) - 1) / uint64(bpf))
	if needFrames == 0 {
		needFrames = 1
	}
	repeat := int(rec.Repeat)
	if repeat < 1 {
		repeat = 1
	}

	body := make([]byte, 0, needFrames*bpf)

	for frameIdx := 0; frameIdx < needFrames; frameIdx++ {
		group := make([][]byte, 0, repeat)
		for len(group) < repeat {
			buf, err := src.ReadFrame()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.Wrap(err, "decoder: read data frame")
			}
			group = append(group, buf)
		}
		if len(group) == 0 {
			c.Log.Warning("stream ended before all data frames were read", "frame", frameIdx, "needed", needFrames)
			break
		}
		chunk, err := mergeGroup(group, *found)
		if err != nil {
			return nil, errors.Wrap(err, "decoder: merge frame group")
		}
		body = append(body, chunk...)
	}

	if uint64(len(body)) > rec.PayloadSize {
		body = body[:rec.PayloadSize]
	} else if uint64(len(body)) < rec.PayloadSize {
		c.Log.Warning("recovered payload shorter than recorded size", "got", len(body), "want", rec.PayloadSize)
	}

	plain, err := unwrap(body, rec, c.Password)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(plain)
	hashOK := sum == rec.FileHash
	if !hashOK {
		c.Log.Warning("recovered file hash does not match recorded hash", "file", rec.Filename)
		if c.Verify {
			return &Result{Filename: rec.Filename, Data: plain, HashOK: false, Compressed: rec.Compressed, Encrypted: rec.Encrypted},
				errors.New("decoder: hash mismatch")
		}
	}

	return &Result{
		Filename:   rec.Filename,
		Data:       plain,
		HashOK:     hashOK,
		Compressed: rec.Compressed,
		Encrypted:  rec.Encrypted,
	}, nil
}

// mergeGroup decodes each raw frame in group to its per-block palette
// indices and, when there is more than one, takes the per-channel
// majority vote (ties broken towards the lower index) before unpacking
// to bytes.
func mergeGroup(group [][]byte, cand candidate) ([]byte, error) {
	if len(group) == 1 {
		tri := sampleTriples(group[0], cand)
		return blockpack.Unpack(tri, cand.bpc), nil
	}

	all := make([][]blockpack.Triple, len(group))
	for i, raw := range group {
		all[i] = sampleTriples(raw, cand)
	}

	n := len(all[0])
	merged := make([]blockpack.Triple, n)
	numLevels := len(cand.levels)
	for i := 0; i < n; i++ {
		merged[i] = blockpack.Triple{
			R: majority(all, i, 'R', numLevels),
			G: majority(all, i, 'G', numLevels),
			B: majority(all, i, 'B', numLevels),
		}
	}
	return blockpack.Unpack(merged, cand.bpc), nil
}

// majority returns the most frequent value of the named channel at
// block index i across all frames in the group, ties broken towards the
// lower index.
func majority(group [][]blockpack.Triple, i int, channel byte, numLevels int) uint8 {
	counts := make([]int, numLevels)
	for _, tri := range group {
		var v uint8
		switch channel {
		case 'R':
			v = tri[i].R
		case 'G':
			v = tri[i].G
		case 'B':
			v = tri[i].B
		}
		counts[v]++
	}
	best := 0
	for idx := 1; idx < numLevels; idx++ {
		if counts[idx] > counts[best] {
			best = idx
		}
	}
	return uint8(best)
}

// unwrap reverses encryption then decompression on body, per rec's
// flags.
func unwrap(body []byte, rec vaultmeta.Record, password string) ([]byte, error) {
	plain := body
	if rec.Encrypted {
		plain = payload.Deobfuscate(plain, password, rec.Salt)
	}
	out, err := payload.Decompress(plain, rec.Compressed)
	if err != nil {
		return nil, errors.Wrap(ErrDecompressionFailed, err.Error())
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
