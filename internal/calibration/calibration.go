/*
NAME
  calibration.go

DESCRIPTION
  calibration generates the deterministic test-pattern frame used to
  estimate the constant per-channel color bias a lossy re-encode
  introduces, and recovers that bias (plus a block error rate) from an
  observed copy of the frame.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package calibration builds and reads the fixed calibration frame.
package calibration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vaultcodec/filevault/internal/colorcodec"
	"github.com/vaultcodec/filevault/internal/frame"
)

// borderBlocks is the width, in blocks, of the grey border region on
// every edge of the calibration grid.
const borderBlocks = 2

// Generate renders the calibration frame for geom and levels. Border
// blocks (the outermost two block-rows/columns) carry a single grey
// level; interior blocks carry a deterministic, position-derived RGB
// triple, so that DetectShift can recompute the expected value of any
// interior block without reading anything but (gx, gy).
func Generate(geom frame.Geometry, levels []byte) []byte {
	gw, gh := geom.GridWidth(), geom.GridHeight()
	out := make([]frame.Level, gw*gh)

	for gy := 0; gy < gh; gy++ {
		for gx := 0; gx < gw; gx++ {
			out[gy*gw+gx] = expected(gx, gy, gw, gh, levels)
		}
	}

	return frame.Render(geom, out)
}

// expected returns the calibration frame's deterministic color at block
// (gx, gy) of a grid gw x gh built from levels.
func expected(gx, gy, gw, gh int, levels []byte) frame.Level {
	l := len(levels)
	if gy < borderBlocks || gy >= gh-borderBlocks || gx < borderBlocks || gx >= gw-borderBlocks {
		v := levels[(gx+gy)%l]
		return frame.Level{R: v, G: v, B: v}
	}

	ci := ((gx - borderBlocks) + (gy-borderBlocks)*(gw-2*borderBlocks)) % l
	return frame.Level{
		R: levels[ci%l],
		G: levels[(ci+1)%l],
		B: levels[(ci+2)%l],
	}
}

// interiorSampleLimit bounds how many interior rows/columns DetectShift
// samples: min(interiorSampleLimit, grid-2) in each dimension.
const interiorSampleLimit = 10

// DetectShift samples the interior of an observed calibration frame and
// returns the mean per-channel offset (observed - expected) plus the
// fraction of sampled channel values whose nearest-level quantization
// disagrees with the expected index.
func DetectShift(observed []byte, geom frame.Geometry, levels []byte) (rOff, gOff, bOff int, errRate float64) {
	gw, gh := geom.GridWidth(), geom.GridHeight()
	bs := geom.BlockSize
	half := bs / 2
	w3 := geom.Width * 3

	yEnd := gh - borderBlocks
	if yEnd > interiorSampleLimit {
		yEnd = interiorSampleLimit
	}
	xEnd := gw - borderBlocks
	if xEnd > interiorSampleLimit {
		xEnd = interiorSampleLimit
	}

	var offR, offG, offB []float64
	var errors, total int

	for gy := borderBlocks; gy < yEnd; gy++ {
		for gx := borderBlocks; gx < xEnd; gx++ {
			exp := expected(gx, gy, gw, gh, levels)

			cy := gy*bs + half
			cx := gx*bs + half
			o := cy*w3 + cx*3
			actR := int(observed[o])
			actG := int(observed[o+1])
			actB := int(observed[o+2])

			offR = append(offR, float64(actR-int(exp.R)))
			offG = append(offG, float64(actG-int(exp.G)))
			offB = append(offB, float64(actB-int(exp.B)))

			if colorcodec.Index(levels, actR) != colorcodec.Index(levels, int(exp.R)) {
				errors++
			}
			if colorcodec.Index(levels, actG) != colorcodec.Index(levels, int(exp.G)) {
				errors++
			}
			if colorcodec.Index(levels, actB) != colorcodec.Index(levels, int(exp.B)) {
				errors++
			}
			total += 3
		}
	}

	if len(offR) == 0 {
		return 0, 0, 0, 0
	}

	rOff = floorMean(offR)
	gOff = floorMean(offG)
	bOff = floorMean(offB)
	if total > 0 {
		errRate = float64(errors) / float64(total)
	}
	return rOff, gOff, bOff, errRate
}

// floorMean returns the floor of the arithmetic mean of vs, matching the
// reference implementation's use of integer floor division (sum // len)
// rather than round-half-even or truncate-toward-zero.
func floorMean(vs []float64) int {
	return int(math.Floor(stat.Mean(vs, nil)))
}
