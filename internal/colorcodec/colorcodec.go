/*
NAME
  colorcodec.go

DESCRIPTION
  colorcodec provides the nearest-level quantization tables used to map an
  observed 8-bit channel value to an index into a fixed intensity palette,
  and the color-shift-adjusted variant used once a calibration frame has
  revealed a constant per-channel bias.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package colorcodec implements nearest-level quantization of a byte
// intensity against a fixed palette, and the LUT cache used to avoid
// rebuilding those tables on every frame.
package colorcodec

// YouTubeLevels is the 4-entry palette used in "youtube" mode: 2 bits per
// channel.
var YouTubeLevels = []byte{0, 85, 170, 255}

// LocalLevels is the 8-entry palette used in "local" mode: 3 bits per
// channel.
var LocalLevels = []byte{0, 36, 73, 109, 146, 182, 219, 255}

// LUT maps an observed byte value [0,255] to a palette index.
type LUT [256]uint8

// BuildLUT returns the LUT that maps every possible byte value to the
// index of the nearest entry in levels, ties broken towards the lower
// index.
func BuildLUT(levels []byte) LUT {
	var lut LUT
	for v := 0; v < 256; v++ {
		lut[v] = nearest(levels, v)
	}
	return lut
}

// BuildAdjustedLUT returns three LUTs, one per channel, that first shift
// the observed value by the negative of the given per-channel offset
// (clamping to [0,255]) before quantizing against levels. This absorbs a
// constant color bias introduced by lossy re-encoding.
func BuildAdjustedLUT(levels []byte, rOff, gOff, bOff int) (lutR, lutG, lutB LUT) {
	for v := 0; v < 256; v++ {
		lutR[v] = nearest(levels, clamp(v-rOff))
		lutG[v] = nearest(levels, clamp(v-gOff))
		lutB[v] = nearest(levels, clamp(v-bOff))
	}
	return lutR, lutG, lutB
}

// Index returns the palette index of the nearest level to v in levels,
// ties broken towards the lower index. It is the non-table form of
// BuildLUT, used where only a handful of lookups are needed (e.g.
// calibration error-rate checks) and a full 256-entry table would be
// wasted.
func Index(levels []byte, v int) int {
	return int(nearest(levels, v))
}

func nearest(levels []byte, v int) uint8 {
	best := 0
	bestDist := abs(v - int(levels[0]))
	for i := 1; i < len(levels); i++ {
		d := abs(v - int(levels[i]))
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return uint8(best)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Cache memoizes LUTs by the palette that produced them. Callers should
// scope one Cache per decode rather than sharing it as package-level
// state, since nothing here is safe for concurrent use.
type Cache struct {
	luts map[string]LUT
}

// NewCache returns an empty LUT cache.
func NewCache() *Cache {
	return &Cache{luts: make(map[string]LUT)}
}

// Get returns the LUT for levels, building and storing it on first use.
func (c *Cache) Get(levels []byte) LUT {
	key := string(levels)
	if lut, ok := c.luts[key]; ok {
		return lut
	}
	lut := BuildLUT(levels)
	c.luts[key] = lut
	return lut
}
