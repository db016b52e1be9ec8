/*
NAME
  frame.go

DESCRIPTION
  frame tiles a grid of uniform-color blocks into a raw RGB24 pixel
  buffer (encode), and samples such a buffer back into blocks (decode).
  Construction follows a row-buffer-then-copy style rather than an
  image.Image: the wire format here is an exact, margin-zeroed raw byte
  layout, not a decodable picture.

LICENSE
  This software is Copyright (C) 2024 vaultcodec authors. All Rights
  Reserved.
*/

// Package frame renders a block grid to a raw RGB24 frame buffer and
// samples a raw RGB24 frame buffer back into a block grid.
package frame

import "github.com/vaultcodec/filevault/internal/colorcodec"

// Geometry describes a frame's pixel dimensions and block size.
type Geometry struct {
	Width, Height int
	BlockSize     int
}

// GridWidth returns the number of whole blocks across the frame.
func (g Geometry) GridWidth() int { return g.Width / g.BlockSize }

// GridHeight returns the number of whole blocks down the frame.
func (g Geometry) GridHeight() int { return g.Height / g.BlockSize }

// BlockCount returns the total number of blocks in the grid.
func (g Geometry) BlockCount() int { return g.GridWidth() * g.GridHeight() }

// Size returns the number of bytes in a raw RGB24 frame of this geometry.
func (g Geometry) Size() int { return g.Width * g.Height * 3 }

// Level is one block's rendered (R,G,B) color.
type Level struct {
	R, G, B byte
}

// Render tiles levels (row-major, length must equal geom.BlockCount())
// into a zero-margined raw RGB24 buffer.
func Render(geom Geometry, levels []Level) []byte {
	bs := geom.BlockSize
	gw := geom.GridWidth()
	gh := geom.GridHeight()
	w3 := geom.Width * 3

	buf := make([]byte, geom.Size())

	row := make([]byte, w3)
	for gy := 0; gy < gh; gy++ {
		base := gy * gw
		for gx := 0; gx < gw; gx++ {
			l := levels[base+gx]
			off := gx * bs * 3
			for i := 0; i < bs; i++ {
				row[off+i*3] = l.R
				row[off+i*3+1] = l.G
				row[off+i*3+2] = l.B
			}
		}
		for py := gy * bs; py < gy*bs+bs && py < geom.Height; py++ {
			copy(buf[py*w3:py*w3+w3], row)
		}
	}

	return buf
}

// sampleRange returns the symmetric neighbourhood radius to average
// around a block's center before quantizing.
func sampleRange(bs int) int {
	switch {
	case bs >= 6:
		return 2
	case bs >= 4:
		return 1
	default:
		return 0
	}
}

// Sample reads geom.BlockCount() blocks from a raw RGB24 buffer, each
// quantized through lut.
func Sample(raw []byte, geom Geometry, lut colorcodec.LUT) []Level {
	return sample(raw, geom, func(r, g, b int) Level {
		return Level{lut[r], lut[g], lut[b]}
	})
}

// SampleAdjusted is Sample using three independent per-channel LUTs, for
// use once a calibration frame has revealed a color offset.
func SampleAdjusted(raw []byte, geom Geometry, lutR, lutG, lutB colorcodec.LUT) []Level {
	return sample(raw, geom, func(r, g, b int) Level {
		return Level{lutR[r], lutG[g], lutB[b]}
	})
}

func sample(raw []byte, geom Geometry, quantize func(r, g, b int) Level) []Level {
	bs := geom.BlockSize
	gw := geom.GridWidth()
	gh := geom.GridHeight()
	w3 := geom.Width * 3
	half := bs / 2
	rng := sampleRange(bs)

	levels := make([]Level, 0, gw*gh)

	for gy := 0; gy < gh; gy++ {
		cy := gy*bs + half
		for gx := 0; gx < gw; gx++ {
			cx := gx*bs + half

			var rs, gs, bs2, n int
			for dy := -rng; dy <= rng; dy++ {
				for dx := -rng; dx <= rng; dx++ {
					o := (cy+dy)*w3 + (cx+dx)*3
					rs += int(raw[o])
					gs += int(raw[o+1])
					bs2 += int(raw[o+2])
					n++
				}
			}

			levels = append(levels, quantize(rs/n, gs/n, bs2/n))
		}
	}

	return levels
}
