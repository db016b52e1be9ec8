package frame

import (
	"testing"

	"github.com/vaultcodec/filevault/internal/colorcodec"
)

func TestRenderZeroesMargin(t *testing.T) {
	geom := Geometry{Width: 10, Height: 10, BlockSize: 4} // grid 2x2, margin strip
	levels := make([]Level, geom.BlockCount())
	for i := range levels {
		levels[i] = Level{255, 255, 255}
	}
	buf := Render(geom, levels)

	w3 := geom.Width * 3
	// Row 8 and 9 (beyond the 2 block rows of height 8) must be zero.
	for py := 8; py < 10; py++ {
		for x := 0; x < w3; x++ {
			if buf[py*w3+x] != 0 {
				t.Fatalf("margin row %d not zeroed at byte %d", py, x)
			}
		}
	}
	// Column margin (x >= 8 pixels) within in-bounds rows must be zero.
	for py := 0; py < 8; py++ {
		for x := 8 * 3; x < w3; x++ {
			if buf[py*w3+x] != 0 {
				t.Fatalf("margin col not zeroed at row %d byte %d", py, x)
			}
		}
	}
}

func TestRenderSampleRoundTrip(t *testing.T) {
	geom := Geometry{Width: 32, Height: 32, BlockSize: 8}
	lut := colorcodec.BuildLUT(colorcodec.YouTubeLevels)

	levels := make([]Level, geom.BlockCount())
	for i := range levels {
		c := colorcodec.YouTubeLevels[i%len(colorcodec.YouTubeLevels)]
		levels[i] = Level{c, c, c}
	}

	raw := Render(geom, levels)
	got := Sample(raw, geom, lut)

	for i, l := range levels {
		wantIdx := colorcodec.Index(colorcodec.YouTubeLevels, int(l.R))
		if int(got[i].R) != wantIdx || int(got[i].G) != wantIdx || int(got[i].B) != wantIdx {
			t.Fatalf("block %d: got %+v want index %d", i, got[i], wantIdx)
		}
	}
}

func TestGeometryHelpers(t *testing.T) {
	geom := Geometry{Width: 642, Height: 481, BlockSize: 8}
	if geom.GridWidth() != 80 {
		t.Errorf("GridWidth: got %d want 80", geom.GridWidth())
	}
	if geom.GridHeight() != 60 {
		t.Errorf("GridHeight: got %d want 60", geom.GridHeight())
	}
	if geom.Size() != 642*481*3 {
		t.Errorf("Size: got %d want %d", geom.Size(), 642*481*3)
	}
}
