package colorcodec

import "testing"

func TestBuildLUTNearest(t *testing.T) {
	for _, levels := range [][]byte{YouTubeLevels, LocalLevels} {
		lut := BuildLUT(levels)
		for v := 0; v < 256; v++ {
			want := bruteNearest(levels, v)
			if int(lut[v]) != want {
				t.Errorf("levels=%v v=%d: got %d want %d", levels, v, lut[v], want)
			}
		}
	}
}

// bruteNearest is an independent, naively-written reference
// implementation used only by the test to cross-check BuildLUT.
func bruteNearest(levels []byte, v int) int {
	best := 0
	bestDist := 1 << 30
	for i, l := range levels {
		d := int(l) - v
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func TestBuildLUTTieBreak(t *testing.T) {
	// Levels 10 and 20 are equidistant from 15; lower index wins.
	levels := []byte{10, 20}
	lut := BuildLUT(levels)
	if lut[15] != 0 {
		t.Errorf("tie-break: got index %d, want 0", lut[15])
	}
}

func TestBuildAdjustedLUTMatchesShift(t *testing.T) {
	levels := YouTubeLevels
	lutR, lutG, lutB := BuildAdjustedLUT(levels, 10, 0, -5)
	plain := BuildLUT(levels)

	for v := 0; v < 256; v++ {
		wantR := plain[clamp(v-10)]
		wantG := plain[v]
		wantB := plain[clamp(v+5)]
		if lutR[v] != wantR || lutG[v] != wantG || lutB[v] != wantB {
			t.Fatalf("v=%d: got (%d,%d,%d) want (%d,%d,%d)", v, lutR[v], lutG[v], lutB[v], wantR, wantG, wantB)
		}
	}
}

func TestCacheReuse(t *testing.T) {
	c := NewCache()
	a := c.Get(YouTubeLevels)
	b := c.Get(YouTubeLevels)
	if a != b {
		t.Error("cache returned different LUTs for the same palette")
	}
}
