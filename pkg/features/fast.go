package features

import(
	"math"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

// The 16 pixel Bresenham circle of radius 3 used by the FAST segment test.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

const fastArc = 9

// isFastCorner: 9 contiguous circle pixels all brighter than p+t, or all
// darker than p-t.
func isFastCorner(g *emath.FloatGrid, x, y int, t float64) bool {
	p := g.Get(x, y)
	var state [16]int
	for i, o := range fastCircle {
		v := g.Get(x+o[0], y+o[1])
		switch {
		case v > p+t: state[i] = 1
		case v < p-t: state[i] = -1
		}
	}

	run, prev := 0, 0
	for i:=0; i<16+fastArc-1; i++ {
		s := state[i%16]
		if s != 0 && s == prev {
			run++
		} else if s != 0 {
			run = 1
		} else {
			run = 0
		}
		prev = s
		if run >= fastArc {
			return true
		}
	}
	return false
}

// fastScore marks FAST corners with their Harris response (which is what
// ranks them); everything else scores zero.
func fastScore(g emath.FloatGrid, resp emath.FloatGrid, t float64, margin int) emath.FloatGrid {
	score := g.NewFromThis()
	for y:=margin; y<g.Dy()-margin; y++ {
		for x:=margin; x<g.Dx()-margin; x++ {
			if isFastCorner(&g, x, y, t) {
				// FAST corners with a weak or edge-like response still need a positive score
				score.Set(x, y, math.Max(resp.Get(x, y), 1e-12))
			}
		}
	}
	return score
}
