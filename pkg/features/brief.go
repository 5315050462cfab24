package features

import(
	"math"
	"math/rand"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

const(
	briefBits   = 256
	briefRadius = 15
	briefMargin = briefRadius + 1
	orbMargin   = 22 // a rotated pattern point can reach 15·√2
)

type pointPair struct{ x1, y1, x2, y2 int }

// The sampling pattern is fixed: a seeded generator, isotropic gaussian
// of sigma 31/5, clamped to the patch.
var briefPattern = func() [briefBits]pointPair {
	rng := rand.New(rand.NewSource(0x0b51ef))
	coord := func() int {
		v := math.Round(rng.NormFloat64() * 31.0 / 5.0)
		return int(emath.Clamp(v, -briefRadius, briefRadius))
	}
	var p [briefBits]pointPair
	for i := range p {
		p[i] = pointPair{coord(), coord(), coord(), coord()}
	}
	return p
}()

// centroidAngle is the intensity centroid orientation over a disc of
// radius 15.
func centroidAngle(g emath.FloatGrid, kp Keypoint) float64 {
	x0, y0 := int(kp.Pt.X), int(kp.Pt.Y)
	m10, m01 := 0.0, 0.0
	for dy:=-briefRadius; dy<=briefRadius; dy++ {
		for dx:=-briefRadius; dx<=briefRadius; dx++ {
			if dx*dx+dy*dy > briefRadius*briefRadius {
				continue
			}
			v := g.Get(x0+dx, y0+dy)
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

func briefDescriptors(g emath.FloatGrid, kps []Keypoint, steered bool) [][4]uint64 {
	out := make([][4]uint64, len(kps))
	for i, kp := range kps {
		x0, y0 := int(kp.Pt.X), int(kp.Pt.Y)
		s, c := 0.0, 1.0
		if steered {
			s, c = math.Sincos(kp.Angle)
		}
		rot := func(x, y int) (int, int) {
			fx, fy := float64(x), float64(y)
			return int(math.Round(c*fx - s*fy)), int(math.Round(s*fx + c*fy))
		}

		var d [4]uint64
		for b, pp := range briefPattern {
			ax, ay := rot(pp.x1, pp.y1)
			bx, by := rot(pp.x2, pp.y2)
			if g.Get(x0+ax, y0+ay) < g.Get(x0+bx, y0+by) {
				d[b/64] |= 1 << uint(b%64)
			}
		}
		out[i] = d
	}
	return out
}
