package features

import(
	"math"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

const(
	harrisK      = 0.04
	harrisMargin = 10 // descriptor window is 16x16 around the keypoint

	descCells = 4
	descBins  = 8
	descSize  = descCells * descCells * descBins
	descClip  = 0.2
)

// harrisResponse is det(M) - k·trace(M)² of the structure tensor summed
// over a 5x5 window.
func harrisResponse(gx, gy emath.FloatGrid) emath.FloatGrid {
	xx, yy, xy := gx.NewFromThis(), gx.NewFromThis(), gx.NewFromThis()
	for y:=0; y<gx.Dy(); y++ {
		for x:=0; x<gx.Dx(); x++ {
			a, b := gx.Get(x, y), gy.Get(x, y)
			xx.Set(x, y, a*a)
			yy.Set(x, y, b*b)
			xy.Set(x, y, a*b)
		}
	}
	sxx, syy, sxy := xx.BoxSum(2), yy.BoxSum(2), xy.BoxSum(2)

	r := gx.NewFromThis()
	for y:=0; y<r.Dy(); y++ {
		for x:=0; x<r.Dx(); x++ {
			a, b, c := sxx.Get(x, y), syy.Get(x, y), sxy.Get(x, y)
			tr := a + b
			r.Set(x, y, a*b - c*c - harrisK*tr*tr)
		}
	}
	return r
}

// gradientDescriptors builds a 4x4 grid of 8-bin orientation histograms
// over the 16x16 window around each keypoint, gaussian weighted, then
// normalised, clipped and renormalised.
func gradientDescriptors(gx, gy emath.FloatGrid, kps []Keypoint) [][]float32 {
	out := make([][]float32, len(kps))
	const sigma2 = 2 * 8.0 * 8.0

	for i, kp := range kps {
		hist := make([]float64, descSize)
		x0, y0 := int(kp.Pt.X), int(kp.Pt.Y)

		for dy:=-8; dy<8; dy++ {
			for dx:=-8; dx<8; dx++ {
				a, b := gx.Get(x0+dx, y0+dy), gy.Get(x0+dx, y0+dy)
				mag := math.Hypot(a, b)
				if mag == 0 {
					continue
				}
				ox, oy := float64(dx)+0.5, float64(dy)+0.5
				mag *= math.Exp(-(ox*ox + oy*oy) / sigma2)

				ang := math.Atan2(b, a)
				if ang < 0 {
					ang += 2 * math.Pi
				}
				f := ang / (2 * math.Pi) * descBins
				b0 := int(math.Floor(f))
				frac := f - float64(b0)
				b0 %= descBins
				b1 := (b0 + 1) % descBins

				cell := ((dy+8)/4)*descCells + (dx+8)/4
				hist[cell*descBins + b0] += mag * (1 - frac)
				hist[cell*descBins + b1] += mag * frac
			}
		}

		clipNormalize(hist)

		desc := make([]float32, descSize)
		for j, v := range hist {
			desc[j] = float32(v)
		}
		out[i] = desc
	}
	return out
}

// clipNormalize scales v to unit length, caps every entry at descClip
// and renormalises, so no single gradient dominates the descriptor.
func clipNormalize(v []float64) {
	normalize(v)
	for j := range v {
		if v[j] > descClip {
			v[j] = descClip
		}
	}
	normalize(v)
}

func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}
