package camera

import(
	"math"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
)

// FocalsFromHomography recovers the focal lengths of both cameras from a
// homography between them (on image-centred coordinates), assuming pure
// rotation. Either value may be unrecoverable.
func FocalsFromHomography(H emath.Mat3) (f0, f1 float64, f0ok, f1ok bool) {
	h := H

	pick := func(d1, d2, v1, v2 float64) (float64, bool) {
		if v1 < v2 {
			v1, v2 = v2, v1
		}
		var f float64
		switch {
		case v1 > 0 && v2 > 0:
			if math.Abs(d1) > math.Abs(d2) {
				f = math.Sqrt(v1)
			} else {
				f = math.Sqrt(v2)
			}
		case v1 > 0:
			f = math.Sqrt(v1)
		default:
			return 0, false
		}
		return f, !math.IsInf(f, 0) && !math.IsNaN(f)
	}

	d1 := h[6] * h[7]
	d2 := (h[7] - h[6]) * (h[7] + h[6])
	v1 := -(h[0]*h[1] + h[3]*h[4]) / d1
	v2 := (h[0]*h[0] + h[3]*h[3] - h[1]*h[1] - h[4]*h[4]) / d2
	f1, f1ok = pick(d1, d2, v1, v2)

	d1 = h[0]*h[3] + h[1]*h[4]
	d2 = h[0]*h[0] + h[1]*h[1] - h[3]*h[3] - h[4]*h[4]
	v1 = -h[2] * h[5] / d1
	v2 = (h[5]*h[5] - h[2]*h[2]) / d2
	f0, f0ok = pick(d1, d2, v1, v2)

	return
}

// EstimateFocal gives every image the same focal: the median of the
// per-pair estimates when there are enough of them, otherwise a guess
// from the image dimensions.
func EstimateFocal(feats []features.FeatureSet, pairs matching.Table) []float64 {
	n := len(feats)
	focals := make([]float64, n)

	all := []float64{}
	for i:=0; i<n; i++ {
		for j:=0; j<n; j++ {
			mi := pairs.Get(i, j)
			if mi.H == nil {
				continue
			}
			f0, f1, ok0, ok1 := FocalsFromHomography(*mi.H)
			if ok0 && ok1 {
				all = append(all, math.Sqrt(f0*f1))
			}
		}
	}

	if len(all) >= n-1 && len(all) > 0 {
		median := emath.Median(all)
		for i := range focals {
			focals[i] = median
		}
		return focals
	}

	sum := 0.0
	for _, f := range feats {
		sum += float64(f.ImageSize.X + f.ImageSize.Y)
	}
	for i := range focals {
		focals[i] = sum / float64(n)
	}
	return focals
}
