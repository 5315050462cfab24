package matching

import(
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

type ransacParams struct {
	Threshold  float64 // max reprojection error of an inlier, in pixels
	Confidence float64
	MaxIters   int
}

var defaultRansac = ransacParams{Threshold: 3.0, Confidence: 0.995, MaxIters: 2000}

// An estimator fits a model to point correspondences; Fit must accept
// any number of points >= SampleSize (least squares beyond that).
type estimator interface {
	SampleSize() int
	Degenerate(src, dst []r2.Point) bool
	Fit(src, dst []r2.Point) (emath.Mat3, bool)
}

// ransac returns the model with the most inliers, and the inlier mask.
func ransac(est estimator, src, dst []r2.Point, p ransacParams, rng *rand.Rand) (*emath.Mat3, []bool) {
	n, m := len(src), est.SampleSize()
	if n < m {
		return nil, nil
	}

	idx := make([]int, m)
	ss, ds := make([]r2.Point, m), make([]r2.Point, m)
	bestCount, niters := 0, p.MaxIters
	var bestH emath.Mat3
	var bestMask []bool

	for iter:=0; iter<niters; iter++ {
		pickDistinct(rng, n, idx)
		for k, i := range idx {
			ss[k], ds[k] = src[i], dst[i]
		}
		if est.Degenerate(ss, ds) {
			continue
		}
		H, ok := est.Fit(ss, ds)
		if !ok || !H.IsFinite() {
			continue
		}

		mask, count := inlierMask(H, src, dst, p.Threshold)
		if count > bestCount {
			bestCount, bestH, bestMask = count, H, mask
			niters = updateNumIters(p.Confidence, float64(n-count)/float64(n), m, niters)
		}
	}

	if bestCount < m {
		return nil, nil
	}
	return &bestH, bestMask
}

func pickDistinct(rng *rand.Rand, n int, idx []int) {
	for k:=0; k<len(idx); {
		idx[k] = rng.Intn(n)
		dup := false
		for j:=0; j<k; j++ {
			dup = dup || idx[j] == idx[k]
		}
		if !dup {
			k++
		}
	}
}

func inlierMask(H emath.Mat3, src, dst []r2.Point, thr float64) ([]bool, int) {
	mask := make([]bool, len(src))
	count := 0
	for i := range src {
		x, y := H.Project(src[i].X, src[i].Y)
		dx, dy := x-dst[i].X, y-dst[i].Y
		if d2 := dx*dx + dy*dy; d2 <= thr*thr {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

// updateNumIters shrinks the iteration budget once the outlier ratio ep
// is known well enough to hit the target confidence.
func updateNumIters(conf, ep float64, modelPoints, maxIters int) int {
	num := math.Max(1-conf, math.SmallestNonzeroFloat64)
	denom := 1 - math.Pow(1-ep, float64(modelPoints))
	if denom < math.SmallestNonzeroFloat64 {
		return 0
	}
	num, denom = math.Log(num), math.Log(denom)
	if denom >= 0 || -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}

type homographyEstimator struct{}

func (homographyEstimator)SampleSize() int { return 4 }

// Degenerate rejects samples with three collinear points in either image.
func (homographyEstimator)Degenerate(src, dst []r2.Point) bool {
	return hasCollinear(src) || hasCollinear(dst)
}

func hasCollinear(pts []r2.Point) bool {
	for i:=0; i<len(pts); i++ {
		for j:=0; j<i; j++ {
			d1 := pts[j].Sub(pts[i])
			for k:=0; k<j; k++ {
				d2 := pts[k].Sub(pts[i])
				eps := 1.2e-7 * (math.Abs(d1.X) + math.Abs(d1.Y) + math.Abs(d2.X) + math.Abs(d2.Y))
				if math.Abs(d2.X*d1.Y - d2.Y*d1.X) <= eps {
					return true
				}
			}
		}
	}
	return false
}

// Fit is the normalised DLT: both point sets are shifted and scaled to
// a mean distance of √2 from the origin, the null vector of the 2n x 9
// system is taken from the SVD, and the normalisation is undone.
func (homographyEstimator)Fit(src, dst []r2.Point) (emath.Mat3, bool) {
	if len(src) < 4 {
		return emath.Mat3{}, false
	}
	t1, ns, ok1 := normalizePoints(src)
	t2, nd, ok2 := normalizePoints(dst)
	if !ok1 || !ok2 {
		return emath.Mat3{}, false
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range ns {
		x, y, u, v := ns[i].X, ns[i].Y, nd[i].X, nd[i].Y
		a.SetRow(2*i,   []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return emath.Mat3{}, false
	}
	var vt mat.Dense
	svd.VTo(&vt)

	var hn emath.Mat3
	for k:=0; k<9; k++ {
		hn[k] = vt.At(k, 8)
	}

	t2inv, ok := t2.Inverse()
	if !ok {
		return emath.Mat3{}, false
	}
	H := t2inv.Mult(hn).Mult(t1)
	if math.Abs(H[8]) < 1e-12 {
		return emath.Mat3{}, false
	}
	return H.Scale(1 / H[8]), true
}

func normalizePoints(pts []r2.Point) (emath.Mat3, []r2.Point, bool) {
	c := r2.Point{}
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))

	d := 0.0
	for _, p := range pts {
		d += p.Sub(c).Norm()
	}
	d /= float64(len(pts))
	if d < 1e-12 {
		return emath.Mat3{}, nil, false
	}
	s := math.Sqrt2 / d

	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(c).Mul(s)
	}
	return emath.Mat3{s, 0, -s * c.X,   0, s, -s * c.Y,   0, 0, 1}, out, true
}

// similarityEstimator fits [a -b tx; b a ty]: rotation, uniform scale
// and translation.
type similarityEstimator struct{}

func (similarityEstimator)SampleSize() int { return 2 }

func (similarityEstimator)Degenerate(src, dst []r2.Point) bool {
	return src[0].Sub(src[1]).Norm() < 1e-6 || dst[0].Sub(dst[1]).Norm() < 1e-6
}

func (similarityEstimator)Fit(src, dst []r2.Point) (emath.Mat3, bool) {
	n := float64(len(src))
	if n < 2 {
		return emath.Mat3{}, false
	}
	cs, cd := r2.Point{}, r2.Point{}
	for i := range src {
		cs, cd = cs.Add(src[i]), cd.Add(dst[i])
	}
	cs, cd = cs.Mul(1/n), cd.Mul(1/n)

	num1, num2, den := 0.0, 0.0, 0.0
	for i := range src {
		p, q := src[i].Sub(cs), dst[i].Sub(cd)
		num1 += p.X*q.X + p.Y*q.Y
		num2 += p.X*q.Y - p.Y*q.X
		den  += p.X*p.X + p.Y*p.Y
	}
	if den < 1e-12 {
		return emath.Mat3{}, false
	}
	a, b := num1/den, num2/den
	tx := cd.X - (a*cs.X - b*cs.Y)
	ty := cd.Y - (b*cs.X + a*cs.Y)
	return emath.Similarity(a, b, tx, ty).Mat3(), true
}
