// Package matching pairs up features between images, fits a motion
// model to each pair, and works out which images belong together.
package matching

import(
	"fmt"
	"math"
	"math/bits"
	"math/rand"
	"sync"

	"github.com/golang/geo/r2"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/features"
)

// Model is the motion model fitted to each pair.
type Model int

const(
	Homography Model = iota // full 8 DoF, on image-centred coordinates
	Affine                  // 4 DoF similarity, on raw pixel coordinates
)

func (m Model)String() string {
	switch m {
	case Homography: return "homography"
	case Affine:     return "affine"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

func ParseModel(s string) (Model, error) {
	switch s {
	case "homography": return Homography, nil
	case "affine":     return Affine, nil
	}
	return 0, fmt.Errorf("no matcher type named '%s'", s)
}

const(
	minMatches   = 6
	maxConfidence = 3.0
	nWorkers     = 20
)

type Match struct {
	QueryIdx int // keypoint index in Src
	TrainIdx int // keypoint index in Dst
	Distance float64
}

// MatchesInfo describes how image Src relates to image Dst. H maps Src
// points to Dst points, and is nil when no model could be fitted.
type MatchesInfo struct {
	Src, Dst   int
	Matches    []Match
	Inliers    []bool // index-aligned with Matches
	NumInliers int
	H          *emath.Mat3
	Confidence float64
}

func (mi MatchesInfo)String() string {
	return fmt.Sprintf("match[%d->%d, Nm=%d, Ni=%d, C=%.3f, model=%v]", mi.Src, mi.Dst,
		len(mi.Matches), mi.NumInliers, mi.Confidence, mi.H != nil)
}

// Dual is the same relationship seen from Dst.
func (mi MatchesInfo)Dual() MatchesInfo {
	d := MatchesInfo{
		Src:        mi.Dst,
		Dst:        mi.Src,
		NumInliers: mi.NumInliers,
		Confidence: mi.Confidence,
		Inliers:    append([]bool(nil), mi.Inliers...),
	}
	for _, m := range mi.Matches {
		d.Matches = append(d.Matches, Match{m.TrainIdx, m.QueryIdx, m.Distance})
	}
	if mi.H != nil {
		if inv, ok := mi.H.Inverse(); ok {
			d.H = &inv
		}
	}
	return d
}

// Table is the full NxN set of pairwise results; entry (i,j) has Src=i
// and Dst=j, and (j,i) is its dual.
type Table struct {
	N     int
	Pairs []MatchesInfo
}

func NewTable(n int) Table {
	t := Table{N: n, Pairs: make([]MatchesInfo, n*n)}
	for i:=0; i<n; i++ {
		for j:=0; j<n; j++ {
			t.Pairs[i*n+j] = MatchesInfo{Src: i, Dst: j}
		}
	}
	return t
}

func (t Table)Get(i, j int) MatchesInfo { return t.Pairs[i*t.N + j] }

// Set stores mi at (Src,Dst) and its dual at (Dst,Src).
func (t Table)Set(mi MatchesInfo) {
	t.Pairs[mi.Src*t.N + mi.Dst] = mi
	t.Pairs[mi.Dst*t.N + mi.Src] = mi.Dual()
}

// Matcher is a best-of-2-nearest matcher. Confidence is the ratio test
// margin: a match is kept when d1 < (1-Confidence)·d2.
type Matcher struct {
	Model
	Confidence float64
	RangeWidth int // >0 restricts pairs to i < j < i+RangeWidth
}

func NewMatcher(model Model, conf float64, rangeWidth int) Matcher {
	return Matcher{Model: model, Confidence: conf, RangeWidth: rangeWidth}
}

type matchJob struct {
	I, J   int
	Result MatchesInfo
}

// MatchAll matches every candidate pair, using a pool of goroutines.
// The output only depends on the inputs, never on scheduling.
func (m Matcher)MatchAll(feats []features.FeatureSet) Table {
	n := len(feats)
	table := NewTable(n)

	jobs := []matchJob{}
	for i:=0; i<n; i++ {
		for j:=i+1; j<n; j++ {
			if m.RangeWidth > 0 && j >= i+m.RangeWidth {
				continue
			}
			jobs = append(jobs, matchJob{I: i, J: j})
		}
	}

	var wg sync.WaitGroup
	jobsChan    := make(chan matchJob, len(jobs))
	resultsChan := make(chan matchJob, len(jobs))

	for w:=0; w<nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				job.Result = m.MatchPair(feats[job.I], feats[job.J], job.I, job.J, n)
				resultsChan<- job
			}
		}()
	}

	for _, job := range jobs {
		jobsChan<- job
	}
	close(jobsChan)
	wg.Wait()
	close(resultsChan)

	for result := range resultsChan {
		table.Set(result.Result)
	}
	return table
}

// MatchPair matches image i against image j (n is the image count, used
// only to seed the pair's RNG).
func (m Matcher)MatchPair(f1, f2 features.FeatureSet, i, j, n int) MatchesInfo {
	mi := MatchesInfo{Src: i, Dst: j}
	mi.Matches = m.bestOf2Nearest(f1, f2)
	if len(mi.Matches) < minMatches {
		return mi
	}

	src := make([]r2.Point, len(mi.Matches))
	dst := make([]r2.Point, len(mi.Matches))
	for k, mt := range mi.Matches {
		src[k] = f1.Keypoints[mt.QueryIdx].Pt
		dst[k] = f2.Keypoints[mt.TrainIdx].Pt
		if m.Model == Homography {
			src[k] = src[k].Sub(r2.Point{X: float64(f1.ImageSize.X) / 2, Y: float64(f1.ImageSize.Y) / 2})
			dst[k] = dst[k].Sub(r2.Point{X: float64(f2.ImageSize.X) / 2, Y: float64(f2.ImageSize.Y) / 2})
		}
	}

	rng := rand.New(rand.NewSource(int64(i*n + j + 1)))
	var est estimator = homographyEstimator{}
	if m.Model == Affine {
		est = similarityEstimator{}
	}

	H, inliers := ransac(est, src, dst, defaultRansac, rng)
	if H == nil || math.Abs(H.Det()) < 1e-12 {
		return mi
	}
	mi.H, mi.Inliers = H, inliers
	for _, in := range inliers {
		if in {
			mi.NumInliers++
		}
	}

	mi.Confidence = float64(mi.NumInliers) / (8 + 0.3*float64(len(mi.Matches)))
	if mi.Confidence > maxConfidence {
		// near-identical images; they add nothing to a panorama
		mi.Confidence = 0
	}

	if mi.NumInliers < minMatches {
		return mi
	}

	var s, d []r2.Point
	for k := range src {
		if inliers[k] {
			s, d = append(s, src[k]), append(d, dst[k])
		}
	}
	if refit, ok := est.Fit(s, d); ok && refit.IsFinite() && math.Abs(refit.Det()) >= 1e-12 {
		mi.H = &refit
	}
	return mi
}

// bestOf2Nearest runs the ratio test in both directions and keeps the
// union, ordered by query index.
func (m Matcher)bestOf2Nearest(f1, f2 features.FeatureSet) []Match {
	if f1.Len() < 2 || f2.Len() < 2 {
		return nil
	}
	ratio := 1 - m.Confidence

	dist := func(a, b features.FeatureSet, ia, ib int) float64 {
		if a.Binary != nil {
			return hamming(a.Binary[ia], b.Binary[ib])
		}
		return l2(a.Float[ia], b.Float[ib])
	}

	out := []Match{}
	seen := map[[2]int]bool{}

	for q:=0; q<f1.Len(); q++ {
		best, d1, d2 := -1, math.Inf(1), math.Inf(1)
		for t:=0; t<f2.Len(); t++ {
			d := dist(f1, f2, q, t)
			if d < d1 {
				best, d1, d2 = t, d, d1
			} else if d < d2 {
				d2 = d
			}
		}
		if d1 < ratio*d2 {
			seen[[2]int{q, best}] = true
			out = append(out, Match{q, best, d1})
		}
	}

	for t:=0; t<f2.Len(); t++ {
		best, d1, d2 := -1, math.Inf(1), math.Inf(1)
		for q:=0; q<f1.Len(); q++ {
			d := dist(f2, f1, t, q)
			if d < d1 {
				best, d1, d2 = q, d, d1
			} else if d < d2 {
				d2 = d
			}
		}
		if d1 < ratio*d2 && !seen[[2]int{best, t}] {
			out = append(out, Match{best, t, d1})
		}
	}
	return out
}

func hamming(a, b [4]uint64) float64 {
	n := 0
	for i := range a {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return float64(n)
}

func l2(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}
