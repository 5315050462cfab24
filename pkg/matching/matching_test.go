package matching

import(
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/raster"
	"github.com/abworrall/pano-stitch/pkg/synth"
)

func TestParseModel(t *testing.T) {
	m, err := ParseModel("affine")
	require.NoError(t, err)
	assert.Equal(t, Affine, m)
	_, err = ParseModel("fundamental")
	assert.Error(t, err)
}

func correspondences(H emath.Mat3, n, nOutliers int, rng *rand.Rand) ([]r2.Point, []r2.Point) {
	src, dst := []r2.Point{}, []r2.Point{}
	for i:=0; i<n; i++ {
		p := r2.Point{X: rng.Float64()*200 - 100, Y: rng.Float64()*150 - 75}
		x, y := H.Project(p.X, p.Y)
		q := r2.Point{X: x, Y: y}
		if i < nOutliers {
			q = r2.Point{X: rng.Float64()*200 - 100, Y: rng.Float64()*150 - 75}
		}
		src, dst = append(src, p), append(dst, q)
	}
	return src, dst
}

func TestRansacHomography(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	want := emath.Mat3{1.1, 0.05, 12,   -0.03, 0.95, -7,   1e-4, -2e-4, 1}
	src, dst := correspondences(want, 60, 15, rng)

	H, mask := ransac(homographyEstimator{}, src, dst, defaultRansac, rng)
	require.NotNil(t, H)
	n := 0
	for i, in := range mask {
		if in { n++ }
		if i >= 15 {
			assert.True(t, in, "true correspondence %d rejected", i)
		}
	}
	assert.True(t, n >= 45)
	for k := range want {
		assert.InDelta(t, want[k], H[k], 1e-3*math.Max(1, math.Abs(want[k])))
	}
}

func TestSimilarityFit(t *testing.T) {
	want := emath.Similarity(0.9, 0.2, 30, -4).Mat3()
	src, dst := correspondences(want, 10, 0, rand.New(rand.NewSource(2)))

	got, ok := similarityEstimator{}.Fit(src, dst)
	require.True(t, ok)
	for k := range want {
		assert.InDelta(t, want[k], got[k], 1e-9)
	}

	assert.True(t, similarityEstimator{}.Degenerate([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}}, dst[:2]))
}

func TestCollinearSampleIsDegenerate(t *testing.T) {
	line := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 5, Y: 0}}
	square := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	assert.True(t, homographyEstimator{}.Degenerate(line, square))
	assert.False(t, homographyEstimator{}.Degenerate(square, square))
}

func TestUpdateNumIters(t *testing.T) {
	assert.Equal(t, 0, updateNumIters(0.995, 0, 4, 2000))
	assert.Equal(t, 2000, updateNumIters(0.995, 0.99, 4, 2000))
	n := updateNumIters(0.995, 0.5, 4, 2000)
	assert.True(t, n > 0 && n < 2000, "got %d", n)
}

func TestDual(t *testing.T) {
	H := emath.Mat3{1, 0, 5,   0, 1, -3,   0, 0, 1}
	mi := MatchesInfo{Src: 0, Dst: 1, H: &H, NumInliers: 1, Confidence: 0.5,
		Matches: []Match{{QueryIdx: 3, TrainIdx: 7}}, Inliers: []bool{true}}
	d := mi.Dual()
	assert.Equal(t, 1, d.Src)
	assert.Equal(t, 0, d.Dst)
	assert.Equal(t, Match{QueryIdx: 7, TrainIdx: 3}, d.Matches[0])
	require.NotNil(t, d.H)
	assert.InDelta(t, -5.0, d.H[2], 1e-12)
	assert.InDelta(t, 3.0, d.H[5], 1e-12)
}

func tableWithConfidences(n int, conf map[[2]int]float64) Table {
	t := NewTable(n)
	for k, c := range conf {
		H := emath.Identity3()
		t.Set(MatchesInfo{Src: k[0], Dst: k[1], Confidence: c, NumInliers: int(c * 100), H: &H})
	}
	return t
}

func TestLeaveBiggestComponent(t *testing.T) {
	tbl := tableWithConfidences(5, map[[2]int]float64{
		{0, 1}: 0.9, {1, 3}: 0.8, {2, 4}: 1.0, {0, 4}: 0.1,
	})
	keep, sub := LeaveBiggestComponent(tbl, 0.3)
	assert.Equal(t, []int{0, 1, 3}, keep)
	require.Equal(t, 3, sub.N)
	assert.Equal(t, 0.8, sub.Get(1, 2).Confidence)
	assert.Equal(t, 1, sub.Get(1, 2).Src)
	assert.Equal(t, 2, sub.Get(1, 2).Dst)
	assert.Equal(t, 0.8, sub.Get(2, 1).Confidence)
}

func TestMaxSpanningTreeCentre(t *testing.T) {
	// a chain 0-1-2-3-4 with weak cross links
	tbl := tableWithConfidences(5, map[[2]int]float64{
		{0, 1}: 0.9, {1, 2}: 0.9, {2, 3}: 0.9, {3, 4}: 0.9, {0, 4}: 0.05,
	})
	tree, centers := MaxSpanningTree(tbl)
	assert.Equal(t, []int{2}, centers)

	n := tree.WalkBreadthFirst(2, func(Edge) {})
	assert.Equal(t, 5, n)
}

func TestGraphDOT(t *testing.T) {
	tbl := tableWithConfidences(3, map[[2]int]float64{{0, 1}: 1.5})
	dot := GraphDOT([]string{"a.png", "b.png", "c.png"}, tbl, 1.0)
	assert.True(t, strings.HasPrefix(dot, "graph matches_graph{\n"))
	assert.Contains(t, dot, `"a.png" -- "b.png"[label="Nm=0, Ni=150, C=1.5"];`)
	assert.Contains(t, dot, `"c.png";`)
	assert.NotContains(t, dot, `"a.png";`)
}

func detect(t *testing.T, alg features.Algorithm, offsets []int) ([]features.FeatureSet, Table) {
	views := synth.Crops(synth.NewTexture(21), 160, 120, offsets)
	feats := make([]features.FeatureSet, len(views))
	for i, v := range views {
		feats[i] = features.NewDetector(alg, 300).Detect(raster.FromImage(v, 1).Luminance())
		require.True(t, feats[i].Len() > 20)
	}
	conf := 0.65
	if alg.Binary() {
		conf = 0.3
	}
	return feats, NewMatcher(Affine, conf, -1).MatchAll(feats)
}

func TestMatchAllRecoversShift(t *testing.T) {
	for _, alg := range features.Algorithms {
		_, tbl := detect(t, alg, []int{0, 50, 100})

		mi := tbl.Get(0, 1)
		require.NotNil(t, mi.H, "%s: %s", alg, mi)
		assert.InDelta(t, -50, mi.H[2], 1.0, alg.String())
		assert.InDelta(t, 0, mi.H[5], 1.0, alg.String())
		assert.True(t, mi.NumInliers >= minMatches)

		back := tbl.Get(1, 0)
		require.NotNil(t, back.H)
		assert.InDelta(t, 50, back.H[2], 1.0)
		assert.Equal(t, mi.Confidence, back.Confidence)
	}
}

func TestMatchAllIsDeterministic(t *testing.T) {
	feats, a := detect(t, features.Harris, []int{0, 60, 120})
	b := NewMatcher(Affine, 0.65, -1).MatchAll(feats)
	assert.Equal(t, a, b)
}

func TestRangeWidthSkipsDistantPairs(t *testing.T) {
	feats, _ := detect(t, features.BRIEF, []int{0, 40, 80})
	tbl := NewMatcher(Affine, 0.3, 2).MatchAll(feats)
	assert.NotNil(t, tbl.Get(0, 1).H)
	assert.Nil(t, tbl.Get(0, 2).H)
	assert.Empty(t, tbl.Get(0, 2).Matches)
}

func TestConfidenceHistogramAndDraw(t *testing.T) {
	feats, tbl := detect(t, features.Harris, []int{0, 50})
	h := ConfidenceHistogram(tbl)
	require.NotNil(t, h)

	views := synth.Crops(synth.NewTexture(21), 160, 120, []int{0, 50})
	out := filepath.Join(t.TempDir(), "matches.png")
	require.NoError(t, DrawMatches(views[0], views[1], feats[0], feats[1], tbl.Get(0, 1), out))
	assert.FileExists(t, out)
}
