package camera

import(
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
)

func rotY(deg float64) emath.Mat3 {
	return emath.RotationFromVector(r3.Vector{Y: deg * math.Pi / 180})
}

func rotX(deg float64) emath.Mat3 {
	return emath.RotationFromVector(r3.Vector{X: deg * math.Pi / 180})
}

// homography from camera a to camera b, both with focal f and centred
// coordinates.
func rigHomography(f float64, Ra, Rb emath.Mat3) emath.Mat3 {
	K := emath.Diag3(f, f, 1)
	Kinv, _ := K.Inverse()
	H := K.Mult(Rb.T()).Mult(Ra).Mult(Kinv)
	return H.Scale(1 / H[8])
}

func rigTable(f float64, rots []emath.Mat3) matching.Table {
	t := matching.NewTable(len(rots))
	for i:=0; i+1<len(rots); i++ {
		H := rigHomography(f, rots[i], rots[i+1])
		t.Set(matching.MatchesInfo{Src: i, Dst: i + 1, H: &H, NumInliers: 100, Confidence: 1})
	}
	return t
}

func featureSets(n, w, h int) []features.FeatureSet {
	fs := make([]features.FeatureSet, n)
	for i := range fs {
		fs[i].ImageSize = image.Point{w, h}
	}
	return fs
}

func TestMedianFocal(t *testing.T) {
	cams := []Params{{Focal: 30}, {Focal: 10}, {Focal: 20}}
	assert.Equal(t, 20.0, MedianFocal(cams))
	cams = append(cams, Params{Focal: 40})
	assert.Equal(t, 25.0, MedianFocal(cams))
}

func TestScaled(t *testing.T) {
	c := Default()
	c.Focal, c.PPX, c.PPY = 200, 80, 60
	s := c.Scaled(0.5)
	assert.Equal(t, 100.0, s.Focal)
	assert.Equal(t, 40.0, s.PPX)
	assert.Equal(t, 30.0, s.PPY)
	assert.Equal(t, c.R, s.R)
	assert.Equal(t, 200.0, c.Focal, "receiver is not modified")
}

func TestFocalsFromHomography(t *testing.T) {
	R0 := emath.Identity3()
	R1 := rotY(20).Mult(rotX(5)).Mult(emath.RotationFromVector(r3.Vector{Z: 0.03}))
	f0, f1, ok0, ok1 := FocalsFromHomography(rigHomography(300, R0, R1))
	require.True(t, ok0)
	require.True(t, ok1)
	assert.InDelta(t, 300, f0, 1e-3)
	assert.InDelta(t, 300, f1, 1e-3)

	_, _, ok0, ok1 = FocalsFromHomography(emath.Identity3())
	assert.False(t, ok0 && ok1)
}

func TestEstimateFocalFallsBackToImageSize(t *testing.T) {
	fs := featureSets(3, 160, 120)
	focals := EstimateFocal(fs, matching.NewTable(3))
	assert.Equal(t, []float64{280, 280, 280}, focals)
}

func TestHomographyEstimator(t *testing.T) {
	rots := []emath.Mat3{
		rotY(-20).Mult(rotX(3)),
		rotY(0).Mult(rotX(-2)),
		rotY(22).Mult(rotX(1)),
	}
	cams, err := NewEstimator(HomographyBased).Estimate(featureSets(3, 160, 120), rigTable(250, rots))
	require.NoError(t, err)
	require.Len(t, cams, 3)

	for i, c := range cams {
		assert.InDelta(t, 250, c.Focal, 1e-3)
		assert.Equal(t, 80.0, c.PPX)
		assert.Equal(t, 60.0, c.PPY)
		assert.InDelta(t, 0, c.R.OrthoError(), 1e-9)
		assert.InDelta(t, 1, c.R.Det(), 1e-9)

		// relative rotations survive; the rig as a whole is free
		want := rots[1].T().Mult(rots[i])
		got := cams[1].R.T().Mult(c.R)
		for k := range want {
			assert.InDelta(t, want[k], got[k], 1e-6, "cam %d", i)
		}
	}
	// the chain centre keeps the identity
	for k, v := range emath.Identity3() {
		assert.InDelta(t, v, cams[1].R[k], 1e-9)
	}
}

func TestEstimatorRejectsDisconnectedGraph(t *testing.T) {
	rots := []emath.Mat3{rotY(0), rotY(15), rotY(30)}
	tbl := matching.NewTable(3)
	H := rigHomography(250, rots[0], rots[1])
	tbl.Set(matching.MatchesInfo{Src: 0, Dst: 1, H: &H, NumInliers: 50, Confidence: 1})

	_, err := NewEstimator(HomographyBased).Estimate(featureSets(3, 160, 120), tbl)
	assert.Error(t, err)
	_, err = NewEstimator(AffineBased).Estimate(featureSets(3, 160, 120), tbl)
	assert.Error(t, err)
}

func TestAffineEstimator(t *testing.T) {
	tbl := matching.NewTable(3)
	for i, shift := range []float64{-50, -60} {
		H := emath.Identity().Translate(shift, 2).Mat3()
		tbl.Set(matching.MatchesInfo{Src: i, Dst: i + 1, H: &H, NumInliers: 80, Confidence: 1})
	}
	cams, err := NewEstimator(AffineBased).Estimate(featureSets(3, 160, 120), tbl)
	require.NoError(t, err)

	assert.Equal(t, emath.Identity3(), cams[1].Affine)
	x, y := emath.AffFromMat3(cams[0].Affine).Apply(0, 0)
	assert.InDelta(t, -50, x, 1e-9)
	assert.InDelta(t, 2, y, 1e-9)
	x, y = emath.AffFromMat3(cams[2].Affine).Apply(0, 0)
	assert.InDelta(t, 60, x, 1e-9)
	assert.InDelta(t, -2, y, 1e-9)

	for _, c := range cams {
		assert.Equal(t, 1.0, c.Focal)
		assert.Equal(t, emath.Identity3(), c.R)
	}
}

func TestWaveCorrectHorizontal(t *testing.T) {
	tilt := rotX(12).Mult(emath.RotationFromVector(r3.Vector{Z: 0.2}))
	cams := make([]Params, 4)
	for i := range cams {
		cams[i] = Default()
		cams[i].R = tilt.Mult(rotY(float64(i*25 - 30)))
	}
	before := make([]emath.Mat3, len(cams))
	for i := range cams {
		before[i] = cams[i].R
	}

	require.NoError(t, WaveCorrect(cams, WaveHorizontal))
	for i, c := range cams {
		// every x axis now lies in the horizontal plane
		assert.InDelta(t, 0, c.R.Col(0).Y, 1e-9, "cam %d", i)
		assert.InDelta(t, 0, c.R.OrthoError(), 1e-9)

		want := before[0].T().Mult(before[i])
		got := cams[0].R.T().Mult(c.R)
		for k := range want {
			assert.InDelta(t, want[k], got[k], 1e-9)
		}
	}
}

func TestWaveCorrectEdgeCases(t *testing.T) {
	assert.Error(t, WaveCorrect(nil, WaveHorizontal))

	one := []Params{Default()}
	one[0].R = rotX(10)
	require.NoError(t, WaveCorrect(one, WaveHorizontal))
	assert.Equal(t, rotX(10), one[0].R)

	two := []Params{Default(), Default()}
	two[1].R = rotY(30)
	require.NoError(t, WaveCorrect(two, WaveNone))
	assert.Equal(t, emath.Identity3(), two[0].R)

	_, err := ParseWave("diagonal")
	assert.Error(t, err)
}
