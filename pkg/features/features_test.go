package features

import(
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/raster"
	"github.com/abworrall/pano-stitch/pkg/synth"
)

func gray(img image.Image) emath.FloatGrid {
	return raster.FromImage(img, 1).Luminance()
}

func TestParseAlgorithm(t *testing.T) {
	for _, a := range Algorithms {
		got, err := ParseAlgorithm(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAlgorithm("sift")
	assert.Error(t, err)

	assert.False(t, Harris.Binary())
	assert.True(t, ORB.Binary())
	assert.True(t, BRIEF.Binary())
}

func TestFlatImageHasNoFeatures(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	for _, a := range Algorithms {
		fs := NewDetector(a, 500).Detect(gray(img))
		assert.Equal(t, 0, fs.Len(), a.String())
		assert.Equal(t, image.Point{64, 48}, fs.ImageSize)
	}
}

func TestHarrisFindsSquareCorners(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 60, 60))
	for y:=20; y<40; y++ {
		for x:=20; x<40; x++ {
			img.SetGray(x, y, color.Gray{255})
		}
	}
	fs := NewDetector(Harris, 500).Detect(gray(img))
	require.True(t, fs.Len() >= 4, "got %s", fs)
	require.Equal(t, fs.Len(), len(fs.Float))
	assert.Nil(t, fs.Binary)

	for _, c := range []r2.Point{{X: 20, Y: 20}, {X: 39, Y: 20}, {X: 20, Y: 39}, {X: 39, Y: 39}} {
		best := math.Inf(1)
		for _, kp := range fs.Keypoints {
			best = math.Min(best, kp.Pt.Sub(c).Norm())
		}
		assert.True(t, best <= 3, "no keypoint near corner %v (closest %.1f)", c, best)
	}

	for _, d := range fs.Float {
		n := 0.0
		for _, v := range d {
			n += float64(v) * float64(v)
			assert.True(t, v >= 0)
		}
		assert.InDelta(t, 1.0, math.Sqrt(n), 1e-3)
	}
}

func TestClipNormalize(t *testing.T) {
	// one dominant bin, and 24 small ones
	v := make([]float64, 25)
	v[0] = 10
	for i:=1; i<len(v); i++ {
		v[i] = 1
	}
	clipNormalize(v)

	// the big bin was capped at 0.2 against small bins of 1/sqrt(124),
	// and renormalising keeps that ratio
	assert.InDelta(t, 0.2*math.Sqrt(124), v[0]/v[1], 1e-9)
	assert.True(t, v[0] > descClip, "renormalising can lift a clipped bin past the cap")
	n := 0.0
	for _, x := range v {
		n += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(n), 1e-9)

	zero := make([]float64, 4)
	clipNormalize(zero)
	assert.Equal(t, make([]float64, 4), zero)
}

func TestMaxFeaturesCapsAndOrders(t *testing.T) {
	img := synth.Crops(synth.NewTexture(7), 160, 120, []int{0})[0]
	fs := NewDetector(Harris, 25).Detect(gray(img))
	require.Equal(t, 25, fs.Len())
	for i:=1; i<fs.Len(); i++ {
		assert.True(t, fs.Keypoints[i-1].Response >= fs.Keypoints[i].Response)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	img := synth.Crops(synth.NewTexture(3), 160, 120, []int{0})[0]
	g := gray(img)
	for _, a := range Algorithms {
		d := NewDetector(a, 200)
		assert.Equal(t, d.Detect(g), d.Detect(g), a.String())
	}
}

// Two crops of the same flat scene share pixels; away from the image
// borders, every keypoint and descriptor should reappear shifted.
func TestDescriptorsFollowTranslation(t *testing.T) {
	const shift = 40
	views := synth.Crops(synth.NewTexture(11), 160, 120, []int{0, shift})

	for _, a := range Algorithms {
		d := NewDetector(a, 0)
		fa, fb := d.Detect(gray(views[0])), d.Detect(gray(views[1]))

		index := map[image.Point]int{}
		for i, kp := range fa.Keypoints {
			index[image.Point{int(kp.Pt.X), int(kp.Pt.Y)}] = i
		}

		checked := 0
		for j, kp := range fb.Keypoints {
			x, y := int(kp.Pt.X), int(kp.Pt.Y)
			if x < orbMargin+6 || x+shift >= 160-orbMargin-2 {
				continue
			}
			i, ok := index[image.Point{x + shift, y}]
			if !assert.True(t, ok, "%s: keypoint (%d,%d) has no shifted twin", a, x, y) {
				continue
			}
			checked++
			if a.Binary() {
				assert.Equal(t, fa.Binary[i], fb.Binary[j])
			} else {
				assert.Equal(t, fa.Float[i], fb.Float[j])
			}
		}
		assert.True(t, checked > 10, "%s: only %d keypoints checked", a, checked)
	}
}

func TestSteeredBriefIsRotationAware(t *testing.T) {
	// Zero angle steering is the same as no steering.
	img := synth.Crops(synth.NewTexture(5), 120, 120, []int{0})[0]
	g := gray(img).GaussianBlur()
	kps := []Keypoint{{Pt: r2.Point{X: 60, Y: 60}}}
	assert.Equal(t, briefDescriptors(g, kps, false), briefDescriptors(g, kps, true))

	kps[0].Angle = math.Pi / 2
	assert.NotEqual(t, briefDescriptors(g, kps, false), briefDescriptors(g, kps, true))
}

func TestFastCorner(t *testing.T) {
	g := emath.NewFloatGrid(9, 9)
	// a bright pixel on dark ground: all 16 circle pixels are darker
	g.Set(4, 4, 1.0)
	assert.True(t, isFastCorner(&g, 4, 4, 0.1))

	flat := emath.NewFloatGrid(9, 9)
	assert.False(t, isFastCorner(&flat, 4, 4, 0.1))

	// a straight edge lights up at most 7 contiguous circle pixels
	edge := emath.NewFloatGrid(9, 9)
	for y:=0; y<9; y++ {
		for x:=5; x<9; x++ {
			edge.Set(x, y, 1.0)
		}
	}
	assert.False(t, isFastCorner(&edge, 4, 4, 0.1))
}
