package warp

import(
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/camera"
	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/raster"
)

func testCam(f float64, rv r3.Vector) camera.Params {
	c := camera.Default()
	c.Focal, c.PPX, c.PPY = f, 80, 60
	c.R = emath.RotationFromVector(rv)
	return c
}

func TestParseKind(t *testing.T) {
	require.Len(t, Kinds(), 16)
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	k, err := ParseKind("compressedPlaneA1.5B1")
	require.NoError(t, err)
	assert.Equal(t, CompressedPlaneA15B1, k)
	_, err = ParseKind("equirectangular")
	assert.Error(t, err)
}

func TestForwardBackwardRoundTrip(t *testing.T) {
	cam := testCam(200, r3.Vector{X: 0.08, Y: 0.17, Z: 0.02})
	affCam := camera.Default()
	affCam.Affine = emath.Similarity(0.98, 0.05, 30, -12).Mat3()

	for _, k := range Kinds() {
		c := cam
		if k == Affine {
			c = affCam
		}
		cp := New(k, 200).projector(c)
		for _, p := range []r2.Point{{X: 3, Y: 4}, {X: 80, Y: 60}, {X: 150, Y: 17}, {X: 41, Y: 110}} {
			u, v := cp.forward(p.X, p.Y)
			x, y := cp.backward(u, v)
			assert.InDelta(t, p.X, x, 1e-6, "%s %v", k, p)
			assert.InDelta(t, p.Y, y, 1e-6, "%s %v", k, p)
		}
	}
}

func TestPlaneROIAndIdentityMaps(t *testing.T) {
	cam := testCam(200, r3.Vector{})
	w := New(Plane, 200)
	assert.Equal(t, image.Rect(-80, -60, 80, 60), w.ROI(image.Point{160, 120}, cam))

	src := raster.NewImage(160, 120, 3)
	for i := range src.Pix {
		src.Pix[i] = float32(i % 251)
	}
	m := w.Maps(src.Size(), cam)
	assert.Equal(t, image.Point{-80, -60}, m.Corner)
	assert.Equal(t, image.Point{160, 120}, m.Size)

	out := m.Image(src)
	for i := range src.Pix {
		assert.InDelta(t, src.Pix[i], out.Pix[i], 1e-3)
	}
	mask := m.Mask()
	for _, v := range mask.Pix {
		assert.Equal(t, uint8(255), v)
	}
}

func TestBorderScanMatchesFullScan(t *testing.T) {
	cam := testCam(180, r3.Vector{X: 0.1, Y: 0.4})
	size := image.Point{160, 120}
	for _, k := range []Kind{Cylindrical, Spherical} {
		w := New(k, 180)
		cp := w.projector(cam)
		minU, minV, maxU, maxV := math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
		for y:=0; y<size.Y; y++ {
			for x:=0; x<size.X; x++ {
				u, v := cp.forward(float64(x), float64(y))
				minU, maxU = math.Min(minU, u), math.Max(maxU, u)
				minV, maxV = math.Min(minV, v), math.Max(maxV, v)
			}
		}
		want := image.Rect(int(minU), int(minV), int(maxU)+1, int(maxV)+1)
		assert.Equal(t, want, w.ROI(size, cam), k.String())
	}
}

func TestSphericalPoleWidensROI(t *testing.T) {
	// looking straight up: every longitude is in view
	cam := testCam(100, r3.Vector{X: math.Pi / 2})
	roi := New(Spherical, 100).ROI(image.Point{160, 120}, cam)
	assert.True(t, float64(roi.Dx()) >= 2*math.Pi*100, "roi %v", roi)
	assert.True(t, roi.Min.Y <= 0)
}

func TestWarpedMasks(t *testing.T) {
	// part of a warped ROI always maps outside the source
	cam := testCam(200, r3.Vector{Y: 0.3})
	m := New(Cylindrical, 200).Maps(image.Point{160, 120}, cam)
	mask := m.Mask()

	on := 0
	for i, v := range mask.Pix {
		x, y := math.Round(float64(m.X[i])), math.Round(float64(m.Y[i]))
		inside := x >= 0 && y >= 0 && x < 160 && y < 120
		assert.Equal(t, inside, v == 255)
		if inside { on++ }
	}
	assert.True(t, on > 0)
}

func TestScaledCamerasScaleTheROI(t *testing.T) {
	cam := testCam(200, r3.Vector{Y: 0.2})
	big := New(Cylindrical, 200).ROI(image.Point{160, 120}, cam)
	small := New(Cylindrical, 100).ROI(image.Point{80, 60}, cam.Scaled(0.5))
	assert.InDelta(t, float64(big.Dx())/2, float64(small.Dx()), 1.5)
	assert.InDelta(t, float64(big.Dy())/2, float64(small.Dy()), 1.5)
}
