package raster

import(
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromImageRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(1, 1, color.NRGBA{10, 200, 30, 255})

	im := FromImage(src, 3)
	require.Equal(t, 3, im.C)
	assert.Equal(t, float32(200), im.At(1, 1, 1))

	back, ok := im.ToImage().(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{10, 200, 30, 255}, back.NRGBAAt(1, 1))
}

func TestGrayStaysSingleChannel(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	g.SetGray(2, 3, color.Gray{77})
	assert.Equal(t, 1, Channels(g))

	im := FromImage(g, Channels(g))
	assert.Equal(t, float32(77), im.At(2, 3, 0))
	_, ok := im.ToImage().(*image.Gray)
	assert.True(t, ok)
}

func TestScale(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 100, 50))
	out := Scale(g, 0.5)
	assert.Equal(t, image.Point{50, 25}, out.Bounds().Size())
	assert.Same(t, g, Scale(g, 1.0).(*image.Gray))
}

func TestUnionAndOverlap(t *testing.T) {
	corners := []image.Point{{-5, 0}, {10, 3}}
	sizes := []image.Point{{20, 10}, {20, 10}}
	assert.Equal(t, image.Rect(-5, 0, 30, 13), UnionRect(corners, sizes))

	r, ok := OverlapRect(corners[0], corners[1], sizes[0], sizes[1])
	require.True(t, ok)
	assert.Equal(t, image.Rect(10, 3, 15, 10), r)

	_, ok = OverlapRect(image.Point{0, 0}, image.Point{50, 0}, sizes[0], sizes[1])
	assert.False(t, ok)
}

func TestDilateAndAnd(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 5, 5))
	m.SetGray(2, 2, color.Gray{255})
	d := Dilate3(m)
	assert.Equal(t, uint8(255), d.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), d.GrayAt(0, 0).Y)

	a := AndMasks(d, FullMask(image.Point{5, 5}))
	assert.Equal(t, d.Pix, a.Pix)

	r := ResizeMaskNearest(d, image.Point{10, 10})
	assert.Equal(t, uint8(255), r.GrayAt(4, 4).Y)
	assert.Equal(t, uint8(0), r.GrayAt(0, 0).Y)
}

func TestToS16(t *testing.T) {
	im := NewImage(1, 1, 1)
	im.Pix[0] = 254.7
	assert.Equal(t, int16(254), im.ToS16().Pix[0])
}
