package seam

import(
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/raster"
)

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{None, Voronoi} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("gc_color")
	assert.Error(t, err)
}

func TestNoSeamsLeavesMasks(t *testing.T) {
	masks := []*image.Gray{raster.FullMask(image.Point{40, 40}), raster.FullMask(image.Point{40, 40})}
	New(None).Find([]image.Point{{0, 0}, {20, 0}}, masks)
	for _, m := range masks {
		for _, v := range m.Pix {
			assert.Equal(t, uint8(255), v)
		}
	}
}

func TestVoronoiSplitsOverlapDownTheMiddle(t *testing.T) {
	corners := []image.Point{{0, 0}, {20, 0}}
	masks := []*image.Gray{raster.FullMask(image.Point{40, 40}), raster.FullMask(image.Point{40, 40})}
	New(Voronoi).Find(corners, masks)

	for y:=0; y<40; y++ {
		for x:=0; x<60; x++ {
			own1 := x < 40 && masks[0].GrayAt(x, y).Y != 0
			own2 := x >= 20 && masks[1].GrayAt(x-20, y).Y != 0
			assert.True(t, own1 != own2, "exactly one owner at (%d,%d)", x, y)
			if x >= 20 && x < 40 {
				assert.Equal(t, x < 30, own1, "(%d,%d)", x, y)
			}
		}
	}
}

func TestVoronoiIgnoresDisjointAndRespectsHoles(t *testing.T) {
	corners := []image.Point{{0, 0}, {100, 0}, {20, 10}}
	masks := []*image.Gray{
		raster.FullMask(image.Point{40, 40}),
		raster.FullMask(image.Point{40, 40}),
		raster.FullMask(image.Point{40, 20}),
	}
	// image 2 only covers part of its rectangle
	for y:=0; y<20; y++ {
		for x:=30; x<40; x++ {
			masks[2].Pix[masks[2].PixOffset(x, y)] = 0
		}
	}
	New(Voronoi).Find(corners, masks)

	for _, v := range masks[1].Pix {
		assert.Equal(t, uint8(255), v, "image 1 overlaps nothing")
	}
	for y:=10; y<30; y++ {
		for x:=20; x<40; x++ {
			own0 := masks[0].GrayAt(x, y).Y != 0
			own2 := masks[2].GrayAt(x-20, y-10).Y != 0
			assert.True(t, own0 != own2, "exactly one owner at (%d,%d)", x, y)
		}
	}
	// next to image 2's own pixels, far from image 0's
	assert.NotZero(t, masks[2].GrayAt(19, 10).Y)
	assert.Zero(t, masks[0].GrayAt(39, 20).Y)
	// the hole is untouched and the rest of image 0 is kept
	assert.Zero(t, masks[2].GrayAt(35, 5).Y)
	assert.NotZero(t, masks[0].GrayAt(0, 0).Y)
	assert.NotZero(t, masks[0].GrayAt(39, 35).Y)
}
