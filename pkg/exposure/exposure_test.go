package exposure

import(
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/pano-stitch/pkg/raster"
)

func flat(w, h int, vals ...float32) *raster.Image {
	im := raster.NewImage(w, h, len(vals))
	for i := range im.Pix {
		im.Pix[i] = vals[i%len(vals)]
	}
	return im
}

// a pair of 40x40 images overlapping by 20 columns
func pair(a, b *raster.Image) ([]image.Point, []*raster.Image, []*image.Gray) {
	return []image.Point{{0, 0}, {20, 0}},
		[]*raster.Image{a, b},
		[]*image.Gray{raster.FullMask(a.Size()), raster.FullMask(b.Size())}
}

// overlapGap is the mean absolute difference of the two corrected images
// over their shared columns.
func overlapGap(a, b *raster.Image) float64 {
	sum := 0.0
	for y:=0; y<40; y++ {
		for x:=20; x<40; x++ {
			for c:=0; c<a.C; c++ {
				sum += math.Abs(float64(a.At(x, y, c) - b.At(x-20, y, c)))
			}
		}
	}
	return sum / float64(40*20*a.C)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{None, Gain, GainBlocks, Channel, ChannelBlocks} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("histogram")
	assert.Error(t, err)
}

func TestGainSolve(t *testing.T) {
	c := New(Gain, 1, 32)
	require.NoError(t, c.Feed(pair(flat(40, 40, 100), flat(40, 40, 150))))

	// worked by hand from the normal equations
	g := c.Gains()
	assert.InDelta(t, 21.0/19.0, g[0][0], 1e-9)
	assert.InDelta(t, 16.0/19.0, g[1][0], 1e-9)

	a, b := flat(40, 40, 100), flat(40, 40, 150)
	before := overlapGap(a, b)
	c.Apply(0, image.Point{}, a, nil)
	c.Apply(1, image.Point{20, 0}, b, nil)
	assert.True(t, overlapGap(a, b) < before/2)
	assert.Equal(t, float32(math.Round(100*21.0/19.0)), a.Pix[0])
}

func TestMoreFeedsCloseTheGap(t *testing.T) {
	gap := func(feeds int) float64 {
		c := New(Gain, feeds, 32)
		require.NoError(t, c.Feed(pair(flat(40, 40, 100), flat(40, 40, 150))))
		a, b := flat(40, 40, 100), flat(40, 40, 150)
		c.Apply(0, image.Point{}, a, nil)
		c.Apply(1, image.Point{20, 0}, b, nil)
		return overlapGap(a, b)
	}
	assert.True(t, gap(3) < gap(1))
}

func TestChannelGains(t *testing.T) {
	c := New(Channel, 1, 32)
	require.NoError(t, c.Feed(pair(flat(40, 40, 100, 100, 100), flat(40, 40, 150, 100, 50))))
	g := c.Gains()
	require.Len(t, g[0], 3)
	assert.True(t, g[0][0] > 1 && g[1][0] < 1)
	assert.InDelta(t, 1, g[0][1], 1e-9)
	assert.InDelta(t, 1, g[1][1], 1e-9)
	assert.True(t, g[0][2] < 1 && g[1][2] > 1)
}

func TestGainUsesChannelNorm(t *testing.T) {
	// the same colour at different brightness: channel-wise and norm-wise
	// gain ratios agree
	c := New(Gain, 1, 32)
	require.NoError(t, c.Feed(pair(flat(40, 40, 60, 80, 0), flat(40, 40, 90, 120, 0))))
	g := c.Gains()
	assert.InDelta(t, 21.0/19.0, g[0][0], 1e-9)
}

func TestBlocksEqualInputsAreUntouched(t *testing.T) {
	for _, k := range []Kind{GainBlocks, ChannelBlocks} {
		c := New(k, 1, 8)
		require.NoError(t, c.Feed(pair(flat(40, 40, 120, 90, 60), flat(40, 40, 120, 90, 60))))
		a := flat(40, 40, 120, 90, 60)
		c.Apply(0, image.Point{}, a, nil)
		for i, v := range a.Pix {
			assert.Equal(t, []float32{120, 90, 60}[i%3], v, k.String())
		}
	}
}

func TestBlocksPrepareAndApply(t *testing.T) {
	c := New(GainBlocks, 1, 10)
	require.NoError(t, c.Feed(pair(flat(40, 40, 100), flat(40, 40, 150))))
	require.Len(t, c.maps[0], 1)
	assert.Equal(t, 4, c.maps[0][0].Dx())

	// applied at twice the fitted size, as a compose pass would
	c.Prepare([]image.Point{{80, 80}, {80, 80}})
	a := flat(80, 80, 100)
	c.Apply(0, image.Point{}, a, nil)
	assert.Equal(t, 80, c.prepared[0][0].Dx())

	// the side facing the brighter neighbour is lifted more
	assert.True(t, a.At(79, 40, 0) > a.At(0, 40, 0))
	assert.True(t, a.At(79, 40, 0) > 100)
}

func TestApplyClampsAndRespectsMask(t *testing.T) {
	c := New(Gain, 1, 32)
	require.NoError(t, c.Feed(pair(flat(40, 40, 240), flat(40, 40, 250))))
	c.maps[0][0].Set(0, 0, 1.2)

	a := flat(40, 40, 240)
	mask := raster.FullMask(a.Size())
	mask.Pix[0] = 0
	c.Apply(0, image.Point{}, a, mask)
	assert.Equal(t, float32(240), a.Pix[0])
	assert.Equal(t, float32(255), a.Pix[1])
}

func TestNoneAndBadFeeds(t *testing.T) {
	c := New(None, 1, 32)
	require.NoError(t, c.Feed(pair(flat(40, 40, 100), flat(40, 40, 150))))
	a := flat(40, 40, 100)
	c.Apply(0, image.Point{}, a, nil)
	assert.Equal(t, float32(100), a.Pix[0])

	corners, images, masks := pair(flat(40, 40, 100), flat(40, 40, 150))
	assert.Error(t, New(Gain, 1, 32).Feed(corners[:1], images, masks))
	masks[1] = raster.FullMask(image.Point{10, 10})
	assert.Error(t, New(Gain, 1, 32).Feed(corners, images, masks))
}
