package blend

import(
	"image"
	"math"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/raster"
)

// FeatherBlender weights each image by its distance in from the edge of its
// mask, so contributions ramp down towards the borders.
type FeatherBlender struct {
	Sharpness float64

	canvas image.Rectangle
	acc    []float32 // weighted sums, interleaved like the images
	weight []float32
	c      int
}

func NewFeather(sharpness float64) *FeatherBlender {
	return &FeatherBlender{Sharpness: sharpness}
}

func (b *FeatherBlender)Prepare(canvas image.Rectangle, channels int) {
	b.canvas, b.c = canvas, channels
	b.acc = make([]float32, canvas.Dx()*canvas.Dy()*channels)
	b.weight = make([]float32, canvas.Dx()*canvas.Dy())
}

// WeightMap is min(1, sharpness · distance to the nearest unmasked pixel),
// with the raster edge counting as unmasked.
func WeightMap(mask *image.Gray, sharpness float64) emath.FloatGrid {
	b := mask.Bounds()
	d := emath.L1Distance(b.Dx(), b.Dy(), func(x, y int) bool {
		return mask.Pix[mask.PixOffset(b.Min.X+x, b.Min.Y+y)] == 0
	}, true)
	vals := d.Values()
	for i := range vals {
		vals[i] = math.Min(1, vals[i]*sharpness)
	}
	return d
}

func (b *FeatherBlender)Feed(img *raster.S16, mask *image.Gray, corner image.Point) {
	wm := WeightMap(mask, b.Sharpness)
	off := corner.Sub(b.canvas.Min)
	cw := b.canvas.Dx()
	for y:=0; y<img.H; y++ {
		dy := y + off.Y
		if dy < 0 || dy >= b.canvas.Dy() {
			continue
		}
		for x:=0; x<img.W; x++ {
			dx := x + off.X
			if dx < 0 || dx >= cw {
				continue
			}
			w := float32(wm.Get(x, y))
			src := (y*img.W + x) * img.C
			dst := (dy*cw + dx) * b.c
			for c:=0; c<b.c; c++ {
				b.acc[dst+c] += float32(img.Pix[src+c]) * w
			}
			b.weight[dy*cw+dx] += w
		}
	}
}

func (b *FeatherBlender)Blend() (*raster.S16, *image.Gray) {
	out := raster.NewS16(b.canvas.Dx(), b.canvas.Dy(), b.c)
	mask := image.NewGray(image.Rectangle{Max: b.canvas.Size()})
	for i, w := range b.weight {
		for c:=0; c<b.c; c++ {
			out.Pix[i*b.c+c] = toS16(float64(b.acc[i*b.c+c] / (w + weightEps)))
		}
		if w > weightEps {
			mask.Pix[i] = 0xff
		}
	}
	zeroUncovered(out, mask)
	return out, mask
}
