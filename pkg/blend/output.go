package blend

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/pano-stitch/pkg/raster"
)

// Normalize8 stretches the blended result to the full 8 bit range, using
// the min and max over every sample on the canvas. A flat result comes
// out black.
func Normalize8(res *raster.S16) image.Image {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range res.Pix {
		lo, hi = math.Min(lo, float64(v)), math.Max(hi, float64(v))
	}
	scale := 0.0
	if hi-lo > 1e-12 {
		scale = 255 / (hi - lo)
	}
	to8 := func(v int16) uint8 {
		return uint8(math.Min(255, math.Max(0, math.RoundToEven((float64(v)-lo)*scale))))
	}

	if res.C == 1 {
		out := image.NewGray(image.Rect(0, 0, res.W, res.H))
		for i, v := range res.Pix {
			out.Pix[i] = to8(v)
		}
		return out
	}
	out := image.NewNRGBA(image.Rect(0, 0, res.W, res.H))
	for y:=0; y<res.H; y++ {
		for x:=0; x<res.W; x++ {
			out.SetNRGBA(x, y, color.NRGBA{to8(res.At(x, y, 0)), to8(res.At(x, y, 1)), to8(res.At(x, y, 2)), 0xff})
		}
	}
	return out
}

// HDRCanvas presents a blended result as an hdr.Image, so it can be
// written as Radiance RGBE without losing the values the 8 bit
// normalisation would clip or quantise.
type HDRCanvas struct {
	*raster.S16
}

// Implement image.Image
func (hc HDRCanvas)ColorModel() color.Model { return hdrcolor.RGBModel }
func (hc HDRCanvas)Bounds() image.Rectangle { return image.Rect(0, 0, hc.W, hc.H) }
func (hc HDRCanvas)At(x, y int) color.Color { return hc.HDRAt(x, y) }

// Implement hdr.Image
func (hc HDRCanvas)Size() int { return hc.W * hc.H }
func (hc HDRCanvas)HDRAt(x, y int) hdrcolor.Color {
	v := func(c int) float64 {
		if hc.C == 1 {
			c = 0
		}
		return math.Max(0, float64(hc.S16.At(x, y, c))/255)
	}
	return hdrcolor.RGB{R: v(0), G: v(1), B: v(2)}
}

func (hc HDRCanvas)WriteHDR(filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, hc)
	}
}
