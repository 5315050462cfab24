// Package blend composites warped, exposure corrected images onto one
// canvas.
package blend

import(
	"fmt"
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/abworrall/pano-stitch/pkg/raster"
)

type Kind int

const(
	None Kind = iota
	Feather
	Multiband
)

func (k Kind)String() string {
	switch k {
	case None:      return "none"
	case Feather:   return "feather"
	case Multiband: return "multiband"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{None, Feather, Multiband} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("no blender named '%s'", s)
}

var ErrDegenerateCanvas = errors.New("canvas has zero area")

// A Blender is prepared for one canvas, fed each image once, then
// blended. Results are in canvas coordinates relative to canvas.Min.
type Blender interface {
	Prepare(canvas image.Rectangle, channels int)
	Feed(img *raster.S16, mask *image.Gray, corner image.Point)
	Blend() (*raster.S16, *image.Gray)
}

// Weights at or below this count as uncovered.
const weightEps = 1e-5

// ForCanvas picks and configures a blender for a canvas. The blend width
// scales with the canvas: strength percent of sqrt(area). Below one pixel
// there is nothing to blend across, so the images are simply overlaid.
func ForCanvas(kind Kind, canvas image.Rectangle, strength float64) (Blender, error) {
	area := float64(canvas.Dx()) * float64(canvas.Dy())
	if area <= 0 {
		return nil, ErrDegenerateCanvas
	}
	width := math.Sqrt(area) * strength / 100
	if width < 1 {
		kind = None
	}

	switch kind {
	case Feather:
		return NewFeather(1 / width), nil
	case Multiband:
		return NewMultiband(int(math.Log2(width) - 1)), nil
	}
	return &Overlay{}, nil
}

// Overlay copies each masked pixel in; the last image fed wins.
type Overlay struct {
	canvas image.Rectangle
	dst    *raster.S16
	mask   *image.Gray
}

func (b *Overlay)Prepare(canvas image.Rectangle, channels int) {
	b.canvas = canvas
	b.dst = raster.NewS16(canvas.Dx(), canvas.Dy(), channels)
	b.mask = image.NewGray(image.Rectangle{Max: canvas.Size()})
}

func (b *Overlay)Feed(img *raster.S16, mask *image.Gray, corner image.Point) {
	off := corner.Sub(b.canvas.Min)
	for y:=0; y<img.H; y++ {
		for x:=0; x<img.W; x++ {
			if mask.Pix[mask.PixOffset(x, y)] == 0 {
				continue
			}
			dx, dy := x+off.X, y+off.Y
			if dx < 0 || dy < 0 || dx >= b.dst.W || dy >= b.dst.H {
				continue
			}
			copy(b.dst.Pix[(dy*b.dst.W+dx)*b.dst.C:][:b.dst.C], img.Pix[(y*img.W+x)*img.C:][:img.C])
			b.mask.Pix[b.mask.PixOffset(dx, dy)] = 0xff
		}
	}
}

func (b *Overlay)Blend() (*raster.S16, *image.Gray) {
	return b.dst, b.mask
}

// zeroUncovered clears the pixels no image reached.
func zeroUncovered(dst *raster.S16, mask *image.Gray) {
	for i, m := range mask.Pix {
		if m == 0 {
			for c:=0; c<dst.C; c++ {
				dst.Pix[i*dst.C+c] = 0
			}
		}
	}
}

func toS16(v float64) int16 {
	return int16(math.Round(math.Max(math.MinInt16, math.Min(math.MaxInt16, v))))
}
