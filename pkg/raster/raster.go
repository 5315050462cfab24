// Package raster holds the pixel buffers the pipeline passes between
// stages: float working images, the int16 blender inputs, and the
// conversions to and from image.Image.
package raster

import(
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

// Image is an interleaved float32 raster, values in 0..255, with 1 or 3
// channels. Its origin is always (0,0); placement in canvas space is
// carried separately as a corner.
type Image struct {
	W, H, C int
	Pix     []float32
}

func NewImage(w, h, c int) *Image {
	return &Image{W: w, H: h, C: c, Pix: make([]float32, w*h*c)}
}

func (im *Image)Size() image.Point              { return image.Point{im.W, im.H} }
func (im *Image)At(x, y, c int) float32         { return im.Pix[(y*im.W+x)*im.C + c] }
func (im *Image)Set(x, y, c int, v float32)     { im.Pix[(y*im.W+x)*im.C + c] = v }
func (im *Image)Offset(x, y int) int            { return (y*im.W+x)*im.C }

func (im *Image)Clone() *Image {
	c := *im
	c.Pix = append([]float32(nil), im.Pix...)
	return &c
}

// Channels reports how many channels a frame needs: 1 for grayscale
// sources, 3 for everything else.
func Channels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	return 3
}

// FromImage converts to a float raster with the given channel count.
func FromImage(img image.Image, channels int) *Image {
	b := img.Bounds()
	out := NewImage(b.Dx(), b.Dy(), channels)

	if g, ok := img.(*image.Gray); ok && channels == 1 {
		for y:=0; y<out.H; y++ {
			row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			for x:=0; x<out.W; x++ {
				out.Pix[y*out.W+x] = float32(row[x])
			}
		}
		return out
	}

	for y:=0; y<out.H; y++ {
		for x:=0; x<out.W; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			o := out.Offset(x, y)
			if channels == 1 {
				// luminance weights as used for gray conversion elsewhere
				out.Pix[o] = float32((0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0)
			} else {
				out.Pix[o]   = float32(r >> 8)
				out.Pix[o+1] = float32(g >> 8)
				out.Pix[o+2] = float32(bl >> 8)
			}
		}
	}
	return out
}

// Luminance returns a single channel grid with values in 0..1, which is
// what the feature detectors work on.
func (im *Image)Luminance() emath.FloatGrid {
	g := emath.NewFloatGrid(im.W, im.H)
	for y:=0; y<im.H; y++ {
		for x:=0; x<im.W; x++ {
			o := im.Offset(x, y)
			v := float64(im.Pix[o])
			if im.C == 3 {
				v = 0.299*float64(im.Pix[o]) + 0.587*float64(im.Pix[o+1]) + 0.114*float64(im.Pix[o+2])
			}
			g.Set(x, y, v/255.0)
		}
	}
	return g
}

// Plane extracts one channel as a FloatGrid.
func (im *Image)Plane(c int) emath.FloatGrid {
	g := emath.NewFloatGrid(im.W, im.H)
	for y:=0; y<im.H; y++ {
		for x:=0; x<im.W; x++ {
			g.Set(x, y, float64(im.At(x, y, c)))
		}
	}
	return g
}

// ToImage renders back to 8 bits, clamping and rounding.
func (im *Image)ToImage() image.Image {
	if im.C == 1 {
		out := image.NewGray(image.Rect(0, 0, im.W, im.H))
		for i, v := range im.Pix {
			out.Pix[i] = to8(v)
		}
		return out
	}
	out := image.NewNRGBA(image.Rect(0, 0, im.W, im.H))
	for y:=0; y<im.H; y++ {
		for x:=0; x<im.W; x++ {
			o := im.Offset(x, y)
			out.SetNRGBA(x, y, color.NRGBA{to8(im.Pix[o]), to8(im.Pix[o+1]), to8(im.Pix[o+2]), 0xff})
		}
	}
	return out
}

func to8(v float32) uint8 {
	return uint8(emath.Clamp(math.RoundToEven(float64(v)), 0, 255))
}

// Scale resizes an image by the given factor with bilinear filtering; the
// result size is the rounded scaled size, as the pipeline computes it.
func Scale(img image.Image, s float64) image.Image {
	b := img.Bounds()
	sz := ScaledSize(b.Size(), s)
	if sz == b.Size() {
		return img
	}
	var dst draw.Image
	if Channels(img) == 1 {
		dst = image.NewGray(image.Rectangle{Max: sz})
	} else {
		dst = image.NewNRGBA(image.Rectangle{Max: sz})
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func ScaledSize(p image.Point, s float64) image.Point {
	w := int(math.Round(float64(p.X) * s))
	h := int(math.Round(float64(p.Y) * s))
	if w < 1 { w = 1 }
	if h < 1 { h = 1 }
	return image.Point{w, h}
}

// S16 is the signed 16 bit raster fed to the blenders.
type S16 struct {
	W, H, C int
	Pix     []int16
}

func NewS16(w, h, c int) *S16 {
	return &S16{W: w, H: h, C: c, Pix: make([]int16, w*h*c)}
}

func (s *S16)At(x, y, c int) int16 { return s.Pix[(y*s.W+x)*s.C + c] }

// ToS16 truncates each value, as a plain integer conversion would.
func (im *Image)ToS16() *S16 {
	out := NewS16(im.W, im.H, im.C)
	for i, v := range im.Pix {
		out.Pix[i] = int16(emath.Clamp(float64(v), math.MinInt16, math.MaxInt16))
	}
	return out
}

// FullMask is an all-valid mask of the given size.
func FullMask(sz image.Point) *image.Gray {
	m := image.NewGray(image.Rectangle{Max: sz})
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	return m
}
