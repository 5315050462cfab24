package blend

import(
	"image"
	"math"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/raster"
)

// MultibandBlender blends each frequency band of a Laplacian pyramid separately,
// with weights from a Gaussian pyramid of the masks: low frequencies mix
// over a wide region, fine detail over a narrow one.
type MultibandBlender struct {
	Bands int // as requested; the canvas may limit it

	nb      int
	final   image.Rectangle // the canvas as asked for
	canvas  image.Rectangle // padded to a multiple of 2^nb
	c       int
	laplace [][]emath.FloatGrid // [level][channel]
	weights []emath.FloatGrid   // [level]
}

func NewMultiband(bands int) *MultibandBlender {
	if bands < 0 {
		bands = 0
	}
	return &MultibandBlender{Bands: bands}
}

func (b *MultibandBlender)Prepare(canvas image.Rectangle, channels int) {
	b.final, b.c = canvas, channels
	maxLen := math.Max(float64(canvas.Dx()), float64(canvas.Dy()))
	b.nb = b.Bands
	if lim := int(math.Ceil(math.Log2(maxLen))); b.nb > lim {
		b.nb = lim
	}

	step := 1 << b.nb
	w, h := canvas.Dx(), canvas.Dy()
	w += (step - w%step) % step
	h += (step - h%step) % step
	b.canvas = image.Rectangle{Min: canvas.Min, Max: canvas.Min.Add(image.Point{w, h})}

	b.laplace = make([][]emath.FloatGrid, b.nb+1)
	b.weights = make([]emath.FloatGrid, b.nb+1)
	for i:=0; i<=b.nb; i++ {
		b.laplace[i] = make([]emath.FloatGrid, channels)
		for c := range b.laplace[i] {
			b.laplace[i][c] = emath.NewFloatGrid(w, h)
		}
		b.weights[i] = emath.NewFloatGrid(w, h)
		w, h = (w+1)/2, (h+1)/2
	}
}

// alignDown rounds v, an offset from the canvas origin, down to a
// multiple of 2^nb.
func (b *MultibandBlender)alignDown(v int) int { return (v >> b.nb) << b.nb }

func (b *MultibandBlender)Feed(img *raster.S16, mask *image.Gray, corner image.Point) {
	step := 1 << b.nb
	gap := 3 * step

	// the region of the canvas this image touches, with room for the
	// pyramid filters, aligned so every level lands on whole pixels
	tl := image.Point{max(b.canvas.Min.X, corner.X-gap), max(b.canvas.Min.Y, corner.Y-gap)}
	br := image.Point{min(b.canvas.Max.X, corner.X+img.W+gap), min(b.canvas.Max.Y, corner.Y+img.H+gap)}
	tl.X = b.canvas.Min.X + b.alignDown(tl.X-b.canvas.Min.X)
	tl.Y = b.canvas.Min.Y + b.alignDown(tl.Y-b.canvas.Min.Y)
	w, h := br.X-tl.X, br.Y-tl.Y
	w += (step - w%step) % step
	h += (step - h%step) % step
	br = tl.Add(image.Point{w, h})
	shift := image.Point{max(br.X-b.canvas.Max.X, 0), max(br.Y-b.canvas.Max.Y, 0)}
	tl, br = tl.Sub(shift), br.Sub(shift)

	left, top := corner.X-tl.X, corner.Y-tl.Y

	// source planes with a reflected border, weights with a zero one
	wg := emath.NewFloatGrid(w, h)
	src := make([]emath.FloatGrid, b.c)
	for c := range src {
		src[c] = emath.NewFloatGrid(w, h)
	}
	for y:=0; y<h; y++ {
		sy := emath.Reflect(y-top, img.H)
		for x:=0; x<w; x++ {
			sx := emath.Reflect(x-left, img.W)
			for c := range src {
				src[c].Set(x, y, float64(img.At(sx, sy, c)))
			}
			ix, iy := x-left, y-top
			if ix >= 0 && iy >= 0 && ix < img.W && iy < img.H {
				wg.Set(x, y, float64(mask.Pix[mask.PixOffset(ix, iy)])/255)
			}
		}
	}

	pyrs := make([][]emath.FloatGrid, b.c)
	for c := range src {
		pyrs[c] = laplacePyramid(src[c], b.nb)
	}
	wpyr := make([]emath.FloatGrid, b.nb+1)
	wpyr[0] = wg
	for i:=1; i<=b.nb; i++ {
		wpyr[i] = wpyr[i-1].PyrDown()
	}

	ox, oy := tl.X-b.canvas.Min.X, tl.Y-b.canvas.Min.Y
	for i:=0; i<=b.nb; i++ {
		lx, ly := ox>>i, oy>>i
		wl := &wpyr[i]
		dw := &b.weights[i]
		for y:=0; y<wl.Dy(); y++ {
			if ly+y >= dw.Dy() {
				break
			}
			for x:=0; x<wl.Dx(); x++ {
				if lx+x >= dw.Dx() {
					break
				}
				wv := wl.Get(x, y)
				for c:=0; c<b.c; c++ {
					b.laplace[i][c].Add(lx+x, ly+y, pyrs[c][i].Get(x, y)*wv)
				}
				dw.Add(lx+x, ly+y, wv)
			}
		}
	}
}

func (b *MultibandBlender)Blend() (*raster.S16, *image.Gray) {
	for i:=0; i<=b.nb; i++ {
		wv := b.weights[i].Values()
		for c:=0; c<b.c; c++ {
			lv := b.laplace[i][c].Values()
			for k := range lv {
				lv[k] /= wv[k] + weightEps
			}
		}
	}

	out := raster.NewS16(b.final.Dx(), b.final.Dy(), b.c)
	for c:=0; c<b.c; c++ {
		pyr := make([]emath.FloatGrid, b.nb+1)
		for i := range pyr {
			pyr[i] = b.laplace[i][c]
		}
		res := collapse(pyr)
		for y:=0; y<out.H; y++ {
			for x:=0; x<out.W; x++ {
				out.Pix[(y*out.W+x)*b.c+c] = toS16(res.Get(x, y))
			}
		}
	}

	mask := image.NewGray(image.Rectangle{Max: b.final.Size()})
	for y:=0; y<out.H; y++ {
		for x:=0; x<out.W; x++ {
			if b.weights[0].Get(x, y) > weightEps {
				mask.Pix[mask.PixOffset(x, y)] = 0xff
			}
		}
	}
	zeroUncovered(out, mask)
	return out, mask
}

// laplacePyramid returns levels+1 grids: the band-pass differences, then
// the residual low-pass image.
func laplacePyramid(g emath.FloatGrid, levels int) []emath.FloatGrid {
	gauss := make([]emath.FloatGrid, levels+1)
	gauss[0] = g
	for i:=1; i<=levels; i++ {
		gauss[i] = gauss[i-1].PyrDown()
	}
	out := make([]emath.FloatGrid, levels+1)
	out[levels] = gauss[levels]
	for i:=0; i<levels; i++ {
		up := gauss[i+1].PyrUp(gauss[i].Dx(), gauss[i].Dy())
		d := gauss[i].NewFromThis()
		dv, gv, uv := d.Values(), gauss[i].Values(), up.Values()
		for k := range dv {
			dv[k] = gv[k] - uv[k]
		}
		out[i] = d
	}
	return out
}

// collapse rebuilds an image from its Laplacian pyramid.
func collapse(pyr []emath.FloatGrid) emath.FloatGrid {
	cur := pyr[len(pyr)-1]
	for i:=len(pyr)-2; i>=0; i-- {
		up := cur.PyrUp(pyr[i].Dx(), pyr[i].Dy())
		uv, lv := up.Values(), pyr[i].Values()
		for k := range uv {
			uv[k] += lv[k]
		}
		cur = up
	}
	return cur
}
