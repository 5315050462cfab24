package emath

import(
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
)

// A FloatGrid is a grid of floats, with some operations. It holds one
// channel: luminance for feature detection, one plane of a pyramid
// level, a weight or distance map, or a gain map.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Add(x, y int, v float64) { fg.values[fg.stride*y + x] += v }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Values() []float64       { return fg.values }

func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

// Get101 reads with a reflect-101 border
func (fg *FloatGrid)Get101(x, y int) float64 {
	return fg.Get(Reflect101(x, fg.Dx()), Reflect101(y, fg.Dy()))
}

// GetClamped reads with a replicated border
func (fg *FloatGrid)GetClamped(x, y int) float64 {
	if x < 0 { x = 0 } else if x >= fg.Dx() { x = fg.Dx()-1 }
	if y < 0 { y = 0 } else if y >= fg.Dy() { y = fg.Dy()-1 }
	return fg.Get(x, y)
}

func (g1 FloatGrid)GaussianBlur() FloatGrid {
	width := g1.Dx()
	height := g1.Dy()
	g2 := g1.NewFromThis()
	if width < 2 || height < 2 {
		copy(g2.values, g1.values)
		return g2
	}

	T  := g1.NewFromThis()

	//--- X blur, build up in T
	for y:=0; y<height; y++ {
		for x:=1; x<width-1; x++ {
			t := 2.0*g1.Get(x,y)
			t += g1.Get(x-1,y)
			t += g1.Get(x+1,y)
			T.Set(x, y, t/4.0)
		}
		T.Set(0, y,       (3.0*g1.Get(0,      y) + g1.Get(1,      y)) / 4.0)
		T.Set(width-1, y, (3.0*g1.Get(width-1,y) + g1.Get(width-2,y)) / 4.0)
	}

	//--- Y blur, read from T and generate output
	for x:=0; x<width; x++ {
		for y:=1; y<height-1; y++ {
			t := 2.0*T.Get(x,y)
			t += T.Get(x,y-1)
			t += T.Get(x,y+1)
			g2.Set(x, y, t/4.0)
		}
		g2.Set(x, 0,        (3.0*T.Get(x,       0) + T.Get(x,       1)) / 4.0)
		g2.Set(x, height-1, (3.0*T.Get(x,height-1) + T.Get(x,height-2)) / 4.0)
	}

	return g2
}

// Sobel returns the x and y derivatives (3x3 Sobel, replicated border).
func (H *FloatGrid)Sobel() (FloatGrid, FloatGrid) {
	gx := H.NewFromThis()
	gy := H.NewFromThis()

	for y:=0; y<H.Dy(); y++ {
		for x:=0; x<H.Dx(); x++ {
			nw, n, ne := H.GetClamped(x-1,y-1), H.GetClamped(x,y-1), H.GetClamped(x+1,y-1)
			w,     e  := H.GetClamped(x-1,y),                         H.GetClamped(x+1,y)
			sw, s, se := H.GetClamped(x-1,y+1), H.GetClamped(x,y+1), H.GetClamped(x+1,y+1)

			gx.Set(x, y, (ne + 2*e + se) - (nw + 2*w + sw))
			gy.Set(x, y, (sw + 2*s + se) - (nw + 2*n + ne))
		}
	}
	return gx, gy
}

// BoxSum sums each (2r+1)x(2r+1) neighbourhood, with a replicated border.
func (g1 *FloatGrid)BoxSum(r int) FloatGrid {
	T := g1.NewFromThis()
	g2 := g1.NewFromThis()
	for y:=0; y<g1.Dy(); y++ {
		for x:=0; x<g1.Dx(); x++ {
			t := 0.0
			for d:=-r; d<=r; d++ { t += g1.GetClamped(x+d, y) }
			T.Set(x, y, t)
		}
	}
	for y:=0; y<g1.Dy(); y++ {
		for x:=0; x<g1.Dx(); x++ {
			t := 0.0
			for d:=-r; d<=r; d++ { t += T.GetClamped(x, y+d) }
			g2.Set(x, y, t)
		}
	}
	return g2
}

var pyrKernel = [5]float64{1.0/16, 4.0/16, 6.0/16, 4.0/16, 1.0/16}

// PyrDown blurs with the 5-tap binomial kernel and drops every other
// row and column; the result is ((w+1)/2, (h+1)/2).
func (g1 *FloatGrid)PyrDown() FloatGrid {
	w, h := g1.Dx(), g1.Dy()
	dw, dh := (w+1)/2, (h+1)/2

	T := NewFloatGrid(dw, h)
	for y:=0; y<h; y++ {
		for x:=0; x<dw; x++ {
			t := 0.0
			for k:=-2; k<=2; k++ {
				t += pyrKernel[k+2] * g1.Get101(2*x+k, y)
			}
			T.Set(x, y, t)
		}
	}

	g2 := NewFloatGrid(dw, dh)
	for y:=0; y<dh; y++ {
		for x:=0; x<dw; x++ {
			t := 0.0
			for k:=-2; k<=2; k++ {
				t += pyrKernel[k+2] * T.Get101(x, 2*y+k)
			}
			g2.Set(x, y, t)
		}
	}
	return g2
}

// PyrUp upsamples into a w x h grid (normally twice the size), as the
// transpose of PyrDown: zero insertion followed by the kernel scaled by 4.
func (g1 *FloatGrid)PyrUp(w, h int) FloatGrid {
	sw, sh := g1.Dx(), g1.Dy()

	// Each output sample x takes weight k(x-2i)*2 from source sample i.
	up := func(x, n int, get func(i int) float64) float64 {
		t := 0.0
		for i:=(x-2)/2 - 1; i<=(x+2)/2 + 1; i++ {
			d := x - 2*i
			if d < -2 || d > 2 {
				continue
			}
			t += 2 * pyrKernel[d+2] * get(Reflect101(i, n))
		}
		return t
	}

	T := NewFloatGrid(w, sh)
	for y:=0; y<sh; y++ {
		for x:=0; x<w; x++ {
			yy := y
			T.Set(x, y, up(x, sw, func(i int) float64 { return g1.Get(i, yy) }))
		}
	}

	g2 := NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			xx := x
			g2.Set(x, y, up(y, sh, func(i int) float64 { return T.Get(xx, i) }))
		}
	}
	return g2
}

// SepFilter3 convolves rows and columns with the same 3-tap kernel
// (reflect-101 border).
func (g1 *FloatGrid)SepFilter3(k [3]float64) FloatGrid {
	T := g1.NewFromThis()
	for y:=0; y<g1.Dy(); y++ {
		for x:=0; x<g1.Dx(); x++ {
			T.Set(x, y, k[0]*g1.Get101(x-1,y) + k[1]*g1.Get(x,y) + k[2]*g1.Get101(x+1,y))
		}
	}
	g2 := g1.NewFromThis()
	for y:=0; y<g1.Dy(); y++ {
		for x:=0; x<g1.Dx(); x++ {
			g2.Set(x, y, k[0]*T.Get101(x,y-1) + k[1]*T.Get(x,y) + k[2]*T.Get101(x,y+1))
		}
	}
	return g2
}

// ResizeBilinear resamples to w x h, mapping pixel centres onto pixel
// centres with a replicated border.
func (g1 *FloatGrid)ResizeBilinear(w, h int) FloatGrid {
	g2 := NewFloatGrid(w, h)
	sx := float64(g1.Dx()) / float64(w)
	sy := float64(g1.Dy()) / float64(h)

	for y:=0; y<h; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		if fy < 0 { fy = 0 }
		y0 := int(math.Floor(fy))
		ay := fy - float64(y0)
		for x:=0; x<w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			if fx < 0 { fx = 0 }
			x0 := int(math.Floor(fx))
			ax := fx - float64(x0)

			top := (1-ax)*g1.GetClamped(x0,y0)   + ax*g1.GetClamped(x0+1,y0)
			bot := (1-ax)*g1.GetClamped(x0,y0+1) + ax*g1.GetClamped(x0+1,y0+1)
			g2.Set(x, y, (1-ay)*top + ay*bot)
		}
	}
	return g2
}

// L1Distance returns, for every cell, the city-block distance to the
// nearest cell where isZero is true. If edgeIsZero, the cells just
// outside the grid count as zero cells too; otherwise a grid with no
// zero cells is filled with a large value.
func L1Distance(w, h int, isZero func(x, y int) bool, edgeIsZero bool) FloatGrid {
	inf := float64(w + h + 1)
	if !edgeIsZero {
		inf = math.MaxFloat32
	}
	d := NewFloatGrid(w, h)

	edge := func(v int) float64 {
		if edgeIsZero { return float64(v) }
		return inf
	}

	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			if isZero(x, y) {
				d.Set(x, y, 0)
				continue
			}
			v := math.Min(edge(x+1), edge(y+1))
			if x > 0 { v = math.Min(v, d.Get(x-1, y)+1) }
			if y > 0 { v = math.Min(v, d.Get(x, y-1)+1) }
			d.Set(x, y, v)
		}
	}
	for y:=h-1; y>=0; y-- {
		for x:=w-1; x>=0; x-- {
			v := math.Min(d.Get(x, y), math.Min(edge(w-x), edge(h-y)))
			if x < w-1 { v = math.Min(v, d.Get(x+1, y)+1) }
			if y < h-1 { v = math.Min(v, d.Get(x, y+1)+1) }
			d.Set(x, y, v)
		}
	}
	return d
}

func (fg *FloatGrid)MinMax() (float64, float64) {
	min := math.MaxFloat64
	max := -1.0  * min
	for i:=0 ; i<len(fg.values) ; i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return min, max
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray to look normal for human vision
func (fg *FloatGrid)ToImg(title, filename string) error {
	min, max := fg.MinMax()
	if max <= min {
		max = min + 1
	}

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			lum := fg.Get(x,y)
			gray := GammaExpand_F64 ((lum - min) / (max - min))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,0,0)
	dc.DrawString(title, 5, 15)
	return dc.SavePNG(filename)
}
