package raster

// A few helper routines for golang's image libraries

import(
	"fmt"
	"image"
	"image/png"
	"os"
)

// UnionRect is the bounding box of rectangles placed at corners.
func UnionRect(corners []image.Point, sizes []image.Point) image.Rectangle {
	if len(corners) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: corners[0], Max: corners[0].Add(sizes[0])}
	for i:=1; i<len(corners); i++ {
		r = GrowRectangle(r, corners[i])
		r = GrowRectangle(r, corners[i].Add(sizes[i]))
	}
	return r
}

func GrowRectangle(r image.Rectangle, p image.Point) image.Rectangle {
	if p.X < r.Min.X {
		r.Min.X = p.X
	} else if p.X > r.Max.X {
		r.Max.X = p.X
	}

	if p.Y < r.Min.Y {
		r.Min.Y = p.Y
	} else if p.Y > r.Max.Y {
		r.Max.Y = p.Y
	}

	return r
}

// OverlapRect returns the intersection of two placed rectangles, if any.
func OverlapRect(tl1, tl2, sz1, sz2 image.Point) (image.Rectangle, bool) {
	r := image.Rectangle{Min: tl1, Max: tl1.Add(sz1)}.Intersect(image.Rectangle{Min: tl2, Max: tl2.Add(sz2)})
	return r, !r.Empty()
}

// Dilate3 grows a mask by one pixel in all 8 directions.
func Dilate3(m *image.Gray) *image.Gray {
	b := m.Bounds()
	out := image.NewGray(b)
	for y:=b.Min.Y; y<b.Max.Y; y++ {
		for x:=b.Min.X; x<b.Max.X; x++ {
			var v uint8
			for dy:=-1; dy<=1 && v == 0; dy++ {
				for dx:=-1; dx<=1; dx++ {
					p := image.Point{x+dx, y+dy}
					if p.In(b) && m.GrayAt(p.X, p.Y).Y > v {
						v = m.GrayAt(p.X, p.Y).Y
					}
				}
			}
			out.Pix[out.PixOffset(x, y)] = v
		}
	}
	return out
}

// ResizeMaskNearest resamples a mask to the given size.
func ResizeMaskNearest(m *image.Gray, sz image.Point) *image.Gray {
	b := m.Bounds()
	out := image.NewGray(image.Rectangle{Max: sz})
	if b.Empty() {
		return out
	}
	for y:=0; y<sz.Y; y++ {
		sy := b.Min.Y + y*b.Dy()/sz.Y
		for x:=0; x<sz.X; x++ {
			sx := b.Min.X + x*b.Dx()/sz.X
			out.Pix[out.PixOffset(x, y)] = m.Pix[m.PixOffset(sx, sy)]
		}
	}
	return out
}

// AndMasks keeps pixels set in both masks, which must be the same size.
func AndMasks(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Bounds())
	for i := range out.Pix {
		if a.Pix[i] != 0 && b.Pix[i] != 0 {
			out.Pix[i] = 0xff
		}
	}
	return out
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}
