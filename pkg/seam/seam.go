// Package seam decides, where warped images overlap, which image owns
// each canvas pixel.
package seam

import(
	"fmt"
	"image"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

type Kind int

const(
	None Kind = iota
	Voronoi
)

func (k Kind)String() string {
	switch k {
	case None:    return "none"
	case Voronoi: return "voronoi"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "none":    return None, nil
	case "voronoi": return Voronoi, nil
	}
	return 0, fmt.Errorf("no seam finder named '%s'", s)
}

// A Finder clears, in place, the mask pixels an image gives up to its
// neighbours. Masks are placed on the canvas at corners.
type Finder interface {
	Find(corners []image.Point, masks []*image.Gray)
}

func New(k Kind) Finder {
	if k == Voronoi {
		return voronoi{}
	}
	return noSeams{}
}

type noSeams struct{}

func (noSeams)Find([]image.Point, []*image.Gray) {}

// Pixels either side of an overlap that take part in the distance
// computation.
const voronoiGap = 10

// voronoi splits each overlap along the line equidistant (in L1) from
// the two images' unshared areas. Pairs are visited in order, each
// seeing the masks as left by the ones before.
type voronoi struct{}

func (v voronoi)Find(corners []image.Point, masks []*image.Gray) {
	for i:=0; i<len(masks); i++ {
		for j:=i+1; j<len(masks); j++ {
			r1 := masks[i].Bounds().Sub(masks[i].Bounds().Min).Add(corners[i])
			r2 := masks[j].Bounds().Sub(masks[j].Bounds().Min).Add(corners[j])
			roi := r1.Intersect(r2)
			if roi.Empty() {
				continue
			}
			v.findInPair(roi, corners[i], corners[j], masks[i], masks[j])
		}
	}
}

// at reads a mask pixel by canvas coordinate, 0 outside the mask.
func at(m *image.Gray, corner image.Point, p image.Point) bool {
	q := p.Sub(corner).Add(m.Bounds().Min)
	if !q.In(m.Bounds()) {
		return false
	}
	return m.Pix[m.PixOffset(q.X, q.Y)] != 0
}

func unset(m *image.Gray, corner image.Point, p image.Point) {
	q := p.Sub(corner).Add(m.Bounds().Min)
	m.Pix[m.PixOffset(q.X, q.Y)] = 0
}

func (voronoi)findInPair(roi image.Rectangle, tl1, tl2 image.Point, m1, m2 *image.Gray) {
	ext := roi.Inset(-voronoiGap)
	w, h := ext.Dx(), ext.Dy()

	in1 := make([]bool, w*h)
	in2 := make([]bool, w*h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			p := ext.Min.Add(image.Point{x, y})
			in1[y*w+x], in2[y*w+x] = at(m1, tl1, p), at(m2, tl2, p)
		}
	}

	// distance to the nearest pixel that only one image covers
	unique := func(a, b []bool) func(x, y int) bool {
		return func(x, y int) bool { return a[y*w+x] && !b[y*w+x] }
	}
	d1 := emath.L1Distance(w, h, unique(in1, in2), false)
	d2 := emath.L1Distance(w, h, unique(in2, in1), false)

	for y:=voronoiGap; y<voronoiGap+roi.Dy(); y++ {
		for x:=voronoiGap; x<voronoiGap+roi.Dx(); x++ {
			p := ext.Min.Add(image.Point{x, y})
			if d1.Get(x, y) < d2.Get(x, y) {
				unset(m2, tl2, p)
			} else {
				unset(m1, tl1, p)
			}
		}
	}
}
