// Package warp projects camera images onto a common panorama surface.
package warp

import(
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/abworrall/pano-stitch/pkg/camera"
	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/raster"
)

type Kind int

const(
	Spherical Kind = iota
	Plane
	Affine
	Cylindrical
	Fisheye
	Stereographic
	CompressedPlaneA2B1
	CompressedPlaneA15B1
	CompressedPlanePortraitA2B1
	CompressedPlanePortraitA15B1
	PaniniA2B1
	PaniniA15B1
	PaniniPortraitA2B1
	PaniniPortraitA15B1
	Mercator
	TransverseMercator
)

var kindNames = []string{
	"spherical", "plane", "affine", "cylindrical", "fisheye", "stereographic",
	"compressedPlaneA2B1", "compressedPlaneA1.5B1",
	"compressedPlanePortraitA2B1", "compressedPlanePortraitA1.5B1",
	"paniniA2B1", "paniniA1.5B1", "paniniPortraitA2B1", "paniniPortraitA1.5B1",
	"mercator", "transverseMercator",
}

func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind)String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("no warper named '%s'", s)
}

// Warper projects at a fixed scale, in canvas pixels per radian (or per
// unit of image plane).
type Warper struct {
	Kind
	Scale float64
}

func New(kind Kind, scale float64) *Warper {
	return &Warper{Kind: kind, Scale: scale}
}

// camProjector binds a projection to one camera.
type camProjector struct {
	proj    projection
	scale   float64
	rKinv   emath.Mat3 // pixel -> ray
	kRinv   emath.Mat3 // ray -> pixel
	divides bool       // planar surfaces have no behind-the-camera half
}

func (w *Warper)projector(cam camera.Params) camProjector {
	K := cam.K()
	kinv, _ := K.Inverse()
	cp := camProjector{
		scale: w.Scale,
		rKinv: cam.R.Mult(kinv),
		kRinv: K.Mult(cam.R.T()),
	}

	switch w.Kind {
	case Plane:
		cp.proj, cp.divides = planeProjection{}, true
	case Affine:
		a := emath.AffFromMat3(cam.Affine)
		ainv, _ := a.Inverse()
		cp.proj, cp.divides = affineProjection{a, ainv}, true
	case Cylindrical:                  cp.proj = cylindricalProjection{}
	case Fisheye:                      cp.proj = fisheyeProjection{}
	case Stereographic:                cp.proj = stereographicProjection{}
	case CompressedPlaneA2B1:          cp.proj = compressedProjection{2, 1}
	case CompressedPlaneA15B1:         cp.proj = compressedProjection{1.5, 1}
	case CompressedPlanePortraitA2B1:  cp.proj = portrait{compressedProjection{2, 1}}
	case CompressedPlanePortraitA15B1: cp.proj = portrait{compressedProjection{1.5, 1}}
	case PaniniA2B1:                   cp.proj = paniniProjection{2, 1}
	case PaniniA15B1:                  cp.proj = paniniProjection{1.5, 1}
	case PaniniPortraitA2B1:           cp.proj = portrait{paniniProjection{2, 1}}
	case PaniniPortraitA15B1:          cp.proj = portrait{paniniProjection{1.5, 1}}
	case Mercator:                     cp.proj = mercatorProjection{}
	case TransverseMercator:           cp.proj = transverseMercatorProjection{}
	default:                           cp.proj = sphericalProjection{}
	}
	return cp
}

func (cp camProjector)forward(x, y float64) (float64, float64) {
	r := cp.rKinv.Apply(r3.Vector{X: x, Y: y, Z: 1})
	u, v := cp.proj.forward(r.X, r.Y, r.Z)
	return cp.scale * u, cp.scale * v
}

// backward returns (-1,-1) for canvas points whose ray is behind the
// camera.
func (cp camProjector)backward(u, v float64) (float64, float64) {
	x, y, z := cp.proj.backward(u/cp.scale, v/cp.scale)
	p := cp.kRinv.Apply(r3.Vector{X: x, Y: y, Z: z})
	if cp.divides || p.Z > 0 {
		return p.X / p.Z, p.Y / p.Z
	}
	return -1, -1
}

// ROI is the canvas rectangle covered by a warped image of the given
// size; Max is exclusive.
func (w *Warper)ROI(size image.Point, cam camera.Params) image.Rectangle {
	cp := w.projector(cam)
	tl := r2.Point{X: math.MaxFloat64, Y: math.MaxFloat64}
	br := r2.Point{X: -math.MaxFloat64, Y: -math.MaxFloat64}
	add := func(x, y int) {
		u, v := cp.forward(float64(x), float64(y))
		if math.IsNaN(u) || math.IsNaN(v) || math.IsInf(u, 0) || math.IsInf(v, 0) {
			return
		}
		tl.X, tl.Y = math.Min(tl.X, u), math.Min(tl.Y, v)
		br.X, br.Y = math.Max(br.X, u), math.Max(br.Y, v)
	}

	if w.Kind == Spherical || w.Kind == Cylindrical {
		// on these surfaces the border bounds the image
		for x:=0; x<size.X; x++ {
			add(x, 0)
			add(x, size.Y-1)
		}
		for y:=0; y<size.Y; y++ {
			add(0, y)
			add(size.X-1, y)
		}
		if w.Kind == Spherical {
			w.addPoles(&tl, &br, size, cam)
		}
	} else {
		for y:=0; y<size.Y; y++ {
			for x:=0; x<size.X; x++ {
				add(x, y)
			}
		}
	}

	if tl.X > br.X {
		return image.Rectangle{}
	}
	return image.Rect(int(tl.X), int(tl.Y), int(br.X)+1, int(br.Y)+1)
}

// addPoles widens a spherical ROI to every longitude when a pole is in
// view.
func (w *Warper)addPoles(tl, br *r2.Point, size image.Point, cam camera.Params) {
	K, Rt := cam.K(), cam.R.T()
	for _, pole := range []struct{ dir, v float64 }{{-1, 0}, {1, math.Pi}} {
		c := Rt.Apply(r3.Vector{Y: pole.dir})
		if c.Z <= 0 {
			continue
		}
		p := K.Apply(c)
		x, y := p.X/p.Z, p.Y/p.Z
		if x > 0 && x < float64(size.X) && y > 0 && y < float64(size.Y) {
			tl.X, br.X = math.Min(tl.X, -math.Pi*w.Scale), math.Max(br.X, math.Pi*w.Scale)
			tl.Y, br.Y = math.Min(tl.Y, pole.v*w.Scale), math.Max(br.Y, pole.v*w.Scale)
		}
	}
}

// Maps holds, for each pixel of a warped image, where to sample the
// source image.
type Maps struct {
	Corner  image.Point // of the warped image, in canvas coordinates
	Size    image.Point // of the warped image
	SrcSize image.Point
	X, Y    []float32
}

// Maps builds the backward maps for a source image of the given size.
func (w *Warper)Maps(size image.Point, cam camera.Params) *Maps {
	roi := w.ROI(size, cam)
	cp := w.projector(cam)
	m := &Maps{
		Corner:  roi.Min,
		Size:    roi.Size(),
		SrcSize: size,
		X:       make([]float32, roi.Dx()*roi.Dy()),
		Y:       make([]float32, roi.Dx()*roi.Dy()),
	}
	for v:=0; v<m.Size.Y; v++ {
		for u:=0; u<m.Size.X; u++ {
			x, y := cp.backward(float64(u+roi.Min.X), float64(v+roi.Min.Y))
			m.X[v*m.Size.X+u], m.Y[v*m.Size.X+u] = float32(x), float32(y)
		}
	}
	return m
}

// Sample coordinates beyond this are treated as unmapped.
const maxCoord = 1e6

// Image resamples src bilinearly, reflecting at its border.
func (m *Maps)Image(src *raster.Image) *raster.Image {
	out := raster.NewImage(m.Size.X, m.Size.Y, src.C)
	for i := range m.X {
		sx, sy := float64(m.X[i]), float64(m.Y[i])
		if !(math.Abs(sx) < maxCoord && math.Abs(sy) < maxCoord) {
			continue
		}
		x0, y0 := math.Floor(sx), math.Floor(sy)
		fx, fy := float32(sx-x0), float32(sy-y0)
		ix0, iy0 := emath.Reflect(int(x0), src.W), emath.Reflect(int(y0), src.H)
		ix1, iy1 := emath.Reflect(int(x0)+1, src.W), emath.Reflect(int(y0)+1, src.H)

		o := i * src.C
		for c:=0; c<src.C; c++ {
			top := src.At(ix0, iy0, c)*(1-fx) + src.At(ix1, iy0, c)*fx
			bot := src.At(ix0, iy1, c)*(1-fx) + src.At(ix1, iy1, c)*fx
			out.Pix[o+c] = top*(1-fy) + bot*fy
		}
	}
	return out
}

// Mask is the warped footprint of a full source mask: nearest neighbour
// sampling, zero outside the source.
func (m *Maps)Mask() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Size.X, m.Size.Y))
	for i := range m.X {
		sx, sy := math.Round(float64(m.X[i])), math.Round(float64(m.Y[i]))
		if sx >= 0 && sy >= 0 && sx < float64(m.SrcSize.X) && sy < float64(m.SrcSize.Y) {
			out.Pix[i] = 255
		}
	}
	return out
}

