// Package adjust refines camera parameters by bundle adjustment over the
// inlier matches between images.
package adjust

import(
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/abworrall/pano-stitch/pkg/camera"
	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
)

type Cost int

const(
	Ray Cost = iota // distance between back-projected rays
	Reproj          // reprojection error in pixels
	AffineCost      // reprojection error under similarity transforms
	None
)

func (c Cost)String() string {
	switch c {
	case Ray:        return "ray"
	case Reproj:     return "reproj"
	case AffineCost: return "affine"
	case None:       return "none"
	}
	return fmt.Sprintf("Cost(%d)", int(c))
}

func ParseCost(s string) (Cost, error) {
	for _, c := range []Cost{Ray, Reproj, AffineCost, None} {
		if c.String() == s {
			return c, nil
		}
	}
	if s == "no" {
		return None, nil
	}
	return 0, fmt.Errorf("no bundle adjuster named '%s'", s)
}

// RefineMask says which intrinsics are free, in the order fx, skew,
// ppx, aspect, ppy.
type RefineMask [5]bool

const(
	RefineFocal = iota
	RefineSkew
	RefinePPX
	RefineAspect
	RefinePPY
)

func ParseRefineMask(s string) (RefineMask, error) {
	var m RefineMask
	if len(s) != 5 {
		return m, fmt.Errorf("refine mask '%s' must have 5 characters", s)
	}
	for i, c := range s {
		switch c {
		case 'x': m[i] = true
		case '_': m[i] = false
		default:
			return m, fmt.Errorf("refine mask '%s': bad character '%c'", s, c)
		}
	}
	return m, nil
}

func (m RefineMask)String() string {
	b := []byte("_____")
	for i, v := range m {
		if v {
			b[i] = 'x'
		}
	}
	return string(b)
}

type Adjuster struct {
	Cost
	Mask       RefineMask
	ConfThresh float64
	MaxIter    int
	Eps        float64
}

func New(cost Cost, mask RefineMask, confThresh float64, maxIter int, eps float64) *Adjuster {
	return &Adjuster{Cost: cost, Mask: mask, ConfThresh: confThresh, MaxIter: maxIter, Eps: eps}
}

type pointPair struct{ p1, p2 r2.Point }

type edge struct {
	i, j int
	pts  []pointPair
}

// model is one camera parameterisation.
type model interface {
	stride() int
	pack(c camera.Params) []float64
	unpack(p []float64, c camera.Params) camera.Params
	free(mask RefineMask) []bool
	dims() int
	residuals(dst []float64, ci, cj camera.Params, e edge)
}

func (a *Adjuster)model() model {
	switch a.Cost {
	case Reproj:     return reprojModel{}
	case AffineCost: return affineModel{}
	}
	return rayModel{}
}

// Refine runs the adjustment and returns new cameras; the input is not
// modified. Rotations (or affine transforms) come back relative to the
// centre of the max spanning tree.
func (a *Adjuster)Refine(feats []features.FeatureSet, pairs matching.Table, cams []camera.Params) ([]camera.Params, Result, error) {
	out := append([]camera.Params(nil), cams...)
	if a.Cost == None {
		return out, Result{}, nil
	}

	m := a.model()
	edges := []edge{}
	nRes := 0
	for i:=0; i<pairs.N; i++ {
		for j:=i+1; j<pairs.N; j++ {
			mi := pairs.Get(i, j)
			if mi.Confidence <= a.ConfThresh {
				continue
			}
			e := edge{i: i, j: j}
			for k, mt := range mi.Matches {
				if k < len(mi.Inliers) && mi.Inliers[k] {
					e.pts = append(e.pts, pointPair{feats[i].Keypoints[mt.QueryIdx].Pt, feats[j].Keypoints[mt.TrainIdx].Pt})
				}
			}
			nRes += len(e.pts) * m.dims()
			edges = append(edges, e)
		}
	}
	if nRes == 0 {
		return nil, Result{}, errors.New("no inlier matches above the confidence threshold")
	}

	if a.Cost != AffineCost {
		for i := range out {
			R, ok := emath.NearestRotation(out[i].R)
			if !ok {
				return nil, Result{}, errors.Errorf("image %d: cannot orthogonalise rotation", i)
			}
			out[i].R = R
		}
	}

	// Only the free parameters are handed to the solver.
	k := m.stride()
	all := make([]float64, 0, k*len(out))
	for _, c := range out {
		all = append(all, m.pack(c)...)
	}
	freeMask := m.free(a.Mask)
	freeIdx := []int{}
	for i := range all {
		if freeMask[i%k] {
			freeIdx = append(freeIdx, i)
		}
	}
	x0 := make([]float64, len(freeIdx))
	for n, i := range freeIdx {
		x0[n] = all[i]
	}

	unpackAll := func(x []float64) []camera.Params {
		p := append([]float64(nil), all...)
		for n, i := range freeIdx {
			p[i] = x[n]
		}
		cs := make([]camera.Params, len(out))
		for c := range cs {
			cs[c] = m.unpack(p[c*k:(c+1)*k], out[c])
		}
		return cs
	}

	f := func(r, x []float64) {
		cs := unpackAll(x)
		off := 0
		for _, e := range edges {
			n := len(e.pts) * m.dims()
			m.residuals(r[off:off+n], cs[e.i], cs[e.j], e)
			off += n
		}
	}

	x, res, err := levenbergMarquardt(f, nRes, x0, a.MaxIter, a.Eps)
	if err != nil {
		return nil, res, err
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, res, errors.New("refined parameters are not finite")
		}
	}
	out = unpackAll(x)

	_, centers := matching.MaxSpanningTree(pairs)
	c := centers[0]
	if a.Cost == AffineCost {
		inv, ok := emath.AffFromMat3(out[c].Affine).Inverse()
		if !ok {
			return nil, res, errors.Errorf("image %d: singular affine transform", c)
		}
		for i := range out {
			out[i].Affine = inv.Mult(emath.AffFromMat3(out[i].Affine)).Mat3()
		}
	} else {
		Rct := out[c].R.T()
		for i := range out {
			out[i].R = Rct.Mult(out[i].R)
		}
	}
	return out, res, nil
}

// rayInverse is R·K⁻¹, which maps a pixel to its viewing ray.
func rayInverse(c camera.Params) emath.Mat3 {
	kinv, _ := c.K().Inverse()
	return c.R.Mult(kinv)
}

type rayModel struct{}

func (rayModel)stride() int { return 4 }
func (rayModel)dims() int   { return 3 }

func (rayModel)pack(c camera.Params) []float64 {
	rv := c.R.RotationVector()
	return []float64{c.Focal, rv.X, rv.Y, rv.Z}
}

func (rayModel)unpack(p []float64, c camera.Params) camera.Params {
	c.Focal = p[0]
	c.R = emath.RotationFromVector(r3.Vector{X: p[1], Y: p[2], Z: p[3]})
	return c
}

func (rayModel)free(mask RefineMask) []bool {
	return []bool{mask[RefineFocal], true, true, true}
}

func (rayModel)residuals(dst []float64, ci, cj camera.Params, e edge) {
	mi, mj := rayInverse(ci), rayInverse(cj)
	mult := math.Sqrt(ci.Focal * cj.Focal)
	for k, pp := range e.pts {
		ra := mi.Apply(r3.Vector{X: pp.p1.X, Y: pp.p1.Y, Z: 1}).Normalize()
		rb := mj.Apply(r3.Vector{X: pp.p2.X, Y: pp.p2.Y, Z: 1}).Normalize()
		d := ra.Sub(rb).Mul(mult)
		dst[3*k], dst[3*k+1], dst[3*k+2] = d.X, d.Y, d.Z
	}
}

type reprojModel struct{}

func (reprojModel)stride() int { return 7 }
func (reprojModel)dims() int   { return 2 }

func (reprojModel)pack(c camera.Params) []float64 {
	rv := c.R.RotationVector()
	return []float64{c.Focal, c.PPX, c.PPY, c.Aspect, rv.X, rv.Y, rv.Z}
}

func (reprojModel)unpack(p []float64, c camera.Params) camera.Params {
	c.Focal, c.PPX, c.PPY, c.Aspect = p[0], p[1], p[2], p[3]
	c.R = emath.RotationFromVector(r3.Vector{X: p[4], Y: p[5], Z: p[6]})
	return c
}

func (reprojModel)free(mask RefineMask) []bool {
	return []bool{mask[RefineFocal], mask[RefinePPX], mask[RefinePPY], mask[RefineAspect], true, true, true}
}

// residuals compare each point in j with its match from i, carried over
// by H = K_j·R_jᵀ·R_i·K_i⁻¹.
func (reprojModel)residuals(dst []float64, ci, cj camera.Params, e edge) {
	mjinv, _ := rayInverse(cj).Inverse()
	H := mjinv.Mult(rayInverse(ci))
	projectResiduals(dst, H, e)
}

func projectResiduals(dst []float64, H emath.Mat3, e edge) {
	for k, pp := range e.pts {
		x, y := H.Project(pp.p1.X, pp.p1.Y)
		dst[2*k], dst[2*k+1] = pp.p2.X-x, pp.p2.Y-y
	}
}

type affineModel struct{}

func (affineModel)stride() int { return 4 }
func (affineModel)dims() int   { return 2 }

func (affineModel)pack(c camera.Params) []float64 {
	a := c.Affine
	return []float64{a[0], a[3], a[2], a[5]}
}

func (affineModel)unpack(p []float64, c camera.Params) camera.Params {
	c.Affine = emath.Similarity(p[0], p[1], p[2], p[3]).Mat3()
	return c
}

func (affineModel)free(RefineMask) []bool { return []bool{true, true, true, true} }

func (affineModel)residuals(dst []float64, ci, cj camera.Params, e edge) {
	ajinv, _ := cj.Affine.Inverse()
	projectResiduals(dst, ajinv.Mult(ci.Affine), e)
}
