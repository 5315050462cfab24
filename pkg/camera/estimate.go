package camera

import(
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
)

type EstimatorKind int

const(
	HomographyBased EstimatorKind = iota
	AffineBased
)

func (k EstimatorKind)String() string {
	switch k {
	case HomographyBased: return "homography"
	case AffineBased:     return "affine"
	}
	return fmt.Sprintf("EstimatorKind(%d)", int(k))
}

func ParseEstimator(s string) (EstimatorKind, error) {
	switch s {
	case "homography": return HomographyBased, nil
	case "affine":     return AffineBased, nil
	}
	return 0, fmt.Errorf("no estimator named '%s'", s)
}

// An Estimator produces initial cameras for a connected set of images.
type Estimator interface {
	Estimate(feats []features.FeatureSet, pairs matching.Table) ([]Params, error)
}

func NewEstimator(kind EstimatorKind) Estimator {
	if kind == AffineBased {
		return affineEstimator{}
	}
	return homographyEstimator{}
}

type homographyEstimator struct{}

// Estimate walks the max spanning tree out from its centre, chaining
// the rotation implied by each pair's homography.
func (homographyEstimator)Estimate(feats []features.FeatureSet, pairs matching.Table) ([]Params, error) {
	n := len(feats)
	if n == 0 {
		return nil, errors.New("no images")
	}
	cams := make([]Params, n)
	for i, f := range EstimateFocal(feats, pairs) {
		cams[i] = Default()
		cams[i].Focal = f
	}

	tree, centers := matching.MaxSpanningTree(pairs)
	var walkErr error
	visited := tree.WalkBreadthFirst(centers[0], func(e matching.Edge) {
		if walkErr != nil {
			return
		}
		mi := pairs.Get(e.From, e.To)
		hinv, ok := mi.H.Inverse()
		if !ok {
			walkErr = errors.Errorf("pair %d->%d: singular homography", e.From, e.To)
			return
		}
		kFromInv, ok := cams[e.From].K().Inverse()
		if !ok {
			walkErr = errors.Errorf("image %d: singular intrinsics (f=%g)", e.From, cams[e.From].Focal)
			return
		}
		R := kFromInv.Mult(hinv).Mult(cams[e.To].K())
		cams[e.To].R = cams[e.From].R.Mult(R)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if visited != n {
		return nil, errors.Errorf("match graph is disconnected: reached %d of %d images", visited, n)
	}

	for i := range cams {
		cams[i].PPX += 0.5 * float64(feats[i].ImageSize.X)
		cams[i].PPY += 0.5 * float64(feats[i].ImageSize.Y)

		R, ok := emath.NearestRotation(cams[i].R)
		if !ok || !R.IsFinite() || math.IsNaN(cams[i].Focal) || cams[i].Focal <= 0 {
			return nil, errors.Errorf("image %d: degenerate camera %s", i, cams[i])
		}
		cams[i].R = R
	}
	return cams, nil
}

type affineEstimator struct{}

// Estimate chains the pairwise transforms from the tree centre, so that
// each camera's Affine maps its pixels into the centre image's frame.
func (affineEstimator)Estimate(feats []features.FeatureSet, pairs matching.Table) ([]Params, error) {
	n := len(feats)
	if n == 0 {
		return nil, errors.New("no images")
	}
	cams := make([]Params, n)
	for i := range cams {
		cams[i] = Default()
	}

	tree, centers := matching.MaxSpanningTree(pairs)
	var walkErr error
	visited := tree.WalkBreadthFirst(centers[0], func(e matching.Edge) {
		if walkErr != nil {
			return
		}
		hinv, ok := emath.AffFromMat3(*pairs.Get(e.From, e.To).H).Inverse()
		if !ok {
			walkErr = errors.Errorf("pair %d->%d: singular affine transform", e.From, e.To)
			return
		}
		cams[e.To].Affine = emath.AffFromMat3(cams[e.From].Affine).Mult(hinv).Mat3()
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if visited != n {
		return nil, errors.Errorf("match graph is disconnected: reached %d of %d images", visited, n)
	}

	for i, c := range cams {
		if !c.Affine.IsFinite() {
			return nil, errors.Errorf("image %d: non-finite affine transform", i)
		}
	}
	return cams, nil
}
