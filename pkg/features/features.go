// Package features finds and describes interest points in a grayscale
// image, for pairwise matching.
package features

import(
	"fmt"
	"image"
	"sort"

	"github.com/golang/geo/r2"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

// Algorithm selects a detector/descriptor pairing.
type Algorithm int

const(
	Harris Algorithm = iota // Harris corners, 128-float gradient histogram descriptor
	ORB                     // FAST corners, oriented + steered 256 bit BRIEF
	BRIEF                   // FAST corners, unsteered 256 bit BRIEF; fastest
)

var Algorithms = []Algorithm{Harris, ORB, BRIEF}

func (a Algorithm)String() string {
	switch a {
	case Harris: return "harris"
	case ORB:    return "orb"
	case BRIEF:  return "brief"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Binary reports whether descriptors are bit strings (compared by
// Hamming distance) rather than float vectors.
func (a Algorithm)Binary() bool { return a == ORB || a == BRIEF }

func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("no feature algorithm named '%s'", s)
}

type Keypoint struct {
	Pt       r2.Point
	Response float64
	Angle    float64 // radians, 0 for unoriented detectors
}

// A FeatureSet holds the keypoints of one image, with exactly one of the
// descriptor slices populated (index-aligned with Keypoints).
type FeatureSet struct {
	ImageSize image.Point
	Keypoints []Keypoint
	Binary    [][4]uint64
	Float     [][]float32
}

func (fs FeatureSet)Len() int { return len(fs.Keypoints) }

func (fs FeatureSet)String() string {
	return fmt.Sprintf("features[%dx%d, %d keypoints]", fs.ImageSize.X, fs.ImageSize.Y, fs.Len())
}

type Detector struct {
	Algorithm
	MaxFeatures     int     // <=0 means unlimited
	FastThreshold   float64 // intensity step for FAST, on 0..1 intensities
	HarrisThreshold float64 // minimum Harris response for a Harris keypoint
}

func NewDetector(alg Algorithm, maxFeatures int) Detector {
	return Detector{
		Algorithm:       alg,
		MaxFeatures:     maxFeatures,
		FastThreshold:   20.0 / 255.0,
		HarrisThreshold: 1e-4,
	}
}

// Detect finds keypoints in a luminance grid (values 0..1) and computes
// their descriptors. The result is a pure function of the pixels.
func (d Detector)Detect(gray emath.FloatGrid) FeatureSet {
	fs := FeatureSet{ImageSize: image.Point{gray.Dx(), gray.Dy()}}

	smooth := gray.GaussianBlur()
	gx, gy := smooth.Sobel()
	resp := harrisResponse(gx, gy)

	switch d.Algorithm {
	case Harris:
		score := resp.NewFromThis()
		for y:=0; y<score.Dy(); y++ {
			for x:=0; x<score.Dx(); x++ {
				if r := resp.Get(x, y); r > d.HarrisThreshold {
					score.Set(x, y, r)
				}
			}
		}
		fs.Keypoints = d.selectBest(suppressNonMax(score, harrisMargin))
		fs.Float = gradientDescriptors(gx, gy, fs.Keypoints)

	case ORB, BRIEF:
		margin := briefMargin
		if d.Algorithm == ORB {
			margin = orbMargin
		}
		score := fastScore(smooth, resp, d.FastThreshold, margin)
		fs.Keypoints = d.selectBest(suppressNonMax(score, margin))

		patch := smooth.GaussianBlur()
		if d.Algorithm == ORB {
			for i := range fs.Keypoints {
				fs.Keypoints[i].Angle = centroidAngle(patch, fs.Keypoints[i])
			}
		}
		fs.Binary = briefDescriptors(patch, fs.Keypoints, d.Algorithm == ORB)
	}

	return fs
}

// selectBest keeps the strongest keypoints; ties are broken by raster
// position so the choice never depends on sort stability.
func (d Detector)selectBest(kps []Keypoint) []Keypoint {
	sort.Slice(kps, func(i, j int) bool {
		if kps[i].Response != kps[j].Response {
			return kps[i].Response > kps[j].Response
		}
		if kps[i].Pt.Y != kps[j].Pt.Y {
			return kps[i].Pt.Y < kps[j].Pt.Y
		}
		return kps[i].Pt.X < kps[j].Pt.X
	})
	if d.MaxFeatures > 0 && len(kps) > d.MaxFeatures {
		kps = kps[:d.MaxFeatures]
	}
	return kps
}

// suppressNonMax keeps positive cells that dominate their 5x5
// neighbourhood. Earlier cells (raster order) must be beaten strictly,
// so a plateau yields exactly one keypoint.
func suppressNonMax(score emath.FloatGrid, margin int) []Keypoint {
	const r = 2
	kps := []Keypoint{}
	for y:=margin; y<score.Dy()-margin; y++ {
		for x:=margin; x<score.Dx()-margin; x++ {
			s := score.Get(x, y)
			if s <= 0 {
				continue
			}
			isMax := true
			for dy:=-r; dy<=r && isMax; dy++ {
				for dx:=-r; dx<=r; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n := score.Get(x+dx, y+dy)
					earlier := dy < 0 || (dy == 0 && dx < 0)
					if n > s || (earlier && n == s) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				kps = append(kps, Keypoint{Pt: r2.Point{X: float64(x), Y: float64(y)}, Response: s})
			}
		}
	}
	return kps
}
