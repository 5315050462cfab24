// Package camera holds the per-image camera model, and estimates it from
// pairwise matches.
package camera

import(
	"fmt"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

// Params describes one camera. Focal, PPX and PPY are in pixels of the
// resolution the camera was estimated at. For the affine model R stays
// the identity and Affine maps image pixels to the canvas.
type Params struct {
	Focal  float64
	Aspect float64
	PPX    float64
	PPY    float64
	R      emath.Mat3
	Affine emath.Mat3
}

func Default() Params {
	return Params{Focal: 1, Aspect: 1, R: emath.Identity3(), Affine: emath.Identity3()}
}

func (c Params)String() string {
	return fmt.Sprintf("cam[f=%.2f aspect=%.3f pp=(%.1f,%.1f)]", c.Focal, c.Aspect, c.PPX, c.PPY)
}

// K is the intrinsic matrix.
func (c Params)K() emath.Mat3 {
	return emath.Mat3{c.Focal, 0, c.PPX,   0, c.Focal * c.Aspect, c.PPY,   0, 0, 1}
}

// Scaled returns the camera as seen at a different resolution. R and
// Affine are unchanged: the affine warp goes through K⁻¹, so a scaled
// focal carries the resolution change for both models.
func (c Params)Scaled(ratio float64) Params {
	c.Focal *= ratio
	c.PPX *= ratio
	c.PPY *= ratio
	return c
}

// MedianFocal is the median of the cameras' focal lengths, averaging the
// middle pair for an even count.
func MedianFocal(cams []Params) float64 {
	f := make([]float64, len(cams))
	for i, c := range cams {
		f[i] = c.Focal
	}
	return emath.Median(f)
}
