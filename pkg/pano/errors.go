package pano

import(
	"fmt"
	"image"

	"github.com/pkg/errors"
)

var(
	ErrNotUncalibrated = errors.New("stitcher has already been calibrated")
	ErrNotCalibrated   = errors.New("stitcher has not been calibrated")
	ErrFailed          = errors.New("stitcher calibration failed")
)

// InsufficientImagesError is returned when fewer than two images are
// available, either as input or after dropping unconnected ones.
type InsufficientImagesError struct {
	Have  int
	Cause error
}

func (e *InsufficientImagesError)Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("need at least 2 images, have %d: %v", e.Have, e.Cause)
	}
	return fmt.Sprintf("need at least 2 images, have %d", e.Have)
}

func (e *InsufficientImagesError)Unwrap() error { return e.Cause }

type InsufficientFeaturesError struct {
	Image int
}

func (e *InsufficientFeaturesError)Error() string {
	return fmt.Sprintf("image %d: no features found", e.Image)
}

// EstimationError covers every calibration stage before refinement.
type EstimationError struct {
	Stage string
	Cause error
}

func (e *EstimationError)Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Cause) }
func (e *EstimationError)Unwrap() error { return e.Cause }

type RefinementError struct {
	Cause error
}

func (e *RefinementError)Error() string { return fmt.Sprintf("bundle adjustment: %v", e.Cause) }
func (e *RefinementError)Unwrap() error { return e.Cause }

type BlendConfigurationError struct {
	Canvas image.Rectangle
}

func (e *BlendConfigurationError)Error() string {
	return fmt.Sprintf("cannot blend onto canvas %v", e.Canvas)
}

// FrameShapeMismatchError is returned by Stitch when the live frames
// cannot be composed with the calibrated geometry. Image is -1 when the
// number of frames is wrong.
type FrameShapeMismatchError struct {
	Image     int
	Want, Got image.Point
	WantN     int
	GotN      int
}

func (e *FrameShapeMismatchError)Error() string {
	if e.Image < 0 {
		return fmt.Sprintf("calibrated with %d frames, got %d", e.WantN, e.GotN)
	}
	return fmt.Sprintf("frame %d: want size %v, got %v", e.Image, e.Want, e.Got)
}
