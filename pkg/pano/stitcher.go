// Package pano calibrates a rig of fixed, overlapping cameras once, and
// then composes each set of frames from the rig into one panorama.
//
// Calibration finds and matches features, estimates and refines the
// cameras, and fits exposure compensation and seams. Composition warps
// each frame with cached maps, applies the gains, and blends.
package pano

import(
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/pano-stitch/pkg/adjust"
	"github.com/abworrall/pano-stitch/pkg/blend"
	"github.com/abworrall/pano-stitch/pkg/camera"
	"github.com/abworrall/pano-stitch/pkg/exposure"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
	"github.com/abworrall/pano-stitch/pkg/raster"
	"github.com/abworrall/pano-stitch/pkg/seam"
	"github.com/abworrall/pano-stitch/pkg/warp"
)

type State int

const(
	Uncalibrated State = iota
	Calibrated
	Failed
)

func (s State)String() string {
	switch s {
	case Uncalibrated: return "uncalibrated"
	case Calibrated:   return "calibrated"
	case Failed:       return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Option func(*Stitcher)

func WithLogger(l *log.Logger) Option { return func(s *Stitcher) { s.log = l } }
func WithMetrics(m *Metrics) Option   { return func(s *Stitcher) { s.metrics = m } }

// A Stitcher is not safe for concurrent use; callers serialise
// Calibrate and Stitch.
type Stitcher struct {
	Config

	strategy stages
	id       string
	log      *log.Logger
	metrics  *Metrics

	state State
	cal   *calibration
}

// calibration is everything Calibrate learns. It is built up in full
// before being published, so a failed Calibrate leaves nothing behind.
type calibration struct {
	nInputs   int
	indices   []int         // inputs that made it into the panorama
	sizes     []image.Point // of every input frame
	channels  int

	workScale float64
	seamScale float64
	cams      []camera.Params // at work resolution, one per index
	warpScale float64         // at work resolution

	comp      *exposure.Compensator
	seamMasks []*image.Gray   // at seam resolution, after seam finding

	geom      *geometry
}

// geometry is the compose resolution warp of the current frame sizes.
type geometry struct {
	key          []image.Point // live frame sizes, per index
	composeScale float64       // relative to the live frames
	maps         []*warp.Maps
	corners      []image.Point
	sizes        []image.Point
	masks        []*image.Gray // warped masks cut by the seams
	canvas       image.Rectangle
}

func NewStitcher(cfg Config, opts ...Option) (*Stitcher, error) {
	st, err := cfg.stages()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	id := uuid.New().String()
	s := &Stitcher{Config: cfg, strategy: st, id: id}
	s.log = log.New(os.Stderr, fmt.Sprintf("[pano %s] ", id[:8]), log.LstdFlags)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Stitcher)ID() string     { return s.id }
func (s *Stitcher)State() State   { return s.state }

func (s *Stitcher)logf(level int, format string, args ...interface{}) {
	if s.Verbosity >= level {
		s.log.Printf(format, args...)
	}
}

// Cameras returns copies of the calibrated cameras, at work resolution,
// in the order of Indices.
func (s *Stitcher)Cameras() []camera.Params {
	if s.cal == nil {
		return nil
	}
	return append([]camera.Params(nil), s.cal.cams...)
}

// Indices returns which of the calibration inputs are in the panorama.
func (s *Stitcher)Indices() []int {
	if s.cal == nil {
		return nil
	}
	return append([]int(nil), s.cal.indices...)
}

// scaleFor is the factor that brings an image of the given area down to
// mp megapixels; a negative mp means full resolution.
func scaleFor(mp, area float64) float64 {
	if mp < 0 || area <= 0 {
		return 1
	}
	return math.Min(1, math.Sqrt(mp*1e6/area))
}

// Calibrate estimates the rig from one frame per camera. It may only
// be called once; any failure leaves the stitcher Failed.
func (s *Stitcher)Calibrate(frames []image.Image) error {
	if s.state != Uncalibrated {
		return ErrNotUncalibrated
	}
	start := time.Now()
	cal, err := s.calibrate(frames)
	secs := time.Since(start).Seconds()
	if err != nil {
		s.state = Failed
		s.metrics.calibrated("error", secs)
		s.log.Printf("calibration failed: %v", err)
		return err
	}
	s.cal, s.state = cal, Calibrated
	s.metrics.calibrated("ok", secs)
	s.logf(1, "calibrated in %.2fs: images %v of %d, warp scale %.1f", secs, cal.indices, cal.nInputs, cal.warpScale)
	return nil
}

func (s *Stitcher)calibrate(frames []image.Image) (*calibration, error) {
	n := len(frames)
	if n < 2 {
		return nil, &InsufficientImagesError{Have: n}
	}

	cal := &calibration{nInputs: n, sizes: make([]image.Point, n), channels: 1}
	for i, f := range frames {
		if f == nil || f.Bounds().Empty() {
			return nil, &EstimationError{Stage: "input", Cause: errors.Errorf("frame %d is empty", i)}
		}
		cal.sizes[i] = f.Bounds().Size()
		if raster.Channels(f) == 3 {
			cal.channels = 3
		}
	}
	area := float64(cal.sizes[0].X) * float64(cal.sizes[0].Y)
	cal.workScale = scaleFor(s.WorkResolutionMegapixels, area)
	cal.seamScale = scaleFor(s.SeamResolutionMegapixels, area)
	s.logf(1, "%d frames of %v, work scale %.3f, seam scale %.3f", n, cal.sizes[0], cal.workScale, cal.seamScale)

	// Features
	feats := make([]features.FeatureSet, n)
	workImgs := make([]image.Image, n)
	seamImgs := make([]*raster.Image, n)
	det := features.NewDetector(s.strategy.algorithm, s.MaxFeatures)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range frames {
		i := i
		g.Go(func() error {
			workImgs[i] = raster.Scale(frames[i], cal.workScale)
			feats[i] = det.Detect(raster.FromImage(workImgs[i], 1).Luminance())
			seamImgs[i] = raster.FromImage(raster.Scale(frames[i], cal.seamScale), cal.channels)
			return nil
		})
	}
	g.Wait()
	for i, fs := range feats {
		s.logf(1, "image %d: %s", i, fs)
		if fs.Len() == 0 {
			return nil, &InsufficientFeaturesError{Image: i}
		}
	}

	// Matching, and the biggest confidently connected set of images
	pairs := matching.NewMatcher(s.strategy.model, s.strategy.matchConf, s.MatchRangeWidth).MatchAll(feats)
	s.logf(1, "pair confidence (x10):\n%v", matching.ConfidenceHistogram(pairs))
	if s.MatchGraphFile != "" {
		if err := s.writeMatchGraph(pairs); err != nil {
			s.log.Printf("match graph: %v", err)
		}
	}
	if s.debugging() {
		s.dumpMatches(workImgs, feats, pairs)
	}

	indices, pruned := matching.LeaveBiggestComponent(pairs, s.GraphConfidenceThreshold)
	if len(indices) < 2 {
		return nil, &InsufficientImagesError{
			Have:  len(indices),
			Cause: &EstimationError{Stage: "match graph", Cause: errors.New("no two images are confidently connected")},
		}
	}
	if len(indices) < n {
		s.logf(1, "keeping images %v of %d", indices, n)
	}
	cal.indices = indices
	kept := make([]features.FeatureSet, len(indices))
	for k, i := range indices {
		kept[k] = feats[i]
	}

	// Cameras
	cams, err := camera.NewEstimator(s.strategy.estimator).Estimate(kept, pruned)
	if err != nil {
		return nil, &EstimationError{Stage: "camera estimation", Cause: err}
	}
	adj := adjust.New(s.strategy.cost, s.strategy.mask, s.GraphConfidenceThreshold, s.BAMaxIterations, s.BAEpsilon)
	cams, res, err := adj.Refine(kept, pruned, cams)
	if err != nil {
		return nil, &RefinementError{Cause: err}
	}
	s.logf(1, "bundle adjustment (%s): %d iterations, rms %.4g -> %.4g", s.strategy.cost, res.Iterations, res.InitialRMS, res.FinalRMS)

	// R is the identity for affine cameras, which has no horizon to find
	if s.strategy.estimator != camera.AffineBased && s.strategy.wave != camera.WaveNone {
		if err := camera.WaveCorrect(cams, s.strategy.wave); err != nil {
			return nil, &EstimationError{Stage: "wave correction", Cause: err}
		}
	}
	for k, c := range cams {
		s.logf(1, "camera %d: %s", indices[k], c)
	}
	cal.cams = cams
	cal.warpScale = camera.MedianFocal(cams)
	if !(cal.warpScale > 0) || math.IsInf(cal.warpScale, 0) {
		return nil, &EstimationError{Stage: "warp scale", Cause: errors.Errorf("median focal %g", cal.warpScale)}
	}

	// Exposure and seams, on warped seam resolution images
	seamWork := cal.seamScale / cal.workScale
	w := warp.New(s.strategy.warp, cal.warpScale*seamWork)
	m := len(indices)
	corners := make([]image.Point, m)
	warped := make([]*raster.Image, m)
	masks := make([]*image.Gray, m)
	for k, i := range indices {
		maps := w.Maps(seamImgs[i].Size(), cams[k].Scaled(seamWork))
		corners[k], warped[k], masks[k] = maps.Corner, maps.Image(seamImgs[i]), maps.Mask()
	}

	cal.comp = exposure.New(s.strategy.exposure, s.ExposureFeedCount, s.ExposureBlockSize)
	if err := cal.comp.Feed(corners, warped, masks); err != nil {
		return nil, &EstimationError{Stage: "exposure compensation", Cause: err}
	}
	if s.Verbosity > 0 {
		s.logOverlapError(cal.comp, corners, warped, masks)
	}

	cal.seamMasks = make([]*image.Gray, m)
	for k, mk := range masks {
		cal.seamMasks[k] = &image.Gray{Pix: append([]uint8(nil), mk.Pix...), Stride: mk.Stride, Rect: mk.Rect}
	}
	seam.New(s.strategy.seam).Find(corners, cal.seamMasks)
	if s.debugging() {
		s.dumpSeams(corners, cal.seamMasks)
	}

	return cal, nil
}

// Stitch composes one frame per calibration input into a panorama. The
// frames must be the calibration sizes, or all rescaled by one factor.
func (s *Stitcher)Stitch(frames []image.Image) (image.Image, error) {
	res, err := s.StitchRaw(frames)
	if err != nil {
		return nil, err
	}
	return blend.Normalize8(res), nil
}

// StitchRaw is Stitch without the final normalisation to 8 bits.
func (s *Stitcher)StitchRaw(frames []image.Image) (*raster.S16, error) {
	switch s.state {
	case Uncalibrated:
		s.metrics.stitchFailed("state")
		return nil, ErrNotCalibrated
	case Failed:
		s.metrics.stitchFailed("state")
		return nil, ErrFailed
	}

	start := time.Now()
	geo, err := s.geometryFor(frames)
	if err != nil {
		if _, ok := err.(*BlendConfigurationError); ok {
			s.metrics.stitchFailed("blend")
		} else {
			s.metrics.stitchFailed("shape")
		}
		return nil, err
	}

	cal := s.cal
	b, err := blend.ForCanvas(s.strategy.blend, geo.canvas, s.BlendStrengthPercent)
	if err != nil {
		s.metrics.stitchFailed("blend")
		return nil, &BlendConfigurationError{Canvas: geo.canvas}
	}
	b.Prepare(geo.canvas, cal.channels)
	for k, i := range cal.indices {
		img := raster.FromImage(raster.Scale(frames[i], geo.composeScale), cal.channels)
		warped := geo.maps[k].Image(img)
		cal.comp.Apply(k, geo.corners[k], warped, nil)
		b.Feed(warped.ToS16(), geo.masks[k], geo.corners[k])
	}
	res, _ := b.Blend()

	secs := time.Since(start).Seconds()
	s.metrics.stitched(secs)
	s.logf(2, "stitched %dx%d in %.3fs", res.W, res.H, secs)
	return res, nil
}

// geometryFor returns the compose geometry for these frames, building
// it if their sizes differ from last time.
func (s *Stitcher)geometryFor(frames []image.Image) (*geometry, error) {
	cal := s.cal
	if len(frames) != cal.nInputs {
		return nil, &FrameShapeMismatchError{Image: -1, WantN: cal.nInputs, GotN: len(frames)}
	}
	live := make([]image.Point, len(cal.indices))
	for k, i := range cal.indices {
		if frames[i] == nil {
			return nil, &FrameShapeMismatchError{Image: i, Want: cal.sizes[i]}
		}
		live[k] = frames[i].Bounds().Size()
	}
	if cal.geom != nil && samePoints(cal.geom.key, live) {
		return cal.geom, nil
	}

	// the same rescale must apply to every frame, give or take rounding
	i0 := cal.indices[0]
	factor := float64(live[0].X) / float64(cal.sizes[i0].X)
	for k, i := range cal.indices {
		want := image.Point{
			int(math.Round(float64(cal.sizes[i].X) * factor)),
			int(math.Round(float64(cal.sizes[i].Y) * factor)),
		}
		if abs(want.X-live[k].X) > 1 || abs(want.Y-live[k].Y) > 1 {
			return nil, &FrameShapeMismatchError{Image: i, Want: want, Got: live[k]}
		}
	}

	geo := &geometry{
		key:          live,
		composeScale: scaleFor(s.ComposeResolutionMegapixels, float64(live[0].X)*float64(live[0].Y)),
	}
	composeWork := geo.composeScale * factor / cal.workScale
	w := warp.New(s.strategy.warp, cal.warpScale*composeWork)

	m := len(cal.indices)
	geo.maps = make([]*warp.Maps, m)
	geo.corners = make([]image.Point, m)
	geo.sizes = make([]image.Point, m)
	geo.masks = make([]*image.Gray, m)
	for k := range cal.indices {
		sz := raster.ScaledSize(live[k], geo.composeScale)
		maps := w.Maps(sz, cal.cams[k].Scaled(composeWork))
		cut := raster.ResizeMaskNearest(raster.Dilate3(cal.seamMasks[k]), maps.Size)
		geo.maps[k], geo.corners[k], geo.sizes[k] = maps, maps.Corner, maps.Size
		geo.masks[k] = raster.AndMasks(cut, maps.Mask())
	}
	geo.canvas = raster.UnionRect(geo.corners, geo.sizes)
	if _, err := blend.ForCanvas(s.strategy.blend, geo.canvas, s.BlendStrengthPercent); err != nil {
		return nil, &BlendConfigurationError{Canvas: geo.canvas}
	}
	cal.comp.Prepare(geo.sizes)

	cal.geom = geo
	s.metrics.canvas(geo.canvas.Dx() * geo.canvas.Dy())
	s.logf(1, "compose geometry for %v: scale %.3f, canvas %v", live, geo.composeScale, geo.canvas)
	return geo, nil
}

func samePoints(a, b []image.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
