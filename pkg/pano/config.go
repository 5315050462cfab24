package pano

import(
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/pano-stitch/pkg/adjust"
	"github.com/abworrall/pano-stitch/pkg/blend"
	"github.com/abworrall/pano-stitch/pkg/camera"
	"github.com/abworrall/pano-stitch/pkg/exposure"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
	"github.com/abworrall/pano-stitch/pkg/seam"
	"github.com/abworrall/pano-stitch/pkg/warp"
)

type Config struct {
	Verbosity                   int     `yaml:"verbosity"`

	FeatureAlgorithm            string  `yaml:"feature_algorithm"`
	MaxFeatures                 int     `yaml:"max_features"`
	MatcherType                 string  `yaml:"matcher_type"`
	MatchConfidenceThreshold    float64 `yaml:"match_confidence_threshold"` // 0 picks a default for the descriptor type
	MatchRangeWidth             int     `yaml:"match_range_width"`
	GraphConfidenceThreshold    float64 `yaml:"graph_confidence_threshold"`

	Estimator                   string  `yaml:"estimator"`
	BundleAdjuster              string  `yaml:"bundle_adjuster"`
	RefineMask                  string  `yaml:"refine_mask"`
	BAMaxIterations             int     `yaml:"ba_max_iterations"`
	BAEpsilon                   float64 `yaml:"ba_epsilon"`
	WaveCorrect                 string  `yaml:"wave_correct"`

	WorkResolutionMegapixels    float64 `yaml:"work_resolution_megapixels"`    // <0: full resolution
	SeamResolutionMegapixels    float64 `yaml:"seam_resolution_megapixels"`
	ComposeResolutionMegapixels float64 `yaml:"compose_resolution_megapixels"` // <0: full resolution

	WarpType                    string  `yaml:"warp_type"`
	ExposureCompensation        string  `yaml:"exposure_compensation"`
	ExposureFeedCount           int     `yaml:"exposure_feed_count"`
	ExposureBlockSize           int     `yaml:"exposure_block_size"`
	SeamFinder                  string  `yaml:"seam_finder"`
	BlendType                   string  `yaml:"blend_type"`
	BlendStrengthPercent        float64 `yaml:"blend_strength_percent"`

	MatchGraphFile              string  `yaml:"match_graph_file"` // Graphviz DOT of the match graph
	DebugDir                    string  `yaml:"debug_dir"`        // debug images, when Verbosity > 1
}

func NewConfig() Config {
	return Config{
		FeatureAlgorithm:            "harris",
		MaxFeatures:                 500,
		MatcherType:                 "homography",
		MatchRangeWidth:             -1,
		GraphConfidenceThreshold:    0.3,
		Estimator:                   "homography",
		BundleAdjuster:              "ray",
		RefineMask:                  "xxxxx",
		BAMaxIterations:             1000,
		BAEpsilon:                   1e-10,
		WaveCorrect:                 "horizontal",
		WorkResolutionMegapixels:    0.6,
		SeamResolutionMegapixels:    0.1,
		ComposeResolutionMegapixels: -1,
		WarpType:                    "cylindrical",
		ExposureCompensation:        "channel_blocks",
		ExposureFeedCount:           1,
		ExposureBlockSize:           32,
		SeamFinder:                  "none",
		BlendType:                   "feather",
		BlendStrengthPercent:        5,
	}
}

// AffineConfig is the configuration for cameras that translate (and
// perhaps rotate or zoom) in a plane rather than pan about a point.
func AffineConfig() Config {
	c := NewConfig()
	c.MatcherType = "affine"
	c.Estimator = "affine"
	c.BundleAdjuster = "affine"
	c.WarpType = "affine"
	c.WaveCorrect = "none"
	return c
}

// ParseConfig reads YAML over the defaults. Unknown keys are errors.
func ParseConfig(b []byte) (Config, error) {
	return ParseConfigOver(NewConfig(), b)
}

// ParseConfigOver parses YAML on top of base; keys the YAML leaves out
// keep base's values.
func ParseConfigOver(base Config, b []byte) (Config, error) {
	c := base
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return c, errors.Wrap(err, "parsing config")
	}
	return c, c.Validate()
}

func LoadConfig(filename string) (Config, error) {
	return LoadConfigOver(NewConfig(), filename)
}

func LoadConfigOver(base Config, filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return base, errors.Wrapf(err, "reading config '%s'", filename)
	}
	return ParseConfigOver(base, b)
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Printf("Can't marshal config yaml: %v\n", err)
		return ""
	}
	return string(b)
}

// stages holds the config's strategy names resolved to their enums.
type stages struct {
	algorithm features.Algorithm
	model     matching.Model
	estimator camera.EstimatorKind
	cost      adjust.Cost
	mask      adjust.RefineMask
	wave      camera.WaveKind
	warp      warp.Kind
	exposure  exposure.Kind
	seam      seam.Kind
	blend     blend.Kind
	matchConf float64
}

func (c Config)Validate() error {
	_, err := c.stages()
	return err
}

func (c Config)stages() (stages, error) {
	var s stages
	var err error

	if s.algorithm, err = features.ParseAlgorithm(c.FeatureAlgorithm); err != nil {
		return s, err
	}
	if s.model, err = matching.ParseModel(c.MatcherType); err != nil {
		return s, err
	}
	if s.estimator, err = camera.ParseEstimator(c.Estimator); err != nil {
		return s, err
	}
	if s.cost, err = adjust.ParseCost(c.BundleAdjuster); err != nil {
		return s, err
	}
	if s.mask, err = adjust.ParseRefineMask(c.RefineMask); err != nil {
		return s, err
	}
	if s.wave, err = camera.ParseWave(c.WaveCorrect); err != nil {
		return s, err
	}
	if s.warp, err = warp.ParseKind(c.WarpType); err != nil {
		return s, err
	}
	if s.exposure, err = exposure.ParseKind(c.ExposureCompensation); err != nil {
		return s, err
	}
	if s.seam, err = seam.ParseKind(c.SeamFinder); err != nil {
		return s, err
	}
	if s.blend, err = blend.ParseKind(c.BlendType); err != nil {
		return s, err
	}

	s.matchConf = c.MatchConfidenceThreshold
	if s.matchConf == 0 {
		s.matchConf = 0.65
		if s.algorithm.Binary() {
			s.matchConf = 0.3
		}
	}

	switch {
	case c.MaxFeatures <= 0:
		return s, fmt.Errorf("max_features must be positive, not %d", c.MaxFeatures)
	case s.matchConf < 0 || s.matchConf >= 1:
		return s, fmt.Errorf("match_confidence_threshold %g is outside [0,1)", s.matchConf)
	case c.GraphConfidenceThreshold < 0:
		return s, fmt.Errorf("graph_confidence_threshold %g is negative", c.GraphConfidenceThreshold)
	case c.BAMaxIterations <= 0:
		return s, fmt.Errorf("ba_max_iterations must be positive, not %d", c.BAMaxIterations)
	case c.BAEpsilon <= 0:
		return s, fmt.Errorf("ba_epsilon must be positive, not %g", c.BAEpsilon)
	case c.WorkResolutionMegapixels == 0:
		return s, errors.New("work_resolution_megapixels cannot be 0")
	case c.SeamResolutionMegapixels <= 0:
		return s, fmt.Errorf("seam_resolution_megapixels must be positive, not %g", c.SeamResolutionMegapixels)
	case c.ComposeResolutionMegapixels == 0:
		return s, errors.New("compose_resolution_megapixels cannot be 0")
	case c.ExposureFeedCount < 1:
		return s, fmt.Errorf("exposure_feed_count must be at least 1, not %d", c.ExposureFeedCount)
	case c.ExposureBlockSize < 1:
		return s, fmt.Errorf("exposure_block_size must be at least 1, not %d", c.ExposureBlockSize)
	case c.BlendStrengthPercent < 0 || c.BlendStrengthPercent > 100:
		return s, fmt.Errorf("blend_strength_percent %g is outside [0,100]", c.BlendStrengthPercent)
	}

	// The affine matcher, estimator and warper only make sense together.
	affine := []bool{s.model == matching.Affine, s.estimator == camera.AffineBased, s.warp == warp.Affine}
	if affine[0] || affine[1] || affine[2] {
		if !(affine[0] && affine[1] && affine[2]) {
			return s, fmt.Errorf("matcher_type '%s', estimator '%s' and warp_type '%s' must all be affine, or none of them",
				c.MatcherType, c.Estimator, c.WarpType)
		}
		if s.cost != adjust.AffineCost && s.cost != adjust.None {
			return s, fmt.Errorf("bundle_adjuster '%s' cannot refine affine cameras", c.BundleAdjuster)
		}
	}
	if s.cost == adjust.AffineCost && s.estimator != camera.AffineBased {
		return s, errors.New("bundle_adjuster 'affine' needs the affine estimator")
	}

	return s, nil
}
