package pano

import(
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Calibrations        *prometheus.CounterVec
	StitchFailures      *prometheus.CounterVec
	StitchDuration      prometheus.Histogram
	CalibrationDuration prometheus.Histogram
	CanvasPixels        prometheus.Gauge
}

// NewMetrics registers the stitcher metrics with reg. Stitchers sharing
// a registry must share the Metrics too.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calibrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panostitch_calibrations_total",
			Help: "Calibration attempts, by result.",
		}, []string{"result"}),
		StitchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panostitch_stitch_failures_total",
			Help: "Frames that could not be stitched, by reason.",
		}, []string{"reason"}),
		StitchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "panostitch_stitch_duration_seconds",
			Help:    "Time to compose one frame.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		CalibrationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "panostitch_calibration_duration_seconds",
			Help:    "Time to calibrate.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		CanvasPixels: f.NewGauge(prometheus.GaugeOpts{
			Name: "panostitch_canvas_pixels",
			Help: "Area of the current output canvas.",
		}),
	}
}

// The nil Metrics records nothing.

func (m *Metrics)calibrated(result string, secs float64) {
	if m == nil {
		return
	}
	m.Calibrations.WithLabelValues(result).Inc()
	m.CalibrationDuration.Observe(secs)
}

func (m *Metrics)stitched(secs float64) {
	if m != nil {
		m.StitchDuration.Observe(secs)
	}
}

func (m *Metrics)stitchFailed(reason string) {
	if m != nil {
		m.StitchFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics)canvas(pixels int) {
	if m != nil {
		m.CanvasPixels.Set(float64(pixels))
	}
}
