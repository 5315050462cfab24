package main

import(
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/abworrall/pano-stitch/pkg/pano"
)

// app holds the flags shared by every command.
type app struct {
	configFile  string
	verbosity   int
	metricsAddr string

	affine      bool
	warp        string
	exposure    string
	seam        string
	blend       string
	composeMP   float64

	metrics     *pano.Metrics
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "panostitch",
		Short: "Stitch frames from a fixed rig of cameras into panoramas",
		Long: `panostitch calibrates a rig of overlapping cameras from their first set of
frames, then warps, compensates and blends every later set into a panorama.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.startMetrics()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "YAML config file (flags override it)")
	pf.IntVarP(&a.verbosity, "verbosity", "v", 0, "how verbose to get")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	pf.BoolVar(&a.affine, "affine", false, "cameras translate in a plane, rather than pan about a point")
	pf.StringVar(&a.warp, "warp", "", "warp surface (spherical|cylindrical|plane|mercator|...)")
	pf.StringVar(&a.exposure, "exposure", "", "exposure compensation (none|gain|gain_blocks|channel|channel_blocks)")
	pf.StringVar(&a.seam, "seam", "", "seam finder (none|voronoi)")
	pf.StringVar(&a.blend, "blend", "", "blender (none|feather|multiband)")
	pf.Float64Var(&a.composeMP, "compose-mp", 0, "compose resolution in megapixels, -1 for full")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newDemoCmd(a))
	return root
}

// config is the YAML file over the defaults (the affine defaults with
// --affine), with any flags applied.
func (a *app)config(cmd *cobra.Command) (pano.Config, error) {
	cfg := pano.NewConfig()
	if a.affine {
		cfg = pano.AffineConfig()
	}
	if a.configFile != "" {
		var err error
		if cfg, err = pano.LoadConfigOver(cfg, a.configFile); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		cfg.Verbosity = a.verbosity
	}
	if flags.Changed("warp") {
		cfg.WarpType = a.warp
	}
	if flags.Changed("exposure") {
		cfg.ExposureCompensation = a.exposure
	}
	if flags.Changed("seam") {
		cfg.SeamFinder = a.seam
	}
	if flags.Changed("blend") {
		cfg.BlendType = a.blend
	}
	if flags.Changed("compose-mp") {
		cfg.ComposeResolutionMegapixels = a.composeMP
	}
	return cfg, cfg.Validate()
}

func (a *app)startMetrics() {
	reg := prometheus.NewRegistry()
	a.metrics = pano.NewMetrics(reg)
	if a.metricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Printf("serving metrics on %s/metrics\n", a.metricsAddr)
		if err := http.ListenAndServe(a.metricsAddr, mux); err != nil {
			log.Printf("metrics server: %v\n", err)
		}
	}()
}
