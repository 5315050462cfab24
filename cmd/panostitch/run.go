package main

import(
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/abworrall/pano-stitch/pkg/blend"
	"github.com/abworrall/pano-stitch/pkg/pano"
	"github.com/abworrall/pano-stitch/pkg/raster"
	"github.com/abworrall/pano-stitch/pkg/source"
)

// output says where panoramas go, and how the frame sets are checked.
type output struct {
	dir          string
	hdr          bool
	maxSkew      time.Duration
	blankOnError bool
}

func (o *output)addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.dir, "output", "o", ".", "directory for the panoramas")
	cmd.Flags().BoolVar(&o.hdr, "hdr", false, "also write each panorama as Radiance RGBE (.hdr)")
	cmd.Flags().DurationVar(&o.maxSkew, "max-skew", time.Second, "warn when a frame set's EXIF capture times spread wider than this")
	cmd.Flags().BoolVar(&o.blankOnError, "blank-on-error", false, "stitch a black frame for a camera that fails to deliver")
}

func newRunCmd(a *app) *cobra.Command {
	var out output
	cmd := &cobra.Command{
		Use:   "run <camera> <camera> [camera...]",
		Short: "Stitch each set of frames from the cameras, in order",
		Long: `Each camera is a still image, or a directory of frames that are taken in
name order. The first set calibrates the rig; stitching stops when any camera
runs out of frames.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(cmd)
			if err != nil {
				return err
			}
			reg, err := registry(args, false, out.blankOnError)
			if err != nil {
				return err
			}
			return a.runSequence(cfg, reg, out)
		},
	}
	out.addFlags(cmd)
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var out output
	cmd := &cobra.Command{
		Use:   "watch <camera-dir> <camera-dir> [camera-dir...]",
		Short: "Stitch the newest frames each time every camera has delivered one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(cmd)
			if err != nil {
				return err
			}
			reg, err := registry(args, true, out.blankOnError)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return a.watch(ctx, cfg, reg, out)
		},
	}
	out.addFlags(cmd)
	return cmd
}

func registry(paths []string, latest, blankOnError bool) (*source.Registry, error) {
	reg := source.NewRegistry()
	reg.BlankOnError = blankOnError
	for _, p := range paths {
		src, err := source.ForPath(p, latest)
		if err != nil {
			return nil, err
		}
		reg.Add(src)
	}
	return reg, nil
}

func (a *app)runSequence(cfg pano.Config, reg *source.Registry, out output) error {
	s, err := pano.NewStitcher(cfg, pano.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	for n:=0; ; n++ {
		snap, err := reg.Snapshot()
		if err == io.EOF {
			log.Printf("done: %d frame sets\n", n)
			return nil
		} else if err != nil {
			return err
		}
		if err := out.process(s, snap, n); err != nil {
			return err
		}
	}
}

func (a *app)watch(ctx context.Context, cfg pano.Config, reg *source.Registry, out output) error {
	s, err := pano.NewStitcher(cfg, pano.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	sets, errs, err := reg.Watch(ctx)
	if err != nil {
		return err
	}
	log.Printf("watching %v\n", reg.Names())

	n := 0
	for {
		select {
		case _, ok := <-sets:
			if !ok {
				return nil
			}
			snap, err := reg.Snapshot()
			if err != nil {
				log.Printf("snapshot: %v\n", err)
				continue
			}
			if err := out.process(s, snap, n); err != nil {
				return err
			}
			n++

		case err, ok := <-errs:
			if ok {
				log.Printf("watch: %v\n", err)
			}
		}
	}
}

// process calibrates on the first snapshot, and stitches every snapshot.
// Only a failed calibration is fatal.
func (o output)process(s *pano.Stitcher, snap source.Snapshot, n int) error {
	if snap.Skew > o.maxSkew {
		log.Printf("frame set %d: capture times spread over %s\n", n, snap.Skew)
	}
	if b := snap.Blanks(); b > 0 {
		log.Printf("frame set %d: %d cameras substituted with black\n", n, b)
	}

	if s.State() == pano.Uncalibrated {
		if err := s.Calibrate(snap.Frames); err != nil {
			return errors.Wrap(err, "calibration")
		}
		log.Printf("calibrated, using cameras %v\n", s.Indices())
	}

	res, err := s.StitchRaw(snap.Frames)
	if err != nil {
		log.Printf("frame set %d: %v\n", n, err)
		return nil
	}

	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return err
	}
	base := filepath.Join(o.dir, fmt.Sprintf("pano-%05d", n))
	if err := raster.WritePNG(blend.Normalize8(res), base+".png"); err != nil {
		return err
	}
	if o.hdr {
		if err := (blend.HDRCanvas{S16: res}).WriteHDR(base + ".hdr"); err != nil {
			return err
		}
	}
	log.Printf("wrote %s.png (%dx%d)\n", base, res.W, res.H)
	return nil
}
