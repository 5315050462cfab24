package main

import(
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/abworrall/pano-stitch/pkg/raster"
	"github.com/abworrall/pano-stitch/pkg/synth"
)

func newDemoCmd(a *app) *cobra.Command {
	var(
		out    output
		rig    string
		frames int
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Render a synthetic camera rig, and stitch it",
		Long: `Writes three synthetic cameras under <output>/cam0..cam2, then stitches them
as 'run' would. The crops rig is three cameras side by side (use with
--affine); the panning rig is three cameras turning about one point.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rig == "crops" && !cmd.Flags().Changed("affine") {
				a.affine = true
			}
			cfg, err := a.config(cmd)
			if err != nil {
				return err
			}
			dirs, err := writeRig(out.dir, rig, frames, seed)
			if err != nil {
				return err
			}
			reg, err := registry(dirs, false, false)
			if err != nil {
				return err
			}
			return a.runSequence(cfg, reg, out)
		},
	}
	out.addFlags(cmd)
	cmd.Flags().StringVar(&rig, "rig", "crops", "synthetic rig (crops|panning)")
	cmd.Flags().IntVar(&frames, "frames", 2, "frame sets to render")
	cmd.Flags().Int64Var(&seed, "seed", 21, "texture seed")
	return cmd
}

// writeRig renders frame sets of a synthetic rig, one directory per
// camera. Each set views the scene a little further along.
func writeRig(dir, rig string, frames int, seed int64) ([]string, error) {
	tex := synth.NewTexture(seed)
	dirs := []string{}
	for c:=0; c<3; c++ {
		d := filepath.Join(dir, fmt.Sprintf("cam%d", c))
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}

	for n:=0; n<frames; n++ {
		var views []image.Image
		switch rig {
		case "crops":
			views = synth.Crops(tex, 320, 240, []int{8*n, 8*n + 210, 8*n + 420})
		case "panning":
			views = synth.PanningViews(tex, 320, 240, 400, []float64{-20 + float64(n), float64(n), 20 + float64(n)})
		default:
			return nil, errors.Errorf("unknown rig '%s'", rig)
		}
		for c, v := range views {
			if err := raster.WritePNG(v, filepath.Join(dirs[c], fmt.Sprintf("frame-%05d.png", n))); err != nil {
				return nil, err
			}
		}
	}
	log.Printf("rendered %d frame sets of the %s rig under %s\n", frames, rig, dir)
	return dirs, nil
}
