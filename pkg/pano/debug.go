package pano

import(
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/exposure"
	"github.com/abworrall/pano-stitch/pkg/features"
	"github.com/abworrall/pano-stitch/pkg/matching"
	"github.com/abworrall/pano-stitch/pkg/raster"
)

func (s *Stitcher)debugging() bool {
	return s.Verbosity > 1 && s.DebugDir != ""
}

func (s *Stitcher)debugFile(name string) string {
	if err := os.MkdirAll(s.DebugDir, 0755); err != nil {
		s.log.Printf("debug dir: %v", err)
	}
	return filepath.Join(s.DebugDir, name)
}

func imageNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("image%d", i)
	}
	return names
}

func (s *Stitcher)writeMatchGraph(pairs matching.Table) error {
	dot := matching.GraphDOT(imageNames(pairs.N), pairs, s.GraphConfidenceThreshold)
	if err := os.WriteFile(s.MatchGraphFile, []byte(dot), 0644); err != nil {
		return errors.Wrapf(err, "writing '%s'", s.MatchGraphFile)
	}
	return nil
}

// dumpMatches draws every confident pair, at work resolution.
func (s *Stitcher)dumpMatches(imgs []image.Image, feats []features.FeatureSet, pairs matching.Table) {
	for i:=0; i<pairs.N; i++ {
		for j:=i+1; j<pairs.N; j++ {
			mi := pairs.Get(i, j)
			if mi.Confidence < s.GraphConfidenceThreshold {
				continue
			}
			fn := s.debugFile(fmt.Sprintf("matches-%02d-%02d.png", i, j))
			if err := matching.DrawMatches(imgs[i], imgs[j], feats[i], feats[j], mi, fn); err != nil {
				s.log.Printf("drawing matches: %v", err)
			}
		}
	}
}

// dumpSeams paints each image's share of the seam resolution canvas in
// its own hue.
func (s *Stitcher)dumpSeams(corners []image.Point, masks []*image.Gray) {
	sizes := make([]image.Point, len(masks))
	for k, m := range masks {
		sizes[k] = m.Bounds().Size()
	}
	canvas := raster.UnionRect(corners, sizes)
	img := image.NewNRGBA(image.Rect(0, 0, canvas.Dx(), canvas.Dy()))
	for k, m := range masks {
		col := colorful.Hsv(360.0*float64(k)/float64(len(masks)), 0.7, 0.9)
		off := corners[k].Sub(canvas.Min)
		for y:=0; y<sizes[k].Y; y++ {
			for x:=0; x<sizes[k].X; x++ {
				if m.GrayAt(x, y).Y != 0 {
					img.Set(x+off.X, y+off.Y, col)
				}
			}
		}
	}
	if err := raster.WritePNG(img, s.debugFile("seams.png")); err != nil {
		s.log.Printf("seam overlay: %v", err)
	}
}

// logOverlapError reports how well the warped seam images agree where
// they overlap, before and after exposure compensation.
func (s *Stitcher)logOverlapError(comp *exposure.Compensator, corners []image.Point, imgs []*raster.Image, masks []*image.Gray) {
	before, frac := s.overlapError(corners, imgs, masks, "before")
	comped := make([]*raster.Image, len(imgs))
	for k, im := range imgs {
		comped[k] = im.Clone()
		comp.Apply(k, corners[k], comped[k], masks[k])
	}
	after, _ := s.overlapError(corners, comped, masks, "after")
	s.logf(1, "overlap error (%s): %.2f -> %.2f, over %.1f%% of overlap pixels", comp.Kind, before, after, 100*frac)
}

// overlapError is the mean absolute difference in luminance between
// images, over every pixel that a pair of them both cover. Pixels that
// are nearly black or saturated in either image are skipped; the second
// result is the fraction of overlap pixels that were compared.
func (s *Stitcher)overlapError(corners []image.Point, imgs []*raster.Image, masks []*image.Gray, passName string) (float64, float64) {
	sizes := make([]image.Point, len(imgs))
	for k, im := range imgs {
		sizes[k] = im.Size()
	}
	canvas := raster.UnionRect(corners, sizes)
	diff := emath.NewFloatGrid(canvas.Dx(), canvas.Dy())

	tooLow, tooHigh := 2.0, 250.0
	totErr, nErr, nPix := 0.0, 0, 0
	for i := range imgs {
		for j:=i+1; j<len(imgs); j++ {
			roi, ok := raster.OverlapRect(corners[i], corners[j], sizes[i], sizes[j])
			if !ok {
				continue
			}
			for y:=roi.Min.Y; y<roi.Max.Y; y++ {
				for x:=roi.Min.X; x<roi.Max.X; x++ {
					x1, y1 := x-corners[i].X, y-corners[i].Y
					x2, y2 := x-corners[j].X, y-corners[j].Y
					if masks[i].GrayAt(x1, y1).Y == 0 || masks[j].GrayAt(x2, y2).Y == 0 {
						continue
					}
					nPix++
					l1, l2 := luma(imgs[i], x1, y1), luma(imgs[j], x2, y2)
					if l1 < tooLow || l2 < tooLow || l1 > tooHigh || l2 > tooHigh {
						continue
					}
					pixErr := math.Abs(l1 - l2)
					diff.Add(x-canvas.Min.X, y-canvas.Min.Y, pixErr)
					totErr += pixErr
					nErr++
				}
			}
		}
	}
	if nErr == 0 {
		return 0, 0
	}

	errMetric := totErr / float64(nErr)
	frac := float64(nErr) / float64(nPix)
	if s.debugging() {
		title := fmt.Sprintf("%s: %.1f%% comparable; err=%.2f", passName, 100*frac, errMetric)
		if err := diff.ToImg(title, s.debugFile(fmt.Sprintf("diff-%s.png", passName))); err != nil {
			s.log.Printf("overlap diff: %v", err)
		}
	}
	return errMetric, frac
}

func luma(im *raster.Image, x, y int) float64 {
	if im.C == 1 {
		return float64(im.At(x, y, 0))
	}
	off := im.Offset(x, y)
	return 0.299*float64(im.Pix[off]) + 0.587*float64(im.Pix[off+1]) + 0.114*float64(im.Pix[off+2])
}
