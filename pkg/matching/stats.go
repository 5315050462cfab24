package matching

import(
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/skypies/util/histogram"

	"github.com/abworrall/pano-stitch/pkg/features"
)

// ConfidenceHistogram buckets the confidence of every modelled pair
// (each unordered pair once), in steps of 0.1.
func ConfidenceHistogram(t Table) *histogram.Histogram {
	h := &histogram.Histogram{NumBuckets: 30, ValMin: 0, ValMax: 30}
	for i:=0; i<t.N; i++ {
		for j:=i+1; j<t.N; j++ {
			if mi := t.Get(i, j); mi.H != nil {
				h.Add(histogram.ScalarVal(int(math.Round(mi.Confidence * 10))))
			}
		}
	}
	return h
}

// DrawMatches renders two images side by side, with inlier matches in
// green and outliers in red, and saves it as a PNG.
func DrawMatches(img1, img2 image.Image, f1, f2 features.FeatureSet, mi MatchesInfo, filename string) error {
	b1, b2 := img1.Bounds(), img2.Bounds()
	h := b1.Dy()
	if b2.Dy() > h {
		h = b2.Dy()
	}

	dc := gg.NewContext(b1.Dx()+b2.Dx(), h)
	dc.SetColor(color.Black)
	dc.Clear()
	dc.DrawImage(img1, 0, 0)
	dc.DrawImage(img2, b1.Dx(), 0)

	off := float64(b1.Dx())
	dc.SetLineWidth(1)
	for k, m := range mi.Matches {
		p, q := f1.Keypoints[m.QueryIdx].Pt, f2.Keypoints[m.TrainIdx].Pt
		if k < len(mi.Inliers) && mi.Inliers[k] {
			dc.SetRGB(0, 1, 0)
		} else {
			dc.SetRGB(1, 0, 0)
		}
		dc.DrawLine(p.X, p.Y, q.X+off, q.Y)
		dc.Stroke()
		dc.DrawCircle(p.X, p.Y, 2)
		dc.DrawCircle(q.X+off, q.Y, 2)
		dc.Stroke()
	}

	return dc.SavePNG(filename)
}
