// Package exposure evens out brightness differences between overlapping
// warped images, by solving for per-image (or per-block) gains.
package exposure

import(
	"fmt"
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/pano-stitch/pkg/emath"
	"github.com/abworrall/pano-stitch/pkg/raster"
)

type Kind int

const(
	None Kind = iota
	Gain
	GainBlocks
	Channel
	ChannelBlocks
)

var kindNames = []string{"none", "gain", "gain_blocks", "channel", "channel_blocks"}

func (k Kind)String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("no exposure compensator named '%s'", s)
}

func (k Kind)perChannel() bool { return k == Channel || k == ChannelBlocks }
func (k Kind)blocks() bool     { return k == GainBlocks || k == ChannelBlocks }

// Weights of the smoothness (beta) and data (alpha) terms in the gain
// solve.
const(
	alpha = 0.01
	beta  = 100.0
)

var smoothKernel = [3]float64{0.25, 0.5, 0.25}

// Compensator is fitted once by Feed, then applied any number of times.
// A gain map is one FloatGrid per channel (a single one for the gain
// kinds); for the non-block kinds it is 1x1.
type Compensator struct {
	Kind
	Feeds     int
	BlockSize int

	maps     [][]emath.FloatGrid     // [image][channel]
	prepared map[int][]emath.FloatGrid
}

func New(kind Kind, feeds, blockSize int) *Compensator {
	if feeds < 1 {
		feeds = 1
	}
	if blockSize < 1 {
		blockSize = 32
	}
	return &Compensator{Kind: kind, Feeds: feeds, BlockSize: blockSize}
}

// patch is one unknown of the gain solve: a whole image, or one block of
// it.
type patch struct {
	img    *raster.Image
	mask   *image.Gray
	rect   image.Rectangle // within img
	corner image.Point     // of rect, in canvas coordinates
}

func (p patch)canvasRect() image.Rectangle { return p.rect.Sub(p.rect.Min).Add(p.corner) }

// Feed estimates the gains from warped images placed at corners.
func (c *Compensator)Feed(corners []image.Point, images []*raster.Image, masks []*image.Gray) error {
	if len(corners) != len(images) || len(images) != len(masks) {
		return errors.Errorf("exposure feed: %d corners, %d images, %d masks", len(corners), len(images), len(masks))
	}
	c.maps, c.prepared = nil, nil
	if c.Kind == None {
		return nil
	}

	nch := 1
	if c.perChannel() {
		for _, im := range images {
			if im.C != images[0].C {
				return errors.New("exposure feed: images have different channel counts")
			}
		}
		nch = images[0].C
	}

	patches := []patch{}
	grids := make([]image.Point, len(images)) // blocks per image
	for i, im := range images {
		if im.W != masks[i].Bounds().Dx() || im.H != masks[i].Bounds().Dy() {
			return errors.Errorf("exposure feed: image %d is %dx%d, its mask %v", i, im.W, im.H, masks[i].Bounds().Size())
		}
		if !c.blocks() {
			grids[i] = image.Point{1, 1}
			patches = append(patches, patch{im, masks[i], image.Rect(0, 0, im.W, im.H), corners[i]})
			continue
		}
		per := image.Point{ceilDiv(im.W, c.BlockSize), ceilDiv(im.H, c.BlockSize)}
		bw, bh := ceilDiv(im.W, per.X), ceilDiv(im.H, per.Y)
		grids[i] = per
		for by:=0; by<per.Y; by++ {
			for bx:=0; bx<per.X; bx++ {
				r := image.Rect(bx*bw, by*bh, bx*bw+bw, by*bh+bh).Intersect(image.Rect(0, 0, im.W, im.H))
				patches = append(patches, patch{im, masks[i], r, corners[i].Add(r.Min)})
			}
		}
	}

	gains, err := feedGains(patches, nch, c.Feeds)
	if err != nil {
		return err
	}

	c.maps = make([][]emath.FloatGrid, len(images))
	k := 0
	for i, per := range grids {
		c.maps[i] = make([]emath.FloatGrid, nch)
		for ch := range c.maps[i] {
			c.maps[i][ch] = emath.NewFloatGrid(per.X, per.Y)
		}
		for y:=0; y<per.Y; y++ {
			for x:=0; x<per.X; x++ {
				for ch:=0; ch<nch; ch++ {
					c.maps[i][ch].Set(x, y, gains[k][ch])
				}
				k++
			}
		}
		if c.blocks() {
			for ch := range c.maps[i] {
				g := c.maps[i][ch].SepFilter3(smoothKernel)
				c.maps[i][ch] = g.SepFilter3(smoothKernel)
			}
		}
	}
	return nil
}

// Gains returns the fitted per image gains, averaged over blocks for
// the block kinds.
func (c *Compensator)Gains() [][]float64 {
	out := make([][]float64, len(c.maps))
	for i, chans := range c.maps {
		out[i] = make([]float64, len(chans))
		for ch, g := range chans {
			sum := 0.0
			for _, v := range g.Values() {
				sum += v
			}
			out[i][ch] = sum / float64(len(g.Values()))
		}
	}
	return out
}

// Prepare resamples each image's gain map to the size the image will
// have when Apply is called, and caches it.
func (c *Compensator)Prepare(sizes []image.Point) {
	c.prepared = map[int][]emath.FloatGrid{}
	for i, sz := range sizes {
		if i < len(c.maps) {
			c.prepared[i] = c.resized(i, sz)
		}
	}
}

func (c *Compensator)resized(i int, sz image.Point) []emath.FloatGrid {
	out := make([]emath.FloatGrid, len(c.maps[i]))
	for ch := range out {
		if c.blocks() {
			out[ch] = c.maps[i][ch].ResizeBilinear(sz.X, sz.Y)
		} else {
			out[ch] = c.maps[i][ch]
		}
	}
	return out
}

// Apply corrects image i in place. corner is accepted so every
// compensator has the same shape; gains do not depend on placement.
func (c *Compensator)Apply(i int, corner image.Point, img *raster.Image, mask *image.Gray) {
	if c.Kind == None || i >= len(c.maps) {
		return
	}
	g, ok := c.prepared[i]
	if !ok || (c.blocks() && (g[0].Dx() != img.W || g[0].Dy() != img.H)) {
		g = c.resized(i, img.Size())
		if c.prepared == nil {
			c.prepared = map[int][]emath.FloatGrid{}
		}
		c.prepared[i] = g
	}

	for y:=0; y<img.H; y++ {
		for x:=0; x<img.W; x++ {
			if mask != nil && mask.Pix[mask.PixOffset(x, y)] == 0 {
				continue
			}
			gx, gy := x, y
			if !c.blocks() {
				gx, gy = 0, 0
			}
			o := img.Offset(x, y)
			for ch:=0; ch<img.C; ch++ {
				gain := g[0].Get(gx, gy)
				if len(g) > 1 {
					gain = g[ch].Get(gx, gy)
				}
				img.Pix[o+ch] = float32(math.Round(emath.Clamp(float64(img.Pix[o+ch])*gain, 0, 255)))
			}
		}
	}
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// feedGains runs the solve feeds times, each time on the patches as
// corrected by the gains so far, and returns the product of the gains.
func feedGains(patches []patch, nch, feeds int) ([][]float64, error) {
	total := make([][]float64, len(patches))
	for i := range total {
		total[i] = make([]float64, nch)
		for ch := range total[i] {
			total[i][ch] = 1
		}
	}
	for f:=0; f<feeds; f++ {
		g, err := solveGains(patches, total, nch)
		if err != nil {
			return nil, err
		}
		for i := range total {
			for ch := range total[i] {
				total[i][ch] *= g[i][ch]
			}
		}
	}
	return total, nil
}

// overlapStats sums the intensities of two patches over the pixels where
// both are valid. With nch == 1 the intensity is the L2 norm over the
// image channels; otherwise each channel is summed on its own.
func overlapStats(a, b patch, ga, gb []float64, nch int) (int, []float64, []float64) {
	r := a.canvasRect().Intersect(b.canvasRect())
	sa, sb := make([]float64, nch), make([]float64, nch)
	if r.Empty() {
		return 0, sa, sb
	}
	n := 0
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			pa := image.Point{x, y}.Sub(a.corner).Add(a.rect.Min)
			pb := image.Point{x, y}.Sub(b.corner).Add(b.rect.Min)
			if a.mask.Pix[a.mask.PixOffset(pa.X, pa.Y)] == 0 || b.mask.Pix[b.mask.PixOffset(pb.X, pb.Y)] == 0 {
				continue
			}
			n++
			accumulate(sa, a.img, pa, ga, nch)
			accumulate(sb, b.img, pb, gb, nch)
		}
	}
	return n, sa, sb
}

// accumulate adds one pixel, with the gains so far applied and clamped
// as Apply would.
func accumulate(sum []float64, img *raster.Image, p image.Point, gains []float64, nch int) {
	o := img.Offset(p.X, p.Y)
	if nch == 1 {
		sq := 0.0
		for ch:=0; ch<img.C; ch++ {
			v := math.Min(255, float64(img.Pix[o+ch])*gains[0])
			sq += v * v
		}
		sum[0] += math.Sqrt(sq)
		return
	}
	for ch:=0; ch<nch; ch++ {
		sum[ch] += math.Min(255, float64(img.Pix[o+ch])*gains[ch])
	}
}

func solveGains(patches []patch, prior [][]float64, nch int) ([][]float64, error) {
	n := len(patches)
	N := make([]float64, n*n)
	I := make([][]float64, nch) // I[ch][i*n+j]: mean of i over its overlap with j
	for ch := range I {
		I[ch] = make([]float64, n*n)
	}

	for i:=0; i<n; i++ {
		for j:=i; j<n; j++ {
			cnt, si, sj := overlapStats(patches[i], patches[j], prior[i], prior[j], nch)
			N[i*n+j] = math.Max(1, float64(cnt))
			N[j*n+i] = N[i*n+j]
			if cnt == 0 {
				continue
			}
			for ch:=0; ch<nch; ch++ {
				I[ch][i*n+j] = si[ch] / float64(cnt)
				I[ch][j*n+i] = sj[ch] / float64(cnt)
			}
		}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, nch)
	}
	for ch:=0; ch<nch; ch++ {
		A := mat.NewDense(n, n, nil)
		b := mat.NewVecDense(n, nil)
		for i:=0; i<n; i++ {
			for j:=0; j<n; j++ {
				nij := N[i*n+j]
				b.SetVec(i, b.AtVec(i) + beta*nij)
				A.Set(i, i, A.At(i, i) + beta*nij)
				if i == j {
					continue
				}
				Iij, Iji := I[ch][i*n+j], I[ch][j*n+i]
				A.Set(i, i, A.At(i, i) + 2*alpha*Iij*Iij*nij)
				A.Set(i, j, A.At(i, j) - 2*alpha*Iij*Iji*nij)
			}
		}
		var g mat.VecDense
		if err := g.SolveVec(A, b); err != nil {
			// an ill-conditioned system still yields a usable solution
			if _, ok := err.(mat.Condition); !ok {
				return nil, errors.Wrap(err, "gain solve")
			}
		}
		for i:=0; i<n; i++ {
			out[i][ch] = g.AtVec(i)
		}
	}
	return out, nil
}
