// Package synth renders deterministic synthetic camera rigs: a textured
// scene seen by laterally offset cameras, or by cameras panning about a
// common centre. It backs the demo command and the pipeline tests.
package synth

import(
	"image"
	"image/color"
	"math"
	"math/rand"
)

// Texture is an infinite procedural scene; values are in 0..255.
type Texture func(x, y float64) float64

// NewTexture builds two octaves of value noise plus a scatter of hard
// edged discs, so there are both blob and corner features.
func NewTexture(seed int64) Texture {
	rng := rand.New(rand.NewSource(seed))
	type disc struct{ x, y, r, v float64 }
	discs := make([]disc, 400)
	for i := range discs {
		discs[i] = disc{
			x: rng.Float64()*2000 - 500,
			y: rng.Float64()*1000 - 300,
			r: 2 + rng.Float64()*5,
			v: rng.Float64(),
		}
	}

	return func(x, y float64) float64 {
		v := 0.65*valueNoise(seed, x/14, y/14) + 0.35*valueNoise(seed+1, x/5, y/5)
		for _, d := range discs {
			if dx, dy := x-d.x, y-d.y; dx*dx+dy*dy < d.r*d.r {
				v = d.v
			}
		}
		return 20 + 215*v
	}
}

func hash01(seed int64, ix, iy int) float64 {
	z := uint64(seed)*0x9E3779B97F4A7C15 ^ uint64(ix)*0xBF58476D1CE4E5B9 ^ uint64(iy)*0x94D049BB133111EB
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return float64(z>>11) / float64(1<<53)
}

func valueNoise(seed int64, x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	sx := fx * fx * (3 - 2*fx)
	sy := fy * fy * (3 - 2*fy)

	a := hash01(seed, ix, iy)
	b := hash01(seed, ix+1, iy)
	c := hash01(seed, ix, iy+1)
	d := hash01(seed, ix+1, iy+1)
	top := a + (b-a)*sx
	bot := c + (d-c)*sx
	return top + (bot-top)*sy
}

func tinted(v float64) color.NRGBA {
	c := func(f float64) uint8 { return uint8(math.Max(0, math.Min(255, math.Round(f)))) }
	return color.NRGBA{c(v), c(0.8*v + 20), c(0.6*v + 40), 0xff}
}

// Crops renders views of a flat scene parallel to the image plane, each
// camera shifted sideways by offsets[i] pixels. Overlapping views are
// pixel-identical where they overlap.
func Crops(tex Texture, w, h int, offsets []int) []image.Image {
	out := make([]image.Image, len(offsets))
	for i, off := range offsets {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y:=0; y<h; y++ {
			for x:=0; x<w; x++ {
				img.SetNRGBA(x, y, tinted(tex(float64(x+off), float64(y))))
			}
		}
		out[i] = img
	}
	return out
}

// PanningViews renders pinhole cameras of focal f that share a centre
// and differ only in yaw, looking at the texture on the plane z=1 (one
// texture pixel per 1/f of plane). Adjacent views are related by the
// homography K·R·K⁻¹.
func PanningViews(tex Texture, w, h int, f float64, yawsDeg []float64) []image.Image {
	out := make([]image.Image, len(yawsDeg))
	cx, cy := float64(w)/2, float64(h)/2
	for i, yaw := range yawsDeg {
		s, c := math.Sincos(yaw * math.Pi / 180)
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y:=0; y<h; y++ {
			for x:=0; x<w; x++ {
				dx, dy, dz := (float64(x)-cx)/f, (float64(y)-cy)/f, 1.0
				wx := c*dx + s*dz
				wz := -s*dx + c*dz
				if wz <= 1e-6 {
					img.SetNRGBA(x, y, color.NRGBA{A: 0xff})
					continue
				}
				img.SetNRGBA(x, y, tinted(tex(wx/wz*f, dy/wz*f)))
			}
		}
		out[i] = img
	}
	return out
}

// Noise renders uncorrelated uniform noise, sharing no features with
// anything else.
func Noise(seed int64, w, h int) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}
