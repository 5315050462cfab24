package warp

import(
	"math"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

// A projection maps a viewing ray (camera-to-world rotation already
// applied) to unscaled panorama coordinates, and back.
type projection interface {
	forward(x, y, z float64) (u, v float64)
	backward(u, v float64) (x, y, z float64)
}

func norm3(x, y, z float64) float64 { return math.Sqrt(x*x + y*y + z*z) }

// longitude and latitude of a ray, about the y axis
func lonLat(x, y, z float64) (float64, float64) {
	return math.Atan2(x, z), math.Asin(y / norm3(x, y, z))
}

func fromLonLat(u, v float64) (float64, float64, float64) {
	c := math.Cos(v)
	return c * math.Sin(u), math.Sin(v), c * math.Cos(u)
}

type planeProjection struct{}

func (planeProjection)forward(x, y, z float64) (float64, float64) { return x / z, y / z }
func (planeProjection)backward(u, v float64) (float64, float64, float64) { return u, v, 1 }

// affineProjection applies a similarity to the (already normalised)
// image plane.
type affineProjection struct{ a, ainv emath.Aff3 }

func (p affineProjection)forward(x, y, z float64) (float64, float64) { return p.a.Apply(x/z, y/z) }

func (p affineProjection)backward(u, v float64) (float64, float64, float64) {
	x, y := p.ainv.Apply(u, v)
	return x, y, 1
}

type sphericalProjection struct{}

func (sphericalProjection)forward(x, y, z float64) (float64, float64) {
	w := y / norm3(x, y, z)
	if math.IsNaN(w) {
		w = 0
	}
	return math.Atan2(x, z), math.Pi - math.Acos(w)
}

func (sphericalProjection)backward(u, v float64) (float64, float64, float64) {
	sinv := math.Sin(math.Pi - v)
	return sinv * math.Sin(u), math.Cos(math.Pi - v), sinv * math.Cos(u)
}

type cylindricalProjection struct{}

func (cylindricalProjection)forward(x, y, z float64) (float64, float64) {
	return math.Atan2(x, z), y / math.Sqrt(x*x + z*z)
}

func (cylindricalProjection)backward(u, v float64) (float64, float64, float64) {
	return math.Sin(u), v, math.Cos(u)
}

type fisheyeProjection struct{}

func (fisheyeProjection)forward(x, y, z float64) (float64, float64) {
	u := math.Atan2(x, y)
	v := math.Pi - math.Acos(z / norm3(x, y, z))
	return v * math.Cos(u), v * math.Sin(u)
}

func (fisheyeProjection)backward(u, v float64) (float64, float64, float64) {
	a := math.Atan2(v, u)
	r := math.Sqrt(u*u + v*v)
	sinv := math.Sin(math.Pi - r)
	return sinv * math.Sin(a), sinv * math.Cos(a), math.Cos(math.Pi - r)
}

type stereographicProjection struct{}

func (stereographicProjection)forward(x, y, z float64) (float64, float64) {
	u := math.Atan2(x, y)
	v := math.Pi - math.Acos(z / norm3(x, y, z))
	r := math.Sin(v) / (1 - math.Cos(v))
	return r * math.Cos(u), r * math.Sin(u)
}

func (stereographicProjection)backward(u, v float64) (float64, float64, float64) {
	a := math.Atan2(v, u)
	r := math.Sqrt(u*u + v*v)
	t := 2 * math.Atan(1/r)
	sinv := math.Sin(math.Pi - t)
	return sinv * math.Sin(a), sinv * math.Cos(a), math.Cos(math.Pi - t)
}

// compressedProjection is a rectilinear view with the horizontal
// squeezed by a and the vertical by b.
type compressedProjection struct{ a, b float64 }

func (p compressedProjection)forward(x, y, z float64) (float64, float64) {
	lon, lat := lonLat(x, y, z)
	return p.a * math.Tan(lon/p.a), p.b * math.Tan(lat) / math.Cos(lon)
}

func (p compressedProjection)backward(u, v float64) (float64, float64, float64) {
	lon := p.a * math.Atan(u/p.a)
	return math.Sin(lon), v * math.Cos(lon) / p.b, math.Cos(lon)
}

type paniniProjection struct{ a, b float64 }

func (p paniniProjection)forward(x, y, z float64) (float64, float64) {
	lon, lat := lonLat(x, y, z)
	tg := p.a * math.Tan(lon/p.a)
	sinu := math.Sin(lon)
	if math.Abs(sinu) < 1e-7 {
		return tg, p.b * math.Tan(lat)
	}
	return tg, p.b * tg * math.Tan(lat) / sinu
}

func (p paniniProjection)backward(u, v float64) (float64, float64, float64) {
	lon := p.a * math.Atan(u/p.a)
	var lat float64
	if math.Abs(lon) > 1e-7 {
		lat = math.Atan(v * math.Sin(lon) / (p.b * p.a * math.Tan(lon/p.a)))
	} else {
		lat = math.Atan(v / p.b)
	}
	return fromLonLat(lon, lat)
}

type mercatorProjection struct{}

func (mercatorProjection)forward(x, y, z float64) (float64, float64) {
	lon, lat := lonLat(x, y, z)
	return lon, math.Log(math.Tan(math.Pi/4 + lat/2))
}

func (mercatorProjection)backward(u, v float64) (float64, float64, float64) {
	return fromLonLat(u, math.Atan(math.Sinh(v)))
}

type transverseMercatorProjection struct{}

func (transverseMercatorProjection)forward(x, y, z float64) (float64, float64) {
	lon, lat := lonLat(x, y, z)
	B := math.Cos(lat) * math.Sin(lon)
	return 0.5 * math.Log((1+B)/(1-B)), math.Atan2(math.Tan(lat), math.Cos(lon))
}

func (transverseMercatorProjection)backward(u, v float64) (float64, float64, float64) {
	lat := math.Asin(math.Sin(v) / math.Cosh(u))
	lon := math.Atan2(math.Sinh(u), math.Cos(v))
	return fromLonLat(lon, lat)
}

// portrait turns a projection on its side.
type portrait struct{ projection }

func (p portrait)forward(x, y, z float64) (float64, float64) {
	u, v := p.projection.forward(y, x, z)
	return -u, v
}

func (p portrait)backward(u, v float64) (float64, float64, float64) {
	x, y, z := p.projection.backward(-u, v)
	return y, x, z
}
