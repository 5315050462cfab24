package emath

import(
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// Mat3 is a row-major 3x3 matrix; used for camera intrinsics (K),
// rotations (R) and homographies (H).
type Mat3 f64.Mat3

func Identity3() Mat3 {
	return Mat3{1, 0, 0,   0, 1, 0,   0, 0, 1}
}

func Diag3(a, b, c float64) Mat3 {
	return Mat3{a, 0, 0,   0, b, 0,   0, 0, c}
}

func MatFromRows(r0, r1, r2 r3.Vector) Mat3 {
	return Mat3{r0.X, r0.Y, r0.Z,   r1.X, r1.Y, r1.Z,   r2.X, r2.Y, r2.Z}
}

func (a Mat3)Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

func (m Mat3)Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[3*0+0]*v.X + m[3*0+1]*v.Y + m[3*0+2]*v.Z,
		Y: m[3*1+0]*v.X + m[3*1+1]*v.Y + m[3*1+2]*v.Z,
		Z: m[3*2+0]*v.X + m[3*2+1]*v.Y + m[3*2+2]*v.Z,
	}
}

// Project applies the matrix as a homography to the point (x,y).
func (m Mat3)Project(x, y float64) (float64, float64) {
	z := m[6]*x + m[7]*y + m[8]
	return (m[0]*x + m[1]*y + m[2]) / z, (m[3]*x + m[4]*y + m[5]) / z
}

func (m Mat3)T() Mat3 {
	return Mat3{m[0], m[3], m[6],   m[1], m[4], m[7],   m[2], m[5], m[8]}
}

func (m Mat3)Scale(s float64) Mat3 {
	for i := range m { m[i] *= s }
	return m
}

func (m Mat3)Add(n Mat3) Mat3 {
	for i := range m { m[i] += n[i] }
	return m
}

func (m Mat3)Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) - m[1]*(m[3]*m[8]-m[5]*m[6]) + m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse returns false for a (numerically) singular matrix.
func (m Mat3)Inverse() (Mat3, bool) {
	d := m.Det()
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return Mat3{}, false
	}
	inv := Mat3{
		m[4]*m[8] - m[5]*m[7], m[2]*m[7] - m[1]*m[8], m[1]*m[5] - m[2]*m[4],
		m[5]*m[6] - m[3]*m[8], m[0]*m[8] - m[2]*m[6], m[2]*m[3] - m[0]*m[5],
		m[3]*m[7] - m[4]*m[6], m[1]*m[6] - m[0]*m[7], m[0]*m[4] - m[1]*m[3],
	}
	return inv.Scale(1.0 / d), true
}

func (m Mat3)Col(c int) r3.Vector { return r3.Vector{X: m[c], Y: m[3+c], Z: m[6+c]} }
func (m Mat3)Row(r int) r3.Vector { return r3.Vector{X: m[3*r], Y: m[3*r+1], Z: m[3*r+2]} }

func (m Mat3)IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) { return false }
	}
	return true
}

// OrthoError is the Frobenius norm of (MᵗM - I); zero for a perfect rotation.
func (m Mat3)OrthoError() float64 {
	d := m.T().Mult(m).Add(Identity3().Scale(-1))
	sum := 0.0
	for _, v := range d { sum += v*v }
	return math.Sqrt(sum)
}

func (m Mat3)Dense() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), m[:]...))
}

func Mat3FromDense(d mat.Matrix) Mat3 {
	var m Mat3
	for r:=0; r<3; r++ {
		for c:=0; c<3; c++ {
			m[3*r+c] = d.At(r, c)
		}
	}
	return m
}

// NearestRotation projects m onto SO(3) using U·Vᵗ from its SVD.
func NearestRotation(m Mat3) (Mat3, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(m.Dense(), mat.SVDFull); !ok {
		return Mat3{}, false
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	R := Mat3FromDense(&r)
	if R.Det() < 0 {
		R = R.Scale(-1)
	}
	return R, true
}

// RotationFromVector is the Rodrigues formula: axis rv/|rv|, angle |rv|.
func RotationFromVector(rv r3.Vector) Mat3 {
	theta := rv.Norm()
	if theta < 1e-12 {
		return Mat3{1, -rv.Z, rv.Y,   rv.Z, 1, -rv.X,   -rv.Y, rv.X, 1}
	}
	k := rv.Mul(1.0 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	C := 1 - c
	return Mat3{
		c + k.X*k.X*C,     k.X*k.Y*C - k.Z*s, k.X*k.Z*C + k.Y*s,
		k.Y*k.X*C + k.Z*s, c + k.Y*k.Y*C,     k.Y*k.Z*C - k.X*s,
		k.Z*k.X*C - k.Y*s, k.Z*k.Y*C + k.X*s, c + k.Z*k.Z*C,
	}
}

// RotationVector is the inverse of RotationFromVector; m must be a rotation.
func (m Mat3)RotationVector() r3.Vector {
	w := r3.Vector{X: m[7] - m[5], Y: m[2] - m[6], Z: m[3] - m[1]}
	cosT := (m[0] + m[4] + m[8] - 1) / 2
	if cosT > 1 { cosT = 1 }
	if cosT < -1 { cosT = -1 }
	theta := math.Acos(cosT)
	sinT := math.Sin(theta)

	if sinT > 1e-5 {
		return w.Mul(theta / (2 * sinT))
	}
	if cosT > 0 {
		return w.Mul(0.5)
	}

	// theta ~ pi: the axis comes from the symmetric part
	k := r3.Vector{
		X: math.Sqrt(math.Max(0, (m[0]+1)/2)),
		Y: math.Sqrt(math.Max(0, (m[4]+1)/2)),
		Z: math.Sqrt(math.Max(0, (m[8]+1)/2)),
	}
	if m[1] < 0 { k.Y = -k.Y }
	if m[2] < 0 { k.Z = -k.Z }
	if k.X == 0 && m[5] < 0 { k.Z = -k.Z }
	return k.Normalize().Mul(theta)
}

func (m Mat3)String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*0+0], m[3*0+1], m[3*0+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*1+0], m[3*1+1], m[3*1+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*2+0], m[3*2+1], m[3*2+2])
	return str
}
