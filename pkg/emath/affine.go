package emath

// 2x3 affine transforms; these carry the image->canvas mapping for the
// affine (scans) camera model.

import(
	"fmt"
	"math"
	"golang.org/x/image/math/f64"  // Will be "image/math/f64" at some point, hopefully make this file redundant
)

// Use a local type so we can hang methods off it
type Aff3 f64.Aff3

// Cut-n-pasted from image@0.7.0/draw/scale:matMul
func (p Aff3)Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0,   0, 1, 0}
}

func (m1 Aff3)Translate(tx, ty float64) Aff3 {
	return m1.Mult(Aff3{1, 0, tx,   0, 1, ty})
}

// Similarity builds [a -b tx; b a ty], i.e. a rotation+uniform scale plus a shift.
func Similarity(a, b, tx, ty float64) Aff3 {
	return Aff3{a, -b, tx,   b, a, ty}
}

func (m Aff3)Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func (m Aff3)Det() float64 { return m[0]*m[4] - m[1]*m[3] }

func (m Aff3)Inverse() (Aff3, bool) {
	d := m.Det()
	if math.Abs(d) < 1e-12 || math.IsNaN(d) {
		return Aff3{}, false
	}
	a, b, c := m[4]/d, -m[1]/d, -m[3]/d
	e := m[0]/d
	return Aff3{
		a, b, -(a*m[2] + b*m[5]),
		c, e, -(c*m[2] + e*m[5]),
	}, true
}

// Mat3 lifts the transform into homogeneous 3x3 form
func (m Aff3)Mat3() Mat3 {
	return Mat3{m[0], m[1], m[2],   m[3], m[4], m[5],   0, 0, 1}
}

// AffFromMat3 drops the last row, which is assumed to be [0 0 1]
func AffFromMat3(m Mat3) Aff3 {
	return Aff3{m[0], m[1], m[2],   m[3], m[4], m[5]}
}

func (m Aff3)IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) { return false }
	}
	return true
}

func (m Aff3)String() string {
	return fmt.Sprintf("[%8.4f %8.4f %9.3f; %8.4f %8.4f %9.3f]", m[0], m[1], m[2], m[3], m[4], m[5])
}
