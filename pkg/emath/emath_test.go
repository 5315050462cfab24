package emath

import(
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 20.0, Median([]float64{30, 10, 20}))
	assert.Equal(t, 25.0, Median([]float64{40, 10, 30, 20}))
	assert.True(t, math.IsNaN(Median(nil)))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "input must not be reordered")
}

func TestReflect(t *testing.T) {
	assert.Equal(t, 1, Reflect101(-1, 5))
	assert.Equal(t, 3, Reflect101(5, 5))
	assert.Equal(t, 0, Reflect(-1, 5))
	assert.Equal(t, 4, Reflect(5, 5))
	assert.Equal(t, 0, Reflect101(7, 1))
}

func TestMat3Inverse(t *testing.T) {
	m := Mat3{2, 1, 0,   0, 3, 1,   1, 0, 1}
	inv, ok := m.Inverse()
	require.True(t, ok)
	id := m.Mult(inv)
	for i, v := range Identity3() {
		assert.InDelta(t, v, id[i], 1e-12)
	}

	_, ok = Mat3{}.Inverse()
	assert.False(t, ok)
}

func TestRodriguesRoundTrip(t *testing.T) {
	for _, rv := range []r3.Vector{
		{X: 0.1, Y: -0.2, Z: 0.3},
		{X: 0, Y: 1.5, Z: 0},
		{X: 1e-9, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: math.Pi - 1e-7},
	} {
		R := RotationFromVector(rv)
		assert.Less(t, R.OrthoError(), 1e-9)
		assert.InDelta(t, 1.0, R.Det(), 1e-9)

		back := RotationFromVector(R.RotationVector())
		for i := range R {
			assert.InDelta(t, R[i], back[i], 1e-6, "rv=%v", rv)
		}
	}
}

func TestNearestRotation(t *testing.T) {
	m := Mat3{1, 0, 0.4,   0, 1, 0,   0, 0, 1}
	R, ok := NearestRotation(m)
	require.True(t, ok)
	assert.Less(t, R.OrthoError(), 1e-9)
	assert.InDelta(t, 1.0, R.Det(), 1e-9)
}

func TestAff3Inverse(t *testing.T) {
	a := Similarity(0.9, 0.1, 12, -4)
	inv, ok := a.Inverse()
	require.True(t, ok)
	x, y := a.Apply(3, 7)
	x, y = inv.Apply(x, y)
	assert.InDelta(t, 3.0, x, 1e-9)
	assert.InDelta(t, 7.0, y, 1e-9)
}

func TestPyramidRoundTrip(t *testing.T) {
	g := NewFloatGrid(16, 8)
	for y:=0; y<8; y++ {
		for x:=0; x<16; x++ {
			g.Set(x, y, float64((x*7+y*3)%11))
		}
	}
	down := g.PyrDown()
	require.Equal(t, 8, down.Dx())
	require.Equal(t, 4, down.Dy())

	up := down.PyrUp(16, 8)
	lap := g.NewFromThis()
	for i := range lap.values {
		lap.values[i] = g.values[i] - up.values[i]
	}
	up2 := down.PyrUp(16, 8)
	for i := range lap.values {
		assert.InDelta(t, g.values[i], lap.values[i]+up2.values[i], 1e-12)
	}
}

func TestPyrDownConstant(t *testing.T) {
	g := NewFloatGrid(9, 5)
	for i := range g.values { g.values[i] = 3 }
	d := g.PyrDown()
	assert.Equal(t, 5, d.Dx())
	assert.Equal(t, 3, d.Dy())
	for _, v := range d.values { assert.InDelta(t, 3.0, v, 1e-12) }
	u := d.PyrUp(9, 5)
	for _, v := range u.values { assert.InDelta(t, 3.0, v, 1e-12) }
}

func TestL1Distance(t *testing.T) {
	zero := func(x, y int) bool { return x == 0 && y == 0 }
	d := L1Distance(4, 3, zero, false)
	assert.Equal(t, 0.0, d.Get(0, 0))
	assert.Equal(t, 5.0, d.Get(3, 2))

	none := func(x, y int) bool { return false }
	e := L1Distance(5, 5, none, true)
	assert.Equal(t, 1.0, e.Get(0, 2))
	assert.Equal(t, 3.0, e.Get(2, 2))
	assert.Equal(t, 1.0, e.Get(4, 4))
}

func TestResizeBilinearConstantAndRamp(t *testing.T) {
	g := NewFloatGrid(2, 1)
	g.Set(0, 0, 0)
	g.Set(1, 0, 10)
	r := g.ResizeBilinear(4, 1)
	assert.InDelta(t, 0.0, r.Get(0, 0), 1e-12)
	assert.InDelta(t, 2.5, r.Get(1, 0), 1e-12)
	assert.InDelta(t, 7.5, r.Get(2, 0), 1e-12)
	assert.InDelta(t, 10.0, r.Get(3, 0), 1e-12)
}

func TestSepFilter3PreservesConstant(t *testing.T) {
	g := NewFloatGrid(3, 3)
	for i := range g.values { g.values[i] = 2 }
	f := g.SepFilter3([3]float64{0.25, 0.5, 0.25})
	for _, v := range f.values { assert.InDelta(t, 2.0, v, 1e-12) }
}
