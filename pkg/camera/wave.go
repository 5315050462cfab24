package camera

import(
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/pano-stitch/pkg/emath"
)

type WaveKind int

const(
	WaveHorizontal WaveKind = iota
	WaveVertical
	WaveNone
)

func (k WaveKind)String() string {
	switch k {
	case WaveHorizontal: return "horizontal"
	case WaveVertical:   return "vertical"
	case WaveNone:       return "none"
	}
	return fmt.Sprintf("WaveKind(%d)", int(k))
}

func ParseWave(s string) (WaveKind, error) {
	for _, k := range []WaveKind{WaveHorizontal, WaveVertical, WaveNone} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("no wave correction named '%s'", s)
}

// WaveCorrect rotates the whole rig so that the cameras' x axes lie in
// a plane (horizontal), or their x axes line up (vertical), removing
// the wavy look of an untreated panorama. Cameras are updated in place.
func WaveCorrect(cams []Params, kind WaveKind) error {
	if len(cams) == 0 {
		return errors.New("wave correction needs at least one camera")
	}
	if kind == WaveNone || len(cams) == 1 {
		return nil
	}

	moment := mat.NewSymDense(3, nil)
	for _, c := range cams {
		col := c.R.Col(0)
		v := []float64{col.X, col.Y, col.Z}
		for r:=0; r<3; r++ {
			for k:=r; k<3; k++ {
				moment.SetSym(r, k, moment.At(r, k) + v[r]*v[k])
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(moment, true); !ok {
		return errors.New("wave correction: eigen decomposition failed")
	}
	var ev mat.Dense
	eig.VectorsTo(&ev)

	// gonum orders eigenvalues ascending
	col := 0
	if kind == WaveVertical {
		col = 2
	}
	rg1 := r3.Vector{X: ev.At(0, col), Y: ev.At(1, col), Z: ev.At(2, col)}

	sumZ := r3.Vector{}
	for _, c := range cams {
		sumZ = sumZ.Add(c.R.Col(2))
	}
	rg0 := rg1.Cross(sumZ)
	if rg0.Norm() <= math.SmallestNonzeroFloat64 {
		return nil
	}
	rg0 = rg0.Normalize()
	rg2 := rg0.Cross(rg1)

	conf := 0.0
	for _, c := range cams {
		switch kind {
		case WaveHorizontal: conf += rg0.Dot(c.R.Col(0))
		case WaveVertical:   conf -= rg1.Dot(c.R.Col(0))
		}
	}
	if conf < 0 {
		rg0 = rg0.Mul(-1)
		rg1 = rg1.Mul(-1)
	}

	W := emath.MatFromRows(rg0, rg1, rg2)
	for i := range cams {
		cams[i].R = W.Mult(cams[i].R)
	}
	return nil
}
