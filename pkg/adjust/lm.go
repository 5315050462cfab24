package adjust

import(
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Result summarises a solve.
type Result struct {
	Iterations int
	InitialRMS float64
	FinalRMS   float64
}

const(
	lambdaInit = 1e-3
	lambdaMax  = 1e16
	fdStep     = 1e-6
)

// levenbergMarquardt minimises |f(x)|², where f writes m residuals. It
// returns an error if the budget runs out before convergence.
func levenbergMarquardt(f func(r, x []float64), m int, x0 []float64, maxIter int, eps float64) ([]float64, Result, error) {
	n := len(x0)
	res := Result{}
	if m == 0 {
		return nil, res, errors.New("no residuals to minimise")
	}
	if n == 0 {
		return append([]float64(nil), x0...), res, nil
	}

	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	f(r, x)
	cost := floats.Dot(r, r)
	res.InitialRMS = math.Sqrt(cost / float64(m))
	res.FinalRMS = res.InitialRMS
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, res, errors.New("initial residuals are not finite")
	}

	J := mat.NewDense(m, n, nil)
	var JtJ mat.SymDense
	Jtr := mat.NewVecDense(n, nil)
	A := mat.NewSymDense(n, nil)
	step := mat.NewVecDense(n, nil)
	xNew := make([]float64, n)
	rNew := make([]float64, m)
	lambda := lambdaInit
	recompute := true

	for res.Iterations = 0; res.Iterations < maxIter; res.Iterations++ {
		if cost <= eps*eps {
			return x, res, nil
		}
		if recompute {
			fd.Jacobian(J, f, x, &fd.JacobianSettings{Formula: fd.Central, Step: fdStep, OriginValue: r})
			JtJ.SymOuterK(1, J.T())
			Jtr.MulVec(J.T(), mat.NewVecDense(m, r))
			recompute = false
		}

		for i:=0; i<n; i++ {
			for j:=i; j<n; j++ {
				A.SetSym(i, j, JtJ.At(i, j))
			}
			d := JtJ.At(i, i)
			A.SetSym(i, i, d + lambda*(d + 1e-12))
		}

		var chol mat.Cholesky
		ok := chol.Factorize(A)
		if ok {
			ok = chol.SolveVecTo(step, Jtr) == nil
		}
		if !ok {
			lambda *= 10
			if lambda > lambdaMax {
				return x, res, nil
			}
			continue
		}

		for i := range xNew {
			xNew[i] = x[i] - step.AtVec(i)
		}
		f(rNew, xNew)
		costNew := floats.Dot(rNew, rNew)

		if !math.IsNaN(costNew) && costNew < cost {
			stepNorm := mat.Norm(step, 2)
			dCost := cost - costNew
			copy(x, xNew)
			copy(r, rNew)
			cost = costNew
			res.FinalRMS = math.Sqrt(cost / float64(m))
			recompute = true
			lambda = math.Max(lambda/10, 1e-12)

			if stepNorm <= eps*(floats.Norm(x, 2) + eps) || dCost <= eps*cost {
				res.Iterations++
				return x, res, nil
			}
		} else {
			lambda *= 10
			if lambda > lambdaMax {
				// no downhill step left at any damping
				return x, res, nil
			}
		}
	}

	return nil, res, errors.Errorf("no convergence after %d iterations (rms %.4g)", maxIter, res.FinalRMS)
}
