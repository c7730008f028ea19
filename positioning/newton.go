package positioning

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markertrack/rimage/transform"
)

// ErrSingularJacobian is set on solutions whose Newton iteration hit a singular Jacobian.
var ErrSingularJacobian = errors.New("singular jacobian")

func solveNewton(proj *transform.Projector, target r2.Point, s Surface, opts Options) Solution {
	// forward difference step, scaled to the anchor magnitude
	step := opts.StepScale * s.Anchor.Norm()
	if step == 0 {
		step = opts.StepScale
	}

	misfit := func(a1, a2 float64) r2.Point {
		return proj.Project(s.At(a1, a2)).Sub(target)
	}

	var a1, a2 float64
	var itr int
	for itr = 0; itr < opts.MaxIterations; itr++ {
		y := misfit(a1, a2)
		if y.Dot(y) < opts.Tolerance {
			sol := newSolution(proj, target, s, a1, a2)
			sol.Iterations = itr
			sol.Converged = true
			return sol
		}
		d1 := misfit(a1+step, a2).Sub(y).Mul(1 / step)
		d2 := misfit(a1, a2+step).Sub(y).Mul(1 / step)
		jac := mat.NewDense(2, 2, []float64{
			d1.X, d2.X,
			d1.Y, d2.Y,
		})
		det := mat.Det(jac)
		if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
			sol := newSolution(proj, target, s, a1, a2)
			sol.Iterations = itr
			sol.Err = errors.Wrapf(ErrSingularJacobian, "iteration %d", itr)
			return sol
		}
		// ill conditioning is reported as a mat.Condition error but the inverse is still usable
		var jinv mat.Dense
		//nolint:errcheck
		jinv.Inverse(jac)
		var delta mat.VecDense
		delta.MulVec(&jinv, mat.NewVecDense(2, []float64{y.X, y.Y}))
		a1 -= opts.Damping * delta.AtVec(0)
		a2 -= opts.Damping * delta.AtVec(1)
	}

	sol := newSolution(proj, target, s, a1, a2)
	sol.Iterations = itr
	sol.Converged = sol.Residual < opts.Tolerance
	return sol
}
