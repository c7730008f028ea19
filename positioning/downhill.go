package positioning

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/markertrack/rimage/transform"
)

// residualConverge stops once the cost drops below threshold, and otherwise when the cost stalls.
type residualConverge struct {
	threshold float64
	stall     optimize.FunctionConverge
}

func (c *residualConverge) Init(dim int) {
	c.stall.Init(dim)
}

func (c *residualConverge) Converged(loc *optimize.Location) optimize.Status {
	if loc.F < c.threshold {
		return optimize.FunctionThreshold
	}
	return c.stall.Converged(loc)
}

func solveDownhill(proj *transform.Projector, target r2.Point, s Surface, opts Options) Solution {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return residual(proj.Project(s.At(x[0], x[1])), target)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &residualConverge{
			threshold: opts.Tolerance,
			stall:     optimize.FunctionConverge{Absolute: opts.Tolerance, Iterations: opts.MaxIterations},
		},
	}
	method := &optimize.NelderMead{SimplexSize: opts.InitStep}

	result, err := optimize.Minimize(problem, []float64{0, 0}, settings, method)
	if result == nil {
		sol := newSolution(proj, target, s, 0, 0)
		sol.Err = err
		return sol
	}
	sol := newSolution(proj, target, s, result.X[0], result.X[1])
	sol.Iterations = result.Stats.MajorIterations
	sol.Converged = result.Status == optimize.FunctionThreshold || result.Status == optimize.FunctionConvergence
	if err != nil && !sol.Converged {
		sol.Err = err
	}
	return sol
}
