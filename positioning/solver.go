package positioning

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage/transform"
	"go.viam.com/markertrack/utils"
)

// Method names a positioning algorithm.
type Method string

const (
	// MethodDownhill is the derivative-free Nelder-Mead search.
	MethodDownhill = Method("downhill")
	// MethodNewton is the damped Newton iteration with a forward difference Jacobian.
	MethodNewton = Method("newton")
)

// Options tunes the solvers. Fields a method does not use are ignored.
type Options struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
	// InitStep is the initial simplex size of the downhill method in both parameters.
	InitStep float64 `json:"init_step"`
	// Damping scales every Newton update.
	Damping float64 `json:"damping"`
	// StepScale times the anchor norm is the Newton finite difference step.
	StepScale float64 `json:"step_scale"`
	// Parallel solves independent points concurrently.
	Parallel bool `json:"parallel"`
}

// DefaultDownhillOptions returns the settings of the downhill method: 100 iterations, residual
// threshold 1e-8 and an initial step of 10.
func DefaultDownhillOptions() Options {
	return Options{MaxIterations: 100, Tolerance: 1e-8, InitStep: 10}
}

// DefaultNewtonOptions returns the settings of the Newton method: 20 iterations, squared residual
// threshold 1e-4, damping 0.5 and a step of 1e-9 times the anchor norm.
func DefaultNewtonOptions() Options {
	return Options{MaxIterations: 20, Tolerance: 1e-4, Damping: 0.5, StepScale: 1e-9}
}

// DefaultOptions returns the defaults of method.
func DefaultOptions(method Method) Options {
	if method == MethodNewton {
		return DefaultNewtonOptions()
	}
	return DefaultDownhillOptions()
}

// Validate checks the options.
func (o Options) Validate(method Method) error {
	var err error
	if o.MaxIterations <= 0 {
		err = multierr.Append(err, errors.Errorf("max_iterations must be positive, got %d", o.MaxIterations))
	}
	if o.Tolerance < 0 {
		err = multierr.Append(err, errors.Errorf("tolerance must not be negative, got %v", o.Tolerance))
	}
	switch method {
	case MethodDownhill:
		if o.InitStep <= 0 {
			err = multierr.Append(err, errors.Errorf("init_step must be positive, got %v", o.InitStep))
		}
	case MethodNewton:
		if o.Damping <= 0 {
			err = multierr.Append(err, errors.Errorf("damping must be positive, got %v", o.Damping))
		}
		if o.StepScale <= 0 {
			err = multierr.Append(err, errors.Errorf("step_scale must be positive, got %v", o.StepScale))
		}
	default:
		err = multierr.Append(err, errors.Errorf("unknown positioning method %q", method))
	}
	return err
}

// Solution is the result for one tracked point.
type Solution struct {
	A1    float64   `json:"a1"`
	A2    float64   `json:"a2"`
	Point r3.Vector `json:"point"`
	// Projected is the image of Point through the camera.
	Projected r2.Point `json:"projected"`
	// Residual is the squared distance between Projected and the observed point.
	Residual   float64 `json:"residual"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Err        error   `json:"-"`
}

// pointSolver solves for one point. It must not share mutable state with other calls.
type pointSolver func(proj *transform.Projector, target r2.Point, s Surface, opts Options) Solution

// Solve runs the named method.
func Solve(ctx context.Context, method Method, p *Problem, opts Options, logger logging.Logger) ([]Solution, error) {
	switch method {
	case MethodDownhill:
		return SolveDownhill(ctx, p, opts, logger)
	case MethodNewton:
		return SolveNewton(ctx, p, opts, logger)
	default:
		return nil, errors.Wrapf(ErrInvalidInput, "unknown positioning method %q", method)
	}
}

// SolveDownhill positions every point with the Nelder-Mead method. On invalid input nothing is
// solved and the error wraps ErrInvalidInput.
func SolveDownhill(ctx context.Context, p *Problem, opts Options, logger logging.Logger) ([]Solution, error) {
	return solveAll(ctx, MethodDownhill, p, opts, logger, solveDownhill)
}

// SolveNewton positions every point with the damped Newton method. On invalid input nothing is
// solved and the error wraps ErrInvalidInput.
func SolveNewton(ctx context.Context, p *Problem, opts Options, logger logging.Logger) ([]Solution, error) {
	return solveAll(ctx, MethodNewton, p, opts, logger, solveNewton)
}

func solveAll(
	ctx context.Context,
	method Method,
	p *Problem,
	opts Options,
	logger logging.Logger,
	solve pointSolver,
) ([]Solution, error) {
	if err := p.Validate(); err != nil {
		logger.Errorw("cannot position points", "method", method, "error", err)
		return nil, err
	}
	if err := opts.Validate(method); err != nil {
		logger.Errorw("cannot position points", "method", method, "error", err)
		return nil, errors.Wrap(multierr.Append(ErrInvalidInput, err), "positioning")
	}
	proj, err := p.Camera.Projector()
	if err != nil {
		return nil, errors.Wrap(multierr.Append(ErrInvalidInput, err), "positioning")
	}
	warnTypes(p, logger)

	solutions := make([]Solution, p.Len())
	solveOne := func(i int) {
		solutions[i] = solve(proj, p.ImagePoints[i], p.Surface(i), opts)
		if solutions[i].Err != nil {
			logger.Warnw("point not positioned", "method", method, "point", i, "error", solutions[i].Err)
		}
	}

	if opts.Parallel {
		err := utils.GroupWorkParallel(ctx, p.Len(), func(int) {},
			func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
				return func(memberNum, workNum int) {
					if ctx.Err() != nil {
						return
					}
					solveOne(workNum)
				}, nil
			})
		if err != nil {
			return nil, err
		}
	} else {
		for i := 0; i < p.Len(); i++ {
			if ctx.Err() != nil {
				break
			}
			solveOne(i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	converged := 0
	for _, s := range solutions {
		if s.Converged {
			converged++
		}
	}
	logger.Debugw("positioned points", "method", method, "points", len(solutions), "converged", converged)
	return solutions, nil
}

// warnTypes logs observed points that are not finite. They are still handed to the solver.
func warnTypes(p *Problem, logger logging.Logger) {
	for i, pt := range p.ImagePoints {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			logger.Warnw("image point is not finite", "point", i, "value", pt)
		}
	}
}

func newSolution(proj *transform.Projector, target r2.Point, s Surface, a1, a2 float64) Solution {
	pt := s.At(a1, a2)
	projected := proj.Project(pt)
	return Solution{
		A1:        a1,
		A2:        a2,
		Point:     pt,
		Projected: projected,
		Residual:  residual(projected, target),
	}
}

func residual(projected, target r2.Point) float64 {
	d := projected.Sub(target)
	return d.Dot(d)
}
