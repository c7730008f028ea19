package tracking

import (
	"context"
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage"
	"go.viam.com/markertrack/target"
	"go.viam.com/markertrack/utils"
)

// TargetRun is the tracking record of one target.
type TargetRun struct {
	Name string `json:"name"`

	// Ref is the template reference point the motions refer to.
	Ref     r2.Point      `json:"ref"`
	Size    r2.Point      `json:"size"`
	Seed    rimage.Motion `json:"seed"`
	History *History      `json:"history"`
	Results []Result      `json:"results"`
}

// Run is the outcome of tracking a set of targets through a frame source.
type Run struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Frames   int           `json:"frames"`
	Targets  []*TargetRun  `json:"targets"`
}

// Target returns the record of the named target.
func (r *Run) Target(name string) (*TargetRun, bool) {
	for _, tr := range r.Targets {
		if tr.Name == name {
			return tr, true
		}
	}
	return nil, false
}

type trackedTemplate struct {
	run    *TargetRun
	tmpl   *rimage.Gray32
	rng    *rand.Rand
	logger logging.Logger
}

// DefaultSeed is the placement of a target in its own source image: the rectangle origin plus
// the reference point, unrotated.
func DefaultSeed(t *target.Target) (rimage.Motion, error) {
	rect, err := t.ResolvedRect()
	if err != nil {
		return rimage.Motion{}, err
	}
	ref, err := t.ResolvedRef()
	if err != nil {
		return rimage.Motion{}, err
	}
	return rimage.Motion{X: float64(rect.Min.X) + ref.X, Y: float64(rect.Min.Y) + ref.Y}, nil
}

// Run tracks every target through every frame of source, frames in order and, within a frame,
// targets in the given order. seeds are the frame 0 guesses; when nil every target starts from
// DefaultSeed. A target that cannot be aligned in a frame keeps its predicted motion so later
// predictions stay continuous, and its error is combined into the returned error while the
// other targets and frames are still tracked. Errors preparing the templates, reading frames or
// from ctx stop the run; the partial run is returned with them.
func (t *Tracker) Run(
	ctx context.Context,
	targets []*target.Target,
	source FrameSource,
	seeds []rimage.Motion,
) (*Run, error) {
	if len(targets) == 0 {
		return nil, errors.New("no targets to track")
	}
	if seeds != nil && len(seeds) != len(targets) {
		return nil, errors.Errorf("got %d seeds for %d targets", len(seeds), len(targets))
	}

	run := &Run{ID: uuid.NewString(), Started: time.Now()}
	logger := t.logger.Sublogger(run.ID[:8])

	tracked := make([]*trackedTemplate, 0, len(targets))
	var prepErr error
	for i, tgt := range targets {
		tt, err := t.prepare(tgt, i, seeds, logger)
		if err != nil {
			prepErr = multierr.Append(prepErr, errors.Wrapf(err, "target %q", tgt.Name))
			continue
		}
		tracked = append(tracked, tt)
		run.Targets = append(run.Targets, tt.run)
	}
	if prepErr != nil {
		return nil, prepErr
	}

	logger.Infow("tracking started", "targets", len(targets), "frames", source.Len())
	var failures error
	for f := 0; f < source.Len(); f++ {
		frame, err := source.Frame(ctx, f)
		if err != nil {
			run.Duration = time.Since(run.Started)
			return run, multierr.Append(failures, errors.Wrapf(err, "frame %d", f))
		}
		gray := rimage.PrepareGray(frame, t.cfg.BlurSigma)

		results := make([]Result, len(tracked))
		trackOne := func(i int) {
			tt := tracked[i]
			predicted := Predict(tt.run.History, f, tt.run.Seed)
			res, err := t.track(ctx, tt.rng, tt.logger, gray, tt.tmpl, tt.run.Ref, predicted)
			res.Err = err
			results[i] = res
		}
		if t.cfg.Parallel {
			if err := utils.GroupWorkParallel(ctx, len(tracked), func(int) {},
				func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
					return func(memberNum, workNum int) { trackOne(workNum) }, nil
				}); err != nil {
				run.Duration = time.Since(run.Started)
				return run, multierr.Append(failures, err)
			}
		} else {
			for i := range tracked {
				trackOne(i)
			}
		}
		if err := ctx.Err(); err != nil {
			run.Duration = time.Since(run.Started)
			return run, multierr.Append(failures, err)
		}

		for i, res := range results {
			tt := tracked[i]
			if res.Err != nil {
				tt.logger.Warnw("target not found, keeping the predicted position", "frame", f, "error", res.Err)
				failures = multierr.Append(failures, errors.Wrapf(res.Err, "target %q frame %d", tt.run.Name, f))
			} else {
				tt.logger.Debugw("target found", "frame", f, "motion", res.Motion,
					"predicted", res.Predicted, "attempts", res.Attempts, "correlation", res.Correlation)
			}
			if err := tt.run.History.Set(f, res.Motion); err != nil {
				run.Duration = time.Since(run.Started)
				return run, multierr.Append(failures, errors.Wrapf(err, "target %q", tt.run.Name))
			}
			tt.run.Results = append(tt.run.Results, res)
		}
		run.Frames++
	}
	run.Duration = time.Since(run.Started)
	logger.Infow("tracking finished", "frames", run.Frames, "failures", len(multierr.Errors(failures)),
		"duration", run.Duration)
	return run, failures
}

func (t *Tracker) prepare(tgt *target.Target, i int, seeds []rimage.Motion, logger logging.Logger) (*trackedTemplate, error) {
	tmpl, err := tgt.GrayTemplate()
	if err != nil {
		return nil, err
	}
	if t.cfg.BlurSigma > 0 {
		tmpl = rimage.PrepareGray(tmpl.ToImage(), t.cfg.BlurSigma)
	}
	ref, err := tgt.ResolvedRef()
	if err != nil {
		return nil, err
	}
	var seed rimage.Motion
	if seeds != nil {
		seed = seeds[i]
	} else if seed, err = DefaultSeed(tgt); err != nil {
		return nil, err
	}
	name := tgt.Name
	if name == "" {
		name = "target"
	}
	return &trackedTemplate{
		run: &TargetRun{
			Name:    tgt.Name,
			Ref:     ref,
			Size:    r2.Point{X: float64(tmpl.Width), Y: float64(tmpl.Height)},
			Seed:    seed,
			History: NewHistory(),
		},
		tmpl:   tmpl,
		rng:    newRand(t.cfg.Seed, int64(i)+1),
		logger: logger.Sublogger(name),
	}, nil
}

// Summary describes the tracking quality of one target.
type Summary struct {
	Target          string  `json:"target"`
	Frames          int     `json:"frames"`
	Failures        int     `json:"failures"`
	MeanCorrelation float64 `json:"mean_correlation"`
	StdCorrelation  float64 `json:"std_correlation"`
	MinCorrelation  float64 `json:"min_correlation"`
	MeanAttempts    float64 `json:"mean_attempts"`
	MaxAttempts     float64 `json:"max_attempts"`
}

// Summary returns per-target statistics. Correlations only cover the frames the target was found in.
func (r *Run) Summary() ([]Summary, error) {
	summaries := make([]Summary, 0, len(r.Targets))
	for _, tr := range r.Targets {
		s := Summary{Target: tr.Name, Frames: len(tr.Results)}
		var correlations, attempts stats.Float64Data
		for _, res := range tr.Results {
			attempts = append(attempts, float64(res.Attempts))
			if res.Failed() {
				s.Failures++
				continue
			}
			correlations = append(correlations, res.Correlation)
		}
		var err error
		if len(attempts) > 0 {
			if s.MeanAttempts, err = attempts.Mean(); err != nil {
				return nil, err
			}
			if s.MaxAttempts, err = attempts.Max(); err != nil {
				return nil, err
			}
		}
		if len(correlations) > 0 {
			if s.MeanCorrelation, err = correlations.Mean(); err != nil {
				return nil, err
			}
			if s.StdCorrelation, err = correlations.StandardDeviation(); err != nil {
				return nil, err
			}
			if s.MinCorrelation, err = correlations.Min(); err != nil {
				return nil, err
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Attempts returns the attempt counts of every target and frame.
func (r *Run) Attempts() []float64 {
	var out []float64
	for _, tr := range r.Targets {
		for _, res := range tr.Results {
			out = append(out, float64(res.Attempts))
		}
	}
	return out
}
