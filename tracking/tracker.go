package tracking

import (
	"context"
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage"
)

// ErrAlignmentExhausted is returned when no attempt of a target in a frame aligned.
var ErrAlignmentExhausted = errors.New("alignment attempts exhausted")

// Aligner refines the placement of a template in a frame starting from init.
type Aligner func(frame, tmpl *rimage.Gray32, ref r2.Point, init rimage.Motion, cfg rimage.AlignConfig) (rimage.AlignResult, error)

// Result is the outcome of tracking one target in one frame.
type Result struct {
	Motion rimage.Motion `json:"motion"`
	// Predicted is the unperturbed initial guess.
	Predicted   rimage.Motion `json:"predicted"`
	Correlation float64       `json:"correlation"`
	Attempts    int           `json:"attempts"`
	Iterations  int           `json:"iterations"`
	Err         error         `json:"-"`
}

// Failed reports whether no alignment was accepted.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Tracker aligns templates to frames with bounded randomized retries.
type Tracker struct {
	cfg     Config
	logger  logging.Logger
	rng     *rand.Rand
	aligner Aligner
}

// NewTracker returns a tracker aligning with rimage.Align.
func NewTracker(cfg Config, logger logging.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracking config")
	}
	return &Tracker{
		cfg:     cfg,
		logger:  logger,
		rng:     newRand(cfg.Seed, 0),
		aligner: rimage.Align,
	}, nil
}

// SetAligner replaces the alignment procedure.
func (t *Tracker) SetAligner(aligner Aligner) {
	t.aligner = aligner
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

func newRand(seed, stream int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	//nolint:gosec
	return rand.New(rand.NewSource(seed + stream))
}

// TrackTarget locates tmpl in frame. The first attempt starts from predicted; every further
// attempt starts from predicted perturbed by normal noise. Alignment failures are logged and
// retried up to MaxAttempts, after which ErrAlignmentExhausted is returned. Errors other than
// rimage.ErrAlignmentFailed are returned immediately.
func (t *Tracker) TrackTarget(
	ctx context.Context,
	frame, tmpl *rimage.Gray32,
	ref r2.Point,
	predicted rimage.Motion,
) (Result, error) {
	return t.track(ctx, t.rng, t.logger, frame, tmpl, ref, predicted)
}

func (t *Tracker) track(
	ctx context.Context,
	rng *rand.Rand,
	logger logging.Logger,
	frame, tmpl *rimage.Gray32,
	ref r2.Point,
	predicted rimage.Motion,
) (Result, error) {
	res := Result{Motion: predicted, Predicted: predicted}
	stdX := t.cfg.PerturbScale * float64(tmpl.Width)
	stdY := t.cfg.PerturbScale * float64(tmpl.Height)

	guess := predicted
	for res.Attempts < t.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts++
		if res.Attempts > 1 {
			guess = rimage.Motion{
				X:      predicted.X + rng.NormFloat64()*stdX,
				Y:      predicted.Y + rng.NormFloat64()*stdY,
				RotDeg: predicted.RotDeg + rng.NormFloat64()*t.cfg.RotationStdDeg,
			}
		}
		found, err := t.aligner(frame, tmpl, ref, guess, t.cfg.Align)
		if err == nil {
			res.Motion = found.Motion
			res.Correlation = found.Correlation
			res.Iterations = found.Iterations
			return res, nil
		}
		if !errors.Is(err, rimage.ErrAlignmentFailed) {
			return res, err
		}
		logger.CDebugw(ctx, "alignment failed with the given guess", "attempt", res.Attempts, "guess", guess, "error", err)
	}
	return res, errors.Wrapf(ErrAlignmentExhausted, "%d attempts from %+v", res.Attempts, predicted)
}
