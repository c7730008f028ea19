package tracking

import (
	"context"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage"
)

// scriptedAligner fails the first failures calls, then reports success at the guess it was given.
type scriptedAligner struct {
	failures int
	guesses  []rimage.Motion
	err      error
}

func (a *scriptedAligner) align(
	frame, tmpl *rimage.Gray32,
	ref r2.Point,
	init rimage.Motion,
	cfg rimage.AlignConfig,
) (rimage.AlignResult, error) {
	a.guesses = append(a.guesses, init)
	if len(a.guesses) <= a.failures {
		if a.err != nil {
			return rimage.AlignResult{}, a.err
		}
		return rimage.AlignResult{}, errors.Wrap(rimage.ErrAlignmentFailed, "scripted")
	}
	return rimage.AlignResult{Motion: init, Correlation: 0.9, Iterations: 3}, nil
}

func newTestTracker(t *testing.T, cfg Config, aligner Aligner) *Tracker {
	t.Helper()
	tr, err := NewTracker(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	tr.SetAligner(aligner)
	return tr
}

func TestTrackTargetRetries(t *testing.T) {
	frame := rimage.NewGray32(50, 50)
	tmpl := rimage.NewGray32(8, 6)
	predicted := rimage.Motion{X: 20, Y: 25, RotDeg: 3}
	cfg := DefaultConfig()
	cfg.Seed = 7

	t.Run("first attempt is unperturbed", func(t *testing.T) {
		a := &scriptedAligner{}
		res, err := newTestTracker(t, cfg, a.align).TrackTarget(context.Background(), frame, tmpl, r2.Point{}, predicted)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Attempts, test.ShouldEqual, 1)
		test.That(t, res.Motion, test.ShouldResemble, predicted)
		test.That(t, res.Predicted, test.ShouldResemble, predicted)
		test.That(t, res.Correlation, test.ShouldEqual, 0.9)
		test.That(t, res.Iterations, test.ShouldEqual, 3)
		test.That(t, res.Failed(), test.ShouldBeFalse)
	})

	t.Run("perturbed retries", func(t *testing.T) {
		a := &scriptedAligner{failures: 4}
		res, err := newTestTracker(t, cfg, a.align).TrackTarget(context.Background(), frame, tmpl, r2.Point{}, predicted)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Attempts, test.ShouldEqual, 5)
		test.That(t, a.guesses[0], test.ShouldResemble, predicted)
		for _, g := range a.guesses[1:] {
			test.That(t, g, test.ShouldNotResemble, predicted)
		}
		test.That(t, res.Motion, test.ShouldResemble, a.guesses[4])
		test.That(t, res.Predicted, test.ShouldResemble, predicted)

		// the same seed gives the same guesses
		b := &scriptedAligner{failures: 4}
		_, err = newTestTracker(t, cfg, b.align).TrackTarget(context.Background(), frame, tmpl, r2.Point{}, predicted)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b.guesses, test.ShouldResemble, a.guesses)
	})

	t.Run("perturbation spread follows the template size", func(t *testing.T) {
		spread := cfg
		spread.MaxAttempts = 2001
		a := &scriptedAligner{failures: 2000}
		_, err := newTestTracker(t, spread, a.align).TrackTarget(context.Background(), frame, tmpl, r2.Point{}, predicted)
		test.That(t, err, test.ShouldBeNil)
		var sx, sy, sr float64
		draws := a.guesses[1:]
		for _, g := range draws {
			sx += (g.X - predicted.X) * (g.X - predicted.X)
			sy += (g.Y - predicted.Y) * (g.Y - predicted.Y)
			sr += (g.RotDeg - predicted.RotDeg) * (g.RotDeg - predicted.RotDeg)
		}
		n := float64(len(draws))
		test.That(t, sx/n, test.ShouldAlmostEqual, 64, 10)
		test.That(t, sy/n, test.ShouldAlmostEqual, 36, 6)
		test.That(t, sr/n, test.ShouldAlmostEqual, 25, 4)
	})

	t.Run("exhausted", func(t *testing.T) {
		bounded := cfg
		bounded.MaxAttempts = 6
		a := &scriptedAligner{failures: 1000}
		res, err := newTestTracker(t, bounded, a.align).TrackTarget(context.Background(), frame, tmpl, r2.Point{}, predicted)
		test.That(t, errors.Is(err, ErrAlignmentExhausted), test.ShouldBeTrue)
		test.That(t, res.Attempts, test.ShouldEqual, 6)
		test.That(t, len(a.guesses), test.ShouldEqual, 6)
		test.That(t, res.Motion, test.ShouldResemble, predicted)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		a := &scriptedAligner{failures: 1000, err: errors.New("bad config")}
		res, err := newTestTracker(t, cfg, a.align).TrackTarget(context.Background(), frame, tmpl, r2.Point{}, predicted)
		test.That(t, err, test.ShouldBeError, a.err)
		test.That(t, res.Attempts, test.ShouldEqual, 1)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a := &scriptedAligner{}
		_, err := newTestTracker(t, cfg, a.align).TrackTarget(ctx, frame, tmpl, r2.Point{}, predicted)
		test.That(t, err, test.ShouldBeError, context.Canceled)
		test.That(t, a.guesses, test.ShouldBeEmpty)
	})
}

func TestNewTrackerValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	_, err := NewTracker(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid tracking config")
}
