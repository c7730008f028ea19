package tracking

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage"
)

func writeFrame(t *testing.T, path string, v uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	test.That(t, rimage.WriteImageToFile(path, img), test.ShouldBeNil)
}

type frameResult struct {
	img image.Image
	err error
}

// advanceUntil moves the mock clock forward one step at a time until the frame call returns.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, done <-chan frameResult) frameResult {
	t.Helper()
	for i := 0; i < 1000; i++ {
		select {
		case res := <-done:
			return res
		default:
		}
		mock.Add(step)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("frame wait did not return")
	return frameResult{}
}

func TestFileSequence(t *testing.T) {
	seq, err := NewFileSequence("frames/img%04d.png", 8, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seq.Len(), test.ShouldEqual, 3)
	test.That(t, seq.Path(0), test.ShouldEqual, "frames/img0008.png")
	test.That(t, seq.Paths(), test.ShouldResemble, []string{"frames/img0008.png", "frames/img0009.png", "frames/img0010.png"})
	test.That(t, seq.Dir(), test.ShouldEqual, "frames")

	for _, bad := range []FileSequence{
		{Pattern: "img.png", Count: 2},
		{Pattern: "img%d_%d.png", Count: 2},
		{Pattern: "img%d.png", Count: 0},
		{Pattern: "img%d.png", Start: -1, Count: 2},
	} {
		_, err := NewFileSequence(bad.Pattern, bad.Start, bad.Count)
		test.That(t, err, test.ShouldNotBeNil)
	}

	_, err = seq.Frame(context.Background(), 3)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "outside of the sequence")
}

func TestFrameWait(t *testing.T) {
	dir := t.TempDir()
	seq, err := NewFileSequence(filepath.Join(dir, "f%d.png"), 0, 2)
	test.That(t, err, test.ShouldBeNil)
	mock := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)
	seq.SetWait(5*time.Second, time.Second, mock, logger)

	t.Run("ready", func(t *testing.T) {
		writeFrame(t, seq.Path(0), 9)
		img, err := seq.Frame(context.Background(), 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Point{4, 3})
		test.That(t, color.GrayModel.Convert(img.At(1, 1)).(color.Gray).Y, test.ShouldEqual, uint8(9))
		test.That(t, logs.FilterMessage("waiting for frame").Len(), test.ShouldEqual, 0)
	})

	t.Run("appears later", func(t *testing.T) {
		done := make(chan frameResult, 1)
		go func() {
			img, err := seq.Frame(context.Background(), 1)
			done <- frameResult{img, err}
		}()
		for logs.FilterMessage("waiting for frame").Len() == 0 {
			time.Sleep(time.Millisecond)
		}
		writeFrame(t, seq.Path(1), 200)
		res := advanceUntil(t, mock, 100*time.Millisecond, done)
		test.That(t, res.err, test.ShouldBeNil)
		test.That(t, res.img.Bounds().Dx(), test.ShouldEqual, 4)
	})

	t.Run("times out", func(t *testing.T) {
		missing, err := NewFileSequence(filepath.Join(dir, "missing%d.png"), 0, 1)
		test.That(t, err, test.ShouldBeNil)
		missing.SetWait(5*time.Second, time.Second, mock, logger)
		done := make(chan frameResult, 1)
		go func() {
			img, err := missing.Frame(context.Background(), 0)
			done <- frameResult{img, err}
		}()
		res := advanceUntil(t, mock, time.Second, done)
		test.That(t, errors.Is(res.err, ErrFrameUnavailable), test.ShouldBeTrue)
		test.That(t, res.img, test.ShouldBeNil)
	})

	t.Run("canceled", func(t *testing.T) {
		missing, err := NewFileSequence(filepath.Join(dir, "never%d.png"), 0, 1)
		test.That(t, err, test.ShouldBeNil)
		missing.SetWait(time.Hour, time.Hour, mock, logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = missing.Frame(ctx, 0)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}
