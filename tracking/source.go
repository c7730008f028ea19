package tracking

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage"
)

// ErrFrameUnavailable is returned when a frame does not become readable before the frame timeout.
var ErrFrameUnavailable = errors.New("frame unavailable")

// FrameSource supplies the frames of a sequence in order.
type FrameSource interface {
	// Frame returns frame index, blocking until it is ready, the source gives up or ctx is done.
	Frame(ctx context.Context, index int) (image.Image, error)
	Len() int
}

// FileSequence is a sequence of image files named by a printf pattern with one integer verb,
// e.g. "frames/img%04d.png", for indices Start to Start+Count-1.
type FileSequence struct {
	Pattern string `json:"pattern"`
	Start   int    `json:"start"`
	Count   int    `json:"count"`

	timeout time.Duration
	poll    time.Duration
	clk     clock.Clock
	logger  logging.Logger
}

// NewFileSequence returns a validated file sequence that waits for frames with the defaults of
// DefaultConfig.
func NewFileSequence(pattern string, start, count int) (*FileSequence, error) {
	seq := &FileSequence{Pattern: pattern, Start: start, Count: count}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

// Validate checks that the pattern formats exactly one integer and that the count is positive.
func (s *FileSequence) Validate() error {
	if s.Count <= 0 {
		return errors.Errorf("file sequence needs a positive count, got %d", s.Count)
	}
	if s.Start < 0 {
		return errors.Errorf("file sequence cannot start at a negative index, got %d", s.Start)
	}
	if name := fmt.Sprintf(s.Pattern, s.Start); strings.Contains(name, "%!") {
		return errors.Errorf("file sequence pattern %q must contain one integer verb such as %%d", s.Pattern)
	}
	return nil
}

// SetWait configures how long Frame waits for a missing file and how often it looks again.
func (s *FileSequence) SetWait(timeout, poll time.Duration, clk clock.Clock, logger logging.Logger) {
	s.timeout = timeout
	s.poll = poll
	s.clk = clk
	s.logger = logger
}

// Len returns the number of files.
func (s *FileSequence) Len() int {
	return s.Count
}

// Path returns the file name of frame index.
func (s *FileSequence) Path(index int) string {
	return fmt.Sprintf(s.Pattern, s.Start+index)
}

// Paths returns all file names in order.
func (s *FileSequence) Paths() []string {
	paths := make([]string, 0, s.Count)
	for i := 0; i < s.Count; i++ {
		paths = append(paths, s.Path(i))
	}
	return paths
}

// Dir is the directory of the files.
func (s *FileSequence) Dir() string {
	return filepath.Dir(s.Path(0))
}

// Frame reads frame index. A file that is missing, undecodable or empty is not ready yet: Frame
// reads it again every poll interval, and whenever its directory changes, until the timeout
// passes and ErrFrameUnavailable is returned.
func (s *FileSequence) Frame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 || index >= s.Count {
		return nil, errors.Errorf("frame %d is outside of the sequence of %d files", index, s.Count)
	}
	cfg := DefaultConfig()
	timeout, poll := cfg.FrameTimeout, cfg.PollInterval
	if s.timeout > 0 {
		timeout = s.timeout
	}
	if s.poll > 0 {
		poll = s.poll
	}
	clk := s.clk
	if clk == nil {
		clk = clock.New()
	}
	logger := s.logger
	if logger == nil {
		logger = logging.Global()
	}
	return waitForFrame(ctx, s.Path(index), timeout, poll, clk, logger)
}

func waitForFrame(
	ctx context.Context,
	path string,
	timeout, poll time.Duration,
	clk clock.Clock,
	logger logging.Logger,
) (image.Image, error) {
	img, err := rimage.ReadImageFromFile(path)
	if err == nil {
		return img, nil
	}

	deadline := clk.Timer(timeout)
	defer deadline.Stop()
	ticker := clk.Ticker(poll)
	defer ticker.Stop()

	var changes <-chan fsnotify.Event
	watcher, watchErr := fsnotify.NewWatcher()
	if watchErr == nil {
		defer goutils.UncheckedErrorFunc(watcher.Close)
		if watchErr = watcher.Add(filepath.Dir(path)); watchErr == nil {
			changes = watcher.Events
		}
	}
	if watchErr != nil {
		logger.Debugw("cannot watch frame directory, polling only", "path", path, "error", watchErr)
	}

	logger.Infow("waiting for frame", "path", path, "reason", err)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, errors.Wrapf(ErrFrameUnavailable, "%q after %v: %v", path, timeout, err)
		case <-ticker.C:
		case ev := <-changes:
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
		}
		if img, err = rimage.ReadImageFromFile(path); err == nil {
			return img, nil
		}
		logger.CDebugw(ctx, "frame not ready", "path", path, "reason", err)
	}
}
