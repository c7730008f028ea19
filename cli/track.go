package cli

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/project"
	"go.viam.com/markertrack/rimage"
	"go.viam.com/markertrack/tracking"
)

type trackOutput struct {
	Sequence string             `json:"sequence"`
	Run      *tracking.Run      `json:"run"`
	Summary  []tracking.Summary `json:"summary"`
}

// TrackAction is the corresponding Action for 'track'.
func TrackAction(c *cli.Context) error {
	logger := newLogger(c)
	proj, err := project.Load(c.String(projectFlag), logger)
	if err != nil {
		return err
	}
	seqName := c.String(sequenceFlag)
	seq, err := proj.FileSequence(seqName)
	if err != nil {
		return err
	}
	names := c.StringSlice(targetsFlag)
	if len(names) == 0 {
		names = proj.TargetNames()
	}
	targets, err := proj.Targets(names...)
	if err != nil {
		return err
	}

	cfg, err := trackingConfig(c, proj, logger)
	if err != nil {
		return err
	}
	seq.SetWait(cfg.FrameTimeout, cfg.PollInterval, nil, logger)
	tracker, err := tracking.NewTracker(cfg, logger)
	if err != nil {
		return err
	}

	ctx := c.Context
	if c.Bool(traceFlag) {
		ctx = logging.EnableDebugMode(ctx, "")
	}
	run, runErr := tracker.Run(ctx, targets, seq, nil)
	if run == nil {
		return runErr
	}
	summaries, err := run.Summary()
	if err != nil {
		return err
	}
	printSummary(c.App.Writer, summaries)
	printAttempts(c.App.Writer, run.Attempts())

	if out := c.String(outFlag); out != "" {
		if err := writeJSON(out, trackOutput{Sequence: seqName, Run: run, Summary: summaries}); err != nil {
			return err
		}
		printf(c.App.Writer, "wrote %s", out)
	}
	if dir := c.String(annotateFlag); dir != "" {
		if err := annotate(dir, seq, run); err != nil {
			return err
		}
	}

	if run.Frames < seq.Len() {
		return runErr
	}
	for _, err := range multierr.Errors(runErr) {
		warningf(c.App.ErrWriter, "%v", err)
	}
	return nil
}

// trackingConfig overlays the attributes of the --config file on the project's.
func trackingConfig(c *cli.Context, proj *project.Project, logger logging.Logger) (tracking.Config, error) {
	attrs := lo.Assign(proj.Tracking())
	if path := c.String(configFlag); path != "" {
		var override map[string]interface{}
		if err := readJSON(path, &override); err != nil {
			return tracking.Config{}, err
		}
		attrs = lo.Assign(attrs, override)
	}
	cfg, unused, err := tracking.DecodeConfig(attrs)
	if err != nil {
		return tracking.Config{}, err
	}
	if len(unused) > 0 {
		logger.Warnw("ignoring unknown tracking attributes", "attributes", unused)
	}
	return cfg, nil
}

func printSummary(w io.Writer, summaries []tracking.Summary) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Target", "Frames", "Failures", "Correlation", "Min correlation", "Attempts", "Max attempts"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Target,
			s.Frames,
			s.Failures,
			fmt.Sprintf("%.4f ± %.4f", s.MeanCorrelation, s.StdCorrelation),
			fmt.Sprintf("%.4f", s.MinCorrelation),
			fmt.Sprintf("%.2f", s.MeanAttempts),
			fmt.Sprintf("%.0f", s.MaxAttempts),
		})
	}
	printf(w, "%s", t.Render())
}

// printAttempts draws a histogram of the alignment attempts per target and frame.
func printAttempts(w io.Writer, attempts []float64) {
	if len(attempts) == 0 {
		return
	}
	maxAttempts := lo.Max(attempts)
	bins := int(math.Min(maxAttempts, 10))
	if bins < 1 {
		bins = 1
	}
	printf(w, "alignment attempts:")
	if err := histogram.Fprint(w, histogram.Hist(bins, attempts), histogram.Linear(40)); err != nil {
		warningf(w, "cannot draw histogram: %v", err)
	}
}

// annotate writes every tracked frame with the found target rectangles drawn on it.
func annotate(dir string, seq *tracking.FileSequence, run *tracking.Run) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	for f := 0; f < run.Frames; f++ {
		frame, err := rimage.ReadImageFromFile(seq.Path(f))
		if err != nil {
			return err
		}
		for _, tr := range run.Targets {
			res := tr.Results[f]
			label := tr.Name
			if res.Failed() {
				label += " (predicted)"
			}
			origin := image.Pt(int(math.Round(res.Motion.X-tr.Ref.X)), int(math.Round(res.Motion.Y-tr.Ref.Y)))
			rect := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(int(tr.Size.X), int(tr.Size.Y)))}
			frame = rimage.AnnotateFrame(frame, rect, res.Motion.Point(), label)
		}
		name := strings.TrimSuffix(filepath.Base(seq.Path(f)), filepath.Ext(seq.Path(f))) + ".png"
		if err := rimage.WriteImageToFile(filepath.Join(dir, name), frame); err != nil {
			return errors.Wrapf(err, "frame %d", f)
		}
	}
	return nil
}
