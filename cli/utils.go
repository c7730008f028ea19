package cli

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/markertrack/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

var warningPrefix = color.New(color.Bold, color.FgYellow)

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	warningPrefix.Fprint(w, "Warning: ")
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// newLogger builds the command's logger and installs it as the global one.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("markertrack")
	if c.Bool(debugFlag) {
		logger = logging.NewDebugLogger("markertrack")
	}
	logging.ReplaceGlobal(logger)
	return logger
}

// parseFloats parses comma separated numbers. want < 0 accepts any count.
func parseFloats(s string, want int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if want >= 0 && len(fields) != want {
		return nil, errors.Errorf("expected %d comma separated values, got %q", want, s)
	}
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad value in %q", s)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseRows parses rows separated by ';' of values separated by ','.
func parseRows(s string) ([][]float64, error) {
	var rows [][]float64
	for _, row := range strings.Split(strings.TrimSpace(s), ";") {
		if strings.TrimSpace(row) == "" {
			continue
		}
		vals, err := parseFloats(row, -1)
		if err != nil {
			return nil, err
		}
		rows = append(rows, vals)
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows given")
	}
	return rows, nil
}

func parsePoint(s string) (r2.Point, error) {
	vals, err := parseFloats(s, 2)
	if err != nil {
		return r2.Point{}, err
	}
	return r2.Point{X: vals[0], Y: vals[1]}, nil
}

func parseRect(s string) (image.Rectangle, error) {
	vals, err := parseFloats(s, 4)
	if err != nil {
		return image.Rectangle{}, err
	}
	rect := image.Rect(int(vals[0]), int(vals[1]), int(vals[2]), int(vals[3]))
	if rect.Empty() {
		return image.Rectangle{}, errors.Errorf("rectangle %q is empty", s)
	}
	return rect, nil
}

// readJSON decodes a hand written input file. JSON5 is accepted so files may carry comments and
// trailing commas.
func readJSON(path string, v interface{}) error {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(json5.Unmarshal(data, v), "cannot decode %q", path)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
