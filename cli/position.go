package cli

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/positioning"
	"go.viam.com/markertrack/project"
	"go.viam.com/markertrack/rimage/transform"
)

// pointInput is one entry of the --points file.
type pointInput struct {
	ImagePoint r2.Point  `json:"image_point"`
	Anchor     r3.Vector `json:"anchor"`
	V1         r3.Vector `json:"v1"`
	V2         r3.Vector `json:"v2"`
}

// positionCamera reads the camera from --camera, or looks up --camera-name in --project.
func positionCamera(c *cli.Context, logger logging.Logger) (*transform.CameraModel, error) {
	file, name := c.String(cameraFlag), c.String(cameraNameFlag)
	switch {
	case file != "" && name != "":
		return nil, errors.Errorf("--%s and --%s cannot be used together", cameraFlag, cameraNameFlag)
	case file != "":
		return transform.NewCameraModelFromJSONFile(file)
	case name == "":
		return nil, errors.Errorf("one of --%s or --%s is required", cameraFlag, cameraNameFlag)
	case c.String(projectFlag) == "":
		return nil, errors.Errorf("--%s needs --%s", cameraNameFlag, projectFlag)
	}
	proj, err := project.Load(c.String(projectFlag), logger)
	if err != nil {
		return nil, err
	}
	return proj.Camera(name)
}

// PositionAction is the corresponding Action for 'position'.
func PositionAction(c *cli.Context) error {
	logger := newLogger(c)
	cam, err := positionCamera(c, logger)
	if err != nil {
		return err
	}
	var inputs []pointInput
	if err := readJSON(c.String(pointsFlag), &inputs); err != nil {
		return err
	}
	problem := positioning.NewProblem(
		cam,
		lo.Map(inputs, func(in pointInput, _ int) r2.Point { return in.ImagePoint }),
		lo.Map(inputs, func(in pointInput, _ int) positioning.Surface {
			return positioning.Surface{Anchor: in.Anchor, V1: in.V1, V2: in.V2}
		}),
	)

	method := positioning.Method(c.String(methodFlag))
	opts := positioning.DefaultOptions(method)
	opts.Parallel = c.Bool(parallelFlag)
	solutions, err := positioning.Solve(c.Context, method, problem, opts, logger)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "a1", "a2", "X", "Y", "Z", "Residual", "Iterations", "Converged"})
	for i, s := range solutions {
		converged := fmt.Sprint(s.Converged)
		if s.Err != nil {
			converged = s.Err.Error()
		}
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("%.6g", s.A1),
			fmt.Sprintf("%.6g", s.A2),
			fmt.Sprintf("%.6g", s.Point.X),
			fmt.Sprintf("%.6g", s.Point.Y),
			fmt.Sprintf("%.6g", s.Point.Z),
			fmt.Sprintf("%.3g", s.Residual),
			s.Iterations,
			converged,
		})
	}
	printf(c.App.Writer, "%s", t.Render())

	if out := c.String(outFlag); out != "" {
		return writeJSON(out, solutions)
	}
	return nil
}
