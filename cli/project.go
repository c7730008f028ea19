package cli

import (
	"image"
	"os"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/project"
	"go.viam.com/markertrack/rimage/transform"
	"go.viam.com/markertrack/target"
	"go.viam.com/markertrack/tracking"
	"go.viam.com/markertrack/utils"
)

// SequenceAction is the corresponding Action for 'sequence'.
func SequenceAction(c *cli.Context) error {
	seq, err := tracking.NewFileSequence(c.String(patternFlag), c.Int(startFlag), c.Int(countFlag))
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", project.DescribeSequence("sequence", seq))
	missing := 0
	for _, path := range seq.Paths() {
		if !utils.FileExists(path) {
			missing++
		}
	}
	if missing > 0 {
		warningf(c.App.Writer, "%d of %d files do not exist yet", missing, seq.Len())
	}
	return nil
}

// loadOrCreateProject reads the project file, or starts an empty project when it does not exist.
func loadOrCreateProject(path string, logger logging.Logger) (*project.Project, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return project.New(logger), nil
	}
	return project.Load(path, logger)
}

// ProjectShowAction is the corresponding Action for 'project show'.
func ProjectShowAction(c *cli.Context) error {
	proj, err := project.Load(c.String(projectFlag), newLogger(c))
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Kind", "Name", "Details"})
	for _, name := range proj.SequenceNames() {
		desc, err := proj.Describe(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{"file sequence", name, strings.TrimPrefix(desc, name+": ")})
	}
	for _, name := range proj.TargetNames() {
		tgt, err := proj.Target(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{"target", name, tgt.String()})
	}
	for _, name := range proj.MatrixNames() {
		m, err := proj.Matrix(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{"matrix", name, m.String()})
	}
	for _, name := range proj.CameraNames() {
		t.AppendRow(table.Row{"camera", name, ""})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// ProjectAddSequenceAction is the corresponding Action for 'project add-sequence'.
func ProjectAddSequenceAction(c *cli.Context) error {
	path := c.String(projectFlag)
	proj, err := loadOrCreateProject(path, newLogger(c))
	if err != nil {
		return err
	}
	n, err := proj.AddFileSequence(c.String(nameFlag), c.String(patternFlag), c.Int(startFlag), c.Int(countFlag))
	if err != nil {
		return err
	}
	printf(c.App.Writer, "added file sequence %q of %d files", c.String(nameFlag), n)
	return proj.Save(path)
}

// ProjectAddTargetAction is the corresponding Action for 'project add-target'.
func ProjectAddTargetAction(c *cli.Context) error {
	logger := newLogger(c)
	path := c.String(projectFlag)
	proj, err := loadOrCreateProject(path, logger)
	if err != nil {
		return err
	}

	if c.IsSet(rectFlag) && c.IsSet(rectMatrixFlag) {
		return errors.Errorf("--%s and --%s cannot be used together", rectFlag, rectMatrixFlag)
	}
	if c.IsSet(refFlag) && c.IsSet(refMatrixFlag) {
		return errors.Errorf("--%s and --%s cannot be used together", refFlag, refMatrixFlag)
	}

	rect := utils.None[image.Rectangle]()
	if s := c.String(rectFlag); s != "" {
		r, err := parseRect(s)
		if err != nil {
			return err
		}
		rect = utils.Some(r)
	}
	if name := c.String(rectMatrixFlag); name != "" {
		size, err := namedSize(proj, name)
		if err != nil {
			return err
		}
		origin, err := parsePoint(c.String(originFlag))
		if err != nil {
			return err
		}
		corner := image.Pt(int(origin.X), int(origin.Y))
		rect = utils.Some(image.Rectangle{Min: corner, Max: corner.Add(size)})
	}
	ref := utils.None[r2.Point]()
	if s := c.String(refFlag); s != "" {
		p, err := parsePoint(s)
		if err != nil {
			return err
		}
		ref = utils.Some(p)
	}
	if name := c.String(refMatrixFlag); name != "" {
		p, err := namedPoint(proj, name)
		if err != nil {
			return err
		}
		ref = utils.Some(p)
	}

	name := c.String(nameFlag)
	tgt := target.New(name, logger)
	tgt.SetTarget(nil, c.String(imageFlag), rect, ref, nil)
	if tmpl := tgt.TemplateImage(false, false); tmpl.Bounds().Empty() {
		return errors.Wrapf(target.ErrNoSource, "cannot cut a template from %q", c.String(imageFlag))
	}
	if c.IsSet(radiusFlag) {
		center, err := tgt.ResolvedRef()
		if err != nil {
			return err
		}
		if err := tgt.CircleMask(&center, c.Float64(radiusFlag)); err != nil {
			return err
		}
	}
	proj.AddTarget(name, tgt)
	printf(c.App.Writer, "%s", tgt.String())
	return proj.Save(path)
}

// ProjectAddCameraAction is the corresponding Action for 'project add-camera'.
func ProjectAddCameraAction(c *cli.Context) error {
	path := c.String(projectFlag)
	proj, err := loadOrCreateProject(path, newLogger(c))
	if err != nil {
		return err
	}
	cam, err := transform.NewCameraModelFromJSONFile(c.String(cameraFlag))
	if err != nil {
		return err
	}
	if err := proj.AddCamera(c.String(nameFlag), cam); err != nil {
		return err
	}
	printf(c.App.Writer, "added camera %q", c.String(nameFlag))
	return proj.Save(path)
}

// ProjectAddMatrixAction is the corresponding Action for 'project add-matrix'.
func ProjectAddMatrixAction(c *cli.Context) error {
	path := c.String(projectFlag)
	proj, err := loadOrCreateProject(path, newLogger(c))
	if err != nil {
		return err
	}
	given := 0
	for _, flag := range []string{sizeFlag, pointFlag, valuesFlag} {
		if c.IsSet(flag) {
			given++
		}
	}
	if given != 1 {
		return errors.Errorf("exactly one of --%s, --%s or --%s is required", sizeFlag, pointFlag, valuesFlag)
	}

	name := c.String(nameFlag)
	switch {
	case c.IsSet(sizeFlag):
		vals, err := parseFloats(c.String(sizeFlag), 2)
		if err != nil {
			return err
		}
		size := image.Pt(int(vals[0]), int(vals[1]))
		if size.X <= 0 || size.Y <= 0 {
			return errors.Errorf("size %v must be positive", size)
		}
		proj.AddSize(name, size)
	case c.IsSet(pointFlag):
		pt, err := parsePoint(c.String(pointFlag))
		if err != nil {
			return err
		}
		proj.AddPoint(name, pt)
	default:
		rows, err := parseRows(c.String(valuesFlag))
		if err != nil {
			return err
		}
		if err := proj.AddMatrix(name, transform.Matrix(rows)); err != nil {
			return err
		}
	}
	m, err := proj.Matrix(name)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "added matrix %q: %s", name, m)
	return proj.Save(path)
}

// namedSize reads a size stored by 'project add-matrix --size'.
func namedSize(proj *project.Project, name string) (image.Point, error) {
	if _, err := proj.Matrix(name); err != nil {
		return image.Point{}, err
	}
	size := proj.MatAsSize(name)
	if size.X <= 0 || size.Y <= 0 {
		return image.Point{}, errors.Errorf("matrix %q is not a positive int32 size", name)
	}
	return size, nil
}

// namedPoint reads a point stored by 'project add-matrix --point'.
func namedPoint(proj *project.Project, name string) (r2.Point, error) {
	m, err := proj.Matrix(name)
	if err != nil {
		return r2.Point{}, err
	}
	if m.Type != project.Float32 || len(m.Data) < 2 {
		return r2.Point{}, errors.Errorf("matrix %q is not a float32 point", name)
	}
	return proj.MatAsVec2(name), nil
}
