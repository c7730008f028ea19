package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/positioning"
	"go.viam.com/markertrack/project"
	"go.viam.com/markertrack/rimage"
	"go.viam.com/markertrack/rimage/transform"
	"go.viam.com/markertrack/utils"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"markertrack"}, args...))
	return out.String(), errOut.String(), err
}

func TestStrainCommand(t *testing.T) {
	out, _, err := runApp(t, "strain", "--warp", "1,0.1,3;0,1,4;0,0,1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "rotation_deg")
	test.That(t, out, test.ShouldContainSubstring, "hourglass_y")

	_, _, err = runApp(t, "strain", "--warp", "1,2;3,4")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "strain", "--warp", "1,0,0;0,1", "--ref", "0,0")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "strain", "--warp", "1,0,0;0,1,0", "--ref", "x")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "strain")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSequenceCommand(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "img%02d.png")
	test.That(t, rimage.WriteImageToFile(filepath.Join(dir, "img04.png"), image.NewGray(image.Rect(0, 0, 2, 2))), test.ShouldBeNil)

	out, _, err := runApp(t, "sequence", "--pattern", pattern, "--start", "4", "--count", "3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "3 files")
	test.That(t, out, test.ShouldContainSubstring, "img06.png")
	test.That(t, out, test.ShouldContainSubstring, "2 of 3 files do not exist yet")

	_, _, err = runApp(t, "sequence", "--pattern", "img.png", "--count", "3")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPositionCommand(t *testing.T) {
	dir := t.TempDir()
	cam := &transform.CameraModel{
		CameraMatrix: transform.Matrix{{900, 0, 400}, {0, 900, 300}, {0, 0, 1}},
		Distortion:   transform.Matrix{{-0.02, 0.001, 0, 0, 0}},
		Rotation:     transform.Matrix{{0.01, 0.02, 0}},
		Translation:  transform.Matrix{{0, 0, 800}},
	}
	camPath := filepath.Join(dir, "cam.json")
	test.That(t, writeJSON(camPath, cam), test.ShouldBeNil)

	proj, err := cam.Projector()
	test.That(t, err, test.ShouldBeNil)
	surface := positioning.Surface{Anchor: r3.Vector{X: 20, Y: -10}, V1: r3.Vector{X: 1}, V2: r3.Vector{Y: 1}}
	observed := proj.Project(surface.At(2, -1))
	points := []map[string]interface{}{{
		"image_point": map[string]float64{"x": observed.X, "y": observed.Y},
		"anchor":      map[string]float64{"x": 20, "y": -10, "z": 0},
		"v1":          map[string]float64{"x": 1},
		"v2":          map[string]float64{"y": 1},
	}}
	pointsPath := filepath.Join(dir, "points.json")
	test.That(t, writeJSON(pointsPath, points), test.ShouldBeNil)

	for _, method := range []string{"newton", "downhill"} {
		outPath := filepath.Join(dir, method+".json")
		out, _, err := runApp(t, "position", "--camera", camPath, "--points", pointsPath,
			"--method", method, "--parallel", "--out", outPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldNotBeEmpty)

		var solutions []positioning.Solution
		test.That(t, readJSON(outPath, &solutions), test.ShouldBeNil)
		test.That(t, len(solutions), test.ShouldEqual, 1)
		test.That(t, solutions[0].A1, test.ShouldAlmostEqual, 2, 0.02)
		test.That(t, solutions[0].A2, test.ShouldAlmostEqual, -1, 0.02)
	}

	_, _, err = runApp(t, "position", "--camera", camPath, "--points", pointsPath, "--method", "simplex")
	test.That(t, err, test.ShouldNotBeNil)

	t.Run("project camera", func(t *testing.T) {
		projPath := filepath.Join(dir, "project.json")
		_, _, err := runApp(t, "project", "--project", projPath, "add-camera", "--name", "left", "--camera", camPath)
		test.That(t, err, test.ShouldBeNil)

		outPath := filepath.Join(dir, "named.json")
		_, _, err = runApp(t, "position", "--project", projPath, "--camera-name", "left",
			"--points", pointsPath, "--out", outPath)
		test.That(t, err, test.ShouldBeNil)
		var solutions []positioning.Solution
		test.That(t, readJSON(outPath, &solutions), test.ShouldBeNil)
		test.That(t, len(solutions), test.ShouldEqual, 1)
		test.That(t, solutions[0].A1, test.ShouldAlmostEqual, 2, 0.02)
		test.That(t, solutions[0].A2, test.ShouldAlmostEqual, -1, 0.02)

		_, _, err = runApp(t, "position", "--project", projPath, "--camera-name", "right", "--points", pointsPath)
		test.That(t, errors.Is(err, project.ErrNotFound), test.ShouldBeTrue)
		_, _, err = runApp(t, "position", "--camera-name", "left", "--points", pointsPath)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "needs --project")
		_, _, err = runApp(t, "position", "--camera", camPath, "--project", projPath, "--camera-name", "left",
			"--points", pointsPath)
		test.That(t, err, test.ShouldNotBeNil)
		_, _, err = runApp(t, "position", "--points", pointsPath)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func pattern(x, y float64) float64 {
	blob := math.Exp(-((x-50)*(x-50) + (y-40)*(y-40)) / 200)
	return 128 + 50*math.Sin(x/6)*math.Cos(y/9) + 40*blob
}

func writePatternFrame(t *testing.T, path string, dx, dy float64) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 120; x++ {
			img.Pix[y*img.Stride+x] = uint8(math.Round(pattern(float64(x)-dx, float64(y)-dy)))
		}
	}
	test.That(t, rimage.WriteImageToFile(path, img), test.ShouldBeNil)
}

func TestProjectAndTrackCommands(t *testing.T) {
	dir := t.TempDir()
	for f := 0; f < 3; f++ {
		writePatternFrame(t, filepath.Join(dir, fmt.Sprintf("frame%d.png", f)), float64(f), 0.5*float64(f))
	}
	projPath := filepath.Join(dir, "project.json")

	_, _, err := runApp(t, "project", "--project", projPath, "add-sequence",
		"--name", "frames", "--pattern", filepath.Join(dir, "frame%d.png"), "--count", "3")
	test.That(t, err, test.ShouldBeNil)
	_, _, err = runApp(t, "project", "--project", projPath, "add-sequence",
		"--name", "frames", "--pattern", filepath.Join(dir, "frame%d.png"), "--count", "3")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = runApp(t, "project", "--project", projPath, "add-target",
		"--name", "blob", "--image", filepath.Join(dir, "frame0.png"), "--rect", "35,25,66,56")
	test.That(t, err, test.ShouldBeNil)
	_, _, err = runApp(t, "project", "--project", projPath, "add-target",
		"--name", "nothing", "--image", filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)

	out, _, err := runApp(t, "project", "--project", projPath, "add-matrix", "--name", "tmpl_size", "--size", "31,31")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "int32 1x2")
	_, _, err = runApp(t, "project", "--project", projPath, "add-matrix", "--name", "tmpl_ref", "--point", "15,15")
	test.That(t, err, test.ShouldBeNil)
	_, _, err = runApp(t, "project", "--project", projPath, "add-matrix", "--name", "gains", "--values", "1,2;3,4")
	test.That(t, err, test.ShouldBeNil)
	_, _, err = runApp(t, "project", "--project", projPath, "add-matrix", "--name", "both",
		"--size", "1,1", "--point", "1,1")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "project", "--project", projPath, "add-matrix", "--name", "ragged", "--values", "1,2;3")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = runApp(t, "project", "--project", projPath, "add-target", "--name", "named",
		"--image", filepath.Join(dir, "frame0.png"), "--rect-matrix", "tmpl_size", "--origin", "35,25",
		"--ref-matrix", "tmpl_ref")
	test.That(t, err, test.ShouldBeNil)
	proj, err := project.Load(projPath, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	named, err := proj.Target("named")
	test.That(t, err, test.ShouldBeNil)
	rect, err := named.ResolvedRect()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rect, test.ShouldResemble, image.Rect(35, 25, 66, 56))
	ref, err := named.ResolvedRef()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ref, test.ShouldResemble, r2.Point{X: 15, Y: 15})

	// a point is not a size and a float64 matrix is not a point
	_, _, err = runApp(t, "project", "--project", projPath, "add-target", "--name", "wrong",
		"--image", filepath.Join(dir, "frame0.png"), "--rect-matrix", "tmpl_ref")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a positive int32 size")
	_, _, err = runApp(t, "project", "--project", projPath, "add-target", "--name", "wrong",
		"--image", filepath.Join(dir, "frame0.png"), "--ref-matrix", "gains")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a float32 point")
	_, _, err = runApp(t, "project", "--project", projPath, "add-target", "--name", "wrong",
		"--image", filepath.Join(dir, "frame0.png"), "--rect", "0,0,5,5", "--rect-matrix", "tmpl_size")
	test.That(t, err, test.ShouldNotBeNil)

	out, _, err = runApp(t, "project", "--project", projPath, "show")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "blob")
	test.That(t, out, test.ShouldContainSubstring, "tmpl_size")
	test.That(t, out, test.ShouldNotContainSubstring, "wrong")
	test.That(t, out, test.ShouldContainSubstring, "3 files")
	test.That(t, out, test.ShouldNotContainSubstring, "nothing")

	cfgPath := filepath.Join(dir, "tracking.json")
	test.That(t, writeJSON(cfgPath, map[string]interface{}{"seed": 5, "frame_timeout": "2s"}), test.ShouldBeNil)
	outPath := filepath.Join(dir, "run.json")
	annotated := filepath.Join(dir, "annotated")
	out, _, err = runApp(t, "track", "--project", projPath, "--sequence", "frames",
		"--targets", "blob", "--config", cfgPath, "--out", outPath, "--annotate", annotated)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "alignment attempts")

	var result struct {
		Run struct {
			Frames  int `json:"frames"`
			Targets []struct {
				Name    string `json:"name"`
				Results []struct {
					Motion rimage.Motion `json:"motion"`
				} `json:"results"`
			} `json:"targets"`
		} `json:"run"`
	}
	data, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, json.Unmarshal(data, &result), test.ShouldBeNil)
	test.That(t, result.Run.Frames, test.ShouldEqual, 3)
	test.That(t, result.Run.Targets[0].Name, test.ShouldEqual, "blob")
	for f, res := range result.Run.Targets[0].Results {
		test.That(t, res.Motion.X, test.ShouldAlmostEqual, 50+float64(f), 0.3)
		test.That(t, res.Motion.Y, test.ShouldAlmostEqual, 40+0.5*float64(f), 0.3)
	}
	for f := 0; f < 3; f++ {
		test.That(t, utils.FileExists(filepath.Join(annotated, fmt.Sprintf("frame%d.png", f))), test.ShouldBeTrue)
	}

	_, _, err = runApp(t, "track", "--project", projPath, "--sequence", "other")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "track", "--project", projPath, "--sequence", "frames", "--targets", "ghost")
	test.That(t, err, test.ShouldNotBeNil)
}
