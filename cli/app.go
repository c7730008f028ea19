// Package cli contains the markertrack command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/markertrack/positioning"
)

const (
	debugFlag = "debug"

	projectFlag  = "project"
	sequenceFlag = "sequence"
	targetsFlag  = "targets"
	outFlag      = "out"
	annotateFlag = "annotate"
	configFlag   = "config"
	traceFlag    = "trace-alignment"

	warpFlag = "warp"
	refFlag  = "ref"

	cameraFlag     = "camera"
	cameraNameFlag = "camera-name"
	pointsFlag     = "points"
	methodFlag     = "method"
	parallelFlag   = "parallel"

	nameFlag       = "name"
	patternFlag    = "pattern"
	startFlag      = "start"
	countFlag      = "count"
	imageFlag      = "image"
	rectFlag       = "rect"
	rectMatrixFlag = "rect-matrix"
	originFlag     = "origin"
	refMatrixFlag  = "ref-matrix"
	radiusFlag     = "circle-mask"
	sizeFlag       = "size"
	pointFlag      = "point"
	valuesFlag     = "values"
)

var app = &cli.App{
	Name:            "markertrack",
	Usage:           "track image targets, decompose warps and position tracked points",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "track",
			Usage: "track project targets through a file sequence",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     projectFlag,
					Aliases:  []string{"p"},
					Usage:    "project `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:     sequenceFlag,
					Usage:    "name of the file sequence to track through",
					Required: true,
				},
				&cli.StringSliceFlag{
					Name:  targetsFlag,
					Usage: "comma separated target names, all project targets if unset",
				},
				&cli.StringFlag{
					Name:  outFlag,
					Usage: "write the tracking run to `FILE` as JSON",
				},
				&cli.StringFlag{
					Name:  annotateFlag,
					Usage: "write every frame with the found targets drawn on it to `DIR`",
				},
				&cli.BoolFlag{
					Name:  traceFlag,
					Usage: "log every failed alignment attempt without enabling debug logging elsewhere",
				},
				&cli.StringFlag{
					Name:  configFlag,
					Usage: "JSON `FILE` of tracking attributes overriding the project's",
				},
			},
			Action: TrackAction,
		},
		{
			Name:      "strain",
			Usage:     "decompose a 2x3 or 3x3 warp into rigid motion, strain and hourglass modes",
			UsageText: `markertrack strain --warp "1,0.1,3;0,1,4;0,0,1" [--ref x,y]`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     warpFlag,
					Usage:    "warp rows separated by ';', values by ','",
					Required: true,
				},
				&cli.StringFlag{
					Name:  refFlag,
					Usage: "reference point x,y",
					Value: "0,0",
				},
			},
			Action: StrainAction,
		},
		{
			Name:  "position",
			Usage: "position tracked image points on their constraint planes",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  cameraFlag,
					Usage: "camera model JSON `FILE`",
				},
				&cli.StringFlag{
					Name:  projectFlag,
					Usage: "project `FILE` holding the camera named by --" + cameraNameFlag,
				},
				&cli.StringFlag{
					Name:  cameraNameFlag,
					Usage: "use the project camera `NAME` instead of --" + cameraFlag,
				},
				&cli.StringFlag{
					Name:     pointsFlag,
					Usage:    "JSON `FILE` listing image_point, anchor, v1 and v2 per point",
					Required: true,
				},
				&cli.StringFlag{
					Name:  methodFlag,
					Usage: "newton or downhill",
					Value: string(positioning.MethodNewton),
				},
				&cli.BoolFlag{
					Name:  parallelFlag,
					Usage: "solve points concurrently",
				},
				&cli.StringFlag{
					Name:  outFlag,
					Usage: "write the solutions to `FILE` as JSON",
				},
			},
			Action: PositionAction,
		},
		{
			Name:  "sequence",
			Usage: "print the files of a file sequence",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     patternFlag,
					Usage:    "file name pattern with one integer verb, e.g. img%04d.png",
					Required: true,
				},
				&cli.IntFlag{
					Name:  startFlag,
					Usage: "index of the first file",
				},
				&cli.IntFlag{
					Name:     countFlag,
					Usage:    "number of files",
					Required: true,
				},
			},
			Action: SequenceAction,
		},
		{
			Name:            "project",
			Usage:           "edit a project file",
			HideHelpCommand: true,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     projectFlag,
					Aliases:  []string{"p"},
					Usage:    "project `FILE`, created if missing",
					Required: true,
				},
			},
			Subcommands: []*cli.Command{
				{
					Name:   "show",
					Usage:  "list the project contents",
					Action: ProjectShowAction,
				},
				{
					Name:  "add-sequence",
					Usage: "add a named file sequence",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: nameFlag, Required: true},
						&cli.StringFlag{Name: patternFlag, Required: true, Usage: "file name pattern with one integer verb"},
						&cli.IntFlag{Name: startFlag},
						&cli.IntFlag{Name: countFlag, Required: true},
					},
					Action: ProjectAddSequenceAction,
				},
				{
					Name:  "add-target",
					Usage: "add or replace a named target defined by a region of an image file",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: nameFlag, Required: true},
						&cli.StringFlag{Name: imageFlag, Required: true, Usage: "image `FILE` the target is cut from"},
						&cli.StringFlag{Name: rectFlag, Usage: "template rectangle x0,y0,x1,y1, the full image if unset"},
						&cli.StringFlag{
							Name:  rectMatrixFlag,
							Usage: "template rectangle of the size stored in matrix `NAME`, placed at --" + originFlag,
						},
						&cli.StringFlag{Name: originFlag, Usage: "top left corner x,y of the --" + rectMatrixFlag + " rectangle", Value: "0,0"},
						&cli.StringFlag{Name: refFlag, Usage: "reference point x,y relative to the rectangle, its center if unset"},
						&cli.StringFlag{Name: refMatrixFlag, Usage: "reference point stored in matrix `NAME`"},
						&cli.Float64Flag{Name: radiusFlag, Usage: "mask the template to a circle of this radius around the reference point"},
					},
					Action: ProjectAddTargetAction,
				},
				{
					Name:  "add-camera",
					Usage: "add or replace a named camera model",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: nameFlag, Required: true},
						&cli.StringFlag{Name: cameraFlag, Required: true, Usage: "camera model JSON `FILE`"},
					},
					Action: ProjectAddCameraAction,
				},
				{
					Name:  "add-matrix",
					Usage: "add or replace a named matrix, size or point",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: nameFlag, Required: true},
						&cli.StringFlag{Name: sizeFlag, Usage: "int32 size w,h"},
						&cli.StringFlag{Name: pointFlag, Usage: "float32 point x,y"},
						&cli.StringFlag{Name: valuesFlag, Usage: "float64 matrix, rows separated by ';' and values by ','"},
					},
					Action: ProjectAddMatrixAction,
				},
			},
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
