// Package project keeps the named inputs of a measurement: image file sequences, targets,
// matrices such as sizes and points, camera models and tracking settings. A project is saved
// as a single JSON file.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/markertrack/logging"
	"go.viam.com/markertrack/rimage/transform"
	"go.viam.com/markertrack/target"
	"go.viam.com/markertrack/tracking"
)

var (
	// ErrNotFound is returned when a named entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when adding an entry whose name is taken.
	ErrExists = errors.New("already exists")
)

// NewNotFoundError returns an error for the missing entry of the given kind.
func NewNotFoundError(kind, name string) error {
	return errors.Wrapf(ErrNotFound, "%s %q", kind, name)
}

// Project is a collection of named measurement inputs.
type Project struct {
	sequences map[string]*tracking.FileSequence
	targets   map[string]*target.Target
	matrices  map[string]Matrix
	cameras   map[string]*transform.CameraModel
	tracking  map[string]interface{}
	logger    logging.Logger
}

// New returns an empty project.
func New(logger logging.Logger) *Project {
	return &Project{
		sequences: map[string]*tracking.FileSequence{},
		targets:   map[string]*target.Target{},
		matrices:  map[string]Matrix{},
		cameras:   map[string]*transform.CameraModel{},
		logger:    logger,
	}
}

// AddFileSequence adds the files named by pattern, which must contain one integer verb, for
// indices start to start+count-1, and returns the number of files. An existing sequence of the
// same name is kept and ErrExists is returned.
func (p *Project) AddFileSequence(name, pattern string, start, count int) (int, error) {
	if _, ok := p.sequences[name]; ok {
		return 0, errors.Wrapf(ErrExists, "file sequence %q", name)
	}
	seq, err := tracking.NewFileSequence(pattern, start, count)
	if err != nil {
		return 0, err
	}
	p.sequences[name] = seq
	return seq.Len(), nil
}

// FileSequence returns the named file sequence.
func (p *Project) FileSequence(name string) (*tracking.FileSequence, error) {
	seq, ok := p.sequences[name]
	if !ok {
		return nil, NewNotFoundError("file sequence", name)
	}
	return seq, nil
}

// AddTarget adds or replaces the named target.
func (p *Project) AddTarget(name string, t *target.Target) {
	p.targets[name] = t
}

// Target returns the named target.
func (p *Project) Target(name string) (*target.Target, error) {
	t, ok := p.targets[name]
	if !ok {
		return nil, NewNotFoundError("target", name)
	}
	return t, nil
}

// Targets returns the named targets in the given order.
func (p *Project) Targets(names ...string) ([]*target.Target, error) {
	out := make([]*target.Target, 0, len(names))
	for _, name := range names {
		t, err := p.Target(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// AddCamera adds or replaces the named camera model after validating it.
func (p *Project) AddCamera(name string, cam *transform.CameraModel) error {
	if err := cam.Validate(); err != nil {
		return errors.Wrapf(err, "camera %q", name)
	}
	p.cameras[name] = cam
	return nil
}

// Camera returns the named camera model.
func (p *Project) Camera(name string) (*transform.CameraModel, error) {
	cam, ok := p.cameras[name]
	if !ok {
		return nil, NewNotFoundError("camera", name)
	}
	return cam, nil
}

// SetTracking replaces the tracking attributes.
func (p *Project) SetTracking(attributes map[string]interface{}) {
	p.tracking = attributes
}

// Tracking returns the tracking attributes.
func (p *Project) Tracking() map[string]interface{} {
	return p.tracking
}

// TrackingConfig decodes the tracking attributes on top of the defaults.
func (p *Project) TrackingConfig() (tracking.Config, error) {
	cfg, unused, err := tracking.DecodeConfig(p.tracking)
	if err != nil {
		return tracking.Config{}, err
	}
	if len(unused) > 0 {
		p.logger.Warnw("ignoring unknown tracking attributes", "attributes", unused)
	}
	return cfg, nil
}

// SequenceNames returns the sorted names of the file sequences.
func (p *Project) SequenceNames() []string {
	return sortedKeys(p.sequences)
}

// TargetNames returns the sorted names of the targets.
func (p *Project) TargetNames() []string {
	return sortedKeys(p.targets)
}

// MatrixNames returns the sorted names of the matrices.
func (p *Project) MatrixNames() []string {
	return sortedKeys(p.matrices)
}

// CameraNames returns the sorted names of the cameras.
func (p *Project) CameraNames() []string {
	return sortedKeys(p.cameras)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// Describe summarizes the named file sequence with its first and last file names.
func (p *Project) Describe(name string) (string, error) {
	seq, err := p.FileSequence(name)
	if err != nil {
		return "", err
	}
	return DescribeSequence(name, seq), nil
}

// DescribeAll summarizes every file sequence, one per line.
func (p *Project) DescribeAll() string {
	lines := lo.Map(p.SequenceNames(), func(name string, _ int) string {
		return DescribeSequence(name, p.sequences[name])
	})
	return strings.Join(lines, "\n")
}

// DescribeSequence summarizes seq. Only the first and the last file are listed.
func DescribeSequence(name string, seq *tracking.FileSequence) string {
	switch n := seq.Len(); n {
	case 1:
		return fmt.Sprintf("%s: 1 file: %s", name, seq.Path(0))
	default:
		return fmt.Sprintf("%s: %d files: %s ... %s", name, n, seq.Path(0), seq.Path(n-1))
	}
}

type projectJSON struct {
	Sequences map[string]*tracking.FileSequence `json:"file_sequences,omitempty"`
	Targets   map[string]*target.Target         `json:"targets,omitempty"`
	Matrices  map[string]Matrix                 `json:"matrices,omitempty"`
	Cameras   map[string]*transform.CameraModel `json:"cameras,omitempty"`
	Tracking  map[string]interface{}            `json:"tracking,omitempty"`
}

// MarshalJSON encodes the project. Targets are stored as records with embedded images.
func (p *Project) MarshalJSON() ([]byte, error) {
	return json.Marshal(projectJSON{
		Sequences: p.sequences,
		Targets:   p.targets,
		Matrices:  p.matrices,
		Cameras:   p.cameras,
		Tracking:  p.tracking,
	})
}

// UnmarshalJSON decodes a project and validates its sequences, matrices and cameras. Targets log
// through the project's logger.
func (p *Project) UnmarshalJSON(data []byte) error {
	var decoded struct {
		projectJSON
		Targets map[string]json.RawMessage `json:"targets,omitempty"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return errors.Wrap(err, "cannot decode project")
	}

	logger := p.logger
	if logger == nil {
		logger = logging.Global()
	}
	np := New(logger)
	for name, seq := range decoded.Sequences {
		if seq == nil {
			return errors.Errorf("file sequence %q is empty", name)
		}
		if err := seq.Validate(); err != nil {
			return errors.Wrapf(err, "file sequence %q", name)
		}
		np.sequences[name] = seq
	}
	for name, rec := range decoded.Targets {
		t := target.New(name, logger)
		if err := json.Unmarshal(rec, t); err != nil {
			return errors.Wrapf(err, "target %q", name)
		}
		if t.Name == "" {
			t.Name = name
		}
		np.targets[name] = t
	}
	for name, m := range decoded.Matrices {
		if err := m.Validate(); err != nil {
			return errors.Wrapf(err, "matrix %q", name)
		}
		np.matrices[name] = m
	}
	for name, cam := range decoded.Cameras {
		if cam == nil {
			return errors.Errorf("camera %q is empty", name)
		}
		if err := np.AddCamera(name, cam); err != nil {
			return err
		}
	}
	np.tracking = decoded.Tracking
	*p = *np
	return nil
}

// Save writes the project to path as indented JSON.
func (p *Project) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads a project written by Save.
func Load(path string, logger logging.Logger) (*Project, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := New(logger)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "cannot load project %q", path)
	}
	return p, nil
}
