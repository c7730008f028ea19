package project

import (
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/markertrack/rimage/transform"
)

// ElementType is the element type a matrix was stored with. Typed accessors only accept the type
// they were stored with.
type ElementType string

// Element types of named matrices.
const (
	Int32   = ElementType("int32")
	Float32 = ElementType("float32")
	Float64 = ElementType("float64")
)

// Matrix is a named row-major matrix.
type Matrix struct {
	Type ElementType `json:"type"`
	Rows int         `json:"rows"`
	Cols int         `json:"cols"`
	Data []float64   `json:"data"`
}

// Validate checks the element type and that the data fills the shape.
func (m Matrix) Validate() error {
	switch m.Type {
	case Int32, Float32, Float64:
	default:
		return errors.Errorf("unknown matrix element type %q", m.Type)
	}
	if m.Rows < 0 || m.Cols < 0 || m.Rows*m.Cols != len(m.Data) {
		return errors.Errorf("matrix of %dx%d cannot hold %d values", m.Rows, m.Cols, len(m.Data))
	}
	return nil
}

func (m Matrix) String() string {
	return fmt.Sprintf("%s %dx%d %v", m.Type, m.Rows, m.Cols, m.Data)
}

// AddMatrix adds or replaces a float64 matrix.
func (p *Project) AddMatrix(name string, m transform.Matrix) error {
	rows, cols := m.Dims()
	values := m.Values()
	if rows*cols != len(values) {
		return errors.Errorf("matrix %q is not rectangular", name)
	}
	p.matrices[name] = Matrix{Type: Float64, Rows: rows, Cols: cols, Data: values}
	return nil
}

// AddSize adds or replaces a size, stored as a 1x2 int32 matrix.
func (p *Project) AddSize(name string, size image.Point) {
	p.matrices[name] = Matrix{Type: Int32, Rows: 1, Cols: 2, Data: []float64{float64(size.X), float64(size.Y)}}
}

// AddPoint adds or replaces a point, stored as a 1x2 float32 matrix.
func (p *Project) AddPoint(name string, pt r2.Point) {
	p.matrices[name] = Matrix{
		Type: Float32, Rows: 1, Cols: 2,
		Data: []float64{float64(float32(pt.X)), float64(float32(pt.Y))},
	}
}

// Matrix returns the named matrix.
func (p *Project) Matrix(name string) (Matrix, error) {
	m, ok := p.matrices[name]
	if !ok {
		return Matrix{}, NewNotFoundError("matrix", name)
	}
	return m, nil
}

// MatAsSize returns the first two values of the named int32 matrix as a size. Missing matrices,
// other element types and matrices with fewer than two values give a zero size.
func (p *Project) MatAsSize(name string) image.Point {
	m, ok := p.matrices[name]
	if !ok || m.Type != Int32 || len(m.Data) < 2 {
		return image.Point{}
	}
	return image.Point{X: int(m.Data[0]), Y: int(m.Data[1])}
}

// MatAsVec2 returns the first two values of the named float32 matrix as a point. Missing matrices,
// other element types and matrices with fewer than two values give the zero point.
func (p *Project) MatAsVec2(name string) r2.Point {
	m, ok := p.matrices[name]
	if !ok || m.Type != Float32 || len(m.Data) < 2 {
		return r2.Point{}
	}
	return r2.Point{X: m.Data[0], Y: m.Data[1]}
}
