package utils

import (
	"github.com/pkg/errors"
)

// NewShapeError is used when a matrix-like input does not have the required dimensions.
func NewShapeError(name string, rows, cols int, want string) error {
	return errors.Errorf("%s has wrong size %dx%d, expected %s", name, rows, cols, want)
}
