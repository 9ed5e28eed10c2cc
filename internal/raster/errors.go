package raster

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch is returned when a referenced band or property does not exist.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrEmptyCollection is returned when no image is left after filtering.
	ErrEmptyCollection = errors.New("empty image collection")

	// ErrEmptyInput is returned when a raster or sample set has nothing to process.
	ErrEmptyInput = errors.New("empty input")

	// ErrInsufficientSamples is returned when training data cannot separate at least two classes.
	ErrInsufficientSamples = errors.New("insufficient training samples")

	// ErrAlignment is returned when bands, masks or grids do not share the same dimensions.
	ErrAlignment = errors.New("raster alignment mismatch")
)

// RepositoryError carries a failure from the imagery repository untouched.
type RepositoryError struct {
	Satellite string
	Err       error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("imagery repository query for %s failed: %v", e.Satellite, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}
