package domain

import (
	"errors"
	"fmt"
)

// NotFound also covers entities owned by another resident so callers cannot
// probe for other residents' data.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

func NotFoundError(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
