package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrEmptyIndex        = errors.New("index is empty")
	ErrEmptyBatch        = errors.New("empty batch")
	ErrCorruptIndex      = errors.New("corrupt index snapshot")
	ErrEngineNotReady    = errors.New("engine not ready")
	ErrSynthesisFailure  = errors.New("synthesis failed")
)

// DimensionMismatchError reports a vector whose length differs from the
// index dimensionality.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index has %d, vector has %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
