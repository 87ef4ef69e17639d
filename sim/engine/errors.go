package engine

import "errors"

var (
	// ErrInvalidSize is returned when a grid dimension is not positive
	ErrInvalidSize = errors.New("invalid grid size")
	// ErrInvalidDensity is returned when a density is outside [0,1]
	ErrInvalidDensity = errors.New("invalid density")
	// ErrOutOfBoundsStart is returned when the agent start is off the grid
	ErrOutOfBoundsStart = errors.New("start position out of bounds")
	// ErrDivisionUndefined marks a metric ratio whose denominator is zero
	ErrDivisionUndefined = errors.New("division undefined")
	// ErrInvalidConfig covers the remaining run configuration checks
	ErrInvalidConfig = errors.New("invalid run configuration")
)
