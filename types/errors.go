package types

import (
	"errors"
	"fmt"
)

// All of these are fatal for a run; callers wrap them with the offending value
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUnsupportedType   = fmt.Errorf("%w: unsupported type", ErrConfiguration)
	ErrFileFormat        = fmt.Errorf("%w: malformed file", ErrConfiguration)
	ErrDomainBounds      = errors.New("coordinate outside of the domain")
	ErrIndexRange        = errors.New("index out of range")
	ErrSolverConvergence = errors.New("linear solver failed to converge")
)
