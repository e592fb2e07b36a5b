package engine

import "errors"

var (
	// ErrInvalidModel marks malformed or incompatible model/params buffers.
	ErrInvalidModel = errors.New("invalid model")
	// ErrUnknownInput marks an input name the model does not declare.
	ErrUnknownInput = errors.New("unknown input")
	// ErrUnsupported marks a feature the binding cannot express (a target,
	// a dtype, sequence metadata).
	ErrUnsupported = errors.New("unsupported")
)

// dependencyUnavailableError signals the native runtime is missing from this
// build so callers can report "unavailable" instead of an internal failure.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
