package service

import (
	"errors"

	"predictd/internal/engine"
	"predictd/pkg/types"
)

// invalidInputError wraps a rejected input tensor with its slot name.
type invalidInputError struct {
	name string
	err  error
}

func (e invalidInputError) Error() string { return "input " + e.name + ": " + e.err.Error() }

func (e invalidInputError) Unwrap() error { return e.err }

// IsInvalidInput reports whether err was caused by a malformed tensor or an
// input name the model does not declare.
func IsInvalidInput(err error) bool {
	var e invalidInputError
	return errors.As(err, &e) ||
		errors.Is(err, types.ErrInvalidTensor) ||
		errors.Is(err, engine.ErrUnknownInput)
}

// IsInvalidModel reports whether err was caused by bad model/params buffers.
func IsInvalidModel(err error) bool { return errors.Is(err, engine.ErrInvalidModel) }

// IsUnsupported reports whether the engine cannot express the request.
func IsUnsupported(err error) bool { return errors.Is(err, engine.ErrUnsupported) }

// IsDependencyUnavailable reports whether the engine is missing from this build.
func IsDependencyUnavailable(err error) bool { return engine.IsDependencyUnavailable(err) }
