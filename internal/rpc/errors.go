package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"predictd/internal/service"
)

// toStatus maps a service error to a gRPC status. The message is always the
// original err.Error(), unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case service.IsInvalidInput(err), service.IsInvalidModel(err):
		return codes.InvalidArgument
	case service.IsUnsupported(err):
		return codes.Unimplemented
	case service.IsDependencyUnavailable(err):
		return codes.Unavailable
	}
	return codes.Internal
}
