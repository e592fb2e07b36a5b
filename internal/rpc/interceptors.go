package rpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries a caller-chosen request id; the server echoes it
// back in the response header and generates one when absent.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by LoggingInterceptor.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

// LoggingInterceptor assigns a request id, attaches a request-scoped logger
// to the context and logs start/end of every call.
func LoggingInterceptor(base zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		rid := incomingRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, rid))
		l := base.With().Str("request_id", rid).Str("method", info.FullMethod).Logger()
		ctx = context.WithValue(l.WithContext(ctx), requestIDKey{}, rid)

		start := time.Now()
		l.Info().Msg("rpc start")
		resp, err := handler(ctx, req)
		code := status.Code(err)
		var ev *zerolog.Event
		switch code {
		case codes.OK:
			ev = l.Info()
		case codes.Internal, codes.Unknown, codes.DataLoss:
			ev = l.Error().Err(err)
		default:
			ev = l.Warn().Err(err)
		}
		ev.Str("code", code.String()).Dur("dur", time.Since(start)).Msg("rpc end")
		return resp, err
	}
}

// RecoveryInterceptor turns a panic inside a call into codes.Internal.
func RecoveryInterceptor(base zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				base.Error().Str("method", info.FullMethod).Bytes("stack", debug.Stack()).Msgf("panic: %v", r)
				err = status.Errorf(codes.Internal, "panic recovered: %v", r)
			}
		}()
		return handler(ctx, req)
	}
}
