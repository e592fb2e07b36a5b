package rpc

import (
	"context"

	"google.golang.org/grpc"

	"predictd/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "predictd.v1.Predictor"

// Full method names. RunLiteModel is kept for callers written against the
// lite fixture; both reach the same handler.
const (
	RunModelMethod     = "/" + ServiceName + "/RunModel"
	RunLiteModelMethod = "/" + ServiceName + "/RunLiteModel"
)

// PredictorServer is the one operation the service exposes.
type PredictorServer interface {
	RunModel(ctx context.Context, req *types.RunModelRequest) (*types.RunModelResponse, error)
}

// PredictorServiceDesc declares the service without generated stubs; the
// messages are plain Go structs carried by the predictd codec.
var PredictorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunModel", Handler: runModelHandler(RunModelMethod)},
		{MethodName: "RunLiteModel", Handler: runModelHandler(RunLiteModelMethod)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "predictd/v1/predictor",
}

// RegisterPredictorServer registers srv on s.
func RegisterPredictorServer(s grpc.ServiceRegistrar, srv PredictorServer) {
	s.RegisterService(&PredictorServiceDesc, srv)
}

func runModelHandler(fullMethod string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(types.RunModelRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return srv.(PredictorServer).RunModel(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return srv.(PredictorServer).RunModel(ctx, req.(*types.RunModelRequest))
		}
		return interceptor(ctx, in, info, handler)
	}
}
