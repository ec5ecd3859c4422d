package statusd

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusServiceName is the gRPC service exposing run status. Requests are
// google.protobuf.Empty and responses google.protobuf.Struct carrying the
// same fields as the HTTP endpoints.
const StatusServiceName = "smbo.v1.Status"

const (
	MethodGetRun  = "/" + StatusServiceName + "/GetRun"
	MethodGetBest = "/" + StatusServiceName + "/GetBest"
)

type statusService interface {
	GetRun(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetBest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var statusServiceDesc = grpc.ServiceDesc{
	ServiceName: StatusServiceName,
	HandlerType: (*statusService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRun", Handler: unaryHandler(MethodGetRun, statusService.GetRun)},
		{MethodName: "GetBest", Handler: unaryHandler(MethodGetBest, statusService.GetBest)},
	},
	Streams: []grpc.StreamDesc{},
}

type unaryMethod func(statusService, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(statusService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(statusService), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GetRun returns the run status.
func (s *Server) GetRun(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.runStatus())
}

// GetBest returns the best observation, or NotFound before the first valid
// evaluation.
func (s *Server) GetBest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	best := s.best()
	if best == nil {
		return nil, status.Error(codes.NotFound, errNoBest)
	}
	return toStruct(best)
}

// toStruct converts v through its JSON form so that the gRPC and HTTP
// surfaces share field names.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}
