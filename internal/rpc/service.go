// Package rpc exposes the data service over gRPC.
package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "swarm.SwarmDataService"

// Full method names.
const (
	MethodHealthcheck = "/" + ServiceName + "/Healthcheck"
	MethodWriteData   = "/" + ServiceName + "/WriteData"
	MethodReadData    = "/" + ServiceName + "/ReadData"
	MethodReadArticle = "/" + ServiceName + "/ReadArticle"
)

// DataServiceServer is implemented by the gRPC handler.
type DataServiceServer interface {
	Healthcheck(context.Context, *HealthcheckRequest) (*HealthcheckResponse, error)
	WriteData(context.Context, *WriteDataRequest) (*WriteDataResponse, error)
	ReadData(context.Context, *ReadDataRequest) (*ReadDataResponse, error)
	ReadArticle(context.Context, *ReadArticleRequest) (*ReadArticleResponse, error)
}

// ServiceDesc registers DataServiceServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Healthcheck", MethodHealthcheck, DataServiceServer.Healthcheck),
		unary("WriteData", MethodWriteData, DataServiceServer.WriteData),
		unary("ReadData", MethodReadData, DataServiceServer.ReadData),
		unary("ReadArticle", MethodReadArticle, DataServiceServer.ReadArticle),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swarm.proto",
}

// RegisterDataServiceServer attaches srv to s.
func RegisterDataServiceServer(s grpc.ServiceRegistrar, srv DataServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](
	name, fullMethod string,
	call func(DataServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DataServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DataServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
