package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/kv"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/telemetry"
)

// Server adapts kv.Service to DataServiceServer.
type Server struct {
	svc *kv.Service
}

var _ DataServiceServer = (*Server)(nil)

// NewServer wraps svc.
func NewServer(svc *kv.Service) *Server {
	return &Server{svc: svc}
}

// Healthcheck implements DataServiceServer.
func (s *Server) Healthcheck(ctx context.Context, _ *HealthcheckRequest) (*HealthcheckResponse, error) {
	h := s.svc.Healthcheck(ctx)
	return &HealthcheckResponse{IsHealthy: h.IsHealthy, Message: h.Message}, nil
}

// WriteData implements DataServiceServer. A failed store write is reported in the response body.
func (s *Server) WriteData(ctx context.Context, req *WriteDataRequest) (*WriteDataResponse, error) {
	res := s.svc.WriteData(ctx, req.Key, req.Data)
	return &WriteDataResponse{WasSuccessful: res.WasSuccessful, Reply: res.Reply}, nil
}

// ReadData implements DataServiceServer.
func (s *Server) ReadData(ctx context.Context, req *ReadDataRequest) (*ReadDataResponse, error) {
	data, err := s.svc.ReadData(ctx, req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReadDataResponse{Data: data}, nil
}

// ReadArticle implements DataServiceServer.
func (s *Server) ReadArticle(ctx context.Context, req *ReadArticleRequest) (*ReadArticleResponse, error) {
	rec, err := s.svc.ReadArticle(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReadArticleResponse{Article: rec}, nil
}

// toStatus maps service errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, kv.ErrNotText),
		errors.Is(err, article.ErrUnsupportedVersion),
		errors.Is(err, article.ErrMalformed):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewGRPCServer builds a grpc.Server serving svc with the proto codec and the logging, metrics,
// tracing and recovery interceptors.
func NewGRPCServer(svc *kv.Service, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger = logger.Named("rpc")

	base := []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(
			observeInterceptor(logger),
			recoveryInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	RegisterDataServiceServer(srv, NewServer(svc))
	return srv
}

func observeInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	tracer := telemetry.Tracer("rpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := tracer.Start(ctx, info.FullMethod)
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		elapsed := time.Since(start)
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
		telemetry.EndSpan(span, err)
		metrics.ObserveRPC(info.FullMethod, code.String(), elapsed)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", elapsed),
		}
		switch code {
		case codes.OK, codes.NotFound:
			logger.Debug("rpc handled", fields...)
		default:
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in rpc handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// Serve listens on addr and serves srv until ctx is done, then stops gracefully.
func Serve(ctx context.Context, srv *grpc.Server, addr string, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return ServeListener(ctx, srv, lis, logger)
}

// ServeListener serves srv on lis until ctx is done.
func ServeListener(ctx context.Context, srv *grpc.Server, lis net.Listener, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("grpc server shutting down")
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	}
}
