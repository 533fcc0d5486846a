package status

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/repository/snapshot"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "home_guard.v1.StatusService"
	// GetStatusMethod is the full method name used by clients.
	GetStatusMethod = "/" + ServiceName + "/GetStatus"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Snapshot() *sensor.Snapshot
}

// StatusServer is the server API of the status service.
type StatusServer interface {
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// Server implements StatusServer.
type Server struct {
	// service provides the current snapshot.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetStatus returns the current snapshot.
func (s *Server) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.service.Snapshot()
	if snap == nil {
		return &structpb.Struct{}, nil
	}

	st, err := snapshot.ToStruct(snap)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, "unable to encode snapshot")
	}

	return st, nil
}

// ServiceDesc describes the status service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Same shape as generated descriptors.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "home_guard/v1/status.proto",
}

// Register adds the status service to a gRPC server.
func Register(registrar grpc.ServiceRegistrar, srv StatusServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func getStatusHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(StatusServer).GetStatus(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetStatusMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).GetStatus(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}

// NewHealth creates a health server reporting SERVING for the whole process
// and for every named component.
func NewHealth(components ...string) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	for _, name := range components {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}

	return hs
}

// SetServing flips the health of a named component.
func SetServing(hs *health.Server, name string, serving bool) {
	if hs == nil {
		return
	}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}

	hs.SetServingStatus(name, st)
}

// Serve runs the status and health services on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, service Service, hs *health.Server) error {
	grpcServer := grpc.NewServer()
	Register(grpcServer, NewServer(service))

	if hs != nil {
		healthpb.RegisterHealthServer(grpcServer, hs)
	}

	logger.InfoKV(ctx, "Status endpoint listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down status endpoint")

		if hs != nil {
			hs.Shutdown()
		}

		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Status endpoint stopped")

	return nil
}

// ListenAndServe opens a TCP listener on address and calls Serve.
func ListenAndServe(ctx context.Context, address string, service Service, hs *health.Server) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return Serve(ctx, lis, service, hs)
}
