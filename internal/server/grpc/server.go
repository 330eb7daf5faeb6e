// Package grpc serves the standard grpc.health.v1 service. The reported
// status follows a periodic database ping so that orchestrators stop
// routing traffic to a replica that lost its storage.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/usertokens/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall "".
const ServiceName = "usertokens"

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	pinger   Pinger
	interval time.Duration
	health   *health.Server
}

func NewGRPCServer(a string, l logging.Logger, p Pinger, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		pinger:   p,
		interval: interval,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve serves on listen until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)

	s.checkDatabase(ctx)
	go s.watchDatabase(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watchDatabase(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDatabase(ctx)
		}
	}
}

// checkDatabase pings storage once and publishes the result.
func (s *GRPCServer) checkDatabase(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.pinger.PingContext(pctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn(ctx, "database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
