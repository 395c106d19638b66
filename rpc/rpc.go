package rpc

import (
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/landfluss/logger"
)

// RelayService is the health service name the relay reports under.
const RelayService = "landfluss.Relay"

// Server manages the gRPC listener.
type Server struct {
	listener   net.Listener
	address    string
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer listens on addr and registers the health service.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(RelayService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{
		listener:   listener,
		address:    listener.Addr().String(),
		grpcServer: grpcServer,
		health:     healthServer,
	}, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.address
}

// SetServing flips the reported status of the relay.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.address)
	err := s.grpcServer.Serve(s.listener)
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		logger.Log.Info("RPC server listener closed.")
		return nil
	}
	return err
}

// Stop marks the relay as not serving and stops the server.
func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
