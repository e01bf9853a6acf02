// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package health exposes the adapter session state over the standard gRPC
// health protocol. A Connected session reports SERVING; every other state
// reports NOT_SERVING.
package health

import (
	"log/slog"
	"net"

	"clustersql/cli/internal/cluster"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	service string
	logger  *slog.Logger
}

// NewServer registers the health service. service is the name reported next
// to the overall ("") status.
func NewServer(service string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
		service: service,
		logger:  logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Listener returns a session state listener that keeps the health status in
// step with the session.
func (s *Server) Listener() cluster.StateListener {
	return func(state cluster.State, _ error) {
		if state == cluster.Connected {
			s.set(healthpb.HealthCheckResponse_SERVING)
			return
		}
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	if s.service != "" {
		s.health.SetServingStatus(s.service, status)
	}
}

// Serve blocks serving on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("health server listening", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and stops the server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
