/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package grpc serves the gRPC health service for the bridge.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/carverauto/devicebridge/pkg/logger"
)

// ServiceName is the health service name reported for the device listener.
const ServiceName = "devicebridge"

const shutdownTimer = 5 * time.Second

var errServerNotListening = errors.New("health server is not listening")

// ServerOption is a function type that modifies Server configuration.
type ServerOption func(*Server)

// Server wraps a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	srv               *grpc.Server
	healthCheck       *health.Server
	addr              string
	logger            logger.Logger
	mu                sync.Mutex
	lis               net.Listener
	telemetryDisabled bool
}

// WithTelemetryDisabled disables OpenTelemetry stats handling for the server.
func WithTelemetryDisabled() ServerOption {
	return func(s *Server) {
		s.telemetryDisabled = true
	}
}

// NewServer creates a health server for addr. Every service starts NOT_SERVING.
func NewServer(addr string, log logger.Logger, opts ...ServerOption) *Server {
	s := &Server{
		addr:   addr,
		logger: log,
	}

	for _, opt := range opts {
		opt(s)
	}

	defaultOpts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if !s.telemetryDisabled {
		defaultOpts = append(defaultOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	s.srv = grpc.NewServer(defaultOpts...)
	s.healthCheck = health.NewServer()
	s.healthCheck.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.healthCheck.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	healthpb.RegisterHealthServer(s.srv, s.healthCheck)

	return s
}

// Listen binds the health address.
func (s *Server) Listen(ctx context.Context) error {
	lc := &net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lis == nil {
		return nil
	}

	return s.lis.Addr()
}

// Serve blocks until Stop is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	lis := s.lis
	s.mu.Unlock()

	if lis == nil {
		return errServerNotListening
	}

	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

// SetServing flips the bridge service between SERVING and NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.healthCheck.SetServingStatus("", status)
	s.healthCheck.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and gracefully stops the server,
// forcing it down once ctx or the shutdown timer expires.
func (s *Server) Stop(ctx context.Context) {
	s.healthCheck.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, shutdownTimer)
	defer cancel()

	done := make(chan struct{})

	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("gRPC health server shutdown timed out, forcing stop")
		s.srv.Stop()
	}
}
