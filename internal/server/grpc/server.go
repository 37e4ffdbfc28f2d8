// Package grpc exposes the voice task list over gRPC.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

const stopTimeout = 5 * time.Second

// Server wraps the gRPC server and the TaskVoice service
type Server struct {
	grpcServer *grpc.Server
	service    *TaskVoiceService
	addr       string
	logger     zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Host string
	Port int
}

// NewServer creates a gRPC server serving svc
func NewServer(cfg Config, svc *TaskVoiceService, logger zerolog.Logger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		service:    svc,
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		logger:     logger.With().Str("component", "grpc").Logger(),
	}
	RegisterTaskVoiceServer(s.grpcServer, svc)
	return s
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Run serves until ctx is done, then stops gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop gracefully stops the server, forcing open event streams closed
// after stopTimeout
func (s *Server) Stop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.grpcServer.Stop()
	}
}
