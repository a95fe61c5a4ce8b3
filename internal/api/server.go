// Package api hosts the tradewise HTTP and gRPC listeners and manages their
// lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"tradewise/internal/config"
)

// ShutdownTimeout bounds graceful shutdown once the serve context ends.
const ShutdownTimeout = 5 * time.Second

// NewGRPCServer returns a gRPC server with BacktestService, the standard
// health service and reflection registered.
func NewGRPCServer(svc BacktestServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(opts...)
	s.RegisterService(&BacktestServiceDesc, svc)

	hs := health.NewServer()
	hs.SetServingStatus(BacktestServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s, hs
}

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string // empty disables gRPC
	httpSrv  *http.Server
	grpcSrv  *grpc.Server
	health   *health.Server
	log      *slog.Logger
}

// NewServer creates a Server listening on the addresses in cfg. A zero
// GRPCPort or nil svc disables the gRPC listener.
func NewServer(cfg config.Server, handler http.Handler, svc BacktestServer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		httpSrv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.With("component", "api"),
	}
	if svc != nil && cfg.GRPCPort > 0 {
		s.grpcAddr = net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.GRPCPort))
		s.grpcSrv, s.health = NewGRPCServer(svc)
	}
	return s
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	var grpcLn net.Listener
	if s.grpcSrv != nil {
		grpcLn, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves on the given listeners until ctx ends, then shuts down
// gracefully. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server starting", "addr", httpLn.Addr().String())
		if err := s.httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if grpcLn != nil && s.grpcSrv != nil {
		g.Go(func() error {
			s.log.Info("gRPC server starting", "addr", grpcLn.Addr().String())
			if err := s.grpcSrv.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers. In-flight
// gRPC calls are cut off when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcSrv != nil {
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcSrv.Stop()
		}
	}
	return s.httpSrv.Shutdown(ctx)
}
