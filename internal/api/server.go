package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/mirador-hotspot/internal/config"
)

// Server hosts the HTTP JSON API, the gRPC HotspotEngine service and the metrics endpoint.
type Server struct {
	cfg           config.ServerConfig
	logger        *slog.Logger
	grpcServer    *grpc.Server
	grpcListener  net.Listener
	httpServer    *http.Server
	httpListener  net.Listener
	metricsServer *http.Server
	health        *health.Server
}

// NewServer binds the configured listeners. An empty address disables that listener.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, svc HotspotAPI, opts ...grpc.ServerOption) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger}

	apiMux := NewHandler(logger, svc).Routes()
	if cfg.MetricsAddress == "" {
		apiMux.Handle("GET /metrics", promhttp.Handler())
	} else {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{
			Addr:         cfg.MetricsAddress,
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}

	if cfg.HTTPAddress != "" {
		lis, err := net.Listen("tcp", cfg.HTTPAddress)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
		}
		s.httpListener = lis
		// Synchronous clustering requests may run for the whole run timeout.
		s.httpServer = &http.Server{
			Handler:           apiMux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
		}
	}

	if cfg.GRPCAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
		}
		s.grpcListener = lis

		grpc_prometheus.EnableHandlingTimeHistogram()
		serverOpts := []grpc.ServerOption{
			grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
			grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		}
		serverOpts = append(serverOpts, opts...)
		s.grpcServer = grpc.NewServer(serverOpts...)
		s.grpcServer.RegisterService(&HotspotEngineServiceDesc, NewGRPCService(logger, svc))
		grpc_prometheus.Register(s.grpcServer)

		s.health = health.NewServer()
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(s.grpcServer, s.health)

		reflection.Register(s.grpcServer)
	}

	if s.httpServer == nil && s.grpcServer == nil {
		return nil, errors.New("server: no HTTP or gRPC address configured")
	}
	return s, nil
}

// Start serves every configured listener and returns when the first one fails.
func (s *Server) Start() error {
	errCh := make(chan error, 3)
	if s.httpServer != nil {
		go func() {
			s.logger.Info("http server listening", slog.String("address", s.httpListener.Addr().String()))
			if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
				return
			}
			errCh <- nil
		}()
	}
	if s.grpcServer != nil {
		go func() {
			s.logger.Info("grpc server listening", slog.String("address", s.grpcListener.Addr().String()))
			if err := s.grpcServer.Serve(s.grpcListener); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
				return
			}
			errCh <- nil
		}()
	}
	if s.metricsServer != nil {
		go func() {
			s.logger.Info("metrics server listening", slog.String("address", s.metricsServer.Addr))
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
				return
			}
			errCh <- nil
		}()
	}
	return <-errCh
}

// Shutdown attempts a graceful shutdown, falling back to a hard stop when ctx ends.
func (s *Server) Shutdown(ctx context.Context) {
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}
	if s.grpcServer == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// HTTPAddress exposes the bound HTTP listener address (useful for tests).
func (s *Server) HTTPAddress() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddress exposes the bound gRPC listener address (useful for tests).
func (s *Server) GRPCAddress() string {
	if s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

func (s *Server) closeListeners() {
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
}
