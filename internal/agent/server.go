package agent

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pkmiec/passenger/internal/config"
	"github.com/pkmiec/passenger/internal/pool"
)

const shutdownTimeout = 10 * time.Second

// Server is the agent's administrative surface: a status HTTP endpoint,
// a Prometheus scrape endpoint and a gRPC health service whose status
// mirrors the pool's life status.
type Server struct {
	cfg    config.AgentConfig
	pool   *pool.Pool
	logger *slog.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer wires the admin server around an existing pool
func NewServer(cfg config.AgentConfig, p *pool.Pool, logger *slog.Logger, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:    cfg,
		pool:   p,
		logger: logger.With("component", "agent"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status.xml", s.handleStatusXML)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.grpcServer = grpc.NewServer()
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// Serve runs the HTTP and gRPC listeners until ctx is cancelled, then
// shuts both down gracefully
func (s *Server) Serve(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return trace.Wrap(err, "listening on %s", s.cfg.ListenAddr)
	}
	grpcLn, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		httpLn.Close()
		return trace.Wrap(err, "listening on %s", s.cfg.GRPCAddr)
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("Admin HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		s.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case err := <-errCh:
			s.shutdown()
			return trace.Wrap(err)
		case <-ticker.C:
			s.publishHealth()
		}
	}
}

// publishHealth mirrors pool life status into the gRPC health service
func (s *Server) publishHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.pool.LifeStatus() == pool.PoolAlive {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

func (s *Server) shutdown() {
	s.health.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown did not complete cleanly", "error", err)
	}
	s.grpcServer.GracefulStop()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.pool.Inspect()))
}

func (s *Server) handleStatusXML(w http.ResponseWriter, r *http.Request) {
	includeSecrets := r.URL.Query().Get("secrets") == "true"
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(s.pool.ToXML(includeSecrets)))
}
