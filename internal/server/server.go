// Package server exposes the calculator over an HTTP JSON API with
// Prometheus metrics and an optional gRPC health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rshade/eap-emissions-calculator/internal/config"
	"github.com/rshade/eap-emissions-calculator/internal/emissions"
	"github.com/rshade/eap-emissions-calculator/internal/export"
	"github.com/rshade/eap-emissions-calculator/internal/store"
)

// Options configures a Server.
type Options struct {
	Calculator *emissions.Calculator

	// Store persists the history after every change. Optional.
	Store store.Store

	Exporter *export.Exporter
	Logger   zerolog.Logger

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64
	RateBurst int

	ShutdownTimeout time.Duration

	CORS config.CORSConfig
}

// Server serves the calculator API.
type Server struct {
	calc     *emissions.Calculator
	store    store.Store
	exporter *export.Exporter
	logger   zerolog.Logger
	limiter  *rateLimiter
	metrics  *metrics
	health   *health.Server

	shutdownTimeout time.Duration

	// mu serializes mutations with their persistence so the stored
	// history is written in the order changes were applied.
	mu sync.Mutex

	handler http.Handler
}

// New creates a Server from opts.
func New(opts Options) *Server {
	s := &Server{
		calc:            opts.Calculator,
		store:           opts.Store,
		exporter:        opts.Exporter,
		logger:          opts.Logger,
		metrics:         newMetrics(),
		health:          health.NewServer(),
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if s.calc == nil {
		s.calc = emissions.NewCalculator(nil)
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = newRateLimiter(opts.RateLimit, burst)
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}
	s.refreshGauges()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.route(mux, "GET /api/v1/sources", "ListSources", s.handleListSources)
	s.route(mux, "GET /api/v1/records", "ListRecords", s.handleListRecords)
	s.route(mux, "POST /api/v1/records", "AddRecord", s.handleAddRecord)
	s.route(mux, "DELETE /api/v1/records", "Reset", s.handleReset)
	s.route(mux, "PATCH /api/v1/records/{id}", "UpdateRecord", s.handleUpdateRecord)
	s.route(mux, "DELETE /api/v1/records/{id}", "RemoveRecord", s.handleRemoveRecord)
	s.route(mux, "GET /api/v1/totals", "GetTotals", s.handleTotals)
	s.route(mux, "GET /api/v1/export", "Export", s.handleExport)
	s.route(mux, "POST /api/v1/export/files", "ExportFile", s.handleExportFile)
	s.route(mux, "GET /api/v1/info", "GetInfo", s.handleInfo)
	s.handler = withCORS(opts.CORS, mux)

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HealthServer returns the gRPC health service so it can be registered on
// an external gRPC server.
func (s *Server) HealthServer() *health.Server {
	return s.health
}

// Serve runs the HTTP API on httpLn and, when grpcLn is not nil, the gRPC
// health service on grpcLn. It returns after ctx is cancelled and both
// servers have shut down.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *grpc.Server
	errCh := make(chan error, 2)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if grpcLn != nil {
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, s.health)
		go func() {
			s.logger.Info().Str("addr", grpcLn.Addr().String()).Msg("Starting gRPC health service")
			if err := grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info().Str("addr", httpLn.Addr().String()).Msg("Starting emissions API")
		if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Shutdown failed")
		if serveErr == nil {
			serveErr = err
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	s.logger.Info().Msg("Server stopped")
	return serveErr
}

// commit writes the current history to the store, if one is configured.
// When the write fails the calculator is rolled back to prev, the history
// before the mutation. Callers hold s.mu.
func (s *Server) commit(ctx context.Context, prev []emissions.Record) error {
	defer s.refreshGauges()
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.calc.Records()); err != nil {
		s.calc.Restore(prev)
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func (s *Server) refreshGauges() {
	totals := s.calc.Totals()
	s.metrics.records.Set(float64(s.calc.Len()))
	s.metrics.totalEnergy.Set(totals.Energy)
	s.metrics.totalEmissions.Set(totals.Emissions)
}
