// Package status serves the watch-mode HTTP endpoints: a liveness
// probe, a scheduler snapshot with the last run's summary, and the
// Prometheus exposition endpoint.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/pipeline"
	"github.com/anstrom/netsweep/internal/scan"
)

const (
	serverShutdownTimeout = 10 * time.Second

	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	idleTimeout    = 60 * time.Second
	maxHeaderBytes = 1 << 20
)

// watchState is the scheduler view exposed on /status.
type watchState interface {
	Running() bool
	Scanning() bool
	LastRun() time.Time
	NextRun() time.Time
	LastResult() *pipeline.Result
}

// WatchStatus describes the scheduler's current state.
type WatchStatus struct {
	Running  bool   `json:"running"`
	Scanning bool   `json:"scanning"`
	LastRun  string `json:"last_run,omitempty"`
	NextRun  string `json:"next_run,omitempty"`
}

// RunSummary condenses the last finished run for /status.
type RunSummary struct {
	RunID     string      `json:"run_id"`
	Status    scan.Status `json:"status"`
	CIDR      string      `json:"cidr"`
	Devices   int         `json:"devices"`
	StartedAt time.Time   `json:"started_at"`
	Duration  string      `json:"duration"`
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Service   string      `json:"service"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Uptime    string      `json:"uptime"`
	Watch     WatchStatus `json:"watch"`
	LastRun   *RunSummary `json:"last_run,omitempty"`
}

// Server is the watch-mode status listener.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        config.StatusConfig
	watch      watchState
	metrics    metrics.MetricsRegistry
	version    string
	startTime  time.Time
	log        *logging.Logger
}

// New builds the status server. The watch state may be nil when no
// scheduler is attached; /status then reports an idle watch section.
func New(cfg config.StatusConfig, watch watchState, version string) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cfg:       cfg,
		watch:     watch,
		metrics:   metrics.Default(),
		version:   version,
		startTime: time.Now(),
		log:       logging.Default().WithComponent("status"),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.Port)),
		Handler:        s.router,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}
	return s
}

// Start serves until the context is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("Starting status server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("status server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	s.log.Info("Stopping status server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}
	return nil
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	s.router.HandleFunc("/status", s.statusHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(
		metrics.GetGlobalMetrics().GetRegistry(),
		promhttp.HandlerOpts{},
	)).Methods("GET")
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.observeMiddleware)

	if s.cfg.CORS.Enabled {
		s.router.Use(handlers.CORS(
			handlers.AllowedOrigins(s.cfg.CORS.AllowedOrigins),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		))
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	response := StatusResponse{
		Service:   "netsweep",
		Version:   s.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	if s.watch != nil {
		response.Watch = WatchStatus{
			Running:  s.watch.Running(),
			Scanning: s.watch.Scanning(),
		}
		if last := s.watch.LastRun(); !last.IsZero() {
			response.Watch.LastRun = last.UTC().Format(time.RFC3339)
		}
		if next := s.watch.NextRun(); !next.IsZero() {
			response.Watch.NextRun = next.UTC().Format(time.RFC3339)
		}
		if result := s.watch.LastResult(); result != nil {
			response.LastRun = &RunSummary{
				RunID:     result.RunID,
				Status:    result.Status,
				CIDR:      result.CIDR,
				Devices:   len(result.Devices),
				StartedAt: result.StartedAt,
				Duration:  result.Duration.Round(time.Millisecond).String(),
			}
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

// recoveryMiddleware turns handler panics into 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("Panic in status handler",
					"panic", rec,
					"path", r.URL.Path,
					"method", r.Method)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observeMiddleware logs each request and feeds both metric surfaces,
// the in-memory registry and the Prometheus collectors.
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", duration,
			"remote_addr", r.RemoteAddr)

		statusLabel := strconv.Itoa(wrapped.statusCode)
		s.metrics.Counter("http_requests_total", metrics.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": statusLabel,
		})
		s.metrics.Histogram("http_request_duration_seconds", duration.Seconds(), metrics.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
		})

		prom := metrics.GetGlobalMetrics()
		prom.IncrementHTTPRequests(r.Method, r.URL.Path, statusLabel)
		prom.RecordHTTPDuration(r.Method, r.URL.Path, duration)
	})
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
