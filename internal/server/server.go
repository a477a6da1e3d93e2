package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pondworks/duckmcp/internal/config"
	"github.com/pondworks/duckmcp/internal/metrics"
)

type Server struct {
	cfg  Config
	log  *slog.Logger
	mcp  *mcp.Server
	http *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "DuckDB MCP Server",
		Version: cfg.Version,
	}, nil)

	s := &Server{
		cfg: cfg,
		log: cfg.Logger,
		mcp: mcpServer,
	}

	if err := s.registerQueryTool(); err != nil {
		return nil, fmt.Errorf("failed to register query tool: %w", err)
	}
	s.registerPrompt()

	if cfg.Transport != config.TransportStdio {
		s.http = s.newHTTPServer()
	}

	return s, nil
}

func (s *Server) newHTTPServer() *http.Server {
	var handler http.Handler
	switch s.cfg.Transport {
	case config.TransportSSE:
		handler = mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
			return s.mcp
		}, nil)
	default:
		handler = mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
			return s.mcp
		}, &mcp.StreamableHTTPOptions{
			Stateless:    true, // Auto-initialize sessions, no manual initialize required
			JSONResponse: s.cfg.JSONResponse,
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.metricsMiddleware(handler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write healthz response", "error", err)
		}
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// The connector opens lazily and every invocation is independent, so
		// the server is ready as soon as it is listening.
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write readyz response", "error", err)
		}
	})

	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		// Add timeouts to prevent connection issues from affecting the server
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		// Set MaxHeaderBytes to prevent abuse
		MaxHeaderBytes: 1 << 20, // 1MB
	}
}

// Run serves the configured transport until the context is canceled. For
// stdio it blocks on the client session; for sse and stream it runs the HTTP
// server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Transport == config.TransportStdio {
		s.log.Info("server: mcp stdio transport running")
		return s.mcp.Run(ctx, &mcp.StdioTransport{})
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: mcp http transport listening",
		"transport", string(s.cfg.Transport),
		"listenAddr", s.cfg.ListenAddr,
	)

	select {
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

// metricsMiddleware wraps an HTTP handler with metrics collection
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := s.cfg.Clock.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := s.cfg.Clock.Since(startTime).Seconds()
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
