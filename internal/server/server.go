// Package server exposes the uploader over HTTP: a multipart upload endpoint
// returning the share link as JSON, a few informational routes, and the
// optional single-page client in production.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fruitstock/sav-uploader/internal/config"
	"github.com/fruitstock/sav-uploader/internal/cors"
	"github.com/fruitstock/sav-uploader/internal/uploader"
)

const serviceName = "sav-uploader"

// http.Server timeouts. Read and write are generous because a request
// carries the whole file and waits for the Graph round trip.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 2 * time.Minute
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 120 * time.Second
	maxHeaderBytes    = 1 << 20
)

// Submitter stores one file and returns its share link.
type Submitter interface {
	Upload(ctx context.Context, req uploader.Request) (*uploader.Result, error)
}

// Server routes HTTP requests to a Submitter. Upload limits, allowed types,
// the default folder and the environment are read from the Holder on every
// request; the CORS allow-list is swapped by Reconfigure.
type Server struct {
	holder  *config.Holder
	submit  Submitter
	logger  *slog.Logger
	version string
	now     func() time.Time

	origins atomic.Pointer[cors.Matcher]
	static  http.HandlerFunc
	handler http.Handler
}

// New builds the router. static_dir is read once here; a reload does not
// change which directory is served.
func New(holder *config.Holder, submit Submitter, version string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		holder:  holder,
		submit:  submit,
		logger:  logger,
		version: version,
		now:     time.Now,
	}

	cfg := holder.Config()
	if err := s.Reconfigure(cfg); err != nil {
		return nil, err
	}

	if cfg.Server.IsProduction() && cfg.Server.StaticDir != "" {
		s.static = s.spaHandler(cfg.Server.StaticDir)
	}

	s.handler = s.routes()

	return s, nil
}

// Reconfigure applies the parts of cfg that are cached by the server. On
// error the previous allow-list stays in effect.
func (s *Server) Reconfigure(cfg *config.Config) error {
	m, err := cors.Compile(cfg.Server.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("server: allowed origins: %w", err)
	}

	s.origins.Store(m)

	return nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) matcher() *cors.Matcher {
	return s.origins.Load()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(s.recoverer)
	r.Use(cors.Middleware(s.matcher, cors.DefaultOptions))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/test", s.handleTest)
		r.Post("/upload", s.handleUpload)
		r.Post("/upload-onedrive", s.handleUpload)
	})

	// Older clients post here directly.
	r.Post("/upload-onedrive", s.handleUpload)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	return r
}

// ListenAndServe serves on addr until ctx is canceled, then drains
// in-flight requests for up to server.shutdown_timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("address", ln.Addr().String()),
			slog.String("environment", s.holder.Config().Server.Environment),
			slog.String("version", s.version),
		)

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.holder.Config().Server.ShutdownTimeoutDuration()
	s.logger.Info("shutting down server", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	s.logger.Info("shutdown completed")

	return nil
}
