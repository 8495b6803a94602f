package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/fruitstock/sav-uploader/internal/logging"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDLen   = 128
	panicStackBufSize = 4096
)

// Headers checked, in order, for an upstream request ID.
var requestIDHeaders = []string{requestIDHeader, "X-Correlation-ID"}

// requestID reuses an upstream ID when one is present and generates a UUID
// otherwise. The ID is echoed in the response and attached to the context
// so every log record of the request carries it.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string

		for _, h := range requestIDHeaders {
			if v := r.Header.Get(h); v != "" && len(v) <= maxRequestIDLen {
				id = v
				break
			}
		}

		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		level := slog.LevelInfo

		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		s.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", s.now().Sub(start)),
			slog.String("remote", r.RemoteAddr),
		)
	})
}

// recoverer turns a handler panic into a JSON 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(rec)
			}

			stack := make([]byte, panicStackBufSize)
			stack = stack[:runtime.Stack(stack, false)]

			s.logger.ErrorContext(r.Context(), "panic recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(stack)),
			)

			s.writeError(w, r, http.StatusInternalServerError, msgServerError, fmt.Errorf("panic: %v", rec))
		}()

		next.ServeHTTP(w, r)
	})
}
