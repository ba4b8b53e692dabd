// Package statusapi exposes a small local HTTP surface for a running batch
// watcher: health, readiness against the backend, Prometheus metrics, the
// mirrored queue and recent notifications.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/metrics"
)

const (
	defaultReadyTimeout = 3 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// QueueSource returns the mirrored queue.
type QueueSource interface {
	Snapshot() media.QueueSnapshot
}

// NotificationSource returns recent notifications, oldest first.
type NotificationSource interface {
	Recent() []media.Notification
}

// TransferSource reports transfers waiting for a worker.
type TransferSource interface {
	Pending() int
}

// Pinger checks the backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the data sources. Any source may be nil.
type Config struct {
	Queue         QueueSource
	Notifications NotificationSource
	Transfers     TransferSource
	Backend       Pinger
	ReadyTimeout  time.Duration
	Logger        *zap.Logger
}

// Server serves the status routes.
type Server struct {
	router chi.Router
	cfg    Config
	logger *zap.Logger
}

// New constructs a Server with middleware and routes.
func New(cfg Config) *Server {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger.Named("statusapi")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/queue", s.queue)
		r.Get("/notifications", s.notifications)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return s.Serve(ctx, ln)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Backend == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadyTimeout)
	defer cancel()
	if err := s.cfg.Backend.Ping(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, jobapi.ErrorMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) queue(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue mirror not running")
		return
	}
	resp := queueResponse{QueueSnapshot: s.cfg.Queue.Snapshot()}
	if resp.Items == nil {
		resp.Items = []media.BatchItem{}
	}
	if s.cfg.Transfers != nil {
		n := s.cfg.Transfers.Pending()
		resp.TransfersPending = &n
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type queueResponse struct {
	media.QueueSnapshot
	TransfersPending *int `json:"transfers_pending,omitempty"`
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	out := []media.Notification{}
	if s.cfg.Notifications != nil {
		out = append(out, s.cfg.Notifications.Recent()...)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(out) {
			out = out[len(out)-limit:]
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

type requestIDKey struct{}

// RequestID returns the id assigned by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
