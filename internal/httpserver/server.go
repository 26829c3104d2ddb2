// Package httpserver owns the HTTP listener lifecycle: request routing
// for the chat endpoint, liveness/readiness probes, metrics, and
// graceful shutdown. The lifecycle machinery is adapted from the
// reference App type this project grew out of.
package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/falox/observability-assistant-router/internal/agui"
	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/pipeline"
	"github.com/falox/observability-assistant-router/internal/semantic"
)

// Reloader is the subset of config.Reloader[*semantic.Index] the server
// needs: the currently active catalog and index, read atomically.
type Reloader interface {
	Catalog() *config.Catalog
	Index() *semantic.Index
}

// Server owns the chat endpoint mux plus the liveness/readiness/metrics
// auxiliary endpoints, and the graceful-shutdown HTTP lifecycle.
type Server struct {
	mux *http.ServeMux

	pipeline *pipeline.Pipeline
	reloader Reloader
	matcher  *semantic.Matcher

	ready            atomic.Bool
	shuttingDown     atomic.Bool
	preShutdownDelay time.Duration
	shutdownTimeout  time.Duration
	log              *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithPreShutdownDelay sets the delay after flipping readiness and
// before Shutdown begins draining connections.
func WithPreShutdownDelay(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.preShutdownDelay = d
		}
	}
}

// WithShutdownTimeout sets the maximum duration for http.Server.Shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New builds a Server. The server is marked ready immediately since
// reloader and matcher are already constructed by the time the
// process reaches serve; readiness only flips back to false while
// shutting down.
func New(pipe *pipeline.Pipeline, reloader Reloader, matcher *semantic.Matcher, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		pipeline:         pipe,
		reloader:         reloader,
		matcher:          matcher,
		preShutdownDelay: 1 * time.Second,
		shutdownTimeout:  15 * time.Second,
		log:              log,
	}
	s.ready.Store(true)
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /api/agui/chat", s.handleChat)
	s.mux.Handle("GET /healthz", s.healthzHandler())
	s.mux.Handle("GET /readyz", s.readyzHandler())
	s.mux.Handle("GET /metrics", promhttp.Handler())
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// healthzHandler always reports 200 while the process is up, even
// during a graceful drain: liveness means "don't restart me", not
// "route new traffic to me".
func (s *Server) healthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
}

// readyzHandler reports 503 until the catalog/index/matcher are ready,
// and again once shutdown has begun.
func (s *Server) readyzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if s.shuttingDown.Load() || !s.ready.Load() || s.reloader.Catalog() == nil || s.reloader.Index() == nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ready\n")
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	authorization := r.Header.Get("Authorization")

	if s.shuttingDown.Load() || !s.ready.Load() {
		http.Error(w, "service not ready", http.StatusServiceUnavailable)
		return
	}

	var req agui.ChatRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	catalog := s.reloader.Catalog()
	idx := s.reloader.Index()

	if requestID == "" {
		requestID = newRequestID()
	}
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	emit := func(event string, payload []byte) error {
		if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	err := s.pipeline.Run(r.Context(), catalog, idx, s.matcher, &req, requestID, authorization, emit)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoUserMessage) {
			// Headers are already sent as an SSE response at this point only
			// if writing began; since ErrNoUserMessage is returned before any
			// event is emitted, it is still safe to send a plain error status.
			http.Error(w, "no user message found", http.StatusBadRequest)
			return
		}
		s.log.ErrorContext(r.Context(), "chat pipeline terminated with error", "request_id", requestID, "error", err)
	}
}

// ServeContext runs srv until ctx is canceled, then performs a
// graceful drain: flip readiness false, wait preShutdownDelay so load
// balancers observe the change, then call http.Server.Shutdown with a
// bounded timeout.
func (s *Server) ServeContext(ctx context.Context, srv *http.Server) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }

	log := s.log.With(
		slog.String("addr", srv.Addr),
		slog.Int("pid", os.Getpid()),
		slog.String("go_version", runtime.Version()),
	)
	log.Info("server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server start failed", "error", err)
		}
		return err

	case <-ctx.Done():
		start := time.Now()
		s.shuttingDown.Store(true)
		log.Info("shutdown initiated")

		if s.preShutdownDelay > 0 {
			time.Sleep(s.preShutdownDelay)
		}

		drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(drainCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("graceful shutdown incomplete", "error", err)
			_ = srv.Close()
			cancelBase()
		} else {
			cancelBase()
		}

		if err := <-errCh; err != nil {
			log.Error("server exit error after shutdown", "error", err)
			return err
		}

		log.Info("server stopped gracefully", "duration", time.Since(start))
		return nil
	}
}
