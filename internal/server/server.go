package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/minirx/internal/devtools"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

// DefaultShutdownTimeout bounds graceful shutdown in ListenAndServe.
const DefaultShutdownTimeout = 5 * time.Second

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 1 << 20

// Store is the part of a store the HTTP surface needs.
type Store interface {
	Session() string
	State() ir.State
	Dispatch(action ir.Action)
	UpdateState(state ir.State)
	Settle(ctx context.Context) error
}

var _ Store = (*engine.Store)(nil)

// Server exposes a store over HTTP.
//
// Routes:
//
//	GET  /healthz        liveness
//	GET  /state          whole state tree
//	GET  /state/{key}    one top-level slice
//	PUT  /state          replace the state tree
//	POST /dispatch       dispatch {"type": ..., "payload": ...}
//	GET  /metrics        Prometheus exposition (WithMetrics)
//	GET  /devtools       devtools websocket (WithDevtools)
type Server struct {
	store    Store
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	bridge   *devtools.Bridge
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics mounts /metrics serving g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithDevtools mounts the devtools websocket at /devtools.
func WithDevtools(b *devtools.Bridge) Option {
	return func(s *Server) {
		s.bridge = b
	}
}

// New builds the router for st.
func New(st Store, opts ...Option) *Server {
	s := &Server{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/state", func(r chi.Router) {
		r.Get("/", s.getState)
		r.Put("/", s.putState)
		r.Get("/{key}", s.getSlice)
	})
	r.Post("/dispatch", s.dispatch)

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.bridge != nil {
		r.Method(http.MethodGet, "/devtools", devtools.Handler(s.bridge))
	}
	return r
}

// DispatchRequest is the body of POST /dispatch.
type DispatchRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DispatchResponse is returned by POST /dispatch once the action and the
// effects it started have settled.
type DispatchResponse struct {
	Session string   `json:"session"`
	State   ir.State `json:"state"`
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	writeCanonical(w, http.StatusOK, s.store.State())
}

func (s *Server) getSlice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok := s.store.State().Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no state under key %q", key))
		return
	}
	writeCanonical(w, http.StatusOK, v)
}

func (s *Server) putState(w http.ResponseWriter, r *http.Request) {
	v, err := decodeJSON(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, ok := ir.AsState(v)
	if !ok {
		writeError(w, http.StatusBadRequest, "state must be a JSON object")
		return
	}
	s.store.UpdateState(state)
	if err := s.store.Settle(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("store did not settle: %v", err))
		return
	}
	writeCanonical(w, http.StatusOK, s.store.State())
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "action type is required")
		return
	}

	action := ir.Action{Type: req.Type}
	if len(req.Payload) > 0 {
		payload, err := ir.UnmarshalCanonical(req.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
			return
		}
		action.Payload = payload
	}

	s.store.Dispatch(action)
	if err := s.store.Settle(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("store did not settle: %v", err))
		return
	}
	writeCanonical(w, http.StatusOK, DispatchResponse{
		Session: s.store.Session(),
		State:   s.store.State(),
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, if non-nil, receives the bound address once the
// listener is open.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request) (any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	v, err := ir.UnmarshalCanonical(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

func writeCanonical(w http.ResponseWriter, status int, v any) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
