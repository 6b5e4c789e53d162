package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/archive"
	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/kv"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/store"
)

// maxBodyBytes caps a PUT body.
const maxBodyBytes = 4 << 20

// PageReader reads archived pages.
type PageReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Server wires HTTP handlers to the data service.
type Server struct {
	router        chi.Router
	svc           *kv.Service
	store         store.Store
	pages         PageReader
	archivePrefix string
	logger        *zap.Logger
}

// Option configures optional Server routes.
type Option func(*Server)

// WithArchive serves archived pages written under prefix from pages.
func WithArchive(pages PageReader, prefix string) Option {
	return func(s *Server) {
		s.pages = pages
		s.archivePrefix = prefix
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc *kv.Service, st store.Store, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		svc:    svc,
		store:  st,
		logger: logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Put("/data/{key}", s.writeData)
		r.Get("/data/{key}", s.readData)
		r.Get("/articles/{id}", s.readArticle)
		r.Get("/pages/{run}/{id}", s.readPage)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Healthcheck(r.Context()))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Len(r.Context())
	if err != nil {
		s.logger.Warn("store not ready", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "entries": n})
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large or unreadable")
		return
	}
	if !utf8.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be utf-8 text")
		return
	}

	res := s.svc.WriteData(r.Context(), []byte(key), string(body))
	if !res.WasSuccessful {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) readData(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}
	data, err := s.svc.ReadData(r.Context(), []byte(key))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"data": data})
}

func (s *Server) readArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.svc.ReadArticle(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) readPage(w http.ResponseWriter, r *http.Request) {
	if s.pages == nil {
		writeError(w, http.StatusNotFound, "page archive disabled")
		return
	}
	run, ok := pathSegment(w, r, "run")
	if !ok {
		return
	}
	id, ok := pathSegment(w, r, "id")
	if !ok {
		return
	}
	body, err := s.pages.Get(r.Context(), archive.PageKey(s.archivePrefix, run, id))
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return
	case errors.Is(err, archive.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("read archived page failed", zap.String("run", run), zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// pathSegment is pathParam restricted to a single relative path element.
func pathSegment(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, ok := pathParam(w, r, name)
	if !ok {
		return "", false
	}
	if v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return v, true
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return v, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, kv.ErrNotText),
		errors.Is(err, article.ErrUnsupportedVersion),
		errors.Is(err, article.ErrMalformed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "store timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs an http.Server for handler on addr until ctx is done, then shuts it down within
// shutdownTimeout (10s when zero).
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
