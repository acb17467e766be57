// Package api exposes the evasion coordinator over HTTP so drivers written in
// other languages can prepare sessions and steer proxy rotation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/evasion"
	"github.com/xkilldash9x/mimic/internal/proxypool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionFunc prepares a new session. Each call is expected to use its own
// coordinator.
type SessionFunc func(ctx context.Context) (*evasion.SessionConfig, error)

// ProxyRotator is the proxy facade of the coordinator.
type ProxyRotator interface {
	GetBestProxy() (proxypool.Record, error)
	ShouldRotate() bool
	RotateProxy() (proxypool.Record, error)
}

// Server serves the control API.
type Server struct {
	cfg      config.APIConfig
	sessions SessionFunc
	proxies  ProxyRotator
	log      *zap.Logger
	started  time.Time
}

// NewServer creates a server. proxies may be nil when proxy use is disabled.
func NewServer(cfg config.APIConfig, sessions SessionFunc, proxies ProxyRotator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		proxies:  proxies,
		log:      logger.Named("api"),
		started:  time.Now(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireJWT([]byte(s.cfg.JWTSecret)))
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/proxies/best", s.handleBestProxy)
		r.Get("/proxies/rotation", s.handleRotation)
		r.Post("/proxies/rotate", s.handleRotate)
	})
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	if s.cfg.JWTSecret == "" {
		s.log.Warn("API authentication is disabled; set api.jwt_secret to require bearer tokens.")
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Control API listening.", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Shutting down control API.")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control API: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("Handled request.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sc, err := s.sessions(r.Context())
	if err != nil {
		s.log.Error("Failed to prepare session.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not prepare session")
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleBestProxy(w http.ResponseWriter, _ *http.Request) {
	if s.proxies == nil {
		writeError(w, http.StatusNotFound, proxypool.ErrNoProxyAvailable.Error())
		return
	}
	rec, err := s.proxies.GetBestProxy()
	s.writeProxy(w, rec, err)
}

type rotationResponse struct {
	ShouldRotate bool `json:"shouldRotate"`
}

func (s *Server) handleRotation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rotationResponse{ShouldRotate: s.proxies != nil && s.proxies.ShouldRotate()})
}

func (s *Server) handleRotate(w http.ResponseWriter, _ *http.Request) {
	if s.proxies == nil {
		writeError(w, http.StatusNotFound, proxypool.ErrNoProxyAvailable.Error())
		return
	}
	rec, err := s.proxies.RotateProxy()
	s.writeProxy(w, rec, err)
}

type proxyResponse struct {
	proxypool.Record
	Address string `json:"address"`
}

func (s *Server) writeProxy(w http.ResponseWriter, rec proxypool.Record, err error) {
	switch {
	case errors.Is(err, proxypool.ErrNoProxyAvailable):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.log.Error("Proxy lookup failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "proxy lookup failed")
	default:
		writeJSON(w, http.StatusOK, proxyResponse{Record: rec, Address: rec.Address()})
	}
}
