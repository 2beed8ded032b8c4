// Package server runs the add-on's HTTP listener and its drain sequence.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/middleware"
)

const defaultShutdownTimeout = 20 * time.Second

// Server serves the add-on routes behind the middleware chain.
type Server struct {
	cfg    *config.Config
	log    *logging.Logger
	router *http.ServeMux
	hooks  []func()
}

// New creates a server. Routes are registered on Router before Run.
func New(cfg *config.Config, log *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		log:    log.WithComponent("server"),
		router: http.NewServeMux(),
	}
}

// Router returns the mux add-on handlers register on.
func (s *Server) Router() *http.ServeMux {
	return s.router
}

// Handler returns the router wrapped in recovery, request ids, logging and CORS.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(
		s.router,
		middleware.Recovery(s.log),
		middleware.RequestID,
		middleware.Logging(s.log),
		middleware.CORS,
	)
}

// OnShutdown registers fn to run once the listener has drained. Hooks run
// in registration order.
func (s *Server) OnShutdown(fn func()) {
	s.hooks = append(s.hooks, fn)
}

// Run listens on the configured port until SIGINT/SIGTERM or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		s.runHooks()
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then stops accepting,
// waits up to ShutdownTimeout for in-flight requests and runs the shutdown
// hooks. Hooks also run when serving fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.runHooks()

	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()
	s.log.Info("server started", "addr", ln.Addr().String())

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("server draining", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown incomplete", "error", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return defaultShutdownTimeout
}

func (s *Server) runHooks() {
	for _, fn := range s.hooks {
		fn()
	}
}
