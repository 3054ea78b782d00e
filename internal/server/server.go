// Package server hosts an http.Handler and reports server failures over a channel.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
)

type Server struct {
	srv    *http.Server
	errCh  chan error
	cancel context.CancelFunc
	log    logr.Logger
}

// New creates Server. Request contexts are derived from ctx and cancelled on Shutdown.
func New(ctx context.Context, addr string, handler http.Handler, log logr.Logger) *Server {
	baseCtx, cancel := context.WithCancel(ctx)

	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: handler,
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadHeaderTimeout: 10 * time.Second,
		},
		errCh:  make(chan error, 1),
		cancel: cancel,
		log:    log,
	}
}

// Start listens on the configured address and serves in a background goroutine.
// It returns the actual listener address, which differs from the configured one for port 0.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %s: %w", s.srv.Addr, err)
	}
	s.log.Info("listening for invocations", "addr", ln.Addr().String())

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			s.log.V(1).Info("http server stopped")

			return
		}
		err = fmt.Errorf("http server failed: %w", err)
		s.log.Error(err, "")
		select {
		case s.errCh <- err:
		default:
		}
	}()

	return ln.Addr(), nil
}

// Err reports a failure of the running server.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Shutdown waits for in-flight invocations until ctx is done, then cancels their contexts.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()

	s.log.V(1).Info("shutting down http server")
	if err := s.srv.Shutdown(ctx); err != nil {
		err = fmt.Errorf("could not gracefully shut down http server: %w", err)
		s.log.Error(err, "")

		return err
	}

	return nil
}
