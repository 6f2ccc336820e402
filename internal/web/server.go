package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// shutdownGrace is how long in-flight requests get to finish once the
// serve context is cancelled. Pipelines past this point run to completion
// anyway; only their responses are lost.
const shutdownGrace = 10 * time.Second

// Server runs the HTTP surface until its context is cancelled.
type Server struct {
	httpServer *http.Server
}

func NewServer(listen string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              listen,
			Handler:           handler,
			ReadHeaderTimeout: 30 * time.Second,
		},
	}
}

// Run blocks serving requests. Returns nil on graceful shutdown after ctx
// cancellation, the listen error otherwise.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	slog.InfoContext(ctx, "http listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
