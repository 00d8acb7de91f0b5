package server

import (
	"context"
	"errors"
	"log/slog"
)

// Shutdown stops accepting requests, shuts modules down in reverse order and
// closes the backend and the bus.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.E != nil {
		errs = append(errs, s.E.Shutdown(ctx))
	}
	for i := len(s.modules) - 1; i >= 0; i-- {
		errs = append(errs, s.modules[i].Shutdown(ctx))
	}
	if s.Backend != nil {
		errs = append(errs, s.Backend.Close(ctx))
	}
	if s.Bus != nil {
		errs = append(errs, s.Bus.Close())
	}
	s.tracingShutdown()

	err := errors.Join(errs...)
	if err != nil {
		slog.ErrorContext(ctx, "Server shutdown finished with errors", "event", "server_shutdown", "error", err)
	} else {
		slog.InfoContext(ctx, "Server stopped", "event", "server_shutdown")
	}
	return err
}
