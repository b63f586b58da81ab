package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"expense-ledger/src/handlers"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// serve runs srv on ln until ctx is done. It returns only after in-flight
// requests have drained and the detached tasks they started have finished.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, deps *handlers.Deps, log zerolog.Logger) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; handlers may still be running
	// and may still detach work.
	<-drained
	deps.Wait()
	return nil
}
