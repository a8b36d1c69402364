package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// serveUntilDone runs server until ctx is cancelled, then shuts it down
// gracefully and runs cleanup within timeout.
func serveUntilDone(ctx context.Context, server *http.Server, cleanup func(context.Context) error, timeout time.Duration, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed to start: %w", err)
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		logger.Info().Msg("Shutting down leadsync server")
	}

	// Give outstanding requests a deadline to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := cleanup(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	if runErr == nil {
		logger.Info().Msg("Leadsync server stopped gracefully")
	}
	return runErr
}
