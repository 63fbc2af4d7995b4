package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/epidata/casepipe/internal/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM,
// letting an in-flight page finish before the run stops.
func SetupSignalHandler(parent context.Context, log *logger.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Warnw("received signal, finishing current page before stopping", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
