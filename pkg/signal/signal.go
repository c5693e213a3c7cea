// Package signal cancels command contexts on SIGINT and SIGTERM.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clog "github.com/xrsl/jobprep/pkg/log"
)

// WithInterrupt returns a context cancelled on the first SIGINT or SIGTERM.
// A second signal is left to the default handler so a stuck run can still be killed.
func WithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			clog.Warn("interrupted, saving progress", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
