package supervisor

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// loopDrainTimeout bounds how long Shutdown waits for background loops
// to observe ShouldExit() before moving on to the store child.
const loopDrainTimeout = 5 * time.Second

// httpShutdownTimeout bounds the graceful HTTP server drain.
const httpShutdownTimeout = 10 * time.Second

// WatchSignals blocks until SIGINT or SIGTERM is received, then runs
// the shutdown sequence against httpServer and returns. Mirrors
// node.c's exit_handler: stop serving, flip should_exit, give
// in-flight work a bounded window, then tear down the store child.
func (sv *Supervisor) WatchSignals(httpServer *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sig := <-sigCh
	sv.log().Infof("supervisor: received %s, shutting down", sig)
	sv.Shutdown(httpServer)
}

// Shutdown runs the graceful shutdown sequence: stop accepting new
// HTTP requests, flip the context's shutdown flag so loops stop at
// their next check, wait a bounded time for them to notice, then
// terminate the store child.
func (sv *Supervisor) Shutdown(httpServer *http.Server) {
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			sv.log().Warnf("supervisor: http server shutdown: %v", err)
		}
	}

	sv.ctx.RequestShutdown()
	time.Sleep(loopDrainTimeout)

	sv.StopStore()
	sv.log().Info("supervisor: shutdown complete")
}

// Fatal logs err with a stack trace and exits the process with status
// 1, the path for errs.Internal failures that leave the node in an
// unrecoverable state (spec.md §4.7).
func (sv *Supervisor) Fatal(err error) {
	sv.log().Errorf("fatal: %v\n%s", err, debug.Stack())
	os.Exit(1)
}

// FatalIfInternal calls Fatal when err is (or wraps) an errs.Internal
// error; other kinds are returned unchanged for the caller to handle.
func FatalIfInternal(sv *Supervisor, err error) error {
	if err == nil {
		return nil
	}
	if errs.Is(err, errs.KindInternal) {
		sv.Fatal(err)
	}
	return err
}
