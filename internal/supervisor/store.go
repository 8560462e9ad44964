// Package supervisor forks and monitors the KV-store child process,
// probes it for readiness, bootstraps the dht/pins documents, and
// handles the node's graceful shutdown sequence (spec.md §4.7).
// Grounded on original_source/src/node/db/db.c's launch_db (fork +
// redirect stdout/stderr to a log file + pid file) and node.c's
// exit_handler/shoggoth_node_exit (signal-driven shutdown ordering),
// translated from fork/exec/kill/waitpid to os/exec.Cmd + os/signal.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/errs"
	"github.com/shog-ai/shoggoth/internal/pinstore"
	"github.com/shog-ai/shoggoth/internal/shoggoth"
)

// storeReadyTimeout bounds how long WaitForStoreReady waits for the
// store child to answer Ping before giving up.
const storeReadyTimeout = 15 * time.Second

// storeReadyPollInterval is the backoff between Ping attempts.
const storeReadyPollInterval = 200 * time.Millisecond

// storeShutdownTimeout bounds how long StopStore waits for the store
// child to exit after SIGTERM before killing it.
const storeShutdownTimeout = 10 * time.Second

// Supervisor owns the KV-store child process and the node's shutdown
// sequence for everything built on top of it.
type Supervisor struct {
	ctx   *shoggoth.Context
	dbCmd *exec.Cmd
}

// New returns a Supervisor bound to ctx.
func New(ctx *shoggoth.Context) *Supervisor {
	return &Supervisor{ctx: ctx}
}

func (sv *Supervisor) log() *logrus.Logger {
	if sv.ctx.Log != nil {
		return sv.ctx.Log
	}
	return logrus.StandardLogger()
}

// LaunchStore forks the configured KV-store binary with stdout/stderr
// redirected to db_logs.txt and writes db_pid.txt, mirroring
// launch_db's pidfile + log-redirect sequence.
func (sv *Supervisor) LaunchStore() error {
	layout := sv.ctx.Layout
	if err := os.MkdirAll(layout.NodeDir(), 0755); err != nil {
		return errs.IOError("create node runtime dir", err)
	}

	binary := sv.ctx.Config.DB.BinaryPath
	if binary == "" {
		binary = layout.DefaultStoreBinary()
	}

	logFile, err := os.OpenFile(layout.DBLogFile(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errs.IOError("open db log file", err)
	}

	cmd := exec.Command(binary,
		"--host", sv.ctx.Config.DB.Host,
		"--port", strconv.Itoa(sv.ctx.Config.DB.Port),
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return errs.Internal("start store process "+binary, err)
	}
	sv.dbCmd = cmd

	if err := os.WriteFile(layout.DBPidFile(), []byte(strconv.Itoa(cmd.Process.Pid)), 0644); err != nil {
		sv.log().Warnf("supervisor: could not write db_pid.txt: %v", err)
	}

	sv.log().Infof("supervisor: store process started, pid=%d", cmd.Process.Pid)
	return nil
}

// WaitForStoreReady polls Ping until the store answers or the timeout
// elapses.
func (sv *Supervisor) WaitForStoreReady() error {
	deadline := time.Now().Add(storeReadyTimeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if err := sv.ctx.Store.Ping(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(storeReadyPollInterval)
	}
	return errs.StoreUnreachable("store did not become ready", lastErr)
}

// Bootstrap ensures the dht/pins documents exist and reconciles the
// PinIndex against the on-disk pins/ tree, per spec.md §4.7's
// consistency invariant. Mirrors db_verify_data's dht/pins
// initialization and directory walk.
func (sv *Supervisor) Bootstrap(dhtStore *dht.Store, index *pinstore.Index) error {
	if err := dhtStore.Init(); err != nil {
		return err
	}
	if err := index.Init(); err != nil {
		return err
	}

	onDisk, err := pinsOnDisk(sv.ctx.Layout.PinsDir())
	if err != nil {
		return err
	}

	_, stale, err := index.Reconcile(onDisk)
	if err != nil {
		return err
	}
	for _, id := range stale {
		sv.log().Warnf("supervisor: dropping stale pin index entry %s (no directory on disk)", id)
	}
	return nil
}

// pinsOnDisk lists the pin ids present as directories under pinsDir.
func pinsOnDisk(pinsDir string) ([]string, error) {
	if err := os.MkdirAll(pinsDir, 0755); err != nil {
		return nil, errs.IOError("create pins dir", err)
	}
	entries, err := os.ReadDir(pinsDir)
	if err != nil {
		return nil, errs.IOError("read pins dir", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// StopStore sends SIGTERM to the store child and waits up to
// storeShutdownTimeout for it to exit, mirroring
// shoggoth_node_exit's kill+waitpid sequence.
func (sv *Supervisor) StopStore() {
	if sv.dbCmd == nil || sv.dbCmd.Process == nil {
		return
	}

	if err := sv.dbCmd.Process.Signal(syscall.SIGTERM); err != nil {
		sv.log().Warnf("supervisor: signaling store process: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), storeShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sv.dbCmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			sv.log().Warnf("supervisor: store process exited with error: %v", err)
		} else {
			sv.log().Info("supervisor: store process exited cleanly")
		}
	case <-waitCtx.Done():
		sv.log().Warn("supervisor: store process did not exit in time, killing")
		sv.dbCmd.Process.Kill()
		<-done
	}
}
