package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shog-ai/shoggoth/internal/shoggoth"
)

// startCmd forks a detached `shog run` as the node service process and
// records its pid, mirroring start_node_monitor/node_service_pid.txt
// in original_source/src/node/node.c.
func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the node as a background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := resolveLayout()
			if pid, alive := runningPID(layout); alive {
				return fmt.Errorf("node already running, pid %d", pid)
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve own executable: %w", err)
			}
			runArgs := []string{"run", "-r", flagRuntimeDir}
			if flagConfigPath != "" {
				runArgs = append(runArgs, "-c", flagConfigPath)
			}

			if err := os.MkdirAll(layout.NodeDir(), 0755); err != nil {
				return fmt.Errorf("create node dir: %w", err)
			}
			logFile, err := os.OpenFile(layout.NodeLogFile(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("open node log file: %w", err)
			}

			child := exec.Command(self, runArgs...)
			child.Stdout = logFile
			child.Stderr = logFile
			if err := child.Start(); err != nil {
				return fmt.Errorf("start node process: %w", err)
			}

			if err := os.WriteFile(layout.NodePidFile(), []byte(strconv.Itoa(child.Process.Pid)), 0644); err != nil {
				return fmt.Errorf("write node_service_pid.txt: %w", err)
			}
			go child.Wait() // reap on exit, mirroring sigchld_handler

			fmt.Printf("node started, pid %d\n", child.Process.Pid)
			return nil
		},
	}
}

// stopCmd signals the running node process to shut down.
func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop the running node process",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := resolveLayout()
			pid, alive := runningPID(layout)
			if !alive {
				return fmt.Errorf("node service is not running")
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal process %d: %w", pid, err)
			}
			fmt.Printf("sent stop signal to pid %d\n", pid)
			return nil
		},
	}
}

// restartCmd stops, waits briefly, then starts the node again.
func restartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "restart the node process",
	}
	stop, start := stopCmd(), startCmd()
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if err := stop.RunE(c, args); err != nil {
			fmt.Fprintln(os.Stderr, "stop:", err)
		}
		time.Sleep(2 * time.Second)
		return start.RunE(c, args)
	}
	return cmd
}

// logsCmd prints the tail of the node service's log file.
func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "print the node service's recent log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := resolveLayout()
			data, err := os.ReadFile(layout.NodeLogFile())
			if err != nil {
				return fmt.Errorf("read node log file: %w", err)
			}
			lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
			const tailLines = 200
			if len(lines) > tailLines {
				lines = lines[len(lines)-tailLines:]
			}
			fmt.Println(strings.Join(lines, "\n"))
			return nil
		},
	}
}

// runningPID reads node_service_pid.txt and reports whether that
// process currently exists, mirroring the reference's kill(pid, 0)
// liveness check.
func runningPID(layout shoggoth.Layout) (int, bool) {
	data, err := os.ReadFile(layout.NodePidFile())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	return pid, proc.Signal(syscall.Signal(0)) == nil
}
