// Command shoggoth is the node's CLI front end: argument parsing and
// process bootstrap, grounded on the teacher's cmd/synnergy/main.go
// (a cobra root command with one subcommand per concern) generalized
// to spec.md §6's subcommand table.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shog-ai/shoggoth/pkg/utils"
)

var version = "0.0.0"

// Global flags shared by every subcommand (spec.md §6: -c, -r).
var (
	flagConfigPath string
	flagRuntimeDir string
)

func main() {
	root := &cobra.Command{
		Use:     "shog",
		Short:   "Shoggoth node",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "path to config.toml (default <runtime>/config.toml)")
	root.PersistentFlags().StringVarP(&flagRuntimeDir, "runtime-dir", "r", defaultRuntimeDir(), "node runtime directory")

	root.AddCommand(
		runCmd(),
		startCmd(),
		stopCmd(),
		restartCmd(),
		statusCmd(),
		logsCmd(),
		idCmd(),
		pinCmd(),
		unpinCmd(),
		cloneCmd(),
		backupCmd(),
		restoreCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultRuntimeDir mirrors the reference's ~/.shoggoth convention,
// overridable by the SHOGGOTH_RUNTIME_DIR environment variable.
func defaultRuntimeDir() string {
	home, err := os.UserHomeDir()
	fallback := ".shoggoth"
	if err == nil {
		fallback = home + "/.shoggoth"
	}
	return utils.EnvOrDefault("SHOGGOTH_RUNTIME_DIR", fallback)
}
