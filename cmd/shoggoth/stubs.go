package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pinCmd, unpinCmd, cloneCmd, backupCmd and restoreCmd are thin stubs:
// spec.md §1 treats the CLI front end as an external collaborator,
// only its interface is specified. A full implementation would drive
// the running node's HTTP API (the chunked publish protocol, the
// clone route, and shell glue around the runtime directory for
// backup/restore); these commands document that surface without
// duplicating httpapi's logic behind a second entry point.

func pinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <path> <label>",
		Short: "publish a local directory to the running node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("pin: not implemented, drive the node's /api/publish* endpoints directly for now")
		},
	}
}

func unpinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <id>",
		Short: "remove a locally held pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("unpin: not implemented, remove the pin directory and PinIndex entry directly for now")
		},
	}
}

func cloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <url> <label>",
		Short: "fetch and pin a resource from a peer node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("clone: not implemented, GET the peer's /api/clone/<id> endpoint directly for now")
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "archive the runtime directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("backup: not implemented, archive the runtime directory with your own tooling for now")
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <archive>",
		Short: "restore a runtime directory from an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("restore: not implemented, extract the archive over the runtime directory with your own tooling for now")
		},
	}
}
