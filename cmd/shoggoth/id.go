package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shog-ai/shoggoth/internal/identity"
)

// idCmd prints this node's NodeID, generating a key pair first if one
// does not exist yet.
func idCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "print this node's id",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := resolveLayout()
			_, pubPEM, err := loadOrGenerateIdentity(layout)
			if err != nil {
				return err
			}
			stripped := identity.StripPublicKey(string(pubPEM))
			fmt.Println(string(identity.NodeIDFromPublicKey(stripped)))
			return nil
		},
	}
}
