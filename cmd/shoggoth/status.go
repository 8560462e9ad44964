package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd asks a running node's /api/status for its liveness.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the node is running and responsive",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := resolveLayout()
			cfg, err := loadConfig(layout)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Second}
			url := fmt.Sprintf("http://%s:%d/api/status", cfg.Network.Host, cfg.Network.Port)
			resp, err := client.Get(url)
			if err != nil {
				fmt.Println("node is not running")
				return err
			}
			defer resp.Body.Close()

			var status struct {
				NodeID        string `json:"node_id"`
				UptimeSeconds int64  `json:"uptime_seconds"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decode status response: %w", err)
			}

			fmt.Printf("node %s running, uptime %ds\n", status.NodeID, status.UptimeSeconds)
			return nil
		},
	}
}
