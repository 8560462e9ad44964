package main

import (
	"fmt"
	"os"

	"github.com/shog-ai/shoggoth/internal/config"
	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/shoggoth"
)

// resolveLayout builds a Layout from the global -r flag.
func resolveLayout() shoggoth.Layout {
	return shoggoth.NewLayout(flagRuntimeDir)
}

// loadConfig reads config.toml from the global -c flag or the
// runtime directory's default location. Mirrors init_node_runtime's
// requirement that the config file already exist — this CLI does not
// synthesize one, matching spec.md §1's "CLI is an external
// collaborator" framing.
func loadConfig(layout shoggoth.Layout) (*config.Config, error) {
	path := flagConfigPath
	if path == "" {
		path = layout.ConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %q does not exist", path)
	}
	return config.Load(path)
}

// loadOrGenerateIdentity reads the node's RSA key pair from
// layout.KeysDir(), generating a fresh pair on first run, mirroring
// init_node_runtime's "generate keys if absent" behavior.
func loadOrGenerateIdentity(layout shoggoth.Layout) (priv []byte, pub []byte, err error) {
	if err := os.MkdirAll(layout.KeysDir(), 0755); err != nil {
		return nil, nil, fmt.Errorf("create keys dir: %w", err)
	}

	_, privErr := os.Stat(layout.PrivateKeyPath())
	_, pubErr := os.Stat(layout.PublicKeyPath())
	if privErr != nil || pubErr != nil {
		if err := identity.GenerateKeyPair(layout.PrivateKeyPath(), layout.PublicKeyPath()); err != nil {
			return nil, nil, fmt.Errorf("generate key pair: %w", err)
		}
	}

	priv, err = os.ReadFile(layout.PrivateKeyPath())
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}
	pub, err = os.ReadFile(layout.PublicKeyPath())
	if err != nil {
		return nil, nil, fmt.Errorf("read public key: %w", err)
	}
	return priv, pub, nil
}
