package shoggoth

import "path/filepath"

// Layout resolves the well-known paths under a node's runtime directory
// (spec.md §6 "Runtime directory layout").
type Layout struct {
	Runtime string
}

func NewLayout(runtimeDir string) Layout { return Layout{Runtime: runtimeDir} }

func (l Layout) KeysDir() string         { return filepath.Join(l.Runtime, "keys") }
func (l Layout) PrivateKeyPath() string  { return filepath.Join(l.KeysDir(), "private.txt") }
func (l Layout) PublicKeyPath() string   { return filepath.Join(l.KeysDir(), "public.txt") }
func (l Layout) ConfigPath() string      { return filepath.Join(l.Runtime, "config.toml") }
func (l Layout) NodeDir() string         { return filepath.Join(l.Runtime, "node") }
func (l Layout) PinsDir() string         { return filepath.Join(l.NodeDir(), "pins") }
func (l Layout) PinDir(id string) string { return filepath.Join(l.PinsDir(), id) }
func (l Layout) TmpDir() string          { return filepath.Join(l.NodeDir(), "tmp") }
func (l Layout) DBPidFile() string       { return filepath.Join(l.NodeDir(), "db_pid.txt") }
func (l Layout) NodePidFile() string     { return filepath.Join(l.NodeDir(), "node_service_pid.txt") }
func (l Layout) DBLogFile() string       { return filepath.Join(l.NodeDir(), "db_logs.txt") }
func (l Layout) NodeLogFile() string     { return filepath.Join(l.NodeDir(), "node_service_logs.txt") }
func (l Layout) ExplorerDir() string     { return filepath.Join(l.NodeDir(), "explorer") }
func (l Layout) BinDir() string          { return filepath.Join(l.Runtime, "bin") }
func (l Layout) DefaultStoreBinary() string { return filepath.Join(l.BinDir(), "shog-store") }

// PinShoggothDir is the metadata directory within a pin directory.
func (l Layout) PinShoggothDir(id string) string { return filepath.Join(l.PinDir(id), ".shoggoth") }
func (l Layout) FingerprintPath(id string) string {
	return filepath.Join(l.PinShoggothDir(id), "fingerprint.json")
}
func (l Layout) SignaturePath(id string) string {
	return filepath.Join(l.PinShoggothDir(id), "signature.txt")
}
