// Package shoggoth wires the node together: it defines the Context
// struct threaded through every handler and loop (spec.md §9 "Global
// mutable state" — the reference uses a singleton node-context; this
// rewrite passes the equivalent struct explicitly instead).
package shoggoth

import (
	"crypto/rsa"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/shog-ai/shoggoth/internal/config"
	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/storeclient"
)

// Context bundles everything a handler or background loop needs:
// config, store client handle, key material, logger and the shutdown
// flag. Constructed once at startup and passed explicitly everywhere.
type Context struct {
	Config *config.Config
	Layout Layout
	Log    *logrus.Logger
	Store  *storeclient.Client

	NodeID     identity.NodeID
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	PublicPEM  string // stripped public key, as hashed for NodeID

	shouldExit int32
	done       chan struct{}
}

// New constructs a Context. done is closed by the supervisor when
// shutdown begins; loops select on it to stop promptly.
func New(cfg *config.Config, layout Layout, log *logrus.Logger, store *storeclient.Client,
	priv *rsa.PrivateKey, pub *rsa.PublicKey, strippedPub string) *Context {
	return &Context{
		Config:     cfg,
		Layout:     layout,
		Log:        log,
		Store:      store,
		NodeID:     identity.NodeIDFromPublicKey(strippedPub),
		PrivateKey: priv,
		PublicKey:  pub,
		PublicPEM:  strippedPub,
		done:       make(chan struct{}),
	}
}

// RequestShutdown sets the should_exit flag and closes Done(). Safe to
// call more than once.
func (c *Context) RequestShutdown() {
	if atomic.CompareAndSwapInt32(&c.shouldExit, 0, 1) {
		close(c.done)
	}
}

// ShouldExit reports whether shutdown has been requested. The
// background loops observe shutdown through Done() instead, checking
// it both before and after every sleep.
func (c *Context) ShouldExit() bool {
	return atomic.LoadInt32(&c.shouldExit) == 1
}

// Done returns a channel closed when shutdown is requested, for use in
// select statements alongside a ticker.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// PublicHost returns the URL this node advertises to peers.
func (c *Context) PublicHost() string {
	if c.Config.Network.PublicHost != "" {
		return c.Config.Network.PublicHost
	}
	return c.Config.Network.Host
}
