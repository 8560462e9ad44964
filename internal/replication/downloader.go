package replication

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/pinstore"
)

// Downloader implements spec.md §2.5/§4.6's downloader loop: pull any
// resource a known peer advertises in its DHT pins list that this
// node does not already hold.
type Downloader struct {
	DHT     *dht.Store
	Index   *pinstore.Index
	Manager *pinstore.Manager
	Client  *Client
	TmpDir  string
	Log     *logrus.Logger
}

func (d *Downloader) log() *logrus.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logrus.StandardLogger()
}

// Run performs one downloader pass: for every peer's advertised pin
// not present locally, fetch and accept it. PinIndex is re-read for
// every advertised pin rather than cached, so concurrent
// publishes are picked up without any cross-loop coordination
// (spec.md §5 "Shared resources").
func (d *Downloader) Run(ctx context.Context) error {
	peers, err := d.DHT.Load()
	if err != nil {
		return err
	}

	peers = d.refreshPeerPins(ctx, peers)

	for _, peer := range peers {
		for _, id := range peer.Pins {
			have, err := d.Index.Has(id)
			if err != nil {
				d.log().Warnf("downloader: checking PinIndex for %s: %v", id, err)
				continue
			}
			if have {
				continue
			}

			if err := d.fetchAndAccept(ctx, peer, id); err != nil {
				d.log().Warnf("downloader: fetching %s from %s: %v", id, peer.Host, err)
			}
		}
	}
	return nil
}

// refreshPeerPins asks every known peer for its current pin list and
// overwrites that peer's DHT entry with it, mirroring
// pins_downloader's db_clear_peer_pins + db_peer_pins_add_profile
// (original_source/src/node/pins/pins.c). Without this step
// dht.PeersWithPin never has anything to find, since nothing else
// populates Peer.Pins. A peer that can't be reached keeps its last
// known pin list rather than being zeroed out.
func (d *Downloader) refreshPeerPins(ctx context.Context, peers []dht.Peer) []dht.Peer {
	changed := false
	for i, peer := range peers {
		pins, err := d.Client.FetchPins(ctx, peer.Host)
		if err != nil {
			d.log().Warnf("downloader: fetching pins from %s: %v", peer.Host, err)
			continue
		}
		peers[i].Pins = pins
		changed = true
	}
	if changed {
		if err := d.DHT.Replace(peers); err != nil {
			d.log().Warnf("downloader: persisting refreshed peer pins: %v", err)
		}
	}
	return peers
}

func (d *Downloader) fetchAndAccept(ctx context.Context, peer dht.Peer, id string) error {
	cloned, err := d.Client.FetchClone(ctx, peer.Host, id)
	if err != nil {
		return err
	}

	scratch := filepath.Join(d.TmpDir, id+".download")
	defer os.RemoveAll(scratch)

	if err := pinstore.ExtractTarball(bytes.NewReader(cloned.Tarball), scratch); err != nil {
		return err
	}

	pub, err := decodeStrippedPublicKey(cloned.Fingerprint.PublicKey)
	if err != nil {
		return err
	}

	result, err := d.Manager.Accept(scratch, pub, cloned.Fingerprint, cloned.Signature)
	if err != nil {
		return err
	}
	d.log().Infof("downloader: %s %s from %s", result, id, peer.Host)
	return nil
}

// Loop runs Run every interval until done is closed, checking done
// both before and after the sleep (spec.md §5).
func (d *Downloader) Loop(interval time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := d.Run(context.Background()); err != nil {
			d.log().Errorf("downloader: pass failed: %v", err)
		}

		select {
		case <-done:
			return
		case <-time.After(interval):
		}
	}
}
