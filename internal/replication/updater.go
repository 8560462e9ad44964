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

// Updater implements spec.md §2.5/§4.6's updater loop: for every
// locally-held pin, ask peers advertising that same pin for their
// fingerprint and fetch+accept whichever is strictly newer.
type Updater struct {
	DHT     *dht.Store
	Index   *pinstore.Index
	Manager *pinstore.Manager
	Client  *Client
	TmpDir  string
	Log     *logrus.Logger
}

func (u *Updater) log() *logrus.Logger {
	if u.Log != nil {
		return u.Log
	}
	return logrus.StandardLogger()
}

// Run performs one updater pass.
func (u *Updater) Run(ctx context.Context) error {
	ids, err := u.Index.Load()
	if err != nil {
		return err
	}
	peers, err := u.DHT.Load()
	if err != nil {
		return err
	}

	for _, id := range ids {
		local, ok, err := u.Manager.LocalFingerprint(id)
		if err != nil {
			u.log().Warnf("updater: reading local fingerprint for %s: %v", id, err)
			continue
		}
		if !ok {
			continue
		}
		localMs, err := local.TimestampMillis()
		if err != nil {
			u.log().Warnf("updater: local fingerprint for %s has bad timestamp: %v", id, err)
			continue
		}

		for _, peer := range dht.PeersWithPin(peers, id) {
			remote, err := u.Client.FetchFingerprint(ctx, peer.Host, id)
			if err != nil {
				u.log().Warnf("updater: fetching fingerprint for %s from %s: %v", id, peer.Host, err)
				continue
			}
			remoteMs, err := remote.TimestampMillis()
			if err != nil {
				continue
			}
			if remoteMs <= localMs || remote.Hash == local.Hash {
				continue
			}

			if err := u.fetchAndAccept(ctx, peer, id); err != nil {
				u.log().Warnf("updater: refreshing %s from %s: %v", id, peer.Host, err)
				continue
			}
			break // refreshed from one peer; re-evaluate on the next pass
		}
	}
	return nil
}

func (u *Updater) fetchAndAccept(ctx context.Context, peer dht.Peer, id string) error {
	cloned, err := u.Client.FetchClone(ctx, peer.Host, id)
	if err != nil {
		return err
	}

	scratch := filepath.Join(u.TmpDir, id+".update")
	defer os.RemoveAll(scratch)

	if err := pinstore.ExtractTarball(bytes.NewReader(cloned.Tarball), scratch); err != nil {
		return err
	}

	pub, err := decodeStrippedPublicKey(cloned.Fingerprint.PublicKey)
	if err != nil {
		return err
	}

	result, err := u.Manager.Accept(scratch, pub, cloned.Fingerprint, cloned.Signature)
	if err != nil {
		return err
	}
	u.log().Infof("updater: %s %s from %s", result, id, peer.Host)
	return nil
}

// Loop runs Run every interval until done is closed, checking done
// both before and after the sleep (spec.md §5).
func (u *Updater) Loop(interval time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := u.Run(context.Background()); err != nil {
			u.log().Errorf("updater: pass failed: %v", err)
		}

		select {
		case <-done:
			return
		case <-time.After(interval):
		}
	}
}
