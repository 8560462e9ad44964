package dht

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shog-ai/shoggoth/internal/identity"
)

// Runner runs the gossip loop against a Store, a PeerClient and a
// self-manifest. It is kept decoupled from internal/shoggoth.Context
// so it can be unit tested without the rest of the node wiring.
type Runner struct {
	Store  *Store
	Client *PeerClient
	Self   Manifest
	Log    *logrus.Logger

	AllowPrivateNetwork bool

	// mismatchCount counts manifests whose claimed node_id does not
	// match the hash of their claimed public_key. Per spec.md §9 Open
	// Question 2, the reference does not reject these; this
	// implementation observes them instead of rejecting, to stay
	// interoperable with peers running the reference node.
	mismatchCount int64
}

// MismatchCount returns how many gossiped manifests had a node_id that
// did not match the hash of their claimed public_key.
func (r *Runner) MismatchCount() int64 {
	return atomic.LoadInt64(&r.mismatchCount)
}

// verifyManifest recomputes node_id from public_key and logs (but does
// not reject) a mismatch.
func (r *Runner) verifyManifest(m Manifest) {
	want := identity.NodeIDFromPublicKey(m.PublicKey)
	if string(want) != m.NodeID {
		atomic.AddInt64(&r.mismatchCount, 1)
		r.log().Warnf("dht: manifest node_id %s does not match hash of claimed public_key (want %s)", m.NodeID, want)
	}
}

// Bootstrap seeds the DHT from the configured bootstrap peer list, on
// first run (when the DHT is empty). Invalid seeds are skipped with a
// warning rather than aborting startup.
func (r *Runner) Bootstrap(seeds []string) error {
	peers, err := r.Store.Load()
	if err != nil {
		return err
	}
	if len(peers) > 0 {
		return nil
	}

	for _, seed := range seeds {
		if err := ValidateSeed(seed, r.AllowPrivateNetwork); err != nil {
			r.log().Warnf("bootstrap: skipping invalid seed %s: %v", seed, err)
			continue
		}
		m, err := r.Client.FetchManifest(context.Background(), seed, r.Self)
		if err != nil {
			r.log().Warnf("bootstrap: could not reach seed %s: %v", seed, err)
			continue
		}
		if err := ValidateHost(m.PublicHost); err != nil {
			r.log().Warnf("bootstrap: seed %s advertised invalid public_host: %v", seed, err)
			continue
		}
		r.verifyManifest(m)
		peers = Insert(peers, Peer{Host: m.PublicHost, NodeID: m.NodeID, PublicKey: m.PublicKey})
	}

	return r.Store.Replace(peers)
}

func (r *Runner) log() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

// GossipRound performs one full round of spec.md §4.5 against the
// current DHT view and persists the result. It returns the updated
// peer list for tests/callers that want to inspect it directly.
func (r *Runner) GossipRound(ctx context.Context) ([]Peer, error) {
	peers, err := r.Store.Load()
	if err != nil {
		return nil, err
	}

	for _, p := range peers {
		remoteDHT, err := r.Client.FetchDHT(ctx, p.Host, r.Self)
		if err != nil {
			var evict bool
			peers, evict = IncrementUnreachable(peers, p.NodeID)
			if evict {
				r.log().Infof("dht: evicting peer %s after %d unreachable rounds", p.NodeID, EvictionThreshold)
			} else {
				r.log().Warnf("dht: peer %s unreachable: %v", p.NodeID, err)
			}
			continue
		}

		peers = ResetUnreachable(peers, p.NodeID)

		for _, candidate := range remoteDHT {
			if candidate.NodeID == r.Self.NodeID {
				continue
			}
			if _, known := Find(peers, candidate.NodeID); known {
				continue
			}
			if err := ValidateHost(candidate.Host); err != nil {
				r.log().Warnf("dht: gossiped peer %s has invalid host: %v", candidate.NodeID, err)
				continue
			}

			m, err := r.Client.FetchManifest(ctx, candidate.Host, r.Self)
			if err != nil {
				r.log().Warnf("dht: could not fetch manifest from %s: %v", candidate.Host, err)
				continue
			}
			if err := ValidateHost(m.PublicHost); err != nil {
				r.log().Warnf("dht: peer %s advertised invalid public_host: %v", candidate.NodeID, err)
				continue
			}
			r.verifyManifest(m)
			peers = Insert(peers, Peer{Host: m.PublicHost, NodeID: m.NodeID, PublicKey: m.PublicKey})
		}
	}

	if err := r.Store.Replace(peers); err != nil {
		return peers, err
	}
	return peers, nil
}

// Loop runs GossipRound every interval until done is closed. Checks
// done both before and after the sleep, per spec.md §5.
func (r *Runner) Loop(interval time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if _, err := r.GossipRound(context.Background()); err != nil {
			r.log().Errorf("dht: gossip round failed: %v", err)
		}

		select {
		case <-done:
			return
		case <-time.After(interval):
		}
	}
}
