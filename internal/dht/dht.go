// Package dht implements the node's gossiped peer set (spec.md §4.5).
// It is not a distributed hash table in the academic sense: there is
// no routing or lookup by ID, just a gossiped list of peers persisted
// as a single JSON array document in the KV store.
//
// Grounded on original_source/src/node/dht/dht.c for the data shape
// and the private/external IP split, and on
// orbas1-Synnergy/synnergy-network/core/peer_management.go for the
// general shape of a struct wrapping a node's peer set behind a
// mutex-guarded accessor (there adapted from an in-memory libp2p host
// to a store-backed, HTTP-polled list).
package dht

import (
	"net"
	"net/url"
	"strings"

	"github.com/shog-ai/shoggoth/internal/errs"
	"github.com/shog-ai/shoggoth/internal/identity"
)

// EvictionThreshold is the number of consecutive unreachable gossip
// rounds after which a peer is removed from the DHT (spec.md §3).
const EvictionThreshold = 5

// Peer is one DHT entry (spec.md §3).
type Peer struct {
	Host             string   `json:"host"`
	NodeID           string   `json:"node_id"`
	PublicKey        string   `json:"public_key"`
	UnreachableCount int      `json:"unreachable_count"`
	Pins             []string `json:"pins"`
}

// Manifest is what a node presents about itself to peers (used for
// both the get_manifest response and the get_dht announce body).
type Manifest struct {
	NodeID     string `json:"node_id"`
	PublicKey  string `json:"public_key"`
	PublicHost string `json:"public_host"`
}

// ValidateHost reports whether host is a syntactically valid peer URL
// prefix: http(s):// and at least 10 characters (spec.md §3).
func ValidateHost(host string) error {
	if len(host) < 10 {
		return errs.ValidationError("host too short: " + host)
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return errs.ValidationError("host missing http(s):// prefix: " + host)
	}
	if _, err := url.Parse(host); err != nil {
		return errs.ValidationErrorWrap("host is not a valid URL: "+host, err)
	}
	return nil
}

// IsPrivateOrLoopback reports whether host resolves (syntactically, as
// a literal) to a private or loopback IPv4/IPv6 address. Grounded on
// original_source's is_ip_external prefix check, reimplemented against
// net.IP's own range predicates instead of a hand-rolled prefix table.
func IsPrivateOrLoopback(host string) bool {
	u, err := url.Parse(host)
	if err != nil {
		return false
	}
	hostname := u.Hostname()
	ip := net.ParseIP(hostname)
	if ip == nil {
		// Not an IP literal (a DNS hostname) — treated as external,
		// except for the name "localhost".
		return hostname == "localhost"
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// ValidateSeed checks a bootstrap seed URL against spec.md §4.5:
// syntactically valid, and (unless allowPrivateNetwork) not private
// or loopback.
func ValidateSeed(host string, allowPrivateNetwork bool) error {
	if err := ValidateHost(host); err != nil {
		return err
	}
	if !allowPrivateNetwork && IsPrivateOrLoopback(host) {
		return errs.ValidationError("private/loopback host rejected: " + host)
	}
	return nil
}

// ValidatePins reports whether every id in pins is a syntactically
// valid ShoggothID-shaped string (SHOG prefix, hex suffix) and that
// there are no duplicates (spec.md §3 Peer invariants).
func ValidatePins(pins []string) error {
	seen := make(map[string]bool, len(pins))
	for _, p := range pins {
		if err := identity.Validate(p, "SHOG"); err != nil {
			return err
		}
		if seen[p] {
			return errs.ValidationError("duplicate pin id: " + p)
		}
		seen[p] = true
	}
	return nil
}

// Insert adds p to peers, keyed by NodeID (invariant 4: idempotent).
// If a peer with the same NodeID already exists, peers is returned
// unchanged (the existing entry wins; liveness bookkeeping is owned by
// the gossip loop, not by Insert).
func Insert(peers []Peer, p Peer) []Peer {
	for _, existing := range peers {
		if existing.NodeID == p.NodeID {
			return peers
		}
	}
	out := make([]Peer, len(peers), len(peers)+1)
	copy(out, peers)
	return append(out, p)
}

// Remove deletes the peer with the given NodeID, if present.
func Remove(peers []Peer, nodeID string) []Peer {
	out := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.NodeID != nodeID {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the peer with the given NodeID, if present.
func Find(peers []Peer, nodeID string) (Peer, bool) {
	for _, p := range peers {
		if p.NodeID == nodeID {
			return p, true
		}
	}
	return Peer{}, false
}

// IncrementUnreachable bumps a peer's strike count by one and reports
// whether the peer has now crossed EvictionThreshold and should be
// evicted (invariant 5).
func IncrementUnreachable(peers []Peer, nodeID string) (updated []Peer, evict bool) {
	out := make([]Peer, len(peers))
	copy(out, peers)
	for i := range out {
		if out[i].NodeID == nodeID {
			out[i].UnreachableCount++
			if out[i].UnreachableCount >= EvictionThreshold {
				return Remove(out, nodeID), true
			}
			return out, false
		}
	}
	return out, false
}

// ResetUnreachable zeroes a peer's strike count on a successful round.
func ResetUnreachable(peers []Peer, nodeID string) []Peer {
	out := make([]Peer, len(peers))
	copy(out, peers)
	for i := range out {
		if out[i].NodeID == nodeID {
			out[i].UnreachableCount = 0
		}
	}
	return out
}

// PeersWithPin returns the peers that advertise id, used by
// redirect-on-miss (spec.md §4.6).
func PeersWithPin(peers []Peer, id string) []Peer {
	var out []Peer
	for _, p := range peers {
		for _, pin := range p.Pins {
			if pin == id {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
