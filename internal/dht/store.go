package dht

import "github.com/shog-ai/shoggoth/internal/storeclient"

const storeKey = "dht"

// Store wraps storeclient.Client to read/write the "dht" document
// (spec.md §3). Every operation re-reads from the store — there is no
// in-memory cache, so there is no coherence window (spec.md §5).
type Store struct {
	client *storeclient.Client
}

func NewStore(client *storeclient.Client) *Store {
	return &Store{client: client}
}

// Load returns the current DHT peer list.
func (s *Store) Load() ([]Peer, error) {
	var peers []Peer
	if err := s.client.Get(storeKey, "", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Init writes an empty DHT document if one is not already present.
func (s *Store) Init() error {
	var peers []Peer
	if err := s.client.Get(storeKey, "", &peers); err != nil {
		return err
	}
	if peers == nil {
		return s.client.Set(storeKey, "", []Peer{})
	}
	return nil
}

// Add appends a new peer document to the store.
func (s *Store) Add(p Peer) error {
	return s.client.Append(storeKey, "", p)
}

// Replace overwrites the whole DHT document. Used by the gossip loop
// after computing eviction/insertion/reset and unreachable-count
// increments locally; the gossip loop does not call IncrementCounter.
func (s *Store) Replace(peers []Peer) error {
	return s.client.Set(storeKey, "", peers)
}

// Remove deletes the peer entry with the given node_id.
func (s *Store) Remove(nodeID string) error {
	return s.client.Delete(storeKey, "[?(@.node_id==\""+nodeID+"\")]")
}

// IncrementCounter atomically adds delta to a peer's unreachable_count.
func (s *Store) IncrementCounter(nodeID string, delta float64) error {
	return s.client.Increment(storeKey, "[?(@.node_id==\""+nodeID+"\")].unreachable_count", delta)
}
