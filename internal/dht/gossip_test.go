package dht

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shog-ai/shoggoth/internal/storeclient"
)

// storeServer is a minimal fake KV store loopback server that backs a
// single "dht" document, enough to exercise Store+Runner end-to-end.
func storeServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	var doc []Peer

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Op    string          `json:"op"`
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Op {
		case "get":
			b, _ := json.Marshal(doc)
			w.Write([]byte(`{"ok":true,"value":` + string(b) + `}`))
		case "set":
			var peers []Peer
			json.Unmarshal(req.Value, &peers)
			doc = peers
			w.Write([]byte(`{"ok":true}`))
		default:
			w.Write([]byte(`{"ok":false,"error":"unsupported"}`))
		}
	})
	srv := httptest.NewServer(mux)

	host, port := splitURL(t, srv.URL)
	return srv, NewStore(storeclient.New(host, port))
}

func splitURL(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := parseURL(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.host, u.port
}

type hostPort struct {
	host string
	port int
}

func parseURL(rawURL string) (hostPort, error) {
	// http://127.0.0.1:PORT
	var host string
	var portStr string
	rest := rawURL
	const prefix = "http://"
	if len(rest) > len(prefix) {
		rest = rest[len(prefix):]
	}
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == ':' {
			host = rest[:i]
			portStr = rest[i+1:]
			break
		}
	}
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	return hostPort{host: host, port: port}, nil
}

// fakePeerFunc simulates a remote peer node exposing get_dht/get_manifest,
// resolving public_host lazily for the common case where a peer must
// advertise its own httptest URL.
func fakePeerFunc(selfURL func() string, nodeID, publicKey string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/get_manifest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Manifest{NodeID: nodeID, PublicKey: publicKey, PublicHost: selfURL()})
	})
	mux.HandleFunc("/api/get_dht", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Peer{})
	})
	return httptest.NewServer(mux)
}

// TestGossipInsertion exercises spec.md scenario S2.
func TestGossipInsertion(t *testing.T) {
	srv, store := storeServer(t)
	defer srv.Close()

	// peerB's manifest advertises its own test-server URL as public_host,
	// known only once httptest has allocated it — captured via closure.
	var peerB *httptest.Server
	peerB = fakePeerFunc(func() string { return peerB.URL }, "SHOGN...b", "pubkey-b")
	defer peerB.Close()

	// A's DHT starts empty; bootstrap from peerB.
	if err := store.Replace(nil); err != nil {
		t.Fatalf("reset store: %v", err)
	}

	runner := &Runner{Store: store, Client: NewPeerClient(), Self: Manifest{NodeID: "SHOGN...a", PublicHost: "http://a"}, AllowPrivateNetwork: true}
	if err := runner.Bootstrap([]string{peerB.URL}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	peers, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("peers = %+v, want 1 entry", peers)
	}
	if peers[0].NodeID != "SHOGN...b" || peers[0].UnreachableCount != 0 || len(peers[0].Pins) != 0 {
		t.Fatalf("peers[0] = %+v, want node_id SHOGN...b, unreachable_count 0, empty pins", peers[0])
	}
}

// TestGossipEviction exercises spec.md scenario S3.
func TestGossipEviction(t *testing.T) {
	srv, store := storeServer(t)
	defer srv.Close()

	if err := store.Replace([]Peer{{Host: "http://127.0.0.1:1", NodeID: "SHOGN...b"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	runner := &Runner{Store: store, Client: NewPeerClient(), Self: Manifest{NodeID: "SHOGN...a"}}

	for i := 0; i < EvictionThreshold; i++ {
		if _, err := runner.GossipRound(context.Background()); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	peers, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("peers after %d unreachable rounds = %+v, want empty", EvictionThreshold, peers)
	}

	// A 6th round with B still unreachable (no bootstrap, no gossip
	// mention): DHT stays empty — re-entry requires another peer
	// gossiping B or re-bootstrapping.
	if _, err := runner.GossipRound(context.Background()); err != nil {
		t.Fatalf("round 6: %v", err)
	}
	peers, err = store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("peers after round 6 = %+v, want still empty", peers)
	}
}
