package dht

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// GossipTimeout bounds every peer dial made by the gossip loop.
// spec.md §9 Open Question 5 notes the reference relies on the HTTP
// client's default timeout and recommends an explicit deadline; this
// implementation adds one.
const GossipTimeout = 5 * time.Second

// PeerClient issues the HTTP calls the gossip loop needs against a
// remote peer's API.
type PeerClient struct {
	hc *http.Client
}

func NewPeerClient() *PeerClient {
	return &PeerClient{hc: &http.Client{}}
}

func (pc *PeerClient) getJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.Internal("marshal peer request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, reader)
	if err != nil {
		return errs.Internal("build peer request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := pc.hc.Do(req)
	if err != nil {
		return errs.NetworkError("GET "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.NetworkError(fmt.Sprintf("GET %s returned status %d", url, resp.StatusCode), nil)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NetworkError("read peer response", err)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errs.ProtocolError("decode peer response from "+url, err)
		}
	}
	return nil
}

// FetchDHT sends GET /api/get_dht to peerHost, with our manifest as
// the request body (it serves double duty as an announce), and
// returns the peer's DHT view.
func (pc *PeerClient) FetchDHT(ctx context.Context, peerHost string, self Manifest) ([]Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, GossipTimeout)
	defer cancel()

	var peers []Peer
	if err := pc.getJSON(ctx, peerHost+"/api/get_dht", self, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// FetchManifest sends GET /api/get_manifest to peerHost to learn its
// node_id and public_key.
func (pc *PeerClient) FetchManifest(ctx context.Context, peerHost string, self Manifest) (Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, GossipTimeout)
	defer cancel()

	var m Manifest
	if err := pc.getJSON(ctx, peerHost+"/api/get_manifest", self, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
