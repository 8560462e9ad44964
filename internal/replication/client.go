package replication

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/errs"
	"github.com/shog-ai/shoggoth/internal/pinstore"
)

// FetchTimeout bounds every peer dial made by the replication loops,
// mirroring internal/dht's GossipTimeout (spec.md §9 Open Question 5).
const FetchTimeout = 30 * time.Second

// Client issues the resource-fetching HTTP calls the downloader and
// updater loops need against a remote peer's API.
type Client struct {
	hc *http.Client
}

func NewClient() *Client {
	return &Client{hc: &http.Client{}}
}

// FetchFingerprint retrieves the remote fingerprint for id from peerHost,
// via GET /api/get_fingerprint/{id}.
func (c *Client) FetchFingerprint(ctx context.Context, peerHost, id string) (pinstore.Fingerprint, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerHost+"/api/get_fingerprint/"+id, nil)
	if err != nil {
		return pinstore.Fingerprint{}, errs.Internal("build get_fingerprint request", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return pinstore.Fingerprint{}, errs.NetworkError("GET "+peerHost+"/api/get_fingerprint/"+id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pinstore.Fingerprint{}, errs.NetworkError("get_fingerprint returned non-200", nil)
	}

	var f pinstore.Fingerprint
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return pinstore.Fingerprint{}, errs.ProtocolError("decode fingerprint response", err)
	}
	return f, nil
}

// FetchPins retrieves peerHost's currently advertised pin list via
// GET /api/get_pins, mirroring pins_downloader's per-peer refresh
// step (original_source/src/node/pins/pins.c) that feeds
// db_clear_peer_pins/db_peer_pins_add_profile.
func (c *Client) FetchPins(ctx context.Context, peerHost string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerHost+"/api/get_pins", nil)
	if err != nil {
		return nil, errs.Internal("build get_pins request", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errs.NetworkError("GET "+peerHost+"/api/get_pins", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.NetworkError("get_pins returned non-200", nil)
	}

	var pins []string
	if err := json.NewDecoder(resp.Body).Decode(&pins); err != nil {
		return nil, errs.ProtocolError("decode pins response", err)
	}
	if err := dht.ValidatePins(pins); err != nil {
		return nil, errs.ProtocolError("peer advertised invalid pins", err)
	}
	return pins, nil
}

// ClonedResource is a fetched tarball plus the fingerprint/signature
// headers a peer's /api/clone response carries alongside it.
type ClonedResource struct {
	Tarball     []byte
	Fingerprint pinstore.Fingerprint
	Signature   pinstore.Signature
}

// FetchClone retrieves the full tarball for id from peerHost's
// /api/clone/{id}, reading the fingerprint/signature response headers
// spec.md §4.6 specifies.
func (c *Client) FetchClone(ctx context.Context, peerHost, id string) (*ClonedResource, error) {
	return c.fetchTarball(ctx, peerHost+"/api/clone/"+id)
}

// FetchSubResource retrieves a sub-resource tarball via
// /api/download/{id}/{group}/{res}.
func (c *Client) FetchSubResource(ctx context.Context, peerHost, id, group, res string) (*ClonedResource, error) {
	return c.fetchTarball(ctx, peerHost+"/api/download/"+id+"/"+group+"/"+res)
}

func (c *Client) fetchTarball(ctx context.Context, url string) (*ClonedResource, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Internal("build clone/download request", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errs.NetworkError("GET "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotAcceptable {
		return nil, errs.NetworkError("peer does not hold requested resource (406)", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.NetworkError("clone/download returned unexpected status", nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NetworkError("read clone/download body", err)
	}

	var f pinstore.Fingerprint
	if err := json.Unmarshal([]byte(resp.Header.Get("fingerprint")), &f); err != nil {
		return nil, errs.ProtocolError("decode fingerprint header", err)
	}

	return &ClonedResource{
		Tarball:     body,
		Fingerprint: f,
		Signature:   pinstore.Signature(resp.Header.Get("signature")),
	}, nil
}
