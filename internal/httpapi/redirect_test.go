package httpapi

import (
	"net/http"
	"testing"

	"github.com/shog-ai/shoggoth/internal/dht"
)

// TestCloneRedirectsToAdvertisingPeer is scenario S5 / invariant 7:
// a node that lacks a resource but has a DHT peer advertising it
// responds 302 with a Location pointing at that peer's clone URL.
func TestCloneRedirectsToAdvertisingPeer(t *testing.T) {
	srv, node := newTestServer(t)

	if err := node.Server.DHT.Replace([]dht.Peer{
		{Host: "http://peer-b.invalid", NodeID: "SHOGNpeerb", Pins: []string{"SHOGabc"}},
	}); err != nil {
		t.Fatalf("seed dht: %v", err)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(srv.URL + "/api/clone/SHOGabc")
	if err != nil {
		t.Fatalf("GET /api/clone/SHOGabc: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	want := "http://peer-b.invalid/api/clone/SHOGabc"
	if got := resp.Header.Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

// TestCloneRejectsWhenNoPeerAdvertises is invariant 8: same request
// with no peer advertising the id returns 406.
func TestCloneRejectsWhenNoPeerAdvertises(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/clone/SHOGnowhere")
	if err != nil {
		t.Fatalf("GET /api/clone/SHOGnowhere: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", resp.StatusCode)
	}
}

func TestDownloadRedirectsOnMiss(t *testing.T) {
	srv, node := newTestServer(t)

	if err := node.Server.DHT.Replace([]dht.Peer{
		{Host: "http://peer-c.invalid", NodeID: "SHOGNpeerc", Pins: []string{"SHOGxyz"}},
	}); err != nil {
		t.Fatalf("seed dht: %v", err)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(srv.URL + "/api/download/SHOGxyz/code/foo")
	if err != nil {
		t.Fatalf("GET /api/download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	want := "http://peer-c.invalid/api/download/SHOGxyz/code/foo"
	if got := resp.Header.Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func TestDownloadRejectsInvalidGroup(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/download/SHOGxyz/not-a-group/foo")
	if err != nil {
		t.Fatalf("GET /api/download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406 for invalid group", resp.StatusCode)
	}
}

func TestCORSHeaderOnErrorResponse(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/clone/SHOGnowhere")
	if err != nil {
		t.Fatalf("GET /api/clone/SHOGnowhere: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want \"*\"", got)
	}
}
