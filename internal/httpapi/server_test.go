package httpapi

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/shog-ai/shoggoth/internal/config"
	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/pinstore"
	"github.com/shog-ai/shoggoth/internal/shoggoth"
	"github.com/shog-ai/shoggoth/internal/storeclient"
	"github.com/shog-ai/shoggoth/internal/testutil"
)

// jsonStoreServer is a minimal fake of the KV store's loopback
// protocol, enough to back dht.Store and pinstore.Index in tests
// (mirrors internal/replication's test helper of the same name).
func jsonStoreServer(t *testing.T) *storeclient.Client {
	t.Helper()
	docs := map[string]json.RawMessage{}

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
			v, ok := docs[req.Key]
			if !ok {
				w.Write([]byte(`{"ok":true,"value":null}`))
				return
			}
			w.Write([]byte(`{"ok":true,"value":` + string(v) + `}`))
		case "set":
			docs[req.Key] = req.Value
			w.Write([]byte(`{"ok":true}`))
		case "append":
			var arr []json.RawMessage
			if existing, ok := docs[req.Key]; ok {
				json.Unmarshal(existing, &arr)
			}
			arr = append(arr, req.Value)
			b, _ := json.Marshal(arr)
			docs[req.Key] = b
			w.Write([]byte(`{"ok":true}`))
		default:
			w.Write([]byte(`{"ok":false,"error":"unsupported"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host:port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return storeclient.New(host, port)
}

// testNode bundles everything newTestServer wires up, for assertions.
type testNode struct {
	Server  *Server
	Sandbox *testutil.Sandbox
	PrivKey *rsa.PrivateKey
	PubPEM  string // stripped
}

func newTestServer(t *testing.T) (*httptest.Server, *testNode) {
	t.Helper()

	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	strippedPub := identity.StripPublicKey(identity.PublicKeyPEM(&priv.PublicKey))

	store := jsonStoreServer(t)
	dhtStore := dht.NewStore(store)
	if err := dhtStore.Init(); err != nil {
		t.Fatalf("dht.Init: %v", err)
	}
	index := pinstore.NewIndex(store)
	if err := index.Init(); err != nil {
		t.Fatalf("index.Init: %v", err)
	}

	runtimeDir, _ := sb.MkdirAll("runtime", 0755)
	layout := shoggoth.NewLayout(runtimeDir)

	cfg := config.Default()
	cfg.Network.PublicHost = "http://self.invalid"

	ctx := shoggoth.New(&cfg, layout, nil, store, priv, &priv.PublicKey, strippedPub)

	manager := pinstore.NewManager(layout.PinsDir(), index, pinstore.SizePolicy{})
	uploads := pinstore.NewSessions(layout.TmpDir())

	s := NewServer(ctx, dhtStore, index, manager, uploads, nil)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	return srv, &testNode{Server: s, Sandbox: sb, PrivKey: priv, PubPEM: strippedPub}
}
