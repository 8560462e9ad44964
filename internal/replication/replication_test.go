package replication

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/pinstore"
	"github.com/shog-ai/shoggoth/internal/storeclient"
	"github.com/shog-ai/shoggoth/internal/testutil"
)

// jsonStoreServer backs both the "dht" and "pins" documents, enough to
// drive dht.Store and pinstore.Index against the same fake KV store.
func jsonStoreServer(t *testing.T) (*httptest.Server, *storeclient.Client) {
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
	return srv, storeclient.New(host, port)
}

// fakeResourcePeer serves /api/get_fingerprint/{id} and /api/clone/{id}
// for a single resource, signed by priv. If id is empty, it is derived
// from the resource's own content hash (scenario S4's formula) instead
// of being caller-chosen, for tests where the resource is brand new
// rather than an update of an existing stable id. Returns the id
// actually served, alongside the server.
func fakeResourcePeer(t *testing.T, id string, priv *rsa.PrivateKey, pub string, tree map[string]string, ts time.Time) (*httptest.Server, string) {
	t.Helper()

	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })

	dir, _ := sb.MkdirAll("resource", 0755)
	for name, content := range tree {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	hash, err := pinstore.HashDir(dir)
	if err != nil {
		t.Fatalf("HashDir: %v", err)
	}
	if id == "" {
		id = string(identity.ShoggothIDFromTarballHash(hash))
	}

	f := pinstore.Fingerprint{
		PublicKey:  pub,
		ShoggothID: id,
		Hash:       hash,
		Timestamp:  strconv.FormatInt(ts.UnixMilli(), 10),
	}
	sig, err := pinstore.Sign(priv, f)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	fpJSON, err := f.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}

	var tarball bytes.Buffer
	if err := pinstore.PackTarball(&tarball, dir); err != nil {
		t.Fatalf("PackTarball: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/get_fingerprint/"+id, func(w http.ResponseWriter, r *http.Request) {
		w.Write(fpJSON)
	})
	mux.HandleFunc("/api/clone/"+id, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("fingerprint", string(fpJSON))
		w.Header().Set("signature", string(sig))
		w.Write(tarball.Bytes())
	})
	return httptest.NewServer(mux), id
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func msString(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10)
}

func newPubKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	stripped := identity.StripPublicKey(identity.PublicKeyPEM(&priv.PublicKey))
	return priv, stripped
}
