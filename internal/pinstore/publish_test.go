package pinstore

import (
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

	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/storeclient"
	"github.com/shog-ai/shoggoth/internal/testutil"
)

func fakeIndexServer(t *testing.T) (*httptest.Server, *Index) {
	t.Helper()
	var doc []string

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Op    string          `json:"op"`
			Value json.RawMessage `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Op {
		case "get":
			b, _ := json.Marshal(doc)
			w.Write([]byte(`{"ok":true,"value":` + string(b) + `}`))
		case "set":
			var v []string
			json.Unmarshal(req.Value, &v)
			doc = v
			w.Write([]byte(`{"ok":true}`))
		case "append":
			var v string
			json.Unmarshal(req.Value, &v)
			doc = append(doc, v)
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
	return srv, NewIndex(storeclient.New(host, port))
}

func signedFingerprint(t *testing.T, priv *rsa.PrivateKey, shoggothID, hash string, ts time.Time) (Fingerprint, Signature) {
	t.Helper()
	f := Fingerprint{
		PublicKey:  "test-pubkey",
		ShoggothID: shoggothID,
		Hash:       hash,
		Timestamp:  strconv.FormatInt(ts.UnixMilli(), 10),
	}
	sig, err := Sign(priv, f)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return f, sig
}

func TestAcceptNewResource(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	if err := index.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	scratch, _ := sb.MkdirAll("scratch", 0755)
	writeResourceTree(t, scratch)
	hash, err := HashDir(scratch)
	if err != nil {
		t.Fatalf("HashDir: %v", err)
	}

	id := string(identity.ShoggothIDFromTarballHash(hash))
	f, sig := signedFingerprint(t, priv, id, hash, time.Now())

	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})

	result, err := mgr.Accept(scratch, &priv.PublicKey, f, sig)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if result != AcceptNew {
		t.Fatalf("result = %v, want AcceptNew", result)
	}

	if _, err := os.Stat(filepath.Join(pinsDir, id, ".shoggoth", "fingerprint.json")); err != nil {
		t.Fatalf("fingerprint.json missing: %v", err)
	}
	has, err := index.Has(id)
	if err != nil || !has {
		t.Fatalf("expected %s in PinIndex, has=%v err=%v", id, has, err)
	}
}

func TestAcceptRejectsHashMismatch(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	scratch, _ := sb.MkdirAll("scratch", 0755)
	writeResourceTree(t, scratch)

	f, sig := signedFingerprint(t, priv, "SHOGbad", "wronghash", time.Now())

	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})
	if _, err := mgr.Accept(scratch, &priv.PublicKey, f, sig); err == nil {
		t.Fatal("expected rejection on hash mismatch")
	}
}

func TestAcceptRejectsBadSignature(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	otherPriv, _ := rsa.GenerateKey(rand.Reader, 2048)
	scratch, _ := sb.MkdirAll("scratch", 0755)
	writeResourceTree(t, scratch)
	hash, _ := HashDir(scratch)

	f, _ := signedFingerprint(t, priv, "SHOGsig", hash, time.Now())
	_, wrongSig := signedFingerprint(t, otherPriv, "SHOGsig", hash, time.Now())

	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})
	if _, err := mgr.Accept(scratch, &priv.PublicKey, f, wrongSig); err == nil {
		t.Fatal("expected rejection on signature mismatch")
	}
}

func TestAcceptRejectsClockSkew(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	scratch, _ := sb.MkdirAll("scratch", 0755)
	writeResourceTree(t, scratch)
	hash, _ := HashDir(scratch)

	f, sig := signedFingerprint(t, priv, "SHOGskew", hash, time.Now().Add(-10*time.Minute))

	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})
	if _, err := mgr.Accept(scratch, &priv.PublicKey, f, sig); err == nil {
		t.Fatal("expected rejection on clock skew (scenario S6)")
	}
}

func TestAcceptUpdatesOnNewerDifferentHash(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})

	scratch1, _ := sb.MkdirAll("scratch1", 0755)
	writeResourceTree(t, scratch1)
	hash1, _ := HashDir(scratch1)
	id := string(identity.ShoggothIDFromTarballHash(hash1))
	f1, sig1 := signedFingerprint(t, priv, id, hash1, time.Now())
	if _, err := mgr.Accept(scratch1, &priv.PublicKey, f1, sig1); err != nil {
		t.Fatalf("initial accept: %v", err)
	}

	scratch2, _ := sb.MkdirAll("scratch2", 0755)
	if err := os.WriteFile(filepath.Join(scratch2, "c.txt"), []byte("newcontent"), 0644); err != nil {
		t.Fatalf("write c.txt: %v", err)
	}
	hash2, _ := HashDir(scratch2)
	// The id stays the one pinned at first publish even though hash2
	// differs — the update path does not re-derive it (see Accept).
	f2, sig2 := signedFingerprint(t, priv, id, hash2, time.Now().Add(time.Second))

	result, err := mgr.Accept(scratch2, &priv.PublicKey, f2, sig2)
	if err != nil {
		t.Fatalf("update accept: %v", err)
	}
	if result != AcceptUpdated {
		t.Fatalf("result = %v, want AcceptUpdated", result)
	}
	if _, err := os.Stat(filepath.Join(pinsDir, id, "c.txt")); err != nil {
		t.Fatalf("updated content missing: %v", err)
	}
}

func TestAcceptNoChangeWhenNotNewer(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})

	scratch1, _ := sb.MkdirAll("scratch1", 0755)
	writeResourceTree(t, scratch1)
	hash1, _ := HashDir(scratch1)
	id := string(identity.ShoggothIDFromTarballHash(hash1))
	ts := time.Now()
	f1, sig1 := signedFingerprint(t, priv, id, hash1, ts)
	if _, err := mgr.Accept(scratch1, &priv.PublicKey, f1, sig1); err != nil {
		t.Fatalf("initial accept: %v", err)
	}

	scratch2, _ := sb.MkdirAll("scratch2", 0755)
	writeResourceTree(t, scratch2)
	f2, sig2 := signedFingerprint(t, priv, id, hash1, ts.Add(time.Second))

	result, err := mgr.Accept(scratch2, &priv.PublicKey, f2, sig2)
	if err != nil {
		t.Fatalf("re-accept: %v", err)
	}
	if result != AcceptNoChange {
		t.Fatalf("result = %v, want AcceptNoChange (same hash)", result)
	}
}

func TestAcceptRejectsOverResourceSizeCap(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	scratch, _ := sb.MkdirAll("scratch", 0755)
	writeResourceTree(t, scratch)
	hash, _ := HashDir(scratch)
	f, sig := signedFingerprint(t, priv, "SHOGbig", hash, time.Now())

	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{MaxResourceBytes: 1})
	if _, err := mgr.Accept(scratch, &priv.PublicKey, f, sig); err == nil {
		t.Fatal("expected rejection over per-resource size cap")
	}
}

func TestAcceptRejectsShoggothIDMismatchOnNewResource(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	srv, index := fakeIndexServer(t)
	defer srv.Close()
	_ = index.Init()

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	scratch, _ := sb.MkdirAll("scratch", 0755)
	writeResourceTree(t, scratch)
	hash, _ := HashDir(scratch)

	// A brand new resource whose declared shoggoth_id does not match
	// "SHOG" + hash[32:] (scenario S4) must be rejected.
	f, sig := signedFingerprint(t, priv, "SHOGwrongid0000000000000000000000", hash, time.Now())

	pinsDir, _ := sb.MkdirAll("pins", 0755)
	mgr := NewManager(pinsDir, index, SizePolicy{})
	if _, err := mgr.Accept(scratch, &priv.PublicKey, f, sig); err == nil {
		t.Fatal("expected rejection on shoggoth_id/hash mismatch for a new resource")
	}
}
