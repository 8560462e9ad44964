package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/pinstore"
)

// GetFingerprint serves GET /api/get_fingerprint/{id}: the fingerprint
// JSON of a locally held pin, or 406 if this node does not hold it.
func (s *Server) GetFingerprint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	fp, ok, err := s.Manager.LocalFingerprint(id)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not read fingerprint: "+err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotAcceptable, "resource not held by this node")
		return
	}

	body, err := fp.CanonicalBytes()
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not encode fingerprint: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// redirectOrReject implements spec.md §4.6's redirect-on-miss: if a
// peer advertises id, respond 302 with Location set to that peer's
// equivalent URL path; otherwise 406 (invariant 7).
func (s *Server) redirectOrReject(w http.ResponseWriter, r *http.Request, id, path string) bool {
	peers, err := s.DHT.Load()
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not consult dht: "+err.Error())
		return true
	}
	holders := dht.PeersWithPin(peers, id)
	if len(holders) == 0 {
		writeError(w, http.StatusNotAcceptable, "resource not found on this node or any known peer")
		return true
	}
	w.Header().Set("Location", holders[0].Host+path)
	w.WriteHeader(http.StatusFound)
	return true
}

// Clone serves GET /api/clone/{id}: the pin's tarball bytes plus
// fingerprint/signature response headers, or redirect-on-miss.
func (s *Server) Clone(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pinDir := filepath.Join(s.Manager.PinsDir, id)

	if _, err := os.Stat(pinDir); err != nil {
		s.redirectOrReject(w, r, id, "/api/clone/"+id)
		return
	}

	fp, sig, err := pinstore.ReadFingerprintFiles(filepath.Join(pinDir, ".shoggoth"))
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not read local fingerprint: "+err.Error())
		return
	}
	fpJSON, err := fp.CanonicalBytes()
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not encode fingerprint: "+err.Error())
		return
	}

	if err := os.MkdirAll(s.Ctx.Layout.TmpDir(), 0755); err != nil {
		writeError(w, http.StatusNotAcceptable, "could not prepare tmp dir: "+err.Error())
		return
	}
	staging, err := os.MkdirTemp(s.Ctx.Layout.TmpDir(), id+".clone-*")
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not stage clone: "+err.Error())
		return
	}
	defer os.RemoveAll(staging)

	if err := pinstore.CopyTreeExcluding(pinDir, staging, []string{".shoggoth"}); err != nil {
		writeError(w, http.StatusNotAcceptable, "could not stage clone: "+err.Error())
		return
	}

	w.Header().Set("fingerprint", string(fpJSON))
	w.Header().Set("signature", string(sig))
	w.Header().Set("Content-Type", "application/octet-stream")
	if err := pinstore.PackTarball(w, staging); err != nil {
		s.log().Errorf("clone: packing tarball for %s: %v", id, err)
	}
}
