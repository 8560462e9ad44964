package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/shog-ai/shoggoth/internal/pinstore"
)

// resourceGroups are the only group names the reference node accepts
// under a pin, per original_source/src/node/server/api.c.
var resourceGroups = map[string]bool{
	"code":     true,
	"models":   true,
	"datasets": true,
	"papers":   true,
}

// Download serves GET /api/download/{id}/{group}/{res}: a tarball of
// the named sub-resource directory within a pin, or redirect-on-miss
// at the pin level.
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, group, res := vars["id"], vars["group"], vars["res"]

	if !resourceGroups[group] {
		writeError(w, http.StatusNotAcceptable, "invalid group name")
		return
	}

	pinDir := filepath.Join(s.Manager.PinsDir, id)
	if _, err := os.Stat(pinDir); err != nil {
		s.redirectOrReject(w, r, id, "/api/download/"+id+"/"+group+"/"+res)
		return
	}

	targetDir := filepath.Join(pinDir, group, res)
	if _, err := os.Stat(targetDir); err != nil {
		writeError(w, http.StatusNotAcceptable, "the resource was not found")
		return
	}

	if err := os.MkdirAll(s.Ctx.Layout.TmpDir(), 0755); err != nil {
		writeError(w, http.StatusNotAcceptable, "could not prepare tmp dir: "+err.Error())
		return
	}
	staging, err := os.MkdirTemp(s.Ctx.Layout.TmpDir(), id+"."+group+"."+res+"-*")
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not stage download: "+err.Error())
		return
	}
	defer os.RemoveAll(staging)

	if err := pinstore.CopyTreeExcluding(targetDir, staging, nil); err != nil {
		writeError(w, http.StatusNotAcceptable, "could not stage download: "+err.Error())
		return
	}

	// The pin's fingerprint/signature apply to the whole resource, not
	// individual sub-resources (this implementation does not maintain
	// per-group fingerprints, unlike the reference's nested
	// .shoggoth/fingerprints/<res>/ scheme) — still attached here so a
	// downloader can attribute the bytes to a publisher.
	fp, sig, err := pinstore.ReadFingerprintFiles(filepath.Join(pinDir, ".shoggoth"))
	if err == nil {
		if fpJSON, encErr := fp.CanonicalBytes(); encErr == nil {
			w.Header().Set("fingerprint", string(fpJSON))
			w.Header().Set("signature", string(sig))
		}
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := pinstore.PackTarball(w, staging); err != nil {
		s.log().Errorf("download: packing tarball for %s/%s/%s: %v", id, group, res, err)
	}
}
