package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shog-ai/shoggoth/internal/identity"
	"github.com/shog-ai/shoggoth/internal/pinstore"
)

// decodeFingerprintHeader parses the "fingerprint"/"signature" header
// pair shared by every step of the chunked publish protocol.
func decodeFingerprintHeader(r *http.Request) (pinstore.Fingerprint, pinstore.Signature, error) {
	var f pinstore.Fingerprint
	if err := json.Unmarshal([]byte(r.Header.Get("fingerprint")), &f); err != nil {
		return pinstore.Fingerprint{}, "", err
	}
	return f, pinstore.Signature(r.Header.Get("signature")), nil
}

// PublishNegotiate serves the Negotiate step (spec.md §4.4 step 1):
// validates sizes and the clock-skew window, applies the
// already-published-no-changes shortcut, then allocates an upload
// session and returns its id.
func (s *Server) PublishNegotiate(w http.ResponseWriter, r *http.Request) {
	if !s.Ctx.Config.Pins.AllowPublish {
		writeError(w, http.StatusNotAcceptable, "publishing is disabled on this node")
		return
	}

	shoggothID := r.Header.Get("shoggoth-id")
	uploadSize, err := strconv.ParseInt(r.Header.Get("upload-size"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload-size header")
		return
	}
	chunkCount, err := strconv.Atoi(r.Header.Get("chunk-count"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk-count header")
		return
	}
	chunkSizeLimit, err := strconv.Atoi(r.Header.Get("chunk-size-limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk-size-limit header")
		return
	}
	if err := pinstore.ValidateChunkSizeLimit(chunkSizeLimit); err != nil {
		writeError(w, http.StatusNotAcceptable, err.Error())
		return
	}

	f, sig, err := decodeFingerprintHeader(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fingerprint header: "+err.Error())
		return
	}

	within, err := f.WithinClockSkewWindow(time.Now(), pinstore.ClockSkewWindow)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fingerprint timestamp")
		return
	}
	if !within {
		writeError(w, http.StatusNotAcceptable, "fingerprint timestamp outside allowed window (time traveler)")
		return
	}

	if existing, ok, err := s.Manager.LocalFingerprint(shoggothID); err == nil && ok {
		if existing.Hash == f.Hash {
			writeError(w, http.StatusNotAcceptable, "Your profile has already been published and no changes were detected")
			return
		}
	}

	if s.Manager.Policy.MaxResourceBytes > 0 && uploadSize > s.Manager.Policy.MaxResourceBytes {
		writeError(w, http.StatusNotAcceptable, "profile too large")
		return
	}

	sess, err := s.Uploads.Negotiate(shoggothID, uploadSize, chunkCount, f, sig)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(sess.UploadID))
}

// PublishChunk serves the Chunk step (spec.md §4.4 step 2).
func (s *Server) PublishChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := r.Header.Get("upload-id")
	sess, ok := s.Uploads.Get(uploadID)
	if !ok {
		writeError(w, http.StatusNotAcceptable, "unknown upload-id")
		return
	}

	chunkID, err := strconv.Atoi(r.Header.Get("chunk-id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk-id header")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read chunk body")
		return
	}

	if err := sess.WriteChunk(chunkID, data); err != nil {
		writeError(w, http.StatusNotAcceptable, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PublishFinish serves the Finish step (spec.md §4.4 step 3): assembles
// the received chunks, runs the publish acceptance procedure, and
// destroys the upload session unconditionally before responding.
func (s *Server) PublishFinish(w http.ResponseWriter, r *http.Request) {
	uploadID := r.Header.Get("upload-id")
	sess, ok := s.Uploads.Get(uploadID)
	if !ok {
		writeError(w, http.StatusNotAcceptable, "unknown upload-id")
		return
	}
	defer s.Uploads.Destroy(uploadID)

	if err := os.MkdirAll(s.Ctx.Layout.TmpDir(), 0755); err != nil {
		writeError(w, http.StatusNotAcceptable, "could not prepare tmp dir: "+err.Error())
		return
	}

	tarballPath := filepath.Join(s.Ctx.Layout.TmpDir(), uploadID+".tar.gz")
	if err := sess.AssembleTarball(tarballPath); err != nil {
		os.Remove(tarballPath)
		writeError(w, http.StatusNotAcceptable, err.Error())
		return
	}
	defer os.Remove(tarballPath)

	scratchDir := filepath.Join(s.Ctx.Layout.TmpDir(), uploadID+".scratch")
	defer os.RemoveAll(scratchDir)

	f, err := os.Open(tarballPath)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not reopen assembled tarball: "+err.Error())
		return
	}
	extractErr := pinstore.ExtractTarball(f, scratchDir)
	f.Close()
	if extractErr != nil {
		writeError(w, http.StatusNotAcceptable, extractErr.Error())
		return
	}

	pub, err := identity.LoadPublicKey([]byte(identity.UnstripPublicKey(sess.Fingerprint.PublicKey)))
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not parse publisher public key: "+err.Error())
		return
	}

	result, err := s.Manager.Accept(scratchDir, pub, sess.Fingerprint, sess.Signature)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, err.Error())
		return
	}

	switch result {
	case pinstore.AcceptNew:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("publish complete"))
	case pinstore.AcceptUpdated:
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("publish updated"))
	default: // AcceptNoChange
		writeError(w, http.StatusNotAcceptable, "Your profile has already been published and no changes were detected")
	}
}
