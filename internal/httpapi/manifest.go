package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shog-ai/shoggoth/internal/dht"
)

// selfManifest builds this node's own Manifest (spec.md §4.6).
func (s *Server) selfManifest() dht.Manifest {
	return dht.Manifest{
		NodeID:     string(s.Ctx.NodeID),
		PublicKey:  s.Ctx.PublicPEM,
		PublicHost: s.Ctx.PublicHost(),
	}
}

// GetManifest serves GET /api/get_manifest: this node's manifest JSON.
// The request body, if present, is not read — get_manifest is a pure
// read, unlike get_dht which doubles as an announce.
func (s *Server) GetManifest(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.selfManifest())
}

// GetNodeInfo serves GET /api/get_node_info: the manifest without
// requiring (or reading) a peer body. Added per SPEC_FULL.md §4.6,
// reusing the same manifest builder as get_manifest.
func (s *Server) GetNodeInfo(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.selfManifest())
}

// Status serves GET /api/status: a liveness probe returning node_id
// and process uptime. Supplemented from original_source/src/node/server.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"node_id":        s.Ctx.NodeID,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}
