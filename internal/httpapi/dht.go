package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/shog-ai/shoggoth/internal/dht"
)

// GetDHT serves GET /api/get_dht: returns this node's DHT view. The
// request body, if present, is the caller's own manifest — it serves
// double duty as an announce (spec.md §4.5 step 1), so a
// syntactically valid, previously-unknown peer is inserted before
// responding.
func (s *Server) GetDHT(w http.ResponseWriter, r *http.Request) {
	var announced dht.Manifest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&announced)
	}

	if announced.NodeID != "" && announced.NodeID != string(s.Ctx.NodeID) {
		if err := dht.ValidateHost(announced.PublicHost); err == nil {
			peers, err := s.DHT.Load()
			if err == nil {
				if _, known := dht.Find(peers, announced.NodeID); !known {
					peers = dht.Insert(peers, dht.Peer{
						Host:      announced.PublicHost,
						NodeID:    announced.NodeID,
						PublicKey: announced.PublicKey,
					})
					if err := s.DHT.Replace(peers); err != nil {
						s.log().Warnf("get_dht: persisting announced peer %s: %v", announced.NodeID, err)
					}
				}
			}
		}
	}

	peers, err := s.DHT.Load()
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not load dht: "+err.Error())
		return
	}
	json.NewEncoder(w).Encode(peers)
}

// GetPins serves GET /api/get_pins: the PinIndex JSON array.
func (s *Server) GetPins(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Index.Load()
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "could not load pins: "+err.Error())
		return
	}
	json.NewEncoder(w).Encode(ids)
}
