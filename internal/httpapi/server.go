// Package httpapi implements spec.md §4.6's HTTP surface: the routes
// peers and clients consume, redirect-on-miss, and the supporting
// middleware. Routed with gorilla/mux, the teacher's router — see
// walletserver/routes and walletserver/middleware for the pattern
// generalized here.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/shog-ai/shoggoth/internal/dht"
	"github.com/shog-ai/shoggoth/internal/pinstore"
	"github.com/shog-ai/shoggoth/internal/shoggoth"
)

// Server holds everything a handler needs to answer a request: the
// node's shared context, its DHT view, and its pin storage.
type Server struct {
	Ctx     *shoggoth.Context
	DHT     *dht.Store
	Index   *pinstore.Index
	Manager *pinstore.Manager
	Uploads *pinstore.Sessions

	RateLimiter *RateLimiter

	startedAt time.Time
}

func NewServer(ctx *shoggoth.Context, dhtStore *dht.Store, index *pinstore.Index, manager *pinstore.Manager, uploads *pinstore.Sessions, rl *RateLimiter) *Server {
	return &Server{
		Ctx:         ctx,
		DHT:         dhtStore,
		Index:       index,
		Manager:     manager,
		Uploads:     uploads,
		RateLimiter: rl,
		startedAt:   time.Now(),
	}
}

func (s *Server) log() *logrus.Logger {
	if s.Ctx != nil && s.Ctx.Log != nil {
		return s.Ctx.Log
	}
	return logrus.StandardLogger()
}

// Router builds the mux.Router exposing every route in spec.md §4.6,
// plus the ADD routes /api/status and /api/get_node_info.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggerMiddleware)
	if s.RateLimiter != nil {
		r.Use(s.RateLimiter.Middleware)
	}
	r.Use(CORSMiddleware)

	r.HandleFunc("/api/get_manifest", s.GetManifest).Methods(http.MethodGet)
	r.HandleFunc("/api/get_dht", s.GetDHT).Methods(http.MethodGet)
	r.HandleFunc("/api/get_pins", s.GetPins).Methods(http.MethodGet)
	r.HandleFunc("/api/get_fingerprint/{id}", s.GetFingerprint).Methods(http.MethodGet)
	r.HandleFunc("/api/clone/{id}", s.Clone).Methods(http.MethodGet)
	r.HandleFunc("/api/download/{id}/{group}/{res}", s.Download).Methods(http.MethodGet)

	r.HandleFunc("/api/publish", s.PublishNegotiate).Methods(http.MethodGet)
	r.HandleFunc("/api/publish_chunk", s.PublishChunk).Methods(http.MethodGet)
	r.HandleFunc("/api/publish_finish", s.PublishFinish).Methods(http.MethodGet)

	r.HandleFunc("/api/status", s.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/get_node_info", s.GetNodeInfo).Methods(http.MethodGet)

	return r
}
