// Package api provides the HTTP orchestration surface for a VeriMesh node:
// peer management, sync and verification triggers, and node status.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/peersync"
	"github.com/verimesh/verimesh/internal/gossip/protocol"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/gossip/verify"
	"github.com/verimesh/verimesh/internal/health"
)

// Server is the VeriMesh HTTP API server.
type Server struct {
	registry       *registry.Registry
	protocol       *protocol.Protocol
	coordinator    *peersync.Coordinator
	verify         *verify.Engine
	health         *health.Checker
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(reg *registry.Registry, proto *protocol.Protocol, coord *peersync.Coordinator,
	eng *verify.Engine, checker *health.Checker) *Server {
	return &Server{
		registry:    reg,
		protocol:    proto,
		coordinator: coord,
		verify:      eng,
		health:      checker,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/peers", func(r chi.Router) {
			r.Get("/", s.handleListPeers)
			r.Post("/", s.handleAddPeer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPeer)
				r.Delete("/", s.handleRemovePeer)
				r.Post("/sync", s.handleSyncPeer)
				r.Post("/pull", s.handlePullPeer)
				r.Post("/probe", s.handleProbePeer)
			})
		})

		r.Post("/verify", s.handleVerify)
		r.Post("/discover", s.handleDiscover)
		r.Post("/protocol/enable", s.handleEnable)
		r.Post("/protocol/disable", s.handleDisable)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Node ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.health.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": s.health.IsHealthy(),
		"checks":  s.health.Statuses(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.protocol.State()

	counts := map[string]int{}
	for _, p := range s.registry.List() {
		counts[p.Status.String()]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":         state.NodeID,
		"enabled":         state.Enabled,
		"version":         state.Version,
		"capabilities":    state.Capabilities,
		"last_heartbeat":  state.LastHeartbeat,
		"peers":           s.registry.Count(),
		"peers_by_status": counts,
	})
}

// ─── Peers ──────────────────────────────────────────────────────────────────

func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"peers": s.registry.List()})
}

func (s *Server) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "id and endpoint are required")
		return
	}
	if err := s.registry.Add(req.ID, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p, _ := s.registry.Get(req.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"peer": p}
	if ss, err := s.registry.SyncStatus(id); err == nil && len(ss) > 0 {
		resp["sync_status"] = ss
	}
	if d, err := s.registry.LoadDetails(id); err == nil {
		resp["details"] = d
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemovePeer(w http.ResponseWriter, r *http.Request) {
	// Removal is always successful from the caller's perspective.
	if err := s.registry.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleSyncPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coordinator.SynchronizeWith(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

func (s *Server) handlePullPeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.verify.PullFromPeer(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pulled"})
}

func (s *Server) handleProbePeer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reachable, err := s.protocol.CheckReachability(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"peer_id": id, "reachable": reachable})
}

// ─── Verification & Protocol ────────────────────────────────────────────────

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.verify.VerifyTrace()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if err := s.protocol.BroadcastDiscovery(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "discovery broadcast sent"})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.protocol.Enable(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.protocol.Disable(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownPeer):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPeerOffline), errors.Is(err, domain.ErrDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrHashMismatch):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrBadEndpoint):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
