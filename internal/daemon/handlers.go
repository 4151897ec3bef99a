package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// maxRequestBodySize limits JSON request bodies to prevent unbounded
// memory consumption from oversized or malicious payloads.
const maxRequestBodySize = 1 << 20 // 1 MB

// registerRoutes sets up all HTTP routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	mux.HandleFunc("GET /v1/seeds/{rid}", s.handleSeedsFor)
	mux.HandleFunc("GET /v1/sync-status/{rid}", s.handleSyncStatus)
	mux.HandleFunc("GET /v1/config", s.handleConfig)

	mux.HandleFunc("POST /v1/connect", s.handleConnect)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDisconnect)
	mux.HandleFunc("POST /v1/fetch", s.handleFetch)
	mux.HandleFunc("POST /v1/seeds", s.handleSeed)
	mux.HandleFunc("DELETE /v1/seeds/{rid}", s.handleUnseed)
	mux.HandleFunc("POST /v1/following", s.handleFollow)
	mux.HandleFunc("DELETE /v1/following/{id}", s.handleUnfollow)
	mux.HandleFunc("POST /v1/refs/{rid}/announce", s.handleAnnounceRefs)
	mux.HandleFunc("POST /v1/inventory/announce", s.handleAnnounceInventory)
	mux.HandleFunc("POST /v1/inventory/sync", s.handleSyncInventory)
	mux.HandleFunc("POST /v1/shutdown", s.handleShutdown)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	return dec.Decode(dst)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		NodeID:        s.runtime.Self(),
		Alias:         s.runtime.Alias(),
		Version:       s.runtime.Version(),
		UptimeSeconds: int(time.Since(s.runtime.StartTime()).Seconds()),
		ListenAddrs:   s.runtime.ListenAddresses(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	reply := s.runtime.Submit(Command{Kind: "config"})
	if reply.Err != nil {
		respondError(w, http.StatusInternalServerError, reply.Err.Error())
		return
	}
	respondJSON(w, http.StatusOK, reply.Value)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	reply := s.runtime.Submit(Command{Kind: "sessions"})
	if reply.Err != nil {
		respondError(w, http.StatusInternalServerError, reply.Err.Error())
		return
	}
	sessions, _ := reply.Value.([]SessionInfo)
	respondJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

func (s *Server) handleSeedsFor(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	reply := s.runtime.Submit(Command{Kind: "seeds_for", Rid: rid})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	seeds, _ := reply.Value.([]string)
	respondJSON(w, http.StatusOK, SeedsForResponse{Rid: rid, Seeds: seeds})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	reply := s.runtime.Submit(Command{Kind: "sync_status", Rid: rid})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	v, _ := reply.Value.(SyncStatusValue)
	respondJSON(w, http.StatusOK, SyncStatusResponse{
		Rid: rid, Status: v.Status, Replicas: v.Replicas, ReplicationMet: v.ReplicationMet,
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	reply := s.runtime.Submit(Command{
		Kind: "connect", Nid: req.NodeID, Addr: req.Address,
		Persistent: req.Persistent, Trusted: req.Trusted,
	})
	s.audit.CookieAuthDecision(req.NodeID, "connect")
	if reply.Err != nil {
		respondError(w, http.StatusConflict, reply.Err.Error())
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reply := s.runtime.Submit(Command{Kind: "disconnect", Nid: id})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	reply := s.runtime.Submit(Command{Kind: "fetch", Rid: req.Rid, Nid: req.From, Timeout: timeout})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	outcome, _ := reply.Value.(FetchResponse)
	outcome.Rid, outcome.From = req.Rid, req.From
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	reply := s.runtime.Submit(Command{Kind: "seed", Rid: req.Rid, Scope: req.Scope, Preferred: req.Preferred})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	s.audit.SeedPolicyChange("seed", req.Rid)
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleUnseed(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	reply := s.runtime.Submit(Command{Kind: "unseed", Rid: rid})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	s.audit.SeedPolicyChange("unseed", rid)
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	var req FollowRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	reply := s.runtime.Submit(Command{Kind: "follow", Nid: req.NodeID, Alias: req.Alias})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	s.audit.FollowPolicyChange("follow", req.NodeID)
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reply := s.runtime.Submit(Command{Kind: "unfollow", Nid: id})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	s.audit.FollowPolicyChange("unfollow", id)
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleAnnounceRefs(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("rid")
	reply := s.runtime.Submit(Command{Kind: "announce_refs", Rid: rid})
	if reply.Err != nil {
		respondError(w, http.StatusBadRequest, reply.Err.Error())
		return
	}
	refs, _ := reply.Value.([]string)
	respondJSON(w, http.StatusOK, AnnounceRefsResponse{Rid: rid, Refs: refs})
}

func (s *Server) handleAnnounceInventory(w http.ResponseWriter, r *http.Request) {
	reply := s.runtime.Submit(Command{Kind: "announce_inventory"})
	if reply.Err != nil {
		respondError(w, http.StatusInternalServerError, reply.Err.Error())
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSyncInventory(w http.ResponseWriter, r *http.Request) {
	reply := s.runtime.Submit(Command{Kind: "sync_inventory"})
	if reply.Err != nil {
		respondError(w, http.StatusInternalServerError, reply.Err.Error())
		return
	}
	repos, _ := reply.Value.([]string)
	respondJSON(w, http.StatusOK, SyncInventoryResponse{Repos: repos})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nil)
	close(s.shutdownCh)
}
