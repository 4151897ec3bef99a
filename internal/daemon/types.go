package daemon

import "time"

// Runtime decouples the daemon's HTTP API from the transport reactor
// that owns the single-threaded node.Service. Submit is the only
// entry point that crosses goroutines: it hands a Command to the
// reactor loop and blocks for its reply, so HTTP handlers never touch
// Service state directly.
type Runtime interface {
	Submit(cmd Command) CommandReply

	Self() string
	Alias() string
	Version() string
	StartTime() time.Time
	ListenAddresses() []string
}

// Command and CommandReply mirror pkg/node's tagged-union command API
// (with NodeId/RepoId as strings, since the daemon boundary speaks
// JSON). The transport package translates between the two.
type Command struct {
	Kind string

	Rid        string
	Nid        string
	Addr       string
	Persistent bool
	Trusted    bool
	Timeout    time.Duration
	Scope      string
	Alias      string
	Preferred  []string
}

type CommandReply struct {
	Err   error
	Value any
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	NodeID        string   `json:"node_id"`
	Alias         string   `json:"alias,omitempty"`
	Version       string   `json:"version"`
	UptimeSeconds int      `json:"uptime_seconds"`
	ListenAddrs   []string `json:"listen_addresses"`
}

// SessionInfo mirrors node.SessionSnapshot for the wire.
type SessionInfo struct {
	NodeID     string `json:"node_id"`
	Address    string `json:"address,omitempty"`
	State      string `json:"state"`
	Direction  string `json:"direction"`
	Persistent bool   `json:"persistent"`
	Since      int64  `json:"since_unix_ms"`
}

// SessionsResponse is returned by GET /v1/sessions.
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// ConnectRequest is the body for POST /v1/connect.
type ConnectRequest struct {
	NodeID     string `json:"node_id"`
	Address    string `json:"address"`
	Persistent bool   `json:"persistent,omitempty"`
	Trusted    bool   `json:"trusted,omitempty"`
}

// FetchRequest is the body for POST /v1/fetch.
type FetchRequest struct {
	Rid       string `json:"rid"`
	From      string `json:"from"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// FetchResponse is returned by POST /v1/fetch.
type FetchResponse struct {
	Rid     string `json:"rid"`
	From    string `json:"from"`
	Ok      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	RefTips int    `json:"ref_tips"`
}

// SeedRequest is the body for POST /v1/seeds.
type SeedRequest struct {
	Rid       string   `json:"rid"`
	Scope     string   `json:"scope,omitempty"` // "all" (default) or "followed"
	Preferred []string `json:"preferred,omitempty"`
}

// SeedsForResponse is returned by GET /v1/seeds/{rid}.
type SeedsForResponse struct {
	Rid   string   `json:"rid"`
	Seeds []string `json:"seeds"`
}

// FollowRequest is the body for POST /v1/following.
type FollowRequest struct {
	NodeID string `json:"node_id"`
	Alias  string `json:"alias,omitempty"`
}

// SyncStatusValue is the Runtime-facing value for a "sync_status"
// command reply, translated into SyncStatusResponse by the handler.
type SyncStatusValue struct {
	Status         string
	Replicas       int
	ReplicationMet bool
}

// SyncStatusResponse is returned by GET /v1/sync-status/{rid}.
type SyncStatusResponse struct {
	Rid            string `json:"rid"`
	Status         string `json:"status"` // "synced", "out-of-sync", "unknown"
	Replicas       int    `json:"replicas"`
	ReplicationMet bool   `json:"replication_met"`
}

// AnnounceRefsResponse is returned by POST /v1/refs/{rid}/announce.
type AnnounceRefsResponse struct {
	Rid  string   `json:"rid"`
	Refs []string `json:"refs"`
}

// SyncInventoryResponse is returned by POST /v1/inventory/sync.
type SyncInventoryResponse struct {
	Repos []string `json:"repos"`
}

// ErrorResponse is returned on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DataResponse wraps a successful response payload.
type DataResponse struct {
	Data any `json:"data"`
}
