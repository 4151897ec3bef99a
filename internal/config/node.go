package config

import (
	"fmt"

	"github.com/shurlinet/meshnode/pkg/node"
)

// ToServiceConfig translates the on-disk schema into pkg/node's
// runtime Config, applying pkg/node's own defaults wherever a
// scheduling/limit field was left unset.
func ToServiceConfig(cfg *NodeConfig) (node.Config, error) {
	out := node.DefaultConfig()
	out.Alias = cfg.Alias
	out.Relay = cfg.Relay
	if cfg.Network.TargetOutbound > 0 {
		out.TargetOutbound = cfg.Network.TargetOutbound
	}

	var err error
	if out.IdleInterval, err = durationOr(cfg.Scheduling.IdleInterval, out.IdleInterval); err != nil {
		return out, fmt.Errorf("scheduling.idle_interval: %w", err)
	}
	if out.SyncInterval, err = durationOr(cfg.Scheduling.SyncInterval, out.SyncInterval); err != nil {
		return out, fmt.Errorf("scheduling.sync_interval: %w", err)
	}
	if out.AnnounceInterval, err = durationOr(cfg.Scheduling.AnnounceInterval, out.AnnounceInterval); err != nil {
		return out, fmt.Errorf("scheduling.announce_interval: %w", err)
	}
	if out.PruneInterval, err = durationOr(cfg.Scheduling.PruneInterval, out.PruneInterval); err != nil {
		return out, fmt.Errorf("scheduling.prune_interval: %w", err)
	}
	if out.StaleConnectionTimeout, err = durationOr(cfg.Scheduling.StaleConnectionTimeout, out.StaleConnectionTimeout); err != nil {
		return out, fmt.Errorf("scheduling.stale_connection_timeout: %w", err)
	}
	if out.KeepAliveInterval, err = durationOr(cfg.Scheduling.KeepAliveInterval, out.KeepAliveInterval); err != nil {
		return out, fmt.Errorf("scheduling.keep_alive_interval: %w", err)
	}
	if out.MaxTimeDelta, err = durationOr(cfg.Scheduling.MaxTimeDelta, out.MaxTimeDelta); err != nil {
		return out, fmt.Errorf("scheduling.max_time_delta: %w", err)
	}
	if out.InitialSubscribeBacklog, err = durationOr(cfg.Scheduling.InitialSubscribeBacklog, out.InitialSubscribeBacklog); err != nil {
		return out, fmt.Errorf("scheduling.initial_subscribe_backlog: %w", err)
	}
	if out.MinReconnectionDelta, err = durationOr(cfg.Scheduling.MinReconnectionDelta, out.MinReconnectionDelta); err != nil {
		return out, fmt.Errorf("scheduling.min_reconnection_delta: %w", err)
	}
	if out.MaxReconnectionDelta, err = durationOr(cfg.Scheduling.MaxReconnectionDelta, out.MaxReconnectionDelta); err != nil {
		return out, fmt.Errorf("scheduling.max_reconnection_delta: %w", err)
	}
	if out.ConnectionRetryDelta, err = durationOr(cfg.Scheduling.ConnectionRetryDelta, out.ConnectionRetryDelta); err != nil {
		return out, fmt.Errorf("scheduling.connection_retry_delta: %w", err)
	}
	if out.FetchTimeout, err = durationOr(cfg.Scheduling.FetchTimeout, out.FetchTimeout); err != nil {
		return out, fmt.Errorf("scheduling.fetch_timeout: %w", err)
	}
	if cfg.Scheduling.MaxConnectionAttempts > 0 {
		out.MaxConnectionAttempts = cfg.Scheduling.MaxConnectionAttempts
	}

	if cfg.Limits.FetchConcurrency > 0 {
		out.Limits.FetchConcurrency = cfg.Limits.FetchConcurrency
	}
	if cfg.Limits.AddressLimit > 0 {
		out.Limits.AddressLimit = cfg.Limits.AddressLimit
	}
	if cfg.Limits.InventoryLimit > 0 {
		out.Limits.InventoryLimit = cfg.Limits.InventoryLimit
	}
	if cfg.Limits.RoutingMaxSize > 0 {
		out.Limits.RoutingMaxSize = cfg.Limits.RoutingMaxSize
	}
	if cfg.Limits.MaxPongZeroes > 0 {
		out.Limits.MaxPongZeroes = cfg.Limits.MaxPongZeroes
	}
	if out.Limits.RoutingMaxAge, err = durationOr(cfg.Limits.RoutingMaxAge, out.Limits.RoutingMaxAge); err != nil {
		return out, fmt.Errorf("limits.routing_max_age: %w", err)
	}
	if out.Limits.GossipMaxAge, err = durationOr(cfg.Limits.GossipMaxAge, out.Limits.GossipMaxAge); err != nil {
		return out, fmt.Errorf("limits.gossip_max_age: %w", err)
	}

	return out, nil
}

// ResolvedPeer is one configured peer with its address parsed.
type ResolvedPeer struct {
	Id         node.NodeId
	Addr       node.Address
	Persistent bool
}

// ResolvePeers parses every configured peer's multiaddr, extracting
// the peer id from its /p2p/<id> suffix.
func ResolvePeers(cfg *NodeConfig) ([]ResolvedPeer, error) {
	out := make([]ResolvedPeer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		addr, err := node.ParseAddress(p.Address, p.Trusted)
		if err != nil {
			return nil, fmt.Errorf("peers: %w", err)
		}
		id, err := peerIDFromAddress(p.Address)
		if err != nil {
			return nil, fmt.Errorf("peers: %w", err)
		}
		out = append(out, ResolvedPeer{Id: id, Addr: addr, Persistent: p.Persistent})
	}
	return out, nil
}

// ResolvedSeeding is one seeding declaration with its RepoId parsed.
type ResolvedSeeding struct {
	Rid       node.RepoId
	Scope     node.Scope
	Preferred []node.NodeId
}

func ResolveSeeding(cfg *NodeConfig) ([]ResolvedSeeding, error) {
	out := make([]ResolvedSeeding, 0, len(cfg.Seeding))
	for _, sc := range cfg.Seeding {
		rid, err := node.ParseRepoId(sc.Rid)
		if err != nil {
			return nil, fmt.Errorf("seeding: %w", err)
		}
		scope := node.ScopeAll
		if sc.Scope == "followed" {
			scope = node.ScopeFollowed
		}
		preferred := make([]node.NodeId, 0, len(sc.Preferred))
		for _, idStr := range sc.Preferred {
			id, err := node.ParseNodeId(idStr)
			if err != nil {
				return nil, fmt.Errorf("seeding: preferred seed: %w", err)
			}
			preferred = append(preferred, id)
		}
		out = append(out, ResolvedSeeding{Rid: rid, Scope: scope, Preferred: preferred})
	}
	return out, nil
}

// ResolvedFollow is one follow declaration with its NodeId parsed.
type ResolvedFollow struct {
	Id    node.NodeId
	Alias string
}

func ResolveFollowing(cfg *NodeConfig) ([]ResolvedFollow, error) {
	out := make([]ResolvedFollow, 0, len(cfg.Following))
	for _, f := range cfg.Following {
		id, err := node.ParseNodeId(f.Id)
		if err != nil {
			return nil, fmt.Errorf("following: %w", err)
		}
		out = append(out, ResolvedFollow{Id: id, Alias: f.Alias})
	}
	return out, nil
}

func peerIDFromAddress(addr string) (node.NodeId, error) {
	// The multiaddr's trailing /p2p/<id> component carries the peer id;
	// node.ParseAddress already validated the whole address, so a
	// minimal split here is sufficient.
	const marker = "/p2p/"
	idx := lastIndex(addr, marker)
	if idx < 0 {
		return "", fmt.Errorf("address %q has no /p2p/<id> component", addr)
	}
	return node.ParseNodeId(addr[idx+len(marker):])
}

func lastIndex(s, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
