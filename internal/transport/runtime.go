package transport

import (
	"fmt"
	"time"

	"github.com/shurlinet/meshnode/internal/daemon"
	"github.com/shurlinet/meshnode/pkg/node"
)

// Runtime adapts a Reactor to internal/daemon.Runtime: it translates
// the daemon's JSON-friendly Command into node.Command, submits it on
// the reactor goroutine, and translates the reply back into the
// daemon's response DTOs. It is the only file in this package that
// imports internal/daemon.
type Runtime struct {
	reactor   *Reactor
	self      node.NodeId
	alias     string
	version   string
	startedAt time.Time
	addrs     func() []string
}

// NewRuntime builds a daemon.Runtime backed by reactor. addrs is
// called lazily on each status request so it always reflects the
// host's current listen addresses (they can change once NAT/relay
// negotiation completes).
func NewRuntime(reactor *Reactor, self node.NodeId, alias, version string, addrs func() []string) *Runtime {
	return &Runtime{
		reactor:   reactor,
		self:      self,
		alias:     alias,
		version:   version,
		startedAt: time.Now(),
		addrs:     addrs,
	}
}

func (rt *Runtime) Self() string         { return rt.self.String() }
func (rt *Runtime) Alias() string        { return rt.alias }
func (rt *Runtime) Version() string      { return rt.version }
func (rt *Runtime) StartTime() time.Time { return rt.startedAt }
func (rt *Runtime) ListenAddresses() []string {
	if rt.addrs == nil {
		return nil
	}
	return rt.addrs()
}

// Submit is the single crossing point from the daemon's HTTP handler
// goroutines into the single-threaded service.
func (rt *Runtime) Submit(cmd daemon.Command) daemon.CommandReply {
	if cmd.Kind == "sync_inventory" {
		return rt.submitSyncInventory()
	}
	if cmd.Kind == "fetch" {
		return rt.submitFetch(cmd)
	}

	nodeCmd, err := rt.translateCommand(cmd)
	if err != nil {
		return daemon.CommandReply{Err: err}
	}
	reply := rt.reactor.SubmitNodeCommand(nodeCmd)
	if reply.Err != nil {
		return daemon.CommandReply{Err: reply.Err}
	}
	return rt.translateReply(cmd.Kind, reply.Value)
}

func (rt *Runtime) submitSyncInventory() daemon.CommandReply {
	var repos []node.RepoId
	rt.reactor.run(func() {
		rt.reactor.svc.Command(node.Command{Kind: node.CmdSyncInventory})
		rt.reactor.dispatch(rt.reactor.svc.Drain())
		repos = rt.reactor.storage.Inventory()
	})
	out := make([]string, len(repos))
	for i, r := range repos {
		out[i] = r.String()
	}
	return daemon.CommandReply{Value: out}
}

// submitFetch drives the async Fetch command: node.Command{Kind:
// CmdFetch} replies with a subscriber channel rather than a resolved
// outcome, so the wait for the actual fetch result happens here,
// outside the reactor goroutine.
func (rt *Runtime) submitFetch(cmd daemon.Command) daemon.CommandReply {
	rid, err := node.ParseRepoId(cmd.Rid)
	if err != nil {
		return daemon.CommandReply{Err: fmt.Errorf("invalid rid: %w", err)}
	}
	nid, err := node.ParseNodeId(cmd.Nid)
	if err != nil {
		return daemon.CommandReply{Err: fmt.Errorf("invalid node id: %w", err)}
	}

	nodeCmd := node.Command{
		Kind:    node.CmdFetch,
		Rid:     rid,
		Nid:     nid,
		Timeout: cmd.Timeout,
		Reply:   make(chan node.CommandReply, 1),
	}
	rt.reactor.run(func() {
		rt.reactor.svc.Command(nodeCmd)
		rt.reactor.dispatch(rt.reactor.svc.Drain())
	})
	reply := <-nodeCmd.Reply
	if reply.Err != nil {
		return daemon.CommandReply{Err: reply.Err}
	}
	sub, _ := reply.Value.(node.FetchSubscriber)
	if sub == nil {
		return daemon.CommandReply{Err: fmt.Errorf("transport: fetch did not return a subscriber")}
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	select {
	case outcome := <-sub:
		resp := daemon.FetchResponse{Rid: cmd.Rid, From: cmd.Nid}
		if outcome.Err != nil {
			resp.Error = outcome.Err.Error()
		} else {
			resp.Ok = true
			resp.RefTips = len(outcome.Outcome.Updated)
		}
		return daemon.CommandReply{Value: resp}
	case <-time.After(timeout + 5*time.Second):
		return daemon.CommandReply{Err: fmt.Errorf("transport: fetch timed out waiting for result")}
	}
}

func (rt *Runtime) translateCommand(cmd daemon.Command) (node.Command, error) {
	nc := node.Command{Timeout: cmd.Timeout, Alias: cmd.Alias, Persistent: cmd.Persistent}

	switch cmd.Kind {
	case "config":
		nc.Kind = node.CmdConfig
	case "sessions":
		nc.Kind = node.CmdSessions
	case "seeds_for":
		nc.Kind = node.CmdSeedsFor
	case "sync_status":
		nc.Kind = node.CmdSyncStatus
	case "connect":
		nc.Kind = node.CmdConnect
	case "disconnect":
		nc.Kind = node.CmdDisconnect
	case "seed":
		nc.Kind = node.CmdSeed
	case "unseed":
		nc.Kind = node.CmdUnseed
	case "follow":
		nc.Kind = node.CmdFollow
	case "unfollow":
		nc.Kind = node.CmdUnfollow
	case "announce_refs":
		nc.Kind = node.CmdAnnounceRefs
	case "announce_inventory":
		nc.Kind = node.CmdAnnounceInventory
	default:
		return node.Command{}, fmt.Errorf("transport: unknown command kind %q", cmd.Kind)
	}

	if cmd.Rid != "" {
		rid, err := node.ParseRepoId(cmd.Rid)
		if err != nil {
			return node.Command{}, fmt.Errorf("invalid rid: %w", err)
		}
		nc.Rid = rid
	}
	if cmd.Nid != "" {
		nid, err := node.ParseNodeId(cmd.Nid)
		if err != nil {
			return node.Command{}, fmt.Errorf("invalid node id: %w", err)
		}
		nc.Nid = nid
	}
	if cmd.Addr != "" {
		addr, err := node.ParseAddress(cmd.Addr, cmd.Trusted)
		if err != nil {
			return node.Command{}, fmt.Errorf("invalid address: %w", err)
		}
		nc.Addr = addr
	}
	switch cmd.Scope {
	case "followed":
		nc.Scope = node.ScopeFollowed
	default:
		nc.Scope = node.ScopeAll
	}
	for _, p := range cmd.Preferred {
		nid, err := node.ParseNodeId(p)
		if err != nil {
			return node.Command{}, fmt.Errorf("invalid preferred node id %q: %w", p, err)
		}
		nc.Preferred = append(nc.Preferred, nid)
	}
	return nc, nil
}

func (rt *Runtime) translateReply(kind string, value any) daemon.CommandReply {
	switch kind {
	case "config":
		return daemon.CommandReply{Value: value}

	case "sessions":
		snaps, _ := value.([]node.SessionSnapshot)
		out := make([]daemon.SessionInfo, len(snaps))
		for i, s := range snaps {
			out[i] = daemon.SessionInfo{
				NodeID:     s.ID.String(),
				Address:    s.Addr,
				State:      s.State.String(),
				Direction:  s.Link.String(),
				Persistent: s.Persistent,
				Since:      int64(s.LastActive),
			}
		}
		return daemon.CommandReply{Value: out}

	case "seeds_for":
		candidates, _ := value.([]node.SeedCandidate)
		out := make([]string, len(candidates))
		for i, c := range candidates {
			out[i] = fmt.Sprintf("%s(%s)", c.Seeder, syncStatusString(c.Status))
		}
		return daemon.CommandReply{Value: out}

	case "sync_status":
		status, _ := value.(node.SyncStatus)
		return daemon.CommandReply{Value: daemon.SyncStatusValue{
			Status:         syncStatusString(status),
			Replicas:       status.Replicas,
			ReplicationMet: status.ReplicationMet,
		}}

	case "announce_refs":
		tips, _ := value.([]node.RefTip)
		out := make([]string, len(tips))
		for i, t := range tips {
			out[i] = fmt.Sprintf("%s@%s", t.Remote, t.At)
		}
		return daemon.CommandReply{Value: out}

	default:
		return daemon.CommandReply{Value: value}
	}
}

func syncStatusString(s node.SyncStatus) string {
	switch s.Kind {
	case node.SyncInSync:
		return "synced"
	case node.SyncOutOfSync:
		return "out-of-sync"
	default:
		return "unknown"
	}
}
