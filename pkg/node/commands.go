package node

import "time"

// CommandKind enumerates the external API surface a driver (the
// control-plane daemon, or a test harness) can invoke against a
// running Service (spec section 6, plus the supplemented Sessions and
// SyncStatus commands from section 6's supplement).
type CommandKind int

const (
	CmdAnnounceRefs CommandKind = iota
	CmdAnnounceInventory
	CmdSyncInventory
	CmdConnect
	CmdDisconnect
	CmdConfig
	CmdSeedsFor
	CmdFetch
	CmdSeed
	CmdUnseed
	CmdFollow
	CmdUnfollow
	CmdSessions
	CmdSyncStatus
)

// Command is a tagged request; only the fields relevant to Kind are
// read. Reply, if non-nil, receives exactly one CommandReply.
type Command struct {
	Kind CommandKind

	Rid        RepoId
	Nid        NodeId
	Addr       Address
	Persistent bool
	Timeout    time.Duration
	Scope      Scope
	Alias      string
	Preferred  []NodeId

	Reply chan CommandReply
}

type CommandReply struct {
	Err   error
	Value any
}

func (s *Service) reply(cmd Command, value any, err error) {
	if cmd.Reply == nil {
		return
	}
	cmd.Reply <- CommandReply{Value: value, Err: err}
}

// Command dispatches one external request against the running
// service. Like every other entry point it appends to the outbox
// rather than performing I/O directly; callers must Drain afterward.
func (s *Service) Command(cmd Command) {
	switch cmd.Kind {
	case CmdAnnounceRefs:
		tips, err := s.announceRefs(cmd.Rid)
		s.reply(cmd, tips, err)

	case CmdAnnounceInventory:
		s.broadcastInventory(s.clock.Now())
		s.reply(cmd, nil, nil)

	case CmdSyncInventory:
		s.reply(cmd, s.syncInventory(), nil)

	case CmdConnect:
		timeout := cmd.Timeout
		if timeout <= 0 {
			timeout = s.cfg.FetchTimeout
		}
		if sess, ok := s.sessions[cmd.Nid]; ok && sess.IsConnected() {
			s.reply(cmd, nil, ErrAlreadyConnected)
			return
		}
		s.connectTo(cmd.Nid, cmd.Addr, cmd.Persistent, timeout)
		s.reply(cmd, nil, nil)

	case CmdDisconnect:
		s.disconnect(cmd.Nid, ReasonCommand)
		s.reply(cmd, nil, nil)

	case CmdConfig:
		s.reply(cmd, s.cfg, nil)

	case CmdSeedsFor:
		s.reply(cmd, s.seedsFor(cmd.Rid), nil)

	case CmdFetch:
		timeout := cmd.Timeout
		if timeout <= 0 {
			timeout = s.cfg.FetchTimeout
		}
		ch, err := s.Fetch(cmd.Rid, cmd.Nid, timeout)
		s.reply(cmd, ch, err)

	case CmdSeed:
		updated := s.policy.Seed(cmd.Rid, cmd.Scope, cmd.Preferred)
		if updated {
			s.localFilter.Insert(cmd.Rid)
			s.broadcastSubscribe()
		}
		s.reply(cmd, updated, nil)

	case CmdUnseed:
		updated := s.policy.Unseed(cmd.Rid)
		if updated {
			s.localFilter = s.buildSeedFilter()
			s.broadcastSubscribe()
		}
		s.reply(cmd, updated, nil)

	case CmdFollow:
		s.reply(cmd, s.policy.Follow(cmd.Nid, cmd.Alias), nil)

	case CmdUnfollow:
		s.reply(cmd, s.policy.Unfollow(cmd.Nid), nil)

	case CmdSessions:
		s.reply(cmd, s.sessionSnapshot(), nil)

	case CmdSyncStatus:
		s.reply(cmd, s.syncStatusOf(cmd.Rid), nil)
	}
}
