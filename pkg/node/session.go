package node

// LinkDirection records whether a session was dialed out or accepted.
type LinkDirection int

const (
	Outbound LinkDirection = iota
	Inbound
)

func (d LinkDirection) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// SessionState is the per-peer connection lifecycle (spec section 4.2).
type SessionState int

const (
	StateInitial SessionState = iota
	StateAttempted
	StateConnected
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAttempted:
		return "attempted"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PingState tracks whether a keep-alive round-trip is outstanding.
type PingState int

const (
	PingOk PingState = iota
	PingAwaiting
)

// Subscription is the relay predicate and replay window a peer has
// installed on this session, either ours sent to them or theirs sent
// to us.
type Subscription struct {
	Filter *Filter
	Since  Timestamp
	Until  Timestamp
}

// Session is the mutable per-peer state the service keeps for the
// lifetime of a connection (and, for persistent peers, across
// reconnection attempts).
type Session struct {
	ID         NodeId
	Addr       Address
	Link       LinkDirection
	Persistent bool

	State             SessionState
	LastActive        Timestamp
	ConnectedSince    Timestamp
	DisconnectedSince Timestamp
	RetryAt           Timestamp
	Attempts          int

	Subscribe *Subscription

	// Fetching is the set of RepoIds currently in flight from this
	// peer, bounded by Limits.FetchConcurrency.
	Fetching map[RepoId]struct{}

	PingState       PingState
	PingAwaitingLen int
	PingNonce       uint64
}

func newSession(nid NodeId, addr Address, link LinkDirection, persistent bool) *Session {
	return &Session{
		ID:         nid,
		Addr:       addr,
		Link:       link,
		Persistent: persistent,
		State:      StateInitial,
		Fetching:   make(map[RepoId]struct{}),
	}
}

func (s *Session) IsConnected() bool { return s.State == StateConnected }

func (s *Session) AtFetchCapacity(limit int) bool { return len(s.Fetching) >= limit }

// SessionSnapshot is the read-only view returned by the Sessions
// command (spec section 6 supplement, resolving the open question
// about a sessions() command left unspecified upstream).
type SessionSnapshot struct {
	ID         NodeId
	Addr       string
	Link       LinkDirection
	State      SessionState
	Persistent bool
	LastActive Timestamp
	Fetching   int
}
