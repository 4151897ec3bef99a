// Package node implements the event-driven core of a mesh collaboration
// node: gossip dissemination, fetch scheduling, session lifecycle and
// routing state. The Service type performs no I/O of its own — every
// entry point runs to completion synchronously, mutates in-memory
// state, and appends OutboxActions describing the I/O its caller
// (the reactor, see internal/transport) should perform. This keeps the
// core free of locks: it is only ever driven from one goroutine.
package node

import (
	"log/slog"
	"time"
)

// Service is the single-threaded state machine described by spec
// section 4.1. Construct one with NewService and drive it exclusively
// through its exported methods from one goroutine; none of its state
// is safe for concurrent access.
type Service struct {
	cfg    Config
	clock  Clock
	rng    RNG
	signer Signer
	self   NodeId
	log    *slog.Logger

	listenAddrs []Address
	peers       []ConfiguredPeer

	routing   RoutingStore
	addresses AddressStore
	gossip    GossipStore
	seeds     SeedStore
	policy    PolicyStore
	storage   Storage
	limiter   *RateLimiter
	metrics   *Metrics

	sessions    map[NodeId]*Session
	localFilter *Filter

	fetches    map[RepoId]*fetchState
	fetchQueue []fetchQueueItem
	replicas   map[RepoId]map[NodeId]struct{}

	outbox Outbox

	lastIdle, lastSync, lastAnnounce, lastPrune Timestamp
	started                                     bool
}

// Deps bundles the collaborators a Service needs. Signer, Storage and
// the five stores (Routing, Addresses, Gossip, Seeds, Policy) have no
// default and must be supplied; Clock, RNG, Logger, Limiter, Metrics
// and Filter fall back to defaults when left nil.
type Deps struct {
	Signer      Signer
	Storage     Storage
	Routing     RoutingStore
	Addresses   AddressStore
	Gossip      GossipStore
	Seeds       SeedStore
	Policy      PolicyStore
	Clock       Clock
	RNG         RNG
	Logger      *slog.Logger
	Limiter     *RateLimiter
	Metrics     *Metrics
	Filter      *Filter
	ListenAddrs []Address
	Peers       []ConfiguredPeer
}

// ConfiguredPeer is one statically-configured peer the service dials on
// startup (spec section 4.1: "initiates connections to configured
// persistent peers"). Persistent peers are automatically redialed by
// maintainPersistent after a disconnect; non-persistent ones are only
// dialed once, at Initialize.
type ConfiguredPeer struct {
	Nid        NodeId
	Addr       Address
	Persistent bool
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.RNG == nil {
		deps.RNG = NewRNG(0xdeadbeef, 0xfeedface)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter(DefaultRateLimiterConfig())
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Filter == nil {
		deps.Filter = MatchAllFilter()
	}

	return &Service{
		cfg:         cfg,
		clock:       deps.Clock,
		rng:         deps.RNG,
		signer:      deps.Signer,
		self:        deps.Signer.NodeId(),
		log:         deps.Logger.With("component", "node"),
		listenAddrs: deps.ListenAddrs,
		peers:       deps.Peers,
		routing:     deps.Routing,
		addresses:   deps.Addresses,
		gossip:      deps.Gossip,
		seeds:       deps.Seeds,
		policy:      deps.Policy,
		storage:     deps.Storage,
		limiter:     deps.Limiter,
		metrics:     deps.Metrics,
		sessions:    make(map[NodeId]*Session),
		localFilter: deps.Filter,
		fetches:     make(map[RepoId]*fetchState),
		replicas:    make(map[RepoId]map[NodeId]struct{}),
	}
}

// Self returns the node's own identity.
func (s *Service) Self() NodeId { return s.self }

// Initialize performs the one-time startup sequence (spec section 4.1):
// inserts the local node into the address store, loads local inventory
// into the routing table, pre-computes refs announcements for locally
// held repositories so newly-subscribed peers can replay them, builds
// the subscription filter from seed policy, dials configured peers, and
// starts every scheduling window at now, so each periodic task first
// runs on a Wake() at least its own interval later.
func (s *Service) Initialize() []OutboxAction {
	now := s.clock.Now()
	s.lastIdle, s.lastSync, s.lastAnnounce, s.lastPrune = now, now, now, now
	s.started = true

	s.addresses.Upsert(s.self, s.nodeFeatures(), s.cfg.Alias, 0, now, s.listenAddrs, SourceLocal)

	s.routing.Insert(s.storage.Inventory(), s.self, now)
	s.metrics.RoutingEntries.Set(float64(s.routing.Len()))

	s.precomputeRefsAnnouncements(now)
	s.localFilter = s.buildSeedFilter()

	for _, p := range s.peers {
		s.connectTo(p.Nid, p.Addr, p.Persistent, s.cfg.FetchTimeout)
	}

	s.outbox.push(WakeupAction{After: s.cfg.IdleInterval})
	return s.outbox.Drain()
}

// precomputeRefsAnnouncements signs a RefsAnnouncement for every
// locally-held repository and records it in the gossip store without
// broadcasting it — there are no connected sessions yet at startup, so
// the only way these reach the network is via the Subscribe-driven
// replay in dispatch.go once peers connect.
func (s *Service) precomputeRefsAnnouncements(now Timestamp) {
	for _, rid := range s.storage.Inventory() {
		refs, err := s.storage.Refs(rid)
		if err != nil {
			continue
		}
		tips := make([]RefTip, 0, len(refs))
		for remote, oid := range refs {
			tips = append(tips, RefTip{Remote: remote, At: oid})
		}
		ann, err := SignAnnouncement(s.signer, RefsAnnouncementMsg{Rid: rid, Refs: tips, Timestamp: now})
		if err != nil {
			s.log.Error("signing refs announcement", "rid", rid, "err", err)
			continue
		}
		s.gossip.Announced(ann)
	}
}

// buildSeedFilter derives the subscription predicate from local policy
// (spec section 4.3.4): a relay node announces openly and transmits the
// match-all filter, while a non-relay node only asks for what it seeds.
func (s *Service) buildSeedFilter() *Filter {
	if s.cfg.Relay {
		return MatchAllFilter()
	}
	f := NewFilter()
	for _, sp := range s.policy.SeedPolicies() {
		if sp.Policy == PolicyAllow {
			f.Insert(sp.Rid)
		}
	}
	return f
}

func (s *Service) nodeFeatures() uint64 {
	var features uint64
	if s.cfg.Relay {
		features |= FeatureSeed
	}
	return features
}

// Drain returns and clears pending outbox actions. Every public method
// on Service appends to the same outbox; callers should call Drain
// after each entry point that does not already return actions
// directly, to preserve per-peer ordering.
func (s *Service) Drain() []OutboxAction { return s.outbox.Drain() }

func (s *Service) buildNodeAnnouncement(now Timestamp) NodeAnnouncementMsg {
	return NodeAnnouncementMsg{
		Features:  s.nodeFeatures(),
		Alias:     s.cfg.Alias,
		Timestamp: now,
		Addresses: s.listenAddrs,
		Nonce:     s.rng.Uint64(),
	}
}

func (s *Service) buildInventoryAnnouncement(now Timestamp) InventoryAnnouncementMsg {
	return InventoryAnnouncementMsg{
		Inventory: s.storage.Inventory(),
		Timestamp: now,
	}
}

// broadcastInventory re-signs and sends our current inventory to every
// connected session, used on the announce tick and from the
// AnnounceInventory command.
func (s *Service) broadcastInventory(now Timestamp) {
	ann, err := SignAnnouncement(s.signer, s.buildInventoryAnnouncement(now))
	if err != nil {
		s.log.Error("signing inventory announcement", "err", err)
		return
	}
	s.gossip.Announced(ann)
	for nid, sess := range s.sessions {
		if !sess.IsConnected() {
			continue
		}
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgAnnouncement, Announcement: &ann}})
	}
	s.metrics.AnnouncementsSent.Inc()
}

// broadcastSubscribe re-sends our subscription predicate to every
// outbound session, used after the local seed policy set changes.
func (s *Service) broadcastSubscribe() {
	for nid, sess := range s.sessions {
		if !sess.IsConnected() || sess.Link != Outbound || sess.Subscribe == nil {
			continue
		}
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgSubscribe, Subscribe: &SubscribeMessage{
			Filter: s.localFilter,
			Since:  sess.Subscribe.Since,
			Until:  TimestampMax,
		}}})
	}
}

func (s *Service) connectTo(nid NodeId, addr Address, persistent bool, timeout time.Duration) {
	sess, ok := s.sessions[nid]
	if ok && (sess.State == StateConnected || sess.State == StateAttempted) {
		return
	}
	if addr.Trusted {
		s.limiter.SetTrusted(addr.Host(), true)
	}
	if ok {
		sess.Addr = addr
		sess.Link = Outbound
		sess.Persistent = sess.Persistent || persistent
		sess.State = StateInitial
	} else {
		s.sessions[nid] = newSession(nid, addr, Outbound, persistent)
	}
	s.outbox.push(ConnectAction{Nid: nid, Addr: addr, Timeout: timeout})
}

func (s *Service) disconnect(nid NodeId, reason DisconnectReason) {
	s.outbox.push(DisconnectAction{Nid: nid, Reason: reason})
}

func (s *Service) sessionSnapshot() []SessionSnapshot {
	out := make([]SessionSnapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, SessionSnapshot{
			ID:         sess.ID,
			Addr:       sess.Addr.String(),
			Link:       sess.Link,
			State:      sess.State,
			Persistent: sess.Persistent,
			LastActive: sess.LastActive,
			Fetching:   len(sess.Fetching),
		})
	}
	return out
}

