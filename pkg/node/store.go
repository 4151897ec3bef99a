package node

import "time"

// UpdateResult classifies the outcome of inserting one routing fact.
type UpdateResult int

const (
	RoutingAdded UpdateResult = iota
	RoutingTimeUpdated
	RoutingNotUpdated
)

// RoutingUpdate reports what Insert did for one RepoId in the batch.
type RoutingUpdate struct {
	Rid    RepoId
	Result UpdateResult
}

// RoutingStore maps RepoId to the set of NodeIds known to seed it, each
// entry timestamped so only strictly-newer facts overwrite existing
// ones (spec section 4.5).
type RoutingStore interface {
	Get(rid RepoId) map[NodeId]Timestamp
	GetResources(nid NodeId) map[RepoId]Timestamp
	Insert(rids []RepoId, nid NodeId, t Timestamp) []RoutingUpdate
	Remove(rid RepoId, nid NodeId) bool
	Prune(olderThan Timestamp, limit int) int
	Len() int
	Count(rid RepoId) int
}

// Severity grades a disconnection's impact on address ranking: a
// failed dial counts less against a candidate than a protocol
// violation mid-session (spec section 7).
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
)

// AddressEntry is everything known about one peer's identity and
// reachability, as accumulated from NodeAnnouncements and direct
// connection outcomes.
type AddressEntry struct {
	Features  uint64
	Alias     string
	Work      uint64
	Timestamp Timestamp
	Addresses []KnownAddress
	Source    AddressSource
}

// AddressStore is the address book (spec section 4.5/4.6): known peer
// identities, their advertised and observed addresses, and enough
// history to rank dial candidates and back off from bad ones.
type AddressStore interface {
	Get(nid NodeId) (AddressEntry, bool)
	Upsert(nid NodeId, features uint64, alias string, work uint64, t Timestamp, addrs []Address, source AddressSource) bool
	MarkAttempted(nid NodeId, addr Address, now Timestamp)
	MarkConnected(nid NodeId, addr Address, now Timestamp)
	MarkDisconnected(nid NodeId, addr Address, severity Severity, now Timestamp)
	Best(nid NodeId, now Timestamp, retryDelta time.Duration) (Address, bool)
	All() []NodeId
}

// GossipStore deduplicates announcements by (announcer, variant, repo)
// and retains them long enough to replay to newly-subscribed peers
// (spec section 4.3).
type GossipStore interface {
	// Announced records ann if it is strictly newer than anything
	// stored for the same (announcer, variant, repo) key, returning
	// whether it was accepted as fresh.
	Announced(ann Announcement) bool
	Filtered(filter *Filter, since, until Timestamp) []Announcement
	Last() (Timestamp, bool)
	Prune(olderThan Timestamp) int
}

type SyncStatusKind int

const (
	SyncUnknown SyncStatusKind = iota
	SyncInSync
	SyncOutOfSync
)

// SyncStatus answers "is our copy of rid caught up with remote", the
// supplemented Command::SyncStatus surface (spec section 6 supplement).
// Replicas/ReplicationMet report the replication-factor tracking from
// spec section 6 supplement (preferred seeds / replication factor):
// how many distinct seeds rid has been successfully fetched from, and
// whether that count meets the configured lower bound.
type SyncStatus struct {
	Kind           SyncStatusKind
	Local          Oid
	Remote         Oid
	Replicas       int
	ReplicationMet bool
}

// SeedRecord is one observed (repo, seeder) synchronization fact.
type SeedRecord struct {
	Rid             RepoId
	Seeder          NodeId
	SyncedAt        Oid
	SyncedTimestamp Timestamp
}

// SeedStore tracks, per repository, which remote seeders we have
// confirmed are synced to which oid (spec section 4.3.3/6 supplement).
type SeedStore interface {
	Synced(rid RepoId, nid NodeId, oid Oid, t Timestamp) bool
	SeedsFor(rid RepoId) []SeedRecord
	SeededBy(nid NodeId) []SeedRecord
}

// Scope controls which namespaces of a repository's refs the service
// fetches and relays: the full set, or only refs owned by explicitly
// followed peers (spec section 6 supplement).
type Scope int

const (
	ScopeAll Scope = iota
	ScopeFollowed
)

func (s Scope) String() string {
	if s == ScopeFollowed {
		return "followed"
	}
	return "all"
}

type SeedPolicyKind int

const (
	PolicyBlock SeedPolicyKind = iota
	PolicyAllow
)

// SeedPolicy is the local decision to seed (or not) a repository, plus
// the namespace scope and any preferred seeds to dial first (spec
// section 6 supplement: preferred seeds / replication factor).
type SeedPolicy struct {
	Rid       RepoId
	Policy    SeedPolicyKind
	Scope     Scope
	Preferred []NodeId
}

// FollowEntry is one peer the local node explicitly follows, gating
// ScopeFollowed namespace computation.
type FollowEntry struct {
	Id    NodeId
	Alias string
}

// Namespaces is the resolved set of remotes whose refs under a
// repository should be fetched/relayed.
type Namespaces struct {
	All      bool
	Followed map[NodeId]struct{}
}

func (n Namespaces) includes(nid NodeId) bool {
	if n.All {
		return true
	}
	_, ok := n.Followed[nid]
	return ok
}

// PolicyStore is the local seeding/following configuration (spec
// section 6): which repositories we seed and under what scope, and
// which peers we explicitly follow.
type PolicyStore interface {
	IsSeeding(rid RepoId) bool
	SeedPolicies() []SeedPolicy
	SeedPolicy(rid RepoId) (SeedPolicy, bool)
	Seed(rid RepoId, scope Scope, preferred []NodeId) bool
	Unseed(rid RepoId) bool
	Follow(nid NodeId, alias string) bool
	Unfollow(nid NodeId) bool
	IsFollowing(nid NodeId) bool
	Followed() []FollowEntry
	NamespacesFor(rid RepoId) Namespaces
}

// RepoRefs maps each known remote's ref under a repository to its tip.
type RepoRefs map[NodeId]Oid

// Storage is the local collaboration-object store: the actual
// content-addressable object format and wire-level fetch transport are
// out of scope (spec Non-goals), so this interface only exposes the
// bookkeeping the service needs to decide what to fetch and announce.
type Storage interface {
	Inventory() []RepoId
	Contains(rid RepoId) bool
	Refs(rid RepoId) (RepoRefs, error)
	SetRef(rid RepoId, remote NodeId, at Oid) error
	IdentityDoc(rid RepoId) ([]byte, bool)
}

// FetchRequest is what the service asks the reactor's fetch worker to
// do: pull rid's objects from peer From, constrained to Namespaces,
// with RefsAt as the tips the announcement promised.
type FetchRequest struct {
	Rid        RepoId
	From       NodeId
	Namespaces Namespaces
	RefsAt     []RefTip
	Timeout    time.Duration
}

// FetchOutcome is what changed locally as a result of a successful
// fetch: each remote whose ref tip moved, and the namespace scope it
// was fetched under.
type FetchOutcome struct {
	Updated    map[NodeId]Oid
	Namespaces Namespaces
}

type FetchErrorKind int

const (
	FetchErrOther FetchErrorKind = iota
	FetchErrTimeout
)

// FetchResult is reported back to the service via Service.Fetched.
type FetchResult struct {
	Ok      *FetchOutcome
	Err     error
	ErrKind FetchErrorKind
}
