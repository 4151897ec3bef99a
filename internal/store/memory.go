// Package store provides in-memory reference implementations of the
// node package's store interfaces (routing, address book, gossip
// cache, seed tracking, seed/follow policy, and repository storage).
// A durable backing store (e.g. SQLite, as the upstream project uses)
// is out of scope for this module; these implementations exist so the
// service is runnable and testable end to end.
//
// None of these types use internal locking: every node.Service method
// that touches a store runs on the single goroutine driving the
// service (see pkg/node's package doc), so concurrent access never
// happens in practice. Adding mutexes here would only hide a misuse
// bug behind silent serialization.
package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/shurlinet/meshnode/pkg/node"
)

// Routing is an in-memory node.RoutingStore: RepoId -> NodeId ->
// Timestamp, with monotonic-max overwrite semantics.
type Routing struct {
	byRepo map[node.RepoId]map[node.NodeId]node.Timestamp
}

func NewRouting() *Routing {
	return &Routing{byRepo: make(map[node.RepoId]map[node.NodeId]node.Timestamp)}
}

func (r *Routing) Get(rid node.RepoId) map[node.NodeId]node.Timestamp {
	out := make(map[node.NodeId]node.Timestamp, len(r.byRepo[rid]))
	for k, v := range r.byRepo[rid] {
		out[k] = v
	}
	return out
}

func (r *Routing) GetResources(nid node.NodeId) map[node.RepoId]node.Timestamp {
	out := make(map[node.RepoId]node.Timestamp)
	for rid, seeders := range r.byRepo {
		if t, ok := seeders[nid]; ok {
			out[rid] = t
		}
	}
	return out
}

func (r *Routing) Insert(rids []node.RepoId, nid node.NodeId, t node.Timestamp) []node.RoutingUpdate {
	updates := make([]node.RoutingUpdate, 0, len(rids))
	for _, rid := range rids {
		seeders, ok := r.byRepo[rid]
		if !ok {
			seeders = make(map[node.NodeId]node.Timestamp)
			r.byRepo[rid] = seeders
		}
		prev, existed := seeders[nid]
		switch {
		case !existed:
			seeders[nid] = t
			updates = append(updates, node.RoutingUpdate{Rid: rid, Result: node.RoutingAdded})
		case t > prev:
			seeders[nid] = t
			updates = append(updates, node.RoutingUpdate{Rid: rid, Result: node.RoutingTimeUpdated})
		default:
			updates = append(updates, node.RoutingUpdate{Rid: rid, Result: node.RoutingNotUpdated})
		}
	}
	return updates
}

func (r *Routing) Remove(rid node.RepoId, nid node.NodeId) bool {
	seeders, ok := r.byRepo[rid]
	if !ok {
		return false
	}
	if _, ok := seeders[nid]; !ok {
		return false
	}
	delete(seeders, nid)
	if len(seeders) == 0 {
		delete(r.byRepo, rid)
	}
	return true
}

// Prune drops entries older than olderThan, then if the table still
// exceeds limit rows, evicts the globally-oldest entries until it
// doesn't. limit <= 0 disables the size cap.
func (r *Routing) Prune(olderThan node.Timestamp, limit int) int {
	removed := 0
	for rid, seeders := range r.byRepo {
		for nid, t := range seeders {
			if t < olderThan {
				delete(seeders, nid)
				removed++
			}
		}
		if len(seeders) == 0 {
			delete(r.byRepo, rid)
		}
	}
	if limit <= 0 {
		return removed
	}
	type row struct {
		rid node.RepoId
		nid node.NodeId
		t   node.Timestamp
	}
	var rows []row
	for rid, seeders := range r.byRepo {
		for nid, t := range seeders {
			rows = append(rows, row{rid, nid, t})
		}
	}
	if len(rows) <= limit {
		return removed
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].t < rows[j].t })
	for _, row := range rows[:len(rows)-limit] {
		delete(r.byRepo[row.rid], row.nid)
		if len(r.byRepo[row.rid]) == 0 {
			delete(r.byRepo, row.rid)
		}
		removed++
	}
	return removed
}

func (r *Routing) Len() int {
	n := 0
	for _, seeders := range r.byRepo {
		n += len(seeders)
	}
	return n
}

func (r *Routing) Count(rid node.RepoId) int { return len(r.byRepo[rid]) }

// Addresses is an in-memory node.AddressStore.
type Addresses struct {
	entries map[node.NodeId]node.AddressEntry
}

func NewAddresses() *Addresses {
	return &Addresses{entries: make(map[node.NodeId]node.AddressEntry)}
}

func (a *Addresses) Get(nid node.NodeId) (node.AddressEntry, bool) {
	e, ok := a.entries[nid]
	return e, ok
}

func (a *Addresses) Upsert(nid node.NodeId, features uint64, alias string, work uint64, t node.Timestamp, addrs []node.Address, source node.AddressSource) bool {
	e, existed := a.entries[nid]
	if existed && t <= e.Timestamp {
		return false
	}
	known := e.Addresses
	for _, addr := range addrs {
		found := false
		for i := range known {
			if known[i].Address.String() == addr.String() {
				found = true
				break
			}
		}
		if !found {
			known = append(known, node.KnownAddress{Address: addr, Source: source})
		}
	}
	a.entries[nid] = node.AddressEntry{
		Features: features, Alias: alias, Work: work, Timestamp: t,
		Addresses: known, Source: source,
	}
	return true
}

// MarkAttempted, MarkConnected and MarkDisconnected update peers already
// in the book; they never add an entry for an unknown peer.
func (a *Addresses) MarkAttempted(nid node.NodeId, addr node.Address, now node.Timestamp) {
	e, ok := a.entries[nid]
	if !ok {
		return
	}
	e.Addresses = upsertKnown(e.Addresses, addr, func(k *node.KnownAddress) { k.LastAttempt = now })
	a.entries[nid] = e
}

func (a *Addresses) MarkConnected(nid node.NodeId, addr node.Address, now node.Timestamp) {
	e, ok := a.entries[nid]
	if !ok {
		return
	}
	e.Addresses = upsertKnown(e.Addresses, addr, func(k *node.KnownAddress) {
		k.LastSuccess = now
		k.LastAttempt = now
		k.Banned = false
	})
	a.entries[nid] = e
}

func (a *Addresses) MarkDisconnected(nid node.NodeId, addr node.Address, severity node.Severity, now node.Timestamp) {
	e, ok := a.entries[nid]
	if !ok {
		return
	}
	e.Addresses = upsertKnown(e.Addresses, addr, func(k *node.KnownAddress) {
		if severity == node.SeverityMedium {
			k.Banned = true
		}
	})
	a.entries[nid] = e
}

func upsertKnown(known []node.KnownAddress, addr node.Address, mutate func(*node.KnownAddress)) []node.KnownAddress {
	for i := range known {
		if known[i].Address.String() == addr.String() {
			mutate(&known[i])
			return known
		}
	}
	ka := node.KnownAddress{Address: addr}
	mutate(&ka)
	return append(known, ka)
}

// Best picks the candidate address for nid most likely to succeed: not
// banned, and either never attempted or last attempted longer than
// retryDelta ago, preferring the one with the most recent LastSuccess.
func (a *Addresses) Best(nid node.NodeId, now node.Timestamp, retryDelta time.Duration) (node.Address, bool) {
	e, ok := a.entries[nid]
	if !ok {
		return node.Address{}, false
	}
	retryWindow := node.Timestamp(retryDelta.Milliseconds())
	var best *node.KnownAddress
	for i := range e.Addresses {
		k := &e.Addresses[i]
		if k.Banned {
			continue
		}
		if k.LastAttempt != 0 && now-k.LastAttempt < retryWindow {
			continue
		}
		if best == nil || k.LastSuccess > best.LastSuccess {
			best = k
		}
	}
	if best == nil {
		return node.Address{}, false
	}
	return best.Address, true
}

func (a *Addresses) All() []node.NodeId {
	out := make([]node.NodeId, 0, len(a.entries))
	for nid := range a.entries {
		out = append(out, nid)
	}
	return out
}

// Gossip is an in-memory node.GossipStore deduplicating by
// (announcer, variant, repo).
type Gossip struct {
	entries map[gossipKey]node.Announcement
	last    node.Timestamp
	haveLast bool
}

type gossipKey struct {
	announcer node.NodeId
	variant   node.AnnouncementVariant
	rid       node.RepoId
}

func NewGossip() *Gossip {
	return &Gossip{entries: make(map[gossipKey]node.Announcement)}
}

func keyOf(ann node.Announcement) gossipKey {
	k := gossipKey{announcer: ann.Announcer}
	switch m := ann.Message.(type) {
	case node.NodeAnnouncementMsg:
		k.variant = node.VariantNode
	case node.InventoryAnnouncementMsg:
		k.variant = node.VariantInventory
	case node.RefsAnnouncementMsg:
		k.variant = node.VariantRefs
		k.rid = m.Rid
	}
	return k
}

func timestampOf(ann node.Announcement) node.Timestamp {
	switch m := ann.Message.(type) {
	case node.NodeAnnouncementMsg:
		return m.Timestamp
	case node.InventoryAnnouncementMsg:
		return m.Timestamp
	case node.RefsAnnouncementMsg:
		return m.Timestamp
	}
	return 0
}

func (g *Gossip) Announced(ann node.Announcement) bool {
	k := keyOf(ann)
	ts := timestampOf(ann)
	if existing, ok := g.entries[k]; ok {
		if ts <= timestampOf(existing) {
			return false
		}
	}
	g.entries[k] = ann
	if !g.haveLast || ts > g.last {
		g.last = ts
		g.haveLast = true
	}
	return true
}

func (g *Gossip) Filtered(filter *node.Filter, since, until node.Timestamp) []node.Announcement {
	out := make([]node.Announcement, 0)
	for _, ann := range g.entries {
		ts := timestampOf(ann)
		if ts < since || ts > until {
			continue
		}
		scope := scopeOf(ann)
		if len(scope) == 0 {
			out = append(out, ann)
			continue
		}
		for _, rid := range scope {
			if filter.Contains(rid) {
				out = append(out, ann)
				break
			}
		}
	}
	return out
}

func scopeOf(ann node.Announcement) []node.RepoId {
	switch m := ann.Message.(type) {
	case node.InventoryAnnouncementMsg:
		return m.Inventory
	case node.RefsAnnouncementMsg:
		return []node.RepoId{m.Rid}
	default:
		return nil
	}
}

func (g *Gossip) Last() (node.Timestamp, bool) { return g.last, g.haveLast }

func (g *Gossip) Prune(olderThan node.Timestamp) int {
	removed := 0
	for k, ann := range g.entries {
		if timestampOf(ann) < olderThan {
			delete(g.entries, k)
			removed++
		}
	}
	return removed
}

// Seeds is an in-memory node.SeedStore.
type Seeds struct {
	records map[node.RepoId]map[node.NodeId]node.SeedRecord
}

func NewSeeds() *Seeds {
	return &Seeds{records: make(map[node.RepoId]map[node.NodeId]node.SeedRecord)}
}

func (s *Seeds) Synced(rid node.RepoId, nid node.NodeId, oid node.Oid, t node.Timestamp) bool {
	byRid, ok := s.records[rid]
	if !ok {
		byRid = make(map[node.NodeId]node.SeedRecord)
		s.records[rid] = byRid
	}
	if existing, ok := byRid[nid]; ok && existing.SyncedTimestamp >= t {
		return false
	}
	byRid[nid] = node.SeedRecord{Rid: rid, Seeder: nid, SyncedAt: oid, SyncedTimestamp: t}
	return true
}

func (s *Seeds) SeedsFor(rid node.RepoId) []node.SeedRecord {
	out := make([]node.SeedRecord, 0, len(s.records[rid]))
	for _, rec := range s.records[rid] {
		out = append(out, rec)
	}
	return out
}

func (s *Seeds) SeededBy(nid node.NodeId) []node.SeedRecord {
	out := make([]node.SeedRecord, 0)
	for _, byRid := range s.records {
		if rec, ok := byRid[nid]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Policy is an in-memory node.PolicyStore.
type Policy struct {
	seeds    map[node.RepoId]node.SeedPolicy
	follows  map[node.NodeId]node.FollowEntry
}

func NewPolicy() *Policy {
	return &Policy{
		seeds:   make(map[node.RepoId]node.SeedPolicy),
		follows: make(map[node.NodeId]node.FollowEntry),
	}
}

func (p *Policy) IsSeeding(rid node.RepoId) bool {
	sp, ok := p.seeds[rid]
	return ok && sp.Policy == node.PolicyAllow
}

func (p *Policy) SeedPolicies() []node.SeedPolicy {
	out := make([]node.SeedPolicy, 0, len(p.seeds))
	for _, sp := range p.seeds {
		out = append(out, sp)
	}
	return out
}

func (p *Policy) SeedPolicy(rid node.RepoId) (node.SeedPolicy, bool) {
	sp, ok := p.seeds[rid]
	return sp, ok
}

func (p *Policy) Seed(rid node.RepoId, scope node.Scope, preferred []node.NodeId) bool {
	existing, ok := p.seeds[rid]
	if ok && existing.Policy == node.PolicyAllow && existing.Scope == scope && sameIds(existing.Preferred, preferred) {
		return false
	}
	p.seeds[rid] = node.SeedPolicy{Rid: rid, Policy: node.PolicyAllow, Scope: scope, Preferred: preferred}
	return true
}

func (p *Policy) Unseed(rid node.RepoId) bool {
	if _, ok := p.seeds[rid]; !ok {
		return false
	}
	delete(p.seeds, rid)
	return true
}

func (p *Policy) Follow(nid node.NodeId, alias string) bool {
	existing, ok := p.follows[nid]
	if ok && existing.Alias == alias {
		return false
	}
	p.follows[nid] = node.FollowEntry{Id: nid, Alias: alias}
	return true
}

func (p *Policy) Unfollow(nid node.NodeId) bool {
	if _, ok := p.follows[nid]; !ok {
		return false
	}
	delete(p.follows, nid)
	return true
}

func (p *Policy) IsFollowing(nid node.NodeId) bool {
	_, ok := p.follows[nid]
	return ok
}

func (p *Policy) Followed() []node.FollowEntry {
	out := make([]node.FollowEntry, 0, len(p.follows))
	for _, f := range p.follows {
		out = append(out, f)
	}
	return out
}

func (p *Policy) NamespacesFor(rid node.RepoId) node.Namespaces {
	sp, ok := p.seeds[rid]
	if !ok || sp.Scope == node.ScopeAll {
		return node.Namespaces{All: true}
	}
	followed := make(map[node.NodeId]struct{}, len(p.follows))
	for nid := range p.follows {
		followed[nid] = struct{}{}
	}
	return node.Namespaces{Followed: followed}
}

func sameIds(a, b []node.NodeId) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[node.NodeId]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Storage is an in-memory node.Storage. The content-addressable object
// format and wire-level fetch transport are out of scope for this
// module (spec Non-goals); this only tracks which repositories are
// locally present and the ref tips the service needs to reason about.
type Storage struct {
	repos map[node.RepoId]*repoState
}

type repoState struct {
	identityDoc []byte
	refs        node.RepoRefs
}

func NewStorage() *Storage {
	return &Storage{repos: make(map[node.RepoId]*repoState)}
}

// Create registers rid as locally present, with identityDoc as the
// document its RepoId was derived from. Tests use this to seed fixture
// storage.
func (s *Storage) Create(rid node.RepoId, identityDoc []byte) {
	s.repos[rid] = &repoState{identityDoc: identityDoc, refs: make(node.RepoRefs)}
}

func (s *Storage) Inventory() []node.RepoId {
	out := make([]node.RepoId, 0, len(s.repos))
	for rid := range s.repos {
		out = append(out, rid)
	}
	return out
}

func (s *Storage) Contains(rid node.RepoId) bool {
	_, ok := s.repos[rid]
	return ok
}

func (s *Storage) Refs(rid node.RepoId) (node.RepoRefs, error) {
	r, ok := s.repos[rid]
	if !ok {
		return nil, fmt.Errorf("store: repository %s not present", rid)
	}
	out := make(node.RepoRefs, len(r.refs))
	for k, v := range r.refs {
		out[k] = v
	}
	return out, nil
}

func (s *Storage) SetRef(rid node.RepoId, remote node.NodeId, at node.Oid) error {
	r, ok := s.repos[rid]
	if !ok {
		return fmt.Errorf("store: repository %s not present", rid)
	}
	r.refs[remote] = at
	return nil
}

func (s *Storage) IdentityDoc(rid node.RepoId) ([]byte, bool) {
	r, ok := s.repos[rid]
	if !ok {
		return nil, false
	}
	return r.identityDoc, true
}
