package node

// Wake runs every periodic task whose interval has elapsed since the
// last call, then schedules the next wakeup (spec section 4.8). The
// driver is expected to call Wake whenever a previously-requested
// WakeupAction's delay elapses, and nothing else drives these tasks.
func (s *Service) Wake() []OutboxAction {
	now := s.clock.Now()

	if now-s.lastIdle >= Timestamp(s.cfg.IdleInterval.Milliseconds()) {
		s.idle(now)
		s.lastIdle = now
	}
	if now-s.lastSync >= Timestamp(s.cfg.SyncInterval.Milliseconds()) {
		s.syncTick(now)
		s.lastSync = now
	}
	if now-s.lastAnnounce >= Timestamp(s.cfg.AnnounceInterval.Milliseconds()) {
		s.announceTick(now)
		s.lastAnnounce = now
	}
	if now-s.lastPrune >= Timestamp(s.cfg.PruneInterval.Milliseconds()) {
		s.pruneTick(now)
		s.lastPrune = now
	}
	s.maintainPersistent(now)
	s.outbox.push(WakeupAction{After: s.cfg.IdleInterval})
	return s.outbox.Drain()
}

// idle disconnects sessions that have gone quiet past
// StaleConnectionTimeout and pings the ones merely past
// KeepAliveInterval, then tops up outbound connections (spec section
// 4.6/4.8).
func (s *Service) idle(now Timestamp) {
	staleAt := now - Timestamp(s.cfg.StaleConnectionTimeout.Milliseconds())
	keepAliveAt := now - Timestamp(s.cfg.KeepAliveInterval.Milliseconds())
	for nid, sess := range s.sessions {
		if !sess.IsConnected() {
			continue
		}
		if sess.LastActive <= staleAt {
			s.disconnect(nid, ReasonTimeout)
			continue
		}
		if sess.LastActive <= keepAliveAt && sess.PingState == PingOk {
			s.sendPing(nid, sess)
		}
	}
	s.maintainConnections(now)
}

func (s *Service) sendPing(nid NodeId, sess *Session) {
	n := s.rng.Uint64()
	plen := int(n%32) + 1
	sess.PingState = PingAwaiting
	sess.PingAwaitingLen = plen
	sess.PingNonce = n
	s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgPing, Ping: &PingMessage{Nonce: n, PongLen: plen}}})
}

// syncTick fetches repositories we've decided to seed but don't yet
// have locally, and keeps fetching additional replicas of ones we
// already have until the replication factor is satisfied (spec section
// 6 supplement: preferred seeds / replication factor — "succeeds once
// either all preferred seeds are synced or the lower-bound replica
// count is reached").
func (s *Service) syncTick(now Timestamp) {
	for _, sp := range s.policy.SeedPolicies() {
		if sp.Policy != PolicyAllow {
			continue
		}
		if s.storage.Contains(sp.Rid) && s.replicationSatisfied(sp) {
			continue
		}
		if nid, ok := s.pickSeeder(sp); ok {
			s.tryFetch(sp.Rid, nid, nil, s.cfg.FetchTimeout, nil)
		}
	}
}

// replicationSatisfied reports whether rid has enough distinct
// successfully-fetched-from seeds to stop actively seeking more: either
// every preferred seed is accounted for, or the configured lower bound
// of distinct seeds has been reached.
func (s *Service) replicationSatisfied(sp SeedPolicy) bool {
	replicas := s.replicas[sp.Rid]
	if len(replicas) >= s.cfg.DefaultReplication.LowerBound {
		return true
	}
	if len(sp.Preferred) == 0 {
		return false
	}
	for _, nid := range sp.Preferred {
		if _, ok := replicas[nid]; !ok {
			return false
		}
	}
	return true
}

// pickSeeder chooses a connected peer to fetch rid from, preferring
// the repo's configured preferred seeds before falling back to any
// known seeder from the routing table, skipping seeds already counted
// toward the replication factor (spec section 6 supplement: preferred
// seeds).
func (s *Service) pickSeeder(sp SeedPolicy) (NodeId, bool) {
	replicas := s.replicas[sp.Rid]
	for _, nid := range sp.Preferred {
		if _, already := replicas[nid]; already {
			continue
		}
		if sess, ok := s.sessions[nid]; ok && sess.IsConnected() {
			return nid, true
		}
	}
	for nid := range s.routing.Get(sp.Rid) {
		if _, already := replicas[nid]; already {
			continue
		}
		if sess, ok := s.sessions[nid]; ok && sess.IsConnected() {
			return nid, true
		}
	}
	return NodeId(""), false
}

func (s *Service) announceTick(now Timestamp) {
	s.broadcastInventory(now)
}

func (s *Service) pruneTick(now Timestamp) {
	removed := s.routing.Prune(now-Timestamp(s.cfg.Limits.RoutingMaxAge.Milliseconds()), s.cfg.Limits.RoutingMaxSize)
	if removed > 0 {
		s.metrics.RoutingEntries.Set(float64(s.routing.Len()))
	}
	s.gossip.Prune(now - Timestamp(s.cfg.Limits.GossipMaxAge.Milliseconds()))
}

// maintainConnections dials fresh outbound peers from the address book
// until TargetOutbound active (connected or attempted) outbound
// sessions are reached (spec section 4.6).
func (s *Service) maintainConnections(now Timestamp) {
	if s.cfg.TargetOutbound <= 0 {
		return
	}
	active := 0
	for _, sess := range s.sessions {
		if sess.Link == Outbound && (sess.State == StateConnected || sess.State == StateAttempted) {
			active++
		}
	}
	wanted := s.cfg.TargetOutbound - active
	if wanted <= 0 {
		return
	}
	for _, nid := range s.addresses.All() {
		if wanted <= 0 {
			break
		}
		if _, exists := s.sessions[nid]; exists {
			continue
		}
		addr, ok := s.addresses.Best(nid, now, s.cfg.ConnectionRetryDelta)
		if !ok {
			continue
		}
		s.connectTo(nid, addr, false, s.cfg.FetchTimeout)
		wanted--
	}
}

// maintainPersistent redials persistent peers whose backoff has
// elapsed since their last disconnection (spec section 4.2).
func (s *Service) maintainPersistent(now Timestamp) {
	for nid, sess := range s.sessions {
		if sess.Persistent && sess.State == StateDisconnected && now >= sess.RetryAt {
			s.connectTo(nid, sess.Addr, true, s.cfg.FetchTimeout)
		}
	}
}
