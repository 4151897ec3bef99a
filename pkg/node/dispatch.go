package node

import "time"

// Accepted is called when the reactor admits an inbound TCP/QUIC
// connection before the peer's identity is known. It only applies
// connection-level rate limiting (spec section 4.6); the session itself
// is created once Connected reports the peer's NodeId.
func (s *Service) Accepted(addr Address) bool {
	return s.limiter.Allow(addr.Host())
}

// Attempted records that the reactor started dialing nid at addr.
func (s *Service) Attempted(nid NodeId, addr Address) {
	sess, ok := s.sessions[nid]
	if !ok {
		sess = newSession(nid, addr, Outbound, false)
		s.sessions[nid] = sess
	}
	sess.Addr = addr
	sess.State = StateAttempted
	sess.Attempts++
	s.addresses.MarkAttempted(nid, addr, s.clock.Now())
	s.metrics.SessionsTotal.WithLabelValues(StateAttempted.String()).Inc()
}

// Connected is called once a session's handshake has identified the
// remote NodeId, whether we dialed it or accepted it. It installs the
// session, exchanges our NodeAnnouncement/InventoryAnnouncement, and
// for outbound sessions sends our Subscribe predicate (spec section
// 4.2/4.3).
func (s *Service) Connected(nid NodeId, addr Address, link LinkDirection, persistent bool) {
	now := s.clock.Now()
	sess, exists := s.sessions[nid]
	if exists && sess.State == StateConnected {
		s.log.Warn("duplicate connected event ignored", "peer", nid)
		return
	}
	if !exists {
		sess = newSession(nid, addr, link, persistent)
		s.sessions[nid] = sess
	}
	sess.Addr = addr
	sess.Link = link
	sess.Persistent = sess.Persistent || persistent
	sess.State = StateConnected
	sess.ConnectedSince = now
	sess.LastActive = now
	sess.PingState = PingOk
	sess.Attempts = 0

	s.addresses.MarkConnected(nid, addr, now)
	s.metrics.SessionsConnected.Inc()
	s.metrics.SessionsTotal.WithLabelValues(StateConnected.String()).Inc()

	if selfAnn, err := SignAnnouncement(s.signer, s.buildNodeAnnouncement(now)); err == nil {
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgAnnouncement, Announcement: &selfAnn}})
	} else {
		s.log.Error("signing node announcement", "err", err)
	}

	if invAnn, err := SignAnnouncement(s.signer, s.buildInventoryAnnouncement(now)); err == nil {
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgAnnouncement, Announcement: &invAnn}})
	} else {
		s.log.Error("signing inventory announcement", "err", err)
	}

	if link == Outbound {
		last, ok := s.gossip.Last()
		if !ok {
			last = now
		}
		since := minTimestamp(last-Timestamp(s.cfg.MaxTimeDelta.Milliseconds()), now-Timestamp(s.cfg.InitialSubscribeBacklog.Milliseconds()))
		sess.Subscribe = &Subscription{Filter: s.localFilter, Since: since, Until: TimestampMax}
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgSubscribe, Subscribe: &SubscribeMessage{
			Filter: s.localFilter, Since: since, Until: TimestampMax,
		}}})
	}
}

// Disconnected tears a session down: in-flight fetches are failed out
// to their subscribers, the address book is marked with the severity
// the reason implies, and persistent peers are scheduled for backoff
// reconnection rather than forgotten (spec section 4.2/4.5).
func (s *Service) Disconnected(nid NodeId, reason DisconnectReason) {
	sess, ok := s.sessions[nid]
	if !ok {
		return
	}
	now := s.clock.Now()
	s.addresses.MarkDisconnected(nid, sess.Addr, severityFor(reason), now)
	s.metrics.SessionsConnected.Add(-1)
	s.metrics.SessionsTotal.WithLabelValues(StateDisconnected.String()).Inc()

	for rid := range sess.Fetching {
		s.Fetched(rid, nid, FetchResult{Err: ErrPeerDisconnected})
	}

	if sess.Persistent {
		sess.State = StateDisconnected
		sess.DisconnectedSince = now
		backoff := backoffFor(sess.Attempts, s.cfg.MinReconnectionDelta, s.cfg.MaxReconnectionDelta)
		sess.RetryAt = now + Timestamp(backoff.Milliseconds())
		s.outbox.push(WakeupAction{After: backoff})
	} else {
		delete(s.sessions, nid)
	}
}

// ReceivedMessage dispatches one wire message from an established
// session. Session-fatal errors from announcement handling result in a
// DisconnectAction rather than propagating to the caller — the core
// never panics or returns on protocol violations, it tears the
// offending session down (spec section 4.7).
func (s *Service) ReceivedMessage(nid NodeId, msg Message) {
	sess, ok := s.sessions[nid]
	if !ok {
		s.log.Debug("message from unknown session dropped", "peer", nid)
		return
	}
	if !s.limiter.Allow(sess.Addr.Host()) {
		s.metrics.RateLimited.Inc()
		return
	}
	if sess.State != StateConnected {
		s.log.Debug("message in non-connected state dropped", "peer", nid, "state", sess.State)
		return
	}
	sess.LastActive = s.clock.Now()

	switch msg.Kind {
	case MsgAnnouncement:
		if msg.Announcement == nil {
			return
		}
		if err := s.onAnnouncement(nid, *msg.Announcement); err != nil {
			s.log.Warn("session fatal", "peer", nid, "err", err)
			s.disconnect(nid, ReasonSession)
		}
	case MsgSubscribe:
		if msg.Subscribe != nil {
			s.onSubscribe(nid, sess, *msg.Subscribe)
		}
	case MsgInfo:
		if msg.Info != nil {
			s.onInfo(nid, *msg.Info)
		}
	case MsgPing:
		if msg.Ping != nil {
			s.onPing(nid, *msg.Ping)
		}
	case MsgPong:
		if msg.Pong != nil {
			s.onPong(sess, *msg.Pong)
		}
	}
}

func (s *Service) onSubscribe(nid NodeId, sess *Session, sub SubscribeMessage) {
	sess.Subscribe = &Subscription{Filter: sub.Filter, Since: sub.Since, Until: sub.Until}
	for _, ann := range s.gossip.Filtered(sub.Filter, sub.Since, sub.Until) {
		if ann.Announcer == nid {
			continue
		}
		annCopy := ann
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgAnnouncement, Announcement: &annCopy}})
	}
}

func (s *Service) onInfo(nid NodeId, info InfoMessage) {
	switch info.Kind {
	case InfoRefsAlreadySynced:
		if s.seeds.Synced(info.Rid, nid, info.At, s.clock.Now()) {
			s.log.Debug("peer confirmed already synced", "peer", nid, "rid", info.Rid)
		}
	}
}

func (s *Service) onPing(nid NodeId, ping PingMessage) {
	if ping.PongLen < 0 || ping.PongLen > s.cfg.Limits.MaxPongZeroes {
		s.disconnect(nid, ReasonSession)
		return
	}
	s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgPong, Pong: &PongMessage{Zeroes: make([]byte, ping.PongLen)}}})
}

func (s *Service) onPong(sess *Session, pong PongMessage) {
	if sess.PingState == PingAwaiting && sess.PingAwaitingLen == len(pong.Zeroes) {
		sess.PingState = PingOk
	}
}

func backoffFor(attempts int, min, max time.Duration) time.Duration {
	d := time.Duration(1) << uint(clampAttempts(attempts)) * time.Second
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func clampAttempts(attempts int) int {
	if attempts < 0 {
		return 0
	}
	if attempts > 20 {
		return 20
	}
	return attempts
}
