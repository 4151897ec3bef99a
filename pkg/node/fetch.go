package node

import "time"

// FetchSubscriber receives exactly one FetchOutcomeOrErr when the fetch
// it was attached to completes (spec section 4.4 invariant: "every
// subscriber receives exactly one result").
type FetchSubscriber chan FetchOutcomeOrErr

type FetchOutcomeOrErr struct {
	Rid     RepoId
	Outcome *FetchOutcome
	Err     error
}

// fetchState is the single in-flight fetch for a RepoId: at most one
// exists per RepoId across the whole service at any moment (spec
// section 4.4 invariant 1).
type fetchState struct {
	From        NodeId
	Subscribers []FetchSubscriber
}

type fetchQueueItem struct {
	Rid        RepoId
	From       NodeId
	RefsAt     []RefTip
	Timeout    time.Duration
	Subscriber FetchSubscriber
}

// Fetch is the Command::Fetch-facing entry point: it returns a channel
// the caller can block on for the eventual result, whether the fetch
// runs immediately, waits behind another in-flight fetch for the same
// repository, or waits for a free slot on the session. When from has
// no session, or no fetch for rid is in flight and from's session is
// not connected, it returns that error and no channel.
func (s *Service) Fetch(rid RepoId, from NodeId, timeout time.Duration) (FetchSubscriber, error) {
	ch := make(FetchSubscriber, 1)
	err := s.tryFetch(rid, from, nil, timeout, ch)
	if err != nil && err != ErrSessionCapacityReached {
		return nil, err
	}
	return ch, nil
}

// tryFetch implements the fetch scheduler (spec section 4.4): attach
// to an identical in-flight fetch, defer behind a conflicting one or a
// capacity-limited session, or dispatch immediately. sub may be nil
// for internally-triggered fetches (inventory/refs driven) that have
// no external caller waiting on the result.
func (s *Service) tryFetch(rid RepoId, from NodeId, refsAt []RefTip, timeout time.Duration, sub FetchSubscriber) error {
	sess, ok := s.sessions[from]
	if !ok {
		return ErrSessionNotFound
	}

	if fs, exists := s.fetches[rid]; exists {
		if fs.From == from {
			if sub != nil {
				fs.Subscribers = append(fs.Subscribers, sub)
			}
			return nil
		}
		s.fetchQueue = append(s.fetchQueue, fetchQueueItem{Rid: rid, From: from, RefsAt: refsAt, Timeout: timeout, Subscriber: sub})
		return nil
	}

	if sess.State != StateConnected {
		return ErrSessionNotConnected
	}
	if sess.AtFetchCapacity(s.cfg.Limits.FetchConcurrency) {
		s.fetchQueue = append(s.fetchQueue, fetchQueueItem{Rid: rid, From: from, RefsAt: refsAt, Timeout: timeout, Subscriber: sub})
		return ErrSessionCapacityReached
	}

	var subs []FetchSubscriber
	if sub != nil {
		subs = []FetchSubscriber{sub}
	}
	s.dispatchFetch(rid, from, refsAt, timeout, subs)
	return nil
}

func (s *Service) dispatchFetch(rid RepoId, from NodeId, refsAt []RefTip, timeout time.Duration, subs []FetchSubscriber) {
	ns := s.policy.NamespacesFor(rid)
	s.fetches[rid] = &fetchState{From: from, Subscribers: subs}
	s.sessions[from].Fetching[rid] = struct{}{}
	s.outbox.push(FetchDispatchAction{Req: FetchRequest{
		Rid: rid, From: from, Namespaces: ns, RefsAt: refsAt, Timeout: timeout,
	}})
	s.metrics.FetchesStarted.Inc()
	s.metrics.FetchesInFlight.Set(float64(len(s.fetches)))
}

// Fetched reports the outcome of a previously dispatched fetch. Stale
// completions (no matching in-flight state, or a from mismatch) are
// logged and ignored rather than corrupting state — the reactor may
// report a fetch that was already superseded by a disconnect-driven
// synthetic failure.
func (s *Service) Fetched(rid RepoId, from NodeId, result FetchResult) {
	fs, ok := s.fetches[rid]
	if !ok || fs.From != from {
		s.log.Debug("stale fetch completion ignored", "rid", rid, "from", from)
		return
	}
	delete(s.fetches, rid)
	s.metrics.FetchesInFlight.Set(float64(len(s.fetches)))

	if sess, ok := s.sessions[from]; ok {
		delete(sess.Fetching, rid)
	}

	outcome := FetchOutcomeOrErr{Rid: rid}
	if result.Err != nil {
		outcome.Err = result.Err
		s.metrics.FetchesCompleted.WithLabelValues("error").Inc()
		if result.ErrKind == FetchErrTimeout {
			s.disconnect(from, ReasonFetch)
		}
	} else {
		outcome.Outcome = result.Ok
		s.metrics.FetchesCompleted.WithLabelValues("ok").Inc()
		s.trackReplica(rid, from)
		for remote, oid := range result.Ok.Updated {
			if err := s.storage.SetRef(rid, remote, oid); err != nil {
				s.log.Error("updating local ref", "rid", rid, "remote", remote, "err", err)
			}
		}
		if len(fs.Subscribers) == 0 && len(result.Ok.Updated) > 0 {
			s.broadcastRefsAnnouncement(rid, result.Ok.Namespaces)
		}
	}

	for _, ch := range fs.Subscribers {
		ch <- outcome
		close(ch)
	}

	s.syncRoutingFromStorage(s.clock.Now())
	s.dequeueFetch()
}

// trackReplica records from as a seed rid has been successfully fetched
// from, the distinct-seed count the replication-factor tracking in
// syncStatusOf and syncTick reports against (spec section 6 supplement:
// preferred seeds / replication factor).
func (s *Service) trackReplica(rid RepoId, from NodeId) {
	if s.replicas[rid] == nil {
		s.replicas[rid] = make(map[NodeId]struct{})
	}
	s.replicas[rid][from] = struct{}{}
}

func (s *Service) dequeueFetch() {
	if len(s.fetchQueue) == 0 {
		return
	}
	item := s.fetchQueue[0]
	s.fetchQueue = s.fetchQueue[1:]

	err := s.tryFetch(item.Rid, item.From, item.RefsAt, item.Timeout, item.Subscriber)
	if err != nil && err != ErrSessionCapacityReached && item.Subscriber != nil {
		item.Subscriber <- FetchOutcomeOrErr{Rid: item.Rid, Err: err}
		close(item.Subscriber)
	}
}

// broadcastRefsAnnouncement signs and relays the refs that changed as a
// result of a fetch we triggered ourselves (no external subscriber was
// waiting, so the only way the network learns of the update is via a
// fresh RefsAnnouncement).
func (s *Service) broadcastRefsAnnouncement(rid RepoId, ns Namespaces) {
	refs, err := s.storage.Refs(rid)
	if err != nil {
		return
	}
	tips := make([]RefTip, 0, len(refs))
	for remote, oid := range refs {
		if ns.includes(remote) {
			tips = append(tips, RefTip{Remote: remote, At: oid})
		}
	}
	if len(tips) == 0 {
		return
	}
	ann, err := SignAnnouncement(s.signer, RefsAnnouncementMsg{Rid: rid, Refs: tips, Timestamp: s.clock.Now()})
	if err != nil {
		s.log.Error("signing refs announcement", "err", err)
		return
	}
	s.gossip.Announced(ann)
	for nid, sess := range s.sessions {
		if !sess.IsConnected() {
			continue
		}
		if sess.Subscribe != nil && sess.Subscribe.Filter != nil && !sess.Subscribe.Filter.Contains(rid) {
			continue
		}
		annCopy := ann
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgAnnouncement, Announcement: &annCopy}})
	}
	s.metrics.AnnouncementsSent.Inc()
}

// announceRefs signs and broadcasts a RefsAnnouncement for rid using
// our current locally-held refs, the Command::AnnounceRefs surface
// (spec section 6).
func (s *Service) announceRefs(rid RepoId) ([]RefTip, error) {
	if !s.storage.Contains(rid) {
		return nil, ErrUnknownRepo
	}
	ns := s.policy.NamespacesFor(rid)
	s.broadcastRefsAnnouncement(rid, ns)
	refs, err := s.storage.Refs(rid)
	if err != nil {
		return nil, err
	}
	tips := make([]RefTip, 0, len(refs))
	for remote, oid := range refs {
		tips = append(tips, RefTip{Remote: remote, At: oid})
	}
	return tips, nil
}

// syncInventory recomputes routing from local storage and broadcasts a
// fresh inventory only if it changed, the Command::SyncInventory
// surface (spec section 6).
func (s *Service) syncInventory() bool {
	return s.syncRoutingFromStorage(s.clock.Now())
}
