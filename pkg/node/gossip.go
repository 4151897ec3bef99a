package node

// onAnnouncement runs the accept/relay pipeline from spec section 4.3:
// signature and timestamp checks are session-fatal on failure;
// duplicate or stale announcements are silently dropped; accepted
// announcements are applied to the relevant store and, if the variant
// decides to, relayed to every other matching session.
func (s *Service) onAnnouncement(relayer NodeId, ann Announcement) error {
	relay, err := s.acceptAnnouncement(relayer, ann)
	if err != nil {
		return err
	}
	if relay && s.cfg.Relay {
		s.relayAnnouncement(relayer, ann)
	}
	return nil
}

func (s *Service) acceptAnnouncement(relayer NodeId, ann Announcement) (bool, error) {
	variant := ann.Message.variant()

	if !ann.Verify() {
		s.metrics.AnnouncementsRecv.WithLabelValues(variant.String(), "false").Inc()
		return false, &SessionError{Kind: FatalSignature, Peer: relayer}
	}
	if ann.Announcer == s.self {
		return false, nil
	}

	now := s.clock.Now()
	maxDelta := Timestamp(s.cfg.MaxTimeDelta.Milliseconds())
	if ann.Message.timestamp() > now+maxDelta {
		s.metrics.AnnouncementsRecv.WithLabelValues(variant.String(), "false").Inc()
		return false, &SessionError{Kind: FatalTimestamp, Peer: relayer}
	}

	relayerAddr := Address{}
	if sess, ok := s.sessions[relayer]; ok {
		relayerAddr = sess.Addr
	}

	var accepted bool
	switch msg := ann.Message.(type) {
	case NodeAnnouncementMsg:
		accepted = s.handleNodeAnnouncement(relayerAddr, ann, msg)
	case InventoryAnnouncementMsg:
		if _, known := s.addresses.Get(ann.Announcer); !known {
			s.metrics.AnnouncementsRecv.WithLabelValues(variant.String(), "false").Inc()
			return false, nil
		}
		accepted = s.handleInventoryAnnouncement(ann, msg)
	case RefsAnnouncementMsg:
		if _, known := s.addresses.Get(ann.Announcer); !known {
			s.metrics.AnnouncementsRecv.WithLabelValues(variant.String(), "false").Inc()
			return false, nil
		}
		accepted = s.handleRefsAnnouncement(relayer, ann, msg)
	default:
		return false, nil
	}
	s.metrics.AnnouncementsRecv.WithLabelValues(variant.String(), boolLabel(accepted)).Inc()
	return accepted, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (s *Service) handleNodeAnnouncement(relayerAddr Address, ann Announcement, msg NodeAnnouncementMsg) bool {
	if !s.gossip.Announced(ann) {
		return false
	}
	if msg.Features&FeatureSeed == 0 {
		// Not a seed: relay so the network still learns of the peer,
		// but don't pollute the address book with a non-relaying node.
		return true
	}
	allowLoopback := isLocalOrLoopback(relayerAddr)
	addrs := filterRoutable(msg.Addresses, allowLoopback)
	updated := s.addresses.Upsert(ann.Announcer, msg.Features, msg.Alias, msg.Work, msg.Timestamp, addrs, SourcePeer)
	return updated
}

func (s *Service) handleInventoryAnnouncement(ann Announcement, msg InventoryAnnouncementMsg) bool {
	if !s.gossip.Announced(ann) {
		return false
	}

	s.applyInventory(msg.Inventory, ann.Announcer, msg.Timestamp)
	s.metrics.RoutingEntries.Set(float64(s.routing.Len()))

	if sess, ok := s.sessions[ann.Announcer]; ok && sess.Subscribe != nil && sess.Subscribe.Filter != nil {
		for _, rid := range msg.Inventory {
			sess.Subscribe.Filter.Insert(rid)
		}
	}

	for _, rid := range msg.Inventory {
		if s.policy.IsSeeding(rid) && !s.storage.Contains(rid) {
			s.tryFetch(rid, ann.Announcer, nil, s.cfg.FetchTimeout, nil)
		}
	}

	// Reaching here already implies the gossip entry was fresh (the
	// dedupe check above returned false otherwise), so relay always
	// follows once accepted.
	return true
}

func (s *Service) handleRefsAnnouncement(relayer NodeId, ann Announcement, msg RefsAnnouncementMsg) bool {
	if !s.gossip.Announced(ann) {
		return false
	}

	s.routing.Insert([]RepoId{msg.Rid}, ann.Announcer, msg.Timestamp)

	for _, tip := range msg.Refs {
		if tip.Remote == s.self {
			if s.seeds.Synced(msg.Rid, ann.Announcer, tip.At, msg.Timestamp) {
				s.log.Debug("seed confirmed synced", "rid", msg.Rid, "seeder", ann.Announcer)
			}
		}
	}

	fresh, stale := s.diffRefs(msg.Rid, msg.Refs)

	if relayer == ann.Announcer {
		for _, tip := range stale {
			if tip.Remote == relayer {
				s.outbox.push(WriteAction{Nid: relayer, Msg: Message{Kind: MsgInfo, Info: &InfoMessage{
					Kind: InfoRefsAlreadySynced, Rid: msg.Rid, At: tip.At,
				}}})
			}
		}
	}

	ns := s.policy.NamespacesFor(msg.Rid)
	if !ns.All {
		fresh = filterRefsByNamespace(fresh, ns)
	}

	if len(fresh) > 0 {
		if sess, ok := s.sessions[ann.Announcer]; ok && sess.IsConnected() {
			s.tryFetch(msg.Rid, ann.Announcer, fresh, s.cfg.FetchTimeout, nil)
		}
	}

	policy, seeding := s.policy.SeedPolicy(msg.Rid)
	return seeding && policy.Policy == PolicyAllow
}

// diffRefs partitions refs into those our local copy doesn't yet
// reflect (fresh, worth fetching) and those it already matches (stale,
// worth acknowledging with an Info message so the sender stops
// re-announcing them to us). True ancestry comparison would require
// the git object store, which is out of scope; oid equality is the
// best this module can do at its boundary.
func (s *Service) diffRefs(rid RepoId, refs []RefTip) (fresh, stale []RefTip) {
	localRefs, err := s.storage.Refs(rid)
	if err != nil {
		return refs, nil
	}
	for _, tip := range refs {
		if have, ok := localRefs[tip.Remote]; ok && have == tip.At {
			stale = append(stale, tip)
		} else {
			fresh = append(fresh, tip)
		}
	}
	return fresh, stale
}

func filterRefsByNamespace(refs []RefTip, ns Namespaces) []RefTip {
	out := make([]RefTip, 0, len(refs))
	for _, tip := range refs {
		if ns.includes(tip.Remote) {
			out = append(out, tip)
		}
	}
	return out
}

// relayAnnouncement forwards ann to every connected session except the
// relayer and the original announcer, filtered by each session's
// subscription predicate (spec section 4.3: "relay except relayer and
// announcer, matching subscription filters").
func (s *Service) relayAnnouncement(relayer NodeId, ann Announcement) {
	scope := repoScopeOf(ann.Message)
	for nid, sess := range s.sessions {
		if nid == relayer || nid == ann.Announcer || !sess.IsConnected() {
			continue
		}
		if sess.Subscribe != nil && sess.Subscribe.Filter != nil && len(scope) > 0 {
			matched := false
			for _, rid := range scope {
				if sess.Subscribe.Filter.Contains(rid) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		annCopy := ann
		s.outbox.push(WriteAction{Nid: nid, Msg: Message{Kind: MsgAnnouncement, Announcement: &annCopy}})
	}
	s.metrics.AnnouncementsRelayed.Inc()
}
