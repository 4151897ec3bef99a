package node

// SeedCandidate is one peer known to carry a repository, merging the
// two sources spec section 4.5 names: confirmed-synced seeders from the
// SeedStore, and routing-only candidates that have announced the
// repository but never confirmed a sync.
type SeedCandidate struct {
	Seeder NodeId
	Status SyncStatus
}

// seedsFor composes the Command::SeedsFor reply (spec section 4.5):
// every SeedRecord enriched with a per-seeder SyncStatus, plus any
// remaining routing-only seeders for rid with an unknown sync status,
// without duplicates.
func (s *Service) seedsFor(rid RepoId) []SeedCandidate {
	localTip, haveLocal := s.localTip(rid)

	records := s.seeds.SeedsFor(rid)
	out := make([]SeedCandidate, 0, len(records))
	seen := make(map[NodeId]struct{}, len(records))
	for _, rec := range records {
		seen[rec.Seeder] = struct{}{}
		status := SyncStatus{Kind: SyncUnknown}
		if haveLocal {
			if rec.SyncedAt == localTip {
				status = SyncStatus{Kind: SyncInSync, Local: localTip, Remote: localTip}
			} else {
				status = SyncStatus{Kind: SyncOutOfSync, Local: localTip, Remote: rec.SyncedAt}
			}
		}
		out = append(out, SeedCandidate{Seeder: rec.Seeder, Status: status})
	}

	for nid := range s.routing.Get(rid) {
		if _, ok := seen[nid]; ok {
			continue
		}
		out = append(out, SeedCandidate{Seeder: nid, Status: SyncStatus{Kind: SyncUnknown}})
	}
	return out
}

func (s *Service) localTip(rid RepoId) (Oid, bool) {
	if !s.storage.Contains(rid) {
		return "", false
	}
	refs, err := s.storage.Refs(rid)
	if err != nil {
		return "", false
	}
	tip, ok := refs[s.self]
	return tip, ok
}

// syncStatusOf compares the locally-held refs for rid against every
// confirmed-synced seeder, plus the configured replication factor, to
// answer "are we caught up and sufficiently replicated" (the
// supplemented Command::SyncStatus surface, spec section 6).
func (s *Service) syncStatusOf(rid RepoId) SyncStatus {
	replicas := len(s.replicas[rid])
	met := replicas >= s.cfg.DefaultReplication.LowerBound
	localTip, haveLocal := s.localTip(rid)
	if !haveLocal {
		return SyncStatus{Kind: SyncUnknown, Replicas: replicas, ReplicationMet: met}
	}
	records := s.seeds.SeedsFor(rid)
	if len(records) == 0 {
		return SyncStatus{Kind: SyncUnknown, Replicas: replicas, ReplicationMet: met}
	}
	status := SyncStatus{Kind: SyncInSync, Local: localTip, Remote: localTip}
	for _, rec := range records {
		if rec.SyncedAt != localTip {
			status = SyncStatus{Kind: SyncOutOfSync, Local: localTip, Remote: rec.SyncedAt}
			break
		}
	}
	status.Replicas = replicas
	status.ReplicationMet = met
	return status
}
