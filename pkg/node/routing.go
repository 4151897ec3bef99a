package node

// applyInventory diff-updates the routing table for one announcer
// against its full new inventory (spec section 4.3.2/4.5:
// "sync_routing(inventory, from, t) diff-updates the routing table...
// any previously-known rid for this announcer absent from the new
// inventory is removed"). It reports whether anything in the table
// actually changed.
func (s *Service) applyInventory(inventory []RepoId, nid NodeId, t Timestamp) (changed bool) {
	previous := s.routing.GetResources(nid)

	for _, update := range s.routing.Insert(inventory, nid, t) {
		if update.Result != RoutingNotUpdated {
			changed = true
		}
		delete(previous, update.Rid)
	}

	for rid := range previous {
		if s.routing.Remove(rid, nid) {
			changed = true
		}
	}
	return changed
}

// syncRoutingFromStorage recomputes the local node's own routing
// entries from current storage (spec section 4.4 step 7's
// "sync_and_announce", and the Command::SyncInventory surface in spec
// section 6: "recompute routing from local storage; bool = whether
// anything changed"), broadcasting a fresh inventory only if the set
// actually changed so that a second call with no storage change is a
// no-op (spec section 8 idempotence).
func (s *Service) syncRoutingFromStorage(now Timestamp) bool {
	changed := s.applyInventory(s.storage.Inventory(), s.self, now)
	s.metrics.RoutingEntries.Set(float64(s.routing.Len()))
	if changed {
		s.broadcastInventory(now)
	}
	return changed
}
