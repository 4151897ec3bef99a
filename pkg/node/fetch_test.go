package node_test

import (
	"testing"
	"time"

	"github.com/shurlinet/meshnode/pkg/node"
)

// TestFetchDedupeAndQueue covers spec scenario 1: a second Fetch for a
// repository already in flight from a different peer is queued rather
// than dispatched, and the queued request is retried once the original
// fetch completes.
func TestFetchDedupeAndQueue(t *testing.T) {
	h := newHarness(t)
	a := h.connectPeer(node.Outbound)
	b := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-dedupe")

	chA, err := h.svc.Fetch(rid, a.id, 9*time.Second)
	if err != nil {
		t.Fatalf("Fetch from A: %v", err)
	}
	actions := h.svc.Drain()
	fd, ok := findFetchDispatch(actions)
	if !ok || fd.Req.From != a.id {
		t.Fatalf("expected an immediate fetch dispatch to A, got %#v", actions)
	}

	chB, err := h.svc.Fetch(rid, b.id, 9*time.Second)
	if err != nil {
		t.Fatalf("Fetch from B: %v", err)
	}
	actions = h.svc.Drain()
	if _, dispatched := findFetchDispatch(actions); dispatched {
		t.Fatalf("second fetch for the same repo must not dispatch immediately, got %#v", actions)
	}

	h.svc.Fetched(rid, a.id, node.FetchResult{Ok: &node.FetchOutcome{Updated: map[node.NodeId]node.Oid{}}})
	actions = h.svc.Drain()

	select {
	case out := <-chA:
		if out.Err != nil {
			t.Errorf("A's result carried an error: %v", out.Err)
		}
	default:
		t.Error("A's subscriber never received a result")
	}

	fd, ok = findFetchDispatch(actions)
	if !ok || fd.Req.From != b.id {
		t.Fatalf("expected B's queued fetch to dispatch after A completed, got %#v", actions)
	}

	h.svc.Fetched(rid, b.id, node.FetchResult{Ok: &node.FetchOutcome{Updated: map[node.NodeId]node.Oid{}}})
	h.svc.Drain()

	select {
	case out := <-chB:
		if out.Err != nil {
			t.Errorf("B's result carried an error: %v", out.Err)
		}
	default:
		t.Error("B's subscriber never received a result")
	}
}

// TestFetchSameSourceAttaches covers the "ignore, attach subscriber"
// branch of try_fetch: a second Fetch for the same repo from the same
// peer a fetch is already in flight from joins the existing
// FetchState instead of queuing a duplicate request.
func TestFetchSameSourceAttaches(t *testing.T) {
	h := newHarness(t)
	a := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-same-source")

	ch1, err := h.svc.Fetch(rid, a.id, 9*time.Second)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	h.svc.Drain()

	ch2, err := h.svc.Fetch(rid, a.id, 9*time.Second)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	actions := h.svc.Drain()
	if _, dispatched := findFetchDispatch(actions); dispatched {
		t.Fatalf("attaching to an identical in-flight fetch must not re-dispatch, got %#v", actions)
	}

	h.svc.Fetched(rid, a.id, node.FetchResult{Ok: &node.FetchOutcome{Updated: map[node.NodeId]node.Oid{}}})
	h.svc.Drain()

	for name, ch := range map[string]node.FetchSubscriber{"ch1": ch1, "ch2": ch2} {
		select {
		case out := <-ch:
			if out.Err != nil {
				t.Errorf("%s carried an error: %v", name, out.Err)
			}
		default:
			t.Errorf("%s never received a result", name)
		}
	}
}

// TestFetchCapacityQueues covers invariant 2: a session already at its
// fetch_concurrency limit defers new fetches to the queue rather than
// exceeding the per-peer cap.
func TestFetchCapacityQueues(t *testing.T) {
	cfg := node.DefaultConfig()
	cfg.Limits.FetchConcurrency = 1
	h2 := newHarnessWithConfig(t, cfg)
	a := h2.connectPeer(node.Outbound)

	rid1 := testRepoId("repo-cap-1")
	rid2 := testRepoId("repo-cap-2")

	if _, err := h2.svc.Fetch(rid1, a.id, 9*time.Second); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	h2.svc.Drain()

	_, err := h2.svc.Fetch(rid2, a.id, 9*time.Second)
	if err != node.ErrSessionCapacityReached {
		t.Fatalf("second fetch at capacity: err = %v, want ErrSessionCapacityReached", err)
	}
	actions := h2.svc.Drain()
	if _, dispatched := findFetchDispatch(actions); dispatched {
		t.Fatalf("fetch at capacity must not dispatch, got %#v", actions)
	}

	h2.svc.Fetched(rid1, a.id, node.FetchResult{Ok: &node.FetchOutcome{Updated: map[node.NodeId]node.Oid{}}})
	actions = h2.svc.Drain()
	fd, ok := findFetchDispatch(actions)
	if !ok || fd.Req.Rid != rid2 {
		t.Fatalf("expected queued rid2 fetch to dispatch once capacity freed, got %#v", actions)
	}
}

// TestFetchTimeoutDisconnects covers spec section 4.4: a fetch that
// times out disconnects the peer with reason Fetch, while other fetch
// errors leave the session alone.
func TestFetchTimeoutDisconnects(t *testing.T) {
	h := newHarness(t)
	a := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-timeout")

	if _, err := h.svc.Fetch(rid, a.id, 9*time.Second); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	h.svc.Drain()

	h.svc.Fetched(rid, a.id, node.FetchResult{Err: node.ErrPeerDisconnected, ErrKind: node.FetchErrTimeout})
	actions := h.svc.Drain()

	if _, ok := findDisconnect(actions, a.id); !ok {
		t.Errorf("fetch timeout did not disconnect the peer, got %#v", actions)
	}
}

func TestFetchOtherErrorDoesNotDisconnect(t *testing.T) {
	h := newHarness(t)
	a := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-other-err")

	if _, err := h.svc.Fetch(rid, a.id, 9*time.Second); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	h.svc.Drain()

	h.svc.Fetched(rid, a.id, node.FetchResult{Err: node.ErrPeerDisconnected, ErrKind: node.FetchErrOther})
	actions := h.svc.Drain()

	if _, ok := findDisconnect(actions, a.id); ok {
		t.Errorf("a non-timeout fetch error disconnected the peer, got %#v", actions)
	}
}

// TestFetchUnknownSession covers the SessionNotFound branch of
// try_fetch.
func TestFetchUnknownSession(t *testing.T) {
	h := newHarness(t)
	rid := testRepoId("repo-unknown-session")
	stranger := newTestIdentity(t)

	_, err := h.svc.Fetch(rid, stranger.id, 9*time.Second)
	if err != node.ErrSessionNotFound {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

// TestSyncInventoryIdempotent covers spec section 8's idempotence
// property for Command::SyncInventory: recomputing routing from local
// storage when nothing has changed reports no change and broadcasts
// nothing, while an actual storage change is both reported and
// broadcast.
func TestSyncInventoryIdempotent(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-sync-idempotent")

	reply := doCommand(t, h, node.Command{Kind: node.CmdSyncInventory})
	if changed, _ := reply.Value.(bool); changed {
		t.Errorf("first sync with no local storage reported a change")
	}

	h.storage.Create(rid, []byte("identity-doc"))

	reply = doCommand(t, h, node.Command{Kind: node.CmdSyncInventory})
	actions := h.svc.Drain()
	if changed, _ := reply.Value.(bool); !changed {
		t.Fatalf("sync after a storage change reported no change")
	}
	if countWrites(actions, node.MsgAnnouncement) == 0 {
		t.Errorf("sync after a storage change did not broadcast an inventory announcement to %v", peer.id)
	}

	reply = doCommand(t, h, node.Command{Kind: node.CmdSyncInventory})
	actions = h.svc.Drain()
	if changed, _ := reply.Value.(bool); changed {
		t.Error("a second sync with no further storage change reported a change")
	}
	if n := countWrites(actions, node.MsgAnnouncement); n != 0 {
		t.Errorf("a second sync with no further storage change broadcast %d announcements, want 0", n)
	}
}
