package node_test

import (
	"testing"

	"github.com/shurlinet/meshnode/pkg/node"
)

// TestStaleAnnouncementDropped covers spec scenario 2: an
// InventoryAnnouncement with an older timestamp than one already
// accepted from the same announcer is deduped away and leaves the
// routing table untouched.
func TestStaleAnnouncementDropped(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Inbound)
	rid := testRepoId("repo-a")

	h.svc.ReceivedMessage(peer.id, node.Message{
		Kind:         node.MsgAnnouncement,
		Announcement: ptr(signedNodeAnnouncement(t, peer, 1)),
	})
	h.svc.Drain()

	fresh := signedInventoryAnnouncement(t, peer, 100, rid)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &fresh})
	h.svc.Drain()

	if got := h.routing.Get(rid); got[peer.id] != 100 {
		t.Fatalf("routing timestamp = %v, want 100", got[peer.id])
	}

	stale := signedInventoryAnnouncement(t, peer, 50, rid)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &stale})
	h.svc.Drain()

	if got := h.routing.Get(rid); got[peer.id] != 100 {
		t.Errorf("routing timestamp after stale announcement = %v, want unchanged 100", got[peer.id])
	}
}

// TestSignatureFailureDisconnects covers spec scenario 3: an
// announcement whose signature does not verify under its announcer is
// never stored and always causes a session-fatal disconnect.
func TestSignatureFailureDisconnects(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Inbound)

	ann := signedNodeAnnouncement(t, peer, 1)
	ann.Signature[0] ^= 0xff // tamper

	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &ann})
	actions := h.svc.Drain()

	d, ok := findDisconnect(actions, peer.id)
	if !ok {
		t.Fatalf("expected a disconnect action, got %#v", actions)
	}
	if d.Reason != node.ReasonSession {
		t.Errorf("disconnect reason = %v, want ReasonSession", d.Reason)
	}

	if _, known := h.addresses.Get(peer.id); known {
		t.Error("address store was updated from an unverified announcement")
	}
}

// TestInventoryFromUnknownAnnouncerDropped covers invariant 5: an
// Inventory/Refs announcement is ignored unless a NodeAnnouncement from
// that announcer was already accepted.
func TestInventoryFromUnknownAnnouncerDropped(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Inbound)
	rid := testRepoId("repo-a")

	ann := signedInventoryAnnouncement(t, peer, 10, rid)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &ann})
	h.svc.Drain()

	if got := h.routing.Get(rid); len(got) != 0 {
		t.Errorf("routing table updated from an announcer with no known NodeAnnouncement: %v", got)
	}
}

// TestInventoryAnnouncementSeedsFetch exercises spec section 4.3.2: a
// repository we seed but don't yet have locally triggers a fetch from
// the peer that announced it.
func TestInventoryAnnouncementSeedsFetch(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-b")

	h.policy.Seed(rid, node.ScopeAll, nil)

	nodeAnn := signedNodeAnnouncement(t, peer, 1)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &nodeAnn})
	h.svc.Drain()

	invAnn := signedInventoryAnnouncement(t, peer, 2, rid)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &invAnn})
	actions := h.svc.Drain()

	fd, ok := findFetchDispatch(actions)
	if !ok {
		t.Fatalf("expected a fetch dispatch action, got %#v", actions)
	}
	if fd.Req.Rid != rid || fd.Req.From != peer.id {
		t.Errorf("fetch dispatched for (%v, %v), want (%v, %v)", fd.Req.Rid, fd.Req.From, rid, peer.id)
	}
}

// TestRelaySkipsRelayerAndAnnouncer covers invariant 6: relay never
// targets the relayer or the original announcer, even when both are
// connected and otherwise eligible.
func TestRelaySkipsRelayerAndAnnouncer(t *testing.T) {
	h := newHarness(t)
	announcer := h.connectPeer(node.Inbound)
	relayer := h.connectPeer(node.Inbound)
	third := h.connectPeer(node.Inbound)

	nodeAnn := signedNodeAnnouncement(t, announcer, 1)
	h.svc.ReceivedMessage(relayer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &nodeAnn})
	actions := h.svc.Drain()

	for _, a := range actions {
		w, ok := a.(node.WriteAction)
		if !ok || w.Msg.Kind != node.MsgAnnouncement {
			continue
		}
		if w.Nid == relayer.id || w.Nid == announcer.id {
			t.Errorf("relay targeted %v, which must never receive its own gossip back", w.Nid)
		}
		if w.Nid != third.id {
			t.Errorf("relay targeted unexpected peer %v", w.Nid)
		}
	}
}

// TestInventoryAnnouncementRemovesDroppedResources covers spec section
// 4.3.2/4.5: a fresh InventoryAnnouncement that no longer lists a
// RepoId the announcer previously carried removes that routing entry,
// rather than only ever adding new ones.
func TestInventoryAnnouncementRemovesDroppedResources(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Inbound)
	a, b := testRepoId("repo-a"), testRepoId("repo-b")

	nodeAnn := signedNodeAnnouncement(t, peer, 1)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &nodeAnn})
	h.svc.Drain()

	first := signedInventoryAnnouncement(t, peer, 10, a, b)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &first})
	h.svc.Drain()

	if _, ok := h.routing.Get(a)[peer.id]; !ok {
		t.Fatalf("expected repo-a routed to peer after first announcement")
	}
	if _, ok := h.routing.Get(b)[peer.id]; !ok {
		t.Fatalf("expected repo-b routed to peer after first announcement")
	}

	second := signedInventoryAnnouncement(t, peer, 20, a)
	h.svc.ReceivedMessage(peer.id, node.Message{Kind: node.MsgAnnouncement, Announcement: &second})
	h.svc.Drain()

	if _, ok := h.routing.Get(a)[peer.id]; !ok {
		t.Errorf("repo-a should remain routed to peer")
	}
	if _, ok := h.routing.Get(b)[peer.id]; ok {
		t.Errorf("repo-b should have been removed from routing once dropped from the new inventory")
	}
}

func ptr(a node.Announcement) *node.Announcement { return &a }
