package node_test

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/multiformats/go-multiaddr"

	"github.com/shurlinet/meshnode/internal/store"
	"github.com/shurlinet/meshnode/pkg/node"
)

// testIdentity is a fully-formed signer plus its derived NodeId, built
// from a freshly generated Ed25519 key so signature verification in the
// gossip pipeline exercises the real crypto path instead of a stub.
type testIdentity struct {
	signer node.Signer
	id     node.NodeId
}

func newTestIdentity(t *testing.T) testIdentity {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		t.Fatalf("generating test key pair: %v", err)
	}
	signer, err := node.NewSigner(priv)
	if err != nil {
		t.Fatalf("wrapping signer: %v", err)
	}
	return testIdentity{signer: signer, id: signer.NodeId()}
}

func testAddr(t *testing.T, s string) node.Address {
	t.Helper()
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		t.Fatalf("parsing test multiaddr %q: %v", s, err)
	}
	return node.Address{Multiaddr: ma}
}

// harness bundles a running Service with the in-memory collaborators
// backing it, so tests can both drive the Service through its public
// entry points and inspect store state directly.
type harness struct {
	t   *testing.T
	svc *node.Service
	id  testIdentity

	routing   *store.Routing
	addresses *store.Addresses
	gossip    *store.Gossip
	seeds     *store.Seeds
	policy    *store.Policy
	storage   *store.Storage

	clock *node.ManualClock
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithConfig(t, node.DefaultConfig())
}

func newHarnessWithConfig(t *testing.T, cfg node.Config) *harness {
	t.Helper()
	ident := newTestIdentity(t)
	clock := node.NewManualClock(time.Unix(1_700_000_000, 0).UTC())

	h := &harness{
		t:         t,
		id:        ident,
		routing:   store.NewRouting(),
		addresses: store.NewAddresses(),
		gossip:    store.NewGossip(),
		seeds:     store.NewSeeds(),
		policy:    store.NewPolicy(),
		storage:   store.NewStorage(),
		clock:     clock,
	}

	h.svc = node.NewService(cfg, node.Deps{
		Signer:    ident.signer,
		Storage:   h.storage,
		Routing:   h.routing,
		Addresses: h.addresses,
		Gossip:    h.gossip,
		Seeds:     h.seeds,
		Policy:    h.policy,
		Clock:     clock,
		RNG:       node.NewRNG(1, 2),
	})
	h.svc.Initialize()
	return h
}

// connectPeer drives the Service through Connected for a freshly
// generated peer identity and drains the handshake messages it
// produces, returning the peer's identity for further interaction.
func (h *harness) connectPeer(link node.LinkDirection) testIdentity {
	h.t.Helper()
	peer := newTestIdentity(h.t)
	addr := testAddr(h.t, "/ip4/127.0.0.1/tcp/4001")
	h.svc.Connected(peer.id, addr, link, false)
	h.svc.Drain()
	return peer
}

// signedNodeAnnouncement builds and signs a NodeAnnouncement from peer,
// with the seed feature bit set so it updates the address book.
func signedNodeAnnouncement(t *testing.T, peer testIdentity, ts node.Timestamp) node.Announcement {
	t.Helper()
	ann, err := node.SignAnnouncement(peer.signer, node.NodeAnnouncementMsg{
		Features:  node.FeatureSeed,
		Alias:     "peer",
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("signing node announcement: %v", err)
	}
	return ann
}

func signedInventoryAnnouncement(t *testing.T, peer testIdentity, ts node.Timestamp, rids ...node.RepoId) node.Announcement {
	t.Helper()
	ann, err := node.SignAnnouncement(peer.signer, node.InventoryAnnouncementMsg{
		Inventory: rids,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("signing inventory announcement: %v", err)
	}
	return ann
}

func signedRefsAnnouncement(t *testing.T, peer testIdentity, ts node.Timestamp, rid node.RepoId, refs ...node.RefTip) node.Announcement {
	t.Helper()
	ann, err := node.SignAnnouncement(peer.signer, node.RefsAnnouncementMsg{
		Rid:       rid,
		Refs:      refs,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("signing refs announcement: %v", err)
	}
	return ann
}

func testRepoId(seed string) node.RepoId {
	return node.NewRepoId([]byte(seed))
}

func findDisconnect(actions []node.OutboxAction, nid node.NodeId) (node.DisconnectAction, bool) {
	for _, a := range actions {
		if d, ok := a.(node.DisconnectAction); ok && d.Nid == nid {
			return d, true
		}
	}
	return node.DisconnectAction{}, false
}

func findFetchDispatch(actions []node.OutboxAction) (node.FetchDispatchAction, bool) {
	for _, a := range actions {
		if f, ok := a.(node.FetchDispatchAction); ok {
			return f, true
		}
	}
	return node.FetchDispatchAction{}, false
}

func findWakeup(actions []node.OutboxAction) (node.WakeupAction, bool) {
	for _, a := range actions {
		if w, ok := a.(node.WakeupAction); ok {
			return w, true
		}
	}
	return node.WakeupAction{}, false
}

func countWrites(actions []node.OutboxAction, kind node.MessageKind) int {
	n := 0
	for _, a := range actions {
		if w, ok := a.(node.WriteAction); ok && w.Msg.Kind == kind {
			n++
		}
	}
	return n
}
