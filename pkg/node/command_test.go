package node_test

import (
	"testing"

	"github.com/shurlinet/meshnode/pkg/node"
)

func doCommand(t *testing.T, h *harness, cmd node.Command) node.CommandReply {
	t.Helper()
	cmd.Reply = make(chan node.CommandReply, 1)
	h.svc.Command(cmd)
	return <-cmd.Reply
}

// TestSeedThenUnseedRoundTrips covers invariant 8 and the seed/unseed
// round-trip idempotence property: Seed flips IsSeeding true and
// broadcasts a Subscribe; Unseed restores it to false.
func TestSeedThenUnseedRoundTrips(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Outbound)
	rid := testRepoId("repo-seed")

	cmd := node.Command{Kind: node.CmdSeed, Rid: rid, Scope: node.ScopeAll, Reply: make(chan node.CommandReply, 1)}
	h.svc.Command(cmd)
	actions := h.svc.Drain()
	reply := <-cmd.Reply
	if updated, _ := reply.Value.(bool); !updated {
		t.Fatalf("Seed on a previously-unseeded repo reported no update")
	}
	if !h.policy.IsSeeding(rid) {
		t.Error("IsSeeding false immediately after Seed")
	}
	sawSubscribe := false
	for _, a := range actions {
		if w, ok := a.(node.WriteAction); ok && w.Msg.Kind == node.MsgSubscribe && w.Nid == peer.id {
			sawSubscribe = true
		}
	}
	if !sawSubscribe {
		t.Errorf("Seed on a new repo did not broadcast a Subscribe update, got %#v", actions)
	}

	reply = doCommand(t, h, node.Command{Kind: node.CmdUnseed, Rid: rid})
	if updated, _ := reply.Value.(bool); !updated {
		t.Error("Unseed on a seeded repo reported no update")
	}
	if h.policy.IsSeeding(rid) {
		t.Error("IsSeeding still true after Unseed")
	}
}

// TestSessionsCommandSnapshot resolves the sessions() open question
// flagged in spec section 9: it returns a read-only snapshot of every
// session's address, state and fetch count.
func TestSessionsCommandSnapshot(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Inbound)

	reply := doCommand(t, h, node.Command{Kind: node.CmdSessions})
	snaps, ok := reply.Value.([]node.SessionSnapshot)
	if !ok {
		t.Fatalf("CmdSessions reply type = %T, want []SessionSnapshot", reply.Value)
	}
	if len(snaps) != 1 || snaps[0].ID != peer.id {
		t.Fatalf("snapshot = %#v, want exactly peer %v", snaps, peer.id)
	}
	if snaps[0].State != node.StateConnected {
		t.Errorf("snapshot state = %v, want Connected", snaps[0].State)
	}
}

// TestFollowUnfollowRoundTrip exercises the follow/unfollow policy
// commands.
func TestFollowUnfollowRoundTrip(t *testing.T) {
	h := newHarness(t)
	peer := newTestIdentity(t)

	reply := doCommand(t, h, node.Command{Kind: node.CmdFollow, Nid: peer.id, Alias: "alice"})
	if updated, _ := reply.Value.(bool); !updated {
		t.Fatal("Follow reported no update for a new peer")
	}
	if !h.policy.IsFollowing(peer.id) {
		t.Error("IsFollowing false after Follow")
	}

	reply = doCommand(t, h, node.Command{Kind: node.CmdUnfollow, Nid: peer.id})
	if updated, _ := reply.Value.(bool); !updated {
		t.Fatal("Unfollow reported no update")
	}
	if h.policy.IsFollowing(peer.id) {
		t.Error("IsFollowing still true after Unfollow")
	}
}

// TestConnectRejectsAlreadyConnected ensures Command::Connect surfaces
// a command-local error rather than disturbing an existing session.
func TestConnectRejectsAlreadyConnected(t *testing.T) {
	h := newHarness(t)
	peer := h.connectPeer(node.Outbound)

	reply := doCommand(t, h, node.Command{Kind: node.CmdConnect, Nid: peer.id, Addr: testAddr(t, "/ip4/127.0.0.1/tcp/4001")})
	if reply.Err != node.ErrAlreadyConnected {
		t.Errorf("err = %v, want ErrAlreadyConnected", reply.Err)
	}
}

// TestSyncStatusUnknownForUnseenRepo covers the supplemented
// Command::SyncStatus surface for a repository with no local copy.
func TestSyncStatusUnknownForUnseenRepo(t *testing.T) {
	h := newHarness(t)
	rid := testRepoId("repo-unknown-status")

	reply := doCommand(t, h, node.Command{Kind: node.CmdSyncStatus, Rid: rid})
	status, ok := reply.Value.(node.SyncStatus)
	if !ok {
		t.Fatalf("reply type = %T, want SyncStatus", reply.Value)
	}
	if status.Kind != node.SyncUnknown {
		t.Errorf("status.Kind = %v, want SyncUnknown", status.Kind)
	}
}
