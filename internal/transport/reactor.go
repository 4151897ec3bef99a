package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/shurlinet/meshnode/pkg/node"
)

// defaultDialTimeout applies when an OutboxAction does not specify one.
const defaultDialTimeout = 9 * time.Second

// Reactor is the single goroutine that drives a node.Service: it owns
// the libp2p host, executes every OutboxAction the service emits, and
// feeds inbound streams and timer events back in as Service method
// calls. The service itself is never touched from any other
// goroutine; external callers (the daemon control plane, the stream
// handlers below, the wakeup timer) hand work to the loop via cmdCh.
type Reactor struct {
	host    host.Host
	svc     *node.Service
	storage node.Storage
	log     *slog.Logger

	cmdCh  chan func()
	doneCh chan struct{}

	mu      sync.Mutex
	streams map[node.NodeId]network.Stream
}

// NewReactor wires a libp2p host and the storage layer to a
// node.Service and registers the inbound stream handlers. Call Run to
// start the event loop.
func NewReactor(h host.Host, svc *node.Service, storage node.Storage, log *slog.Logger) *Reactor {
	if log == nil {
		log = slog.Default()
	}
	r := &Reactor{
		host:    h,
		svc:     svc,
		storage: storage,
		log:     log.With("component", "reactor"),
		cmdCh:   make(chan func()),
		doneCh:  make(chan struct{}),
		streams: make(map[node.NodeId]network.Stream),
	}
	h.SetStreamHandler(protocol.ID(ProtocolGossip), r.handleInboundGossip)
	h.SetStreamHandler(protocol.ID(ProtocolFetch), r.handleInboundFetch)
	return r
}

// Run drives the event loop until ctx is cancelled. It must run on its
// own goroutine; every node.Service call in this file happens on this
// goroutine only.
func (r *Reactor) Run(ctx context.Context) {
	defer close(r.doneCh)
	r.dispatch(r.svc.Initialize())
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-r.cmdCh:
			fn()
		}
	}
}

// run schedules fn to execute on the reactor goroutine and blocks
// until it has, giving external callers (Submit, stream handlers, the
// wakeup timer) safe synchronous access to the service.
func (r *Reactor) run(fn func()) {
	done := make(chan struct{})
	select {
	case r.cmdCh <- func() { fn(); close(done) }:
		<-done
	case <-r.doneCh:
	}
}

// SubmitNodeCommand runs cmd against the service on the reactor
// goroutine and blocks for its reply, draining the resulting outbox.
// Used by the control-plane Runtime.
func (r *Reactor) SubmitNodeCommand(cmd node.Command) node.CommandReply {
	if cmd.Reply == nil {
		cmd.Reply = make(chan node.CommandReply, 1)
	}
	r.run(func() {
		r.svc.Command(cmd)
		r.dispatch(r.svc.Drain())
	})
	return <-cmd.Reply
}

// dispatch executes the side effects the service requested, in order.
func (r *Reactor) dispatch(actions []node.OutboxAction) {
	for _, a := range actions {
		switch act := a.(type) {
		case node.ConnectAction:
			go r.doConnect(act)
		case node.WriteAction:
			go r.doWrite(act)
		case node.DisconnectAction:
			go r.doDisconnect(act)
		case node.WakeupAction:
			r.scheduleWakeup(act.After)
		case node.FetchDispatchAction:
			go r.doFetch(act)
		default:
			r.log.Warn("unknown outbox action", "type", fmt.Sprintf("%T", a))
		}
	}
}

func (r *Reactor) scheduleWakeup(after time.Duration) {
	time.AfterFunc(after, func() {
		r.run(func() { r.dispatch(r.svc.Wake()) })
	})
}

func (r *Reactor) doConnect(act node.ConnectAction) {
	ai, err := addressToAddrInfo(act.Nid, act.Addr)
	if err != nil {
		r.log.Warn("bad dial address", "peer", act.Nid, "err", err)
		r.run(func() {
			r.svc.Disconnected(act.Nid, node.ReasonDial)
			r.dispatch(r.svc.Drain())
		})
		return
	}

	r.run(func() {
		r.svc.Attempted(act.Nid, act.Addr)
		r.dispatch(r.svc.Drain())
	})

	timeout := act.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := r.host.Connect(ctx, *ai); err != nil {
		r.log.Warn("dial failed", "peer", act.Nid, "addr", act.Addr.String(), "err", err)
		r.run(func() {
			r.svc.Disconnected(act.Nid, node.ReasonDial)
			r.dispatch(r.svc.Drain())
		})
		return
	}

	s, err := r.host.NewStream(ctx, act.Nid, protocol.ID(ProtocolGossip))
	if err != nil {
		r.log.Warn("stream open failed", "peer", act.Nid, "err", err)
		r.run(func() {
			r.svc.Disconnected(act.Nid, node.ReasonDial)
			r.dispatch(r.svc.Drain())
		})
		return
	}

	r.registerStream(act.Nid, s)
	go r.readLoop(act.Nid, s)

	r.run(func() {
		// Persistence was already recorded on the session when
		// connectTo created it; Connected only needs to OR it in.
		r.svc.Connected(act.Nid, act.Addr, node.Outbound, false)
		r.dispatch(r.svc.Drain())
	})
}

func (r *Reactor) doWrite(act node.WriteAction) {
	r.mu.Lock()
	s, ok := r.streams[act.Nid]
	r.mu.Unlock()
	if !ok {
		r.log.Debug("write to unknown stream dropped", "peer", act.Nid)
		return
	}
	if err := writeFrame(s, act.Msg); err != nil {
		r.log.Warn("write failed", "peer", act.Nid, "err", err)
		r.run(func() {
			r.svc.Disconnected(act.Nid, node.ReasonConnection)
			r.dispatch(r.svc.Drain())
		})
	}
}

func (r *Reactor) doDisconnect(act node.DisconnectAction) {
	r.closeStream(act.Nid)
}

func (r *Reactor) doFetch(act node.FetchDispatchAction) {
	req := act.Req
	r.mu.Lock()
	_, ok := r.streams[req.From]
	r.mu.Unlock()
	if !ok {
		r.reportFetchErr(req, fmt.Errorf("transport: no stream to %s", req.From), node.FetchErrOther)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), req.Timeout)
	defer cancel()
	s, err := r.host.NewStream(ctx, req.From, protocol.ID(ProtocolFetch))
	if err != nil {
		r.reportFetchErr(req, err, node.FetchErrTimeout)
		return
	}
	defer s.Close()

	if err := writeFrame(s, fetchRequestWire{Rid: req.Rid.String(), RefsAt: req.RefsAt}); err != nil {
		r.reportFetchErr(req, err, node.FetchErrOther)
		return
	}

	var resp fetchResponseWire
	if err := readFrame(s, &resp); err != nil {
		kind := node.FetchErrOther
		if ctx.Err() != nil {
			kind = node.FetchErrTimeout
		}
		r.reportFetchErr(req, err, kind)
		return
	}
	if resp.Error != "" {
		r.reportFetchErr(req, fmt.Errorf("transport: remote: %s", resp.Error), node.FetchErrOther)
		return
	}

	updated := make(map[node.NodeId]node.Oid, len(resp.Updated))
	for nid, oid := range resp.Updated {
		pid, err := peer.Decode(nid)
		if err != nil {
			continue
		}
		updated[pid] = node.Oid(oid)
	}
	r.run(func() {
		r.svc.Fetched(req.Rid, req.From, node.FetchResult{Ok: &node.FetchOutcome{Updated: updated, Namespaces: req.Namespaces}})
		r.dispatch(r.svc.Drain())
	})
}

func (r *Reactor) reportFetchErr(req node.FetchRequest, err error, kind node.FetchErrorKind) {
	r.run(func() {
		r.svc.Fetched(req.Rid, req.From, node.FetchResult{Err: err, ErrKind: kind})
		r.dispatch(r.svc.Drain())
	})
}

// handleInboundGossip is the libp2p stream handler for accepted gossip
// connections: it applies the service's connection-rate limit before
// the remote's identity is confirmed, then relays every frame to
// ReceivedMessage for the lifetime of the stream.
func (r *Reactor) handleInboundGossip(s network.Stream) {
	remote := s.Conn().RemotePeer()
	addr, err := addrFromConn(s)
	if err != nil {
		s.Reset()
		return
	}

	var allowed bool
	r.run(func() { allowed = r.svc.Accepted(addr) })
	if !allowed {
		s.Reset()
		return
	}

	r.registerStream(remote, s)
	r.run(func() {
		r.svc.Connected(remote, addr, node.Inbound, false)
		r.dispatch(r.svc.Drain())
	})
	r.readLoop(remote, s)
}

// handleInboundFetch answers a peer's fetch request with our own view
// of the repository's tips. Actual object transfer is out of scope;
// this only reports the bookkeeping the requester needs to update its
// local ref table.
func (r *Reactor) handleInboundFetch(s network.Stream) {
	defer s.Close()
	var req fetchRequestWire
	if err := readFrame(s, &req); err != nil {
		return
	}
	rid, err := node.ParseRepoId(req.Rid)
	if err != nil {
		writeFrame(s, fetchResponseWire{Error: err.Error()})
		return
	}

	var resp fetchResponseWire
	r.run(func() {
		refs, err := r.storage.Refs(rid)
		if err != nil {
			resp = fetchResponseWire{Error: err.Error()}
			return
		}
		updated := make(map[string]string, len(refs))
		for nid, oid := range refs {
			updated[nid.String()] = oid.String()
		}
		resp = fetchResponseWire{Updated: updated}
	})
	writeFrame(s, resp)
}

func (r *Reactor) readLoop(nid node.NodeId, s network.Stream) {
	defer r.closeStream(nid)
	br := bufio.NewReader(s)
	for {
		var msg node.Message
		if err := readFrame(br, &msg); err != nil {
			r.run(func() {
				r.svc.Disconnected(nid, node.ReasonConnection)
				r.dispatch(r.svc.Drain())
			})
			return
		}
		r.run(func() {
			r.svc.ReceivedMessage(nid, msg)
			r.dispatch(r.svc.Drain())
		})
	}
}

func (r *Reactor) registerStream(nid node.NodeId, s network.Stream) {
	r.mu.Lock()
	if old, ok := r.streams[nid]; ok && old != s {
		old.Reset()
	}
	r.streams[nid] = s
	r.mu.Unlock()
}

func (r *Reactor) closeStream(nid node.NodeId) {
	r.mu.Lock()
	s, ok := r.streams[nid]
	delete(r.streams, nid)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

func addressToAddrInfo(nid node.NodeId, addr node.Address) (*peer.AddrInfo, error) {
	if addr.IsZero() {
		return &peer.AddrInfo{ID: nid}, nil
	}
	if ai, err := peer.AddrInfoFromP2pAddr(addr.Multiaddr); err == nil {
		return ai, nil
	}
	return &peer.AddrInfo{ID: nid, Addrs: []multiaddr.Multiaddr{addr.Multiaddr}}, nil
}

// addrFromConn recovers the dialable Address for an inbound stream's
// remote connection, used for the pre-identity rate-limit check.
func addrFromConn(s network.Stream) (node.Address, error) {
	ma := s.Conn().RemoteMultiaddr()
	if ma == nil {
		return node.Address{}, fmt.Errorf("transport: no remote multiaddr on stream")
	}
	return node.Address{Multiaddr: ma}, nil
}
