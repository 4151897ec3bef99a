package node

import "time"

// DisconnectReason explains why the service asked the reactor to tear
// a session down, used to grade address-book severity (spec section
// 7). A persistent peer backs off the same way whatever the reason.
type DisconnectReason int

const (
	ReasonSession DisconnectReason = iota
	ReasonFetch
	ReasonTimeout
	ReasonCommand
	ReasonDial
	ReasonConnection
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonSession:
		return "session-error"
	case ReasonFetch:
		return "fetch-timeout"
	case ReasonTimeout:
		return "idle-timeout"
	case ReasonCommand:
		return "command"
	case ReasonDial:
		return "dial-failed"
	case ReasonConnection:
		return "connection-lost"
	default:
		return "unknown"
	}
}

func severityFor(reason DisconnectReason) Severity {
	switch reason {
	case ReasonDial, ReasonConnection:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// OutboxAction is one side effect the service asks its driver (the
// reactor) to carry out. The service itself never performs I/O; it
// only appends actions here and the driver drains them after each
// event (spec section 4.1/5).
type OutboxAction interface {
	isOutboxAction()
}

type ConnectAction struct {
	Nid     NodeId
	Addr    Address
	Timeout time.Duration
}

type WriteAction struct {
	Nid NodeId
	Msg Message
}

type DisconnectAction struct {
	Nid    NodeId
	Reason DisconnectReason
}

type WakeupAction struct {
	After time.Duration
}

type FetchDispatchAction struct {
	Req FetchRequest
}

func (ConnectAction) isOutboxAction()       {}
func (WriteAction) isOutboxAction()         {}
func (DisconnectAction) isOutboxAction()    {}
func (WakeupAction) isOutboxAction()        {}
func (FetchDispatchAction) isOutboxAction() {}

// Outbox accumulates actions within a single dispatch call and is
// drained by the driver immediately afterward. Per-peer ordering of
// actions is preserved (spec section 5's ordering guarantee).
type Outbox struct {
	actions []OutboxAction
}

func (o *Outbox) push(a OutboxAction) {
	o.actions = append(o.actions, a)
}

// Drain returns and clears the accumulated actions. Callers must drain
// after every Service entry point returns.
func (o *Outbox) Drain() []OutboxAction {
	a := o.actions
	o.actions = nil
	return a
}
