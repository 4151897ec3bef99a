package node

import (
	"encoding/json"
	"fmt"
)

// AnnouncementVariant tags which of the three gossip message shapes an
// Announcement carries.
type AnnouncementVariant int

const (
	VariantNode AnnouncementVariant = iota
	VariantInventory
	VariantRefs
)

func (v AnnouncementVariant) String() string {
	switch v {
	case VariantNode:
		return "node"
	case VariantInventory:
		return "inventory"
	case VariantRefs:
		return "refs"
	default:
		return "unknown"
	}
}

// RefTip is one remote's advertised tip for a repository.
type RefTip struct {
	Remote NodeId `json:"remote"`
	At     Oid    `json:"at"`
}

// NodeAnnouncementMsg advertises a node's identity, capabilities and
// reachable addresses (spec section 3/4.3.1).
type NodeAnnouncementMsg struct {
	Features  uint64    `json:"features"`
	Alias     string    `json:"alias"`
	Work      uint64    `json:"work"`
	Timestamp Timestamp `json:"timestamp"`
	Addresses []Address `json:"addresses"`
	Relays    []NodeId  `json:"relays"`
	Nonce     uint64    `json:"nonce"`
}

// InventoryAnnouncementMsg advertises the set of repositories a node
// currently seeds (spec section 4.3.2).
type InventoryAnnouncementMsg struct {
	Inventory []RepoId  `json:"inventory"`
	Timestamp Timestamp `json:"timestamp"`
}

// RefsAnnouncementMsg advertises updated ref tips for a single
// repository (spec section 4.3.3).
type RefsAnnouncementMsg struct {
	Rid       RepoId    `json:"rid"`
	Refs      []RefTip  `json:"refs"`
	Timestamp Timestamp `json:"timestamp"`
}

// AnnouncementMessage is the sum type of the three announcement
// payloads; a type switch on the concrete value recovers the variant.
type AnnouncementMessage interface {
	isAnnouncementMessage()
	variant() AnnouncementVariant
	timestamp() Timestamp
}

func (NodeAnnouncementMsg) isAnnouncementMessage()      {}
func (NodeAnnouncementMsg) variant() AnnouncementVariant { return VariantNode }
func (m NodeAnnouncementMsg) timestamp() Timestamp       { return m.Timestamp }

func (InventoryAnnouncementMsg) isAnnouncementMessage()      {}
func (InventoryAnnouncementMsg) variant() AnnouncementVariant { return VariantInventory }
func (m InventoryAnnouncementMsg) timestamp() Timestamp       { return m.Timestamp }

func (RefsAnnouncementMsg) isAnnouncementMessage()      {}
func (RefsAnnouncementMsg) variant() AnnouncementVariant { return VariantRefs }
func (m RefsAnnouncementMsg) timestamp() Timestamp       { return m.Timestamp }

// Announcement is the signed envelope relayed between peers and stored
// for later replay to newly-subscribed sessions.
type Announcement struct {
	Announcer NodeId
	Message   AnnouncementMessage
	Signature Signature
}

type announcementEnvelope struct {
	Announcer NodeId           `json:"announcer"`
	Payload   announcementWire `json:"payload"`
	Signature Signature        `json:"signature"`
}

// MarshalJSON encodes Announcement via the same tagged-union envelope
// used for the signed payload, since Message is an interface and the
// concrete variant would otherwise be lost on the wire.
func (a Announcement) MarshalJSON() ([]byte, error) {
	env := announcementEnvelope{Announcer: a.Announcer, Signature: a.Signature}
	env.Payload.Variant = a.Message.variant()
	switch m := a.Message.(type) {
	case NodeAnnouncementMsg:
		env.Payload.Node = &m
	case InventoryAnnouncementMsg:
		env.Payload.Inventory = &m
	case RefsAnnouncementMsg:
		env.Payload.Refs = &m
	default:
		return nil, fmt.Errorf("node: unknown announcement variant %T", a.Message)
	}
	return json.Marshal(env)
}

func (a *Announcement) UnmarshalJSON(data []byte) error {
	var env announcementEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	a.Announcer = env.Announcer
	a.Signature = env.Signature
	switch env.Payload.Variant {
	case VariantNode:
		if env.Payload.Node == nil {
			return fmt.Errorf("node: announcement variant node missing payload")
		}
		a.Message = *env.Payload.Node
	case VariantInventory:
		if env.Payload.Inventory == nil {
			return fmt.Errorf("node: announcement variant inventory missing payload")
		}
		a.Message = *env.Payload.Inventory
	case VariantRefs:
		if env.Payload.Refs == nil {
			return fmt.Errorf("node: announcement variant refs missing payload")
		}
		a.Message = *env.Payload.Refs
	default:
		return fmt.Errorf("node: unknown announcement variant %d", env.Payload.Variant)
	}
	return nil
}

// repoScopeOf returns the repositories an announcement concerns, used to
// match it against a peer's subscription filter when relaying. A
// NodeAnnouncement concerns no particular repository and always
// matches.
func repoScopeOf(msg AnnouncementMessage) []RepoId {
	switch m := msg.(type) {
	case InventoryAnnouncementMsg:
		return m.Inventory
	case RefsAnnouncementMsg:
		return []RepoId{m.Rid}
	default:
		return nil
	}
}

type announcementWire struct {
	Variant   AnnouncementVariant       `json:"variant"`
	Node      *NodeAnnouncementMsg      `json:"node,omitempty"`
	Inventory *InventoryAnnouncementMsg `json:"inventory,omitempty"`
	Refs      *RefsAnnouncementMsg      `json:"refs,omitempty"`
}

// encodeAnnouncementPayload canonicalizes announcer+message for
// signing/verification. The wire encoding of gossip traffic between
// implementations is explicitly out of scope (spec Non-goals); this
// only needs to be stable within a single running binary and across
// this module's own peers, so plain JSON is sufficient.
func encodeAnnouncementPayload(announcer NodeId, msg AnnouncementMessage) ([]byte, error) {
	env := announcementWire{Variant: msg.variant()}
	switch m := msg.(type) {
	case NodeAnnouncementMsg:
		env.Node = &m
	case InventoryAnnouncementMsg:
		env.Inventory = &m
	case RefsAnnouncementMsg:
		env.Refs = &m
	default:
		return nil, fmt.Errorf("node: unknown announcement variant %T", msg)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("node: encoding announcement: %w", err)
	}
	payload := make([]byte, 0, len(announcer)+len(body))
	payload = append(payload, []byte(announcer)...)
	payload = append(payload, body...)
	return payload, nil
}

// SignAnnouncement produces a signed Announcement attributed to
// signer's NodeId.
func SignAnnouncement(signer Signer, msg AnnouncementMessage) (Announcement, error) {
	id := signer.NodeId()
	payload, err := encodeAnnouncementPayload(id, msg)
	if err != nil {
		return Announcement{}, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return Announcement{}, err
	}
	return Announcement{Announcer: id, Message: msg, Signature: sig}, nil
}

// Verify checks the announcement's signature against its own announcer
// field (self-certifying, since NodeId is derived from the public key).
func (a Announcement) Verify() bool {
	payload, err := encodeAnnouncementPayload(a.Announcer, a.Message)
	if err != nil {
		return false
	}
	return VerifySignature(a.Announcer, payload, a.Signature)
}

// MessageKind tags the session-level wire message, one layer above
// Announcement: Subscribe/Info/Ping/Pong are point-to-point and never
// relayed, unlike Announcement.
type MessageKind int

const (
	MsgAnnouncement MessageKind = iota
	MsgSubscribe
	MsgInfo
	MsgPing
	MsgPong
)

// SubscribeMessage installs the sender's relay predicate and replay
// window on the receiving session (spec section 4.2/4.3).
type SubscribeMessage struct {
	Filter *Filter
	Since  Timestamp
	Until  Timestamp
}

type InfoKind int

const (
	InfoRefsAlreadySynced InfoKind = iota
)

// InfoMessage carries out-of-band status, currently only the
// "you already have this" acknowledgment that suppresses a redundant
// fetch (spec section 4.3.3 / 4.4 supplement).
type InfoMessage struct {
	Kind InfoKind
	Rid  RepoId
	At   Oid
}

// PingMessage requests a Pong carrying exactly PongLen zero bytes,
// bounded by Limits.MaxPongZeroes to cap the amplification a malicious
// peer can request.
type PingMessage struct {
	Nonce   uint64
	PongLen int
}

type PongMessage struct {
	Zeroes []byte
}

// Message is the session-level envelope the reactor delivers to
// Service.ReceivedMessage and emits from WriteAction.
type Message struct {
	Kind         MessageKind
	Announcement *Announcement
	Subscribe    *SubscribeMessage
	Info         *InfoMessage
	Ping         *PingMessage
	Pong         *PongMessage
}
