package node

import (
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// NodeId identifies a peer on the network. It is a libp2p peer identity
// derived from an Ed25519 public key, matching the signer in signer.go.
type NodeId = peer.ID

// ParseNodeId decodes the human-readable (base58/multibase) form used in
// config files and CLI arguments.
func ParseNodeId(s string) (NodeId, error) {
	return peer.Decode(s)
}

// Oid is a git object id. The on-disk object format is out of scope for
// this module, so an Oid is carried as its hex digest and never parsed
// further.
type Oid string

func ParseOid(s string) (Oid, error) {
	if len(s) != 40 && len(s) != 64 {
		return "", fmt.Errorf("node: oid %q has unexpected length %d", s, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("node: oid %q is not hex: %w", s, err)
	}
	return Oid(s), nil
}

func (o Oid) String() string { return string(o) }
func (o Oid) IsZero() bool   { return o == "" }

// RepoId is a content-derived repository identifier: a CIDv1 over the
// blake3 digest of the repository's identity document.
type RepoId struct {
	c cid.Cid
}

// NewRepoId derives a RepoId from the canonical bytes of a repository's
// identity document.
func NewRepoId(identityDoc []byte) RepoId {
	digest := blake3.Sum256(identityDoc)
	mh, err := multihash.Encode(digest[:], multihash.BLAKE3)
	if err != nil {
		// multihash.Encode only fails for unknown codes; BLAKE3 is
		// registered, so this is unreachable in practice.
		panic(fmt.Sprintf("node: encoding blake3 multihash: %v", err))
	}
	return RepoId{c: cid.NewCidV1(cid.Raw, mh)}
}

func ParseRepoId(s string) (RepoId, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return RepoId{}, fmt.Errorf("node: parsing repo id %q: %w", s, err)
	}
	return RepoId{c: c}, nil
}

func (r RepoId) String() string  { return r.c.String() }
func (r RepoId) Bytes() []byte   { return r.c.Bytes() }
func (r RepoId) IsZero() bool    { return !r.c.Defined() }
func (r RepoId) Cid() cid.Cid    { return r.c }

// Timestamp is milliseconds since the Unix epoch, matching the precision
// exchanged on the wire in announcement messages.
type Timestamp int64

const TimestampMax = Timestamp(1<<63 - 1)

func TimestampFromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }
func (t Timestamp) Time() time.Time            { return time.UnixMilli(int64(t)) }

func minTimestamp(a, b Timestamp) Timestamp {
	if a < b {
		return a
	}
	return b
}

// HostName is the connection-rate-limiting granularity: the host portion
// of an Address, stripped of port and peer id.
type HostName string

// AddressSource records how an address entry was learned, used to decide
// eviction priority and whether an address counts toward the routable
// set advertised in our own NodeAnnouncement.
type AddressSource int

const (
	SourceImported AddressSource = iota
	SourcePeer
	SourceLocal
)

func (s AddressSource) String() string {
	switch s {
	case SourceImported:
		return "imported"
	case SourcePeer:
		return "peer"
	case SourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Address is a dialable network address plus the trust tag the service
// derives from how it was learned (a trusted address's host bypasses
// rate limiting once the service dials it).
type Address struct {
	Multiaddr multiaddr.Multiaddr
	Trusted   bool
}

func ParseAddress(s string, trusted bool) (Address, error) {
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return Address{}, fmt.Errorf("node: parsing address %q: %w", s, err)
	}
	return Address{Multiaddr: ma, Trusted: trusted}, nil
}

func (a Address) String() string {
	if a.Multiaddr == nil {
		return ""
	}
	return a.Multiaddr.String()
}

func (a Address) IsZero() bool { return a.Multiaddr == nil }

// Host extracts the dial-rate-limiting granularity from the address: the
// IP (or DNS name) component, without port or peer id suffix.
func (a Address) Host() HostName {
	if a.Multiaddr == nil {
		return ""
	}
	var host string
	multiaddr.ForEach(a.Multiaddr, func(c multiaddr.Component) bool {
		switch c.Protocol().Code {
		case multiaddr.P_IP4, multiaddr.P_IP6, multiaddr.P_DNS, multiaddr.P_DNS4, multiaddr.P_DNS6, multiaddr.P_DNSADDR:
			host = c.Value()
			return false
		}
		return true
	})
	return HostName(host)
}

// routable reports whether the address's IP component is public, i.e.
// neither loopback nor a private/link-local range. Non-IP addresses
// (DNS names) are considered routable.
func (a Address) routable() bool {
	if a.Multiaddr == nil {
		return false
	}
	routable := true
	multiaddr.ForEach(a.Multiaddr, func(c multiaddr.Component) bool {
		switch c.Protocol().Code {
		case multiaddr.P_IP4, multiaddr.P_IP6:
			ip := net.ParseIP(c.Value())
			if ip == nil {
				routable = false
				return false
			}
			if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				routable = false
			}
			return false
		}
		return true
	})
	return routable
}

func filterRoutable(addrs []Address, allowLoopback bool) []Address {
	if allowLoopback {
		return addrs
	}
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if a.routable() {
			out = append(out, a)
		}
	}
	return out
}

// isLocalOrLoopback reports whether addr itself resolves to a loopback
// host, used to decide whether a relayer's self-reported addresses
// should be trusted verbatim (development/test topologies commonly
// relay over loopback).
func isLocalOrLoopback(addr Address) bool {
	host := string(addr.Host())
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// KnownAddress is one remembered dial target for a peer, together with
// the bookkeeping maintainConnections and the reconnection backoff use
// to rank candidates.
type KnownAddress struct {
	Address     Address
	Source      AddressSource
	LastSuccess Timestamp
	LastAttempt Timestamp
	Banned      bool
}

// dialKey is a map key uniquely identifying an address for dedup
// purposes (NodeId + string form, since two peers could coincidentally
// share a listen address in test topologies).
func dialKey(nid NodeId, a Address) string {
	return nid.String() + "|" + a.String()
}
