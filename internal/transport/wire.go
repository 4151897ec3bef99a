package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shurlinet/meshnode/pkg/node"
)

// ProtocolGossip carries the session-level Message envelope (gossip
// announcements, subscribe predicates, info, ping/pong).
const ProtocolGossip = "/meshnode/gossip/1.0.0"

// ProtocolFetch carries a single fetch request/response round trip.
// The actual collaboration-object transfer format is out of scope
// (spec Non-goals); this protocol only exchanges the ref-tip
// bookkeeping the service needs to decide what changed.
const ProtocolFetch = "/meshnode/fetch/1.0.0"

// maxFrameSize bounds a single length-prefixed frame to prevent a
// malicious or buggy peer from requesting unbounded buffer growth.
const maxFrameSize = 4 << 20 // 4 MiB

// writeFrame writes a 4-byte big-endian length prefix followed by the
// JSON encoding of v.
func writeFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: encoding frame: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("transport: frame of %d bytes exceeds max %d", len(body), maxFrameSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads one length-prefixed JSON frame into v.
func readFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return fmt.Errorf("transport: peer announced frame of %d bytes, exceeds max %d", n, maxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// fetchRequestWire is the JSON body sent to ProtocolFetch.
type fetchRequestWire struct {
	Rid    string        `json:"rid"`
	RefsAt []node.RefTip `json:"refs_at"`
}

// fetchResponseWire is the JSON body returned from ProtocolFetch: the
// responder's own view of all the repository's remote tips. It is not
// filtered against the requester's RefsAt.
type fetchResponseWire struct {
	Updated map[string]string `json:"updated"` // NodeId string -> Oid string
	Error   string            `json:"error,omitempty"`
}
