package node

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Signature is a detached Ed25519 signature over a payload produced by
// encodeAnnouncementPayload.
type Signature []byte

// Signer produces signatures attributable to a NodeId. The node's own
// identity key implements it; tests substitute deterministic fakes.
type Signer interface {
	NodeId() NodeId
	Sign(payload []byte) (Signature, error)
}

type keySigner struct {
	priv crypto.PrivKey
	id   NodeId
}

// NewSigner wraps a libp2p private key (Ed25519, as produced by
// internal/identity) as a Signer.
func NewSigner(priv crypto.PrivKey) (Signer, error) {
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("node: deriving node id from private key: %w", err)
	}
	return &keySigner{priv: priv, id: id}, nil
}

func (s *keySigner) NodeId() NodeId { return s.id }

func (s *keySigner) Sign(payload []byte) (Signature, error) {
	sig, err := s.priv.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("node: signing payload: %w", err)
	}
	return Signature(sig), nil
}

// VerifySignature checks that sig is a valid signature by id over
// payload, extracting id's public key from the embedded key material
// (Ed25519 peer ids are self-certifying).
func VerifySignature(id NodeId, payload []byte, sig Signature) bool {
	pub, err := id.ExtractPublicKey()
	if err != nil {
		return false
	}
	ok, err := pub.Verify(payload, sig)
	return err == nil && ok
}
