// Package keys implements Ed25519 control-frame authentication and the
// time-bound symmetric key rotation used to derive per-peer AEAD keys.
package keys

import (
	"crypto/ed25519"
	"fmt"

	"github.com/nullmesh/peercore/internal/wire"
)

// Signer signs and verifies the exact byte range a frame exposes via
// SignedRegion, never a language struct cast.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func NewSigner(private ed25519.PrivateKey) *Signer {
	return &Signer{private: private, public: private.Public().(ed25519.PublicKey)}
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.public
}

// SignPing signs f's signed region and returns a copy of f with Signature set.
func (s *Signer) SignPing(f wire.PingFrame) wire.PingFrame {
	sig := ed25519.Sign(s.private, f.SignedRegion())
	copy(f.Signature[:], sig)
	return f
}

// SignPong signs f's signed region and returns a copy of f with Signature set.
func (s *Signer) SignPong(f wire.PongFrame) wire.PongFrame {
	sig := ed25519.Sign(s.private, f.SignedRegion())
	copy(f.Signature[:], sig)
	return f
}

// VerifyPing checks f.Signature against pub over f's signed region.
func VerifyPing(pub ed25519.PublicKey, f wire.PingFrame) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, f.SignedRegion(), f.Signature[:])
}

// VerifyPong checks f.Signature against pub over f's signed region.
func VerifyPong(pub ed25519.PublicKey, f wire.PongFrame) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, f.SignedRegion(), f.Signature[:])
}

// ParsePublicKey validates that raw is a well-formed Ed25519 public key.
func ParsePublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, raw)
	return pub, nil
}
