package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SeedSize is the width of the time-bound root seed the key manager rotates.
const SeedSize = 32

// RotationInterval is how long a seed stays current before the tick loop
// advances it.
const RotationInterval = 3600 // seconds

// PeerKeyer is the minimal peer identity BuildCryptoKey needs: the stable
// UUID plus the Ed25519 public key, so two peers with colliding UUIDs (which
// should never happen, but costs nothing to guard against) still derive
// distinct keys.
type PeerKeyer interface {
	KeyUUID() uint32
	KeyPublic() []byte
}

// KeyManager owns the time-bound root seed and derives per-peer symmetric
// keys from it. It implements the opaque verify_seed_time / update_time_seed
// / build_crypto_key collaborator contract.
type KeyManager struct {
	mu        sync.Mutex
	seed      [SeedSize]byte
	rotatedAt int64
}

// NewKeyManager seeds the manager with cryptographically random material.
func NewKeyManager(nowSec int64) (*KeyManager, error) {
	km := &KeyManager{rotatedAt: nowSec}
	if _, err := io.ReadFull(rand.Reader, km.seed[:]); err != nil {
		return nil, fmt.Errorf("keys: seeding root key: %w", err)
	}
	return km, nil
}

// VerifySeedTime reports whether the current seed is still valid for nowSec.
func (km *KeyManager) VerifySeedTime(nowSec int64) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	return nowSec-km.rotatedAt < RotationInterval
}

// UpdateTimeSeed advances the root seed. Called from the tick loop once
// VerifySeedTime reports the current seed has expired.
func (km *KeyManager) UpdateTimeSeed(nowSec int64) error {
	km.mu.Lock()
	defer km.mu.Unlock()
	if _, err := io.ReadFull(rand.Reader, km.seed[:]); err != nil {
		return fmt.Errorf("keys: rotating root key: %w", err)
	}
	km.rotatedAt = nowSec
	return nil
}

// BuildCryptoKey derives a peer's AEAD key from the current root seed via
// HKDF-SHA256, binding the peer's UUID and public key into the info
// parameter so no two peers ever share a derived key even if the root seed
// is reused across a rotation window.
func (km *KeyManager) BuildCryptoKey(peer PeerKeyer) ([chacha20poly1305.KeySize]byte, error) {
	km.mu.Lock()
	seed := km.seed
	km.mu.Unlock()

	info := make([]byte, 4+len(peer.KeyPublic()))
	binary.BigEndian.PutUint32(info[:4], peer.KeyUUID())
	copy(info[4:], peer.KeyPublic())

	r := hkdf.New(sha256.New, seed[:], nil, info)

	var key [chacha20poly1305.KeySize]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("keys: deriving peer key: %w", err)
	}
	return key, nil
}
