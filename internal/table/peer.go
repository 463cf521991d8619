// Package table implements the peer record store: one entry per remote
// UUID, holding everything the handshake engine and sync scheduler need to
// track a peer's reachability, latency, and control-frame identity.
package table

import (
	"crypto/ed25519"
	"net"
)

// TypeFlags classifies a peer's role in the overlay.
type TypeFlags uint8

const (
	// TypeIDX marks a rendezvous/index peer: stable, never decays, and is
	// the fallback target for resolving an UNREACHABLE peer's address.
	TypeIDX TypeFlags = 1 << iota
	// TypeFWD marks a peer willing to forward traffic for others.
	TypeFWD
	// TypeSILENCE on a peer means it is never probed and its PING/PONG
	// frames are dropped. On the local node it restricts probing and
	// answering to FWD peers.
	TypeSILENCE
)

// AddrStatus tracks dual-stack handshake progress for one peer.
type AddrStatus uint8

const (
	StatusIPv4Ping AddrStatus = 1 << iota
	StatusIPv4Pong
	StatusIPv6Ping
	StatusIPv6Pong
	StatusUnreachable
)

// Family selects which address family(ies) an operation applies to.
type Family uint8

const (
	FamilyIPv4 Family = 1 << iota
	FamilyIPv6
)

// PingStatusBit and PongStatusBit return the status bits that correspond to
// f, used uniformly by PING and PONG/PONG2 handling.
func (f Family) PingStatusBit() AddrStatus {
	if f == FamilyIPv6 {
		return StatusIPv6Ping
	}
	return StatusIPv4Ping
}

func (f Family) PongStatusBit() AddrStatus {
	if f == FamilyIPv6 {
		return StatusIPv6Pong
	}
	return StatusIPv4Pong
}

// PeerRecord is one remote peer's liveness and address-discovery state.
type PeerRecord struct {
	UUID32    uint32
	PublicKey ed25519.PublicKey
	TypeFlags TypeFlags

	UDPAddr4   *net.UDPAddr
	Socket4Idx int
	UDPAddr6   *net.UDPAddr
	Socket6Idx int

	Addr4UpdateTS int64
	Addr6UpdateTS int64

	PingTSSec  int64
	PingTSUsec int64

	Addr4PingLatencyUsec int64
	Addr6PingLatencyUsec int64

	UDPAddrStatus AddrStatus

	// TunSinPort4 is the inner-tunnel port learned from the peer's PONG
	// attachment.
	TunSinPort4 uint16

	// TunSockAddress carries the rest of the tunnel-side addressing a
	// PONG/PONG2 attachment can advertise, beyond the single port the
	// core's own state machine consults.
	TunSockAddress TunSockAddress

	// CryptoKey is the AEAD key last derived for this peer by the
	// key-rotation rebuild. The data-plane worker reads it; the tick loop
	// is its only writer.
	CryptoKey [32]byte
}

// TunSockAddress mirrors wire.TunSockAddress, stored on the peer record so
// upstream components (data-plane, index worker) can read the peer's full
// advertised tunnel addressing without re-parsing the last PONG.
type TunSockAddress struct {
	TunAddr4    [4]byte
	TunSinPort4 uint16
	TunIPv6Addr [16]byte
	TunSinPort6 uint16
	EsSinPort4  uint16
	EsSinPort6  uint16
}

// KeyUUID and KeyPublic implement keys.PeerKeyer.
func (p *PeerRecord) KeyUUID() uint32   { return p.UUID32 }
func (p *PeerRecord) KeyPublic() []byte { return p.PublicKey }

// IsUnreachable reports invariant 1: both addresses are unset.
func (p *PeerRecord) IsUnreachable() bool {
	return p.UDPAddr4 == nil && p.UDPAddr6 == nil
}

// HasFlag reports whether all of want is set in p.TypeFlags.
func (p *PeerRecord) HasFlag(want TypeFlags) bool {
	return p.TypeFlags&want == want
}

// LocalNode is the process's own identity: a peer-shaped record plus the
// private signing key and inner TUN address.
type LocalNode struct {
	PeerRecord
	PrivateKey ed25519.PrivateKey
	TunAddr    net.IP
	TunPort    uint16
}
