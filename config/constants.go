package config

import "time"

// Scheduling constants fixed by design. These govern the sync scheduler's
// cadence and are not meant to be tuned per deployment.
const (
	// SyncInterval is the minimum spacing between sync scheduler passes.
	SyncInterval = 10 * time.Second

	// PingInterval is the minimum spacing between outbound PINGs to the same peer.
	PingInterval = 25 * time.Second

	// AddrDecay is how long a peer's address may go unconfirmed before its
	// liveness bits are cleared, forcing a fresh handshake. Must be > 2x
	// PingInterval so one lost PING cannot cause spurious decay.
	AddrDecay = 55 * time.Second

	// TickInterval is the tick loop's cooperative sleep / select cadence.
	TickInterval = 100 * time.Millisecond

	// IngressBatchCap bounds how many ring-buffer frames a single tick drains.
	IngressBatchCap = 1024

	// RingCapacity is the default SPSC ring buffer slot count.
	RingCapacity = 4096

	// DefaultListenPort4, DefaultListenPort6 are the default node-worker UDP ports.
	DefaultListenPort4 = 19413
	DefaultListenPort6 = 19413
)

func init() {
	if AddrDecay <= 2*PingInterval {
		panic("config: AddrDecay must exceed 2x PingInterval")
	}
}
