// Package core implements the tick loop, ingress dispatcher, handshake
// engine, and sync scheduler that together make up the node-worker's
// liveness and address-discovery state machine.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nullmesh/peercore/config"
	"github.com/nullmesh/peercore/internal/keys"
	"github.com/nullmesh/peercore/internal/ring"
	"github.com/nullmesh/peercore/internal/table"
)

// Sender emits a payload to a peer on the requested address family(ies).
// Implementations are best-effort: a send failure on one family must not
// block or fail the other.
type Sender interface {
	SendToNode(ctx context.Context, peer *table.PeerRecord, payload []byte, families table.Family) error
}

// Clock supplies the tick loop's notion of time, split into seconds and
// microseconds the way the wire frames carry it. Tests inject a fake
// clock; production uses wallClock.
type Clock func() (sec int64, usec int64)

// wallClock returns the wall-clock second and a full epoch-microsecond
// timestamp. The microsecond value is used both as a PING's nonce and, by
// subtraction against an echoed nonce, as a round-trip latency measure, so
// it must not wrap at the second boundary.
func wallClock() (int64, int64) {
	now := time.Now()
	return now.Unix(), now.UnixMicro()
}

// Core owns the peer table, drives the tick loop, and wires the ingress
// ring, handshake engine, and sync scheduler together. All mutation of
// peer records happens on the tick loop goroutine; the ingress ring is the
// only channel by which another goroutine feeds it work.
type Core struct {
	log      *slog.Logger
	clock    Clock
	local    *table.LocalNode
	table    *table.Table
	ring     *ring.Ring
	sender   Sender
	keyMgr   *keys.KeyManager
	signer   *keys.Signer
	liteMode bool
	metrics  *Metrics

	notify chan struct{}
	done   chan struct{}

	mu         sync.Mutex
	lastSyncTS int64
	running    bool
}

// New builds a Core. km may be nil only if liteMode is true (no signing
// means no key material is needed either).
func New(log *slog.Logger, clock Clock, local *table.LocalNode, tbl *table.Table, r *ring.Ring, sender Sender, km *keys.KeyManager, liteMode bool, m *Metrics) (*Core, error) {
	if local == nil {
		return nil, fmt.Errorf("core: local node is required")
	}
	if tbl == nil {
		return nil, fmt.Errorf("core: peer table is required")
	}
	if r == nil {
		return nil, fmt.Errorf("core: ingress ring is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("core: sender is required")
	}
	if !liteMode && km == nil {
		return nil, fmt.Errorf("core: key manager is required outside lite mode")
	}
	if clock == nil {
		clock = wallClock
	}

	var signer *keys.Signer
	if !liteMode {
		signer = keys.NewSigner(local.PrivateKey)
	}

	return &Core{
		log:      log,
		clock:    clock,
		local:    local,
		table:    tbl,
		ring:     r,
		sender:   sender,
		keyMgr:   km,
		signer:   signer,
		liteMode: liteMode,
		metrics:  m,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Ring exposes the ingress ring so an external receive goroutine can Push
// decoded envelopes into it.
func (c *Core) Ring() *ring.Ring {
	return c.ring
}

// Notify wakes the tick loop immediately instead of waiting for the next
// ~100ms tick. Safe to call from any goroutine, any number of times; it
// never blocks.
func (c *Core) Notify() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Run drives the tick loop until ctx is cancelled. A call made while
// another Run on the same Core is in progress returns an error.
func (c *Core) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("core: Run already in progress")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(c.done)
	}()

	ticker := time.NewTicker(config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("tick loop stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			c.tick(ctx)
		case <-c.notify:
			c.tick(ctx)
		}
	}
}

// tick refreshes time, rotates keys, drains ingress, and runs the sync
// scheduler at its own cadence.
func (c *Core) tick(ctx context.Context) {
	nowSec, nowUsec := c.clock()

	c.rotateKeysIfDue(nowSec)

	drained := 0
	for drained < config.IngressBatchCap {
		env, ok := c.ring.Pop()
		if !ok {
			break
		}
		c.dispatch(ctx, env, nowSec, nowUsec)
		drained++
	}
	if c.metrics != nil {
		c.metrics.RingDepth.Set(float64(c.ring.Len()))
	}

	c.mu.Lock()
	dueSync := nowSec-c.lastSyncTS > int64(config.SyncInterval/time.Second)
	if dueSync {
		c.lastSyncTS = nowSec
	}
	c.mu.Unlock()

	if dueSync {
		c.sync(ctx, nowSec, nowUsec)
	}
}

func (c *Core) rotateKeysIfDue(nowSec int64) {
	if c.liteMode || c.keyMgr == nil {
		return
	}
	if c.keyMgr.VerifySeedTime(nowSec) {
		return
	}
	if err := c.keyMgr.UpdateTimeSeed(nowSec); err != nil {
		c.log.Error("key seed rotation failed", "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.KeyRotations.Inc()
	}
	c.table.ForEach(func(p *table.PeerRecord) {
		key, err := c.keyMgr.BuildCryptoKey(p)
		if err != nil {
			c.log.Error("rebuilding peer crypto key failed", "peer", p.UUID32, "error", err)
			return
		}
		p.CryptoKey = key
	})
}
