package core

import (
	"context"
	"time"

	"github.com/nullmesh/peercore/config"
	"github.com/nullmesh/peercore/internal/table"
)

// sync is the per-peer probe and decay scheduler, invoked every
// SyncInterval from the tick loop.
func (c *Core) sync(ctx context.Context, nowSec, nowUsec int64) {
	pingIntervalSec := int64(config.PingInterval / time.Second)
	decaySec := int64(config.AddrDecay / time.Second)

	haveIDXPeer := false
	c.table.ForEach(func(p *table.PeerRecord) {
		if p.HasFlag(table.TypeIDX) {
			haveIDXPeer = true
		}
	})

	c.table.ForEach(func(peer *table.PeerRecord) {
		if peer.HasFlag(table.TypeSILENCE) {
			return
		}
		if c.local.HasFlag(table.TypeSILENCE) && !peer.HasFlag(table.TypeFWD) {
			return
		}

		// Step 1: PING-interval throttle. Skips probing AND decay for
		// this pass — a peer we just pinged is by definition not stale.
		if nowSec-peer.PingTSSec < pingIntervalSec {
			return
		}

		// Step 2: no known address at all — defer to the external
		// index/rendezvous worker instead of probing blind.
		if peer.IsUnreachable() && haveIDXPeer {
			peer.UDPAddrStatus |= table.StatusUnreachable
			peer.PingTSSec = nowSec
			return
		}

		// Step 3: probe.
		c.sendPing(ctx, peer, nowSec, nowUsec)

		// Step 4: address decay. IDX peers are configured with stable
		// endpoints and never decay.
		if peer.HasFlag(table.TypeIDX) {
			return
		}
		if nowSec-peer.Addr4UpdateTS > decaySec && peer.UDPAddrStatus&(table.StatusIPv4Ping|table.StatusIPv4Pong) != 0 {
			peer.UDPAddrStatus &^= table.StatusIPv4Ping | table.StatusIPv4Pong
			if c.metrics != nil {
				c.metrics.AddrDecays.WithLabelValues("ipv4").Inc()
			}
		}
		if nowSec-peer.Addr6UpdateTS > decaySec && peer.UDPAddrStatus&(table.StatusIPv6Ping|table.StatusIPv6Pong) != 0 {
			peer.UDPAddrStatus &^= table.StatusIPv6Ping | table.StatusIPv6Pong
			if c.metrics != nil {
				c.metrics.AddrDecays.WithLabelValues("ipv6").Inc()
			}
		}
	})
}
