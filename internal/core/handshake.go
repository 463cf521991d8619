package core

import (
	"context"
	"fmt"
	"net"

	"github.com/nullmesh/peercore/internal/keys"
	"github.com/nullmesh/peercore/internal/ring"
	"github.com/nullmesh/peercore/internal/table"
	"github.com/nullmesh/peercore/internal/wire"
)

// handlePing validates and processes an inbound PING control frame.
func (c *Core) handlePing(ctx context.Context, data []byte, env ring.Envelope, nowSec, nowUsec int64) {
	f, err := wire.UnmarshalPingFrame(data)
	if err != nil {
		c.dropFrame("malformed_ping", err)
		return
	}

	if f.Data.SrcUUID32 == c.local.UUID32 {
		c.dropFrame("ping_loopback", nil)
		return
	}
	peer := c.table.Get(f.Data.SrcUUID32)
	if peer == nil {
		c.dropFrame("ping_unknown_peer", nil)
		return
	}
	if peer.HasFlag(table.TypeSILENCE) {
		c.dropFrame("ping_peer_silence", nil)
		return
	}
	if c.local.HasFlag(table.TypeSILENCE) && !peer.HasFlag(table.TypeFWD) {
		c.dropFrame("ping_local_silence", nil)
		return
	}
	if !c.liteMode && !keys.VerifyPing(peer.PublicKey, f) {
		c.dropFrame("ping_bad_signature", nil)
		return
	}

	family := familyOf(env)
	c.updateAddress(peer, env, family, nowSec)
	if c.metrics != nil {
		c.metrics.PingsReceived.Inc()
	}

	c.sendPong(ctx, peer, f.Data.SrcTSUsec, family, wire.SubTypePong, nowUsec)
}

// handlePong validates and processes an inbound PONG or PONG2 control frame.
func (c *Core) handlePong(ctx context.Context, subType uint8, data []byte, env ring.Envelope, nowSec, nowUsec int64) {
	f, err := wire.UnmarshalPongFrame(data)
	if err != nil {
		c.dropFrame("malformed_pong", err)
		return
	}

	if f.Data.DstUUID32 != c.local.UUID32 {
		c.dropFrame("pong_misrouted", nil)
		return
	}
	peer := c.table.Get(f.Data.SrcUUID32)
	if peer == nil {
		c.dropFrame("pong_unknown_peer", nil)
		return
	}
	if peer.HasFlag(table.TypeSILENCE) {
		c.dropFrame("pong_peer_silence", nil)
		return
	}
	if c.local.HasFlag(table.TypeSILENCE) && !peer.HasFlag(table.TypeFWD) {
		c.dropFrame("pong_local_silence", nil)
		return
	}
	if !c.liteMode && !keys.VerifyPong(peer.PublicKey, f) {
		c.dropFrame("pong_bad_signature", nil)
		return
	}

	family := familyOf(env)
	c.updateAddressPong(peer, env, family, nowSec)
	if c.metrics != nil {
		c.metrics.PongsReceived.Inc()
	}

	// Latency measurement: only the echo matching the most recent PING
	// updates it; a superseded nonce is silently ignored.
	if f.Data.DstTSUsec == peer.PingTSUsec {
		latency := nowUsec - f.Data.DstTSUsec + 1
		if family == table.FamilyIPv6 {
			peer.Addr6PingLatencyUsec = latency
		} else {
			peer.Addr4PingLatencyUsec = latency
		}
		if c.metrics != nil {
			c.metrics.LatencyUsec.WithLabelValues(familyLabel(family)).Observe(float64(latency))
		}
	}

	if addr, ok, err := wire.ParseAttachment(f.Data.Attachment); err != nil {
		c.log.Debug("ignoring malformed pong attachment", "peer", peer.UUID32, "error", err)
	} else if ok {
		peer.TunSinPort4 = addr.TunSinPort4
		peer.TunSockAddress = table.TunSockAddress(addr)
	}

	// Hole-punch completion: a PONG gets a PONG2 reply; a PONG2 ends the
	// exchange. The PONG2 reply does not depend on the echoed dst_ts_usec
	// matching; only the latency write above does.
	if subType == wire.SubTypePong {
		c.sendPong(ctx, peer, 0, family, wire.SubTypePong2, nowUsec)
	}
}

// sendPong builds and sends a PONG or PONG2 on the single family the
// triggering frame arrived on. For a PONG, echoTSUsec is the PING's
// src_ts_usec and is echoed into dst_ts_usec so the original sender can
// match latency. A PONG2 instead sets dst_ts_usec to its own freshly
// generated src_ts_usec: it carries an empty attachment and terminates the
// exchange rather than echoing anything.
func (c *Core) sendPong(ctx context.Context, peer *table.PeerRecord, echoTSUsec int64, family table.Family, subType uint8, nowUsec int64) {
	data := wire.PongFrameData{
		PingFrameData: wire.PingFrameData{
			SrcUUID32:  c.local.UUID32,
			DstUUID32:  peer.UUID32,
			SrcTSUsec:  nowUsec,
			Attachment: wire.MarshalEmptyAttachment(),
		},
		DstTSUsec: echoTSUsec,
	}
	if subType == wire.SubTypePong2 {
		data.DstTSUsec = nowUsec
	}
	if subType == wire.SubTypePong {
		attachment, err := wire.MarshalTunSockAddressAttachment(wire.TunSockAddress{
			TunSinPort4: c.local.TunPort,
		})
		if err != nil {
			c.log.Error("building pong attachment failed", "peer", peer.UUID32, "error", err)
		} else {
			data.Attachment = attachment
		}
	}

	frame := wire.PongFrame{Data: data}
	if !c.liteMode {
		frame = c.signer.SignPong(frame)
	}

	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: subType, Data: frame.Marshal()}
	if err := c.sender.SendToNode(ctx, peer, env.Marshal(), family); err != nil {
		c.log.Debug("sending pong failed", "peer", peer.UUID32, "family", familyLabel(family), "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.PongsSent.Inc()
	}
}

// sendPing builds, signs, and sends a PING control frame. Called by the
// sync scheduler.
func (c *Core) sendPing(ctx context.Context, peer *table.PeerRecord, nowSec, nowUsec int64) {
	if peer.UDPAddr4 == nil && peer.UDPAddr6 == nil {
		return
	}

	data := wire.PingFrameData{
		SrcUUID32: c.local.UUID32,
		DstUUID32: peer.UUID32,
		SrcTSUsec: nowUsec,
	}
	tag := fmt.Sprintf("%d --PING-> %d", c.local.UUID32, peer.UUID32)
	copy(data.Text[:], tag)

	frame := wire.PingFrame{Data: data}
	if !c.liteMode {
		frame = c.signer.SignPing(frame)
	}
	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: frame.Marshal()}
	payload := env.Marshal()

	var families table.Family
	if peer.UDPAddr4 != nil {
		families |= table.FamilyIPv4
	}
	if peer.UDPAddr6 != nil {
		families |= table.FamilyIPv6
	}
	if err := c.sender.SendToNode(ctx, peer, payload, families); err != nil {
		c.log.Debug("sending ping failed", "peer", peer.UUID32, "error", err)
	} else if c.metrics != nil {
		c.metrics.PingsSent.Inc()
	}

	peer.PingTSSec = nowSec
	peer.PingTSUsec = nowUsec
}

// updateAddress applies the PING address-learning rule.
func (c *Core) updateAddress(peer *table.PeerRecord, env ring.Envelope, family table.Family, nowSec int64) {
	c.updateAddressStatus(peer, env, family, nowSec, family.PingStatusBit())
}

// updateAddressPong applies the same rule from PONG/PONG2 handling, which
// sets the PONG status bit instead of the PING bit.
func (c *Core) updateAddressPong(peer *table.PeerRecord, env ring.Envelope, family table.Family, nowSec int64) {
	c.updateAddressStatus(peer, env, family, nowSec, family.PongStatusBit())
}

func (c *Core) updateAddressStatus(peer *table.PeerRecord, env ring.Envelope, family table.Family, nowSec int64, bit table.AddrStatus) {
	observed := observedAddr(env)

	if family == table.FamilyIPv6 {
		if !sameUDPAddr(peer.UDPAddr6, observed) || peer.Socket6Idx != env.SocketIdx {
			peer.UDPAddr6 = observed
			peer.Socket6Idx = env.SocketIdx
			if c.metrics != nil {
				c.metrics.AddrUpdates.WithLabelValues("ipv6").Inc()
			}
		}
		peer.Addr6UpdateTS = nowSec
	} else {
		if !sameUDPAddr(peer.UDPAddr4, observed) || peer.Socket4Idx != env.SocketIdx {
			peer.UDPAddr4 = observed
			peer.Socket4Idx = env.SocketIdx
			if c.metrics != nil {
				c.metrics.AddrUpdates.WithLabelValues("ipv4").Inc()
			}
		}
		peer.Addr4UpdateTS = nowSec
	}
	peer.UDPAddrStatus |= bit
}

func familyOf(env ring.Envelope) table.Family {
	if env.IsIPv6 {
		return table.FamilyIPv6
	}
	return table.FamilyIPv4
}

func familyLabel(f table.Family) string {
	if f == table.FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

func observedAddr(env ring.Envelope) *net.UDPAddr {
	if env.IsIPv6 {
		return &net.UDPAddr{IP: append(net.IP(nil), env.FromAddr6[:]...), Port: int(env.FromPort)}
	}
	return &net.UDPAddr{IP: net.IPv4(env.FromAddr4[0], env.FromAddr4[1], env.FromAddr4[2], env.FromAddr4[3]), Port: int(env.FromPort)}
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
