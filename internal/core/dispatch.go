package core

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nullmesh/peercore/internal/ring"
	"github.com/nullmesh/peercore/internal/wire"
)

// dispatch inspects the envelope's outer payload type and routes control
// frames to the handshake engine. Anything else is dropped.
func (c *Core) dispatch(ctx context.Context, env ring.Envelope, nowSec, nowUsec int64) {
	outer, err := wire.UnmarshalEnvelope(env.Data)
	if err != nil {
		c.dropFrame("malformed_envelope", err)
		return
	}
	if outer.Type != wire.PayloadTypeNode {
		c.dropFrame("not_node_payload", nil)
		return
	}

	switch outer.SubType {
	case wire.SubTypePing:
		c.handlePing(ctx, outer.Data, env, nowSec, nowUsec)
	case wire.SubTypePong, wire.SubTypePong2:
		c.handlePong(ctx, outer.SubType, outer.Data, env, nowSec, nowUsec)
	default:
		c.dropFrame("unknown_sub_type", nil)
	}
}

func (c *Core) dropFrame(reason string, err error) {
	if c.metrics != nil {
		c.metrics.FramesDropped.WithLabelValues(reason).Inc()
	}
	level := slog.LevelDebug
	if strings.HasSuffix(reason, "_bad_signature") {
		level = slog.LevelWarn
	}
	if err != nil {
		c.log.Log(context.Background(), level, "dropping ingress frame", "reason", reason, "error", err)
	} else {
		c.log.Log(context.Background(), level, "dropping ingress frame", "reason", reason)
	}
}
