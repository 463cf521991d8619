package core

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/nullmesh/peercore/internal/table"
)

// UDPSender is the production Sender: one bound *net.UDPConn per address
// family, indexed the same way peer records track socketN_idx. Writes are
// best-effort — a failure on one family never blocks or fails the other.
type UDPSender struct {
	log   *slog.Logger
	conn4 *net.UDPConn
	conn6 *net.UDPConn
}

func NewUDPSender(log *slog.Logger, conn4, conn6 *net.UDPConn) *UDPSender {
	return &UDPSender{log: log, conn4: conn4, conn6: conn6}
}

// SendToNode writes payload to peer on every family set in families for
// which both a local socket and a known peer address exist.
func (s *UDPSender) SendToNode(ctx context.Context, peer *table.PeerRecord, payload []byte, families table.Family) error {
	var errs []error

	if families&table.FamilyIPv4 != 0 && peer.UDPAddr4 != nil {
		if err := s.writeTo(s.conn4, peer.UDPAddr4, payload); err != nil {
			errs = append(errs, fmt.Errorf("ipv4: %w", err))
		}
	}
	if families&table.FamilyIPv6 != 0 && peer.UDPAddr6 != nil {
		if err := s.writeTo(s.conn6, peer.UDPAddr6, payload); err != nil {
			errs = append(errs, fmt.Errorf("ipv6: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("peer %d: %v", peer.UUID32, errs)
}

func (s *UDPSender) writeTo(conn *net.UDPConn, addr *net.UDPAddr, payload []byte) error {
	if conn == nil {
		return fmt.Errorf("socket for this family is not bound")
	}
	_, err := conn.WriteToUDP(payload, addr)
	return err
}
