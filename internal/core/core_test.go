package core_test

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/nullmesh/peercore/internal/core"
	"github.com/nullmesh/peercore/internal/keys"
	"github.com/nullmesh/peercore/internal/ring"
	"github.com/nullmesh/peercore/internal/table"
	"github.com/nullmesh/peercore/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type sentFrame struct {
	peerUUID uint32
	families table.Family
	env      wire.Envelope
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentFrame
}

func (f *fakeSender) SendToNode(ctx context.Context, peer *table.PeerRecord, payload []byte, families table.Family) error {
	env, err := wire.UnmarshalEnvelope(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{peerUUID: peer.UUID32, families: families, env: env})
	return nil
}

func (f *fakeSender) last() (sentFrame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentFrame{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) all() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentFrame, len(f.sent))
	copy(out, f.sent)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testCore bundles a Core with the clock and collaborators the scenarios
// below need to inspect or advance directly.
type testCore struct {
	core   *core.Core
	local  *table.LocalNode
	table  *table.Table
	sender *fakeSender
	sec    int64
	usec   int64
}

func (tc *testCore) clock() (int64, int64) { return tc.sec, tc.usec }

func (tc *testCore) push(t *testing.T, payload []byte, addr4 [4]byte, port uint16) {
	t.Helper()
	require.True(t, tc.core.Ring().Push(ring.Envelope{Data: payload, FromAddr4: addr4, FromPort: port}))
}

func newTestCore(t *testing.T, uuid uint32, liteMode bool) *testCore {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	local := &table.LocalNode{
		PeerRecord: table.PeerRecord{UUID32: uuid, PublicKey: pub},
		PrivateKey: priv,
	}
	tbl := table.New(uuid)
	sender := &fakeSender{}

	var km *keys.KeyManager
	if !liteMode {
		km, err = keys.NewKeyManager(0)
		require.NoError(t, err)
	}

	r, err := ring.New(64)
	require.NoError(t, err)

	tc := &testCore{local: local, table: tbl, sender: sender}
	c, err := core.New(testLogger(), tc.clock, local, tbl, r, sender, km, liteMode, core.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	tc.core = c
	return tc
}

// Scenario 1: Cold discover.
func TestCore_ColdDiscover(t *testing.T) {
	tc := newTestCore(t, 1, true)

	require.NoError(t, tc.table.Put(&table.PeerRecord{UUID32: 7}))
	require.NoError(t, tc.table.Put(&table.PeerRecord{
		UUID32: 9, TypeFlags: table.TypeIDX,
		UDPAddr4: &net.UDPAddr{IP: net.IPv4(1, 1, 1, 1), Port: 1},
	}))

	tc.sec = 100
	tc.core.TestSync(context.Background())

	p := tc.table.Get(7)
	require.Equal(t, table.StatusUnreachable, p.UDPAddrStatus&table.StatusUnreachable)
	require.Equal(t, int64(100), p.PingTSSec)

	for _, f := range tc.sender.all() {
		require.NotEqual(t, uint32(7), f.peerUUID)
	}
}

// Scenario 2: three-way handshake, from B's perspective receiving A's PING
// and A's perspective receiving B's PONG.
func TestCore_ThreeWayHandshake(t *testing.T) {
	b := newTestCore(t, 2, true)
	require.NoError(t, b.table.Put(&table.PeerRecord{UUID32: 1}))

	b.sec, b.usec = 1, 1_050_000
	pingFrame := wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: 1, DstUUID32: 2, SrcTSUsec: 1_000_000}}
	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: pingFrame.Marshal()}
	b.push(t, env.Marshal(), [4]byte{198, 51, 100, 9}, 41000)
	b.core.TestTick(context.Background())

	aPeerAsSeenByB := b.table.Get(1)
	require.Equal(t, table.StatusIPv4Ping, aPeerAsSeenByB.UDPAddrStatus&table.StatusIPv4Ping)
	require.Equal(t, "198.51.100.9", aPeerAsSeenByB.UDPAddr4.IP.String())
	require.Equal(t, 41000, aPeerAsSeenByB.UDPAddr4.Port)

	sent, ok := b.sender.last()
	require.True(t, ok)
	require.Equal(t, wire.SubTypePong, sent.env.SubType)

	pong, err := wire.UnmarshalPongFrame(sent.env.Data)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), pong.Data.DstTSUsec)

	a := newTestCore(t, 1, true)
	require.NoError(t, a.table.Put(&table.PeerRecord{UUID32: 2, PingTSUsec: 1_000_000}))

	a.sec, a.usec = 1, 1_050_000
	pongEnv := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePong, Data: pong.Marshal()}
	a.push(t, pongEnv.Marshal(), [4]byte{203, 0, 113, 5}, 41001)
	a.core.TestTick(context.Background())

	bPeerAsSeenByA := a.table.Get(2)
	require.Equal(t, int64(50_001), bPeerAsSeenByA.Addr4PingLatencyUsec)
	require.Equal(t, uint16(0), bPeerAsSeenByA.TunSinPort4)

	sentA, ok := a.sender.last()
	require.True(t, ok)
	require.Equal(t, wire.SubTypePong2, sentA.env.SubType)

	// B receives the PONG2 and does not reply again.
	pong2Frame, err := wire.UnmarshalPongFrame(sentA.env.Data)
	require.NoError(t, err)
	pong2Env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePong2, Data: pong2Frame.Marshal()}
	before := b.sender.count()
	b.push(t, pong2Env.Marshal(), [4]byte{203, 0, 113, 5}, 41001)
	b.core.TestTick(context.Background())
	require.Equal(t, before, b.sender.count())
}

// Scenario 3: address decay.
func TestCore_AddressDecay(t *testing.T) {
	tc := newTestCore(t, 1, true)

	q := &table.PeerRecord{
		UUID32:        3,
		UDPAddr4:      &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 9000},
		UDPAddrStatus: table.StatusIPv4Ping | table.StatusIPv4Pong,
		Addr4UpdateTS: 0,
		PingTSSec:     -1000,
	}
	require.NoError(t, tc.table.Put(q))

	tc.sec = 60
	tc.core.TestSync(context.Background())

	got := tc.table.Get(3)
	require.Zero(t, got.UDPAddrStatus&(table.StatusIPv4Ping|table.StatusIPv4Pong))
	require.NotNil(t, got.UDPAddr4)
	require.Equal(t, "10.0.0.5", got.UDPAddr4.IP.String())
}

// Scenario 4: bad signature, production mode drops; lite mode accepts.
func TestCore_BadSignature_ProductionModeDrops(t *testing.T) {
	tc := newTestCore(t, 1, false)
	tc.sec, tc.usec = 1, 1

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, tc.table.Put(&table.PeerRecord{UUID32: 4, PublicKey: pub}))

	signer := keys.NewSigner(priv)
	frame := signer.SignPing(wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: 4, DstUUID32: 1}})
	frame.Signature[len(frame.Signature)-1] ^= 0xFF

	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: frame.Marshal()}
	tc.push(t, env.Marshal(), [4]byte{1, 2, 3, 4}, 1)
	tc.core.TestTick(context.Background())

	got := tc.table.Get(4)
	require.Zero(t, got.UDPAddrStatus)
	require.Zero(t, got.Addr4UpdateTS)
	require.Equal(t, 0, tc.sender.count())
}

func TestCore_BadSignature_LiteModeAccepts(t *testing.T) {
	tc := newTestCore(t, 1, true)
	tc.sec, tc.usec = 1, 1

	require.NoError(t, tc.table.Put(&table.PeerRecord{UUID32: 4}))

	frame := wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: 4, DstUUID32: 1}}
	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: frame.Marshal()}
	tc.push(t, env.Marshal(), [4]byte{1, 2, 3, 4}, 1)
	tc.core.TestTick(context.Background())

	got := tc.table.Get(4)
	require.NotZero(t, got.UDPAddrStatus)
	require.Equal(t, 1, tc.sender.count())
}

// Scenario 5: SILENCE filter.
func TestCore_SilenceFilter(t *testing.T) {
	tc := newTestCore(t, 1, true)
	tc.local.TypeFlags |= table.TypeSILENCE

	require.NoError(t, tc.table.Put(&table.PeerRecord{UUID32: 5}))
	require.NoError(t, tc.table.Put(&table.PeerRecord{
		UUID32: 6, TypeFlags: table.TypeFWD,
		UDPAddr4: &net.UDPAddr{IP: net.IPv4(1, 1, 1, 2), Port: 2},
	}))

	tc.sec = 100
	tc.core.TestSync(context.Background())

	for _, f := range tc.sender.all() {
		require.NotEqual(t, uint32(5), f.peerUUID)
	}
	found6 := false
	for _, f := range tc.sender.all() {
		if f.peerUUID == 6 {
			found6 = true
		}
	}
	require.True(t, found6)

	pingFromM := wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: 5, DstUUID32: 1}}
	envM := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: pingFromM.Marshal()}
	tc.push(t, envM.Marshal(), [4]byte{1, 1, 1, 1}, 1)
	before := tc.sender.count()
	tc.core.TestTick(context.Background())
	require.Equal(t, before, tc.sender.count())

	pingFromN := wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: 6, DstUUID32: 1}}
	envN := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: pingFromN.Marshal()}
	tc.push(t, envN.Marshal(), [4]byte{1, 1, 1, 2}, 2)
	before = tc.sender.count()
	tc.core.TestTick(context.Background())
	require.Greater(t, tc.sender.count(), before)
}

// Scenario 6: loop via own NAT.
func TestCore_LoopViaOwnNAT(t *testing.T) {
	tc := newTestCore(t, 1, true)

	ping := wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: tc.local.UUID32, DstUUID32: 1}}
	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: ping.Marshal()}
	tc.push(t, env.Marshal(), [4]byte{9, 9, 9, 9}, 1)
	tc.core.TestTick(context.Background())

	require.Equal(t, 0, tc.table.Len())
	require.Equal(t, 0, tc.sender.count())
}
