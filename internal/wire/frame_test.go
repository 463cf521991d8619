package wire_test

import (
	"testing"

	"github.com/nullmesh/peercore/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	env := wire.Envelope{Type: wire.PayloadTypeNode, SubType: wire.SubTypePing, Data: []byte("hello")}
	got, err := wire.UnmarshalEnvelope(env.Marshal())
	require.NoError(t, err)
	require.Equal(t, env, got)
}

func TestUnmarshalEnvelope_TruncatedRejected(t *testing.T) {
	_, err := wire.UnmarshalEnvelope([]byte{0x01, 0x01, 0x00, 0x05, 'a'})
	require.Error(t, err)
}

func TestPingFrame_RoundTrip(t *testing.T) {
	addr, err := wire.MarshalTunSockAddressAttachment(wire.TunSockAddress{
		TunAddr4:    [4]byte{10, 0, 0, 1},
		TunSinPort4: 51820,
	})
	require.NoError(t, err)

	f := wire.PingFrame{
		Data: wire.PingFrameData{
			SrcUUID32:  1,
			DstUUID32:  2,
			SrcTSUsec:  1234567890,
			DstPort4:   19413,
			Attachment: addr,
		},
	}
	f.Signature = [wire.SignatureSize]byte{0xAA, 0xBB}

	buf := f.Marshal()
	require.Len(t, buf, wire.PingFrameSize)

	got, err := wire.UnmarshalPingFrame(buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestPingFrame_SignedRegionExcludesSignature(t *testing.T) {
	f := wire.PingFrame{Data: wire.PingFrameData{SrcUUID32: 7}}
	f.Signature = [wire.SignatureSize]byte{0xFF}

	region := f.SignedRegion()
	require.Len(t, region, wire.PingFrameSize-wire.SignatureSize)

	f2 := f
	f2.Signature = [wire.SignatureSize]byte{0x00}
	require.Equal(t, region, f2.SignedRegion())
}

func TestPongFrame_RoundTrip(t *testing.T) {
	f := wire.PongFrame{
		Data: wire.PongFrameData{
			PingFrameData: wire.PingFrameData{SrcUUID32: 3, DstUUID32: 4, SrcTSUsec: 111},
			DstTSUsec:     222,
		},
	}
	f.Signature = [wire.SignatureSize]byte{0x01, 0x02, 0x03}

	buf := f.Marshal()
	require.Len(t, buf, wire.PongFrameSize)

	got, err := wire.UnmarshalPongFrame(buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestUnmarshalPingFrame_WrongSizeRejected(t *testing.T) {
	_, err := wire.UnmarshalPingFrame(make([]byte, wire.PingFrameSize-1))
	require.Error(t, err)
}

func TestTunSockAddress_RoundTrip(t *testing.T) {
	addr := wire.TunSockAddress{
		TunAddr4:    [4]byte{192, 168, 1, 1},
		TunSinPort4: 1,
		TunIPv6Addr: [16]byte{0xfe, 0x80},
		TunSinPort6: 2,
		EsSinPort4:  3,
		EsSinPort6:  4,
	}
	got, err := wire.UnmarshalTunSockAddress(addr.Marshal())
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestParseAttachment_EmptyAttachment(t *testing.T) {
	raw := wire.MarshalEmptyAttachment()
	_, ok, err := wire.ParseAttachment(raw)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseAttachment_TunSockAddress(t *testing.T) {
	want := wire.TunSockAddress{TunAddr4: [4]byte{1, 2, 3, 4}, TunSinPort4: 9000}
	raw, err := wire.MarshalTunSockAddressAttachment(want)
	require.NoError(t, err)

	got, ok, err := wire.ParseAttachment(raw)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}
