package wire

import (
	"encoding/binary"
	"fmt"
)

// Fixed-size field widths inside a ping_frame/pong_frame's data sub-struct.
const (
	TextSize       = 32
	CryptoSeedSize = 64
	AttachmentSize = 192
	SignatureSize  = 64

	pingDataSize  = 328 // sum of ping_frame.data's explicit fields
	pongDataSize  = 336 // pingDataSize + dst_ts_usec (8)
	PingFrameSize = pingDataSize + SignatureSize
	PongFrameSize = pongDataSize + SignatureSize

	tunSockAddressSize = 28
)

// PingFrameData is the signed body of a PING. Offsets below are the wire
// layout, not Go struct layout.
type PingFrameData struct {
	SrcUUID32    uint32
	DstUUID32    uint32
	SrcTSUsec    int64
	DstAddr4     [4]byte
	DstPort4     uint16
	DstAddr6     [16]byte
	DstPort6     uint16
	CryptoSeed   [CryptoSeedSize]byte
	Attachment   [AttachmentSize]byte
	Text         [TextSize]byte
}

// Marshal serializes d into a pingDataSize-byte buffer.
func (d PingFrameData) Marshal() []byte {
	buf := make([]byte, pingDataSize)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], d.SrcUUID32)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], d.DstUUID32)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(d.SrcTSUsec))
	off += 8
	copy(buf[off:], d.DstAddr4[:])
	off += 4
	binary.BigEndian.PutUint16(buf[off:], d.DstPort4)
	off += 2
	copy(buf[off:], d.DstAddr6[:])
	off += 16
	binary.BigEndian.PutUint16(buf[off:], d.DstPort6)
	off += 2
	copy(buf[off:], d.CryptoSeed[:])
	off += CryptoSeedSize
	copy(buf[off:], d.Attachment[:])
	off += AttachmentSize
	copy(buf[off:], d.Text[:])
	off += TextSize
	if off != pingDataSize {
		panic(fmt.Sprintf("wire: ping data marshal wrote %d bytes, want %d", off, pingDataSize))
	}
	return buf
}

func unmarshalPingFrameData(buf []byte) (PingFrameData, error) {
	if len(buf) != pingDataSize {
		return PingFrameData{}, fmt.Errorf("wire: ping data is %d bytes, want %d", len(buf), pingDataSize)
	}
	var d PingFrameData
	off := 0
	d.SrcUUID32 = binary.BigEndian.Uint32(buf[off:])
	off += 4
	d.DstUUID32 = binary.BigEndian.Uint32(buf[off:])
	off += 4
	d.SrcTSUsec = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	copy(d.DstAddr4[:], buf[off:])
	off += 4
	d.DstPort4 = binary.BigEndian.Uint16(buf[off:])
	off += 2
	copy(d.DstAddr6[:], buf[off:])
	off += 16
	d.DstPort6 = binary.BigEndian.Uint16(buf[off:])
	off += 2
	copy(d.CryptoSeed[:], buf[off:])
	off += CryptoSeedSize
	copy(d.Attachment[:], buf[off:])
	off += AttachmentSize
	copy(d.Text[:], buf[off:])
	off += TextSize
	return d, nil
}

// PongFrameData is the signed body of a PONG/PONG2. It is PingFrameData
// plus the echoed dst_ts_usec the originator needs to compute round-trip
// latency.
type PongFrameData struct {
	PingFrameData
	DstTSUsec int64
}

func (d PongFrameData) Marshal() []byte {
	buf := make([]byte, pongDataSize)
	copy(buf, d.PingFrameData.Marshal())
	binary.BigEndian.PutUint64(buf[pingDataSize:], uint64(d.DstTSUsec))
	return buf
}

func unmarshalPongFrameData(buf []byte) (PongFrameData, error) {
	if len(buf) != pongDataSize {
		return PongFrameData{}, fmt.Errorf("wire: pong data is %d bytes, want %d", len(buf), pongDataSize)
	}
	ping, err := unmarshalPingFrameData(buf[:pingDataSize])
	if err != nil {
		return PongFrameData{}, err
	}
	return PongFrameData{
		PingFrameData: ping,
		DstTSUsec:     int64(binary.BigEndian.Uint64(buf[pingDataSize:])),
	}, nil
}

// PingFrame is a complete PING: signed data plus an Ed25519 signature over
// that data.
type PingFrame struct {
	Data      PingFrameData
	Signature [SignatureSize]byte
}

// SignedRegion returns the exact byte range a signer/verifier must operate
// over. It is recomputed from Data rather than cached, so there is never a
// question of signing stale bytes.
func (f PingFrame) SignedRegion() []byte {
	return f.Data.Marshal()
}

func (f PingFrame) Marshal() []byte {
	buf := make([]byte, PingFrameSize)
	copy(buf, f.Data.Marshal())
	copy(buf[pingDataSize:], f.Signature[:])
	return buf
}

func UnmarshalPingFrame(buf []byte) (PingFrame, error) {
	if len(buf) != PingFrameSize {
		return PingFrame{}, fmt.Errorf("wire: ping frame is %d bytes, want %d", len(buf), PingFrameSize)
	}
	data, err := unmarshalPingFrameData(buf[:pingDataSize])
	if err != nil {
		return PingFrame{}, err
	}
	var f PingFrame
	f.Data = data
	copy(f.Signature[:], buf[pingDataSize:])
	return f, nil
}

// PongFrame is a complete PONG or PONG2: signed data plus signature. The
// two sub-types share this wire shape; only the envelope's SubType field
// distinguishes them.
type PongFrame struct {
	Data      PongFrameData
	Signature [SignatureSize]byte
}

func (f PongFrame) SignedRegion() []byte {
	return f.Data.Marshal()
}

func (f PongFrame) Marshal() []byte {
	buf := make([]byte, PongFrameSize)
	copy(buf, f.Data.Marshal())
	copy(buf[pongDataSize:], f.Signature[:])
	return buf
}

func UnmarshalPongFrame(buf []byte) (PongFrame, error) {
	if len(buf) != PongFrameSize {
		return PongFrame{}, fmt.Errorf("wire: pong frame is %d bytes, want %d", len(buf), PongFrameSize)
	}
	data, err := unmarshalPongFrameData(buf[:pongDataSize])
	if err != nil {
		return PongFrame{}, err
	}
	var f PongFrame
	f.Data = data
	copy(f.Signature[:], buf[pongDataSize:])
	return f, nil
}

// TunSockAddress carries the tunnel-side addressing a peer wants its
// counterpart to learn, attached to a PONG/PONG2 as a nested payload16.
type TunSockAddress struct {
	TunAddr4    [4]byte
	TunSinPort4 uint16
	TunIPv6Addr [16]byte
	TunSinPort6 uint16
	EsSinPort4  uint16
	EsSinPort6  uint16
}

func (a TunSockAddress) Marshal() []byte {
	buf := make([]byte, tunSockAddressSize)
	off := 0
	copy(buf[off:], a.TunAddr4[:])
	off += 4
	binary.BigEndian.PutUint16(buf[off:], a.TunSinPort4)
	off += 2
	copy(buf[off:], a.TunIPv6Addr[:])
	off += 16
	binary.BigEndian.PutUint16(buf[off:], a.TunSinPort6)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], a.EsSinPort4)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], a.EsSinPort6)
	off += 2
	return buf
}

func UnmarshalTunSockAddress(buf []byte) (TunSockAddress, error) {
	if len(buf) != tunSockAddressSize {
		return TunSockAddress{}, fmt.Errorf("wire: tun sockaddress is %d bytes, want %d", len(buf), tunSockAddressSize)
	}
	var a TunSockAddress
	off := 0
	copy(a.TunAddr4[:], buf[off:])
	off += 4
	a.TunSinPort4 = binary.BigEndian.Uint16(buf[off:])
	off += 2
	copy(a.TunIPv6Addr[:], buf[off:])
	off += 16
	a.TunSinPort6 = binary.BigEndian.Uint16(buf[off:])
	off += 2
	a.EsSinPort4 = binary.BigEndian.Uint16(buf[off:])
	off += 2
	a.EsSinPort6 = binary.BigEndian.Uint16(buf[off:])
	off += 2
	return a, nil
}

// MarshalTunSockAddressAttachment packs addr as a payload16 envelope of
// AttachmentTypeTunSockAddress, suitable for PingFrameData.Attachment /
// PongFrameData.Attachment.
func MarshalTunSockAddressAttachment(addr TunSockAddress) ([AttachmentSize]byte, error) {
	return marshalAttachment(Envelope{
		Type:    AttachmentTypeTunSockAddress,
		SubType: 0,
		Data:    addr.Marshal(),
	})
}

// MarshalEmptyAttachment packs an AttachmentTypeTunEmpty envelope, used when
// a peer has no tunnel address to advertise yet.
func MarshalEmptyAttachment() [AttachmentSize]byte {
	out, _ := marshalAttachment(Envelope{Type: AttachmentTypeTunEmpty, SubType: 0})
	return out
}

// ParseAttachment inspects an attachment array and, if it carries a
// TunSockAddress, returns it with ok=true. A TunEmpty (or any other)
// attachment type returns ok=false.
func ParseAttachment(raw [AttachmentSize]byte) (addr TunSockAddress, ok bool, err error) {
	env, err := parseAttachment(raw[:])
	if err != nil {
		return TunSockAddress{}, false, err
	}
	if env.Type != AttachmentTypeTunSockAddress {
		return TunSockAddress{}, false, nil
	}
	addr, err = UnmarshalTunSockAddress(env.Data)
	if err != nil {
		return TunSockAddress{}, false, err
	}
	return addr, true, nil
}
