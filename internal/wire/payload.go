// Package wire implements the bit-exact frame layouts carried by the node
// worker's control channel. Frames are encoded explicitly over byte slices
// in network byte order; nothing here relies on Go struct layout or
// padding, because the signed region is defined by byte range, not by
// language struct boundaries.
package wire

import (
	"encoding/binary"
	"fmt"
)

// PayloadTypeNode is the only payload16 outer type this core dispatches on;
// any other value is dropped.
const PayloadTypeNode uint8 = 0x01

// Control-frame sub-types.
const (
	SubTypePing  uint8 = 0x01
	SubTypePong  uint8 = 0x02
	SubTypePong2 uint8 = 0x03
)

// Attachment types carried inside a PONG/PONG2's nested payload16.
const (
	AttachmentTypeTunEmpty       uint8 = 0x00
	AttachmentTypeTunSockAddress uint8 = 0x01
)

const payload16HeaderSize = 4 // type(1) + sub_type(1) + data_len(2)

// Envelope is the outer payload16 wrapper: {type, sub_type, data_len, data[]}.
type Envelope struct {
	Type    uint8
	SubType uint8
	Data    []byte
}

// Marshal serializes e into a new buffer.
func (e Envelope) Marshal() []byte {
	buf := make([]byte, payload16HeaderSize+len(e.Data))
	buf[0] = e.Type
	buf[1] = e.SubType
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(e.Data)))
	copy(buf[4:], e.Data)
	return buf
}

// UnmarshalEnvelope parses a payload16 envelope from buf. The returned
// Envelope's Data aliases buf; callers that retain it across reuse of buf
// must copy.
func UnmarshalEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < payload16HeaderSize {
		return Envelope{}, fmt.Errorf("wire: envelope too short: %d bytes", len(buf))
	}
	dataLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if payload16HeaderSize+dataLen > len(buf) {
		return Envelope{}, fmt.Errorf("wire: envelope data_len %d exceeds buffer of %d bytes", dataLen, len(buf))
	}
	return Envelope{
		Type:    buf[0],
		SubType: buf[1],
		Data:    buf[payload16HeaderSize : payload16HeaderSize+dataLen],
	}, nil
}

// marshalAttachment packs e into a fixed-size AttachmentSize array, as it
// appears inline inside a ping_frame/pong_frame's data sub-struct.
func marshalAttachment(e Envelope) ([AttachmentSize]byte, error) {
	var out [AttachmentSize]byte
	if payload16HeaderSize+len(e.Data) > AttachmentSize {
		return out, fmt.Errorf("wire: attachment data of %d bytes exceeds capacity %d", len(e.Data), AttachmentSize-payload16HeaderSize)
	}
	out[0] = e.Type
	out[1] = e.SubType
	binary.BigEndian.PutUint16(out[2:4], uint16(len(e.Data)))
	copy(out[4:], e.Data)
	return out, nil
}

// parseAttachment is the inverse of marshalAttachment.
func parseAttachment(buf []byte) (Envelope, error) {
	if len(buf) < payload16HeaderSize {
		return Envelope{}, fmt.Errorf("wire: attachment too short: %d bytes", len(buf))
	}
	dataLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if payload16HeaderSize+dataLen > len(buf) {
		return Envelope{}, fmt.Errorf("wire: attachment data_len %d exceeds capacity", dataLen)
	}
	data := make([]byte, dataLen)
	copy(data, buf[payload16HeaderSize:payload16HeaderSize+dataLen])
	return Envelope{Type: buf[0], SubType: buf[1], Data: data}, nil
}
