package rcon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet types used by the Source RCON protocol. TypeAuthResponse shares its
// numeric value with TypeExecCommand; servers rely on the direction of travel
// to tell them apart.
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuthResponse  int32 = 2
	TypeAuth          int32 = 3
)

const (
	// MaxPayloadSize is the largest payload accepted for an outgoing request.
	MaxPayloadSize = 4096

	// headerSize covers request id and type; trailerSize the two NUL terminators.
	headerSize  = 8
	trailerSize = 2

	// MinPacketLength and MaxPacketLength bound the length field of a packet.
	MinPacketLength = headerSize + trailerSize
	MaxPacketLength = 4110
)

// authFailedID is the request id a server answers with when the password is wrong.
const authFailedID int32 = -1

// ErrPayloadTooLarge is returned when a request payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum rcon packet size")

// Packet is a single RCON frame.
type Packet struct {
	ID      int32
	Type    int32
	Payload []byte
}

// Length returns the value of the length field for the packet, which excludes
// the length field itself.
func (p Packet) Length() int32 {
	return int32(headerSize + len(p.Payload) + trailerSize)
}

// Encode serializes the packet into its wire representation.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+int(p.Length())))
	_ = binary.Write(buf, binary.LittleEndian, p.Length())
	_ = binary.Write(buf, binary.LittleEndian, p.ID)
	_ = binary.Write(buf, binary.LittleEndian, p.Type)
	buf.Write(p.Payload)
	buf.Write([]byte{0x00, 0x00})

	return buf.Bytes(), nil
}

// WriteTo writes the encoded packet to w.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	data, err := p.Encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadPacket reads exactly one packet from r. A packet is either returned whole
// or not at all: a declared length that the stream cannot satisfy, a length out
// of bounds, or missing terminators are reported as protocol errors.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, newError(KindProtocol, "read", fmt.Errorf("truncated length field: %w", err))
		}
		return Packet{}, newError(KindConnection, "read", err)
	}

	length := int32(binary.LittleEndian.Uint32(header[:]))
	if length < MinPacketLength || length > MaxPacketLength {
		return Packet{}, newError(KindProtocol, "read", fmt.Errorf("packet length %d outside [%d, %d]", length, MinPacketLength, MaxPacketLength))
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, newError(KindProtocol, "read", fmt.Errorf("declared length %d does not match received data: %w", length, io.ErrUnexpectedEOF))
		}
		return Packet{}, newError(KindConnection, "read", err)
	}

	if body[length-2] != 0x00 || body[length-1] != 0x00 {
		return Packet{}, newError(KindProtocol, "read", errors.New("packet is missing null terminators"))
	}

	payload := make([]byte, length-headerSize-trailerSize)
	copy(payload, body[headerSize:length-trailerSize])

	return Packet{
		ID:      int32(binary.LittleEndian.Uint32(body[0:4])),
		Type:    int32(binary.LittleEndian.Uint32(body[4:8])),
		Payload: payload,
	}, nil
}
