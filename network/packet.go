package network

import (
	"encoding/binary"
	"fmt"

	"github.com/jxsl13/netsession/protocol"
)

// PacketHeader precedes the messages of every packet.
type PacketHeader struct {
	Sender protocol.ConnIndex
	// AckID identifies this packet.
	AckID uint16
	// MostRecentAck is the highest ack id the sender received from the recipient.
	MostRecentAck uint16
	// AckBitfield bit i is set if MostRecentAck-(i+1) was received as well.
	AckBitfield uint16
}

// Append encodes the header and appends it to dst.
func (h PacketHeader) Append(dst []byte) []byte {
	dst = append(dst, byte(h.Sender))
	dst = binary.BigEndian.AppendUint16(dst, h.AckID)
	dst = binary.BigEndian.AppendUint16(dst, h.MostRecentAck)
	return binary.BigEndian.AppendUint16(dst, h.AckBitfield)
}

// Unpack extracts the packet header from the passed data bytes.
// The returned byte slice points to the not yet consumed bytes.
func (h *PacketHeader) Unpack(data []byte) ([]byte, error) {
	if len(data) < protocol.NetPacketHeaderSize {
		return data, fmt.Errorf("%w: %d", ErrPacketHeaderTooSmall, len(data))
	}

	h.Sender = protocol.ConnIndex(data[0])
	h.AckID = binary.BigEndian.Uint16(data[1:3])
	h.MostRecentAck = binary.BigEndian.Uint16(data[3:5])
	h.AckBitfield = binary.BigEndian.Uint16(data[5:7])
	return data[protocol.NetPacketHeaderSize:], nil
}

// NewPacketWriter starts a packet with the given header in buf.
// buf is reused from its start, passing nil allocates a new one.
func NewPacketWriter(buf []byte, h PacketHeader) *PacketWriter {
	if cap(buf) < protocol.NetMaxPacketSize {
		buf = make([]byte, 0, protocol.NetMaxPacketSize)
	}
	return &PacketWriter{
		buffer: h.Append(buf[:0]),
	}
}

// PacketWriter appends messages to a packet bounded by protocol.NetMaxPacketSize.
type PacketWriter struct {
	buffer      []byte
	numMessages int
}

// Remaining is the number of bytes that can still be written.
func (p *PacketWriter) Remaining() int {
	return protocol.NetMaxPacketSize - len(p.buffer)
}

// CanWriteMessage must be checked before calling WriteMessage.
func (p *PacketWriter) CanWriteMessage(m Message) bool {
	return p.Remaining() >= m.TotalSize()
}

func (p *PacketWriter) WriteMessage(m Message) error {
	if !p.CanWriteMessage(m) {
		return fmt.Errorf("%w: %d > %d", ErrPacketFull, m.TotalSize(), p.Remaining())
	}
	p.buffer = m.Append(p.buffer)
	p.numMessages++
	return nil
}

func (p *PacketWriter) NumMessages() int {
	return p.numMessages
}

// Bytes returns the encoded packet.
func (p *PacketWriter) Bytes() []byte {
	return p.buffer
}

// UnpackPacket decodes a whole packet. Any framing error invalidates
// the packet, no partially decoded messages are returned.
func UnpackPacket(data []byte, defs DefinitionLookup) (PacketHeader, []Message, error) {
	var h PacketHeader
	if len(data) > protocol.NetMaxPacketSize {
		return h, nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(data))
	}
	data, err := h.Unpack(data)
	if err != nil {
		return h, nil, err
	}

	var (
		msgs []Message
		msg  Message
	)
	for len(data) > 0 {
		msg, data, err = UnpackMessage(data, defs)
		if err != nil {
			return h, nil, fmt.Errorf("failed to unpack message %d: %w", len(msgs), err)
		}
		msgs = append(msgs, msg)
	}
	return h, msgs, nil
}
