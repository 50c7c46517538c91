package network

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jxsl13/netsession/protocol"
)

var (
	// ErrFraming is wrapped by every decoding error that invalidates a packet.
	ErrFraming = errors.New("framing error")

	ErrPacketTooLarge        = fmt.Errorf("%w: packet exceeds the maximum packet size", ErrFraming)
	ErrPacketHeaderTooSmall  = fmt.Errorf("%w: packet header data too small", ErrFraming)
	ErrMessageHeaderTooSmall = fmt.Errorf("%w: message header data too small", ErrFraming)
	ErrMessageTooShort       = fmt.Errorf("%w: message size smaller than its header", ErrFraming)
	ErrMessageExceedsPacket  = fmt.Errorf("%w: message size exceeds remaining packet data", ErrFraming)
	ErrUnknownMessageType    = fmt.Errorf("%w: unknown message type", ErrFraming)

	ErrPayloadTooLarge     = errors.New("message payload too large")
	ErrPacketFull          = errors.New("message does not fit into packet")
	ErrSequencedUnreliable = errors.New("sequenced messages must be reliable")
	ErrMessageTypeInUse    = errors.New("message type already registered")
)

// Definition describes how messages of one type travel.
type Definition struct {
	// RequiresConnection messages are only dispatched when the packet
	// was sent by a known connection.
	RequiresConnection bool
	// Reliable messages are retransmitted until confirmed and delivered once.
	Reliable bool
	// Sequenced messages are delivered in send order. Implies Reliable.
	Sequenced bool
}

// Validate returns an error if the flag combination cannot be encoded.
func (d Definition) Validate() error {
	if d.Sequenced && !d.Reliable {
		return ErrSequencedUnreliable
	}
	return nil
}

// HeaderSize is the size of the message header on the wire.
func (d Definition) HeaderSize() int {
	switch {
	case d.Reliable && d.Sequenced:
		return protocol.NetSequencedHeaderSize
	case d.Reliable:
		return protocol.NetReliableHeaderSize
	default:
		return protocol.NetMessageHeaderSize
	}
}

// NewMessage creates a message of the given type. The payload is not copied.
func NewMessage(t protocol.MsgType, def Definition, payload []byte) Message {
	return Message{
		Type:       t,
		Definition: def,
		Payload:    payload,
	}
}

// Message is a typed unit of application data.
// ReliableID and SequenceID are assigned by the sending connection.
type Message struct {
	Type       protocol.MsgType
	Definition Definition
	ReliableID uint16
	SequenceID uint16
	Payload    []byte
}

func (m Message) IsReliable() bool {
	return m.Definition.Reliable
}

func (m Message) IsSequenced() bool {
	return m.Definition.Reliable && m.Definition.Sequenced
}

// TotalSize is the number of bytes the message occupies in a packet.
func (m Message) TotalSize() int {
	return m.Definition.HeaderSize() + len(m.Payload)
}

// Append encodes the message and appends it to dst.
func (m Message) Append(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(m.TotalSize()))
	dst = append(dst, byte(m.Type))
	if m.IsReliable() {
		dst = binary.BigEndian.AppendUint16(dst, m.ReliableID)
		if m.IsSequenced() {
			dst = binary.BigEndian.AppendUint16(dst, m.SequenceID)
		}
	}
	return append(dst, m.Payload...)
}

// DefinitionLookup resolves the definition of a message type.
type DefinitionLookup interface {
	Lookup(t protocol.MsgType) (Definition, bool)
}

// UnpackMessage decodes the message at the start of data.
// The returned byte slice points to the not yet consumed bytes.
// The payload is copied.
func UnpackMessage(data []byte, defs DefinitionLookup) (Message, []byte, error) {
	if len(data) < protocol.NetMessageHeaderSize {
		return Message{}, data, fmt.Errorf("%w: %d", ErrMessageHeaderTooSmall, len(data))
	}

	size := int(binary.BigEndian.Uint16(data[0:2]))
	t := protocol.MsgType(data[2])

	def, ok := defs.Lookup(t)
	if !ok {
		return Message{}, data, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}

	headerSize := def.HeaderSize()
	if size < headerSize {
		return Message{}, data, fmt.Errorf("%w: %d < %d", ErrMessageTooShort, size, headerSize)
	}
	if size > len(data) {
		return Message{}, data, fmt.Errorf("%w: %d > %d", ErrMessageExceedsPacket, size, len(data))
	}

	msg := Message{
		Type:       t,
		Definition: def,
	}
	if msg.IsReliable() {
		msg.ReliableID = binary.BigEndian.Uint16(data[3:5])
		if msg.IsSequenced() {
			msg.SequenceID = binary.BigEndian.Uint16(data[5:7])
		}
	}

	msg.Payload = make([]byte, size-headerSize)
	copy(msg.Payload, data[headerSize:size])
	return msg, data[size:], nil
}
