package protocol

const (
	// NetMaxPacketSize is the path MTU all packets must fit into.
	NetMaxPacketSize = 1232

	// u8 sender index, u16 ack id, u16 most recent ack, u16 ack bitfield
	NetPacketHeaderSize = 7

	// u16 total size, u8 message type
	NetMessageHeaderSize = 3
	// reliable messages append a u16 reliable id
	NetReliableHeaderSize = NetMessageHeaderSize + 2
	// sequenced messages additionally append a u16 sequence id
	NetSequencedHeaderSize = NetReliableHeaderSize + 2

	NetMaxMessageHeaderSize = NetSequencedHeaderSize

	// NetMaxPayload is the biggest payload a single message may carry
	// regardless of its flags.
	NetMaxPayload = NetMaxPacketSize - NetPacketHeaderSize - NetMaxMessageHeaderSize
)

const (
	// NetConnIndexNone marks a connection that has not been assigned an index yet.
	NetConnIndexNone ConnIndex = 255
	// NetConnIndexHost is the index reserved for the hosting peer.
	NetConnIndexHost ConnIndex = 0

	// NetMaxConnections is the default session capacity including the host.
	NetMaxConnections = 8

	// NetMaxPeerIDSize is the maximum length of a peer id in bytes.
	NetMaxPeerIDSize = 32
)

// ConnIndex identifies a connection within a session.
type ConnIndex uint8

func (i ConnIndex) IsValid() bool {
	return i != NetConnIndexNone
}
