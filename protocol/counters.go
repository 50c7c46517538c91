package protocol

import "time"

const (
	// NetAckInvalid is the ack id that is never sent and marks "no ack".
	NetAckInvalid uint16 = 0xFFFF

	// NetAckBitfieldSize is the number of acks preceding the most recent ack
	// that are reported in every packet header.
	NetAckBitfieldSize = 16

	// NetAckBundleCapacity is the number of outbound packets whose reliable
	// payload is remembered. Older acks cannot be resolved anymore.
	NetAckBundleCapacity = 128

	// NetReliableWindow is the maximum number of reliable ids in flight.
	// It is also the size of the inbound duplicate suppression window.
	NetReliableWindow = 1 << 10
)

const (
	// NetResendThreshold is the age after which an unconfirmed reliable
	// message is offered again.
	NetResendThreshold = 150 * time.Millisecond

	// NetTickRate is the number of packets per second sent to each peer.
	NetTickRate = 120
	// NetSendInterval is the duration between two send ticks.
	NetSendInterval = time.Second / NetTickRate

	// NetHostTimeout is the time a joining session waits for an answer.
	NetHostTimeout = 15 * time.Second
	// NetConnTimeout is the silence after which a confirmed peer is dropped.
	NetConnTimeout = 15 * time.Second
	// NetHeartbeatInterval is the interval between two pings to a peer.
	NetHeartbeatInterval = time.Second
)
