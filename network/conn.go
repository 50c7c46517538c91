package network

import (
	"bytes"
	"fmt"
	"net/netip"
	"time"

	"github.com/jxsl13/netsession/protocol"
)

type sentMessage struct {
	msg       Message
	firstSent time.Time
	lastSent  time.Time
	inUse     bool
}

// ConnStats are the diagnostic counters of a connection.
type ConnStats struct {
	PacketsSent      uint64
	PacketsReceived  uint64
	MessagesSent     uint64
	MessagesReceived uint64
	Resends          uint64
	Duplicates       uint64

	// Buffered counts sequenced messages that arrived ahead of their predecessors.
	Buffered uint64

	// UnreliableDropped counts unreliable messages that did not fit into their packet.
	UnreliableDropped uint64

	NextAckID              uint16
	HighestAckID           uint16
	AckBitfield            uint16
	NextReliableID         uint16
	OldestUnconfirmedID    uint16
	NextExpectedReliableID uint16
	NextExpectedSequenceID uint16

	UnsentReliable  int
	PendingReliable int
	Unreliable      int
	Reordering      int

	RTT time.Duration
}

// NewConn creates the reliability state for one peer.
func NewConn(index protocol.ConnIndex, peerID string, addr netip.AddrPort) *Conn {
	c := &Conn{
		index:   index,
		peerID:  peerID,
		addr:    addr,
		reorder: make(map[uint16]Message),
		buffer:  make([]byte, 0, protocol.NetMaxPacketSize),
	}
	c.reset()
	return c
}

// Conn is the per peer reliability engine. It is not safe for concurrent use.
type Conn struct {
	index     protocol.ConnIndex
	peerID    string
	addr      netip.AddrPort
	local     bool
	confirmed bool

	// outbound packet acks
	nextAckID uint16
	bundles   ackBundleRing

	// inbound packet acks
	highestAck  uint16
	ackBitfield uint16

	// outbound reliable messages
	nextReliableID      uint16
	oldestUnconfirmedID uint16
	nextSequenceID      uint16
	unsent              []Message
	inflight            [protocol.NetReliableWindow]sentMessage
	numInflight         int
	unreliable          []Message

	// inbound reliable messages
	nextExpectedReliableID uint16
	received               idSet
	nextExpectedSequenceID uint16
	reorder                map[uint16]Message

	lastRecvTime time.Time
	lastSendTime time.Time
	rtt          time.Duration

	stats  ConnStats
	buffer []byte
}

func (c *Conn) reset() {
	c.nextAckID = 0
	c.bundles.reset()
	c.highestAck = protocol.NetAckInvalid
	c.ackBitfield = 0

	c.nextReliableID = 0
	c.oldestUnconfirmedID = 0
	c.nextSequenceID = 0
	c.unsent = c.unsent[:0]
	for i := range c.inflight {
		c.inflight[i] = sentMessage{}
	}
	c.numInflight = 0
	c.unreliable = c.unreliable[:0]

	c.nextExpectedReliableID = 0
	c.received.reset()
	c.nextExpectedSequenceID = 0
	clear(c.reorder)
}

func (c *Conn) Index() protocol.ConnIndex {
	return c.index
}

func (c *Conn) SetIndex(index protocol.ConnIndex) {
	c.index = index
}

func (c *Conn) PeerID() string {
	return c.peerID
}

func (c *Conn) SetPeerID(peerID string) {
	c.peerID = peerID
}

func (c *Conn) Addr() netip.AddrPort {
	return c.addr
}

func (c *Conn) SetAddr(addr netip.AddrPort) {
	c.addr = addr
}

// IsLocal is true for the connection that represents this process.
func (c *Conn) IsLocal() bool {
	return c.local
}

func (c *Conn) SetLocal(local bool) {
	c.local = local
}

// IsConfirmed is true once the peer has proven to be reachable.
func (c *Conn) IsConfirmed() bool {
	return c.confirmed
}

func (c *Conn) SetConfirmed(confirmed bool) {
	c.confirmed = confirmed
}

func (c *Conn) LastRecvTime() time.Time {
	return c.lastRecvTime
}

// Touch marks the connection as alive without a received packet.
func (c *Conn) Touch(now time.Time) {
	c.lastRecvTime = now
}

func (c *Conn) RTT() time.Duration {
	return c.rtt
}

// ObserveRTT feeds a round trip sample into the smoothed round trip time.
func (c *Conn) ObserveRTT(sample time.Duration) {
	if sample < 0 {
		return
	}
	if c.rtt == 0 {
		c.rtt = sample
		return
	}
	c.rtt = c.rtt*7/8 + sample/8
}

func (c *Conn) Stats() ConnStats {
	s := c.stats
	s.NextAckID = c.nextAckID
	s.HighestAckID = c.highestAck
	s.AckBitfield = c.ackBitfield
	s.NextReliableID = c.nextReliableID
	s.OldestUnconfirmedID = c.oldestUnconfirmedID
	s.NextExpectedReliableID = c.nextExpectedReliableID
	s.NextExpectedSequenceID = c.nextExpectedSequenceID
	s.UnsentReliable = len(c.unsent)
	s.PendingReliable = c.numInflight
	s.Unreliable = len(c.unreliable)
	s.Reordering = len(c.reorder)
	s.RTT = c.rtt
	return s
}

// Queue adds a message to the unsent reliable or the unreliable queue.
// The payload is copied.
func (c *Conn) Queue(msg Message) error {
	if len(msg.Payload) > protocol.NetMaxPayload {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(msg.Payload), protocol.NetMaxPayload)
	}
	msg.Payload = bytes.Clone(msg.Payload)
	if msg.IsReliable() {
		c.unsent = append(c.unsent, msg)
	} else {
		c.unreliable = append(c.unreliable, msg)
	}
	return nil
}

// windowOpen reports whether another reliable id may be put in flight.
func (c *Conn) windowOpen() bool {
	return int(c.nextReliableID-c.oldestUnconfirmedID) < protocol.NetReliableWindow
}

// AssemblePacket builds the next outbound packet: due resends first, then
// new reliable messages as long as the window allows, then unreliable
// messages. The unreliable queue is cleared afterwards. The returned
// slice is only valid until the next call.
func (c *Conn) AssemblePacket(now time.Time, sender protocol.ConnIndex) []byte {
	ackID := c.nextAckID
	c.nextAckID = nextAckID(ackID)

	bundle := c.bundles.claim(ackID)
	w := NewPacketWriter(c.buffer, PacketHeader{
		Sender:        sender,
		AckID:         ackID,
		MostRecentAck: c.highestAck,
		AckBitfield:   c.ackBitfield,
	})

	// resend, oldest first
	for id := c.oldestUnconfirmedID; id != c.nextReliableID; id++ {
		s := &c.inflight[int(id)%protocol.NetReliableWindow]
		if !s.inUse || now.Sub(s.lastSent) < protocol.NetResendThreshold {
			continue
		}
		if !w.CanWriteMessage(s.msg) {
			continue
		}
		_ = w.WriteMessage(s.msg)
		s.lastSent = now
		bundle.ReliableIDs = append(bundle.ReliableIDs, id)
		c.stats.Resends++
	}

	for len(c.unsent) > 0 && c.windowOpen() {
		msg := c.unsent[0]
		if !w.CanWriteMessage(msg) {
			break
		}
		msg.ReliableID = c.nextReliableID
		if msg.IsSequenced() {
			msg.SequenceID = c.nextSequenceID
			c.nextSequenceID++
		}
		c.nextReliableID++

		_ = w.WriteMessage(msg)
		c.inflight[int(msg.ReliableID)%protocol.NetReliableWindow] = sentMessage{
			msg:       msg,
			firstSent: now,
			lastSent:  now,
			inUse:     true,
		}
		c.numInflight++
		bundle.ReliableIDs = append(bundle.ReliableIDs, msg.ReliableID)

		c.unsent[0] = Message{}
		c.unsent = c.unsent[1:]
		c.stats.MessagesSent++
	}
	if len(c.unsent) == 0 {
		c.unsent = c.unsent[:0:0]
	}

	for i, msg := range c.unreliable {
		if w.CanWriteMessage(msg) {
			_ = w.WriteMessage(msg)
			c.stats.MessagesSent++
		} else {
			c.stats.UnreliableDropped++
		}
		c.unreliable[i] = Message{}
	}
	c.unreliable = c.unreliable[:0]

	c.buffer = w.Bytes()
	c.lastSendTime = now
	c.stats.PacketsSent++
	return c.buffer
}

// MarkReceived updates the ack bookkeeping with the header of a packet
// that was received from this connection.
func (c *Conn) MarkReceived(now time.Time, h PacketHeader) {
	c.lastRecvTime = now
	c.stats.PacketsReceived++

	if h.AckID != protocol.NetAckInvalid {
		c.UpdateHighestAck(h.AckID)
	}

	if h.MostRecentAck == protocol.NetAckInvalid {
		return
	}
	c.confirmAck(h.MostRecentAck)
	for i := 0; i < protocol.NetAckBitfieldSize; i++ {
		if h.AckBitfield&(1<<i) != 0 {
			c.confirmAck(h.MostRecentAck - uint16(i+1))
		}
	}
}

// UpdateHighestAck records that the packet ackID arrived. A newer ack shifts
// the bitfield by the gap to the previous highest ack, an older one sets
// its historical bit.
func (c *Conn) UpdateHighestAck(ackID uint16) {
	if c.highestAck == protocol.NetAckInvalid {
		c.highestAck = ackID
		c.ackBitfield = 0
		return
	}

	gap := SeqDistance(ackID, c.highestAck)
	switch {
	case gap > 0:
		if gap > protocol.NetAckBitfieldSize {
			c.ackBitfield = 0
		} else {
			// the previous highest ack becomes bit gap-1
			c.ackBitfield = c.ackBitfield<<gap | 1<<(gap-1)
		}
		c.highestAck = ackID
	case gap < 0 && -gap <= protocol.NetAckBitfieldSize:
		c.ackBitfield |= 1 << (-gap - 1)
	}
}

func (c *Conn) confirmAck(ackID uint16) {
	ids, ok := c.bundles.take(ackID)
	if !ok {
		return
	}
	for _, id := range ids {
		c.confirmReliable(id)
	}
}

func (c *Conn) confirmReliable(id uint16) {
	if !IsSeqInBackroom(id, c.nextReliableID-1, int(c.nextReliableID-c.oldestUnconfirmedID)) {
		return
	}
	s := &c.inflight[int(id)%protocol.NetReliableWindow]
	if !s.inUse || s.msg.ReliableID != id {
		return
	}
	*s = sentMessage{}
	c.numInflight--

	// advance over the contiguous run of confirmed ids
	for c.oldestUnconfirmedID != c.nextReliableID &&
		!c.inflight[int(c.oldestUnconfirmedID)%protocol.NetReliableWindow].inUse {
		c.oldestUnconfirmedID++
	}
}

// AcceptReliable returns true exactly once for every inbound reliable id.
func (c *Conn) AcceptReliable(id uint16) bool {
	d := SeqDistance(id, c.nextExpectedReliableID)
	switch {
	case d >= 0:
		if d+1 >= protocol.NetReliableWindow {
			c.received.reset()
		} else {
			// slots entering the window still hold ids that just left it
			for x := c.nextExpectedReliableID; x != id; x++ {
				c.received.clear(x)
			}
		}
		c.received.set(id)
		c.nextExpectedReliableID = id + 1
		return true
	case d >= -protocol.NetReliableWindow && !c.received.has(id):
		c.received.set(id)
		return true
	default:
		c.stats.Duplicates++
		return false
	}
}

// Sequence returns the messages that are deliverable after msg arrived.
// Non sequenced messages are returned as is. Sequenced messages ahead of
// the expected sequence id are buffered until their predecessors arrive.
func (c *Conn) Sequence(msg Message) []Message {
	if !msg.IsSequenced() {
		return []Message{msg}
	}

	d := SeqDistance(msg.SequenceID, c.nextExpectedSequenceID)
	if d < 0 {
		c.stats.Duplicates++
		return nil
	} else if d > 0 {
		if _, found := c.reorder[msg.SequenceID]; found {
			c.stats.Duplicates++
		} else {
			c.reorder[msg.SequenceID] = msg
			c.stats.Buffered++
		}
		return nil
	}

	deliver := []Message{msg}
	c.nextExpectedSequenceID++
	for {
		next, found := c.reorder[c.nextExpectedSequenceID]
		if !found {
			break
		}
		delete(c.reorder, c.nextExpectedSequenceID)
		deliver = append(deliver, next)
		c.nextExpectedSequenceID++
	}
	return deliver
}

// CountReceived adds n delivered messages to the diagnostics.
func (c *Conn) CountReceived(n int) {
	c.stats.MessagesReceived += uint64(n)
}
