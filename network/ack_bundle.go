package network

import "github.com/jxsl13/netsession/protocol"

// AckBundle records the reliable ids that were sent in one packet.
type AckBundle struct {
	AckID       uint16
	ReliableIDs []uint16
	inUse       bool
}

// ackBundleRing keeps the bundles of the last protocol.NetAckBundleCapacity packets,
// keyed by ack id modulo capacity. A slot only resolves for the ack id it
// was claimed for, so acks of overwritten packets are ignored.
type ackBundleRing struct {
	slots [protocol.NetAckBundleCapacity]AckBundle
}

// claim resets the slot of ackID for a new outbound packet.
func (r *ackBundleRing) claim(ackID uint16) *AckBundle {
	b := &r.slots[int(ackID)%len(r.slots)]
	b.AckID = ackID
	b.ReliableIDs = b.ReliableIDs[:0]
	b.inUse = true
	return b
}

// take releases the bundle of ackID and returns its reliable ids.
// The returned slice is only valid until the slot is claimed again.
func (r *ackBundleRing) take(ackID uint16) ([]uint16, bool) {
	b := &r.slots[int(ackID)%len(r.slots)]
	if !b.inUse || b.AckID != ackID {
		return nil, false
	}
	b.inUse = false
	return b.ReliableIDs, true
}

func (r *ackBundleRing) reset() {
	for i := range r.slots {
		r.slots[i].inUse = false
		r.slots[i].ReliableIDs = r.slots[i].ReliableIDs[:0]
	}
}
