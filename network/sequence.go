package network

import "github.com/jxsl13/netsession/protocol"

// SeqDistance returns the signed distance from b to a in the wrapping
// 16-bit id space. Ids exactly half the range apart are considered older.
func SeqDistance(a, b uint16) int {
	return int(int16(a - b))
}

// SeqNewer reports whether a was issued after b.
func SeqNewer(a, b uint16) bool {
	return SeqDistance(a, b) > 0
}

// IsSeqInBackroom reports whether seq lies within the window ids at or before ack.
func IsSeqInBackroom(seq, ack uint16, window int) bool {
	d := SeqDistance(ack, seq)
	return d >= 0 && d < window
}

// nextAckID increments an ack id skipping protocol.NetAckInvalid.
func nextAckID(id uint16) uint16 {
	id++
	if id == protocol.NetAckInvalid {
		id++
	}
	return id
}
