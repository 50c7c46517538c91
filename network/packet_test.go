package network

import (
	"testing"

	"github.com/jxsl13/netsession/protocol"
	"github.com/stretchr/testify/require"
)

var (
	defUnreliable = Definition{}
	defReliable   = Definition{Reliable: true}
	defSequenced  = Definition{Reliable: true, Sequenced: true}
)

const (
	msgUnreliable protocol.MsgType = protocol.NetMsgFirstUser + iota
	msgReliable
	msgSequenced
)

func testRegistry(t *testing.T) *Registry {
	var r Registry
	require.NoError(t, r.Register(msgUnreliable, defUnreliable))
	require.NoError(t, r.Register(msgReliable, defReliable))
	require.NoError(t, r.Register(msgSequenced, defSequenced))
	return &r
}

func TestPacketHeaderLayout(t *testing.T) {
	require := require.New(t)

	h := PacketHeader{Sender: 3, AckID: 0x0102, MostRecentAck: 0x0304, AckBitfield: 0x0506}
	data := h.Append(nil)
	require.Equal([]byte{3, 1, 2, 3, 4, 5, 6}, data)

	var got PacketHeader
	rest, err := got.Unpack(append(data, 0xAA))
	require.NoError(err)
	require.Equal(h, got)
	require.Equal([]byte{0xAA}, rest)

	_, err = got.Unpack(data[:6])
	require.ErrorIs(err, ErrPacketHeaderTooSmall)
	require.ErrorIs(err, ErrFraming)
}

func TestMessageLayout(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []byte
	}{
		{"unreliable", Message{Type: msgUnreliable, Definition: defUnreliable, Payload: []byte{9}},
			[]byte{0, 4, byte(msgUnreliable), 9}},
		{"reliable", Message{Type: msgReliable, Definition: defReliable, ReliableID: 0x0A0B, Payload: []byte{9}},
			[]byte{0, 6, byte(msgReliable), 0x0A, 0x0B, 9}},
		{"sequenced", Message{Type: msgSequenced, Definition: defSequenced, ReliableID: 1, SequenceID: 0x0C0D},
			[]byte{0, 7, byte(msgSequenced), 0, 1, 0x0C, 0x0D}},
	}
	defs := testRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.msg.Append(nil)
			require.Equal(t, tt.want, data)
			require.Equal(t, len(tt.want), tt.msg.TotalSize())

			got, rest, err := UnpackMessage(data, defs)
			require.NoError(t, err)
			require.Empty(t, rest)
			require.Equal(t, tt.msg.Type, got.Type)
			require.Equal(t, tt.msg.ReliableID, got.ReliableID)
			require.Equal(t, tt.msg.SequenceID, got.SequenceID)
			require.Equal(t, len(tt.msg.Payload), len(got.Payload))
		})
	}
}

func TestUnpackMessageFramingErrors(t *testing.T) {
	defs := testRegistry(t)
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", []byte{0, 3}, ErrMessageHeaderTooSmall},
		{"unknown type", []byte{0, 3, 200}, ErrUnknownMessageType},
		{"size below header", []byte{0, 4, byte(msgReliable), 0, 0}, ErrMessageTooShort},
		{"size exceeds packet", []byte{0, 10, byte(msgUnreliable), 1, 2}, ErrMessageExceedsPacket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := UnpackMessage(tt.data, defs)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrFraming)
		})
	}
}

func TestPacketWriterCapacity(t *testing.T) {
	require := require.New(t)

	w := NewPacketWriter(nil, PacketHeader{AckID: 1, MostRecentAck: protocol.NetAckInvalid})
	require.Equal(protocol.NetMaxPacketSize-protocol.NetPacketHeaderSize, w.Remaining())

	big := Message{Type: msgUnreliable, Payload: make([]byte, w.Remaining()-protocol.NetMessageHeaderSize)}
	require.True(w.CanWriteMessage(big))
	require.NoError(w.WriteMessage(big))
	require.Zero(w.Remaining())

	small := Message{Type: msgUnreliable}
	require.False(w.CanWriteMessage(small))
	require.ErrorIs(w.WriteMessage(small), ErrPacketFull)
	require.Equal(1, w.NumMessages())
	require.Len(w.Bytes(), protocol.NetMaxPacketSize)
}

func TestUnpackPacket(t *testing.T) {
	require := require.New(t)
	defs := testRegistry(t)

	w := NewPacketWriter(nil, PacketHeader{Sender: 1, AckID: 7, MostRecentAck: 3, AckBitfield: 1})
	require.NoError(w.WriteMessage(Message{Type: msgReliable, Definition: defReliable, ReliableID: 4, Payload: []byte("a")}))
	require.NoError(w.WriteMessage(Message{Type: msgUnreliable, Payload: []byte("bc")}))

	h, msgs, err := UnpackPacket(w.Bytes(), defs)
	require.NoError(err)
	require.Equal(uint16(7), h.AckID)
	require.Len(msgs, 2)
	require.Equal("a", string(msgs[0].Payload))
	require.True(msgs[0].IsReliable())
	require.Equal(uint16(4), msgs[0].ReliableID)
	require.Equal("bc", string(msgs[1].Payload))

	// a truncated trailing message invalidates the whole packet
	data := w.Bytes()
	_, msgs, err = UnpackPacket(data[:len(data)-1], defs)
	require.ErrorIs(err, ErrMessageExceedsPacket)
	require.Nil(msgs)

	// well formed messages beyond the packet size limit
	oversized := NewPacketWriter(nil, PacketHeader{Sender: 1, MostRecentAck: protocol.NetAckInvalid}).Bytes()
	for len(oversized) <= protocol.NetMaxPacketSize {
		oversized = Message{Type: msgUnreliable, Payload: make([]byte, 100)}.Append(oversized)
	}
	_, msgs, err = UnpackPacket(oversized, defs)
	require.ErrorIs(err, ErrPacketTooLarge)
	require.ErrorIs(err, ErrFraming)
	require.Nil(msgs)
}

func TestRegistry(t *testing.T) {
	require := require.New(t)

	var r Registry
	_, found := r.Lookup(msgReliable)
	require.False(found)

	require.ErrorIs(r.Register(msgSequenced, Definition{Sequenced: true}), ErrSequencedUnreliable)
	require.NoError(r.Register(msgReliable, defReliable))
	require.ErrorIs(r.Register(msgReliable, defUnreliable), ErrMessageTypeInUse)

	def, found := r.Lookup(msgReliable)
	require.True(found)
	require.Equal(defReliable, def)
}
