package session

import (
	"fmt"
	"net/netip"

	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/protocol"
)

func (s *Session) message(t protocol.MsgType, payload []byte) (network.Message, error) {
	def, ok := s.registry.Lookup(t)
	if !ok {
		return network.Message{}, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	if len(payload) > protocol.NetMaxPayload {
		return network.Message{}, fmt.Errorf("%w: %d > %d", network.ErrPayloadTooLarge, len(payload), protocol.NetMaxPayload)
	}
	return network.NewMessage(t, def, payload), nil
}

// SendToHost queues a message for the host. A hosting session delivers
// the message to its own handler immediately.
func (s *Session) SendToHost(t protocol.MsgType, payload []byte) error {
	msg, err := s.message(t, payload)
	if err != nil {
		return err
	}
	if s.state != protocol.SessionStateConnected || s.host == nil {
		return ErrNotConnected
	}
	if s.IsHost() {
		s.dispatch(Sender{Conn: s.local, Addr: s.local.Addr()}, msg)
		return nil
	}
	return s.host.Queue(msg)
}

// SendToAll queues a message for every remote connection.
func (s *Session) SendToAll(t protocol.MsgType, payload []byte) error {
	msg, err := s.message(t, payload)
	if err != nil {
		return err
	}
	if s.state != protocol.SessionStateConnected {
		return ErrNotConnected
	}
	for _, c := range s.conns {
		if c.IsLocal() {
			continue
		}
		if err := c.Queue(msg); err != nil {
			return err
		}
	}
	return nil
}

// SendTo queues a message for the connection with the given index.
func (s *Session) SendTo(index protocol.ConnIndex, t protocol.MsgType, payload []byte) error {
	msg, err := s.message(t, payload)
	if err != nil {
		return err
	}
	c, ok := s.Conn(index)
	if !ok || c.IsLocal() {
		return fmt.Errorf("%w: no remote connection with index %d", ErrNotConnected, index)
	}
	return c.Queue(msg)
}

// SendDirect immediately sends an unreliable message in its own packet to
// addr, no connection is needed.
func (s *Session) SendDirect(addr netip.AddrPort, t protocol.MsgType, payload []byte) error {
	msg, err := s.message(t, payload)
	if err != nil {
		return err
	}
	if msg.IsReliable() {
		return fmt.Errorf("%w: %s", ErrDirectReliable, t)
	}
	if s.channel == nil {
		return ErrClosed
	}

	w := network.NewPacketWriter(s.directBuf, network.PacketHeader{
		Sender:        s.localIndex(),
		AckID:         protocol.NetAckInvalid,
		MostRecentAck: protocol.NetAckInvalid,
	})
	if err := w.WriteMessage(msg); err != nil {
		return err
	}
	s.directBuf = w.Bytes()
	return s.channel.WriteTo(addr, s.directBuf)
}
