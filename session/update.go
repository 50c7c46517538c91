package session

import (
	"net/netip"
	"time"

	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/protocol"
)

// Update drains all pending datagrams, dispatches their messages, drives
// the join and connection timeouts and sends a packet to every peer once
// per send interval. It never blocks. The returned error is only non nil
// if the datagram endpoint has been closed underneath the session.
func (s *Session) Update() error {
	if s.channel == nil {
		return nil
	}
	now := s.clock.Now()
	dt := max(0, now.Sub(s.lastUpdate))
	s.lastUpdate = now

	for {
		n, addr, err := s.channel.ReadFrom(s.recvBuf[:])
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		s.handleDatagram(now, addr, s.recvBuf[:n])
	}

	switch s.state {
	case protocol.SessionStateJoining:
		s.hostTimer += dt
		if s.hostTimer > s.hostTimeout {
			s.leave(protocol.ErrHostTimedOut)
		}
	case protocol.SessionStateConnected:
		s.checkTimeouts(now)
		s.heartbeat(now, dt)
	}

	s.sendTimer += dt
	if s.sendTimer >= s.sendInterval {
		s.sendTimer %= s.sendInterval
		for _, c := range s.conns {
			if !c.IsLocal() {
				s.sendPacket(now, c)
			}
		}
	}
	return nil
}

func (s *Session) handleDatagram(now time.Time, addr netip.AddrPort, data []byte) {
	s.stats.DatagramsReceived++

	h, msgs, err := network.UnpackPacket(data, &s.registry)
	if err != nil {
		s.stats.FramingErrors++
		s.logger.Debug("discarding packet", s.logger.Args("addr", addr, "error", err))
		return
	}

	conn := s.resolve(h.Sender, addr)
	if conn == nil && s.state == protocol.SessionStateJoining && h.Sender == protocol.NetConnIndexHost && hasJoinAccept(msgs) {
		// the host may answer from another address than the one joined
		conn = s.host
	}
	if conn == nil {
		s.stats.Connectionless++
		from := Sender{Addr: addr}
		for _, msg := range msgs {
			if msg.Definition.RequiresConnection {
				s.stats.Rejected++
				continue
			}
			s.dispatch(from, msg)
		}
		return
	}

	if !conn.IsConfirmed() && !s.IsHost() && heldBack(msgs) {
		// neither acked nor marked received, the host resends it after the accept
		s.stats.Rejected += uint64(len(msgs))
		return
	}

	from := Sender{Conn: conn, Addr: addr}
	for _, msg := range msgs {
		if msg.IsReliable() && !conn.AcceptReliable(msg.ReliableID) {
			continue
		}
		for _, m := range conn.Sequence(msg) {
			conn.CountReceived(1)
			s.dispatch(from, m)
			if !s.owns(conn) {
				// a handler disconnected the sender
				return
			}
		}
	}

	conn.MarkReceived(now, h)
	if !conn.IsConfirmed() && s.IsHost() {
		// the peer uses the index it was assigned, so it received the accept
		conn.SetConfirmed(true)
		s.notify(EventConnectionUpdated, conn, protocol.ErrNone)
	}
}

// heldBack reports whether a packet from the host arriving before the join
// accept carries application messages that require a connection.
func heldBack(msgs []network.Message) bool {
	for _, msg := range msgs {
		if msg.Type == protocol.NetMsgJoinAccept {
			return false
		}
		if msg.Definition.RequiresConnection && !msg.Type.IsControl() {
			return true
		}
	}
	return false
}

func hasJoinAccept(msgs []network.Message) bool {
	for _, msg := range msgs {
		if msg.Type == protocol.NetMsgJoinAccept {
			return true
		}
	}
	return false
}

func (s *Session) dispatch(from Sender, msg network.Message) {
	handler := s.handlers[msg.Type]
	if handler == nil {
		s.stats.Unhandled++
		return
	}
	handler.HandleMessage(from, msg)
}

// checkTimeouts disconnects peers that have been silent for too long.
func (s *Session) checkTimeouts(now time.Time) {
	if s.connTimeout <= 0 {
		return
	}
	for _, c := range s.Conns() {
		if c.IsLocal() || now.Sub(c.LastRecvTime()) <= s.connTimeout {
			continue
		}
		if c == s.host {
			s.leave(protocol.ErrHostTimedOut)
			return
		}
		s.logger.Info("peer timed out", s.logger.Args("index", c.Index(), "peer", c.PeerID()))
		s.disconnect(c, protocol.ErrNone)
	}
}

func (s *Session) heartbeat(now time.Time, dt time.Duration) {
	if s.heartbeatInterval <= 0 {
		return
	}
	s.heartbeatTimer += dt
	if s.heartbeatTimer < s.heartbeatInterval {
		return
	}
	s.heartbeatTimer %= s.heartbeatInterval

	ping := controlMessage(protocol.NetMsgPing, packPing(now.UnixNano()))
	for _, c := range s.conns {
		if !c.IsLocal() && c.IsConfirmed() {
			_ = c.Queue(ping)
		}
	}
}

func (s *Session) sendPacket(now time.Time, c *network.Conn) {
	data := c.AssemblePacket(now, s.localIndex())
	if err := s.channel.WriteTo(c.Addr(), data); err != nil {
		s.logger.Debug("failed to send packet", s.logger.Args("addr", c.Addr(), "error", err))
	}
}

func timeFromNanos(n int64) time.Time {
	return time.Unix(0, n)
}
