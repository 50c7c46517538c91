package session

import (
	"fmt"
	"net/netip"

	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/protocol"
)

func (s *Session) prepare(peerID string) error {
	if err := ValidatePeerID(peerID); err != nil {
		return err
	}
	switch s.state {
	case protocol.SessionStateConnected, protocol.SessionStateJoining, protocol.SessionStateHosting:
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, s.state)
	}
	return s.Open()
}

// Host starts a session that other peers can join.
func (s *Session) Host(peerID string) error {
	if err := s.prepare(peerID); err != nil {
		return fmt.Errorf("failed to host: %w", err)
	}
	s.state = protocol.SessionStateHosting

	local := network.NewConn(protocol.NetConnIndexHost, peerID, s.channel.LocalAddr())
	local.SetLocal(true)
	local.SetConfirmed(true)

	s.conns = append(s.conns[:0], local)
	s.local = local
	s.host = local
	s.listening = true
	s.lastError = protocol.ErrNone

	s.state = protocol.SessionStateConnected
	s.logger.Info("hosting session", s.logger.Args("peer", peerID, "addr", local.Addr()))
	s.notify(EventConnectionJoined, local, protocol.ErrNone)
	return nil
}

// Join asks the session hosted at hostAddr to accept this peer. The result
// arrives asynchronously while Update is called: the state either becomes
// Connected or falls back to Unconnected with LastError set.
func (s *Session) Join(peerID string, hostAddr netip.AddrPort) error {
	if err := s.prepare(peerID); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	local := network.NewConn(protocol.NetConnIndexNone, peerID, s.channel.LocalAddr())
	local.SetLocal(true)

	host := network.NewConn(protocol.NetConnIndexHost, "", hostAddr)
	if err := host.Queue(controlMessage(protocol.NetMsgJoinRequest, packJoinRequest(peerID))); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	s.conns = append(s.conns[:0], local, host)
	s.local = local
	s.host = host
	s.lastError = protocol.ErrNone
	s.hostTimer = 0

	s.state = protocol.SessionStateJoining
	s.logger.Info("joining session", s.logger.Args("peer", peerID, "host", hostAddr))
	return nil
}

// Leave notifies all peers and disconnects every connection.
func (s *Session) Leave() {
	s.leave(protocol.ErrNone)
}

func (s *Session) leave(reason protocol.ErrorCode) {
	if s.local == nil {
		return
	}
	now := s.clock.Now()

	for _, c := range s.conns {
		if c.IsLocal() {
			continue
		}
		_ = c.Queue(controlMessage(protocol.NetMsgLeave, nil))
		s.sendPacket(now, c)
	}

	if s.IsHost() {
		for _, c := range s.Conns() {
			if !c.IsLocal() {
				s.disconnect(c, protocol.ErrNone)
			}
		}
	} else if s.host != nil {
		s.disconnect(s.host, protocol.ErrNone)
	}
	s.disconnect(s.local, reason)

	s.conns = s.conns[:0]
	s.local = nil
	s.host = nil
	s.hostTimer = 0
	s.lastError = reason
	s.state = protocol.SessionStateUnconnected

	if reason != protocol.ErrNone {
		s.logger.Warn("left session", s.logger.Args("reason", reason))
	} else {
		s.logger.Info("left session")
	}
}

// disconnect removes c and notifies about it. Connections that never
// completed the join are removed silently.
func (s *Session) disconnect(c *network.Conn, reason protocol.ErrorCode) {
	for i, conn := range s.conns {
		if conn != c {
			continue
		}
		s.conns = append(s.conns[:i], s.conns[i+1:]...)
		if c.IsConfirmed() || c.IsLocal() {
			s.notify(EventConnectionLeft, c, reason)
		}
		s.logger.Debug("connection removed", s.logger.Args("index", c.Index(), "peer", c.PeerID()))
		return
	}
}

func (s *Session) deny(addr netip.AddrPort, reason protocol.ErrorCode) {
	s.logger.Debug("denying join request", s.logger.Args("addr", addr, "reason", reason))
	err := s.SendDirect(addr, protocol.NetMsgJoinDeny, packJoinDeny(reason))
	if err != nil {
		s.logger.Warn("failed to deny join request", s.logger.Args("addr", addr, "error", err))
	}
}

func (s *Session) handleJoinRequest(from Sender, msg network.Message) {
	peerID, err := unpackJoinRequest(msg.Payload)
	if err != nil {
		s.logger.Debug("dropping join request", s.logger.Args("addr", from.Addr, "error", err))
		return
	}

	if existing := s.connByAddr(from.Addr); existing != nil && s.IsHost() {
		if existing.PeerID() == peerID {
			// retransmission, the accept is already on its way
			return
		}
		// the address was reused by a different peer
		s.disconnect(existing, protocol.ErrNone)
	}

	switch {
	case !s.IsHost():
		s.deny(from.Addr, protocol.ErrNotHost)
		return
	case !s.listening:
		s.deny(from.Addr, protocol.ErrHostNotListening)
		return
	case len(s.conns) >= s.maxConns:
		s.deny(from.Addr, protocol.ErrSessionFull)
		return
	case s.peerIDInUse(peerID):
		s.deny(from.Addr, protocol.ErrPeerIDInUse)
		return
	}

	index, ok := s.nextFreeIndex()
	if !ok {
		s.deny(from.Addr, protocol.ErrSessionFull)
		return
	}

	c := network.NewConn(index, peerID, from.Addr)
	c.Touch(s.clock.Now())
	err = c.Queue(controlMessage(protocol.NetMsgJoinAccept, packJoinAccept(connInfo(s.local), connInfo(c))))
	if err != nil {
		s.logger.Error("failed to accept join request", s.logger.Args("addr", from.Addr, "error", err))
		return
	}
	s.conns = append(s.conns, c)

	s.logger.Info("peer joined", s.logger.Args("index", index, "peer", peerID, "addr", from.Addr))
	s.notify(EventConnectionJoined, c, protocol.ErrNone)
}

func (s *Session) handleJoinAccept(from Sender, msg network.Message) {
	if s.state != protocol.SessionStateJoining || from.Conn != s.host {
		return
	}
	hostInfo, localInfo, err := unpackJoinAccept(msg.Payload)
	if err != nil {
		s.logger.Warn("dropping join accept", s.logger.Args("addr", from.Addr, "error", err))
		return
	}

	s.host.SetIndex(hostInfo.Index)
	s.host.SetPeerID(hostInfo.PeerID)
	s.host.SetAddr(from.Addr)
	s.host.SetConfirmed(true)

	s.local.SetIndex(localInfo.Index)
	s.local.SetConfirmed(true)

	s.hostTimer = 0
	s.state = protocol.SessionStateConnected

	s.logger.Info("joined session", s.logger.Args("index", localInfo.Index, "host", hostInfo.PeerID))
	s.notify(EventConnectionJoined, s.local, protocol.ErrNone)
	s.notify(EventConnectionJoined, s.host, protocol.ErrNone)
}

func (s *Session) handleJoinDeny(from Sender, msg network.Message) {
	if s.state != protocol.SessionStateJoining || s.host == nil || from.Addr != s.host.Addr() {
		return
	}
	reason, err := unpackJoinDeny(msg.Payload)
	if err != nil {
		s.logger.Warn("dropping join deny", s.logger.Args("addr", from.Addr, "error", err))
		return
	}
	s.leave(reason)
}

func (s *Session) handleLeave(from Sender, _ network.Message) {
	if from.Conn == nil {
		return
	}
	if from.Conn == s.host && !s.IsHost() {
		s.leave(protocol.ErrHostDisconnected)
		return
	}
	s.logger.Info("peer left", s.logger.Args("index", from.Conn.Index(), "peer", from.Conn.PeerID()))
	s.disconnect(from.Conn, protocol.ErrNone)
}

func (s *Session) handlePing(from Sender, msg network.Message) {
	pong := controlMessage(protocol.NetMsgPong, msg.Payload)
	if from.Conn != nil {
		_ = from.Conn.Queue(pong)
		return
	}
	if err := s.SendDirect(from.Addr, protocol.NetMsgPong, msg.Payload); err != nil {
		s.logger.Debug("failed to answer ping", s.logger.Args("addr", from.Addr, "error", err))
	}
}

func (s *Session) handlePong(from Sender, msg network.Message) {
	if from.Conn == nil {
		return
	}
	sent, err := unpackPing(msg.Payload)
	if err != nil {
		return
	}
	from.Conn.ObserveRTT(s.clock.Now().Sub(timeFromNanos(sent)))
}
