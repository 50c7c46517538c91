package session

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/jxsl13/netsession/internal/clock"
	"github.com/jxsl13/netsession/internal/logging"
	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/protocol"
	"github.com/stretchr/testify/require"
)

const (
	msgChat     protocol.MsgType = protocol.NetMsgFirstUser
	msgOrdered  protocol.MsgType = protocol.NetMsgFirstUser + 1
	msgPosition protocol.MsgType = protocol.NetMsgFirstUser + 2
)

type testNet struct {
	t        *testing.T
	network  *network.MemoryNetwork
	clock    *clock.Manual
	sessions []*Session
	events   map[*Session][]Event
}

func newTestNet(t *testing.T) *testNet {
	return &testNet{
		t:       t,
		network: network.NewMemoryNetwork(),
		clock:   clock.NewManual(time.Unix(1_000_000, 0)),
		events:  make(map[*Session][]Event),
	}
}

func (n *testNet) addr(ip string) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr(ip), 8303)
}

func (n *testNet) newSession(ip string, opts ...Option) *Session {
	var s *Session
	opts = append([]Option{
		WithOpener(MemoryOpener(n.network, n.addr(ip))),
		WithClock(n.clock),
		WithLogger(logging.Discard()),
		WithNotifier(NotifierFunc(func(e Event) {
			n.events[s] = append(n.events[s], e)
		})),
	}, opts...)
	s = New(opts...)
	n.sessions = append(n.sessions, s)
	n.t.Cleanup(func() { _ = s.Close() })
	return s
}

// step advances the clock by one send interval and updates every session.
func (n *testNet) step() {
	n.clock.Advance(protocol.NetSendInterval)
	for _, s := range n.sessions {
		require.NoError(n.t, s.Update())
	}
}

// run steps until cond is true or d elapsed.
func (n *testNet) run(d time.Duration, cond func() bool) bool {
	for elapsed := time.Duration(0); elapsed < d; elapsed += protocol.NetSendInterval {
		n.step()
		if cond != nil && cond() {
			return true
		}
	}
	return false
}

func (n *testNet) eventTypes(s *Session) []EventType {
	result := make([]EventType, 0, len(n.events[s]))
	for _, e := range n.events[s] {
		result = append(result, e.Type)
	}
	return result
}

func connected(sessions ...*Session) func() bool {
	return func() bool {
		for _, s := range sessions {
			if s.State() != protocol.SessionStateConnected {
				return false
			}
		}
		return true
	}
}

func left(s *Session) func() bool {
	return func() bool {
		return s.State() == protocol.SessionStateUnconnected
	}
}

func (n *testNet) hostAndJoin(hostIP, joinIP string) (host, joiner *Session) {
	host = n.newSession(hostIP)
	require.NoError(n.t, host.Host("alice"))
	joiner = n.newSession(joinIP)
	require.NoError(n.t, joiner.Join("bob", host.LocalAddr()))
	require.True(n.t, n.run(time.Second, connected(host, joiner)))
	return host, joiner
}

func TestHostAndJoin(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host := n.newSession("10.0.0.1")
	require.NoError(host.Host("alice"))
	require.Equal(protocol.SessionStateConnected, host.State())
	require.True(host.IsHost())

	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.Join("bob", host.LocalAddr()))
	require.Equal(protocol.SessionStateJoining, joiner.State())

	// request in the first tick, accept in the second
	steps := 0
	for steps < 3 && !connected(joiner)() {
		n.step()
		steps++
	}
	require.Equal(protocol.SessionStateConnected, joiner.State())
	require.LessOrEqual(steps, 2)

	require.Len(host.Conns(), 2)
	bob, ok := host.Conn(1)
	require.True(ok)
	require.Equal("bob", bob.PeerID())
	require.Equal(joiner.LocalAddr(), bob.Addr())

	require.Equal(protocol.ConnIndex(1), joiner.LocalConn().Index())
	require.Equal("alice", joiner.HostConn().PeerID())
	require.Equal(protocol.NetConnIndexHost, joiner.HostConn().Index())
	require.False(joiner.IsHost())

	// the joiner now sends with its assigned index which confirms it on the host
	// and both handshake messages get acknowledged
	require.True(n.run(time.Second, func() bool {
		return bob.IsConfirmed() &&
			bob.Stats().PendingReliable == 0 &&
			joiner.HostConn().Stats().PendingReliable == 0
	}))

	require.Equal([]EventType{EventConnectionJoined, EventConnectionJoined, EventConnectionUpdated}, n.eventTypes(host))
	require.Equal([]EventType{EventConnectionJoined, EventConnectionJoined}, n.eventTypes(joiner))
	require.True(n.events[joiner][0].Local)
}

func TestHostAndJoinUDP(t *testing.T) {
	require := require.New(t)
	loopback := netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 0)

	host := New(WithOpener(UDPOpener(loopback)), WithLogger(logging.Discard()))
	defer host.Close()
	joiner := New(WithOpener(UDPOpener(loopback)), WithLogger(logging.Discard()))
	defer joiner.Close()

	require.NoError(host.Host("alice"))
	require.NoError(joiner.Join("bob", host.LocalAddr()))

	require.Eventually(func() bool {
		if host.Update() != nil || joiner.Update() != nil {
			return false
		}
		return connected(host, joiner)() && len(host.Conns()) == 2
	}, 5*time.Second, time.Millisecond)

	require.Equal(host.LocalAddr(), joiner.HostConn().Addr())
	require.Equal(protocol.ConnIndex(1), joiner.LocalConn().Index())
}

func TestJoinNotHost(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	other := n.newSession("10.0.0.1")
	require.NoError(other.Open())
	require.Equal(protocol.SessionStateUnconnected, other.State())

	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.Join("bob", other.LocalAddr()))

	require.True(n.run(time.Second, left(joiner)))
	require.ErrorIs(joiner.LastError(), protocol.ErrNotHost)
	require.Equal(protocol.SessionStateUnconnected, other.State())
	require.Empty(other.Conns())

	events := n.events[joiner]
	require.Len(events, 1)
	require.Equal(EventConnectionLeft, events[0].Type)
	require.Equal(protocol.ErrNotHost, events[0].Reason)
}

func TestJoinNotListening(t *testing.T) {
	n := newTestNet(t)

	host := n.newSession("10.0.0.1")
	require.NoError(t, host.Host("alice"))
	host.SetListening(false)

	joiner := n.newSession("10.0.0.2")
	require.NoError(t, joiner.Join("bob", host.LocalAddr()))

	require.True(t, n.run(time.Second, left(joiner)))
	require.Equal(t, protocol.ErrHostNotListening, joiner.LastError())
	require.Len(t, host.Conns(), 1)
}

func TestJoinSessionFull(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host := n.newSession("10.0.0.1")
	require.NoError(host.Host("alice"))

	joiners := make([]*Session, 0, protocol.NetMaxConnections-1)
	for i := 0; i < protocol.NetMaxConnections-1; i++ {
		j := n.newSession(fmt.Sprintf("10.0.1.%d", i+1))
		require.NoError(j.Join(fmt.Sprintf("peer%d", i), host.LocalAddr()))
		joiners = append(joiners, j)
	}
	require.True(n.run(time.Second, connected(joiners...)))
	require.Len(host.Conns(), protocol.NetMaxConnections)

	indices := make(map[protocol.ConnIndex]bool)
	for _, j := range joiners {
		indices[j.LocalConn().Index()] = true
	}
	require.Len(indices, protocol.NetMaxConnections-1)

	late := n.newSession("10.0.2.1")
	require.NoError(late.Join("late", host.LocalAddr()))
	require.True(n.run(time.Second, left(late)))
	require.Equal(protocol.ErrSessionFull, late.LastError())
	require.Len(host.Conns(), protocol.NetMaxConnections)
}

func TestJoinPeerIDInUse(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host, _ := n.hostAndJoin("10.0.0.1", "10.0.0.2")

	twin := n.newSession("10.0.0.3")
	require.NoError(twin.Join("alice", host.LocalAddr()))
	require.True(n.run(time.Second, left(twin)))
	require.Equal(protocol.ErrPeerIDInUse, twin.LastError())

	other := n.newSession("10.0.0.4")
	require.NoError(other.Join("bob", host.LocalAddr()))
	require.True(n.run(time.Second, left(other)))
	require.Equal(protocol.ErrPeerIDInUse, other.LastError())

	require.Len(host.Conns(), 2)
}

func TestJoinHostTimeout(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.Join("bob", n.addr("10.0.0.99")))

	require.False(n.run(protocol.NetHostTimeout-time.Second, left(joiner)))
	require.Equal(protocol.SessionStateJoining, joiner.State())

	require.True(n.run(2*time.Second, left(joiner)))
	require.Equal(protocol.ErrHostTimedOut, joiner.LastError())
	require.Empty(joiner.Conns())
	require.Nil(joiner.LocalConn())
}

func TestJoinInvalid(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	s := n.newSession("10.0.0.1")
	require.ErrorIs(s.Join("", n.addr("10.0.0.2")), ErrInvalidPeerID)
	require.ErrorIs(s.Host("this-peer-id-is-way-too-long-to-be-valid"), ErrInvalidPeerID)

	require.NoError(s.Host("alice"))
	require.ErrorIs(s.Join("alice", n.addr("10.0.0.2")), ErrAlreadyConnected)
	require.ErrorIs(s.Host("alice"), ErrAlreadyConnected)
}

func TestOpenFailure(t *testing.T) {
	n := newTestNet(t)
	_ = n.newSession("10.0.0.1")
	// the address is already bound
	s := n.newSession("10.0.0.1")
	require.NoError(t, n.sessions[0].Open())

	err := s.Host("alice")
	require.ErrorIs(t, err, protocol.ErrHostNotCreateSocket)
	require.ErrorIs(t, err, network.ErrAddrInUse)
	require.Equal(t, protocol.ErrHostNotCreateSocket, s.LastError())
	require.Equal(t, protocol.SessionStateInitial, s.State())
}

func TestLeave(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host, joiner := n.hostAndJoin("10.0.0.1", "10.0.0.2")
	require.True(n.run(time.Second, func() bool {
		c, _ := host.Conn(1)
		return c.IsConfirmed()
	}))

	joiner.Leave()
	require.Equal(protocol.SessionStateUnconnected, joiner.State())
	require.Equal(protocol.ErrNone, joiner.LastError())

	require.True(n.run(time.Second, func() bool { return len(host.Conns()) == 1 }))
	hostEvents := n.events[host]
	require.Equal(EventConnectionLeft, hostEvents[len(hostEvents)-1].Type)
	require.Equal("bob", hostEvents[len(hostEvents)-1].PeerID)

	// a session can join again after leaving
	require.NoError(joiner.Join("bob", host.LocalAddr()))
	require.True(n.run(time.Second, connected(joiner)))
}

func TestHostLeave(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host, joiner := n.hostAndJoin("10.0.0.1", "10.0.0.2")

	host.Leave()
	require.Equal(protocol.SessionStateUnconnected, host.State())
	require.Empty(host.Conns())

	require.True(n.run(time.Second, left(joiner)))
	require.Equal(protocol.ErrHostDisconnected, joiner.LastError())
}

func TestConnTimeout(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host, joiner := n.hostAndJoin("10.0.0.1", "10.0.0.2")
	host.SetSimulation(network.Simulation{DropRate: 1})
	joiner.SetSimulation(network.Simulation{DropRate: 1})

	require.True(n.run(protocol.NetConnTimeout+time.Second, func() bool {
		return joiner.State() == protocol.SessionStateUnconnected && len(host.Conns()) == 1
	}))
	require.Equal(protocol.ErrHostTimedOut, joiner.LastError())
	require.Equal(protocol.SessionStateConnected, host.State())
}

func TestPingMeasuresRTT(t *testing.T) {
	n := newTestNet(t)
	host, joiner := n.hostAndJoin("10.0.0.1", "10.0.0.2")

	require.True(t, n.run(3*protocol.NetHeartbeatInterval, func() bool {
		c, _ := host.Conn(1)
		return c.RTT() > 0 && joiner.HostConn().RTT() > 0
	}))
}

type counter struct {
	received map[uint16]int
	order    []uint16
}

func (c *counter) HandleMessage(_ Sender, msg network.Message) {
	id := binary.BigEndian.Uint16(msg.Payload)
	c.received[id]++
	c.order = append(c.order, id)
}

func newCounter() *counter {
	return &counter{received: make(map[uint16]int)}
}

func payload(id int) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(id))
}

func TestReliableExactlyOnceUnderLoss(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	hostCounter, joinerCounter := newCounter(), newCounter()
	host := n.newSession("10.0.0.1")
	require.NoError(host.RegisterMessage(msgChat, network.Definition{RequiresConnection: true, Reliable: true}, hostCounter))
	require.NoError(host.Host("alice"))

	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.RegisterMessage(msgChat, network.Definition{RequiresConnection: true, Reliable: true}, joinerCounter))
	require.NoError(joiner.Join("bob", host.LocalAddr()))
	require.True(n.run(time.Second, connected(host, joiner)))

	host.SetSimulation(network.Simulation{DropRate: 0.5, Seed: 1})
	joiner.SetSimulation(network.Simulation{DropRate: 0.5, Seed: 2})

	const total = 300
	for i := 0; i < total; i++ {
		require.NoError(joiner.SendToHost(msgChat, payload(i)))
		require.NoError(host.SendToAll(msgChat, payload(i)))
	}

	require.True(n.run(30*time.Second, func() bool {
		return len(hostCounter.received) == total && len(joinerCounter.received) == total
	}))
	// keep retransmitting for a while, duplicates must not be delivered
	n.run(time.Second, nil)

	for i := 0; i < total; i++ {
		require.Equal(1, hostCounter.received[uint16(i)], "host message %d", i)
		require.Equal(1, joinerCounter.received[uint16(i)], "joiner message %d", i)
	}
	require.NotZero(host.Stats().Channel.Dropped)
	require.Equal(protocol.SessionStateConnected, joiner.State())
}

func TestSequencedOrderingUnderReordering(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	ordered := newCounter()
	host := n.newSession("10.0.0.1")
	require.NoError(host.RegisterMessage(msgOrdered, network.Definition{RequiresConnection: true, Reliable: true, Sequenced: true}, ordered))
	require.NoError(host.Host("alice"))

	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.RegisterMessage(msgOrdered, network.Definition{RequiresConnection: true, Reliable: true, Sequenced: true}, nil))
	require.NoError(joiner.Join("bob", host.LocalAddr()))
	require.True(n.run(time.Second, connected(host, joiner)))

	host.SetSimulation(network.Simulation{
		DropRate:      0.2,
		DuplicateRate: 0.2,
		MaxDelay:      80 * time.Millisecond,
		Seed:          3,
	})

	const total = 500
	for i := 0; i < total; i++ {
		require.NoError(joiner.SendToHost(msgOrdered, payload(i)))
		if i%50 == 0 {
			n.step()
		}
	}
	require.True(n.run(30*time.Second, func() bool { return len(ordered.order) >= total }))
	n.run(time.Second, nil)

	require.Len(ordered.order, total)
	for i, id := range ordered.order {
		require.Equal(uint16(i), id)
	}
	hostConn, _ := host.Conn(1)
	require.NotZero(hostConn.Stats().Buffered)
}

func TestUnreliableMessages(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	positions := newCounter()
	host := n.newSession("10.0.0.1")
	require.NoError(host.RegisterMessage(msgPosition, network.Definition{}, positions))
	require.NoError(host.Host("alice"))

	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.RegisterMessage(msgPosition, network.Definition{}, nil))
	require.NoError(joiner.Join("bob", host.LocalAddr()))
	require.True(n.run(time.Second, connected(host, joiner)))

	require.NoError(joiner.SendToHost(msgPosition, payload(7)))
	require.True(n.run(time.Second, func() bool { return positions.received[7] == 1 }))

	// connectionless messages are also accepted from unknown senders
	stranger := n.newSession("10.0.0.3")
	require.NoError(stranger.RegisterMessage(msgPosition, network.Definition{}, nil))
	require.NoError(stranger.Open())
	require.NoError(stranger.SendDirect(host.LocalAddr(), msgPosition, payload(8)))
	require.True(n.run(time.Second, func() bool { return positions.received[8] == 1 }))
}

func TestHostSendToHostIsLocal(t *testing.T) {
	n := newTestNet(t)
	c := newCounter()
	host := n.newSession("10.0.0.1")
	require.NoError(t, host.RegisterMessage(msgChat, network.Definition{Reliable: true}, c))
	require.NoError(t, host.Host("alice"))

	require.NoError(t, host.SendToHost(msgChat, payload(1)))
	require.Equal(t, 1, c.received[1])
}

func TestRegisterAndSendErrors(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)
	s := n.newSession("10.0.0.1")

	require.ErrorIs(s.RegisterMessage(protocol.NetMsgJoinAccept, network.Definition{}, nil), ErrReservedMessageType)
	require.ErrorIs(s.RegisterMessage(msgChat, network.Definition{Sequenced: true}, nil), network.ErrSequencedUnreliable)
	require.NoError(s.RegisterMessage(msgChat, network.Definition{Reliable: true}, nil))
	require.ErrorIs(s.RegisterMessage(msgChat, network.Definition{}, nil), network.ErrMessageTypeInUse)

	require.ErrorIs(s.SendToHost(msgPosition, nil), ErrUnknownMessageType)
	require.ErrorIs(s.SendToHost(msgChat, nil), ErrNotConnected)
	require.ErrorIs(s.SendToAll(msgChat, nil), ErrNotConnected)
	require.ErrorIs(s.SendDirect(n.addr("10.0.0.2"), msgChat, nil), ErrDirectReliable)

	require.NoError(s.Host("alice"))
	require.ErrorIs(s.SendToHost(msgChat, make([]byte, protocol.NetMaxPayload+1)), network.ErrPayloadTooLarge)
	require.ErrorIs(s.SendTo(3, msgChat, nil), ErrNotConnected)
}

func TestMalformedDatagrams(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	host := n.newSession("10.0.0.1")
	require.NoError(host.Host("alice"))

	raw, err := n.network.Listen(n.addr("10.0.0.9"))
	require.NoError(err)

	// too short for a header
	require.NoError(raw.WriteTo(host.LocalAddr(), []byte{1, 2, 3}))
	// a message claiming more bytes than the packet holds
	packet := network.PacketHeader{Sender: protocol.NetConnIndexNone, AckID: 0, MostRecentAck: protocol.NetAckInvalid}.Append(nil)
	require.NoError(raw.WriteTo(host.LocalAddr(), append(packet, 0, 50, byte(protocol.NetMsgPing))))
	// a message that requires a connection from an unknown sender
	w := network.NewPacketWriter(nil, network.PacketHeader{Sender: 3, MostRecentAck: protocol.NetAckInvalid})
	require.NoError(w.WriteMessage(controlMessage(protocol.NetMsgLeave, nil)))
	require.NoError(raw.WriteTo(host.LocalAddr(), w.Bytes()))
	// a datagram beyond the packet size limit
	require.NoError(raw.WriteTo(host.LocalAddr(), make([]byte, protocol.NetMaxPacketSize+1)))

	n.step()

	stats := host.Stats()
	require.Equal(uint64(4), stats.DatagramsReceived)
	require.Equal(uint64(3), stats.FramingErrors)
	require.Equal(uint64(1), stats.Rejected)
	require.Equal(protocol.SessionStateConnected, host.State())
	require.Len(host.Conns(), 1)
}

// hostPacket builds a packet as the host at index 0 sends it.
func hostPacket(t *testing.T, msgs ...network.Message) []byte {
	t.Helper()
	w := network.NewPacketWriter(nil, network.PacketHeader{Sender: protocol.NetConnIndexHost, MostRecentAck: protocol.NetAckInvalid})
	for _, msg := range msgs {
		require.NoError(t, w.WriteMessage(msg))
	}
	return w.Bytes()
}

func TestJoinAcceptMovesHostAddress(t *testing.T) {
	require := require.New(t)
	n := newTestNet(t)

	joined, err := n.network.Listen(n.addr("10.0.0.1"))
	require.NoError(err)
	answering, err := n.network.Listen(n.addr("10.0.0.3"))
	require.NoError(err)

	c := newCounter()
	joiner := n.newSession("10.0.0.2")
	require.NoError(joiner.RegisterMessage(msgChat, network.Definition{RequiresConnection: true, Reliable: true}, c))
	require.NoError(joiner.Join("bob", joined.LocalAddr()))

	hostInfo := ConnInfo{Index: protocol.NetConnIndexHost, Addr: answering.LocalAddr(), PeerID: "alice"}
	localInfo := ConnInfo{Index: 1, Addr: joiner.LocalAddr(), PeerID: "bob"}
	accept := controlMessage(protocol.NetMsgJoinAccept, packJoinAccept(hostInfo, localInfo))
	accept.ReliableID = 0
	chat := network.NewMessage(msgChat, network.Definition{RequiresConnection: true, Reliable: true}, payload(7))
	chat.ReliableID = 1

	// application traffic that overtook a lost accept is not delivered
	require.NoError(joined.WriteTo(joiner.LocalAddr(), hostPacket(t, chat)))
	n.step()
	require.Equal(protocol.SessionStateJoining, joiner.State())
	require.Empty(c.order)
	require.Equal(uint64(1), joiner.Stats().Rejected)

	// only an accept is attributed to the host from an unknown address
	require.NoError(answering.WriteTo(joiner.LocalAddr(), hostPacket(t, chat)))
	n.step()
	require.Equal(protocol.SessionStateJoining, joiner.State())
	require.Equal(uint64(1), joiner.Stats().Connectionless)

	// the resent accept together with the resent message
	require.NoError(answering.WriteTo(joiner.LocalAddr(), hostPacket(t, accept, chat)))
	n.step()
	require.Equal(protocol.SessionStateConnected, joiner.State())
	require.Equal(protocol.ConnIndex(1), joiner.LocalConn().Index())
	require.Equal(answering.LocalAddr(), joiner.HostConn().Addr())
	require.Equal([]uint16{7}, c.order)

	// the joined address is no longer the host
	chat.ReliableID = 2
	require.NoError(joined.WriteTo(joiner.LocalAddr(), hostPacket(t, chat)))
	n.step()
	require.Equal([]uint16{7}, c.order)
	require.Equal(uint64(2), joiner.Stats().Connectionless)
}

func TestControlPayloads(t *testing.T) {
	require := require.New(t)

	hostInfo := ConnInfo{Index: 0, Addr: netip.MustParseAddrPort("10.0.0.1:8303"), PeerID: "alice"}
	localInfo := ConnInfo{Index: 4, Addr: netip.MustParseAddrPort("10.0.0.2:49152"), PeerID: "bob"}

	data := packJoinAccept(hostInfo, localInfo)
	require.Equal([]byte{0, 0x20, 0x6F, 10, 0, 0, 1, 'a', 'l', 'i', 'c', 'e', 0}, data[:13])

	gotHost, gotLocal, err := unpackJoinAccept(data)
	require.NoError(err)
	require.Equal(hostInfo, gotHost)
	require.Equal(localInfo, gotLocal)

	_, _, err = unpackJoinAccept(data[:10])
	require.ErrorIs(err, ErrInvalidControlMessage)

	reason, err := unpackJoinDeny(packJoinDeny(protocol.ErrSessionFull))
	require.NoError(err)
	require.Equal(protocol.ErrSessionFull, reason)

	_, err = unpackJoinRequest(packJoinRequest(""))
	require.ErrorIs(err, ErrInvalidPeerID)

	require.Len(NewPeerID(), protocol.NetMaxPeerIDSize)
	require.NoError(ValidatePeerID(NewPeerID()))
}
