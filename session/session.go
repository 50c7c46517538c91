package session

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/jxsl13/netsession/internal/clock"
	"github.com/jxsl13/netsession/internal/logging"
	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/protocol"
	"github.com/pterm/pterm"
)

var (
	ErrReservedMessageType = errors.New("message type is reserved for control messages")
	ErrUnknownMessageType  = errors.New("message type is not registered")
	ErrAlreadyConnected    = errors.New("session is already connected")
	ErrNotConnected        = errors.New("session is not connected")
	ErrDirectReliable      = errors.New("reliable messages cannot be sent directly")
	ErrClosed              = errors.New("session closed")
)

// the number of assignable connection indices
const maxConnIndex = int(protocol.NetConnIndexNone)

// Stats are the diagnostic counters of a session.
type Stats struct {
	DatagramsReceived uint64
	FramingErrors     uint64
	// Connectionless counts packets that did not originate from a known connection.
	Connectionless uint64
	// Rejected counts messages that require a connection but arrived without an
	// established one.
	Rejected  uint64
	Unhandled uint64

	Channel network.ChannelStats
}

// New creates a session in the initial state. The datagram endpoint is
// opened by Open or implicitly by Host and Join.
func New(opts ...Option) *Session {
	s := &Session{
		state:             protocol.SessionStateInitial,
		open:              UDPOpener(netip.AddrPortFrom(netip.IPv4Unspecified(), 0)),
		clock:             clock.System{},
		notifier:          nopNotifier{},
		logger:            logging.Default(),
		maxConns:          protocol.NetMaxConnections,
		hostTimeout:       protocol.NetHostTimeout,
		connTimeout:       protocol.NetConnTimeout,
		sendInterval:      protocol.NetSendInterval,
		heartbeatInterval: protocol.NetHeartbeatInterval,
		listening:         true,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handlers[protocol.NetMsgPing] = HandlerFunc(s.handlePing)
	s.handlers[protocol.NetMsgPong] = HandlerFunc(s.handlePong)
	s.handlers[protocol.NetMsgJoinRequest] = HandlerFunc(s.handleJoinRequest)
	s.handlers[protocol.NetMsgJoinDeny] = HandlerFunc(s.handleJoinDeny)
	s.handlers[protocol.NetMsgJoinAccept] = HandlerFunc(s.handleJoinAccept)
	s.handlers[protocol.NetMsgLeave] = HandlerFunc(s.handleLeave)
	for t, def := range controlDefinitions {
		// control definitions are valid and unique
		_ = s.registry.Register(t, def)
	}
	return s
}

// Session owns all connections of one peer, runs the host, join and leave
// handshakes and dispatches received messages to their handlers.
// A Session is driven by calling Update periodically and must not be used
// from multiple goroutines concurrently.
type Session struct {
	state     protocol.SessionState
	lastError protocol.ErrorCode
	listening bool

	open    OpenFunc
	channel *network.LossyChannel
	sim     network.Simulation

	registry network.Registry
	handlers [256]MessageHandler

	conns    []*network.Conn
	local    *network.Conn
	host     *network.Conn
	maxConns int

	clock             clock.Clock
	lastUpdate        time.Time
	hostTimeout       time.Duration
	hostTimer         time.Duration
	connTimeout       time.Duration
	sendInterval      time.Duration
	sendTimer         time.Duration
	heartbeatInterval time.Duration
	heartbeatTimer    time.Duration

	notifier Notifier
	logger   *pterm.Logger

	stats     Stats
	recvBuf   [2 * protocol.NetMaxPacketSize]byte
	directBuf []byte
}

// Open creates the datagram endpoint and moves from Initial to Unconnected.
func (s *Session) Open() error {
	if s.channel != nil {
		return nil
	}
	conn, err := s.open()
	if err != nil {
		s.lastError = protocol.ErrHostNotCreateSocket
		return fmt.Errorf("%w: %w", protocol.ErrHostNotCreateSocket, err)
	}
	s.channel = network.NewLossyChannel(conn,
		network.WithChannelClock(s.clock),
		network.WithChannelLogger(s.logger),
		network.WithSimulation(s.sim),
	)
	s.lastUpdate = s.clock.Now()
	s.state = protocol.SessionStateUnconnected
	s.logger.Debug("session opened", s.logger.Args("addr", conn.LocalAddr()))
	return nil
}

// Close leaves the session and closes the datagram endpoint.
func (s *Session) Close() error {
	if s.channel == nil {
		return nil
	}
	s.leave(protocol.ErrNone)
	err := s.channel.Close()
	s.channel = nil
	s.state = protocol.SessionStateInitial
	return err
}

// RegisterMessage adds an application message type. t must not be a control message type.
func (s *Session) RegisterMessage(t protocol.MsgType, def network.Definition, handler MessageHandler) error {
	if t.IsControl() {
		return fmt.Errorf("%w: %d", ErrReservedMessageType, t)
	}
	if err := s.registry.Register(t, def); err != nil {
		return err
	}
	s.handlers[t] = handler
	return nil
}

func (s *Session) State() protocol.SessionState {
	return s.state
}

// LastError is the reason of the last involuntary leave or failed operation.
func (s *Session) LastError() protocol.ErrorCode {
	return s.lastError
}

// IsHost is true while this session hosts other peers.
func (s *Session) IsHost() bool {
	return s.local != nil && s.local == s.host
}

func (s *Session) IsListening() bool {
	return s.listening
}

// SetListening opens or closes a hosted session to new peers.
func (s *Session) SetListening(listening bool) {
	s.listening = listening
}

// LocalAddr is the address of the datagram endpoint, invalid before Open.
func (s *Session) LocalAddr() netip.AddrPort {
	if s.channel == nil {
		return netip.AddrPort{}
	}
	return s.channel.LocalAddr()
}

func (s *Session) LocalConn() *network.Conn {
	return s.local
}

func (s *Session) HostConn() *network.Conn {
	return s.host
}

// Conns returns all connections including the local one.
func (s *Session) Conns() []*network.Conn {
	return append([]*network.Conn(nil), s.conns...)
}

// Conn returns the connection with the given index.
func (s *Session) Conn(index protocol.ConnIndex) (*network.Conn, bool) {
	for _, c := range s.conns {
		if c.Index() == index && index.IsValid() {
			return c, true
		}
	}
	return nil, false
}

func (s *Session) Stats() Stats {
	stats := s.stats
	if s.channel != nil {
		stats.Channel = s.channel.Stats()
	}
	return stats
}

// Simulation returns the simulated network conditions.
func (s *Session) Simulation() network.Simulation {
	return s.sim
}

// SetSimulation changes the simulated network conditions of incoming datagrams.
func (s *Session) SetSimulation(sim network.Simulation) {
	s.sim = sim
	if s.channel != nil {
		s.channel.SetSimulation(sim)
	}
}

func (s *Session) owns(c *network.Conn) bool {
	for _, conn := range s.conns {
		if conn == c {
			return true
		}
	}
	return false
}

// resolve finds the remote connection a packet was sent by.
func (s *Session) resolve(index protocol.ConnIndex, addr netip.AddrPort) *network.Conn {
	if !index.IsValid() {
		return nil
	}
	for _, c := range s.conns {
		if !c.IsLocal() && c.Index() == index && c.Addr() == addr {
			return c
		}
	}
	return nil
}

func (s *Session) connByAddr(addr netip.AddrPort) *network.Conn {
	for _, c := range s.conns {
		if !c.IsLocal() && c.Addr() == addr {
			return c
		}
	}
	return nil
}

func (s *Session) peerIDInUse(peerID string) bool {
	for _, c := range s.conns {
		if c.PeerID() == peerID {
			return true
		}
	}
	return false
}

// nextFreeIndex returns the lowest unused index after the host index.
func (s *Session) nextFreeIndex() (protocol.ConnIndex, bool) {
	var used [maxConnIndex]bool
	for _, c := range s.conns {
		if c.Index().IsValid() {
			used[c.Index()] = true
		}
	}
	for i := int(protocol.NetConnIndexHost) + 1; i < maxConnIndex; i++ {
		if !used[i] {
			return protocol.ConnIndex(i), true
		}
	}
	return protocol.NetConnIndexNone, false
}

func (s *Session) localIndex() protocol.ConnIndex {
	if s.local == nil {
		return protocol.NetConnIndexNone
	}
	return s.local.Index()
}

func (s *Session) notify(t EventType, c *network.Conn, reason protocol.ErrorCode) {
	s.notifier.Notify(Event{
		Type:   t,
		Index:  c.Index(),
		PeerID: c.PeerID(),
		Addr:   c.Addr(),
		Local:  c.IsLocal(),
		Reason: reason,
	})
}
