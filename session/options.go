package session

import (
	"net/netip"
	"time"

	"github.com/jxsl13/netsession/internal/clock"
	"github.com/jxsl13/netsession/network"
	"github.com/pterm/pterm"
)

// OpenFunc creates the datagram endpoint of a session.
type OpenFunc func() (network.PacketConn, error)

// UDPOpener binds a UDP socket to addr.
func UDPOpener(addr netip.AddrPort) OpenFunc {
	return func() (network.PacketConn, error) {
		return network.NewNetSocket(addr)
	}
}

// MemoryOpener binds an endpoint of an in-memory network to addr.
func MemoryOpener(mn *network.MemoryNetwork, addr netip.AddrPort) OpenFunc {
	return func() (network.PacketConn, error) {
		return mn.Listen(addr)
	}
}

type Option func(*Session)

// WithOpener sets how the datagram endpoint is created.
func WithOpener(open OpenFunc) Option {
	return func(s *Session) {
		s.open = open
	}
}

// WithClock sets the time source the update loop is driven by.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithNotifier sets the receiver of connection lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

func WithLogger(l *pterm.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSimulation enables simulated network conditions on incoming datagrams.
func WithSimulation(sim network.Simulation) Option {
	return func(s *Session) {
		s.sim = sim
	}
}

// WithMaxConnections limits the connections of a hosted session, including the host.
func WithMaxConnections(n int) Option {
	return func(s *Session) {
		s.maxConns = max(1, min(n, maxConnIndex))
	}
}

// WithHostTimeout sets how long a join attempt waits for an answer.
func WithHostTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.hostTimeout = d
	}
}

// WithConnTimeout sets the silence after which a peer is disconnected.
func WithConnTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.connTimeout = d
	}
}

// WithTickRate sets the number of packets sent to each peer per second.
func WithTickRate(hz int) Option {
	return func(s *Session) {
		s.sendInterval = time.Second / time.Duration(max(1, hz))
	}
}

// WithHeartbeatInterval sets the interval between two pings to every peer.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Session) {
		s.heartbeatInterval = d
	}
}
