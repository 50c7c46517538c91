package network

import (
	"errors"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
)

// PacketConn is a non-blocking datagram endpoint.
// ReadFrom returns zero bytes and no error when nothing is pending.
type PacketConn interface {
	ReadFrom(buf []byte) (n int, addr netip.AddrPort, err error)
	WriteTo(addr netip.AddrPort, data []byte) error
	LocalAddr() netip.AddrPort
	Close() error
}

type datagram struct {
	addr netip.AddrPort
	data []byte
}

const (
	// number of datagrams buffered between the socket reader and ReadFrom
	netSocketBacklog = 1024
	receiveSize      = 65536
)

func NewNetSocketFrom(bindAddr string, randomPort ...bool) (*NetSocket, error) {
	ap, err := netip.ParseAddrPort(bindAddr)
	if err != nil {
		return nil, err
	}

	return NewNetSocket(ap, randomPort...)
}

// NewNetSocket creates a new UDP socket for sending data to any IP.
// bindAddrPort expects an ip:port. In case the port is 0, the operating system will
// assign a random port.
// If you want a random high port in the range between 49152 and 65535, then
// pass a true as additional single extra parameter for 'randomPort'
func NewNetSocket(bindAddrPort netip.AddrPort, randomPort ...bool) (sock *NetSocket, err error) {
	randPort := len(randomPort) > 0 && randomPort[0]

	var conn *net.UDPConn
	const (
		portRange  = 16384
		maxRetries = 64
	)

	addr := bindAddrPort.Addr()
	if randPort {
		for retries := 0; retries < maxRetries; retries++ {
			port := uint16(49152 + rand.Int31n(portRange)) // <= 65535
			conn, err = net.ListenUDP("udp", net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, port)))
			if err == nil {
				break
			}
		}
	} else {
		conn, err = net.ListenUDP("udp", net.UDPAddrFromAddrPort(bindAddrPort))
	}
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	err = conn.SetReadBuffer(receiveSize)
	if err != nil {
		return nil, err
	}

	s := &NetSocket{
		socket: conn,
		recv:   make(chan datagram, netSocketBacklog),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// NetSocket is a UDP socket. A background reader feeds a bounded queue so
// that ReadFrom never blocks. Datagrams arriving while the queue is full are dropped.
type NetSocket struct {
	socket    *net.UDPConn
	recv      chan datagram
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func (s *NetSocket) readLoop() {
	defer close(s.done)
	buf := make([]byte, receiveSize)
	for {
		n, addr, err := s.socket.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// icmp errors and the like, the next read may succeed
			continue
		}
		d := datagram{
			// dual stack sockets report ipv4 peers as mapped ipv6 addresses
			addr: netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()),
			data: append(make([]byte, 0, n), buf[:n]...),
		}
		select {
		case s.recv <- d:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *NetSocket) Close() error {
	err := error(nil)
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.socket.Close()
		<-s.done
	})
	return err
}

func (s *NetSocket) LocalAddr() netip.AddrPort {
	ap := s.socket.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Dropped is the number of datagrams discarded because the receive queue was full.
func (s *NetSocket) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *NetSocket) WriteTo(addr netip.AddrPort, data []byte) error {
	if s.closed.Load() {
		return net.ErrClosed
	}
	_, err := s.socket.WriteToUDPAddrPort(data, addr)
	return err
}

func (s *NetSocket) ReadFrom(buf []byte) (n int, addr netip.AddrPort, err error) {
	select {
	case d := <-s.recv:
		return copy(buf, d.data), d.addr, nil
	default:
	}
	if s.closed.Load() {
		return 0, netip.AddrPort{}, net.ErrClosed
	}
	return 0, netip.AddrPort{}, nil
}
