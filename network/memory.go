package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
)

var ErrAddrInUse = errors.New("address already in use")

// memoryBacklog bounds the datagrams queued per endpoint, excess is dropped like
// a full socket buffer would.
const memoryBacklog = 4096

// NewMemoryNetwork creates an empty in-process datagram network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		conns:    make(map[netip.AddrPort]*MemoryConn),
		nextPort: 49152,
	}
}

// MemoryNetwork delivers datagrams between MemoryConns without sockets.
// Datagrams sent to addresses nobody listens on are discarded.
type MemoryNetwork struct {
	mu       sync.Mutex
	conns    map[netip.AddrPort]*MemoryConn
	nextPort uint16
}

// Listen binds a new endpoint. Port 0 picks an unused port.
func (n *MemoryNetwork) Listen(addr netip.AddrPort) (*MemoryConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if addr.Port() == 0 {
		for {
			candidate := netip.AddrPortFrom(addr.Addr(), n.nextPort)
			n.nextPort++
			if n.nextPort == 0 {
				n.nextPort = 49152
			}
			if _, found := n.conns[candidate]; !found {
				addr = candidate
				break
			}
		}
	} else if _, found := n.conns[addr]; found {
		return nil, fmt.Errorf("%w: %s", ErrAddrInUse, addr)
	}

	c := &MemoryConn{network: n, addr: addr}
	n.conns[addr] = c
	return c, nil
}

func (n *MemoryNetwork) deliver(from, to netip.AddrPort, data []byte) {
	n.mu.Lock()
	dst, found := n.conns[to]
	n.mu.Unlock()
	if !found {
		return
	}
	dst.push(datagram{addr: from, data: append(make([]byte, 0, len(data)), data...)})
}

func (n *MemoryNetwork) remove(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.conns, addr)
}

// MemoryConn is an endpoint of a MemoryNetwork.
type MemoryConn struct {
	network *MemoryNetwork
	addr    netip.AddrPort

	mu     sync.Mutex
	queue  []datagram
	closed bool
}

func (c *MemoryConn) push(d datagram) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.queue) >= memoryBacklog {
		return
	}
	c.queue = append(c.queue, d)
}

func (c *MemoryConn) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, netip.AddrPort{}, net.ErrClosed
	}
	if len(c.queue) == 0 {
		return 0, netip.AddrPort{}, nil
	}
	d := c.queue[0]
	c.queue[0] = datagram{}
	c.queue = c.queue[1:]
	return copy(buf, d.data), d.addr, nil
}

func (c *MemoryConn) WriteTo(addr netip.AddrPort, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return net.ErrClosed
	}
	c.network.deliver(c.addr, addr, data)
	return nil
}

func (c *MemoryConn) LocalAddr() netip.AddrPort {
	return c.addr
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	c.network.remove(c.addr)
	return nil
}
