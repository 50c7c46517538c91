package network

import (
	"container/heap"
	"errors"
	"math/rand"
	"net"
	"net/netip"
	"time"

	"github.com/jxsl13/netsession/internal"
	"github.com/jxsl13/netsession/internal/clock"
	"github.com/jxsl13/netsession/internal/logging"
	"github.com/jxsl13/netsession/protocol"
	"github.com/pterm/pterm"
	"golang.org/x/time/rate"
)

const (
	// channelReadSize allows to detect datagrams that exceed the packet size
	channelReadSize = 2 * protocol.NetMaxPacketSize

	minSendBackoff = 10 * time.Millisecond
	maxSendBackoff = time.Second
)

// Simulation describes the adverse conditions applied to incoming datagrams.
// The zero value passes every datagram through untouched.
type Simulation struct {
	// DropRate is the probability in [0,1] that a datagram is discarded.
	DropRate float64
	// DuplicateRate is the probability in [0,1] that a datagram is delivered twice.
	DuplicateRate float64
	// every datagram is held back for a random delay in [MinDelay, MaxDelay]
	MinDelay time.Duration
	MaxDelay time.Duration
	// Seed of the random source, 0 seeds from the current time.
	Seed int64
}

// Enabled is false for a pass through simulation.
func (s Simulation) Enabled() bool {
	return s.DropRate > 0 || s.DuplicateRate > 0 || s.MaxDelay > 0 || s.MinDelay > 0
}

// ChannelStats are the diagnostic counters of a LossyChannel.
type ChannelStats struct {
	Received       uint64
	Dropped        uint64
	Duplicated     uint64
	Delayed        uint64
	Sent           uint64
	SendFailures   uint64
	SendsBackedOff uint64
}

type ChannelOption func(*LossyChannel)

// WithChannelClock sets the time source used for delays and backoff.
func WithChannelClock(c clock.Clock) ChannelOption {
	return func(lc *LossyChannel) {
		lc.clock = c
	}
}

func WithChannelLogger(l *pterm.Logger) ChannelOption {
	return func(lc *LossyChannel) {
		lc.logger = l
	}
}

func WithSimulation(sim Simulation) ChannelOption {
	return func(lc *LossyChannel) {
		lc.SetSimulation(sim)
	}
}

// NewLossyChannel wraps conn.
func NewLossyChannel(conn PacketConn, opts ...ChannelOption) *LossyChannel {
	lc := &LossyChannel{
		conn:   conn,
		clock:  clock.System{},
		logger: logging.Default(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		errLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(lc)
	}
	lc.backoff = internal.NewBackoffPolicyFrom(lc.rand, minSendBackoff, maxSendBackoff)
	return lc
}

// LossyChannel is the datagram transport of a session. It optionally drops,
// duplicates and delays incoming datagrams. Delayed datagrams are kept in a
// queue ordered by delivery time and released by ReadFrom once due, which
// reorders datagrams with different delays.
// A failing send puts the channel into a backoff window during which
// outgoing datagrams are discarded.
type LossyChannel struct {
	conn   PacketConn
	clock  clock.Clock
	logger *pterm.Logger

	sim     Simulation
	rand    *rand.Rand
	delayed delayQueue
	order   uint64
	scratch [channelReadSize]byte

	backoff      internal.BackoffFunc
	sendFailures int
	backoffUntil time.Time
	errLog       *rate.Limiter

	stats ChannelStats
}

// SetSimulation replaces the simulated network conditions.
// Datagrams already delayed keep their delivery time.
func (c *LossyChannel) SetSimulation(sim Simulation) {
	c.sim = sim
	if sim.Seed != 0 {
		c.rand.Seed(sim.Seed)
	}
}

func (c *LossyChannel) Simulation() Simulation {
	return c.sim
}

func (c *LossyChannel) Stats() ChannelStats {
	return c.stats
}

func (c *LossyChannel) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr()
}

func (c *LossyChannel) Close() error {
	c.delayed = c.delayed[:0]
	return c.conn.Close()
}

// ReadFrom returns the next deliverable datagram or zero bytes if there is none.
// It never blocks. Only errors that render the channel unusable are returned.
func (c *LossyChannel) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	now := c.clock.Now()
	for {
		if len(c.delayed) > 0 && !c.delayed[0].deliverAt.After(now) {
			d := heap.Pop(&c.delayed).(delayedDatagram)
			return copy(buf, d.data), d.addr, nil
		}

		n, addr, err := c.conn.ReadFrom(c.scratch[:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return 0, netip.AddrPort{}, err
			}
			c.logError(now, "failed to read datagram", err)
			return 0, netip.AddrPort{}, nil
		}
		if n == 0 {
			return 0, netip.AddrPort{}, nil
		}
		c.stats.Received++

		if !c.sim.Enabled() {
			return copy(buf, c.scratch[:n]), addr, nil
		}

		if c.sim.DropRate > 0 && c.rand.Float64() < c.sim.DropRate {
			c.stats.Dropped++
			continue
		}

		copies := 1
		if c.sim.DuplicateRate > 0 && c.rand.Float64() < c.sim.DuplicateRate {
			c.stats.Duplicated++
			copies++
		}
		for i := 0; i < copies; i++ {
			delay := c.sampleDelay()
			if delay > 0 {
				c.stats.Delayed++
			}
			c.order++
			heap.Push(&c.delayed, delayedDatagram{
				deliverAt: now.Add(delay),
				order:     c.order,
				addr:      addr,
				data:      append(make([]byte, 0, n), c.scratch[:n]...),
			})
		}
	}
}

func (c *LossyChannel) sampleDelay() time.Duration {
	lo, hi := c.sim.MinDelay, c.sim.MaxDelay
	if hi < lo {
		hi = lo
	}
	if hi <= 0 {
		return 0
	}
	if hi == lo {
		return lo
	}
	return lo + time.Duration(c.rand.Int63n(int64(hi-lo)+1))
}

// WriteTo sends a datagram. Send failures are absorbed: the channel backs
// off and discards outgoing datagrams until the backoff window passed.
func (c *LossyChannel) WriteTo(addr netip.AddrPort, data []byte) error {
	now := c.clock.Now()
	if now.Before(c.backoffUntil) {
		c.stats.SendsBackedOff++
		return nil
	}

	err := c.conn.WriteTo(addr, data)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return err
		}
		c.stats.SendFailures++
		wait := c.backoff(c.sendFailures)
		c.sendFailures++
		c.backoffUntil = now.Add(wait)
		c.logError(now, "failed to send datagram", err, "addr", addr, "backoff", wait)
		return nil
	}

	c.sendFailures = 0
	c.stats.Sent++
	return nil
}

func (c *LossyChannel) logError(now time.Time, msg string, err error, args ...any) {
	if !c.errLog.AllowN(now, 1) {
		return
	}
	c.logger.Warn(msg, c.logger.Args(append([]any{"error", err}, args...)...))
}

type delayedDatagram struct {
	deliverAt time.Time
	order     uint64
	addr      netip.AddrPort
	data      []byte
}

// delayQueue is a min heap by delivery time, equal times keep arrival order.
type delayQueue []delayedDatagram

func (q delayQueue) Len() int { return len(q) }
func (q delayQueue) Less(i, j int) bool {
	if q[i].deliverAt.Equal(q[j].deliverAt) {
		return q[i].order < q[j].order
	}
	return q[i].deliverAt.Before(q[j].deliverAt)
}
func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *delayQueue) Push(x any)   { *q = append(*q, x.(delayedDatagram)) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = delayedDatagram{}
	*q = old[:n-1]
	return item
}
