package econ

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jxsl13/netsession/internal/logging"
	"github.com/pterm/pterm"
	"github.com/reiver/go-telnet"
)

const (
	passwordPrompt = "Enter password:"
	authSuccess    = "Authentication successful. External console access granted."
	logoutCommand  = "logout"

	maxLineLength = 1024
	outboxSize    = 256
)

var (
	ErrServerClosed = errors.New("econ server closed")
	ErrNoPassword   = errors.New("econ password is empty")
	ErrLineTooLong  = errors.New("line too long")
)

// Request is a command line entered in a console. The console waits for
// Reply before it accepts the next line.
type Request struct {
	Line  string
	reply chan []string
}

// Reply sends the output of the command back to the console.
// Only the first call has an effect.
func (r Request) Reply(lines ...string) {
	select {
	case r.reply <- lines:
	default:
	}
}

// Server is the external console of a netsession peer. Authenticated
// consoles submit their command lines to the Requests channel, the owner
// of the session executes them and replies.
type Server struct {
	password     string
	authAttempts int
	logger       *pterm.Logger
	requests     chan Request

	mu       sync.Mutex
	consoles map[*console]struct{}
	listener *trackingListener

	closed    chan struct{}
	closeOnce sync.Once
}

func NewServer(password string, opts ...ServerOption) *Server {
	s := &Server{
		password:     password,
		authAttempts: 3,
		logger:       logging.Default(),
		requests:     make(chan Request),
		consoles:     make(map[*console]struct{}),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Requests delivers the command lines of all authenticated consoles.
func (s *Server) Requests() <-chan Request {
	return s.requests
}

// ListenAndServe listens on the TCP address addr and serves consoles.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts consoles on l until Close is called. It always returns
// a non nil error, ErrServerClosed after Close.
func (s *Server) Serve(l net.Listener) error {
	if s.password == "" {
		_ = l.Close()
		return ErrNoPassword
	}

	tl := newTrackingListener(l)
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	default:
	}
	s.listener = tl
	s.mu.Unlock()

	s.logger.Info("econ listening", s.logger.Args("addr", l.Addr().String()))
	srv := &telnet.Server{
		Handler: s,
		Logger:  telnetLogger{s.logger},
	}
	err := srv.Serve(tl)
	select {
	case <-s.closed:
		return ErrServerClosed
	default:
		return err
	}
}

// Close stops accepting consoles and disconnects all connected ones.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		tl := s.listener
		s.mu.Unlock()
		if tl != nil {
			err = tl.Close()
		}
	})
	return err
}

// Broadcast writes line to every authenticated console.
func (s *Server) Broadcast(line string) {
	s.mu.Lock()
	consoles := make([]*console, 0, len(s.consoles))
	for c := range s.consoles {
		consoles = append(consoles, c)
	}
	s.mu.Unlock()

	for _, c := range consoles {
		select {
		case c.outbox <- line:
		default:
			s.logger.Debug("console is not reading, dropped broadcast", s.logger.Args("line", line))
		}
	}
}

// NumConsoles is the number of authenticated consoles.
func (s *Server) NumConsoles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consoles)
}

// ServeTELNET implements telnet.Handler.
func (s *Server) ServeTELNET(_ telnet.Context, w telnet.Writer, r telnet.Reader) {
	c := &console{
		w:      w,
		r:      r,
		outbox: make(chan string, outboxSize),
		done:   make(chan struct{}),
	}

	if !s.authenticate(c) {
		return
	}
	defer s.remove(c)
	go c.writeLoop()
	defer close(c.done)

	for {
		line, err := c.readLine()
		if err != nil {
			s.logger.Debug("console disconnected", s.logger.Args("error", err))
			return
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case logoutCommand:
			s.logger.Info("console logged out")
			return
		}

		output, ok := s.submit(line)
		if !ok {
			return
		}
		for _, l := range output {
			select {
			case c.outbox <- l:
			case <-c.done:
				return
			case <-s.closed:
				return
			}
		}
	}
}

func (s *Server) authenticate(c *console) bool {
	for attempt := 1; attempt <= s.authAttempts; attempt++ {
		if err := c.writeLine(passwordPrompt); err != nil {
			return false
		}
		pw, err := c.readLine()
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(pw), []byte(s.password)) == 1 {
			// registered before the success line so that no broadcast is missed
			s.add(c)
			if err := c.writeLine(authSuccess); err != nil {
				s.remove(c)
				return false
			}
			s.logger.Info("console authenticated")
			return true
		}
		s.logger.Warn("console used a wrong password", s.logger.Args("attempt", attempt))
		if err := c.writeLine(fmt.Sprintf("Wrong password %d/%d.", attempt, s.authAttempts)); err != nil {
			return false
		}
	}
	return false
}

func (s *Server) submit(line string) ([]string, bool) {
	req := Request{Line: line, reply: make(chan []string, 1)}
	select {
	case s.requests <- req:
	case <-s.closed:
		return nil, false
	}
	select {
	case output := <-req.reply:
		return output, true
	case <-s.closed:
		return nil, false
	}
}

func (s *Server) add(c *console) {
	s.mu.Lock()
	s.consoles[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) remove(c *console) {
	s.mu.Lock()
	delete(s.consoles, c)
	s.mu.Unlock()
}

// console is a single telnet session. After the login all lines are
// written by writeLoop.
type console struct {
	r      telnet.Reader
	w      telnet.Writer
	outbox chan string
	done   chan struct{}
}

// readLine reads single bytes until it hits a linebreak.
func (c *console) readLine() (string, error) {
	var (
		sb  strings.Builder
		buf [1]byte
	)
	for {
		n, err := c.r.Read(buf[:])
		if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case '\n':
			return sb.String(), nil
		case '\r', 0:
		default:
			if sb.Len() >= maxLineLength {
				return "", ErrLineTooLong
			}
			sb.WriteByte(buf[0])
		}
	}
}

func (c *console) writeLoop() {
	for {
		select {
		case line := <-c.outbox:
			if c.writeLine(line) != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *console) writeLine(line string) error {
	stream := []byte(line + "\n")
	for len(stream) > 0 {
		n, err := c.w.Write(stream)
		if err != nil {
			return err
		}
		stream = stream[n:]
	}
	return nil
}

// trackingListener remembers accepted connections in order to close them
// together with the listener.
type trackingListener struct {
	net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func newTrackingListener(l net.Listener) *trackingListener {
	return &trackingListener{
		Listener: l,
		conns:    make(map[net.Conn]struct{}),
	}
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return nil, net.ErrClosed
	}
	tc := &trackedConn{Conn: conn, l: l}
	l.conns[tc] = struct{}{}
	return tc, nil
}

func (l *trackingListener) Close() error {
	err := l.Listener.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for conn := range l.conns {
		_ = conn.(*trackedConn).Conn.Close()
	}
	clear(l.conns)
	return err
}

type trackedConn struct {
	net.Conn
	l    *trackingListener
	once sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() {
		c.l.mu.Lock()
		delete(c.l.conns, c)
		c.l.mu.Unlock()
	})
	return c.Conn.Close()
}

// telnetLogger forwards the logs of the telnet server to pterm.
type telnetLogger struct {
	logger *pterm.Logger
}

func (l telnetLogger) Debug(v ...any)                 { l.logger.Trace(fmt.Sprint(v...)) }
func (l telnetLogger) Debugf(format string, v ...any) { l.logger.Trace(fmt.Sprintf(format, v...)) }
func (l telnetLogger) Debugln(v ...any)               { l.logger.Trace(fmt.Sprint(v...)) }
func (l telnetLogger) Error(v ...any)                 { l.logger.Error(fmt.Sprint(v...)) }
func (l telnetLogger) Errorf(format string, v ...any) { l.logger.Error(fmt.Sprintf(format, v...)) }
func (l telnetLogger) Errorln(v ...any)               { l.logger.Error(fmt.Sprint(v...)) }
func (l telnetLogger) Trace(v ...any)                 { l.logger.Trace(fmt.Sprint(v...)) }
func (l telnetLogger) Tracef(format string, v ...any) { l.logger.Trace(fmt.Sprintf(format, v...)) }
func (l telnetLogger) Traceln(v ...any)               { l.logger.Trace(fmt.Sprint(v...)) }
func (l telnetLogger) Warn(v ...any)                  { l.logger.Warn(fmt.Sprint(v...)) }
func (l telnetLogger) Warnf(format string, v ...any)  { l.logger.Warn(fmt.Sprintf(format, v...)) }
func (l telnetLogger) Warnln(v ...any)                { l.logger.Warn(fmt.Sprint(v...)) }
