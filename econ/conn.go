package econ

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jxsl13/netsession/internal"
	"github.com/reiver/go-telnet"
)

var (
	// ErrNetwork is returned when some network related error occurrs
	ErrNetwork = errors.New("a network error occurred")
	// ErrInvalidPassword is returned when the passed password is incorrect and does not grant access
	ErrInvalidPassword = errors.New("invalid password")
	// ErrClosed is returned by operations on a closed connection
	ErrClosed = errors.New("econ connection closed")
	// ErrUnexpectedLine is returned when the console does not follow the login protocol
	ErrUnexpectedLine = errors.New("unexpected line")
)

// Conn is the telnet connection to the external console (econ) of a netsession peer
type Conn struct {
	ctx        context.Context
	telnetConn *telnet.Conn

	address           string
	password          string
	reconnectRetries  int
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	authCommandList   []string

	isClosed  bool
	closeOnce sync.Once
}

// Close must be called when the connection is to be quit
func (c *Conn) Close() error {
	err := error(nil)
	c.closeOnce.Do(func() {
		_ = c.logout()
		c.isClosed = true
		err = c.telnetConn.Close()
	})
	return err
}

func (c *Conn) logout() error {
	return c.unguardedWriteLine(logoutCommand)
}

// ReadLine reads a line from the external console
// if the connection is lost, it attempts to reconnect multiple times before
// trying to read the line again.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.unguardedReadLine()
	if err == nil {
		// line read successfully
		return line, nil
	}
	// failed to get line
	recErr := c.reconnect()
	if recErr != nil {
		return "", fmt.Errorf("%w: %v", err, recErr)
	}
	return c.unguardedReadLine()
}

// no reconnect mechanisms guard this line reading
func (c *Conn) unguardedReadLine() (string, error) {
	if c.isClosed {
		return "", ErrClosed
	}
	// telnet.Conn.Read blocks until the whole buffer is filled
	var (
		sb  strings.Builder
		buf [1]byte
	)
	for {
		n, err := c.telnetConn.Read(buf[:])
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNetwork, err)
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

// WriteLine writes a line to the external console and forces its execution by appending a \n
func (c *Conn) WriteLine(line string) error {
	err := c.unguardedWriteLine(line)
	if err == nil {
		return nil
	}
	recErr := c.reconnect()
	if recErr != nil {
		return fmt.Errorf("%w: %v", err, recErr)
	}
	return c.unguardedWriteLine(line)
}

// Execute writes a command line and reads the given number of response lines.
func (c *Conn) Execute(line string, responseLines int) ([]string, error) {
	if err := c.WriteLine(line); err != nil {
		return nil, err
	}
	lines := make([]string, 0, responseLines)
	for len(lines) < responseLines {
		l, err := c.unguardedReadLine()
		if err != nil {
			return lines, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (c *Conn) unguardedWriteLine(line string) error {
	if c.isClosed {
		return ErrClosed
	}
	stream := []byte(line + "\n")

	for len(stream) > 0 {
		n, err := c.telnetConn.Write(stream)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		stream = stream[n:]
	}
	return nil
}

func (c *Conn) reconnect() error {
	if c.isClosed {
		return ErrClosed
	}
	_ = c.telnetConn.Close() // ignore possible error

	backoff := internal.NewBackoffPolicy(c.reconnectDelay, c.maxReconnectDelay)
	err := fmt.Errorf("%w: reconnecting is disabled", ErrNetwork)

	// negative retries retry forever
	for retry := 0; c.reconnectRetries < 0 || retry < c.reconnectRetries; retry++ {
		if retry > 0 {
			select {
			case <-c.ctx.Done():
				return fmt.Errorf("%w: %w", err, c.ctx.Err())
			case <-time.After(backoff(retry)):
			}
		}

		err = c.connect()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidPassword) || errors.Is(err, ErrUnexpectedLine) {
			// failed to authenticate -> reconnect makes no sense
			return err
		}
	}
	return err
}

// connect dials the console, logs in and executes the on connect commands
func (c *Conn) connect() error {
	telnetConn, err := telnet.DialTo(c.address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	c.telnetConn = telnetConn

	err = c.authenticate()
	if err != nil {
		_ = telnetConn.Close()
		return err
	}

	for _, cmd := range c.authCommandList {
		if err := c.unguardedWriteLine(cmd); err != nil {
			return err
		}
	}
	return nil
}

// authenticate in the external console
func (c *Conn) authenticate() error {
	line, err := c.unguardedReadLine()
	if err != nil {
		// forward network error
		return err
	}

	if line != passwordPrompt {
		return fmt.Errorf("%w: could not find password request line: %s", ErrUnexpectedLine, line)
	}

	err = c.unguardedWriteLine(c.password)
	if err != nil {
		return err
	}

	line, err = c.unguardedReadLine()
	if err != nil {
		return err
	}

	if line != authSuccess {
		return fmt.Errorf("%w: %s", ErrInvalidPassword, line)
	}
	return nil
}

// DialTo connects to the econ address of a netsession peer and tries to log in.
// address is the <IP>:<PORT> of the ec_bind setting, password the ec_password.
func DialTo(address, password string, options ...Option) (*Conn, error) {
	c := &Conn{
		ctx:               context.Background(),
		address:           address,
		password:          password,
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
		reconnectRetries:  360,
	}
	for _, opt := range options {
		opt(c)
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}
