package econ

import (
	"context"
	"time"

	"github.com/pterm/pterm"
)

type Option func(*Conn)

// WithContext sets the context that aborts reconnect attempts
func WithContext(ctx context.Context) Option {
	return func(c *Conn) {
		c.ctx = ctx
	}
}

// WithReconnectRetries sets the number of reconnect attempts after the connection
// was lost, a negative number retries forever and 0 disables reconnecting
func WithReconnectRetries(retries int) Option {
	return func(c *Conn) {
		c.reconnectRetries = retries
	}
}

// WithMaxReconnectDelay sets the maximum delay between reconnects
func WithMaxReconnectDelay(delay time.Duration) Option {
	return func(c *Conn) {
		c.maxReconnectDelay = delay
		c.reconnectDelay = min(c.reconnectDelay, delay)
	}
}

// WithOnConnectCommands sets the commands to be executed on connect
func WithOnConnectCommands(commands ...string) Option {
	return func(c *Conn) {
		c.authCommandList = commands
	}
}

type ServerOption func(*Server)

// WithLogger sets the logger of the console server
func WithLogger(l *pterm.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithAuthAttempts sets the number of wrong passwords after which a console is disconnected
func WithAuthAttempts(attempts int) ServerOption {
	return func(s *Server) {
		s.authAttempts = max(1, attempts)
	}
}

// WithRequestBacklog sets the number of commands that may wait for execution
func WithRequestBacklog(backlog int) ServerOption {
	return func(s *Server) {
		s.requests = make(chan Request, max(0, backlog))
	}
}
