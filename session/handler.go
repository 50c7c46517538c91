package session

import (
	"net/netip"

	"github.com/jxsl13/netsession/network"
)

// Sender identifies the origin of a received message.
type Sender struct {
	// Conn is nil for messages that did not arrive from a known connection.
	Conn *network.Conn
	Addr netip.AddrPort
}

// MessageHandler is invoked for every delivered message of the type it
// was registered for. Handlers run inside Session.Update.
type MessageHandler interface {
	HandleMessage(from Sender, msg network.Message)
}

type HandlerFunc func(from Sender, msg network.Message)

func (f HandlerFunc) HandleMessage(from Sender, msg network.Message) {
	f(from, msg)
}
