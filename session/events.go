package session

import (
	"net/netip"

	"github.com/jxsl13/netsession/protocol"
)

const (
	EventConnectionJoined  EventType = 1
	EventConnectionLeft    EventType = 2
	EventConnectionUpdated EventType = 3
)

type EventType int

func (e EventType) String() string {
	switch e {
	case EventConnectionJoined:
		return "connection-joined"
	case EventConnectionLeft:
		return "connection-left"
	case EventConnectionUpdated:
		return "connection-updated"
	default:
		return "unknown"
	}
}

// Event describes a connection lifecycle change.
type Event struct {
	Type   EventType
	Index  protocol.ConnIndex
	PeerID string
	Addr   netip.AddrPort
	Local  bool
	// Reason is set when the local connection left involuntarily.
	Reason protocol.ErrorCode
}

// Notifier is told about connection lifecycle events.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) {
	f(e)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
