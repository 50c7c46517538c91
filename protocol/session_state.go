package protocol

const (
	SessionStateInitial     SessionState = 0
	SessionStateUnconnected SessionState = 1
	SessionStateConnected   SessionState = 2
	SessionStateHosting     SessionState = 3
	SessionStateJoining     SessionState = 4
)

type SessionState int

func (s SessionState) String() string {
	switch s {
	case SessionStateInitial:
		return "initial"
	case SessionStateUnconnected:
		return "unconnected"
	case SessionStateConnected:
		return "connected"
	case SessionStateHosting:
		return "hosting"
	case SessionStateJoining:
		return "joining"
	default:
		return "unknown"
	}
}
