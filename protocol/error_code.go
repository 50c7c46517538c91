package protocol

import "strconv"

// ErrorCode is the reason code carried by JoinDeny and surfaced when a
// session leaves involuntarily. Every code except ErrNone is an error.
type ErrorCode uint8

const (
	ErrNone                ErrorCode = 0
	ErrHostNotCreateSocket ErrorCode = 1
	ErrHostTimedOut        ErrorCode = 2
	ErrHostNotListening    ErrorCode = 3
	ErrNotHost             ErrorCode = 4
	ErrSessionFull         ErrorCode = 5
	ErrPeerIDInUse         ErrorCode = 6
	ErrHostDisconnected    ErrorCode = 7
)

func (e ErrorCode) Error() string {
	switch e {
	case ErrNone:
		return "no error"
	case ErrHostNotCreateSocket:
		return "could not create socket"
	case ErrHostTimedOut:
		return "host timed out"
	case ErrHostNotListening:
		return "host is not listening"
	case ErrNotHost:
		return "remote session is not hosting"
	case ErrSessionFull:
		return "session is full"
	case ErrPeerIDInUse:
		return "peer id already in use"
	case ErrHostDisconnected:
		return "host disconnected"
	default:
		return "unknown error code " + strconv.Itoa(int(e))
	}
}

func (e ErrorCode) String() string {
	return e.Error()
}
