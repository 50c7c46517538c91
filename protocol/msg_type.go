package protocol

import "strconv"

const (
	NetMsgNull MsgType = 0

	// sent by both, measures the round trip time
	NetMsgPing MsgType = 1
	NetMsgPong MsgType = 2

	// sent by the joining peer, contains its peer id
	NetMsgJoinRequest MsgType = 3
	// sent by the host, contains an ErrorCode
	NetMsgJoinDeny MsgType = 4
	// sent by the host, contains the host and the new local connection info
	NetMsgJoinAccept MsgType = 5

	// sent by both, best effort
	NetMsgLeave MsgType = 6

	// NetMsgFirstUser is the first message type that applications may register.
	// Everything below is reserved for control messages.
	NetMsgFirstUser MsgType = 16
)

// MsgType is the wire id of a message, used to look up its definition.
type MsgType uint8

// IsControl returns true for message types reserved by the session layer.
func (t MsgType) IsControl() bool {
	return t < NetMsgFirstUser
}

func (t MsgType) String() string {
	switch t {
	case NetMsgNull:
		return "null"
	case NetMsgPing:
		return "ping"
	case NetMsgPong:
		return "pong"
	case NetMsgJoinRequest:
		return "join_request"
	case NetMsgJoinDeny:
		return "join_deny"
	case NetMsgJoinAccept:
		return "join_accept"
	case NetMsgLeave:
		return "leave"
	default:
		return "msg_" + strconv.Itoa(int(t))
	}
}
