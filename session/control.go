package session

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/google/uuid"
	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/packer"
	"github.com/jxsl13/netsession/protocol"
)

var (
	ErrInvalidPeerID         = errors.New("invalid peer id")
	ErrInvalidControlMessage = errors.New("invalid control message")
)

var controlDefinitions = map[protocol.MsgType]network.Definition{
	protocol.NetMsgPing:        {},
	protocol.NetMsgPong:        {},
	protocol.NetMsgJoinRequest: {Reliable: true},
	protocol.NetMsgJoinDeny:    {},
	protocol.NetMsgJoinAccept:  {RequiresConnection: true, Reliable: true},
	protocol.NetMsgLeave:       {RequiresConnection: true},
}

func controlMessage(t protocol.MsgType, payload []byte) network.Message {
	return network.NewMessage(t, controlDefinitions[t], payload)
}

// NewPeerID returns a random peer id of protocol.NetMaxPeerIDSize characters.
func NewPeerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidatePeerID checks that id can be encoded.
func ValidatePeerID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidPeerID)
	case len(id) > protocol.NetMaxPeerIDSize:
		return fmt.Errorf("%w: %d bytes exceed the limit of %d", ErrInvalidPeerID, len(id), protocol.NetMaxPeerIDSize)
	case strings.IndexByte(id, packer.StringTerminator) >= 0:
		return fmt.Errorf("%w: contains a string terminator", ErrInvalidPeerID)
	}
	return nil
}

// ConnInfo is the wire representation of a connection.
type ConnInfo struct {
	Index  protocol.ConnIndex
	Addr   netip.AddrPort
	PeerID string
}

func connInfo(c *network.Conn) ConnInfo {
	return ConnInfo{
		Index:  c.Index(),
		Addr:   c.Addr(),
		PeerID: c.PeerID(),
	}
}

// Pack appends u8 index, u16 port, u32 ipv4 and the peer id.
// Non IPv4 addresses are encoded as 0.0.0.0.
func (ci ConnInfo) Pack(p *packer.Packer) {
	ip, _ := network.IPv4ToUint32(ci.Addr.Addr())
	p.AddByte(byte(ci.Index))
	p.AddUint16(ci.Addr.Port())
	p.AddUint32(ip)
	p.AddString(ci.PeerID)
}

func (ci *ConnInfo) Unpack(u *packer.Unpacker) error {
	index, err := u.NextByte()
	if err != nil {
		return err
	}
	port, err := u.NextUint16()
	if err != nil {
		return err
	}
	ip, err := u.NextUint32()
	if err != nil {
		return err
	}
	peerID, err := u.NextString()
	if err != nil {
		return err
	}

	ci.Index = protocol.ConnIndex(index)
	ci.Addr = netip.AddrPortFrom(network.IPv4FromUint32(ip), port)
	ci.PeerID = peerID
	return nil
}

func packJoinRequest(peerID string) []byte {
	p := packer.NewPacker()
	p.AddString(peerID)
	return p.Bytes()
}

func unpackJoinRequest(payload []byte) (string, error) {
	peerID, err := packer.NewUnpacker(payload).NextString()
	if err != nil {
		return "", fmt.Errorf("%w: join request: %w", ErrInvalidControlMessage, err)
	}
	if err := ValidatePeerID(peerID); err != nil {
		return "", fmt.Errorf("%w: join request: %w", ErrInvalidControlMessage, err)
	}
	return peerID, nil
}

func packJoinDeny(reason protocol.ErrorCode) []byte {
	return []byte{byte(reason)}
}

func unpackJoinDeny(payload []byte) (protocol.ErrorCode, error) {
	reason, err := packer.NewUnpacker(payload).NextByte()
	if err != nil {
		return protocol.ErrNone, fmt.Errorf("%w: join deny: %w", ErrInvalidControlMessage, err)
	}
	return protocol.ErrorCode(reason), nil
}

func packJoinAccept(host, local ConnInfo) []byte {
	p := packer.NewPacker()
	host.Pack(p)
	local.Pack(p)
	return p.Bytes()
}

func unpackJoinAccept(payload []byte) (host, local ConnInfo, err error) {
	u := packer.NewUnpacker(payload)
	if err = host.Unpack(u); err != nil {
		return host, local, fmt.Errorf("%w: join accept host info: %w", ErrInvalidControlMessage, err)
	}
	if err = local.Unpack(u); err != nil {
		return host, local, fmt.Errorf("%w: join accept local info: %w", ErrInvalidControlMessage, err)
	}
	return host, local, nil
}

func packPing(sent int64) []byte {
	p := packer.NewPacker()
	p.AddUint64(uint64(sent))
	return p.Bytes()
}

func unpackPing(payload []byte) (int64, error) {
	sent, err := packer.NewUnpacker(payload).NextUint64()
	if err != nil {
		return 0, fmt.Errorf("%w: ping: %w", ErrInvalidControlMessage, err)
	}
	return int64(sent), nil
}
