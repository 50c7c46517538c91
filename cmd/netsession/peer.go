package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jxsl13/netsession/config"
	"github.com/jxsl13/netsession/econ"
	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/packer"
	"github.com/jxsl13/netsession/protocol"
	"github.com/jxsl13/netsession/session"
	"github.com/pterm/pterm"
)

// msgChat carries an author and a text, the host relays it to all other peers.
const msgChat = protocol.NetMsgFirstUser

var chatDefinition = network.Definition{
	RequiresConnection: true,
	Reliable:           true,
	Sequenced:          true,
}

var errQuit = errors.New("quit")

// peer runs a session and executes console commands between its updates.
type peer struct {
	settings config.Settings
	logger   *pterm.Logger
	session  *session.Session
	econ     *econ.Server

	// chat keeps the most recent chat lines for the status output
	chat []string
}

func newPeer(settings config.Settings, logger *pterm.Logger, opts ...session.Option) *peer {
	p := &peer{
		settings: settings,
		logger:   logger,
	}

	opts = append([]session.Option{
		session.WithOpener(session.UDPOpener(settings.Bind)),
		session.WithLogger(logger),
		session.WithNotifier(p),
		session.WithSimulation(settings.Simulation),
		session.WithMaxConnections(settings.MaxConnections),
		session.WithHostTimeout(settings.HostTimeout),
		session.WithConnTimeout(settings.ConnTimeout),
		session.WithTickRate(settings.TickRate),
		session.WithHeartbeatInterval(settings.HeartbeatInterval),
	}, opts...)
	p.session = session.New(opts...)

	// msgChat is a valid user message type
	_ = p.session.RegisterMessage(msgChat, chatDefinition, session.HandlerFunc(p.handleChat))
	return p
}

// run updates the session at the tick rate until ctx is done or the
// quit command is executed.
func (p *peer) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(max(1, p.settings.TickRate)))
	defer ticker.Stop()
	defer p.session.Close()

	var requests <-chan econ.Request
	if p.econ != nil {
		requests = p.econ.Requests()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.session.Update(); err != nil {
				return err
			}
		case req := <-requests:
			output, err := p.execute(req.Line)
			if errors.Is(err, errQuit) {
				req.Reply(append(output, "bye")...)
				return errQuit
			}
			if err != nil {
				output = append(output, err.Error())
			}
			req.Reply(output...)
		}
	}
}

// Notify implements session.Notifier.
func (p *peer) Notify(e session.Event) {
	line := fmt.Sprintf("%s index=%d peer=%s addr=%s", e.Type, e.Index, e.PeerID, e.Addr)
	if e.Local {
		line += " local"
	}
	if e.Reason != protocol.ErrNone {
		line += fmt.Sprintf(" reason=%q", e.Reason)
	}
	p.logger.Info("connection event", p.logger.Args(
		"event", e.Type,
		"index", e.Index,
		"peer", e.PeerID,
		"addr", e.Addr,
		"reason", e.Reason,
	))
	p.broadcast(line)
}

func (p *peer) broadcast(line string) {
	if p.econ != nil {
		p.econ.Broadcast(line)
	}
}

func (p *peer) say(text string) error {
	payload := packChat(p.settings.PeerID, text)
	if p.session.IsHost() {
		p.addChat(p.settings.PeerID, text)
		return p.session.SendToAll(msgChat, payload)
	}
	return p.session.SendToHost(msgChat, payload)
}

func (p *peer) handleChat(from session.Sender, msg network.Message) {
	u := packer.NewUnpacker(msg.Payload)
	author, err := u.NextString()
	if err != nil {
		return
	}
	text, err := u.NextString()
	if err != nil {
		return
	}

	if p.session.IsHost() && from.Conn != nil {
		// the author of a relayed message is the sender
		author = from.Conn.PeerID()
		payload := packChat(author, text)
		for _, c := range p.session.Conns() {
			if c.IsLocal() || c == from.Conn {
				continue
			}
			if err := p.session.SendTo(c.Index(), msgChat, payload); err != nil {
				p.logger.Warn("failed to relay chat", p.logger.Args("index", c.Index(), "error", err))
			}
		}
	}
	p.addChat(author, text)
}

func (p *peer) addChat(author, text string) {
	line := fmt.Sprintf("%s: %s", author, text)
	p.logger.Info("chat", p.logger.Args("peer", author, "text", text))
	p.chat = append(p.chat, line)
	if len(p.chat) > maxChatLines {
		p.chat = p.chat[len(p.chat)-maxChatLines:]
	}
	p.broadcast(line)
}

const maxChatLines = 16

func packChat(author, text string) []byte {
	pk := packer.NewPacker()
	pk.AddString(author)
	pk.AddString(text)
	return pk.Bytes()
}
