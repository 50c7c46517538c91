package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jxsl13/netsession/config"
	"github.com/jxsl13/netsession/network"
	"github.com/pterm/pterm"
)

var ErrUnknownCommand = errors.New("unknown command")

type commandFunc func(p *peer, cmd config.Command) ([]string, error)

var commands = map[string]commandFunc{
	"help":   (*peer).cmdHelp,
	"status": (*peer).cmdStatus,
	"host":   (*peer).cmdHost,
	"join":   (*peer).cmdJoin,
	"leave":  (*peer).cmdLeave,
	"listen": (*peer).cmdListen,
	"say":    (*peer).cmdSay,
	"sim":    (*peer).cmdSim,
	"quit":   (*peer).cmdQuit,
}

// execute runs all commands of a console line. Execution stops at the
// first failing command.
func (p *peer) execute(line string) ([]string, error) {
	cmds, err := config.ParseLine(line)
	if err != nil {
		if errors.Is(err, config.ErrNotACommand) {
			return nil, nil
		}
		return nil, err
	}

	var output []string
	for _, cmd := range cmds {
		fn, ok := commands[cmd.Name]
		if !ok {
			return output, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
		}
		lines, err := fn(p, cmd)
		output = append(output, lines...)
		if err != nil {
			return output, err
		}
	}
	return output, nil
}

func (p *peer) cmdHelp(cmd config.Command) ([]string, error) {
	return []string{
		"status                         show the session and its connections",
		"host [peer]                    host a session",
		"join [peer] <addr>             join the session hosted at addr",
		"leave                          leave the session",
		"listen on|off                  accept or deny new peers while hosting",
		"say <text>                     send a chat message",
		"sim <drop> <dup> <min> <max>   simulate loss, duplication and delay in ms",
		"quit                           stop the peer",
	}, cmd.ExpectArgs(0, 0)
}

func (p *peer) cmdStatus(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(0, 0); err != nil {
		return nil, err
	}
	s := p.session
	stats := s.Stats()
	sim := s.Simulation()

	lines := []string{
		fmt.Sprintf("state=%s host=%t listening=%t addr=%s last_error=%q",
			s.State(), s.IsHost(), s.IsListening(), s.LocalAddr(), s.LastError()),
		fmt.Sprintf("datagrams=%d framing_errors=%d connectionless=%d rejected=%d unhandled=%d",
			stats.DatagramsReceived, stats.FramingErrors, stats.Connectionless, stats.Rejected, stats.Unhandled),
		fmt.Sprintf("sim drop=%.2f dup=%.2f delay=%s..%s dropped=%d duplicated=%d delayed=%d send_failures=%d",
			sim.DropRate, sim.DuplicateRate, sim.MinDelay, sim.MaxDelay,
			stats.Channel.Dropped, stats.Channel.Duplicated, stats.Channel.Delayed, stats.Channel.SendFailures),
	}

	conns := s.Conns()
	if len(conns) == 0 {
		return lines, nil
	}

	data := pterm.TableData{
		{"Index", "Peer", "Address", "Local", "Confirmed", "RTT", "Pending", "Unsent", "Resends", "Duplicates"},
	}
	for _, c := range conns {
		cs := c.Stats()
		data = append(data, []string{
			strconv.Itoa(int(c.Index())),
			c.PeerID(),
			c.Addr().String(),
			strconv.FormatBool(c.IsLocal()),
			strconv.FormatBool(c.IsConfirmed()),
			cs.RTT.Round(time.Microsecond).String(),
			strconv.Itoa(cs.PendingReliable),
			strconv.Itoa(cs.UnsentReliable),
			strconv.FormatUint(cs.Resends, 10),
			strconv.FormatUint(cs.Duplicates, 10),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return lines, err
	}
	lines = append(lines, strings.Split(pterm.RemoveColorFromString(table), "\n")...)

	if len(p.chat) > 0 {
		lines = append(lines, "chat:")
		lines = append(lines, p.chat...)
	}
	return lines, nil
}

func (p *peer) cmdHost(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(0, 1); err != nil {
		return nil, err
	}
	if len(cmd.Args) == 1 {
		p.settings.PeerID = cmd.Args[0]
	}
	if err := p.session.Host(p.settings.PeerID); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("hosting as %s on %s", p.settings.PeerID, p.session.LocalAddr())}, nil
}

func (p *peer) cmdJoin(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(1, 2); err != nil {
		return nil, err
	}
	addrArg := cmd.Args[len(cmd.Args)-1]
	if len(cmd.Args) == 2 {
		p.settings.PeerID = cmd.Args[0]
	}
	addr, err := network.ParseAddrPort(addrArg)
	if err != nil {
		return nil, err
	}
	if err := p.session.Join(p.settings.PeerID, addr); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("joining %s as %s", addr, p.settings.PeerID)}, nil
}

func (p *peer) cmdLeave(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(0, 0); err != nil {
		return nil, err
	}
	p.session.Leave()
	return []string{"left session"}, nil
}

func (p *peer) cmdListen(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(1, 1); err != nil {
		return nil, err
	}
	listening, err := cmd.Bool(0)
	if err != nil {
		return nil, err
	}
	p.session.SetListening(listening)
	return []string{fmt.Sprintf("listening=%t", listening)}, nil
}

func (p *peer) cmdSay(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(1, len(cmd.Args)); err != nil {
		return nil, err
	}
	return nil, p.say(strings.Join(cmd.Args, " "))
}

func (p *peer) cmdSim(cmd config.Command) ([]string, error) {
	if err := cmd.ExpectArgs(0, 4); err != nil {
		return nil, err
	}
	sim := p.session.Simulation()
	if len(cmd.Args) == 0 {
		sim = network.Simulation{Seed: sim.Seed}
	}

	var err error
	for i := range cmd.Args {
		switch i {
		case 0:
			sim.DropRate, err = cmd.Float(i)
		case 1:
			sim.DuplicateRate, err = cmd.Float(i)
		case 2:
			sim.MinDelay, err = cmd.Duration(i, time.Millisecond)
		case 3:
			sim.MaxDelay, err = cmd.Duration(i, time.Millisecond)
		}
		if err != nil {
			return nil, err
		}
	}
	if sim.DropRate < 0 || sim.DropRate > 1 || sim.DuplicateRate < 0 || sim.DuplicateRate > 1 {
		return nil, fmt.Errorf("%w: probabilities must be within 0 and 1", config.ErrInvalidArgument)
	}
	if sim.MinDelay < 0 || sim.MaxDelay < 0 {
		return nil, fmt.Errorf("%w: delays must not be negative", config.ErrInvalidArgument)
	}
	p.session.SetSimulation(sim)
	return []string{fmt.Sprintf("sim drop=%.2f dup=%.2f delay=%s..%s",
		sim.DropRate, sim.DuplicateRate, sim.MinDelay, sim.MaxDelay)}, nil
}

func (p *peer) cmdQuit(cmd config.Command) ([]string, error) {
	return nil, errQuit
}
