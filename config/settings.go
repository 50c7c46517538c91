package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/jxsl13/netsession/internal/logging"
	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/protocol"
)

// maxExecDepth limits nested exec commands.
const maxExecDepth = 16

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrExecDepth      = errors.New("exec nesting too deep")
)

// Settings is the typed configuration of a netsession peer.
type Settings struct {
	Bind              netip.AddrPort
	PeerID            string
	MaxConnections    int
	HostTimeout       time.Duration
	ConnTimeout       time.Duration
	TickRate          int
	HeartbeatInterval time.Duration
	Simulation        network.Simulation

	// EconBind is the listen address of the console, empty disables it.
	EconBind     string
	EconPassword string
	LogLevel     string
}

func DefaultSettings() Settings {
	return Settings{
		Bind:              netip.AddrPortFrom(netip.IPv4Unspecified(), 8303),
		MaxConnections:    protocol.NetMaxConnections,
		HostTimeout:       protocol.NetHostTimeout,
		ConnTimeout:       protocol.NetConnTimeout,
		TickRate:          protocol.NetTickRate,
		HeartbeatInterval: protocol.NetHeartbeatInterval,
		LogLevel:          "warn",
	}
}

// LoadSettings reads the config file at path on top of the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if err := s.LoadFile(path); err != nil {
		return s, err
	}
	return s, nil
}

// LoadFile applies all commands of the config file at path.
// exec paths are relative to the directory of the including file.
func (s *Settings) LoadFile(path string) error {
	return s.loadFile(path, 0)
}

func (s *Settings) loadFile(path string, depth int) error {
	if depth >= maxExecDepth {
		return fmt.Errorf("%w: %s", ErrExecDepth, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := ParseConfigBytes(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for _, cmd := range cfg {
		if cmd.Name == "exec" {
			include, err := cmd.Arg(0)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if !filepath.IsAbs(include) {
				include = filepath.Join(filepath.Dir(path), include)
			}
			if err := s.loadFile(include, depth+1); err != nil {
				return err
			}
			continue
		}
		if err := s.Apply(cmd); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// ApplyConfig applies cfg without support for exec.
func (s *Settings) ApplyConfig(cfg Config) error {
	for _, cmd := range cfg {
		if err := s.Apply(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Apply sets the value of a single settings command.
func (s *Settings) Apply(cmd Command) (err error) {
	least, ok := settingCommands[cmd.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	if err = cmd.ExpectArgs(least, 1); err != nil {
		return err
	}

	arg, _ := cmd.Arg(0)
	switch cmd.Name {
	case "net_bind":
		s.Bind, err = network.ParseAddrPort(arg)
	case "net_peer_id":
		s.PeerID = arg
	case "net_max_connections":
		s.MaxConnections, err = cmd.Int(0)
		if err == nil && (s.MaxConnections < 1 || s.MaxConnections > int(protocol.NetConnIndexNone)) {
			err = fmt.Errorf("%w: %s must be within 1 and %d", ErrInvalidArgument, cmd.Name, protocol.NetConnIndexNone)
		}
	case "net_host_timeout":
		s.HostTimeout, err = cmd.Duration(0, time.Second)
	case "net_conn_timeout":
		s.ConnTimeout, err = cmd.Duration(0, time.Second)
	case "net_tick_rate":
		s.TickRate, err = cmd.Int(0)
		if err == nil && s.TickRate < 1 {
			err = fmt.Errorf("%w: %s must be positive", ErrInvalidArgument, cmd.Name)
		}
	case "net_heartbeat":
		s.HeartbeatInterval, err = cmd.Duration(0, time.Second)
	case "net_sim_drop":
		s.Simulation.DropRate, err = probability(cmd)
	case "net_sim_duplicate":
		s.Simulation.DuplicateRate, err = probability(cmd)
	case "net_sim_delay_min":
		s.Simulation.MinDelay, err = cmd.Duration(0, time.Millisecond)
	case "net_sim_delay_max":
		s.Simulation.MaxDelay, err = cmd.Duration(0, time.Millisecond)
	case "net_sim_seed":
		var seed int
		seed, err = cmd.Int(0)
		s.Simulation.Seed = int64(seed)
	case "ec_bind":
		s.EconBind = arg
	case "ec_password":
		s.EconPassword = arg
	case "log_level":
		_, err = logging.ParseLevel(arg)
		if err == nil {
			s.LogLevel = arg
		}
	}
	return err
}

// settingCommands maps every settings command to its minimum number of
// arguments. Commands without required argument reset their value.
var settingCommands = map[string]int{
	"net_bind":            1,
	"net_peer_id":         0,
	"net_max_connections": 1,
	"net_host_timeout":    1,
	"net_conn_timeout":    1,
	"net_tick_rate":       1,
	"net_heartbeat":       1,
	"net_sim_drop":        1,
	"net_sim_duplicate":   1,
	"net_sim_delay_min":   1,
	"net_sim_delay_max":   1,
	"net_sim_seed":        1,
	"ec_bind":             0,
	"ec_password":         0,
	"log_level":           1,
}

func probability(cmd Command) (float64, error) {
	p, err := cmd.Float(0)
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %s must be within 0 and 1", ErrInvalidArgument, cmd.Name)
	}
	return p, nil
}
