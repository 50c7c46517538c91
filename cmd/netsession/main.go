// Command netsession runs a peer of a reliable datagram session. It either
// hosts a session, joins one or waits for console commands.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jxsl13/netsession/config"
	"github.com/jxsl13/netsession/econ"
	"github.com/jxsl13/netsession/internal/logging"
	"github.com/jxsl13/netsession/network"
	"github.com/jxsl13/netsession/session"
	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		host       bool
		join       string
		peerID     string
	)
	flag.StringVar(&configPath, "config", "", "config file to execute on startup")
	flag.BoolVar(&host, "host", false, "host a session")
	flag.StringVar(&join, "join", "", "join the session hosted at this address")
	flag.StringVar(&peerID, "peer", "", "peer id, generated when empty")
	flag.Parse()

	settings := config.DefaultSettings()
	if configPath != "" {
		if err := settings.LoadFile(configPath); err != nil {
			return err
		}
	}
	if peerID != "" {
		settings.PeerID = peerID
	}
	if settings.PeerID == "" {
		settings.PeerID = session.NewPeerID()
	}

	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level)

	p := newPeer(settings, logger)
	switch {
	case host && join != "":
		return errors.New("-host and -join are mutually exclusive")
	case host:
		err = p.session.Host(settings.PeerID)
	case join != "":
		addr, perr := network.ParseAddrPort(join)
		if perr != nil {
			return perr
		}
		err = p.session.Join(settings.PeerID, addr)
	default:
		err = p.session.Open()
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if settings.EconBind != "" {
		p.econ = econ.NewServer(settings.EconPassword, econ.WithLogger(logger))
		g.Go(func() error {
			err := p.econ.ListenAndServe(settings.EconBind)
			if errors.Is(err, econ.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return p.econ.Close()
		})
	}

	g.Go(func() error {
		return p.run(ctx)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}
