// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Program swarm runs the hub of a swarm, a peer, or a viewer for the
// diagnostic log of the hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/history"
	"github.com/creachadair/swarm/hub"
	"github.com/creachadair/swarm/order"
	"github.com/creachadair/swarm/peer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var netFlags struct {
	Transport string `flag:"transport,default=zmq,Transport to use (zmq or nats)"`
	NATS      string `flag:"nats,default=nats://localhost:4222,NATS server URL"`
	Prefix    string `flag:"prefix,default=swarm,NATS subject prefix"`
	Codec     string `flag:"codec,default=json,Message codec (json or msgpack)"`
	LogLevel  string `flag:"log-level,default=info,Diagnostic log level"`
}

var hubFlags struct {
	Ingest    string        `flag:"ingest,default=tcp://*:5555,Ingest address (zmq)"`
	Broadcast string        `flag:"broadcast,default=tcp://*:5556,Broadcast address (zmq)"`
	KeepAlive time.Duration `flag:"keepalive,default=4s,Evict peers not heard from for this long"`
	History   int           `flag:"history,default=1000,Letters kept per author (negative for no limit)"`
	Prepare   time.Duration `flag:"prepare-delay,default=10s,Time to start preparing a coffee"`
	Serve     time.Duration `flag:"serve-delay,default=30s,Time to finish a coffee"`
	Metrics   string        `flag:"metrics,Serve Prometheus metrics at this address"`
}

var peerFlags struct {
	Ingest    string        `flag:"ingest,default=tcp://localhost:5555,Hub ingest address (zmq)"`
	Broadcast string        `flag:"broadcast,default=tcp://localhost:5556,Hub broadcast address (zmq)"`
	Peers     string        `flag:"peers,Initial peers to talk to (comma-separated)"`
	Services  string        `flag:"services,Services offered by this peer (comma-separated)"`
	Heartbeat time.Duration `flag:"heartbeat,default=1s,Heartbeat interval (0 to disable)"`
}

var logFlags struct {
	Broadcast string `flag:"broadcast,default=tcp://localhost:5556,Hub broadcast address (zmq)"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Run the hub or a peer of a swarm.",
		SetFlags: command.Flags(flax.MustBind, &netFlags),
		Commands: []*command.C{
			{
				Name:     "hub",
				Help:     "Run the hub of a swarm until interrupted.",
				SetFlags: command.Flags(flax.MustBind, &hubFlags),
				Run:      command.Adapt(runHub),
			},
			{
				Name:  "peer",
				Usage: "<name>",
				Help: `Run a peer of a swarm with the given name.

Commands are read from standard input, one per line:

  say <text>                 send a letter to your peers
  invite <name>...           invite peers to talk with you
  state [<name>...]          replay the letters of the named peers
  peers [all]                list your peers, or every peer present
  order coffee <name> [-milk] [-size s] [-quantity n] [-takeaway]
  order chocolate [-shade dark|white] [-quantity n] [-takeaway]
  order status [<id>...]     report the status of orders
  peer <name> <query>        ask a peer: stats, mood, service, services, status
  wait <seconds>             pause before reading the next command
  cls                        clear the screen
  exit                       leave the swarm`,
				SetFlags: command.Flags(flax.MustBind, &peerFlags),
				Run:      command.Adapt(runPeer),
			},
			{
				Name:     "log",
				Help:     "Print the diagnostic log records published by the hub.",
				SetFlags: command.Flags(flax.MustBind, &logFlags),
				Run:      command.Adapt(runLog),
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// newLogger constructs a console logger at the level given by the flags.
func newLogger() (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(netFlags.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	lg := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()
	return &lg, nil
}

// signalContext returns a context that ends when the process is interrupted.
func signalContext(env *command.Env) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(env.Context(), os.Interrupt, syscall.SIGTERM)
}

func runHub(env *command.Env) error {
	lg, err := newLogger()
	if err != nil {
		return err
	}
	codec, err := swarm.CodecByName(netFlags.Codec)
	if err != nil {
		return err
	}
	ep, err := listenHub(lg)
	if err != nil {
		return err
	}

	h := hub.New(&hub.Options{
		Codec:     codec,
		KeepAlive: hubFlags.KeepAlive,
		History:   &history.Options{MaxPerAuthor: hubFlags.History},
		Orders: &order.Options{
			PrepareDelay: hubFlags.Prepare,
			ServeDelay:   hubFlags.Serve,
			Logger:       lg,
		},
		Logger: lg,
	}).Start(ep.ingest, ep.broadcast)
	defer ep.close()

	if hubFlags.Metrics != "" {
		srv := &http.Server{
			Addr:    hubFlags.Metrics,
			Handler: promhttp.HandlerFor(h.Metrics(), promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error().Err(err).Str("addr", hubFlags.Metrics).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
		lg.Info().Str("addr", hubFlags.Metrics).Msg("serving metrics")
	}

	ctx, cancel := signalContext(env)
	defer cancel()
	go func() { <-ctx.Done(); h.Stop() }()

	lg.Info().Str("transport", netFlags.Transport).Str("codec", codec.Name()).Msg("hub running")
	if err := h.Wait(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	lg.Info().Msg("hub stopped")
	return nil
}

func runPeer(env *command.Env, name string) error {
	lg, err := newLogger()
	if err != nil {
		return err
	}
	codec, err := swarm.CodecByName(netFlags.Codec)
	if err != nil {
		return err
	}
	ep, err := dialPeer(peerFlags.Ingest, peerFlags.Broadcast, swarm.TopicDefault)
	if err != nil {
		return err
	}
	defer ep.close()

	out := newConsole(os.Stdout)
	c := peer.New(peer.Options{
		Name:      name,
		Peers:     splitList(peerFlags.Peers),
		Heartbeat: peerFlags.Heartbeat,
		Services:  splitList(peerFlags.Services),
		Codec:     codec,
		Logger:    lg,
		Display:   peer.LineDisplay(out.println),
	}).Start(ep.pusher, ep.sub)

	ctx, cancel := signalContext(env)
	defer cancel()
	go func() { <-ctx.Done(); c.Stop() }()

	rerr := repl(ctx, c, os.Stdin, out)
	if err := c.Stop(); err != nil {
		return fmt.Errorf("peer %q: %w", name, err)
	}
	return rerr
}

// splitList splits a comma-separated list, discarding empty entries.
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func runLog(env *command.Env) error {
	codec, err := swarm.CodecByName(netFlags.Codec)
	if err != nil {
		return err
	}
	ep, err := dialPeer("", logFlags.Broadcast, swarm.TopicLog)
	if err != nil {
		return err
	}
	defer ep.close()

	ctx, cancel := signalContext(env)
	defer cancel()
	go func() { <-ctx.Done(); ep.sub.Close() }()

	return printLogs(ep.sub, codec, newConsole(os.Stdout))
}
