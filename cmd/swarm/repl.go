// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/swarm"
	"github.com/creachadair/swarm/peer"
)

// A console serializes output to a terminal shared by the user prompt and
// messages arriving from the swarm.
type console struct {
	μ sync.Mutex
	w io.Writer
}

func newConsole(w io.Writer) *console { return &console{w: w} }

func (c *console) println(line string) {
	c.μ.Lock()
	defer c.μ.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *console) clear() {
	c.μ.Lock()
	defer c.μ.Unlock()
	fmt.Fprint(c.w, "\033[H\033[2J")
}

// repl reads commands from r and executes them on c until r is exhausted,
// the user types "exit", or ctx ends.
func repl(ctx context.Context, c *peer.Client, r io.Reader, out *console) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	out.println(fmt.Sprintf("Joined the swarm as %q; type \"exit\" to leave.", c.Name()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			switch strings.TrimSpace(line) {
			case "exit":
				return nil
			case "cls":
				out.clear()
				continue
			}
			if err := c.Command(ctx, line); err != nil {
				var cerr *peer.CommandError
				if errors.As(err, &cerr) {
					out.println("- " + cerr.Error())
				} else {
					return err
				}
			}
		}
	}
}

// printLogs prints the log records received on sub until it closes.
func printLogs(sub swarm.Subscription, codec swarm.Codec, out *console) error {
	for {
		_, data, err := sub.Recv()
		if swarm.IsClosed(err) {
			return nil
		} else if err != nil {
			return err
		}
		rec, err := swarm.DecodeLog(codec, data)
		if err != nil {
			out.println("- " + err.Error())
			continue
		}
		out.println(formatLog(rec))
	}
}

// formatLog renders a log record with its time of day.
func formatLog(rec swarm.Log) string {
	sec := int64(rec.Timestamp)
	nsec := int64((rec.Timestamp - float64(sec)) * 1e9)
	ts := time.Unix(sec, nsec).Format(time.TimeOnly)
	return fmt.Sprintf("%s %-5s %s [%s] %s", ts, rec.Level, rec.Author, strings.Join(rec.Trace, " > "), rec.Text)
}
