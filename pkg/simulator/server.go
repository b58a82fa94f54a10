// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/thermoremote/pkg/logging"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// DefaultHeartbeat is how often the controller reports its state
const DefaultHeartbeat = 1 * time.Second

// ServerOptions configures a Server
type ServerOptions struct {
	Heartbeat time.Duration
	Logger    *logging.Logger
	Clock     func() time.Time
}

// Server accepts one client at a time and speaks the controller's side of
// the protocol to it
type Server struct {
	device    *Device
	heartbeat time.Duration
	log       *logging.Logger
	clock     func() time.Time
	stats     *thermolink.Statistics
}

// NewServer creates a server for device
func NewServer(device *Device, opts ServerOptions) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Server{
		device:    device,
		heartbeat: opts.Heartbeat,
		log:       opts.Logger,
		clock:     opts.Clock,
		stats:     thermolink.NewStatistics(),
	}
}

// Device returns the simulated controller
func (s *Server) Device() *Device {
	return s.device
}

// Statistics returns the server-side traffic counters
func (s *Server) Statistics() *thermolink.Statistics {
	return s.stats
}

// Run ticks the device at the heartbeat interval until ctx is cancelled.
// It keeps the room simulation going while no client is connected.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTicker(s.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.device.Tick(s.clock()) {
				st := s.device.State()
				s.log.Infow("schedule applied", "setpoint", st.Setpoint)
			}
		}
	}
}

// Serve accepts connections on ln until ctx is cancelled, handling them
// one at a time
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Infow("waiting for client connection", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.log.Infow("client connected", "remote", conn.RemoteAddr().String())
		err = s.handle(ctx, conn)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Infow("client disconnected", "remote", conn.RemoteAddr().String(), "err", err)
		} else {
			s.log.Infow("client disconnected", "remote", conn.RemoteAddr().String())
		}
	}
}

// handle runs one client session: a heartbeat writer and a line reader
func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	var writeMu sync.Mutex
	write := func(msg thermolink.Message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := conn.Write(thermolink.Encode(msg))
		s.stats.RecordSent(msg, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	// Heartbeat
	g.Go(func() error {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		for {
			if err := write(s.device.Report()); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
			}
		}
	})

	// Commands
	g.Go(func() error {
		framer := thermolink.NewFramer()
		buf := make([]byte, 1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				var werr error
				dropped := framer.Feed(buf[:n], func(line string) {
					msg, derr := thermolink.Decode(line)
					s.stats.RecordReceived(msg, derr)
					if derr != nil {
						s.log.Debugw("ignoring line", "line", line, "err", derr)
						return
					}
					for _, r := range s.device.Handle(msg) {
						if err := write(r); err != nil && werr == nil {
							werr = err
						}
					}
				})
				s.stats.RecordOverlong(dropped)
				if werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
		}
	})

	err := g.Wait()
	_ = conn.Close()
	return err
}
