// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/metrics"
	"github.com/Thermoquad/thermoremote/pkg/remote"
)

// OpenEndpoint resolves the configured address into an endpoint
func OpenEndpoint() (link.Endpoint, error) {
	ep, err := link.ParseEndpoint(cfg.Address, cfg.Transport, cfg.Baud)
	if err != nil {
		return link.Endpoint{}, err
	}
	ep.DialTimeout = cfg.DialTimeout
	return ep, nil
}

// OpenClient builds a client for the configured endpoint. m may be nil.
// The connection is not opened until the client runs.
func OpenClient(m *metrics.Metrics) (*remote.Client, string, error) {
	ep, err := OpenEndpoint()
	if err != nil {
		return nil, "", err
	}

	c := remote.NewForEndpoint(ep, link.Options{
		Logger:         log.Named("link"),
		Reconnect:      cfg.Reconnect,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
	}, remote.Options{
		Logger:         log.Named("client"),
		Metrics:        m,
		ResendInterval: cfg.ResendInterval,
	})

	return c, ep.String(), nil
}

// startClient runs c in the background until ctx is cancelled. The
// returned channel yields Run's result.
func startClient(ctx context.Context, c *remote.Client) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return done
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runResult filters a Run error down to what the user should see
func runResult(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	var ce *link.ConnectError
	if errors.As(err, &ce) {
		return fmt.Errorf("cannot reach thermostat: %w", ce)
	}
	return err
}
