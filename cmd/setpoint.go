// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/remote"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// defaultWait bounds one-shot commands
const defaultWait = 30 * time.Second

var (
	setpointDelta   int
	setpointTimeout time.Duration
)

var setpointCmd = &cobra.Command{
	Use:   "setpoint [value]",
	Short: "Change the thermostat setpoint and wait for confirmation",
	Long: `Stage a new setpoint, send it, and wait for the thermostat to echo it.

The value is either absolute (thermoremote setpoint 22) or relative to the
thermostat's current setpoint (thermoremote setpoint --delta -2). Values are
clamped to 0..99.

The change is confirmed only when a state report carries the new setpoint.
Reports with any other setpoint leave the change pending, so the command
waits until the thermostat agrees or --timeout expires.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetpoint,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the thermostat's current state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(setpointCmd)
	rootCmd.AddCommand(statusCmd)
	setpointCmd.Flags().IntVarP(&setpointDelta, "delta", "d", 0, "Change the setpoint by this many degrees")
	setpointCmd.Flags().DurationVar(&setpointTimeout, "timeout", defaultWait, "How long to wait for the thermostat")
	statusCmd.Flags().DurationVar(&setpointTimeout, "timeout", defaultWait, "How long to wait for the thermostat")
}

// waitForReport blocks until the first state report has been mirrored
func waitForReport(ctx context.Context, c *remote.Client) (mirror.Snapshot, error) {
	s, err := c.WaitFor(ctx, func(s mirror.Snapshot) bool { return !s.ReportedAt.IsZero() })
	if err != nil {
		return s, fmt.Errorf("no state report from thermostat: %w", err)
	}
	return s, nil
}

// oneShot runs a client for the duration of fn. One-shot commands never
// reconnect: a thermostat that cannot be reached fails the command at once.
func oneShot(fn func(ctx context.Context, c *remote.Client) error) error {
	cfg.Reconnect = false
	c, _, err := OpenClient(nil)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, setpointTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		// fn cannot finish once the link is gone
		done <- c.Run(ctx)
		cancel()
	}()
	fnErr := fn(ctx, c)
	c.Close()

	if err := runResult(<-done); err != nil {
		return err
	}
	return fnErr
}

func runStatus(cmd *cobra.Command, args []string) error {
	return oneShot(func(ctx context.Context, c *remote.Client) error {
		s, err := waitForReport(ctx, c)
		if err != nil {
			return err
		}
		fmt.Print(formatStatus(s))
		return nil
	})
}

func runSetpoint(cmd *cobra.Command, args []string) error {
	target, relative, err := parseSetpointArgs(args, setpointDelta, cmd.Flags().Changed("delta"))
	if err != nil {
		return err
	}

	return oneShot(func(ctx context.Context, c *remote.Client) error {
		s, err := waitForReport(ctx, c)
		if err != nil {
			return err
		}

		delta := target - s.PendingSetpoint
		if relative {
			delta = target
		}
		s = c.AdjustSetpoint(delta)
		want := s.PendingSetpoint
		fmt.Printf("Setting %d -> %d\n", s.Setpoint, want)

		if err := c.CommitSetpoint(); err != nil {
			return err
		}

		s, err = c.WaitFor(ctx, func(s mirror.Snapshot) bool { return !s.EditPending })
		if err != nil {
			return fmt.Errorf("setpoint %d not confirmed: %w", want, err)
		}
		fmt.Printf("Confirmed: setpoint %d\n", s.Setpoint)
		return nil
	})
}

// parseSetpointArgs returns the absolute target, or the delta when relative
func parseSetpointArgs(args []string, delta int, deltaSet bool) (int, bool, error) {
	switch {
	case len(args) == 1 && deltaSet:
		return 0, false, fmt.Errorf("give either a value or --delta, not both")
	case len(args) == 1:
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, false, fmt.Errorf("setpoint %q is not an integer", args[0])
		}
		return thermolink.ClampSetpoint(v), false, nil
	case deltaSet:
		if delta == 0 {
			return 0, false, fmt.Errorf("--delta must not be zero")
		}
		return delta, true, nil
	default:
		return 0, false, fmt.Errorf("give a setpoint value or --delta")
	}
}

// formatStatus renders a snapshot for the terminal
func formatStatus(s mirror.Snapshot) string {
	heat := "off"
	if s.HeatOn {
		heat = "on"
	}
	out := fmt.Sprintf("Temperature: %d\nSetpoint:    %d\nHeat:        %s\n", s.Temperature, s.Setpoint, heat)
	switch {
	case s.EditPending:
		out += fmt.Sprintf("Pending:     %d (awaiting confirmation)\n", s.PendingSetpoint)
	case s.Unconfirmed:
		out += fmt.Sprintf("Pending:     %d (not sent)\n", s.PendingSetpoint)
	}
	if !s.ReportedAt.IsZero() {
		out += fmt.Sprintf("Reported:    %s\n", s.ReportedAt.Format("15:04:05"))
	}
	return out
}
