// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/remote"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Read or replace the thermostat's two-entry schedule",
}

var scheduleGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch and print the schedule",
	Args:  cobra.NoArgs,
	RunE:  runScheduleGet,
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set HH:MM=SETPOINT HH:MM=SETPOINT",
	Short: "Replace the schedule",
	Long: `Replace both schedule entries, then read the schedule back to confirm.

Each entry is a time of day and the setpoint to switch to, e.g.

  thermoremote schedule set 07:30=21 22:00=16

Entry order is preserved: the first argument becomes entry 1.`,
	Args: cobra.ExactArgs(thermolink.ScheduleSlots),
	RunE: runScheduleSet,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleGetCmd)
	scheduleCmd.AddCommand(scheduleSetCmd)
	scheduleCmd.PersistentFlags().DurationVar(&setpointTimeout, "timeout", defaultWait, "How long to wait for the thermostat")
}

func runScheduleGet(cmd *cobra.Command, args []string) error {
	return oneShot(func(ctx context.Context, c *remote.Client) error {
		s, err := fetchSchedule(ctx, c, nil)
		if err != nil {
			return err
		}
		fmt.Print(thermolink.FormatPayload(thermolink.ScheduleMessage{Schedule: s}))
		return nil
	})
}

func runScheduleSet(cmd *cobra.Command, args []string) error {
	sched, err := parseSchedule(args)
	if err != nil {
		return err
	}

	return oneShot(func(ctx context.Context, c *remote.Client) error {
		if _, err := waitForReport(ctx, c); err != nil {
			return err
		}
		if err := c.SubmitSchedule(sched); err != nil {
			return err
		}

		got, err := fetchSchedule(ctx, c, &sched)
		if err != nil {
			return fmt.Errorf("schedule not confirmed: %w", err)
		}
		fmt.Println("Schedule updated:")
		fmt.Print(thermolink.FormatPayload(thermolink.ScheduleMessage{Schedule: got}))
		return nil
	})
}

// fetchSchedule requests the schedule and waits for a report. With want
// set, only a report matching want is accepted.
func fetchSchedule(ctx context.Context, c *remote.Client, want *thermolink.Schedule) (thermolink.Schedule, error) {
	if _, err := waitForReport(ctx, c); err != nil {
		return thermolink.Schedule{}, err
	}

	start := c.Snapshot().Version
	if err := c.RequestSchedule(); err != nil {
		return thermolink.Schedule{}, err
	}

	s, err := c.WaitFor(ctx, func(s mirror.Snapshot) bool {
		if !s.ScheduleKnown || s.Version <= start {
			return false
		}
		return want == nil || s.Schedule == *want
	})
	if err != nil {
		return thermolink.Schedule{}, err
	}
	return s.Schedule, nil
}

// parseSchedule parses one HH:MM=SETPOINT (or HH:MM,SETPOINT) argument per
// entry
func parseSchedule(args []string) (thermolink.Schedule, error) {
	var s thermolink.Schedule
	if len(args) != len(s) {
		return s, fmt.Errorf("expected %d entries, got %d", len(s), len(args))
	}
	for i, arg := range args {
		e, err := parseScheduleEntry(arg)
		if err != nil {
			return s, fmt.Errorf("entry %d: %w", i+1, err)
		}
		s[i] = e
	}
	return s, s.Validate()
}

func parseScheduleEntry(arg string) (thermolink.ScheduleEntry, error) {
	var e thermolink.ScheduleEntry

	sep := strings.LastIndexAny(arg, "=,")
	if sep < 0 {
		return e, fmt.Errorf("%q: want HH:MM=SETPOINT", arg)
	}
	clock, sp := arg[:sep], arg[sep+1:]
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok {
		return e, fmt.Errorf("%q: want HH:MM=SETPOINT", arg)
	}

	var err error
	if e.Hour, err = strconv.Atoi(hh); err != nil {
		return e, fmt.Errorf("%q: bad hour", arg)
	}
	if e.Minute, err = strconv.Atoi(mm); err != nil {
		return e, fmt.Errorf("%q: bad minute", arg)
	}
	if e.Setpoint, err = strconv.Atoi(sp); err != nil {
		return e, fmt.Errorf("%q: bad setpoint", arg)
	}
	return e, e.Validate()
}
