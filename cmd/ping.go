// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/remote"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test round trips by requesting the thermostat's schedule",
	Long: `Send GETSCHEDULE to the thermostat and wait for the SCHEDULE reply.

GETSCHEDULE is the only request the thermostat answers with data, which
makes it a convenient round-trip check. This is useful for verifying:
  - The thermostat is reachable on the configured transport
  - Commands reach the thermostat and replies come back
  - Typical round-trip latency

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg.Reconnect = false
	c, connInfo, err := OpenClient(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Thermoremote - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	connected := make(chan struct{}, 1)
	c.SubscribeLink(func(ch link.StateChange) {
		if ch.State == link.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	schedules := make(chan thermolink.Schedule, 1)
	c.Tap(func(t remote.Traffic) {
		if m, ok := t.Msg.(thermolink.ScheduleMessage); ok && t.Inbound {
			select {
			case schedules <- m.Schedule:
			default:
			}
		}
	})

	ctx, stop := signalContext()
	defer stop()
	done := startClient(ctx, c)
	defer c.Close()

	select {
	case <-connected:
	case err := <-done:
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", runResult(err))
		os.Exit(2)
	case <-time.After(cfg.DialTimeout + time.Second):
		fmt.Fprintf(os.Stderr, "Connection error: timed out\n")
		os.Exit(2)
	}

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if err := c.RequestSchedule(); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case s := <-schedules:
			rtt := time.Since(startTime)
			fmt.Printf("SCHEDULE %s %s, rtt=%v\n", s[0], s[1], rtt.Round(time.Millisecond))
			successCount++

		case err := <-done:
			fmt.Printf("READ FAILED: %v\n", runResult(err))
			failCount += pingCount - i + 1
			i = pingCount

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
