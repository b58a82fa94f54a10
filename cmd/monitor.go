// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/remote"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

var (
	monitorErrorsOnly    bool
	monitorRaw           bool
	monitorStatsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display thermostat traffic in human-readable format",
	Long: `Connect to the thermostat and decode every line as it arrives.

State reports are acknowledged exactly as the control UI does, so the
thermostat sees a normal client. Outbound lines are shown with a "->" marker.

Lines that fail to decode are highlighted and counted. Use --errors-only to
hide well-formed traffic and --stats-interval to print periodic counters.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorErrorsOnly, "errors-only", false, "Only show lines that fail to decode")
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Print lines verbatim instead of decoding them")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 0, "Statistics interval in seconds (0 disables)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	c, connInfo, err := OpenClient(nil)
	if err != nil {
		return err
	}

	fmt.Printf("Thermoremote - Traffic Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Taps run on the link goroutines; printing happens here
	traffic := make(chan remote.Traffic, 256)
	c.Tap(func(t remote.Traffic) {
		select {
		case traffic <- t:
		default:
		}
	})
	c.SubscribeLink(func(ch link.StateChange) {
		switch {
		case ch.State == link.Connected:
			fmt.Printf("[%s] connected (session %s)\n", ch.At.Format("15:04:05.000"), ch.Session)
		case ch.Prev == link.Connected && ch.Err != nil:
			fmt.Printf("[%s] connection lost: %v\n", ch.At.Format("15:04:05.000"), ch.Err)
		}
	})

	ctx, stop := signalContext()
	defer stop()
	done := startClient(ctx, c)

	var statsTick <-chan time.Time
	if monitorStatsInterval > 0 {
		t := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
		defer t.Stop()
		statsTick = t.C
	}

	for {
		select {
		case t := <-traffic:
			fmt.Print(formatTraffic(t))
		case <-statsTick:
			fmt.Println(c.Statistics().String())
		case err := <-done:
			fmt.Println()
			fmt.Println(c.Statistics().String())
			return runResult(err)
		}
	}
}

// formatTraffic renders one line for the monitor, or "" when filtered out
func formatTraffic(t remote.Traffic) string {
	if t.Err != nil {
		if !t.Inbound {
			return fmt.Sprintf("[%s] [SEND FAILED] %s: %v\n", t.At.Format("15:04:05.000"), t.Line, t.Err)
		}
		return thermolink.FormatDecodeError(t.Err, t.At)
	}
	if monitorErrorsOnly {
		return ""
	}

	marker := ""
	if !t.Inbound {
		marker = "-> "
	}
	if monitorRaw || t.Msg == nil {
		return fmt.Sprintf("[%s] %s%s\n", t.At.Format("15:04:05.000"), marker, t.Line)
	}
	return marker + thermolink.FormatMessage(t.Msg, t.At)
}
