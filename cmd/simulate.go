// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/thermoremote/pkg/config"
	"github.com/Thermoquad/thermoremote/pkg/simulator"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated thermostat for testing without hardware",
	Long: `Listen on TCP and behave like the thermostat controller.

The simulated room warms while heating and cools toward the ambient
temperature otherwise. A state report is sent every heartbeat, setpoint and
schedule commands are acknowledged, and the two schedule entries fire at
their time of day.

Point another thermoremote at it:

  thermoremote simulate --listen :5000 &
  thermoremote control --address localhost:5000`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("listen", config.DefaultSimListen, "TCP listen address")
	simulateCmd.Flags().Duration("heartbeat", config.DefaultSimHeartbeat, "State report interval")
	simulateCmd.Flags().Int("ambient", config.DefaultSimAmbient, "Ambient room temperature")

	bindFlags(simulateCmd.Flags(), map[string]string{
		config.KeySimListen:    "listen",
		config.KeySimHeartbeat: "heartbeat",
		config.KeySimAmbient:   "ambient",
	})
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ln, err := net.Listen("tcp", cfg.Simulator.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Simulator.Listen, err)
	}

	ambient := cfg.Simulator.Ambient
	device := simulator.NewDevice(simulator.DeviceOptions{Ambient: &ambient})
	srv := simulator.NewServer(device, simulator.ServerOptions{
		Heartbeat: cfg.Simulator.Heartbeat,
		Logger:    log.Named("simulator"),
	})

	ctx, stop := signalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	err = g.Wait()
	fmt.Println(srv.Statistics().String())
	return err
}
