// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/thermoremote/pkg/config"
	"github.com/Thermoquad/thermoremote/pkg/httpapi"
	"github.com/Thermoquad/thermoremote/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the client headless behind an HTTP API",
	Long: `Keep a connection to the thermostat and expose it over HTTP.

Endpoints:
  GET  /health                   liveness and link state
  GET  /api/v1/state             mirrored thermostat state
  GET  /api/v1/stats             traffic counters
  POST /api/v1/setpoint/adjust   {"delta":1} stage a setpoint change
  POST /api/v1/setpoint/commit   send the staged setpoint
  GET  /api/v1/schedule          last reported schedule
  POST /api/v1/schedule/request  ask the thermostat for its schedule
  POST /api/v1/schedule          {"entries":[...]} replace the schedule
  GET  /metrics                  Prometheus metrics (unless disabled)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", config.DefaultHTTPListen, "HTTP listen address")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")

	bindFlags(serveCmd.Flags(), map[string]string{
		config.KeyHTTPListen:     "listen",
		config.KeyMetricsEnabled: "metrics",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		m = metrics.New()
		metricsHandler = m.Handler()
	}

	c, connInfo, err := OpenClient(m)
	if err != nil {
		return err
	}
	defer c.Close()

	h := httpapi.NewHandler(c, log.Named("http"), metricsHandler)
	srv := httpapi.NewServer(cfg.HTTPListen, h.InitRoutes())

	ctx, stop := signalContext()
	defer stop()

	log.Infow("serving", "listen", cfg.HTTPListen, "thermostat", connInfo, "metrics", cfg.MetricsEnabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		err := runResult(c.Run(gctx))
		if err == nil && gctx.Err() == nil {
			// The link gave up without an error; stop serving
			return context.Canceled
		}
		return err
	})

	return runResult(g.Wait())
}
