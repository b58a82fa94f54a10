// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Thermoquad/thermoremote/pkg/config"
	"github.com/Thermoquad/thermoremote/pkg/logging"
)

var (
	// Config file flag
	configFile string

	// Flags bind into v; cfg and log are populated by PersistentPreRunE
	v        = config.New()
	cfg      config.Config
	log      *logging.Logger
	logClose = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "thermoremote",
	Short: "Remote control for networked thermostats",
	Long: `Thermoremote - monitor and control a networked thermostat.

The thermostat streams line-based state reports (TEMP:21,SETPOINT:20,HEAT:1)
which thermoremote mirrors and acknowledges. Setpoint changes are staged
locally and only take effect once the thermostat echoes them back.

Connection modes:
  TCP:       --address 192.168.50.92:5000   (default port 5000)
  WebSocket: --address ws://host/path
  Serial:    --address /dev/ttyUSB0 --transport serial [--baud 115200]

Every flag can also be set in thermoremote.yaml (current directory or
$HOME/.config/thermoremote) or through THERMOREMOTE_*
environment variables, e.g. THERMOREMOTE_ADDRESS or THERMOREMOTE_LOG_LEVEL.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logClose()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default thermoremote.yaml)")
	flags.StringP("address", "a", config.DefaultAddress, "Thermostat address (host[:port], ws:// URL or serial device)")
	flags.StringP("transport", "t", "", "Force transport: tcp, ws or serial (inferred from address)")
	flags.IntP("baud", "b", config.DefaultBaud, "Baud rate (serial only)")
	flags.Duration("dial-timeout", config.DefaultDialTimeout, "Connect timeout")
	flags.Bool("reconnect", true, "Reconnect with backoff when the connection drops")
	flags.Duration("resend-interval", 0, "Re-send an unconfirmed setpoint after this long (0 waits indefinitely)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Write logs to this file instead of stderr")

	bindFlags(flags, map[string]string{
		config.KeyAddress:        "address",
		config.KeyTransport:      "transport",
		config.KeyBaud:           "baud",
		config.KeyDialTimeout:    "dial-timeout",
		config.KeyReconnect:      "reconnect",
		config.KeyResendInterval: "resend-interval",
		config.KeyLogLevel:       "log-level",
		config.KeyLogFile:        "log-file",
	})
}

// bindFlags binds viper keys to the named flags in fs
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// loadConfig reads the config file, applies flags and environment, and
// opens the logger
func loadConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := config.ReadFile(v); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	log, logClose, err = logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	log.Debugw("configuration loaded", "file", v.ConfigFileUsed(), "address", cfg.Address)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
