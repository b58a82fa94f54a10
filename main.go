// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Thermoremote - Networked Thermostat Remote Control
//
// A CLI tool for monitoring and controlling a thermostat that speaks the
// line-based TEMP/SETPOINT/SCHEDULE protocol over TCP, WebSocket or serial.

package main

import (
	"os"

	"github.com/Thermoquad/thermoremote/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
