// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports link and reconciliation counters to Prometheus.
//
// All methods are safe on a nil *Metrics so callers can run without
// instrumentation.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

const namespace = "thermoremote"

// Result labels for received lines that did not decode
const (
	ResultParseError        = "parse_error"
	ResultMalformedSchedule = "malformed_schedule"
	ResultOverlong          = "overlong"
)

// Metrics holds every collector, registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	linesReceived *prometheus.CounterVec
	messagesSent  *prometheus.CounterVec
	sendFailures  prometheus.Counter
	connects      prometheus.Counter
	disconnects   prometheus.Counter
	resends       prometheus.Counter

	connectionState prometheus.Gauge
	temperature     prometheus.Gauge
	setpoint        prometheus.Gauge
	pendingSetpoint prometheus.Gauge
	heatOn          prometheus.Gauge
	editPending     prometheus.Gauge
}

// New creates and registers the collectors. Go runtime and process
// collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		linesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_received_total",
			Help:      "Lines received from the thermostat by message kind or decode failure",
		}, []string{"kind"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages written to the thermostat by kind",
		}, []string{"kind"}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Writes that failed with a transport error",
		}),
		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful connections, including reconnects",
		}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Connections lost or closed",
		}),
		resends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setpoint_resends_total",
			Help:      "Pending setpoint commands sent again after the resend interval",
		}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "0 = disconnected, 1 = connecting, 2 = connected",
		}),
		temperature: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last reported room temperature",
		}),
		setpoint: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "setpoint_celsius",
			Help:      "Last confirmed device setpoint",
		}),
		pendingSetpoint: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_setpoint_celsius",
			Help:      "Locally composed setpoint",
		}),
		heatOn: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heat_on",
			Help:      "1 while the device reports the heater on",
		}),
		editPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edit_pending",
			Help:      "1 while a committed setpoint awaits confirmation",
		}),
	}
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveReceived counts one decoded line or decode failure
func (m *Metrics) ObserveReceived(msg thermolink.Message, decodeErr error) {
	if m == nil {
		return
	}
	if decodeErr != nil {
		var schedErr *thermolink.MalformedScheduleError
		if errors.As(decodeErr, &schedErr) {
			m.linesReceived.WithLabelValues(ResultMalformedSchedule).Inc()
		} else {
			m.linesReceived.WithLabelValues(ResultParseError).Inc()
		}
		return
	}
	m.linesReceived.WithLabelValues(msg.Kind().String()).Inc()
}

// ObserveOverlong counts lines the framer discarded
func (m *Metrics) ObserveOverlong(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesReceived.WithLabelValues(ResultOverlong).Add(float64(n))
}

// ObserveSent counts one outgoing message
func (m *Metrics) ObserveSent(msg thermolink.Message, sendErr error) {
	if m == nil {
		return
	}
	if sendErr != nil {
		m.sendFailures.Inc()
		return
	}
	m.messagesSent.WithLabelValues(msg.Kind().String()).Inc()
}

// ObserveResend counts a pending setpoint sent again
func (m *Metrics) ObserveResend() {
	if m == nil {
		return
	}
	m.resends.Inc()
}

// SetConnectionState records the link state and counts transitions into
// and out of Connected
func (m *Metrics) SetConnectionState(state int, connected, lost bool) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
	if connected {
		m.connects.Inc()
	}
	if lost {
		m.disconnects.Inc()
	}
}

// SetMirror records the mirrored thermostat values
func (m *Metrics) SetMirror(temperature, setpoint, pending int, heatOn, editPending bool) {
	if m == nil {
		return
	}
	m.temperature.Set(float64(temperature))
	m.setpoint.Set(float64(setpoint))
	m.pendingSetpoint.Set(float64(pending))
	m.heatOn.Set(boolToFloat(heatOn))
	m.editPending.Set(boolToFloat(editPending))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
