// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

func TestObserveReceived(t *testing.T) {
	m := New()

	m.ObserveReceived(thermolink.StateReport{Temperature: 20, Setpoint: 20}, nil)
	m.ObserveReceived(thermolink.Ack{}, nil)

	_, err := thermolink.Decode("garbage")
	m.ObserveReceived(nil, err)
	_, err = thermolink.Decode("SCHEDULE:[08:00,20]")
	m.ObserveReceived(nil, err)
	m.ObserveOverlong(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesReceived.WithLabelValues("TEMP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesReceived.WithLabelValues("ACK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesReceived.WithLabelValues(ResultParseError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesReceived.WithLabelValues(ResultMalformedSchedule)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.linesReceived.WithLabelValues(ResultOverlong)))
}

func TestObserveSentAndState(t *testing.T) {
	m := New()

	m.ObserveSent(thermolink.SetpointCommand{Setpoint: 22}, nil)
	m.ObserveSent(thermolink.Ack{}, nil)
	m.ObserveSent(thermolink.Ack{}, assert.AnError)
	m.SetConnectionState(2, true, false)
	m.SetConnectionState(0, false, true)
	m.SetMirror(19, 20, 22, true, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("SETPOINT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("ACK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disconnects))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionState))
	assert.Equal(t, 22.0, testutil.ToFloat64(m.pendingSetpoint))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.editPending))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReceived(thermolink.Ack{}, nil)
		m.ObserveSent(thermolink.Ack{}, nil)
		m.ObserveOverlong(1)
		m.ObserveResend()
		m.SetConnectionState(2, true, false)
		m.SetMirror(1, 2, 3, false, false)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveResend()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "thermoremote_setpoint_resends_total 1")
}
