// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/remote"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// Common response/status constants
const (
	statusOK        = "ok"
	statusAdjusted  = "adjusted"
	statusSent      = "sent"
	statusRequested = "requested"

	errSendFailed      = "thermostat unreachable"
	errInvalidBodyPref = "invalid body: "
)

// stateResponse is the mirrored state plus the link state
type stateResponse struct {
	mirror.Snapshot
	Link string `json:"link"`
}

type adjustRequest struct {
	// Steps to move the pending setpoint; normally 1 or -1
	Delta int `json:"delta" binding:"required,min=-99,max=99"`
}

type scheduleRequest struct {
	Entries []thermolink.ScheduleEntry `json:"entries" binding:"required"`
}

type scheduleResponse struct {
	Entries []thermolink.ScheduleEntry `json:"entries"`
	Known   bool                       `json:"known"`
}

// Centralized error logging and response
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Warnw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

func (h *Handler) stateResponse() stateResponse {
	return stateResponse{Snapshot: h.client.Snapshot(), Link: h.client.LinkState().String()}
}

func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateResponse())
}

func (h *Handler) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.Statistics().Snapshot())
}

func (h *Handler) adjustSetpoint(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	snap := h.client.AdjustSetpoint(req.Delta)
	c.JSON(http.StatusOK, gin.H{"status": statusAdjusted, "state": snap})
}

func (h *Handler) commitSetpoint(c *gin.Context) {
	if err := h.client.CommitSetpoint(); err != nil {
		// The edit stays pending; a later commit or the next echo settles it
		h.logAndJSONError(c, http.StatusServiceUnavailable, errSendFailed, "commit setpoint", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusSent, "state": h.stateResponse()})
}

func (h *Handler) getSchedule(c *gin.Context) {
	snap := h.client.Snapshot()
	c.JSON(http.StatusOK, scheduleResponse{Entries: snap.Schedule[:], Known: snap.ScheduleKnown})
}

func (h *Handler) requestSchedule(c *gin.Context) {
	if err := h.client.RequestSchedule(); err != nil {
		h.logAndJSONError(c, http.StatusServiceUnavailable, errSendFailed, "request schedule", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusRequested})
}

func (h *Handler) submitSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if len(req.Entries) != thermolink.ScheduleSlots {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("%sexpected %d entries, got %d", errInvalidBodyPref, thermolink.ScheduleSlots, len(req.Entries)),
		})
		return
	}

	var sched thermolink.Schedule
	copy(sched[:], req.Entries)

	if err := h.client.SubmitSchedule(sched); err != nil {
		if errors.Is(err, remote.ErrInvalidSchedule) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusServiceUnavailable, errSendFailed, "submit schedule", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusSent, "entries": req.Entries})
}
