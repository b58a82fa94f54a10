// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi exposes the thermostat client over HTTP: the mirrored
// state for dashboards and the same intents the terminal UI issues.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/thermoremote/pkg/link"
	"github.com/Thermoquad/thermoremote/pkg/logging"
	"github.com/Thermoquad/thermoremote/pkg/mirror"
	"github.com/Thermoquad/thermoremote/pkg/thermolink"
)

// Controller is the part of remote.Client the HTTP layer drives
type Controller interface {
	Snapshot() mirror.Snapshot
	AdjustSetpoint(delta int) mirror.Snapshot
	CommitSetpoint() error
	RequestSchedule() error
	SubmitSchedule(s thermolink.Schedule) error
	LinkState() link.State
	Statistics() *thermolink.Statistics
}

// Handler wires the HTTP layer to the client and logging
type Handler struct {
	client  Controller
	log     *logging.Logger
	metrics http.Handler
}

// NewHandler constructs a new HTTP handler. metricsHandler may be nil to
// leave /metrics unrouted.
func NewHandler(client Controller, log *logging.Logger, metricsHandler http.Handler) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{client: client, log: log, metrics: metricsHandler}
}

// InitRoutes builds and returns the Gin router with all routes registered
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/state", h.getState)
		api.GET("/stats", h.getStats)
		h.registerSetpointRoutes(api)
		h.registerScheduleRoutes(api)
	}
}

func (h *Handler) registerSetpointRoutes(api *gin.RouterGroup) {
	setpoint := api.Group("/setpoint")
	{
		// Body example: {"delta":1}
		setpoint.POST("/adjust", h.adjustSetpoint)
		setpoint.POST("/commit", h.commitSetpoint)
	}
}

func (h *Handler) registerScheduleRoutes(api *gin.RouterGroup) {
	schedule := api.Group("/schedule")
	{
		schedule.GET("", h.getSchedule)
		// Body example: {"entries":[{"hour":8,"minute":0,"setpoint":20},{"hour":20,"minute":0,"setpoint":15}]}
		schedule.POST("", h.submitSchedule)
		schedule.POST("/request", h.requestSchedule)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
		"link":   h.client.LinkState().String(),
	})
}
