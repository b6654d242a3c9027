// Package server exposes run control and status over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"device-report/progress"
	"device-report/service"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "device-report"

// Runner starts runs in the background.
type Runner interface {
	Start(ctx context.Context, identity string) (string, error)
	Running() bool
}

type StatusSource interface {
	Snapshot() progress.Snapshot
}

type Handlers struct {
	runner Runner
	status StatusSource
	// ctx outlives the request that started a run.
	ctx context.Context
}

func NewHandlers(ctx context.Context, runner Runner, status StatusSource) *Handlers {
	return &Handlers{runner: runner, status: status, ctx: ctx}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": h.runner.Running(),
		"last":    h.status.Snapshot(),
	})
}

type runRequest struct {
	Identity string `json:"identity"`
}

// StartRun begins a run and answers 202 with its id, or 409 while another
// run is active.
func (h *Handlers) StartRun(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	id, err := h.runner.Start(h.ctx, req.Identity)
	if errors.Is(err, service.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Errorf("Failed to start run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

// NewRouter wires the routes, compression and request logging.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	})

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/status", h.Status)
		api.POST("/run", h.StartRun)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
