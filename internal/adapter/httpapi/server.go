// Package httpapi exposes the admin HTTP API: health, job listing, reload
// and manual runs.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hotcron/internal/jobs"
	"hotcron/internal/shared"
)

// Service is the part of the scheduler the API drives.
type Service interface {
	Snapshots() []jobs.Snapshot
	Reload(ctx context.Context) error
	TriggerJob(index int) error
}

// ChannelStates reports notification channel breaker states by name.
type ChannelStates func() map[string]string

type Handler struct {
	svc      Service
	channels ChannelStates
	log      *slog.Logger
}

func New(svc Service, channels ChannelStates, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, channels: channels, log: log.With("component", "httpapi")}
}

// Router builds the gin engine with all routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/healthz", h.healthz)
	r.GET("/jobs", h.listJobs)
	r.POST("/reload", h.reload)
	r.POST("/jobs/:index/run", h.runJob)
	return r
}

// GET /healthz
func (h *Handler) healthz(c *gin.Context) {
	body := gin.H{"status": "ok", "jobs": len(h.svc.Snapshots())}
	if h.channels != nil {
		body["channels"] = h.channels()
	}
	c.JSON(http.StatusOK, body)
}

// GET /jobs
func (h *Handler) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshots())
}

// POST /reload
func (h *Handler) reload(c *gin.Context) {
	if err := h.svc.Reload(c.Request.Context()); err != nil {
		h.log.Warn("reload via api failed", "err", err)
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": len(h.svc.Snapshots())})
}

// POST /jobs/:index/run
func (h *Handler) runJob(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	if err := h.svc.TriggerJob(index); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"index": index})
}

func statusOf(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindReloadCanceled:
		return http.StatusConflict
	case shared.KindCanceled, shared.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
