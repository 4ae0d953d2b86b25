package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
	syncpkg "github.com/devitechsolutions/vextr-sub000/pkg/sync"
)

// SyncController exposes the sync engine's control plane.
type SyncController struct {
	orchestrator *syncpkg.Orchestrator
	scheduler    *syncpkg.Scheduler
	log          *logger.Logger
	tracer       trace.Tracer
}

// NewSyncController creates the controller.
func NewSyncController(orchestrator *syncpkg.Orchestrator, scheduler *syncpkg.Scheduler, log *logger.Logger) *SyncController {
	if log == nil {
		log = logger.GetDefault()
	}
	return &SyncController{
		orchestrator: orchestrator,
		scheduler:    scheduler,
		log:          log.WithField("component", "sync_controller"),
		tracer:       otel.Tracer("vextr.api.sync"),
	}
}

// RegisterRoutes mounts the sync endpoints on the given group.
func (c *SyncController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/status", c.GetStatus)
	group.GET("/history", c.GetHistory)
	group.POST("/trigger", c.TriggerSync)
	group.PUT("/config", c.UpdateConfig)
	group.POST("/auto/start", c.StartAutoSync)
	group.POST("/auto/stop", c.StopAutoSync)
	group.POST("/candidates/:id/status", c.PushCandidateStatus)
}

// GetStatus returns one consistent snapshot of the engine.
func (c *SyncController) GetStatus(ctx *gin.Context) {
	_, span := c.tracer.Start(ctx.Request.Context(), "sync.get_status")
	defer span.End()

	ctx.JSON(http.StatusOK, c.orchestrator.Snapshot())
}

// GetHistory returns recent sync outcomes, most recent first.
func (c *SyncController) GetHistory(ctx *gin.Context) {
	spanCtx, span := c.tracer.Start(ctx.Request.Context(), "sync.get_history")
	defer span.End()

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	span.SetAttributes(attribute.Int("history.limit", limit))

	entries, err := c.orchestrator.History(spanCtx, limit)
	if err != nil {
		c.log.WithError(err).Error("Failed to load sync history")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync history"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

// TriggerSync starts a run in the background and returns immediately.
// A run already in flight yields 409.
func (c *SyncController) TriggerSync(ctx *gin.Context) {
	_, span := c.tracer.Start(ctx.Request.Context(), "sync.trigger")
	defer span.End()

	snap := c.orchestrator.Snapshot()
	if snap.IsRunning {
		ctx.JSON(http.StatusConflict, gin.H{"error": syncpkg.ErrSyncInProgress.Error()})
		return
	}

	// Detached from the request context: the run outlives the response.
	go func() {
		if err := c.orchestrator.SyncAll(context.Background(), syncpkg.DirectionFromExternal); err != nil {
			c.log.WithError(err).Error("Triggered sync run failed")
		}
	}()

	ctx.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
}

type configRequest struct {
	SyncInterval   string `json:"syncInterval" binding:"required"`
	EnableAutoSync bool   `json:"enableAutoSync"`
}

// UpdateConfig applies a new interval and auto-sync flag atomically.
func (c *SyncController) UpdateConfig(ctx *gin.Context) {
	_, span := c.tracer.Start(ctx.Request.Context(), "sync.update_config")
	defer span.End()

	var req configRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	interval, err := time.ParseDuration(req.SyncInterval)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "syncInterval must be a duration like 30m"})
		return
	}

	if err := c.scheduler.Update(interval, req.EnableAutoSync); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.log.WithFields(map[string]interface{}{
		"interval":  interval.String(),
		"auto_sync": req.EnableAutoSync,
	}).Info("Sync configuration updated")
	ctx.JSON(http.StatusOK, gin.H{
		"syncInterval":   interval.String(),
		"enableAutoSync": req.EnableAutoSync,
	})
}

// StartAutoSync enables the periodic scheduler.
func (c *SyncController) StartAutoSync(ctx *gin.Context) {
	if err := c.scheduler.Start(); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"enableAutoSync": true})
}

// StopAutoSync disables the periodic scheduler.
func (c *SyncController) StopAutoSync(ctx *gin.Context) {
	c.scheduler.Stop()
	ctx.JSON(http.StatusOK, gin.H{"enableAutoSync": false})
}

type statusPushRequest struct {
	Status string `json:"status" binding:"required"`
}

// PushCandidateStatus writes a locally decided candidate status back to
// the CRM.
func (c *SyncController) PushCandidateStatus(ctx *gin.Context) {
	spanCtx, span := c.tracer.Start(ctx.Request.Context(), "sync.push_candidate_status")
	defer span.End()

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate id"})
		return
	}

	var req statusPushRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := c.orchestrator.PushCandidateStatus(spanCtx, id, req.Status); err != nil {
		c.log.WithError(err).WithField("candidate_id", id.String()).Error("Candidate status push failed")
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": id.String(), "status": req.Status})
}
