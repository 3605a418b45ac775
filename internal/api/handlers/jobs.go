package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/pkmn-cataloguer/internal/models"
	"github.com/codyseavey/pkmn-cataloguer/internal/services"
)

type JobHandler struct {
	ledger    *services.JobLedger
	pricing   *services.PricingRefreshService
	metadata  *services.MetadataRefreshService
	scheduler *services.Scheduler
}

func NewJobHandler(ledger *services.JobLedger, pricing *services.PricingRefreshService, metadata *services.MetadataRefreshService, scheduler *services.Scheduler) *JobHandler {
	return &JobHandler{ledger: ledger, pricing: pricing, metadata: metadata, scheduler: scheduler}
}

func (h *JobHandler) currentJobs() (gin.H, bool, error) {
	pricing, err := h.ledger.CurrentRun(models.JobCategoryPricing)
	if err != nil {
		return nil, false, err
	}
	metadata, err := h.ledger.CurrentRun(models.JobCategoryMetadata)
	if err != nil {
		return nil, false, err
	}
	active := pricing != nil || metadata != nil
	return gin.H{"pricing": pricing, "metadata": metadata}, active, nil
}

func (h *JobHandler) GetCurrent(c *gin.Context) {
	current, _, err := h.currentJobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, current)
}

func (h *JobHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := h.ledger.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

const (
	streamActiveInterval = 2 * time.Second
	streamIdleInterval   = 10 * time.Second
)

// Stream pushes job progress as server-sent events. The handler polls the
// ledger rather than subscribing to the orchestrators, so a stream can
// attach or detach at any point in a run without coordination. Polling
// slows down while nothing is running.
func (h *JobHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		current, active, err := h.currentJobs()
		if err != nil {
			c.SSEvent("error", gin.H{"error": err.Error()})
			return false
		}

		c.SSEvent("progress", current)

		interval := streamIdleInterval
		if active {
			interval = streamActiveInterval
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
			return true
		}
	})
}

// TriggerRequest optionally restricts a manual refresh to specific cards.
type TriggerRequest struct {
	CardIDs []uint `json:"card_ids"`
}

func (h *JobHandler) TriggerPriceRefresh(c *gin.Context) {
	var req TriggerRequest
	_ = c.ShouldBindJSON(&req) // empty body means full batch

	job, err := h.pricing.Trigger("manual", req.CardIDs)
	if errors.Is(err, services.ErrJobAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *JobHandler) TriggerMetadataRefresh(c *gin.Context) {
	var req TriggerRequest
	_ = c.ShouldBindJSON(&req)

	job, err := h.metadata.Trigger("manual", req.CardIDs)
	if errors.Is(err, services.ErrJobAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *JobHandler) GetSchedulerStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	nextPricing, nextMetadata := h.scheduler.NextRuns()
	c.JSON(http.StatusOK, gin.H{
		"enabled":       true,
		"next_pricing":  nextPricing,
		"next_metadata": nextMetadata,
	})
}
