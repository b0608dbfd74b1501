package handler

import (
	"net/http"
	"time"

	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/service"
	"github.com/gin-gonic/gin"
)

// SyncHandler handles sync orchestration endpoints: seeding backfills and
// triggering scheduling passes.
type SyncHandler struct {
	scheduler *service.Scheduler
	seeder    *service.SeederService
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(scheduler *service.Scheduler, seeder *service.SeederService) *SyncHandler {
	return &SyncHandler{
		scheduler: scheduler,
		seeder:    seeder,
	}
}

// DispatchRequest narrows one scheduling pass. Both fields are optional.
type DispatchRequest struct {
	ObjectType string `json:"object_type"`
	Shop       string `json:"shop"`
}

// Dispatch handles POST /api/v1/sync/dispatch. It runs one scheduling pass
// and returns its outcome; the caller re-invokes until complete is true.
func (h *SyncHandler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
	}

	objectType := domain.ObjectType(req.ObjectType)
	if req.ObjectType != "" && !objectType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown object type: " + req.ObjectType,
		})
		return
	}

	result, err := h.scheduler.RunPass(c.Request.Context(), service.DispatchFilter{
		ObjectType: objectType,
		Shop:       req.Shop,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Scheduling pass failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// BackfillRequest seeds sync jobs for a date range. Dates are calendar
// dates (YYYY-MM-DD), both inclusive. Empty object_types means all.
type BackfillRequest struct {
	Shops       []string `json:"shops" binding:"required,min=1"`
	ObjectTypes []string `json:"object_types"`
	StartDate   string   `json:"start_date" binding:"required"`
	EndDate     string   `json:"end_date" binding:"required"`
}

// Backfill handles POST /api/v1/sync/backfill.
func (h *SyncHandler) Backfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid start_date: " + err.Error(),
		})
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid end_date: " + err.Error(),
		})
		return
	}

	types := make([]domain.ObjectType, 0, len(req.ObjectTypes))
	for _, t := range req.ObjectTypes {
		types = append(types, domain.ObjectType(t))
	}

	created, err := h.seeder.Seed(c.Request.Context(), service.SeedRequest{
		Shops:       req.Shops,
		ObjectTypes: types,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Backfill seeding failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"jobs_created": created,
	})
}
