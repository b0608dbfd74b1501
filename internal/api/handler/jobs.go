package handler

import (
	"net/http"
	"strconv"

	"github.com/froberg/shopsync/internal/domain"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/gin-gonic/gin"
)

// JobHandler exposes the sync job ledger for inspection.
type JobHandler struct {
	jobs *repository.JobRepository
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs *repository.JobRepository) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// List handles GET /api/v1/jobs. Supports shop, object_type, status, limit
// and offset query parameters.
func (h *JobHandler) List(c *gin.Context) {
	objectType := domain.ObjectType(c.Query("object_type"))
	if objectType != "" && !objectType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown object type: " + string(objectType),
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	jobs, err := h.jobs.List(c.Request.Context(), c.Query("shop"), objectType,
		domain.JobStatus(c.Query("status")), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Stats handles GET /api/v1/jobs/stats. Supports shop and object_type
// query parameters.
func (h *JobHandler) Stats(c *gin.Context) {
	objectType := domain.ObjectType(c.Query("object_type"))
	if objectType != "" && !objectType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown object type: " + string(objectType),
		})
		return
	}

	stats, err := h.jobs.Stats(c.Request.Context(), objectType, c.Query("shop"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute job stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
