package handler

import (
	"net/http"
	"time"

	"github.com/froberg/shopsync/internal/repository"
	"github.com/froberg/shopsync/internal/service"
	"github.com/gin-gonic/gin"
)

// AggregateHandler exposes the daily aggregation engine.
type AggregateHandler struct {
	aggregation *service.AggregationService
	aggregates  *repository.AggregateRepository
}

// NewAggregateHandler creates a new aggregate handler.
func NewAggregateHandler(aggregation *service.AggregationService, aggregates *repository.AggregateRepository) *AggregateHandler {
	return &AggregateHandler{
		aggregation: aggregation,
		aggregates:  aggregates,
	}
}

// RunRequest triggers one aggregation run. target_date defaults to
// yesterday; shop limits the run to one tenant.
type RunRequest struct {
	TargetDate string `json:"target_date"`
	Shop       string `json:"shop"`
}

// Run handles POST /api/v1/aggregate/run.
func (h *AggregateHandler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
	}

	date := time.Now().UTC().AddDate(0, 0, -1)
	if req.TargetDate != "" {
		parsed, err := time.Parse("2006-01-02", req.TargetDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid target_date: " + err.Error(),
			})
			return
		}
		date = parsed
	}

	ctx := c.Request.Context()

	if req.Shop != "" {
		agg, reagg, err := h.aggregation.AggregateWithRefresh(ctx, req.Shop, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Aggregation failed: " + err.Error(),
			})
			return
		}
		result := service.ShopDayResult{Shop: req.Shop, Aggregate: agg}
		for _, d := range reagg {
			result.Reaggregated = append(result.Reaggregated, d.Format("2006-01-02"))
		}
		c.JSON(http.StatusOK, result)
		return
	}

	summary, err := h.aggregation.AggregateAll(ctx, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Aggregation failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Get handles GET /api/v1/aggregates. Requires shop and date query
// parameters and returns every stored dimension row for that day.
func (h *AggregateHandler) Get(c *gin.Context) {
	shop := c.Query("shop")
	if shop == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'shop' is required",
		})
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid date: " + err.Error(),
		})
		return
	}

	rows, err := h.aggregates.GetForDay(c.Request.Context(), shop, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load aggregates: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shop":       shop,
		"date":       date.Format("2006-01-02"),
		"aggregates": rows,
		"total":      len(rows),
	})
}
