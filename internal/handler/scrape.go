package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/repository"
	"github.com/yourusername/jobradar-api/internal/service"
)

type ScrapeHandler struct {
	scrapes *service.ScrapeService
	runs    *repository.RunRepo
}

func NewScrapeHandler(scrapes *service.ScrapeService, runs *repository.RunRepo) *ScrapeHandler {
	return &ScrapeHandler{scrapes: scrapes, runs: runs}
}

// TriggerScrape handles POST /scrape/:site. Runs the site's active
// schedules immediately.
func (h *ScrapeHandler) TriggerScrape(c *gin.Context) {
	site := c.Param("site")

	runs, err := h.scrapes.TriggerSite(c.Request.Context(), site)
	if err != nil {
		if strings.Contains(err.Error(), "unknown site") || strings.Contains(err.Error(), "no active schedule") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, service.ErrSourceNotConfigured) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("site", site).Msg("Manual scrape failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scrape failed", "runs": runs})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// ListRuns handles GET /runs
func (h *ScrapeHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list scrape runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scrape runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// ListSchedules handles GET /schedules
func (h *ScrapeHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.runs.ListSchedules(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		log.Error().Err(err).Msg("Failed to list schedules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list schedules"})
		return
	}

	c.JSON(http.StatusOK, schedules)
}

type scheduleRequest struct {
	SearchTerms   []string `json:"searchTerms"`
	Location      string   `json:"location"`
	IntervalHours int      `json:"intervalHours" binding:"required,min=1"`
	Active        *bool    `json:"active" binding:"required"`
}

// UpdateSchedule handles PUT /schedules/:id
func (h *ScrapeHandler) UpdateSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule ID"})
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	schedules, err := h.runs.ListSchedules(c.Request.Context(), false)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update schedule"})
		return
	}

	for i := range schedules {
		if schedules[i].ID != id {
			continue
		}
		schedules[i].SearchTerms = req.SearchTerms
		schedules[i].Location = req.Location
		schedules[i].IntervalHours = req.IntervalHours
		schedules[i].Active = *req.Active

		updated, err := h.runs.UpdateSchedule(c.Request.Context(), &schedules[i])
		if err != nil {
			log.Error().Err(err).Msg("Failed to update schedule")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update schedule"})
			return
		}
		c.JSON(http.StatusOK, updated)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
}
