package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/repository"
	"github.com/yourusername/jobradar-api/internal/review"
)

type StatusHandler struct {
	jobRepo *repository.JobRepo
	queue   review.Queue
}

func NewStatusHandler(jobRepo *repository.JobRepo, queue review.Queue) *StatusHandler {
	return &StatusHandler{jobRepo: jobRepo, queue: queue}
}

// GetStatus handles GET /status. Returns the pipeline snapshot for dashboards.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	status, err := h.jobRepo.PipelineCounts(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read pipeline counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read pipeline status"})
		return
	}

	depth, err := h.queue.Depth(c.Request.Context())
	if err != nil {
		// The Postgres counts are still useful when Redis is down.
		log.Warn().Err(err).Msg("Failed to read queue depth")
		depth = -1
	}
	status.QueueDepth = depth

	c.JSON(http.StatusOK, status)
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "jobradar-api",
		"time":    time.Now().UTC(),
	})
}
