package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/repository"
	"github.com/yourusername/jobradar-api/internal/review"
)

type ReviewHandler struct {
	reviewRepo *repository.ReviewRepo
	overrides  *review.OverrideService
}

func NewReviewHandler(reviewRepo *repository.ReviewRepo, overrides *review.OverrideService) *ReviewHandler {
	return &ReviewHandler{reviewRepo: reviewRepo, overrides: overrides}
}

// GetReview handles GET /jobs/:id/review
func (h *ReviewHandler) GetReview(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	rev, err := h.reviewRepo.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get review")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get review"})
		return
	}
	if rev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No review for this job"})
		return
	}

	c.JSON(http.StatusOK, rev)
}

type overrideRequest struct {
	Recommend *bool  `json:"recommend" binding:"required"`
	Comment   string `json:"comment"`
	Actor     string `json:"actor"`
}

// OverrideReview handles POST /jobs/:id/override. Records a human
// verdict alongside the AI one without touching it.
func (h *ReviewHandler) OverrideReview(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: recommend is required"})
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "operator"
	}

	merged, err := h.overrides.Override(c.Request.Context(), jobID, *req.Recommend, req.Comment, actor)
	if errors.Is(err, review.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job has no successful review to override"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to override review")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to override review"})
		return
	}

	c.JSON(http.StatusOK, merged)
}

// ListRecommended handles GET /reviews: successful reviews filtered by
// final verdict (the override wins over the AI recommendation).
func (h *ReviewHandler) ListRecommended(c *gin.Context) {
	recommend := c.DefaultQuery("recommend", "true") == "true"

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	reviews, err := h.reviewRepo.ListRecommended(c.Request.Context(), recommend, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list reviews")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews"})
		return
	}

	c.JSON(http.StatusOK, reviews)
}
