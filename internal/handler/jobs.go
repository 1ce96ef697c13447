package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/repository"
)

type JobHandler struct {
	jobRepo *repository.JobRepo
}

func NewJobHandler(jobRepo *repository.JobRepo) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

// ListJobs handles GET /jobs
// Hidden duplicates are excluded unless ?duplicates=true is set.
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := repository.JobFilter{
		Site:           c.Query("site"),
		Status:         c.Query("status"),
		Search:         c.Query("search"),
		ShowDuplicates: c.Query("duplicates") == "true",
	}
	if filter.Status != "" && !model.ValidStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
		return
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	jobs, err := h.jobRepo.List(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}
	if jobs == nil {
		jobs = []model.JobRecord{}
	}

	c.JSON(http.StatusOK, jobs)
}

// GetJob handles GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	job, err := h.jobRepo.FindByID(c.Request.Context(), jobID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetGroup handles GET /jobs/:id/group: every posting in the job's
// duplicate group, original first.
func (h *JobHandler) GetGroup(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	job, err := h.jobRepo.FindByID(c.Request.Context(), jobID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if job.DuplicateGroupID == nil {
		c.JSON(http.StatusOK, []model.JobRecord{*job})
		return
	}

	members, err := h.jobRepo.ListGroupMembers(c.Request.Context(), *job.DuplicateGroupID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list group members")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list group members"})
		return
	}

	c.JSON(http.StatusOK, members)
}

// ArchiveJob handles POST /jobs/:id/archive. Pulls a job out of the
// pipeline.
func (h *JobHandler) ArchiveJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	archived, err := h.jobRepo.Archive(c.Request.Context(), jobID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to archive job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive job"})
		return
	}
	if !archived {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found or already archived"})
		return
	}

	log.Info().Str("jobId", jobID.String()).Msg("Job archived by operator")
	c.JSON(http.StatusOK, gin.H{"archived": true})
}

// RequeueJob handles POST /jobs/:id/requeue. Returns an archived job to
// the review pipeline with a fresh retry budget.
func (h *JobHandler) RequeueJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return
	}

	requeued, err := h.jobRepo.Requeue(c.Request.Context(), jobID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to requeue job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to requeue job"})
		return
	}
	if !requeued {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not archived"})
		return
	}

	log.Info().Str("jobId", jobID.String()).Msg("Job requeued by operator")
	c.JSON(http.StatusOK, gin.H{"requeued": true})
}
