package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/model"
)

// ReviewStore is the persistence boundary for human overrides.
type ReviewStore interface {
	// GetByJobID returns the review for a job, or nil when none exists.
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*model.JobReview, error)

	// ApplyOverride sets only the override_* fields and returns the full
	// merged record. AI-origin fields are never touched.
	ApplyOverride(ctx context.Context, jobID uuid.UUID, recommend bool, comment, actor string, at time.Time) (*model.JobReview, error)
}

// OverrideService records human corrections of persisted verdicts without
// mutating the original AI output: the override lives in parallel fields
// so callers can display both verdicts side by side.
type OverrideService struct {
	reviews ReviewStore
}

func NewOverrideService(reviews ReviewStore) *OverrideService {
	return &OverrideService{reviews: reviews}
}

// Override stamps a human verdict onto an existing successful review.
// Returns ErrNotFound when the job has no successful review to override.
// Re-invoking with the same arguments re-stamps override_at; it never
// errors on "already overridden".
func (s *OverrideService) Override(ctx context.Context, jobID uuid.UUID, recommend bool, comment, actor string) (*model.JobReview, error) {
	existing, err := s.reviews.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading review for %s: %w", jobID, err)
	}
	if existing == nil || !existing.Succeeded() {
		return nil, ErrNotFound
	}

	merged, err := s.reviews.ApplyOverride(ctx, jobID, recommend, comment, actor, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("applying override for %s: %w", jobID, err)
	}

	log.Info().
		Str("jobId", jobID.String()).
		Bool("overrideRecommend", recommend).
		Str("actor", actor).
		Msg("Review overridden")

	return merged, nil
}
