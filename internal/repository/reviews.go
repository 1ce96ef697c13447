package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/review"
)

const reviewColumns = `id, job_id, recommend, confidence, rationale, personas,
	tradeoffs, actions, sources, crew_output, processing_time_seconds,
	model_used, error_message, retry_count, override_recommend,
	override_comment, override_by, override_at, created_at, updated_at`

func scanReview(row pgx.Row) (*model.JobReview, error) {
	var rev model.JobReview
	err := row.Scan(
		&rev.ID, &rev.JobID, &rev.Recommend, &rev.Confidence, &rev.Rationale,
		&rev.Personas, &rev.Tradeoffs, &rev.Actions, &rev.Sources,
		&rev.CrewOutput, &rev.ProcessingTimeSeconds, &rev.ModelUsed,
		&rev.ErrorMessage, &rev.RetryCount, &rev.OverrideRecommend,
		&rev.OverrideComment, &rev.OverrideBy, &rev.OverrideAt,
		&rev.CreatedAt, &rev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// ReviewRepo persists JobReviews (1:1 with jobs by job_id).
type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

// GetByJobID returns the review for a job, or nil when none exists.
func (r *ReviewRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*model.JobReview, error) {
	rev, err := scanReview(r.pool.QueryRow(ctx, `
		SELECT `+reviewColumns+` FROM job_reviews WHERE job_id = $1
	`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding review: %w", err)
	}
	return rev, nil
}

// ApplyOverride stamps the override_* fields, leaving every AI-origin
// column untouched, and returns the merged record.
func (r *ReviewRepo) ApplyOverride(ctx context.Context, jobID uuid.UUID, recommend bool, comment, actor string, at time.Time) (*model.JobReview, error) {
	rev, err := scanReview(r.pool.QueryRow(ctx, `
		UPDATE job_reviews
		SET override_recommend = $2, override_comment = $3, override_by = $4,
		    override_at = $5, updated_at = now()
		WHERE job_id = $1
		RETURNING `+reviewColumns+`
	`, jobID, recommend, comment, actor, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, review.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("applying override: %w", err)
	}
	return rev, nil
}

// ListRecommended returns successful reviews filtered by final verdict:
// the override, where present, wins over the AI recommendation.
func (r *ReviewRepo) ListRecommended(ctx context.Context, recommend bool, limit int) ([]model.JobReview, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM job_reviews
		WHERE recommend IS NOT NULL
		  AND COALESCE(override_recommend, recommend) = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recommend, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.JobReview
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning review row: %w", err)
		}
		reviews = append(reviews, *rev)
	}
	return reviews, nil
}
