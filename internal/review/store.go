package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/jobradar-api/internal/model"
)

// ErrNotFound is returned when a job or review the caller named does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyReviewed is returned when a worker tries to persist a verdict
// for a job that already carries a successful one. Under correct queue
// semantics this cannot happen; it is surfaced so the violation is loud.
var ErrAlreadyReviewed = errors.New("job already has a successful review")

// ErrClaimLost is returned when a verdict arrives for a job that is no
// longer in_review, e.g. an operator archived it mid-evaluation. The
// verdict is discarded and the record left untouched.
var ErrClaimLost = errors.New("job is no longer in_review")

// Store is the persistence boundary the poller and workers coordinate
// through. The claim operation is the pipeline's serialization point: it
// must be atomic per job id.
type Store interface {
	// ListPending returns up to limit ids with status=pending_review whose
	// retry backoff, if any, has elapsed.
	ListPending(ctx context.Context, limit int) ([]uuid.UUID, error)

	// Claim transitions id from pending_review to in_review. It returns
	// false when the record was not in pending_review, i.e. another
	// claimant won.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	// Release undoes a claim, returning the record to pending_review.
	// Used when the enqueue half of claim-then-enqueue fails.
	Release(ctx context.Context, id uuid.UUID) error

	GetJob(ctx context.Context, id uuid.UUID) (*model.JobRecord, error)

	// MarkReviewed persists the verdict and flips status to reviewed in
	// one atomic unit. Returns ErrClaimLost if the job left in_review
	// while the verdict was in flight, ErrAlreadyReviewed if a
	// successful review already exists for the job.
	MarkReviewed(ctx context.Context, id uuid.UUID, rev *model.JobReview) error

	// ScheduleRetry records a failed attempt that is still within the
	// retry budget: bumps retry_count, stores the backoff deadline, and
	// returns the record to pending_review.
	ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, lastErr string) error

	// MarkFailed records a terminal failure: archives the record and
	// writes a failure review row carrying error_message and the final
	// retry_count, so the job is inspectable and manually re-queueable.
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
}
