package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourusername/jobradar-api/internal/ingest"
	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/review"
)

const jobColumns = `id, site, job_url, title, company, location_city, location_state,
	location_country, is_remote, description, job_type, min_amount, max_amount,
	currency, pay_interval, date_posted, source_raw, canonical_key, fingerprint,
	duplicate_group_id, duplicate_status, status, retry_count, next_retry_at,
	ingested_at, updated_at`

func scanJob(row pgx.Row) (*model.JobRecord, error) {
	var j model.JobRecord
	err := row.Scan(
		&j.ID, &j.Site, &j.JobURL, &j.Title, &j.Company, &j.LocationCity,
		&j.LocationState, &j.LocationCountry, &j.IsRemote, &j.Description,
		&j.JobType, &j.MinAmount, &j.MaxAmount, &j.Currency, &j.Interval,
		&j.DatePosted, &j.SourceRaw, &j.CanonicalKey, &j.Fingerprint,
		&j.DuplicateGroupID, &j.DuplicateStatus, &j.Status, &j.RetryCount,
		&j.NextRetryAt, &j.IngestedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// JobRepo persists JobRecords. It backs both the ingestion upsert
// transaction and the review pipeline's claim/retry operations.
type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// JobFilter narrows List. Zero values mean "no filter".
type JobFilter struct {
	Site           string
	Status         string
	Search         string
	ShowDuplicates bool // include duplicate_hidden members
	Limit          int
	Offset         int
}

// List returns jobs newest-first. Hidden duplicates are excluded unless
// the filter asks for them.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]model.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if !filter.ShowDuplicates {
		query += fmt.Sprintf(" AND duplicate_status = $%d", argIdx)
		args = append(args, model.DuplicateOriginal)
		argIdx++
	}
	if filter.Site != "" {
		query += fmt.Sprintf(" AND site = $%d", argIdx)
		args = append(args, filter.Site)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (LOWER(title) LIKE $%d OR LOWER(company) LIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	query += " ORDER BY ingested_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

// FindByID returns one job, or nil when it does not exist.
func (r *JobRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.JobRecord, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding job: %w", err)
	}
	return j, nil
}

// ListGroupMembers returns every member of a duplicate group, original
// first.
func (r *JobRepo) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.JobRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE duplicate_group_id = $1
		ORDER BY (duplicate_status = 'original') DESC, ingested_at ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing group members: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

// StatusCounts returns the number of jobs per workflow status.
func (r *JobRepo) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	return counts, nil
}

// PipelineCounts fills the aggregate snapshot fields that come from
// Postgres (the queue depth is the caller's to add).
func (r *JobRepo) PipelineCounts(ctx context.Context) (*model.PipelineStatus, error) {
	counts, err := r.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	status := &model.PipelineStatus{StatusCounts: counts}

	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM jobs WHERE status = 'pending_review' AND retry_count > 0),
			(SELECT COUNT(*) FROM job_reviews WHERE error_message <> ''),
			(SELECT COUNT(DISTINCT duplicate_group_id) FROM jobs WHERE duplicate_group_id IS NOT NULL)
	`).Scan(&status.RetryingJobs, &status.ErrorCount, &status.GroupCount)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline counts: %w", err)
	}
	return status, nil
}

// Archive removes a job from the pipeline by operator decision. Returns
// false when the job does not exist or is already archived. A job
// mid-evaluation stays claimable by neither poller nor worker afterward;
// the worker discards its verdict as a stale entry.
func (r *JobRepo) Archive(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'archived', next_retry_at = NULL, updated_at = now()
		WHERE id = $1 AND status <> 'archived'
	`, id)
	if err != nil {
		return false, fmt.Errorf("archiving job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Requeue returns an archived job to pending_review with a fresh retry
// budget. Returns false when the job was not archived.
func (r *JobRepo) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending_review', retry_count = 0, next_retry_at = NULL,
		    last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'archived'
	`, id)
	if err != nil {
		return false, fmt.Errorf("requeueing job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ── ingest.Store ───────────────────────────────────────

// InTx runs fn inside one serializable transaction. Row locks alone do
// not cover group members that do not exist yet, so concurrent first
// ingests of the same canonical key must conflict at commit instead of
// both founding a group. Unique-key and serialization failures are
// mapped to the ingestion sentinels so the upsert loop can retry
// against fresh state.
func (r *JobRepo) InTx(ctx context.Context, fn func(ingest.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&jobTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("committing upsert transaction: %w", err))
	}
	return nil
}

// mapPgError converts Postgres failure codes into the ingestion sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ingest.ErrConflict, pgErr.ConstraintName)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ingest.ErrSerialization, pgErr.Message)
		}
	}
	return err
}

// jobTx is the per-transaction view handed to the ingestion service.
type jobTx struct {
	tx pgx.Tx
}

func (t *jobTx) FindBySiteURL(ctx context.Context, site, jobURL string) (*model.JobRecord, error) {
	j, err := scanJob(t.tx.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE site = $1 AND job_url = $2 FOR UPDATE
	`, site, jobURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding job by site/url: %w", err)
	}
	return j, nil
}

// ListGroup reads the whole group under FOR UPDATE. The row locks make
// concurrent re-ranks of an existing key conflict early; phantom group
// members are caught by the serializable isolation at commit.
func (t *jobTx) ListGroup(ctx context.Context, canonicalKey string) ([]model.JobRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE canonical_key = $1
		ORDER BY ingested_at ASC
		FOR UPDATE
	`, canonicalKey)
	if err != nil {
		return nil, fmt.Errorf("locking duplicate group: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (t *jobTx) Insert(ctx context.Context, j *model.JobRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO jobs (id, site, job_url, title, company, location_city,
		                  location_state, location_country, is_remote, description,
		                  job_type, min_amount, max_amount, currency, pay_interval,
		                  date_posted, source_raw, canonical_key, fingerprint,
		                  duplicate_group_id, duplicate_status, status,
		                  ingested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`, j.ID, j.Site, j.JobURL, j.Title, j.Company, j.LocationCity,
		j.LocationState, j.LocationCountry, j.IsRemote, j.Description,
		j.JobType, j.MinAmount, j.MaxAmount, j.Currency, j.Interval,
		j.DatePosted, j.SourceRaw, j.CanonicalKey, j.Fingerprint,
		j.DuplicateGroupID, j.DuplicateStatus, j.Status,
		j.IngestedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (t *jobTx) UpdateContent(ctx context.Context, j *model.JobRecord) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE jobs
		SET title = $2, company = $3, location_city = $4, location_state = $5,
		    location_country = $6, is_remote = $7, description = $8, job_type = $9,
		    min_amount = $10, max_amount = $11, currency = $12, pay_interval = $13,
		    date_posted = $14, source_raw = $15, canonical_key = $16,
		    fingerprint = $17, updated_at = now()
		WHERE id = $1
	`, j.ID, j.Title, j.Company, j.LocationCity, j.LocationState,
		j.LocationCountry, j.IsRemote, j.Description, j.JobType,
		j.MinAmount, j.MaxAmount, j.Currency, j.Interval,
		j.DatePosted, j.SourceRaw, j.CanonicalKey, j.Fingerprint)
	if err != nil {
		return fmt.Errorf("updating job content: %w", err)
	}
	return nil
}

func (t *jobTx) SetDuplicateStatus(ctx context.Context, id, groupID uuid.UUID, status string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE jobs
		SET duplicate_group_id = $2, duplicate_status = $3, updated_at = now()
		WHERE id = $1
	`, id, groupID, status)
	if err != nil {
		return fmt.Errorf("setting duplicate status: %w", err)
	}
	return nil
}

// ── review.Store ───────────────────────────────────────

func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM jobs
		WHERE status = 'pending_review'
		  AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY ingested_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning pending id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Claim flips pending_review to in_review. The status guard in the WHERE
// clause makes the claim atomic: of N concurrent claimants exactly one
// sees RowsAffected == 1.
func (r *JobRepo) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'in_review', updated_at = now()
		WHERE id = $1 AND status = 'pending_review'
	`, id)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepo) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending_review', updated_at = now()
		WHERE id = $1 AND status = 'in_review'
	`, id)
	if err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, id uuid.UUID) (*model.JobRecord, error) {
	return r.FindByID(ctx, id)
}

// MarkReviewed writes the verdict and flips the job to reviewed in one
// transaction. The status flip is guarded on in_review so a verdict for
// a job an operator archived mid-evaluation is discarded rather than
// resurrected. A failure-marker row left by an earlier exhausted run is
// overwritten; a successful verdict never is.
func (r *JobRepo) MarkReviewed(ctx context.Context, id uuid.UUID, rev *model.JobReview) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning review transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'reviewed', updated_at = now()
		WHERE id = $1 AND status = 'in_review'
	`, id)
	if err != nil {
		return fmt.Errorf("marking job reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrClaimLost
	}

	var reviewID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO job_reviews (job_id, recommend, confidence, rationale, personas,
		                         tradeoffs, actions, sources, crew_output,
		                         processing_time_seconds, model_used, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (job_id) DO UPDATE
		SET recommend = EXCLUDED.recommend,
		    confidence = EXCLUDED.confidence,
		    rationale = EXCLUDED.rationale,
		    personas = EXCLUDED.personas,
		    tradeoffs = EXCLUDED.tradeoffs,
		    actions = EXCLUDED.actions,
		    sources = EXCLUDED.sources,
		    crew_output = EXCLUDED.crew_output,
		    processing_time_seconds = EXCLUDED.processing_time_seconds,
		    model_used = EXCLUDED.model_used,
		    retry_count = EXCLUDED.retry_count,
		    error_message = '',
		    updated_at = now()
		WHERE job_reviews.recommend IS NULL
		RETURNING id
	`, id, rev.Recommend, rev.Confidence, rev.Rationale, rev.Personas,
		rev.Tradeoffs, rev.Actions, rev.Sources, rev.CrewOutput,
		rev.ProcessingTimeSeconds, rev.ModelUsed, rev.RetryCount,
	).Scan(&reviewID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conditional upsert matched an existing successful verdict.
		return review.ErrAlreadyReviewed
	}
	if err != nil {
		return fmt.Errorf("inserting review: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing review transaction: %w", err)
	}
	return nil
}

func (r *JobRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, lastErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending_review', retry_count = $2, next_retry_at = $3,
		    last_error = $4, updated_at = now()
		WHERE id = $1 AND status = 'in_review'
	`, id, retryCount, nextRetryAt, lastErr)
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	return nil
}

func (r *JobRepo) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning failure transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'archived', retry_count = $2, next_retry_at = NULL,
		    last_error = $3, updated_at = now()
		WHERE id = $1 AND status = 'in_review'
	`, id, retryCount, errMsg)
	if err != nil {
		return fmt.Errorf("archiving job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO job_reviews (job_id, error_message, retry_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET error_message = EXCLUDED.error_message,
		    retry_count = EXCLUDED.retry_count,
		    updated_at = now()
		WHERE job_reviews.recommend IS NULL
	`, id, errMsg, retryCount)
	if err != nil {
		return fmt.Errorf("recording failure review: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing failure transaction: %w", err)
	}
	return nil
}
