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
)

// RunRepo persists scrape runs and site schedules.
type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// StartRun records the beginning of a scrape batch and returns its id.
func (r *RunRepo) StartRun(ctx context.Context, site, trigger string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (site, trigger)
		VALUES ($1, $2)
		RETURNING id
	`, site, trigger).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("starting scrape run: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome counts for a run.
func (r *RunRepo) FinishRun(ctx context.Context, run *model.ScrapeRun) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scrape_runs
		SET fetched = $2, inserted = $3, updated = $4, duplicates = $5,
		    failed = $6, error = $7, finished_at = now()
		WHERE id = $1
	`, run.ID, run.Fetched, run.Inserted, run.Updated, run.Duplicates,
		run.Failed, run.Error)
	if err != nil {
		return fmt.Errorf("finishing scrape run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, site, trigger, fetched, inserted, updated, duplicates,
		       failed, error, started_at, finished_at
		FROM scrape_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var run model.ScrapeRun
		err := rows.Scan(
			&run.ID, &run.Site, &run.Trigger, &run.Fetched, &run.Inserted,
			&run.Updated, &run.Duplicates, &run.Failed, &run.Error,
			&run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning scrape run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListSchedules returns site schedules; activeOnly narrows to enabled
// ones.
func (r *RunRepo) ListSchedules(ctx context.Context, activeOnly bool) ([]model.SiteSchedule, error) {
	query := `
		SELECT id, site, search_terms, location, interval_hours, active,
		       last_run_at, created_at, updated_at
		FROM site_schedules
	`
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY site"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing site schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.SiteSchedule
	for rows.Next() {
		var s model.SiteSchedule
		err := rows.Scan(
			&s.ID, &s.Site, &s.SearchTerms, &s.Location, &s.IntervalHours,
			&s.Active, &s.LastRunAt, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning site schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// ListDue returns active schedules whose interval has elapsed since their
// last run (or that have never run).
func (r *RunRepo) ListDue(ctx context.Context, now time.Time) ([]model.SiteSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, site, search_terms, location, interval_hours, active,
		       last_run_at, created_at, updated_at
		FROM site_schedules
		WHERE active
		  AND (last_run_at IS NULL
		       OR last_run_at + make_interval(hours => interval_hours) <= $1)
		ORDER BY site
	`, now)
	if err != nil {
		return nil, fmt.Errorf("listing due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.SiteSchedule
	for rows.Next() {
		var s model.SiteSchedule
		err := rows.Scan(
			&s.ID, &s.Site, &s.SearchTerms, &s.Location, &s.IntervalHours,
			&s.Active, &s.LastRunAt, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning due schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// TouchSchedule stamps last_run_at after a scrape.
func (r *RunRepo) TouchSchedule(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE site_schedules SET last_run_at = $2, updated_at = now() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touching site schedule: %w", err)
	}
	return nil
}

// UpdateSchedule edits a schedule's terms, cadence, and active flag.
func (r *RunRepo) UpdateSchedule(ctx context.Context, s *model.SiteSchedule) (*model.SiteSchedule, error) {
	var updated model.SiteSchedule
	err := r.pool.QueryRow(ctx, `
		UPDATE site_schedules
		SET search_terms = $2, location = $3, interval_hours = $4, active = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, site, search_terms, location, interval_hours, active,
		          last_run_at, created_at, updated_at
	`, s.ID, s.SearchTerms, s.Location, s.IntervalHours, s.Active).Scan(
		&updated.ID, &updated.Site, &updated.SearchTerms, &updated.Location,
		&updated.IntervalHours, &updated.Active, &updated.LastRunAt,
		&updated.CreatedAt, &updated.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating site schedule: %w", err)
	}
	return &updated, nil
}
