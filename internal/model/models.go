package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ── Job lifecycle ──────────────────────────────────────

// Review workflow statuses for a JobRecord.
//
//	pending_review ──► in_review ──► reviewed
//	                       │
//	                       └──► pending_review (retry) | archived (exhausted / operator)
const (
	StatusPendingReview = "pending_review"
	StatusInReview      = "in_review"
	StatusReviewed      = "reviewed"
	StatusArchived      = "archived"
)

// ValidStatus reports whether s is a known workflow status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPendingReview, StatusInReview, StatusReviewed, StatusArchived:
		return true
	}
	return false
}

// Duplicate statuses. Within a duplicate group exactly one record is the
// original; every other member is hidden from default listings.
const (
	DuplicateOriginal = "original"
	DuplicateHidden   = "duplicate_hidden"
)

// validTransitions lists every allowed (from → to) status pair.
var validTransitions = map[string][]string{
	StatusPendingReview: {StatusInReview, StatusArchived},
	StatusInReview:      {StatusReviewed, StatusPendingReview, StatusArchived},
	StatusReviewed:      {StatusArchived},
	StatusArchived:      {StatusPendingReview}, // operator requeue
}

// TransitionAllowed reports whether moving from → to is permitted.
func TransitionAllowed(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a raw string to a workflow status, returning an
// error for unknown values.
func ParseStatus(s string) (string, error) {
	if !ValidStatus(s) {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return s, nil
}

// ── Records ────────────────────────────────────────────

// JobRecord is one scraped posting. (site, job_url) is globally unique:
// re-scraping the same URL always refreshes the same row.
type JobRecord struct {
	ID     uuid.UUID `json:"id"`
	Site   string    `json:"site"`
	JobURL string    `json:"jobUrl"`

	Title           string     `json:"title"`
	Company         string     `json:"company"`
	LocationCity    string     `json:"locationCity,omitempty"`
	LocationState   string     `json:"locationState,omitempty"`
	LocationCountry string     `json:"locationCountry,omitempty"`
	IsRemote        bool       `json:"isRemote"`
	Description     string     `json:"description"`
	JobType         string     `json:"jobType,omitempty"`
	MinAmount       *float64   `json:"minAmount,omitempty"`
	MaxAmount       *float64   `json:"maxAmount,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	Interval        string     `json:"interval,omitempty"` // yearly, hourly, ...
	DatePosted      *time.Time `json:"datePosted,omitempty"`
	SourceRaw       []byte     `json:"-"` // opaque provenance blob (JSONB)

	// Dedup fields, maintained by the grouper inside the upsert transaction.
	CanonicalKey     string     `json:"canonicalKey,omitempty"`
	Fingerprint      string     `json:"fingerprint,omitempty"`
	DuplicateGroupID *uuid.UUID `json:"duplicateGroupId,omitempty"`
	DuplicateStatus  string     `json:"duplicateStatus"`

	// Workflow fields.
	Status      string     `json:"status"`
	RetryCount  int        `json:"retryCount"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
	IngestedAt  time.Time  `json:"ingestedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// RawJob is a scraped posting as delivered by a board client, before
// normalization. Site and JobURL are the only fields ingestion requires;
// everything else is best-effort and passed through.
type RawJob struct {
	Site            string     `json:"site"`
	JobURL          string     `json:"jobUrl"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	LocationCity    string     `json:"locationCity,omitempty"`
	LocationState   string     `json:"locationState,omitempty"`
	LocationCountry string     `json:"locationCountry,omitempty"`
	IsRemote        bool       `json:"isRemote"`
	Description     string     `json:"description"`
	JobType         string     `json:"jobType,omitempty"`
	MinAmount       *float64   `json:"minAmount,omitempty"`
	MaxAmount       *float64   `json:"maxAmount,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	Interval        string     `json:"interval,omitempty"`
	DatePosted      *time.Time `json:"datePosted,omitempty"`
	SourceRaw       []byte     `json:"-"`
}

// JobReview is the persisted evaluation verdict for a JobRecord (1:1 by
// job_id). AI-origin fields are written once by the worker and never
// mutated afterward; the override_* fields carry the parallel human verdict.
type JobReview struct {
	ID    uuid.UUID `json:"id"`
	JobID uuid.UUID `json:"jobId"`

	Recommend  *bool    `json:"recommend,omitempty"`
	Confidence string   `json:"confidence,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
	Personas   []byte   `json:"personas,omitempty"` // JSONB
	Tradeoffs  []string `json:"tradeoffs,omitempty"`
	Actions    []string `json:"actions,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	CrewOutput []byte   `json:"-"` // full raw evaluator output (JSONB)

	ProcessingTimeSeconds float64 `json:"processingTimeSeconds,omitempty"`
	ModelUsed             string  `json:"modelUsed,omitempty"`

	ErrorMessage string `json:"errorMessage,omitempty"`
	RetryCount   int    `json:"retryCount"`

	OverrideRecommend *bool      `json:"overrideRecommend,omitempty"`
	OverrideComment   string     `json:"overrideComment,omitempty"`
	OverrideBy        string     `json:"overrideBy,omitempty"`
	OverrideAt        *time.Time `json:"overrideAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Succeeded reports whether this review holds a successful AI verdict (as
// opposed to a terminal-failure marker row).
func (r *JobReview) Succeeded() bool {
	return r.Recommend != nil
}

// ScrapeRun records one scrape batch and its outcome counts.
type ScrapeRun struct {
	ID         uuid.UUID  `json:"id"`
	Site       string     `json:"site"`
	Trigger    string     `json:"trigger"` // "schedule" or "manual"
	Fetched    int        `json:"fetched"`
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
	Duplicates int        `json:"duplicates"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// SiteSchedule configures how often a job board is scraped and with what
// search terms.
type SiteSchedule struct {
	ID            uuid.UUID  `json:"id"`
	Site          string     `json:"site"`
	SearchTerms   []string   `json:"searchTerms"`
	Location      string     `json:"location,omitempty"`
	IntervalHours int        `json:"intervalHours"`
	Active        bool       `json:"active"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// PipelineStatus is the aggregated operational snapshot for dashboards.
type PipelineStatus struct {
	StatusCounts map[string]int `json:"statusCounts"`
	QueueDepth   int64          `json:"queueDepth"`
	ErrorCount   int            `json:"errorCount"`
	RetryingJobs int            `json:"retryingJobs"`
	GroupCount   int            `json:"groupCount"`
}
