package review_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/review"
)

// fakeStore implements review.Store and review.ReviewStore in memory with
// the same atomicity guarantees the Postgres repositories provide.
type fakeStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*model.JobRecord
	reviews map[uuid.UUID]*model.JobReview

	releases int
	backoffs []time.Duration // delay recorded at each ScheduleRetry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[uuid.UUID]*model.JobRecord),
		reviews: make(map[uuid.UUID]*model.JobReview),
	}
}

func (s *fakeStore) addJob(status string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	now := time.Now().UTC()
	s.jobs[id] = &model.JobRecord{
		ID:         id,
		Site:       "indeed",
		JobURL:     "https://indeed.test/" + id.String(),
		Title:      "Senior PM",
		Company:    "Acme Inc.",
		Status:     status,
		IngestedAt: now,
		UpdatedAt:  now,
	}
	return id
}

func (s *fakeStore) setStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
}

func (s *fakeStore) job(id uuid.UUID) model.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeStore) review(id uuid.UUID) *model.JobReview {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reviews[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// ── review.Store ───────────────────────────────────────

func (s *fakeStore) ListPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []uuid.UUID
	for id, j := range s.jobs {
		if len(out) >= limit {
			break
		}
		if j.Status != model.StatusPendingReview {
			continue
		}
		if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *fakeStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.StatusPendingReview {
		return false, nil
	}
	j.Status = model.StatusInReview
	return true, nil
}

func (s *fakeStore) Release(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	s.jobs[id].Status = model.StatusPendingReview
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) MarkReviewed(ctx context.Context, id uuid.UUID, rev *model.JobReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[id].Status != model.StatusInReview {
		return review.ErrClaimLost
	}
	if existing, ok := s.reviews[id]; ok && existing.Succeeded() {
		return review.ErrAlreadyReviewed
	}
	cp := *rev
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	s.reviews[id] = &cp
	s.jobs[id].Status = model.StatusReviewed
	return nil
}

func (s *fakeStore) ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.RetryCount = retryCount
	j.NextRetryAt = &nextRetryAt
	j.Status = model.StatusPendingReview
	s.backoffs = append(s.backoffs, time.Until(nextRetryAt))
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.RetryCount = retryCount
	j.Status = model.StatusArchived
	s.reviews[id] = &model.JobReview{
		ID:           uuid.New(),
		JobID:        id,
		ErrorMessage: errMsg,
		RetryCount:   retryCount,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

// ── review.ReviewStore ─────────────────────────────────

func (s *fakeStore) GetByJobID(ctx context.Context, jobID uuid.UUID) (*model.JobReview, error) {
	return s.review(jobID), nil
}

func (s *fakeStore) ApplyOverride(ctx context.Context, jobID uuid.UUID, recommend bool, comment, actor string, at time.Time) (*model.JobReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[jobID]
	if !ok {
		return nil, review.ErrNotFound
	}
	r.OverrideRecommend = &recommend
	r.OverrideComment = comment
	r.OverrideBy = actor
	r.OverrideAt = &at
	cp := *r
	return &cp, nil
}

// fakeQueue is a channel-backed review.Queue.
type fakeQueue struct {
	ch          chan uuid.UUID
	mu          sync.Mutex
	failEnqueue bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{ch: make(chan uuid.UUID, 256)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	fail := q.failEnqueue
	q.mu.Unlock()
	if fail {
		return context.DeadlineExceeded
	}
	q.ch <- jobID
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, wait time.Duration) (uuid.UUID, bool, error) {
	select {
	case id := <-q.ch:
		return id, true, nil
	case <-time.After(wait):
		return uuid.Nil, false, nil
	case <-ctx.Done():
		return uuid.Nil, false, ctx.Err()
	}
}

func (q *fakeQueue) Depth(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// fakeEvaluator invokes fn and counts calls per job id.
type fakeEvaluator struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	fn    func(ctx context.Context, job *model.JobRecord) (*review.Verdict, error)
}

func newFakeEvaluator(fn func(ctx context.Context, job *model.JobRecord) (*review.Verdict, error)) *fakeEvaluator {
	return &fakeEvaluator{calls: make(map[uuid.UUID]int), fn: fn}
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, job *model.JobRecord) (*review.Verdict, error) {
	e.mu.Lock()
	e.calls[job.ID]++
	e.mu.Unlock()
	return e.fn(ctx, job)
}

func (e *fakeEvaluator) callCount(id uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

func approveVerdict() *review.Verdict {
	return &review.Verdict{
		Recommend:  true,
		Confidence: "high",
		Rationale:  "strong role fit",
		Personas: []review.PersonaScore{
			{Name: "recruiter", Recommend: true, Confidence: "high", Reason: "title match"},
		},
		Tradeoffs: []string{"on-call rotation"},
		Actions:   []string{"tailor resume"},
		Sources:   []string{"posting"},
		Model:     "test-model",
	}
}
