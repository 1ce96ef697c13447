package review

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/model"
)

// PersonaScore is one panel member's vote inside a verdict.
type PersonaScore struct {
	Name       string `json:"name"`
	Recommend  bool   `json:"recommend"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason"`
}

// Verdict is the evaluator's output for one job.
type Verdict struct {
	Recommend  bool           `json:"recommend"`
	Confidence string         `json:"confidence"`
	Rationale  string         `json:"rationale"`
	Personas   []PersonaScore `json:"personas"`
	Tradeoffs  []string       `json:"tradeoffs"`
	Actions    []string       `json:"actions"`
	Sources    []string       `json:"sources"`

	Raw   []byte `json:"-"` // full response body, persisted for audit
	Model string `json:"-"`
}

// Evaluator is the external LLM evaluation collaborator. Any error
// (including a deadline) counts as an evaluation failure against the
// job's retry budget.
type Evaluator interface {
	Evaluate(ctx context.Context, job *model.JobRecord) (*Verdict, error)
}

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	Workers     int
	MaxRetries  int           // evaluation attempts before a job is archived
	BackoffBase time.Duration // retry delay is BackoffBase * 2^(attempt-1)
	EvalTimeout time.Duration // bound on a single evaluator call
	DequeueWait time.Duration // how long a blocking pop waits before re-checking shutdown
}

func (c *PoolConfig) defaults() {
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = 120 * time.Second
	}
	if c.DequeueWait <= 0 {
		c.DequeueWait = 5 * time.Second
	}
}

// Pool runs N workers over the shared queue. Exclusivity per job id comes
// from the poller's atomic claim plus the queue's at-most-one-consumer
// delivery; workers themselves share no state.
type Pool struct {
	store     Store
	queue     Queue
	evaluator Evaluator
	cfg       PoolConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(store Store, queue Queue, evaluator Evaluator, cfg PoolConfig) *Pool {
	cfg.defaults()
	return &Pool{store: store, queue: queue, evaluator: evaluator, cfg: cfg}
}

// Start launches the workers. They run until Stop is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	log.Info().Int("workers", p.cfg.Workers).Int("maxRetries", p.cfg.MaxRetries).Msg("Review worker pool started")
}

// Stop signals the workers and waits for in-flight evaluations to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	log.Info().Msg("Review worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, ok, err := p.queue.Dequeue(ctx, p.cfg.DequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", workerID).Msg("Dequeue failed")
			continue
		}
		if !ok {
			continue
		}

		p.Process(ctx, id)
	}
}

// Process evaluates one claimed job and persists the outcome.
func (p *Pool) Process(ctx context.Context, id uuid.UUID) {
	job, err := p.store.GetJob(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("jobId", id.String()).Msg("Loading claimed job failed")
		return
	}
	if job == nil || job.Status != model.StatusInReview {
		// Stale queue entry: the record moved on (operator archive,
		// rollback after enqueue, duplicate delivery on redeploy).
		log.Warn().Str("jobId", id.String()).Msg("Skipping queue entry for job not in in_review")
		return
	}

	evalCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	start := time.Now()
	verdict, err := p.evaluator.Evaluate(evalCtx, job)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	rev := buildReview(job, verdict, elapsed)
	if err := p.store.MarkReviewed(ctx, job.ID, rev); err != nil {
		if errors.Is(err, ErrClaimLost) {
			log.Warn().Str("jobId", id.String()).Msg("Verdict discarded: job left in_review during evaluation")
			return
		}
		if errors.Is(err, ErrAlreadyReviewed) {
			log.Error().Str("jobId", id.String()).Msg("Verdict discarded: job already carries a successful review")
			return
		}
		log.Error().Err(err).Str("jobId", id.String()).Msg("Persisting verdict failed")
		return
	}

	log.Info().
		Str("jobId", id.String()).
		Bool("recommend", verdict.Recommend).
		Str("confidence", verdict.Confidence).
		Dur("elapsed", elapsed).
		Msg("Job reviewed")
}

func (p *Pool) handleFailure(ctx context.Context, job *model.JobRecord, evalErr error) {
	attempt := job.RetryCount + 1

	if attempt < p.cfg.MaxRetries {
		delay := p.cfg.BackoffBase << (attempt - 1)
		nextRetry := time.Now().UTC().Add(delay)

		if err := p.store.ScheduleRetry(ctx, job.ID, attempt, nextRetry, evalErr.Error()); err != nil {
			log.Error().Err(err).Str("jobId", job.ID.String()).Msg("Scheduling retry failed")
			return
		}
		log.Warn().
			Err(evalErr).
			Str("jobId", job.ID.String()).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Evaluation failed, job requeued")
		return
	}

	if err := p.store.MarkFailed(ctx, job.ID, attempt, evalErr.Error()); err != nil {
		log.Error().Err(err).Str("jobId", job.ID.String()).Msg("Archiving exhausted job failed")
		return
	}
	log.Error().
		Err(evalErr).
		Str("jobId", job.ID.String()).
		Int("attempts", attempt).
		Msg("Retry budget exhausted, job archived")
}

func buildReview(job *model.JobRecord, v *Verdict, elapsed time.Duration) *model.JobReview {
	recommend := v.Recommend
	personas, _ := marshalPersonas(v.Personas)
	return &model.JobReview{
		JobID:                 job.ID,
		Recommend:             &recommend,
		Confidence:            v.Confidence,
		Rationale:             v.Rationale,
		Personas:              personas,
		Tradeoffs:             v.Tradeoffs,
		Actions:               v.Actions,
		Sources:               v.Sources,
		CrewOutput:            v.Raw,
		ProcessingTimeSeconds: elapsed.Seconds(),
		ModelUsed:             v.Model,
		RetryCount:            job.RetryCount,
	}
}

func marshalPersonas(personas []PersonaScore) ([]byte, error) {
	if len(personas) == 0 {
		return nil, nil
	}
	return json.Marshal(personas)
}
