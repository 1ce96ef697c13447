package review

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Poller periodically moves pending jobs onto the work queue. The claim
// (status flip to in_review) and the enqueue form one logical step: a
// failed enqueue rolls the claim back so the job is neither dropped nor
// picked up twice.
type Poller struct {
	store Store
	queue Queue
	cron  *cron.Cron
	spec  string // cron spec, e.g. "@every 15s"
	batch int
}

// NewPoller constructs a Poller that scans every interval seconds and
// claims at most batch jobs per tick.
func NewPoller(store Store, queue Queue, intervalSeconds, batch int) *Poller {
	if intervalSeconds < 1 {
		intervalSeconds = 15
	}
	if batch < 1 {
		batch = 50
	}
	return &Poller{
		store: store,
		queue: queue,
		cron:  cron.New(),
		spec:  fmt.Sprintf("@every %ds", intervalSeconds),
		batch: batch,
	}
}

// Start registers the tick and starts the scheduler. One pass runs
// immediately so a restart drains the backlog without waiting a tick.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.spec, func() {
		p.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	p.cron.Start()
	log.Info().Str("spec", p.spec).Int("batch", p.batch).Msg("Review poller started")

	go p.Tick(ctx)
	return nil
}

// Stop shuts the scheduler down and waits for a running tick to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	log.Info().Msg("Review poller stopped")
}

// Tick performs one claim-and-enqueue pass.
func (p *Poller) Tick(ctx context.Context) {
	ids, err := p.store.ListPending(ctx, p.batch)
	if err != nil {
		log.Error().Err(err).Msg("Poller failed to list pending jobs")
		return
	}
	if len(ids) == 0 {
		return
	}

	enqueued := 0
	for _, id := range ids {
		claimed, err := p.store.Claim(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("jobId", id.String()).Msg("Claim failed")
			continue
		}
		if !claimed {
			// Another poller instance won this id.
			continue
		}

		if err := p.queue.Enqueue(ctx, id); err != nil {
			log.Error().Err(err).Str("jobId", id.String()).Msg("Enqueue failed, rolling claim back")
			if relErr := p.store.Release(ctx, id); relErr != nil {
				log.Error().Err(relErr).Str("jobId", id.String()).Msg("Releasing claim failed; job stuck in in_review until operator requeue")
			}
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		log.Info().Int("enqueued", enqueued).Int("candidates", len(ids)).Msg("Poller pass complete")
	}
}
