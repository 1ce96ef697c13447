package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/google/uuid"

	"github.com/yourusername/jobradar-api/internal/dedup"
	"github.com/yourusername/jobradar-api/internal/ingest"
	"github.com/yourusername/jobradar-api/internal/model"
)

// RunStore is the persistence the scraper needs for runs and schedules.
type RunStore interface {
	StartRun(ctx context.Context, site, trigger string) (uuid.UUID, error)
	FinishRun(ctx context.Context, run *model.ScrapeRun) error
	ListSchedules(ctx context.Context, activeOnly bool) ([]model.SiteSchedule, error)
	ListDue(ctx context.Context, now time.Time) ([]model.SiteSchedule, error)
	TouchSchedule(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ErrSourceNotConfigured is returned for a manual trigger of a source
// that is registered but missing its credentials.
var ErrSourceNotConfigured = errors.New("source not configured")

// ScrapeService orchestrates board scrapes: it checks site schedules on a
// cron tick, fetches from each due source, and feeds every posting
// through the ingestion upsert.
type ScrapeService struct {
	sources map[string]Source
	ingest  *ingest.Service
	runs    RunStore
	cron    *cron.Cron
	spec    string
}

// NewScrapeService wires the available sources. Sources without
// credentials are registered but skipped at fetch time.
func NewScrapeService(sources []Source, ingestSvc *ingest.Service, runs RunStore, checkIntervalMinutes int) *ScrapeService {
	if checkIntervalMinutes < 1 {
		checkIntervalMinutes = 10
	}
	bySite := make(map[string]Source, len(sources))
	for _, src := range sources {
		bySite[src.Site()] = src
	}
	return &ScrapeService{
		sources: bySite,
		ingest:  ingestSvc,
		runs:    runs,
		cron:    cron.New(),
		spec:    fmt.Sprintf("@every %dm", checkIntervalMinutes),
	}
}

// Start begins the periodic due-schedule check.
func (s *ScrapeService) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunDue(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	log.Info().Str("spec", s.spec).Int("sources", len(s.sources)).Msg("Scrape scheduler started")
	return nil
}

// Stop shuts the scheduler down and waits for a running scrape to finish.
func (s *ScrapeService) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Scrape scheduler stopped")
}

// RunDue executes every schedule whose interval has elapsed. Schedules
// run concurrently; each is its own ScrapeRun.
func (s *ScrapeService) RunDue(ctx context.Context) {
	due, err := s.runs.ListDue(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("Listing due schedules failed")
		return
	}
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := range due {
		sched := due[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RunSchedule(ctx, sched, "schedule"); err != nil {
				log.Error().Err(err).Str("site", sched.Site).Msg("Scheduled scrape failed")
			}
		}()
	}
	wg.Wait()
}

// TriggerSite runs every active schedule for a site immediately. Returns
// the runs it performed.
func (s *ScrapeService) TriggerSite(ctx context.Context, site string) ([]model.ScrapeRun, error) {
	if _, ok := s.sources[site]; !ok {
		return nil, fmt.Errorf("unknown site %q (have: %s)", site, strings.Join(s.siteNames(), ", "))
	}

	schedules, err := s.runs.ListSchedules(ctx, true)
	if err != nil {
		return nil, err
	}

	var runs []model.ScrapeRun
	var skipped int
	for i := range schedules {
		if schedules[i].Site != site {
			continue
		}
		run, err := s.RunSchedule(ctx, schedules[i], "manual")
		if err != nil {
			return runs, err
		}
		if run == nil {
			// Schedule activated before credentials were supplied.
			skipped++
			continue
		}
		runs = append(runs, *run)
	}
	if len(runs) == 0 {
		if skipped > 0 {
			return nil, fmt.Errorf("%w: site %q has no credentials", ErrSourceNotConfigured, site)
		}
		return nil, fmt.Errorf("no active schedule for site %q", site)
	}
	return runs, nil
}

// RunSchedule performs one scrape for one schedule and records the
// outcome as a ScrapeRun. Fetch errors abort the run; per-posting upsert
// errors are counted and logged but do not stop the batch.
func (s *ScrapeService) RunSchedule(ctx context.Context, sched model.SiteSchedule, trigger string) (*model.ScrapeRun, error) {
	source, ok := s.sources[sched.Site]
	if !ok {
		return nil, fmt.Errorf("no source registered for site %q", sched.Site)
	}
	if !source.Enabled() {
		log.Warn().Str("site", sched.Site).Msg("Source not configured, skipping schedule")
		return nil, nil
	}

	runID, err := s.runs.StartRun(ctx, sched.Site, trigger)
	if err != nil {
		return nil, err
	}
	run := &model.ScrapeRun{ID: runID, Site: sched.Site, Trigger: trigger}

	raws, fetchErr := source.Fetch(ctx, sched)
	run.Fetched = len(raws)
	if fetchErr != nil {
		run.Error = fetchErr.Error()
	}

	for i := range raws {
		_, decision, err := s.ingest.Upsert(ctx, raws[i])
		if err != nil {
			run.Failed++
			log.Error().Err(err).
				Str("site", raws[i].Site).
				Str("jobUrl", raws[i].JobURL).
				Msg("Upsert failed")
			continue
		}
		switch decision {
		case dedup.DecisionNew:
			run.Inserted++
		case dedup.DecisionRefresh:
			run.Updated++
		case dedup.DecisionJoinGroup:
			run.Duplicates++
		}
	}

	if err := s.runs.FinishRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("runId", runID.String()).Msg("Recording scrape run failed")
	}
	if err := s.runs.TouchSchedule(ctx, sched.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("site", sched.Site).Msg("Stamping schedule failed")
	}

	log.Info().
		Str("site", sched.Site).
		Str("trigger", trigger).
		Int("fetched", run.Fetched).
		Int("inserted", run.Inserted).
		Int("updated", run.Updated).
		Int("duplicates", run.Duplicates).
		Int("failed", run.Failed).
		Msg("Scrape complete")

	if fetchErr != nil {
		return run, fmt.Errorf("fetching %s: %w", sched.Site, fetchErr)
	}
	return run, nil
}

func (s *ScrapeService) siteNames() []string {
	names := make([]string, 0, len(s.sources))
	for site := range s.sources {
		names = append(names, site)
	}
	return names
}
