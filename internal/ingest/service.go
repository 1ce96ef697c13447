// Package ingest applies scraped postings to the store: normalize,
// classify against existing records, and perform exactly one atomic
// insert-or-update keyed by the (site, job_url) uniqueness constraint.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/jobradar-api/internal/dedup"
	"github.com/yourusername/jobradar-api/internal/model"
)

// ErrConflict signals that an insert raced with another actor on the same
// (site, job_url) pair. The service converts it into an update-retry; it is
// never surfaced to callers.
var ErrConflict = errors.New("concurrent insert on (site, job_url)")

// ErrSerialization signals that the transactional read-group/decide/write
// unit could not be serialized and the whole upsert should be re-run
// against fresh state.
var ErrSerialization = errors.New("group transaction could not be serialized")

// maxUpsertAttempts bounds conversion retries. Each retry re-reads, so two
// passes normally suffice; the third covers a conflict during the retry.
const maxUpsertAttempts = 3

// Tx is the store view inside one upsert transaction. ListGroup must lock
// the returned rows for the duration of the transaction so the group
// re-rank is serialized per canonical key.
type Tx interface {
	FindBySiteURL(ctx context.Context, site, jobURL string) (*model.JobRecord, error)
	ListGroup(ctx context.Context, canonicalKey string) ([]model.JobRecord, error)
	Insert(ctx context.Context, rec *model.JobRecord) error
	UpdateContent(ctx context.Context, rec *model.JobRecord) error
	SetDuplicateStatus(ctx context.Context, id, groupID uuid.UUID, status string) error
}

// Store is the persistence boundary for ingestion. InTx runs fn inside one
// atomic unit; returning an error rolls every write back.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Service is the ingestion upsert service.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Upsert applies one scraped posting. It computes the identity pair,
// classifies the posting, and performs exactly one atomic write. Calling
// it twice with byte-identical input changes nothing but timestamps.
func (s *Service) Upsert(ctx context.Context, raw model.RawJob) (*model.JobRecord, dedup.Decision, error) {
	if raw.Site == "" || raw.JobURL == "" {
		return nil, 0, fmt.Errorf("raw job missing site or job_url")
	}

	var (
		result   *model.JobRecord
		decision dedup.Decision
	)

	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		err := s.store.InTx(ctx, func(tx Tx) error {
			rec, dec, err := s.apply(ctx, tx, raw)
			if err != nil {
				return err
			}
			result, decision = rec, dec
			return nil
		})
		if err == nil {
			return result, decision, nil
		}
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrSerialization) {
			log.Warn().
				Err(err).
				Str("site", raw.Site).
				Str("jobUrl", raw.JobURL).
				Int("attempt", attempt).
				Msg("Upsert raced, retrying against fresh state")
			continue
		}
		return nil, 0, fmt.Errorf("upserting %s %s: %w", raw.Site, raw.JobURL, err)
	}

	return nil, 0, fmt.Errorf("upserting %s %s: retries exhausted", raw.Site, raw.JobURL)
}

// apply is the read-group, decide, write-group unit. It runs entirely
// inside one store transaction.
func (s *Service) apply(ctx context.Context, tx Tx, raw model.RawJob) (*model.JobRecord, dedup.Decision, error) {
	existing, err := tx.FindBySiteURL(ctx, raw.Site, raw.JobURL)
	if err != nil {
		return nil, 0, err
	}

	if existing != nil {
		// Refresh: content updated in place, group membership untouched.
		refreshed := applyContent(existing, raw)
		refreshed.CanonicalKey = dedup.CanonicalKey(raw.Company, raw.Title, existing.ID.String())
		refreshed.Fingerprint = dedup.Fingerprint(raw.Title, raw.Company, raw.Description)
		if err := tx.UpdateContent(ctx, refreshed); err != nil {
			return nil, 0, err
		}
		return refreshed, dedup.DecisionRefresh, nil
	}

	id := uuid.New()
	key := dedup.CanonicalKey(raw.Company, raw.Title, id.String())

	peers, err := tx.ListGroup(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	decision := dedup.Classify(nil, peers)

	rec := newRecord(id, key, raw)

	switch decision {
	case dedup.DecisionNew:
		groupID := id // a fresh group is keyed by its founding record
		rec.DuplicateGroupID = &groupID
		rec.DuplicateStatus = model.DuplicateOriginal
		if err := tx.Insert(ctx, rec); err != nil {
			return nil, 0, err
		}
		return rec, decision, nil

	case dedup.DecisionJoinGroup:
		groupID := peers[0].ID
		if peers[0].DuplicateGroupID != nil {
			groupID = *peers[0].DuplicateGroupID
		}
		rec.DuplicateGroupID = &groupID
		rec.DuplicateStatus = model.DuplicateHidden
		if err := tx.Insert(ctx, rec); err != nil {
			return nil, 0, err
		}

		if err := rerankGroup(ctx, tx, groupID, append(peers, *rec)); err != nil {
			return nil, 0, err
		}
		// Reflect the re-rank in the returned record.
		if dedup.ChooseOriginal(append(peers, *rec)) == rec.ID {
			rec.DuplicateStatus = model.DuplicateOriginal
		}
		return rec, decision, nil
	}

	return nil, 0, fmt.Errorf("unexpected grouper decision %v", decision)
}

// rerankGroup recomputes duplicate_status for every member of a group.
// Always runs over the full membership, never patched incrementally.
func rerankGroup(ctx context.Context, tx Tx, groupID uuid.UUID, members []model.JobRecord) error {
	originalID := dedup.ChooseOriginal(members)
	for i := range members {
		status := model.DuplicateHidden
		if members[i].ID == originalID {
			status = model.DuplicateOriginal
		}
		if err := tx.SetDuplicateStatus(ctx, members[i].ID, groupID, status); err != nil {
			return err
		}
	}
	return nil
}

// newRecord builds a JobRecord for first ingestion of a (site, job_url).
func newRecord(id uuid.UUID, canonicalKey string, raw model.RawJob) *model.JobRecord {
	now := time.Now().UTC()
	rec := &model.JobRecord{
		ID:           id,
		Site:         raw.Site,
		JobURL:       raw.JobURL,
		CanonicalKey: canonicalKey,
		Fingerprint:  dedup.Fingerprint(raw.Title, raw.Company, raw.Description),
		Status:       model.StatusPendingReview,
		IngestedAt:   now,
		UpdatedAt:    now,
	}
	applyContent(rec, raw)
	return rec
}

// applyContent copies the scraped content fields onto rec, leaving
// identity, dedup, and workflow fields alone.
func applyContent(rec *model.JobRecord, raw model.RawJob) *model.JobRecord {
	rec.Title = raw.Title
	rec.Company = raw.Company
	rec.LocationCity = raw.LocationCity
	rec.LocationState = raw.LocationState
	rec.LocationCountry = raw.LocationCountry
	rec.IsRemote = raw.IsRemote
	rec.Description = raw.Description
	rec.JobType = raw.JobType
	rec.MinAmount = raw.MinAmount
	rec.MaxAmount = raw.MaxAmount
	rec.Currency = raw.Currency
	rec.Interval = raw.Interval
	rec.DatePosted = raw.DatePosted
	rec.SourceRaw = raw.SourceRaw
	rec.UpdatedAt = time.Now().UTC()
	return rec
}
