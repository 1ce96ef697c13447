package ingest_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/jobradar-api/internal/dedup"
	"github.com/yourusername/jobradar-api/internal/ingest"
	"github.com/yourusername/jobradar-api/internal/model"
)

// memStore is an in-memory ingest.Store. InTx serializes on one mutex,
// matching the serializable isolation the Postgres implementation runs
// upserts under.
type memStore struct {
	mu   sync.Mutex
	recs map[string]*model.JobRecord // keyed by site|job_url

	// beforeInsert fires once, right before the next Insert. A non-nil
	// return aborts the transaction without writing, the way a conflict
	// detected at commit discards every buffered write.
	beforeInsert func(s *memStore) error
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*model.JobRecord)}
}

func urlKey(site, jobURL string) string { return site + "|" + jobURL }

func (s *memStore) InTx(ctx context.Context, fn func(ingest.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

func (s *memStore) all() []model.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.JobRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, *r)
	}
	return out
}

type memTx struct{ s *memStore }

func (t *memTx) FindBySiteURL(ctx context.Context, site, jobURL string) (*model.JobRecord, error) {
	if r, ok := t.s.recs[urlKey(site, jobURL)]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) ListGroup(ctx context.Context, canonicalKey string) ([]model.JobRecord, error) {
	var out []model.JobRecord
	for _, r := range t.s.recs {
		if r.CanonicalKey == canonicalKey {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (t *memTx) Insert(ctx context.Context, rec *model.JobRecord) error {
	if hook := t.s.beforeInsert; hook != nil {
		t.s.beforeInsert = nil
		if err := hook(t.s); err != nil {
			return err
		}
	}
	k := urlKey(rec.Site, rec.JobURL)
	if _, ok := t.s.recs[k]; ok {
		return ingest.ErrConflict
	}
	cp := *rec
	t.s.recs[k] = &cp
	return nil
}

func (t *memTx) UpdateContent(ctx context.Context, rec *model.JobRecord) error {
	cp := *rec
	t.s.recs[urlKey(rec.Site, rec.JobURL)] = &cp
	return nil
}

func (t *memTx) SetDuplicateStatus(ctx context.Context, id, groupID uuid.UUID, status string) error {
	for _, r := range t.s.recs {
		if r.ID == id {
			g := groupID
			r.DuplicateGroupID = &g
			r.DuplicateStatus = status
			return nil
		}
	}
	return nil
}

// ── helpers ────────────────────────────────────────────

func rawJob(site, jobURL, title, company string) model.RawJob {
	return model.RawJob{
		Site:        site,
		JobURL:      jobURL,
		Title:       title,
		Company:     company,
		Description: "Own the roadmap for " + company + ".",
	}
}

func countOriginals(recs []model.JobRecord, groupID uuid.UUID) int {
	n := 0
	for _, r := range recs {
		if r.DuplicateGroupID != nil && *r.DuplicateGroupID == groupID &&
			r.DuplicateStatus == model.DuplicateOriginal {
			n++
		}
	}
	return n
}

// ── tests ──────────────────────────────────────────────

func TestUpsert_NewRecord(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)

	rec, decision, err := svc.Upsert(context.Background(), rawJob("indeed", "u1", "Senior PM", "Acme Inc."))
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionNew, decision)
	assert.Equal(t, model.StatusPendingReview, rec.Status)
	assert.Equal(t, model.DuplicateOriginal, rec.DuplicateStatus)
	require.NotNil(t, rec.DuplicateGroupID)
	assert.Equal(t, rec.ID, *rec.DuplicateGroupID, "a fresh group is keyed by its founding record")
	assert.Equal(t, "acme inc|senior pm", rec.CanonicalKey)
	assert.NotEmpty(t, rec.Fingerprint)
}

func TestUpsert_Idempotent(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)
	raw := rawJob("indeed", "u1", "Senior PM", "Acme Inc.")

	first, _, err := svc.Upsert(context.Background(), raw)
	require.NoError(t, err)

	second, decision, err := svc.Upsert(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionRefresh, decision)
	assert.Len(t, store.all(), 1, "re-scraping the same (site, job_url) must never insert a second row")

	// Everything but timestamps is unchanged.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.CanonicalKey, second.CanonicalKey)
	assert.Equal(t, first.DuplicateGroupID, second.DuplicateGroupID)
	assert.Equal(t, first.DuplicateStatus, second.DuplicateStatus)
	assert.Equal(t, first.Status, second.Status)
}

func TestUpsert_CrossSiteDuplicatesShareOneGroup(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)
	ctx := context.Background()

	a, _, err := svc.Upsert(ctx, rawJob("indeed", "u1", "Senior PM", "Acme Inc."))
	require.NoError(t, err)

	b, decision, err := svc.Upsert(ctx, rawJob("linkedin", "u2", "senior pm", "ACME INC"))
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionJoinGroup, decision)
	require.NotNil(t, b.DuplicateGroupID)
	assert.Equal(t, *a.DuplicateGroupID, *b.DuplicateGroupID)

	assert.Equal(t, 1, countOriginals(store.all(), *a.DuplicateGroupID),
		"exactly one original per duplicate group")
}

func TestUpsert_NewcomerWithSalaryBecomesOriginal(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)
	ctx := context.Background()

	first, _, err := svc.Upsert(ctx, rawJob("indeed", "u1", "Senior PM", "Acme Inc."))
	require.NoError(t, err)

	salary := 140000.0
	raw := rawJob("linkedin", "u2", "Senior PM", "Acme Inc.")
	raw.MinAmount = &salary

	second, _, err := svc.Upsert(ctx, raw)
	require.NoError(t, err)

	assert.Equal(t, model.DuplicateOriginal, second.DuplicateStatus)

	recs := store.all()
	require.Equal(t, 1, countOriginals(recs, *first.DuplicateGroupID))
	for _, r := range recs {
		if r.ID == first.ID {
			assert.Equal(t, model.DuplicateHidden, r.DuplicateStatus,
				"the outranked previous original must be demoted")
		}
	}
}

func TestUpsert_GroupOfThreeStaysConsistent(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)
	ctx := context.Background()

	sites := []string{"indeed", "linkedin", "glassdoor"}
	var groupID uuid.UUID
	for i, site := range sites {
		rec, _, err := svc.Upsert(ctx, rawJob(site, "u"+site, "Senior PM", "Acme Inc."))
		require.NoError(t, err)
		if i == 0 {
			groupID = *rec.DuplicateGroupID
		}
	}

	recs := store.all()
	require.Len(t, recs, 3)
	assert.Equal(t, 1, countOriginals(recs, groupID))
	for _, r := range recs {
		require.NotNil(t, r.DuplicateGroupID)
		assert.Equal(t, groupID, *r.DuplicateGroupID)
	}
}

func TestUpsert_RefreshPreservesGroupMembership(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)
	ctx := context.Background()

	_, _, err := svc.Upsert(ctx, rawJob("indeed", "u1", "Senior PM", "Acme Inc."))
	require.NoError(t, err)
	joined, _, err := svc.Upsert(ctx, rawJob("linkedin", "u2", "Senior PM", "Acme Inc."))
	require.NoError(t, err)

	// Re-scrape with a site-specific title suffix: content refreshes, the
	// group assignment is preserved unchanged.
	refreshed, decision, err := svc.Upsert(ctx, rawJob("linkedin", "u2", "Senior PM (Remote)", "Acme Inc."))
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionRefresh, decision)
	assert.Equal(t, "Senior PM (Remote)", refreshed.Title)
	assert.Equal(t, *joined.DuplicateGroupID, *refreshed.DuplicateGroupID)
	assert.Equal(t, joined.DuplicateStatus, refreshed.DuplicateStatus)
}

func TestUpsert_ConcurrentInsertConvertedToRefresh(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)

	// Another scraper wins the insert race after our transaction decided
	// to insert. The unique-constraint violation must be absorbed and
	// converted into an update, never surfaced.
	store.beforeInsert = func(s *memStore) error {
		id := uuid.New()
		group := id
		now := time.Now().UTC()
		s.recs[urlKey("indeed", "u1")] = &model.JobRecord{
			ID:               id,
			Site:             "indeed",
			JobURL:           "u1",
			Title:            "Senior PM",
			Company:          "Acme Inc.",
			CanonicalKey:     dedup.CanonicalKey("Acme Inc.", "Senior PM", id.String()),
			DuplicateGroupID: &group,
			DuplicateStatus:  model.DuplicateOriginal,
			Status:           model.StatusPendingReview,
			IngestedAt:       now,
			UpdatedAt:        now,
		}
		return nil
	}

	rec, decision, err := svc.Upsert(context.Background(), rawJob("indeed", "u1", "Senior PM", "Acme Inc."))
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionRefresh, decision)
	assert.Len(t, store.all(), 1)
	assert.Equal(t, model.DuplicateOriginal, rec.DuplicateStatus)
}

func TestUpsert_PhantomPeerForcesSerializationRetry(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)

	// A concurrent ingest commits a cross-site posting with the same
	// canonical key after our transaction read an empty group. The store
	// aborts our commit; the retry must re-read, see the peer, and join
	// its group instead of founding a second one.
	var phantomGroup uuid.UUID
	store.beforeInsert = func(s *memStore) error {
		id := uuid.New()
		phantomGroup = id
		now := time.Now().UTC()
		s.recs[urlKey("linkedin", "u2")] = &model.JobRecord{
			ID:               id,
			Site:             "linkedin",
			JobURL:           "u2",
			Title:            "Senior PM",
			Company:          "Acme Inc.",
			CanonicalKey:     dedup.CanonicalKey("Acme Inc.", "Senior PM", id.String()),
			DuplicateGroupID: &phantomGroup,
			DuplicateStatus:  model.DuplicateOriginal,
			Status:           model.StatusPendingReview,
			IngestedAt:       now,
			UpdatedAt:        now,
		}
		return ingest.ErrSerialization
	}

	rec, decision, err := svc.Upsert(context.Background(), rawJob("indeed", "u1", "Senior PM", "Acme Inc."))
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionJoinGroup, decision)
	require.NotNil(t, rec.DuplicateGroupID)
	assert.Equal(t, phantomGroup, *rec.DuplicateGroupID)

	recs := store.all()
	require.Len(t, recs, 2)
	assert.Equal(t, 1, countOriginals(recs, phantomGroup),
		"concurrent first ingests of one canonical key must converge on a single group with one original")
}

func TestUpsert_DegenerateIdentityDoesNotCollide(t *testing.T) {
	store := newMemStore()
	svc := ingest.NewService(store)
	ctx := context.Background()

	a, decisionA, err := svc.Upsert(ctx, rawJob("indeed", "u1", "", ""))
	require.NoError(t, err)
	b, decisionB, err := svc.Upsert(ctx, rawJob("linkedin", "u2", "", ""))
	require.NoError(t, err)

	assert.Equal(t, dedup.DecisionNew, decisionA)
	assert.Equal(t, dedup.DecisionNew, decisionB,
		"records with no identity data must not group together")
	assert.NotEqual(t, a.CanonicalKey, b.CanonicalKey)
	assert.Equal(t, model.DuplicateOriginal, a.DuplicateStatus)
	assert.Equal(t, model.DuplicateOriginal, b.DuplicateStatus)
}

func TestUpsert_RejectsMissingIdentityKey(t *testing.T) {
	svc := ingest.NewService(newMemStore())

	_, _, err := svc.Upsert(context.Background(), model.RawJob{Site: "indeed"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "job_url"))
}
