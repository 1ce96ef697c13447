package review_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/review"
)

func TestOverride_PreservesOriginalVerdict(t *testing.T) {
	store := newFakeStore()
	eval := newFakeEvaluator(func(ctx context.Context, job *model.JobRecord) (*review.Verdict, error) {
		return approveVerdict(), nil
	})
	pool := newPool(store, newFakeQueue(), eval, 3)

	jobID := store.addJob(model.StatusInReview)
	pool.Process(context.Background(), jobID)
	require.NotNil(t, store.review(jobID))

	svc := review.NewOverrideService(store)
	merged, err := svc.Override(context.Background(), jobID, false, "company has hiring freeze", "operator@local")
	require.NoError(t, err)

	// AI-origin fields survive untouched.
	require.NotNil(t, merged.Recommend)
	assert.True(t, *merged.Recommend)
	assert.Equal(t, "high", merged.Confidence)
	assert.Equal(t, "strong role fit", merged.Rationale)

	// Override fields carry the human verdict in parallel.
	require.NotNil(t, merged.OverrideRecommend)
	assert.False(t, *merged.OverrideRecommend)
	assert.Equal(t, "company has hiring freeze", merged.OverrideComment)
	assert.Equal(t, "operator@local", merged.OverrideBy)
	require.NotNil(t, merged.OverrideAt)
	assert.WithinDuration(t, time.Now().UTC(), *merged.OverrideAt, 5*time.Second)
}

func TestOverride_NotFoundWithoutReview(t *testing.T) {
	store := newFakeStore()
	svc := review.NewOverrideService(store)

	jobID := store.addJob(model.StatusPendingReview)
	_, err := svc.Override(context.Background(), jobID, true, "", "operator@local")
	assert.True(t, errors.Is(err, review.ErrNotFound))
}

func TestOverride_NotFoundForFailureMarkerReview(t *testing.T) {
	store := newFakeStore()
	svc := review.NewOverrideService(store)

	// An archived job carries a failure review row (error_message set,
	// recommend null). That row records an outcome, not a verdict, and
	// must not be overridable.
	jobID := store.addJob(model.StatusInReview)
	require.NoError(t, store.MarkFailed(context.Background(), jobID, 3, "evaluator unavailable"))
	require.NotNil(t, store.review(jobID))

	_, err := svc.Override(context.Background(), jobID, true, "looks fine to me", "operator@local")
	assert.True(t, errors.Is(err, review.ErrNotFound))
}

func TestOverride_RepeatRestampsWithoutError(t *testing.T) {
	store := newFakeStore()
	eval := newFakeEvaluator(func(ctx context.Context, job *model.JobRecord) (*review.Verdict, error) {
		return approveVerdict(), nil
	})
	pool := newPool(store, newFakeQueue(), eval, 3)

	jobID := store.addJob(model.StatusInReview)
	pool.Process(context.Background(), jobID)

	svc := review.NewOverrideService(store)
	first, err := svc.Override(context.Background(), jobID, false, "pass", "operator@local")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second, err := svc.Override(context.Background(), jobID, true, "reconsidered", "operator@local")
	require.NoError(t, err)

	require.NotNil(t, second.OverrideRecommend)
	assert.True(t, *second.OverrideRecommend)
	assert.Equal(t, "reconsidered", second.OverrideComment)
	assert.True(t, second.OverrideAt.After(*first.OverrideAt))

	// The AI verdict still reads the same after two overrides.
	assert.Equal(t, first.Rationale, second.Rationale)
	assert.Equal(t, *first.Recommend, *second.Recommend)
}
