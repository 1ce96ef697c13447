package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/jobradar-api/internal/model"
	"github.com/yourusername/jobradar-api/internal/review"
)

func TestTick_ClaimsAndEnqueuesPendingJobs(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()
	poller := review.NewPoller(store, queue, 15, 50)

	a := store.addJob(model.StatusPendingReview)
	b := store.addJob(model.StatusPendingReview)
	c := store.addJob(model.StatusReviewed)

	poller.Tick(context.Background())

	assert.Equal(t, model.StatusInReview, store.job(a).Status)
	assert.Equal(t, model.StatusInReview, store.job(b).Status)
	assert.Equal(t, model.StatusReviewed, store.job(c).Status)

	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
}

func TestTick_SkipsJobsWaitingOnBackoff(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()
	poller := review.NewPoller(store, queue, 15, 50)

	id := store.addJob(model.StatusPendingReview)
	next := time.Now().UTC().Add(time.Hour)
	require.NoError(t, store.ScheduleRetry(context.Background(), id, 1, next, "boom"))

	poller.Tick(context.Background())

	assert.Equal(t, model.StatusPendingReview, store.job(id).Status)
	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestTick_EnqueueFailureRollsClaimBack(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()
	queue.failEnqueue = true
	poller := review.NewPoller(store, queue, 15, 50)

	id := store.addJob(model.StatusPendingReview)
	poller.Tick(context.Background())

	// The claim and the enqueue are one logical step: a failed enqueue
	// must leave the job pending, not stranded in in_review.
	assert.Equal(t, model.StatusPendingReview, store.job(id).Status)
	assert.Equal(t, 1, store.releases)

	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)

	// The next healthy pass picks the job up again.
	queue.failEnqueue = false
	poller.Tick(context.Background())

	assert.Equal(t, model.StatusInReview, store.job(id).Status)
	depth, err = queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestTick_RespectsBatchLimit(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()
	poller := review.NewPoller(store, queue, 15, 3)

	for i := 0; i < 10; i++ {
		store.addJob(model.StatusPendingReview)
	}

	poller.Tick(context.Background())

	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)
}
