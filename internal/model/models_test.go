package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusPendingReview, StatusInReview, StatusReviewed, StatusArchived} {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus("pending"))
	assert.False(t, ValidStatus(""))
	assert.False(t, ValidStatus("PENDING_REVIEW"))
}

func TestTransitionAllowed(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"claim", StatusPendingReview, StatusInReview, true},
		{"operator archive while pending", StatusPendingReview, StatusArchived, true},
		{"successful review", StatusInReview, StatusReviewed, true},
		{"retry release", StatusInReview, StatusPendingReview, true},
		{"retry budget exhausted", StatusInReview, StatusArchived, true},
		{"archive after review", StatusReviewed, StatusArchived, true},
		{"operator requeue", StatusArchived, StatusPendingReview, true},

		{"skip the claim", StatusPendingReview, StatusReviewed, false},
		{"un-review", StatusReviewed, StatusInReview, false},
		{"un-review to pending", StatusReviewed, StatusPendingReview, false},
		{"requeue straight to in_review", StatusArchived, StatusInReview, false},
		{"self transition", StatusInReview, StatusInReview, false},
		{"unknown from", "bogus", StatusInReview, false},
		{"unknown to", StatusPendingReview, "bogus", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransitionAllowed(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in_review")
	assert.NoError(t, err)
	assert.Equal(t, StatusInReview, s)

	_, err = ParseStatus("done")
	assert.Error(t, err)
}

func TestReviewSucceeded(t *testing.T) {
	no := false
	assert.True(t, (&JobReview{Recommend: &no}).Succeeded(),
		"a negative verdict is still a successful evaluation")
	assert.False(t, (&JobReview{ErrorMessage: "timeout", RetryCount: 3}).Succeeded())
}
