package dedup

import (
	"sort"

	"github.com/google/uuid"

	"github.com/yourusername/jobradar-api/internal/model"
)

// Decision is the grouper's verdict for an incoming posting.
type Decision int

const (
	// DecisionNew: no record with this (site, job_url) exists and no
	// existing record shares the canonical key. Fresh group, original.
	DecisionNew Decision = iota
	// DecisionRefresh: a record with this exact (site, job_url) already
	// exists. Content is updated in place; dedup fields are preserved.
	DecisionRefresh
	// DecisionJoinGroup: another record (any site) shares the canonical
	// key. The newcomer adopts the existing group id and the whole group
	// is re-ranked.
	DecisionJoinGroup
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionRefresh:
		return "refresh"
	case DecisionJoinGroup:
		return "join_group"
	}
	return "unknown"
}

// Classify decides what an incoming posting is, given the record already
// stored under its (site, job_url), nil if absent, and the records that
// share its canonical key.
func Classify(existingSameURL *model.JobRecord, groupPeers []model.JobRecord) Decision {
	if existingSameURL != nil {
		return DecisionRefresh
	}
	if len(groupPeers) > 0 {
		return DecisionJoinGroup
	}
	return DecisionNew
}

// ChooseOriginal deterministically picks which member of a duplicate group
// is the original. It re-ranks the full group every time membership
// changes, so "exactly one original per group" holds after every mutation.
//
// Ranking, first strict discriminator wins:
//  1. non-null salary (min_amount present)
//  2. most recently posted (null posted-date sorts last)
//  3. earliest-ingested
//  4. a member that is already original keeps its rank
//  5. id ordering, so the choice is total
func ChooseOriginal(members []model.JobRecord) uuid.UUID {
	if len(members) == 0 {
		return uuid.Nil
	}

	ranked := make([]model.JobRecord, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		return outranks(&ranked[i], &ranked[j])
	})
	return ranked[0].ID
}

// outranks reports whether a should be preferred over b as the group
// original.
func outranks(a, b *model.JobRecord) bool {
	aSalary := a.MinAmount != nil
	bSalary := b.MinAmount != nil
	if aSalary != bSalary {
		return aSalary
	}

	switch {
	case a.DatePosted != nil && b.DatePosted == nil:
		return true
	case a.DatePosted == nil && b.DatePosted != nil:
		return false
	case a.DatePosted != nil && b.DatePosted != nil && !a.DatePosted.Equal(*b.DatePosted):
		return a.DatePosted.After(*b.DatePosted)
	}

	if !a.IngestedAt.Equal(b.IngestedAt) {
		return a.IngestedAt.Before(b.IngestedAt)
	}

	aOrig := a.DuplicateStatus == model.DuplicateOriginal
	bOrig := b.DuplicateStatus == model.DuplicateOriginal
	if aOrig != bOrig {
		return aOrig
	}

	return a.ID.String() < b.ID.String()
}
