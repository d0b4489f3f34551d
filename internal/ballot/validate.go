// Package ballot validates a submitted ranking before it is handed to
// the store or the tabulator: every rank must be sequential starting
// at 1, no candidate may appear twice, and every candidate must belong
// to the poll being voted on.
package ballot

import (
	"sort"

	"github.com/zemekeneng/rankchoice/internal/apperr"
)

// Ranking is one line of a submitted ballot: a candidate paired with
// the rank the voter gave it.
type Ranking struct {
	CandidateID int
	Rank        int
}

// Validate checks rankings against the candidates eligible for the
// poll, in the order spec.md §4.2 specifies: empty submissions, then
// candidate membership, then duplicate candidates, then duplicate or
// non-sequential ranks. On success it returns the rankings sorted by
// rank, ready for internal/rcv.
func Validate(rankings []Ranking, eligible []int) ([]Ranking, error) {
	if len(rankings) == 0 {
		return nil, apperr.MessageError(apperr.ErrValidation, "a ballot must rank at least one candidate")
	}

	known := make(map[int]bool, len(eligible))
	for _, id := range eligible {
		known[id] = true
	}

	for _, r := range rankings {
		if !known[r.CandidateID] {
			return nil, apperr.MessageErrorf(apperr.ErrInvalidCandidate, "candidate %d is not on this ballot", r.CandidateID)
		}
	}

	seenCandidate := make(map[int]bool, len(rankings))
	for _, r := range rankings {
		if seenCandidate[r.CandidateID] {
			return nil, apperr.MessageErrorf(apperr.ErrValidation, "candidate %d is ranked more than once", r.CandidateID)
		}
		seenCandidate[r.CandidateID] = true
	}

	seenRank := make(map[int]bool, len(rankings))
	for _, r := range rankings {
		if seenRank[r.Rank] {
			return nil, apperr.MessageErrorf(apperr.ErrValidation, "rank %d is used more than once", r.Rank)
		}
		seenRank[r.Rank] = true
	}

	sorted := append([]Ranking(nil), rankings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	for i, r := range sorted {
		if r.Rank != i+1 {
			return nil, apperr.MessageError(apperr.ErrValidation, "ranks must be sequential starting at 1, with no gaps")
		}
	}

	return sorted, nil
}

// CandidateIDs extracts the ranked candidate IDs in rank order, the
// shape internal/rcv.Ballot wants.
func CandidateIDs(rankings []Ranking) []int {
	ids := make([]int, len(rankings))
	for i, r := range rankings {
		ids[i] = r.CandidateID
	}
	return ids
}
