package rcv

import (
	"strings"
	"testing"
)

func cand(ids ...int) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, Name: "candidate"}
	}
	return out
}

func TestTabulateMajorityWinnerRound1(t *testing.T) {
	candidates := cand(1, 2, 3)
	ballots := []Ballot{
		{Rankings: []int{1, 2}},
		{Rankings: []int{1, 3}},
		{Rankings: []int{1}},
		{Rankings: []int{2, 1}},
		{Rankings: []int{3, 1}},
	}

	result, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	if result.Winner == nil || *result.Winner != 1 {
		t.Fatalf("expected candidate 1 to win outright, got %v", result.Winner)
	}
	if len(result.Rounds) != 1 {
		t.Fatalf("expected a single round, got %d", len(result.Rounds))
	}
}

func TestTabulateEliminationAndTransfer(t *testing.T) {
	candidates := cand(1, 2, 3)
	ballots := []Ballot{
		{Rankings: []int{1, 2}},
		{Rankings: []int{1, 2}},
		{Rankings: []int{2, 1}},
		{Rankings: []int{3, 1}},
		{Rankings: []int{3, 2}},
	}

	result, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	if len(result.Rounds) < 2 {
		t.Fatalf("expected at least two rounds, got %d", len(result.Rounds))
	}
	first := result.Rounds[0]
	if first.VoteCounts[1] != 2 || first.VoteCounts[2] != 1 || first.VoteCounts[3] != 2 {
		t.Fatalf("unexpected round 1 counts: %+v", first.VoteCounts)
	}
	if len(first.Eliminated) != 1 || first.Eliminated[0] != 2 {
		t.Fatalf("expected candidate 2 eliminated first, got %+v", first.Eliminated)
	}
	if result.Winner == nil {
		t.Fatalf("expected a winner after transfer")
	}
}

func TestTabulateExhaustedBallots(t *testing.T) {
	candidates := cand(1, 2, 3)
	ballots := []Ballot{
		{Rankings: []int{1}},
		{Rankings: []int{1}},
		{Rankings: []int{2}},
		{Rankings: []int{3}},
		{Rankings: []int{3}},
	}

	result, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	// Once candidate 2 (no further rankings) is eliminated, that ballot
	// has nowhere to go and should count toward exhausted ballots.
	var sawExhausted bool
	for _, r := range result.Rounds {
		if r.ExhaustedBallots > 0 {
			sawExhausted = true
		}
	}
	if !sawExhausted {
		t.Fatalf("expected some round to report an exhausted ballot, rounds: %+v", result.Rounds)
	}
}

func TestTabulateUnknownCandidateRejected(t *testing.T) {
	candidates := cand(1, 2)
	ballots := []Ballot{
		{Rankings: []int{1, 99}},
	}

	if _, err := Tabulate(candidates, ballots, DefaultConfig(1)); err == nil {
		t.Fatalf("expected an error for a ballot ranking an unknown candidate")
	}
}

func TestTabulateDuplicateCandidateRejected(t *testing.T) {
	candidates := cand(1, 2)
	ballots := []Ballot{
		{Rankings: []int{1, 1}},
	}

	_, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err == nil {
		t.Fatalf("expected an error for a ballot ranking the same candidate twice")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected error message to mention duplicate, got %q", err.Error())
	}
}

func TestTabulateTieBreakIsDeterministic(t *testing.T) {
	candidates := cand(1, 2, 3, 4)
	ballots := []Ballot{
		{Rankings: []int{1}},
		{Rankings: []int{2}},
		{Rankings: []int{3}},
		{Rankings: []int{4}},
	}

	first, err := Tabulate(candidates, ballots, DefaultConfig(42))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	second, err := Tabulate(candidates, ballots, DefaultConfig(42))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	if len(first.Rounds) != len(second.Rounds) {
		t.Fatalf("expected identical round counts for the same seed")
	}
	for i := range first.Rounds {
		if len(first.Rounds[i].Eliminated) != len(second.Rounds[i].Eliminated) {
			t.Fatalf("round %d: eliminated sets differ in length", i)
		}
		for j, id := range first.Rounds[i].Eliminated {
			if second.Rounds[i].Eliminated[j] != id {
				t.Fatalf("round %d: eliminations diverged for the same seed", i)
			}
		}
	}
}

func TestTabulateRequiresAtLeastTwoCandidates(t *testing.T) {
	candidates := cand(1)
	ballots := []Ballot{
		{Rankings: []int{1}},
		{Rankings: []int{1}},
	}

	if _, err := Tabulate(candidates, ballots, DefaultConfig(1)); err == nil {
		t.Fatalf("expected an error when fewer than two candidates are supplied")
	}
}

func TestTabulatePermutationInvariant(t *testing.T) {
	candidates := cand(1, 2, 3)
	ballots := []Ballot{
		{Rankings: []int{1, 2}},
		{Rankings: []int{1, 3}},
		{Rankings: []int{2, 1}},
		{Rankings: []int{3, 1}},
		{Rankings: []int{3, 2}},
	}
	reversed := make([]Ballot, len(ballots))
	for i, b := range ballots {
		reversed[len(ballots)-1-i] = b
	}

	want, err := Tabulate(candidates, ballots, DefaultConfig(7))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	got, err := Tabulate(candidates, reversed, DefaultConfig(7))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}

	if len(want.Rounds) != len(got.Rounds) {
		t.Fatalf("round counts differ under permutation: %d vs %d", len(want.Rounds), len(got.Rounds))
	}
	for i := range want.Rounds {
		if want.Rounds[i].TotalVotes != got.Rounds[i].TotalVotes {
			t.Fatalf("round %d total votes differ under permutation", i)
		}
		for cid, votes := range want.Rounds[i].VoteCounts {
			if got.Rounds[i].VoteCounts[cid] != votes {
				t.Fatalf("round %d candidate %d votes differ under permutation", i, cid)
			}
		}
	}
	if (want.Winner == nil) != (got.Winner == nil) || (want.Winner != nil && *want.Winner != *got.Winner) {
		t.Fatalf("winner differs under permutation: %v vs %v", want.Winner, got.Winner)
	}
}

func TestTabulateRoundSumsMatchTotalBallots(t *testing.T) {
	candidates := cand(1, 2, 3)
	ballots := []Ballot{
		{Rankings: []int{1, 2}},
		{Rankings: []int{1, 2}},
		{Rankings: []int{2, 1}},
		{Rankings: []int{2, 1}},
		{Rankings: []int{3}},
	}

	result, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	for _, r := range result.Rounds {
		sum := r.ExhaustedBallots
		for _, v := range r.VoteCounts {
			sum += v
		}
		if sum != result.TotalBallots {
			t.Fatalf("round %d: votes+exhausted = %d, want %d", r.Number, sum, result.TotalBallots)
		}
	}
}

func TestTabulateMonotonicElimination(t *testing.T) {
	candidates := cand(1, 2, 3, 4)
	ballots := []Ballot{
		{Rankings: []int{1, 2}},
		{Rankings: []int{1, 2}},
		{Rankings: []int{2, 1}},
		{Rankings: []int{3, 1}},
		{Rankings: []int{4, 1}},
	}

	result, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	eliminatedAt := map[int]int{}
	for _, r := range result.Rounds {
		for _, id := range r.Eliminated {
			eliminatedAt[id] = r.Number
		}
	}
	for _, r := range result.Rounds {
		for id, at := range eliminatedAt {
			if r.Number > at {
				if v, ok := r.VoteCounts[id]; ok && v != 0 {
					t.Fatalf("candidate %d eliminated in round %d still has %d votes in round %d", id, at, v, r.Number)
				}
			}
		}
	}
}

func TestTabulateMostVotesToDistributeEliminatesGreatestResidual(t *testing.T) {
	// Candidates 2 and 3 tie at 1 vote each in round 1. The ballot
	// counted for 2 has no further preference (residual 0); the ballot
	// counted for 3 ranks a further active candidate (residual 1). The
	// ladder's MostVotesToDistribute step must eliminate 3, the larger
	// residual sum, per spec.md §4.1.1.
	candidates := cand(1, 2, 3)
	ballots := []Ballot{
		{Rankings: []int{1}},
		{Rankings: []int{1}},
		{Rankings: []int{2}},
		{Rankings: []int{3, 2}},
	}

	result, err := Tabulate(candidates, ballots, DefaultConfig(1))
	if err != nil {
		t.Fatalf("Tabulate: %v", err)
	}
	first := result.Rounds[0]
	if len(first.Eliminated) != 1 || first.Eliminated[0] != 3 {
		t.Fatalf("expected candidate 3 (greater residual) eliminated first, got %+v", first.Eliminated)
	}
}
