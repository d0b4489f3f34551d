// Package rcv implements single-winner instant-runoff tabulation: tally
// first active preferences, check for a majority, eliminate the
// lowest-scoring candidate and repeat until a winner emerges or only one
// candidate remains.
//
// Tabulate is pure: it holds no state across calls and performs no I/O.
// Callers are responsible for handing it already-validated ballots (see
// package ballot) — Tabulate only defends against ballots that
// reference an unknown candidate or rank the same candidate twice,
// which it treats as a caller bug.
package rcv

import (
	"math/rand/v2"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zemekeneng/rankchoice/internal/apperr"
)

// Candidate is one option on the ballot.
type Candidate struct {
	ID   int
	Name string
}

// Ballot is a single voter's ranking, already resolved to an ordered
// list of candidate IDs (rank 1 first). A ballot with no rankings is
// valid and always exhausts immediately.
type Ballot struct {
	Rankings []int
}

// Round captures the state of the count after one tally/elimination
// step.
type Round struct {
	Number            int
	VoteCounts        map[int]int
	Eliminated        []int
	Winner            *int
	ExhaustedBallots  int
	TotalVotes        int
	MajorityThreshold decimal.Decimal
}

// Result is the full tabulation history plus the outcome.
type Result struct {
	Rounds           []Round
	Winner           *int
	TotalBallots     int
	ExhaustedBallots int
}

// TieBreakRule names one step of the tie-break ladder. Rules are tried
// in the order given in Config.Rules until exactly one candidate
// remains to eliminate.
type TieBreakRule int

const (
	// TieBreakFirstChoiceVotes eliminates whichever tied candidate had
	// the fewest round-1 (first-choice) votes.
	TieBreakFirstChoiceVotes TieBreakRule = iota
	// TieBreakPriorRoundPerformance walks prior rounds, most recent
	// first, eliminating whichever tied candidate had fewer votes at
	// the first round where the tied candidates differ.
	TieBreakPriorRoundPerformance
	// TieBreakMostVotesToDistribute eliminates whichever tied candidate
	// has the greatest residual preference sum: over the ballots whose
	// earliest tied candidate it is, the number of preferences ranked
	// after it (see residualPreferenceSum).
	TieBreakMostVotesToDistribute
	// TieBreakRandom picks uniformly among whatever remains tied, using
	// Config.Seed so the outcome is reproducible.
	TieBreakRandom
)

// Config controls tie-break behavior. DefaultConfig returns the full
// ladder described in spec.md §4.1.1.
type Config struct {
	Rules []TieBreakRule
	Seed  uint64
}

// DefaultConfig returns the canonical tie-break ladder.
func DefaultConfig(seed uint64) Config {
	return Config{
		Rules: []TieBreakRule{
			TieBreakFirstChoiceVotes,
			TieBreakPriorRoundPerformance,
			TieBreakMostVotesToDistribute,
			TieBreakRandom,
		},
		Seed: seed,
	}
}

// Tabulate runs single-winner IRV over ballots among candidates.
func Tabulate(candidates []Candidate, ballots []Ballot, cfg Config) (Result, error) {
	if len(candidates) < 2 {
		return Result{}, apperr.MessageError(apperr.ErrTabulationFailed, "tabulation requires at least two candidates")
	}

	known := make(map[int]bool, len(candidates))
	active := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
		active[c.ID] = true
	}
	for _, b := range ballots {
		seen := make(map[int]bool, len(b.Rankings))
		for _, cid := range b.Rankings {
			if !known[cid] {
				return Result{}, apperr.MessageErrorf(apperr.ErrTabulationFailed, "ballot ranks unknown candidate %d", cid)
			}
			if seen[cid] {
				return Result{}, apperr.MessageErrorf(apperr.ErrTabulationFailed, "ballot contains duplicate candidate %d", cid)
			}
			seen[cid] = true
		}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>32|1))

	var rounds []Round
	safetyCap := len(candidates) + 1

	for roundNum := 1; ; roundNum++ {
		if roundNum > safetyCap {
			return Result{}, apperr.MessageError(apperr.ErrTabulationFailed, "tabulation exceeded the safety round cap")
		}

		counts := make(map[int]int, len(active))
		for id := range active {
			counts[id] = 0
		}
		exhausted := 0
		for _, b := range ballots {
			cid, ok := firstActivePreference(b, active)
			if !ok {
				exhausted++
				continue
			}
			counts[cid]++
		}

		total := 0
		for _, c := range counts {
			total += c
		}
		threshold := decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(2))

		winner := -1
		for _, id := range sortedKeys(active) {
			if decimal.NewFromInt(int64(counts[id])).GreaterThan(threshold) {
				winner = id
				break
			}
		}

		remaining := sortedKeys(active)

		var eliminated []int
		if winner == -1 && len(remaining) > 1 {
			elim := pickElimination(remaining, counts, rounds, ballots, active, cfg, rng)
			eliminated = []int{elim}
			active[elim] = false
		}

		round := Round{
			Number:            roundNum,
			VoteCounts:        counts,
			Eliminated:        eliminated,
			ExhaustedBallots:  exhausted,
			TotalVotes:        total,
			MajorityThreshold: threshold,
		}
		if winner != -1 {
			w := winner
			round.Winner = &w
		}
		rounds = append(rounds, round)

		if winner != -1 || len(sortedKeys(active)) <= 1 {
			result := Result{
				Rounds:           rounds,
				TotalBallots:     len(ballots),
				ExhaustedBallots: exhausted,
			}
			if winner != -1 {
				w := winner
				result.Winner = &w
			} else if len(sortedKeys(active)) == 1 {
				w := sortedKeys(active)[0]
				result.Winner = &w
			}
			return result, nil
		}
	}
}

// firstActivePreference returns the first candidate on the ballot that
// is still active, or false if every ranked candidate has been
// eliminated (the ballot is exhausted).
func firstActivePreference(b Ballot, active map[int]bool) (int, bool) {
	for _, cid := range b.Rankings {
		if active[cid] {
			return cid, true
		}
	}
	return 0, false
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for id, ok := range m {
		if ok {
			keys = append(keys, id)
		}
	}
	sort.Ints(keys)
	return keys
}

// pickElimination resolves which of the lowest-scoring active
// candidates to eliminate this round, applying the tie-break ladder
// only when more than one candidate shares the lowest count.
func pickElimination(active []int, counts map[int]int, rounds []Round, ballots []Ballot, activeSet map[int]bool, cfg Config, rng *rand.Rand) int {
	min := counts[active[0]]
	for _, id := range active {
		if counts[id] < min {
			min = counts[id]
		}
	}

	var tied []int
	for _, id := range active {
		if counts[id] == min {
			tied = append(tied, id)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}

	for _, rule := range cfg.Rules {
		tied = applyTieBreak(rule, tied, rounds, ballots, activeSet, rng)
		if len(tied) == 1 {
			return tied[0]
		}
	}

	// Ladder exhausted without full resolution (should only happen if
	// Config.Rules omits TieBreakRandom); fall back to the lowest id so
	// the outcome stays deterministic.
	return tied[0]
}

func applyTieBreak(rule TieBreakRule, tied []int, rounds []Round, ballots []Ballot, active map[int]bool, rng *rand.Rand) []int {
	switch rule {
	case TieBreakFirstChoiceVotes:
		if len(rounds) == 0 {
			return tied
		}
		return lowestBy(tied, func(id int) int { return rounds[0].VoteCounts[id] })

	case TieBreakPriorRoundPerformance:
		for i := len(rounds) - 1; i >= 0; i-- {
			next := lowestBy(tied, func(id int) int { return rounds[i].VoteCounts[id] })
			if len(next) < len(tied) {
				return next
			}
		}
		return tied

	case TieBreakMostVotesToDistribute:
		return highestBy(tied, func(id int) int { return residualPreferenceSum(id, tied, ballots) })

	case TieBreakRandom:
		if len(tied) <= 1 {
			return tied
		}
		idx := rng.IntN(len(tied))
		return []int{tied[idx]}
	}
	return tied
}

// lowestBy narrows candidates down to the subset sharing the minimum
// value of key, preserving their relative order.
func lowestBy(candidates []int, key func(int) int) []int {
	if len(candidates) == 0 {
		return candidates
	}
	min := key(candidates[0])
	for _, id := range candidates[1:] {
		if v := key(id); v < min {
			min = v
		}
	}
	var out []int
	for _, id := range candidates {
		if key(id) == min {
			out = append(out, id)
		}
	}
	return out
}

// highestBy narrows candidates down to the subset sharing the maximum
// value of key, preserving their relative order.
func highestBy(candidates []int, key func(int) int) []int {
	if len(candidates) == 0 {
		return candidates
	}
	max := key(candidates[0])
	for _, id := range candidates[1:] {
		if v := key(id); v > max {
			max = v
		}
	}
	var out []int
	for _, id := range candidates {
		if key(id) == max {
			out = append(out, id)
		}
	}
	return out
}

// residualPreferenceSum sums, over every ballot whose earliest
// tied-set member is id, the credit (ballot_length - position - 1):
// the number of further preferences remaining after id on that ballot.
// Per spec.md §4.1.1, the tied candidate with the greatest sum is the
// one whose elimination would transfer the most residual preference,
// so it is the one eliminated.
func residualPreferenceSum(id int, tied []int, ballots []Ballot) int {
	inTied := make(map[int]bool, len(tied))
	for _, t := range tied {
		inTied[t] = true
	}

	sum := 0
	for _, b := range ballots {
		for i, cid := range b.Rankings {
			if !inTied[cid] {
				continue
			}
			if cid == id {
				sum += len(b.Rankings) - i - 1
			}
			break
		}
	}
	return sum
}
