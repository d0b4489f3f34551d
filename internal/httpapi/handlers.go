package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zemekeneng/rankchoice/internal/apperr"
	"github.com/zemekeneng/rankchoice/internal/ballot"
	"github.com/zemekeneng/rankchoice/internal/rcv"
	"github.com/zemekeneng/rankchoice/internal/store"
	"github.com/zemekeneng/rankchoice/internal/token"
)

// Deps is everything the HTTP layer needs from the rest of the
// service. Handlers depend on the store.Store interface, never a
// concrete backend, so tests can substitute a fake.
type Deps struct {
	Store     store.Store
	RCVConfig rcv.Config
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// handleBallotForm serves GET /vote/{token}: the candidates to rank
// and whether this voter has already voted.
func handleBallotForm(d Deps) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		voter, err := d.Store.FindVoterByToken(r.Context(), r.PathValue("token"))
		if err != nil {
			return err
		}
		poll, err := d.Store.FindPollByID(r.Context(), voter.PollID)
		if err != nil {
			return err
		}
		candidates, err := d.Store.FindCandidatesByPoll(r.Context(), poll.ID)
		if err != nil {
			return err
		}

		resp := ballotFormResponse{
			PollID:       poll.ID.String(),
			Title:        poll.Title,
			AlreadyVoted: voter.VotedAt != nil,
			Candidates:   make([]candidateWire, len(candidates)),
		}
		for i, c := range candidates {
			resp.Candidates[i] = candidateWire{CandidateID: c.ID, Name: c.Name, Description: c.Description}
		}

		return writeJSON(w, success(resp, d.now()))
	}
}

// handleSubmitInvitedBallot serves POST /vote/{token}.
func handleSubmitInvitedBallot(d Deps) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		voter, err := d.Store.FindVoterByToken(r.Context(), r.PathValue("token"))
		if err != nil {
			return err
		}
		poll, err := d.Store.FindPollByID(r.Context(), voter.PollID)
		if err != nil {
			return err
		}
		candidates, err := d.Store.FindCandidatesByPoll(r.Context(), poll.ID)
		if err != nil {
			return err
		}

		var req submitBallotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperr.MessageError(apperr.ErrValidation, "malformed request body")
		}

		rankings, err := validateSubmission(req, candidates)
		if err != nil {
			return err
		}
		if err := checkOpenWindow(poll, d.now()); err != nil {
			return err
		}
		if voter.VotedAt != nil {
			return apperr.MessageError(apperr.ErrAlreadyVoted, "this voter has already submitted a ballot")
		}

		ip := clientIP(r)
		b, err := d.Store.SubmitInvitedBallot(r.Context(), store.SubmitInvitedBallot{
			VoterID:   voter.ID,
			PollID:    poll.ID,
			Rankings:  rankings,
			IPAddress: ip,
		})
		if err != nil {
			return err
		}
		invalidateVoter(r.Context(), d.Store, voter.BallotToken)

		return writeJSON(w, success(submissionResponse(b, false), d.now()))
	}
}

// handleBallotReceipt serves GET /vote/{token}/receipt.
func handleBallotReceipt(d Deps) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		voter, err := d.Store.FindVoterByToken(r.Context(), r.PathValue("token"))
		if err != nil {
			return err
		}
		if voter.VotedAt == nil {
			return apperr.MessageError(apperr.ErrNotVoted, "this voter has not submitted a ballot yet")
		}
		b, err := d.Store.FindBallotByVoter(r.Context(), voter.ID)
		if err != nil {
			return err
		}

		receipt := token.BuildReceipt(b.ID.String(), false, b.SubmittedAt)
		return writeJSON(w, success(receiptWire{
			ReceiptCode:     receipt.Code,
			VerificationURL: verificationURL(receipt.Code),
		}, d.now()))
	}
}

// handleSubmitAnonymousBallot serves POST /polls/{id}/vote.
func handleSubmitAnonymousBallot(d Deps) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		pollID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			return apperr.MessageError(apperr.ErrInvalidID, "poll id is not a valid identifier")
		}
		poll, err := d.Store.FindPollByID(r.Context(), pollID)
		if err != nil {
			return err
		}
		candidates, err := d.Store.FindCandidatesByPoll(r.Context(), poll.ID)
		if err != nil {
			return err
		}

		var req submitBallotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperr.MessageError(apperr.ErrValidation, "malformed request body")
		}

		rankings, err := validateSubmission(req, candidates)
		if err != nil {
			return err
		}
		if err := checkOpenWindow(poll, d.now()); err != nil {
			return err
		}
		if !poll.IsPublic {
			return apperr.MessageError(apperr.ErrPollNotPublic, "this poll does not accept anonymous ballots")
		}

		ip := clientIP(r)
		b, err := d.Store.SubmitAnonymousBallot(r.Context(), store.SubmitAnonymousBallot{
			PollID:    poll.ID,
			Rankings:  rankings,
			IPAddress: ip,
		})
		if err != nil {
			return err
		}

		return writeJSON(w, success(submissionResponse(b, true), d.now()))
	}
}

// handleResults serves GET /polls/{id}/results.
func handleResults(d Deps) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		poll, candidates, result, err := tabulatePoll(r, d)
		if err != nil {
			return err
		}

		resp := resultsResponse{
			PollID:     poll.ID.String(),
			TotalVotes: result.TotalBallots,
			Status:     resultStatus(poll, result, d.now()),
		}

		names := candidateNames(candidates)
		last := result.Rounds[len(result.Rounds)-1]
		eliminatedRound := eliminationRounds(result.Rounds)

		if result.Winner != nil {
			resp.Winner = &winnerWire{
				CandidateID: *result.Winner,
				Name:        names[*result.Winner],
				FinalVotes:  last.VoteCounts[*result.Winner],
				Percentage:  percentOf(last.VoteCounts[*result.Winner], last.TotalVotes),
			}
		}

		ids := make([]int, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}
		sort.Slice(ids, func(i, j int) bool {
			return last.VoteCounts[ids[i]] > last.VoteCounts[ids[j]]
		})
		for pos, id := range ids {
			var elimRound *int
			if r, ok := eliminatedRound[id]; ok {
				elimRound = &r
			}
			resp.FinalRankings = append(resp.FinalRankings, finalRankingWire{
				Position:        pos + 1,
				CandidateID:     id,
				Name:            names[id],
				Votes:           last.VoteCounts[id],
				Percentage:      percentOf(last.VoteCounts[id], last.TotalVotes),
				EliminatedRound: elimRound,
			})
		}

		return writeJSON(w, success(resp, d.now()))
	}
}

// handleRounds serves GET /polls/{id}/results/rounds.
func handleRounds(d Deps) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		_, candidates, result, err := tabulatePoll(r, d)
		if err != nil {
			return err
		}

		names := candidateNames(candidates)
		resp := roundsResponse{Rounds: make([]roundWire, len(result.Rounds))}
		for i, round := range result.Rounds {
			rw := roundWire{
				RoundNumber:       round.Number,
				VoteCounts:        make(map[string]roundVoteWire, len(round.VoteCounts)),
				ExhaustedBallots:  round.ExhaustedBallots,
				TotalVotes:        round.TotalVotes,
				MajorityThreshold: round.MajorityThreshold.StringFixed(2),
				Winner:            round.Winner,
			}
			if len(round.Eliminated) > 0 {
				e := round.Eliminated[0]
				rw.Eliminated = &e
			}
			for id, votes := range round.VoteCounts {
				rw.VoteCounts[names[id]] = roundVoteWire{
					Name:       names[id],
					Votes:      votes,
					Percentage: percentOf(votes, round.TotalVotes),
				}
			}
			resp.Rounds[i] = rw
		}

		return writeJSON(w, success(resp, d.now()))
	}
}

// handleHealth serves GET /healthz, matching the teacher's
// handleHealth/HealthClient contract.
func handleHealth() HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"healthy": true, "service": "rankchoice"}`))
		return err
	}
}

func tabulatePoll(r *http.Request, d Deps) (store.Poll, []store.Candidate, rcv.Result, error) {
	pollID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return store.Poll{}, nil, rcv.Result{}, apperr.MessageError(apperr.ErrInvalidID, "poll id is not a valid identifier")
	}
	poll, err := d.Store.FindPollByID(r.Context(), pollID)
	if err != nil {
		return store.Poll{}, nil, rcv.Result{}, err
	}
	candidates, err := d.Store.FindCandidatesByPoll(r.Context(), pollID)
	if err != nil {
		return store.Poll{}, nil, rcv.Result{}, err
	}
	ballots, err := d.Store.ListBallotsForPoll(r.Context(), pollID)
	if err != nil {
		return store.Poll{}, nil, rcv.Result{}, err
	}

	rcvCandidates := make([]rcv.Candidate, len(candidates))
	for i, c := range candidates {
		rcvCandidates[i] = rcv.Candidate{ID: c.ID, Name: c.Name}
	}
	rcvBallots := make([]rcv.Ballot, len(ballots))
	for i, b := range ballots {
		ids := make([]int, len(b.Rankings))
		for j, rk := range b.Rankings {
			ids[j] = rk.CandidateID
		}
		rcvBallots[i] = rcv.Ballot{Rankings: ids}
	}

	result, err := rcv.Tabulate(rcvCandidates, rcvBallots, d.RCVConfig)
	if err != nil {
		return store.Poll{}, nil, rcv.Result{}, err
	}
	return poll, candidates, result, nil
}

// voterInvalidator is implemented by store.Store wrappers (internal/tokencache.Cache)
// that cache FindVoterByToken reads and need telling when a cached entry
// has gone stale.
type voterInvalidator interface {
	InvalidateVoter(ctx context.Context, token string)
}

// invalidateVoter drops any cached voter record for token after a
// successful submission, so a subsequent GET /vote/{token} can't keep
// serving a stale VotedAt from cache. A store.Store that doesn't cache
// does nothing here.
func invalidateVoter(ctx context.Context, s store.Store, token string) {
	if inv, ok := s.(voterInvalidator); ok {
		inv.InvalidateVoter(ctx, token)
	}
}

func candidateNames(candidates []store.Candidate) map[int]string {
	names := make(map[int]string, len(candidates))
	for _, c := range candidates {
		names[c.ID] = c.Name
	}
	return names
}

// eliminationRounds maps candidate id to the round number it was
// eliminated in.
func eliminationRounds(rounds []rcv.Round) map[int]int {
	out := make(map[int]int)
	for _, round := range rounds {
		for _, id := range round.Eliminated {
			out[id] = round.Number
		}
	}
	return out
}

// resultStatus computes the boundary-level status field from whether a
// winner exists and whether the poll's closing time has passed,
// per spec.md §9's preferred design — never computed inside internal/rcv.
func resultStatus(poll store.Poll, result rcv.Result, now time.Time) string {
	if result.TotalBallots == 0 {
		return "no_votes"
	}
	if poll.ClosesAt != nil && now.After(*poll.ClosesAt) {
		return "completed"
	}
	if result.Winner != nil {
		return "winner_declared"
	}
	return "in_progress"
}

// percentOf computes votes/total*100 with exact decimal arithmetic,
// per spec.md §4.1 "percentages are computed at the API boundary
// only". Returns "0" when total is zero.
func percentOf(votes, total int) string {
	if total == 0 {
		return "0"
	}
	pct := decimal.NewFromInt(int64(votes)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total)))
	return pct.StringFixed(2)
}

func validateSubmission(req submitBallotRequest, candidates []store.Candidate) ([]store.Ranking, error) {
	eligible := make([]int, len(candidates))
	for i, c := range candidates {
		eligible[i] = c.ID
	}

	in := make([]ballot.Ranking, len(req.Rankings))
	for i, r := range req.Rankings {
		in[i] = ballot.Ranking{CandidateID: r.CandidateID, Rank: r.Rank}
	}

	sorted, err := ballot.Validate(in, eligible)
	if err != nil {
		return nil, err
	}

	out := make([]store.Ranking, len(sorted))
	for i, r := range sorted {
		out[i] = store.Ranking{CandidateID: r.CandidateID, Rank: r.Rank}
	}
	return out, nil
}

// checkOpenWindow rejects a submission outside the poll's
// [opens_at, closes_at] window (either bound may be absent).
func checkOpenWindow(poll store.Poll, now time.Time) error {
	if poll.OpensAt != nil && now.Before(*poll.OpensAt) {
		return apperr.MessageError(apperr.ErrPollClosed, "this poll is not open yet")
	}
	if poll.ClosesAt != nil && now.After(*poll.ClosesAt) {
		return apperr.MessageError(apperr.ErrPollClosed, "this poll is no longer accepting ballots")
	}
	return nil
}

func submissionResponse(b store.Ballot, anonymous bool) submitBallotResponse {
	receipt := token.BuildReceipt(b.ID.String(), anonymous, b.SubmittedAt)
	return submitBallotResponse{
		Ballot: ballotWire{
			ID:          b.ID.String(),
			SubmittedAt: b.SubmittedAt.UTC().Format(time.RFC3339),
		},
		Receipt: receiptWire{
			ReceiptCode:     receipt.Code,
			VerificationURL: verificationURL(receipt.Code),
		},
	}
}

// verificationURL is a content-free lookup handle, per spec.md §4.4: it
// identifies a receipt without revealing anything about the ballot.
func verificationURL(receiptCode string) string {
	return "/receipts/" + receiptCode
}

// clientIP extracts the caller's address from the request for audit
// storage, returning nil if it can't be parsed (e.g. in tests against
// an httptest server with no real remote address).
func clientIP(r *http.Request) *netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}

func writeJSON(w http.ResponseWriter, e envelope) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(e)
}
