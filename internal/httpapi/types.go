package httpapi

// rankingInput is one line of the wire-format `rankings` array in a
// ballot submission (spec.md §6).
type rankingInput struct {
	CandidateID int `json:"candidate_id"`
	Rank        int `json:"rank"`
}

// submitBallotRequest is the JSON body of POST /vote/{token} and
// POST /polls/{id}/vote.
type submitBallotRequest struct {
	Rankings []rankingInput `json:"rankings"`
}

type ballotWire struct {
	ID          string `json:"id"`
	SubmittedAt string `json:"submitted_at"`
}

type receiptWire struct {
	ReceiptCode     string `json:"receipt_code"`
	VerificationURL string `json:"verification_url"`
}

// submitBallotResponse is the success body of a ballot submission.
type submitBallotResponse struct {
	Ballot  ballotWire  `json:"ballot"`
	Receipt receiptWire `json:"receipt"`
}

type candidateWire struct {
	CandidateID int    `json:"candidate_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ballotFormResponse is the body of GET /vote/{token}: what the voter
// needs to render a ballot, plus whether they have already voted.
type ballotFormResponse struct {
	PollID       string          `json:"poll_id"`
	Title        string          `json:"title"`
	Candidates   []candidateWire `json:"candidates"`
	AlreadyVoted bool            `json:"already_voted"`
}

type winnerWire struct {
	CandidateID int    `json:"candidate_id"`
	Name        string `json:"name"`
	FinalVotes  int    `json:"final_votes"`
	Percentage  string `json:"percentage"`
}

type finalRankingWire struct {
	Position        int    `json:"position"`
	CandidateID     int    `json:"candidate_id"`
	Name            string `json:"name"`
	Votes           int    `json:"votes"`
	Percentage      string `json:"percentage"`
	EliminatedRound *int   `json:"eliminated_round,omitempty"`
}

// resultsResponse is the body of GET /polls/{id}/results (spec.md §6).
type resultsResponse struct {
	PollID        string             `json:"poll_id"`
	TotalVotes    int                `json:"total_votes"`
	Status        string             `json:"status"`
	Winner        *winnerWire        `json:"winner,omitempty"`
	FinalRankings []finalRankingWire `json:"final_rankings"`
}

type roundVoteWire struct {
	Name       string `json:"name"`
	Votes      int    `json:"votes"`
	Percentage string `json:"percentage"`
}

type roundWire struct {
	RoundNumber       int                      `json:"round_number"`
	VoteCounts        map[string]roundVoteWire `json:"vote_counts"`
	Eliminated        *int                     `json:"eliminated,omitempty"`
	Winner            *int                     `json:"winner,omitempty"`
	ExhaustedBallots  int                      `json:"exhausted_ballots"`
	TotalVotes        int                      `json:"total_votes"`
	MajorityThreshold string                   `json:"majority_threshold"`
}

// roundsResponse is the body of GET /polls/{id}/results/rounds.
type roundsResponse struct {
	Rounds []roundWire `json:"rounds"`
}
