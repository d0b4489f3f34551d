// Package store defines the persistence boundary for polls,
// candidates, voters and ballots. internal/store/postgres provides the
// production implementation; tests and internal/httpapi depend only on
// the Store interface so a fake can stand in without pulling in a
// database.
package store

import (
	"context"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// Poll is the subset of poll state the ballot/voter layer and the
// results endpoints need. Ownership, scheduling and publication of a
// poll are an external collaborator's concern (spec.md §1); this
// service only reads the fields below.
type Poll struct {
	ID       uuid.UUID
	Title    string
	IsPublic bool
	OpensAt  *time.Time
	ClosesAt *time.Time
}

// Candidate is one option voters may rank.
type Candidate struct {
	ID           int
	PollID       uuid.UUID
	Name         string
	Description  string
	DisplayOrder int
}

// Voter is an invited participant in a poll, identified to the voting
// UI by BallotToken rather than by Email.
type Voter struct {
	ID          uuid.UUID
	PollID      uuid.UUID
	Email       string
	BallotToken string
	IPAddress   *netip.Addr
	UserAgent   string
	InvitedAt   time.Time
	VotedAt     *time.Time
}

// Ranking is one rank assignment recorded on a ballot.
type Ranking struct {
	CandidateID int
	Rank        int
}

// Ballot is a recorded vote. VoterID is nil for anonymous ballots cast
// against a public poll; it is never a sentinel UUID (spec.md §9).
type Ballot struct {
	ID          uuid.UUID
	PollID      uuid.UUID
	VoterID     *uuid.UUID
	Rankings    []Ranking
	SubmittedAt time.Time
	IPAddress   *netip.Addr
}

// SubmitInvitedBallot describes an invited voter's submission.
type SubmitInvitedBallot struct {
	VoterID   uuid.UUID
	PollID    uuid.UUID
	Rankings  []Ranking
	IPAddress *netip.Addr
}

// SubmitAnonymousBallot describes an anonymous submission against a
// public poll.
type SubmitAnonymousBallot struct {
	PollID    uuid.UUID
	Rankings  []Ranking
	IPAddress *netip.Addr
}

// Store is the persistence boundary. Every method that can fail with a
// taxonomy error (see internal/apperr) documents which one.
type Store interface {
	// CreatePoll persists a new poll.
	CreatePoll(ctx context.Context, p Poll) (Poll, error)

	// CreateCandidates persists the candidates for a poll in display
	// order, assigning their IDs.
	CreateCandidates(ctx context.Context, pollID uuid.UUID, candidates []Candidate) ([]Candidate, error)

	// CreateVoter invites a voter to a poll under the BallotToken the
	// caller supplies; it does not generate the token.
	CreateVoter(ctx context.Context, v Voter) (Voter, error)

	// FindPollByID returns apperr.ErrNotFound if no such poll exists.
	FindPollByID(ctx context.Context, id uuid.UUID) (Poll, error)

	// FindCandidatesByPoll returns candidates in display order.
	FindCandidatesByPoll(ctx context.Context, pollID uuid.UUID) ([]Candidate, error)

	// FindVoterByToken returns apperr.ErrNotFound if the token is
	// unknown.
	FindVoterByToken(ctx context.Context, token string) (Voter, error)

	// SubmitInvitedBallot atomically checks the poll is open, the
	// voter has not yet voted, and records the ballot, returning
	// apperr.ErrAlreadyVoted or apperr.ErrPollClosed as appropriate.
	SubmitInvitedBallot(ctx context.Context, in SubmitInvitedBallot) (Ballot, error)

	// SubmitAnonymousBallot records a ballot with no voter identity,
	// returning apperr.ErrPollNotPublic if the poll does not accept
	// anonymous ballots.
	SubmitAnonymousBallot(ctx context.Context, in SubmitAnonymousBallot) (Ballot, error)

	// FindBallotByVoter returns apperr.ErrNotVoted if the voter has not
	// submitted a ballot.
	FindBallotByVoter(ctx context.Context, voterID uuid.UUID) (Ballot, error)

	// ListBallotsForPoll returns every ballot cast in the poll, the
	// input internal/rcv.Tabulate needs.
	ListBallotsForPoll(ctx context.Context, pollID uuid.UUID) ([]Ballot, error)
}
