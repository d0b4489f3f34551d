package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zemekeneng/rankchoice/internal/apperr"
	"github.com/zemekeneng/rankchoice/internal/store"
)

// fakeStore is an in-memory store.Store for handler tests. It is not a
// conformance suite, just enough plumbing to drive the HTTP handlers
// end to end without a database.
type fakeStore struct {
	mu         sync.Mutex
	polls      map[uuid.UUID]store.Poll
	candidates map[uuid.UUID][]store.Candidate
	voters     map[uuid.UUID]store.Voter
	votersByID map[uuid.UUID]uuid.UUID // voter id -> poll id, for lookups by id
	ballots    map[uuid.UUID]store.Ballot
	byVoter    map[uuid.UUID]uuid.UUID // voter id -> ballot id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		polls:      map[uuid.UUID]store.Poll{},
		candidates: map[uuid.UUID][]store.Candidate{},
		voters:     map[uuid.UUID]store.Voter{},
		votersByID: map[uuid.UUID]uuid.UUID{},
		ballots:    map[uuid.UUID]store.Ballot{},
		byVoter:    map[uuid.UUID]uuid.UUID{},
	}
}

func (f *fakeStore) CreatePoll(ctx context.Context, p store.Poll) (store.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New()
	f.polls[p.ID] = p
	return p, nil
}

func (f *fakeStore) CreateCandidates(ctx context.Context, pollID uuid.UUID, candidates []store.Candidate) ([]store.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Candidate, len(candidates))
	for i, c := range candidates {
		c.ID = len(f.candidates[pollID]) + i + 1
		c.PollID = pollID
		c.DisplayOrder = i
		out[i] = c
	}
	f.candidates[pollID] = append(f.candidates[pollID], out...)
	return out, nil
}

func (f *fakeStore) CreateVoter(ctx context.Context, v store.Voter) (store.Voter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = uuid.New()
	v.InvitedAt = time.Now()
	f.voters[v.ID] = v
	return v, nil
}

func (f *fakeStore) FindPollByID(ctx context.Context, id uuid.UUID) (store.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.polls[id]
	if !ok {
		return store.Poll{}, apperr.MessageError(apperr.ErrNotFound, "poll not found")
	}
	return p, nil
}

func (f *fakeStore) FindCandidatesByPoll(ctx context.Context, pollID uuid.UUID) ([]store.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Candidate(nil), f.candidates[pollID]...), nil
}

func (f *fakeStore) FindVoterByToken(ctx context.Context, token string) (store.Voter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.voters {
		if v.BallotToken == token {
			return v, nil
		}
	}
	return store.Voter{}, apperr.MessageError(apperr.ErrNotFound, "ballot token not recognized")
}

func (f *fakeStore) SubmitInvitedBallot(ctx context.Context, in store.SubmitInvitedBallot) (store.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.voters[in.VoterID]
	if !ok {
		return store.Ballot{}, apperr.MessageError(apperr.ErrNotFound, "voter not found")
	}
	if v.VotedAt != nil {
		return store.Ballot{}, apperr.MessageError(apperr.ErrAlreadyVoted, "this voter has already submitted a ballot")
	}

	now := time.Now()
	v.VotedAt = &now
	f.voters[in.VoterID] = v

	voterID := in.VoterID
	b := store.Ballot{
		ID:          uuid.New(),
		PollID:      in.PollID,
		VoterID:     &voterID,
		Rankings:    in.Rankings,
		SubmittedAt: now,
		IPAddress:   in.IPAddress,
	}
	f.ballots[b.ID] = b
	f.byVoter[in.VoterID] = b.ID
	return b, nil
}

func (f *fakeStore) SubmitAnonymousBallot(ctx context.Context, in store.SubmitAnonymousBallot) (store.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := store.Ballot{
		ID:          uuid.New(),
		PollID:      in.PollID,
		Rankings:    in.Rankings,
		SubmittedAt: time.Now(),
		IPAddress:   in.IPAddress,
	}
	f.ballots[b.ID] = b
	return b, nil
}

func (f *fakeStore) FindBallotByVoter(ctx context.Context, voterID uuid.UUID) (store.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byVoter[voterID]
	if !ok {
		return store.Ballot{}, apperr.MessageError(apperr.ErrNotVoted, "no ballot recorded for this voter")
	}
	return f.ballots[id], nil
}

func (f *fakeStore) ListBallotsForPoll(ctx context.Context, pollID uuid.UUID) ([]store.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Ballot
	for _, b := range f.ballots {
		if b.PollID == pollID {
			out = append(out, b)
		}
	}
	return out, nil
}
