// Package postgres is the production Store, built on pgx/v5 against
// the schema embedded from schema.sql.
package postgres

import (
	_ "embed" // for schema.sql embedding
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zemekeneng/rankchoice/internal/apperr"
	"github.com/zemekeneng/rankchoice/internal/log"
	"github.com/zemekeneng/rankchoice/internal/store"
)

//go:embed schema.sql
var schema string

// Backend is a pgx/v5-backed store.Store.
//
// Has to be initialized with New().
type Backend struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against url. The pool connects lazily;
// call Wait to block until a connection actually succeeds.
func New(ctx context.Context, url string) (*Backend, error) {
	conf, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &Backend{pool: pool}, nil
}

// Wait blocks until a connection to postgres can be established or ctx
// is done.
func (b *Backend) Wait(ctx context.Context) {
	for ctx.Err() == nil {
		if err := b.pool.Ping(ctx); err == nil {
			return
		}
		log.Logger.Info().Msg("waiting for postgres")
		time.Sleep(500 * time.Millisecond)
	}
}

// Migrate creates the schema if it does not already exist.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the pool. It blocks until every connection is closed.
func (b *Backend) Close() {
	b.pool.Close()
}

// CreatePoll implements store.Store.
func (b *Backend) CreatePoll(ctx context.Context, p store.Poll) (store.Poll, error) {
	sql := `
	INSERT INTO polls (title, is_public, opens_at, closes_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id;
	`
	if err := b.pool.QueryRow(ctx, sql, p.Title, p.IsPublic, p.OpensAt, p.ClosesAt).Scan(&p.ID); err != nil {
		return store.Poll{}, fmt.Errorf("inserting poll: %w", err)
	}
	return p, nil
}

// CreateCandidates implements store.Store.
func (b *Backend) CreateCandidates(ctx context.Context, pollID uuid.UUID, candidates []store.Candidate) ([]store.Candidate, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	out := make([]store.Candidate, len(candidates))
	for i, c := range candidates {
		sql := `
		INSERT INTO candidates (poll_id, name, description, display_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
		`
		c.PollID = pollID
		c.DisplayOrder = i
		if err := tx.QueryRow(ctx, sql, pollID, c.Name, c.Description, c.DisplayOrder).Scan(&c.ID); err != nil {
			return nil, fmt.Errorf("inserting candidate %q: %w", c.Name, err)
		}
		out[i] = c
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return out, nil
}

// CreateVoter implements store.Store.
func (b *Backend) CreateVoter(ctx context.Context, v store.Voter) (store.Voter, error) {
	sql := `
	INSERT INTO voters (poll_id, email, ballot_token, ip_address, user_agent)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, invited_at;
	`
	if err := b.pool.QueryRow(ctx, sql, v.PollID, v.Email, v.BallotToken, ipOrNil(v.IPAddress), v.UserAgent).
		Scan(&v.ID, &v.InvitedAt); err != nil {
		return store.Voter{}, fmt.Errorf("inserting voter: %w", err)
	}
	return v, nil
}

// FindPollByID implements store.Store.
func (b *Backend) FindPollByID(ctx context.Context, id uuid.UUID) (store.Poll, error) {
	sql := `SELECT id, title, is_public, opens_at, closes_at FROM polls WHERE id = $1;`
	var p store.Poll
	err := b.pool.QueryRow(ctx, sql, id).Scan(&p.ID, &p.Title, &p.IsPublic, &p.OpensAt, &p.ClosesAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Poll{}, apperr.MessageError(apperr.ErrNotFound, "poll not found")
	}
	if err != nil {
		return store.Poll{}, fmt.Errorf("fetching poll: %w", err)
	}
	return p, nil
}

// FindCandidatesByPoll implements store.Store.
func (b *Backend) FindCandidatesByPoll(ctx context.Context, pollID uuid.UUID) ([]store.Candidate, error) {
	sql := `
	SELECT id, poll_id, name, description, display_order
	FROM candidates WHERE poll_id = $1 ORDER BY display_order;
	`
	rows, err := b.pool.Query(ctx, sql, pollID)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		var c store.Candidate
		if err := rows.Scan(&c.ID, &c.PollID, &c.Name, &c.Description, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	return out, nil
}

// FindVoterByToken implements store.Store.
func (b *Backend) FindVoterByToken(ctx context.Context, token string) (store.Voter, error) {
	sql := `
	SELECT id, poll_id, email, ballot_token, ip_address, user_agent, invited_at, voted_at
	FROM voters WHERE ballot_token = $1;
	`
	var v store.Voter
	var ip *netip.Addr
	err := b.pool.QueryRow(ctx, sql, token).
		Scan(&v.ID, &v.PollID, &v.Email, &v.BallotToken, &ip, &v.UserAgent, &v.InvitedAt, &v.VotedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Voter{}, apperr.MessageError(apperr.ErrNotFound, "ballot token not recognized")
	}
	if err != nil {
		return store.Voter{}, fmt.Errorf("fetching voter: %w", err)
	}
	v.IPAddress = ip
	return v, nil
}

// SubmitInvitedBallot implements store.Store using a single
// conditional-UPDATE-then-insert transaction: the voted_at guard is
// flipped from NULL only once, so a second concurrent submission for
// the same voter sees zero rows affected and aborts.
func (b *Backend) SubmitInvitedBallot(ctx context.Context, in store.SubmitInvitedBallot) (store.Ballot, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return store.Ballot{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var pollID uuid.UUID
	var opensAt, closesAt *time.Time
	sql := `SELECT poll_id, opens_at, closes_at FROM voters v JOIN polls p ON p.id = v.poll_id WHERE v.id = $1;`
	if err := tx.QueryRow(ctx, sql, in.VoterID).Scan(&pollID, &opensAt, &closesAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Ballot{}, apperr.MessageError(apperr.ErrNotFound, "voter not found")
		}
		return store.Ballot{}, fmt.Errorf("fetching voter poll: %w", err)
	}
	if err := checkOpenWindow(opensAt, closesAt); err != nil {
		return store.Ballot{}, err
	}

	tag, err := tx.Exec(ctx, `UPDATE voters SET voted_at = now() WHERE id = $1 AND voted_at IS NULL;`, in.VoterID)
	if err != nil {
		return store.Ballot{}, fmt.Errorf("marking voter as voted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.Ballot{}, apperr.MessageError(apperr.ErrAlreadyVoted, "a ballot has already been recorded for this voter")
	}

	ballot, err := insertBallot(ctx, tx, pollID, &in.VoterID, in.Rankings, in.IPAddress)
	if err != nil {
		return store.Ballot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Ballot{}, fmt.Errorf("committing transaction: %w", err)
	}
	return ballot, nil
}

// SubmitAnonymousBallot implements store.Store.
func (b *Backend) SubmitAnonymousBallot(ctx context.Context, in store.SubmitAnonymousBallot) (store.Ballot, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return store.Ballot{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var isPublic bool
	var opensAt, closesAt *time.Time
	sql := `SELECT is_public, opens_at, closes_at FROM polls WHERE id = $1;`
	if err := tx.QueryRow(ctx, sql, in.PollID).Scan(&isPublic, &opensAt, &closesAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Ballot{}, apperr.MessageError(apperr.ErrNotFound, "poll not found")
		}
		return store.Ballot{}, fmt.Errorf("fetching poll: %w", err)
	}
	if !isPublic {
		return store.Ballot{}, apperr.MessageError(apperr.ErrPollNotPublic, "this poll does not accept anonymous ballots")
	}
	if err := checkOpenWindow(opensAt, closesAt); err != nil {
		return store.Ballot{}, err
	}

	ballot, err := insertBallot(ctx, tx, in.PollID, nil, in.Rankings, in.IPAddress)
	if err != nil {
		return store.Ballot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Ballot{}, fmt.Errorf("committing transaction: %w", err)
	}
	return ballot, nil
}

// FindBallotByVoter implements store.Store.
func (b *Backend) FindBallotByVoter(ctx context.Context, voterID uuid.UUID) (store.Ballot, error) {
	sql := `SELECT id, poll_id, voter_id, submitted_at, ip_address FROM ballots WHERE voter_id = $1;`
	var ba store.Ballot
	var ip *netip.Addr
	err := b.pool.QueryRow(ctx, sql, voterID).Scan(&ba.ID, &ba.PollID, &ba.VoterID, &ba.SubmittedAt, &ip)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Ballot{}, apperr.MessageError(apperr.ErrNotVoted, "no ballot recorded for this voter")
	}
	if err != nil {
		return store.Ballot{}, fmt.Errorf("fetching ballot: %w", err)
	}
	ba.IPAddress = ip

	rankings, err := fetchRankings(ctx, b.pool, ba.ID)
	if err != nil {
		return store.Ballot{}, err
	}
	ba.Rankings = rankings
	return ba, nil
}

// ListBallotsForPoll implements store.Store.
func (b *Backend) ListBallotsForPoll(ctx context.Context, pollID uuid.UUID) ([]store.Ballot, error) {
	sql := `SELECT id, poll_id, voter_id, submitted_at, ip_address FROM ballots WHERE poll_id = $1;`
	rows, err := b.pool.Query(ctx, sql, pollID)
	if err != nil {
		return nil, fmt.Errorf("fetching ballots: %w", err)
	}

	var ballots []store.Ballot
	for rows.Next() {
		var ba store.Ballot
		var ip *netip.Addr
		if err := rows.Scan(&ba.ID, &ba.PollID, &ba.VoterID, &ba.SubmittedAt, &ip); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning ballot: %w", err)
		}
		ba.IPAddress = ip
		ballots = append(ballots, ba)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ballots: %w", err)
	}
	rows.Close()

	for i, ba := range ballots {
		rankings, err := fetchRankings(ctx, b.pool, ba.ID)
		if err != nil {
			return nil, err
		}
		ballots[i].Rankings = rankings
	}
	return ballots, nil
}

func insertBallot(ctx context.Context, tx pgx.Tx, pollID uuid.UUID, voterID *uuid.UUID, rankings []store.Ranking, ip *netip.Addr) (store.Ballot, error) {
	var ba store.Ballot
	sql := `
	INSERT INTO ballots (poll_id, voter_id, ip_address)
	VALUES ($1, $2, $3)
	RETURNING id, submitted_at;
	`
	if err := tx.QueryRow(ctx, sql, pollID, voterID, ipOrNil(ip)).Scan(&ba.ID, &ba.SubmittedAt); err != nil {
		return store.Ballot{}, fmt.Errorf("inserting ballot: %w", err)
	}
	ba.PollID = pollID
	ba.VoterID = voterID
	ba.IPAddress = ip

	for _, r := range rankings {
		if _, err := tx.Exec(ctx, `INSERT INTO rankings (ballot_id, candidate_id, rank) VALUES ($1, $2, $3);`, ba.ID, r.CandidateID, r.Rank); err != nil {
			return store.Ballot{}, fmt.Errorf("inserting ranking for candidate %d: %w", r.CandidateID, err)
		}
	}
	ba.Rankings = rankings
	return ba, nil
}

func fetchRankings(ctx context.Context, pool *pgxpool.Pool, ballotID uuid.UUID) ([]store.Ranking, error) {
	rows, err := pool.Query(ctx, `SELECT candidate_id, rank FROM rankings WHERE ballot_id = $1 ORDER BY rank;`, ballotID)
	if err != nil {
		return nil, fmt.Errorf("fetching rankings: %w", err)
	}
	defer rows.Close()

	var out []store.Ranking
	for rows.Next() {
		var r store.Ranking
		if err := rows.Scan(&r.CandidateID, &r.Rank); err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rankings: %w", err)
	}
	return out, nil
}

// checkOpenWindow rejects a submission outside the poll's
// [opens_at, closes_at] window (either bound may be absent), per
// spec.md §4.2's PollClosed rejection.
func checkOpenWindow(opensAt, closesAt *time.Time) error {
	now := time.Now()
	if opensAt != nil && now.Before(*opensAt) {
		return apperr.MessageError(apperr.ErrPollClosed, "this poll is not open yet")
	}
	if closesAt != nil && now.After(*closesAt) {
		return apperr.MessageError(apperr.ErrPollClosed, "this poll is no longer accepting ballots")
	}
	return nil
}

func ipOrNil(a *netip.Addr) any {
	if a == nil {
		return nil
	}
	return a.String()
}
