package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/verification-service/internal/domain"
)

// ErrStateConflict reports that a conditional state update matched the
// ticket but not the expected current state: another writer resolved
// the ticket in between.
var ErrStateConflict = errors.New("ticket state changed concurrently")

// TicketRepository encapsulates verification ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByAnnouncementRef(ctx context.Context, ref string) (*domain.Ticket, error)
	SetAnnouncementRef(ctx context.Context, id, ref string) error
	// UpdateState persists ticket's state and decision columns only if
	// the stored row still carries the from state. Returns
	// ErrStateConflict when the row exists in a different state, or
	// pgx.ErrNoRows when it is gone.
	UpdateState(ctx context.Context, ticket *domain.Ticket, from domain.TicketState) error
	ExistsID(ctx context.Context, id string) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	answers, err := json.Marshal(ticket.Answers)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, requester_id, announcement_ref, answers, state)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.RequesterID,
		ticket.AnnouncementRef,
		answers,
		ticket.State,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, requester_id, announcement_ref, answers, state, decline_reason, decided_by, created_at, updated_at, decided_at
        FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByAnnouncementRef(ctx context.Context, ref string) (*domain.Ticket, error) {
	const query = `
        SELECT id, requester_id, announcement_ref, answers, state, decline_reason, decided_by, created_at, updated_at, decided_at
        FROM tickets WHERE announcement_ref=$1`
	return r.fetchSingle(ctx, query, ref)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		answers []byte
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.RequesterID,
		&ticket.AnnouncementRef,
		&answers,
		&ticket.State,
		&ticket.DeclineReason,
		&ticket.DecidedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.DecidedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &ticket.Answers); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) SetAnnouncementRef(ctx context.Context, id, ref string) error {
	const query = `UPDATE tickets SET announcement_ref=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, ref, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdateState(ctx context.Context, ticket *domain.Ticket, from domain.TicketState) error {
	// Compare-and-set: the caller's snapshot may be stale, so the
	// stored state is the one that decides.
	const query = `
        UPDATE tickets SET state=$1, decline_reason=$2, decided_by=$3, decided_at=$4, updated_at=NOW()
        WHERE id=$5 AND state=$6`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.State,
		ticket.DeclineReason,
		ticket.DecidedBy,
		ticket.DecidedAt,
		ticket.ID,
		from,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		exists, err := r.ExistsID(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrStateConflict
	}
	return nil
}

func (r *ticketRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
