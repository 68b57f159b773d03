package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID domain.TicketID) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if !validID(history.TicketID) {
		return errUnknownTicket
	}
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by, changed_by_role, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id::text, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID.String(),
		history.ChangedByID,
		string(history.ChangedByRole),
		string(history.ChangeType),
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID domain.TicketID) ([]domain.TicketHistory, error) {
	if !validID(ticketID) {
		return []domain.TicketHistory{}, nil
	}
	const query = `
        SELECT id::text, ticket_id::text, changed_by, changed_by_role, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketHistory{}
	for rows.Next() {
		var (
			history domain.TicketHistory
			ticket  string
			role    string
			change  string
		)
		if err := rows.Scan(
			&history.ID,
			&ticket,
			&history.ChangedByID,
			&role,
			&change,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		history.TicketID = domain.TicketID(ticket)
		history.ChangedByRole = domain.Role(role)
		history.ChangeType = domain.TicketChangeType(change)
		result = append(result, history)
	}
	return result, rows.Err()
}
