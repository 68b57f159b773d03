package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// TicketFilter narrows a listing. A nil UserID lists every ticket.
type TicketFilter struct {
	UserID *string
	Limit  int
	Offset int
}

// TicketRepository encapsulates ticket persistence. Missing rows are reported
// as pgx.ErrNoRows.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id domain.TicketID) error
	GetByID(ctx context.Context, id domain.TicketID) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id::text, t.user_id::text, t.topic, t.description, t.priority, t.status,
               t.awaits_response, t.tags, t.response, t.created_at, t.updated_at, u.email, u.role`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, topic, description, priority, status, awaits_response, tags)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id::text, created_at`
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	return r.pool.QueryRow(ctx, query,
		ticket.UserID,
		ticket.Topic,
		ticket.Description,
		string(ticket.Priority),
		string(ticket.Status),
		ticket.AwaitsResponse,
		tags,
	).Scan(&ticket.ID, &ticket.CreatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if !validID(ticket.ID) {
		return pgx.ErrNoRows
	}
	const query = `
        UPDATE tickets SET topic=$1, description=$2, priority=$3, status=$4,
            awaits_response=$5, tags=$6, response=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	return r.pool.QueryRow(ctx, query,
		ticket.Topic,
		ticket.Description,
		string(ticket.Priority),
		string(ticket.Status),
		ticket.AwaitsResponse,
		tags,
		ticket.Response,
		string(ticket.ID),
	).Scan(&ticket.UpdatedAt)
}

func (r *ticketRepository) Delete(ctx context.Context, id domain.TicketID) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, string(id))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets t JOIN users u ON u.id = t.user_id
        WHERE t.id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, string(id)))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets t`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s
        FROM tickets t JOIN users u ON u.id = t.user_id%s
        ORDER BY t.created_at DESC, t.id DESC
        LIMIT $%d OFFSET $%d`, ticketColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tickets := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, total, rows.Err()
}

func filterClause(filter TicketFilter) (string, []any) {
	clauses := []string{}
	args := []any{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("t.user_id=$%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Topic,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AwaitsResponse,
		&ticket.Tags,
		&ticket.Response,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.UserEmail,
		&ticket.UserRole,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func validID(id domain.TicketID) bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}
