package repository

import "github.com/jackc/pgx/v5/pgconn"

// The in-memory store reports constraint failures the way Postgres does so
// callers handle both backends alike.
var (
	errDuplicateEmail = &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: "users_email_key",
	}
	errUnknownOwner = &pgconn.PgError{
		Code:           "23503",
		Message:        "insert or update on table \"tickets\" violates foreign key constraint",
		ConstraintName: "tickets_user_id_fkey",
	}
	errUnknownTicket = &pgconn.PgError{
		Code:           "23503",
		Message:        "insert or update on table \"ticket_history\" violates foreign key constraint",
		ConstraintName: "ticket_history_ticket_id_fkey",
	}
)
