// Package store defines the ticket store contract shared by the local
// persisted collection and the remote API client.
package store

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

var (
	// ErrNotFound is returned by Update and AppendResponse when no ticket has the id.
	ErrNotFound = errors.New("ticket not found")
	// ErrValidation wraps rejected input; the operation is never issued.
	ErrValidation = errors.New("invalid ticket input")
	// ErrCorruptState is returned when persisted data cannot be decoded and the
	// store is configured to fail rather than discard it.
	ErrCorruptState = errors.New("persisted tickets are corrupt")
)

// ListResult is a snapshot of the collection. Total may exceed len(Tickets)
// when the backend pages results.
type ListResult struct {
	Tickets []domain.Ticket `json:"tickets"`
	Total   int             `json:"total"`
}

// Store owns the canonical ticket collection.
type Store interface {
	// List returns every ticket; ordering is backend defined.
	List(ctx context.Context) (ListResult, error)
	// Create validates the input, assigns id and creation time, and returns
	// the stored ticket. Identical inputs create distinct tickets.
	Create(ctx context.Context, input domain.TicketInput) (*domain.Ticket, error)
	// Update merges patch onto the ticket with id.
	Update(ctx context.Context, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error)
	// Delete removes the ticket and reports whether it existed.
	Delete(ctx context.Context, id domain.TicketID) (bool, error)
	// AppendResponse attaches staff text and clears awaits_response. Empty
	// text is rejected before any storage or network access.
	AppendResponse(ctx context.Context, id domain.TicketID, text string) (*domain.Ticket, error)
}

// ResponsePatch builds the update AppendResponse applies.
func ResponsePatch(text string) domain.TicketPatch {
	awaits := false
	return domain.TicketPatch{Response: &text, AwaitsResponse: &awaits}
}
