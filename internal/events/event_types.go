package events

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketResponseAdded EventType = "ticket_response_added"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Actor identifies who caused an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Topic    string                `json:"topic"`
	Priority domain.TicketPriority `json:"priority"`
	OwnerID  string                `json:"owner_id"`
}

// TicketUpdatedPayload lists the fields that changed.
type TicketUpdatedPayload struct {
	Fields      []string              `json:"fields"`
	OldStatus   domain.TicketStatus   `json:"old_status"`
	NewStatus   domain.TicketStatus   `json:"new_status"`
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketResponseAddedPayload payload.
type TicketResponseAddedPayload struct {
	OwnerID         string `json:"owner_id"`
	ResponsePreview string `json:"response_preview"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	OwnerID string `json:"owner_id"`
}
