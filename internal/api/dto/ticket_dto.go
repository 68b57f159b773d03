package dto

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Topic       string                `json:"topic"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags"`
}

// Input converts the request to domain input.
func (r CreateTicketRequest) Input() domain.TicketInput {
	return domain.TicketInput{Topic: r.Topic, Description: r.Description, Priority: r.Priority, Tags: r.Tags}
}

// UpdateTicketRequest is a partial update; absent fields are unchanged.
type UpdateTicketRequest struct {
	Topic          *string                `json:"topic"`
	Description    *string                `json:"description"`
	Priority       *domain.TicketPriority `json:"priority"`
	Status         *domain.TicketStatus   `json:"status"`
	AwaitsResponse *bool                  `json:"awaits_response"`
	Tags           *[]string              `json:"tags"`
	Response       *string                `json:"response"`
}

// Patch converts the request to a domain patch.
func (r UpdateTicketRequest) Patch() domain.TicketPatch {
	return domain.TicketPatch{
		Topic:          r.Topic,
		Description:    r.Description,
		Priority:       r.Priority,
		Status:         r.Status,
		AwaitsResponse: r.AwaitsResponse,
		Tags:           r.Tags,
		Response:       r.Response,
	}
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID             domain.TicketID       `json:"id"`
	Topic          string                `json:"topic"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	Status         domain.TicketStatus   `json:"status"`
	AwaitsResponse bool                  `json:"awaits_response"`
	Tags           []string              `json:"tags"`
	Response       *string               `json:"response"`
	UserID         string                `json:"user_id"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      *time.Time            `json:"updated_at"`
	UserEmail      string                `json:"user_email,omitempty"`
	UserRole       domain.Role           `json:"user_role,omitempty"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Total   int              `json:"total"`
}

// NewTicketResponse renders t. Owner attribution is included only when withOwner is set.
func NewTicketResponse(t *domain.Ticket, withOwner bool) TicketResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	resp := TicketResponse{
		ID:             t.ID,
		Topic:          t.Topic,
		Description:    t.Description,
		Priority:       t.Priority,
		Status:         t.Status,
		AwaitsResponse: t.AwaitsResponse,
		Tags:           tags,
		Response:       t.Response,
		UserID:         t.UserID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if withOwner {
		resp.UserEmail = t.UserEmail
		resp.UserRole = t.UserRole
	}
	return resp
}

// NewTicketListResponse renders a page.
func NewTicketListResponse(tickets []domain.Ticket, total int, withOwner bool) TicketListResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i], withOwner))
	}
	return TicketListResponse{Tickets: items, Total: total}
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedBy     string                  `json:"changed_by"`
	ChangedByRole domain.Role             `json:"changed_by_role"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewTicketHistoryResponse renders the trail; an empty trail is [] not null.
func NewTicketHistoryResponse(entries []domain.TicketHistory) []TicketHistoryResponse {
	out := make([]TicketHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TicketHistoryResponse{
			ID:            e.ID,
			ChangeType:    e.ChangeType,
			ChangedBy:     e.ChangedByID,
			ChangedByRole: e.ChangedByRole,
			OldValue:      e.OldValue,
			NewValue:      e.NewValue,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
