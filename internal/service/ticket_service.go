package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	previewLength    = 120
)

// Actor is the authenticated caller of a service method.
type Actor struct {
	UserID string
	Role   domain.Role
}

// Page selects a window of a listing.
type Page struct {
	Skip  int
	Limit int
}

// Normalize applies the default and maximum limit.
func (p Page) Normalize() (Page, error) {
	if p.Skip < 0 {
		return Page{}, apperrors.NewFieldError("skip", "must be >= 0")
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		return Page{}, apperrors.NewFieldError("limit", "must be between 1 and 100")
	}
	return p, nil
}

// TicketList is one page of tickets plus the unpaged total.
type TicketList struct {
	Tickets []domain.Ticket
	Total   int
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, dispatcher events.Dispatcher) *TicketService {
	return &TicketService{tickets: tickets, dispatcher: dispatcher}
}

// CreateTicket creates a ticket owned by the actor.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input domain.TicketInput) (*domain.Ticket, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, validationError(err)
	}

	ticket := &domain.Ticket{
		UserID:         actor.UserID,
		Topic:          input.Topic,
		Description:    input.Description,
		Priority:       input.Priority,
		Status:         domain.TicketStatusNew,
		AwaitsResponse: true,
		Tags:           input.Tags,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID.String(),
		Actor:    actorOf(actor),
		Payload: events.TicketCreatedPayload{
			Topic:    ticket.Topic,
			Priority: ticket.Priority,
			OwnerID:  ticket.UserID,
		},
	})
	return ticket, nil
}

// ListOwnTickets lists the actor's tickets, newest first.
func (s *TicketService) ListOwnTickets(ctx context.Context, actor Actor, page Page) (*TicketList, error) {
	return s.list(ctx, repository.TicketFilter{UserID: &actor.UserID}, page)
}

// ListAllTickets lists every ticket with owner attribution. Staff only.
func (s *TicketService) ListAllTickets(ctx context.Context, actor Actor, page Page) (*TicketList, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	return s.list(ctx, repository.TicketFilter{}, page)
}

// GetTicket returns a ticket visible to the actor. Tickets owned by someone
// else are reported as not found to non-staff callers.
func (s *TicketService) GetTicket(ctx context.Context, actor Actor, id domain.TicketID) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !canAccess(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

// UpdateTicket merges patch onto the ticket. Only staff may set the response
// or the awaits_response flag.
func (s *TicketService) UpdateTicket(ctx context.Context, actor Actor, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() && (patch.Response != nil || patch.AwaitsResponse != nil) {
		return nil, apperrors.NewForbidden("only staff may respond to tickets")
	}
	patch, err := patch.Normalize()
	if err != nil {
		return nil, validationError(err)
	}

	ticket, err := s.GetTicket(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return ticket, nil
	}

	oldStatus, oldPriority := ticket.Status, ticket.Priority
	patch.Apply(ticket)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, notFound(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID.String(),
		Actor:    actorOf(actor),
		Payload: events.TicketUpdatedPayload{
			Fields:      patchFields(patch),
			OldStatus:   oldStatus,
			NewStatus:   ticket.Status,
			OldPriority: oldPriority,
			NewPriority: ticket.Priority,
		},
	})
	if patch.Response != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketResponseAdded,
			TicketID: ticket.ID.String(),
			Actor:    actorOf(actor),
			Payload: events.TicketResponseAddedPayload{
				OwnerID:         ticket.UserID,
				ResponsePreview: stringPreview(*patch.Response, previewLength),
			},
		})
	}
	return ticket, nil
}

// DeleteTicket removes a ticket owned by the actor, or any ticket for staff.
func (s *TicketService) DeleteTicket(ctx context.Context, actor Actor, id domain.TicketID) error {
	ticket, err := s.GetTicket(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: id.String(),
		Actor:    actorOf(actor),
		Payload:  events.TicketDeletedPayload{OwnerID: ticket.UserID},
	})
	return nil
}

func (s *TicketService) list(ctx context.Context, filter repository.TicketFilter, page Page) (*TicketList, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	filter.Limit = page.Limit
	filter.Offset = page.Skip
	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketList{Tickets: tickets, Total: total}, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func canAccess(actor Actor, ticket *domain.Ticket) bool {
	return actor.Role.IsStaff() || ticket.UserID == actor.UserID
}

func actorOf(actor Actor) events.Actor {
	return events.Actor{UserID: actor.UserID, Role: actor.Role}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", nil)
	}
	return apperrors.MapError(err)
}

func validationError(err error) error {
	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		return apperrors.NewFieldError(fieldErr.Field, fieldErr.Message)
	}
	return apperrors.NewValidationError(err.Error(), nil)
}

func patchFields(p domain.TicketPatch) []string {
	var fields []string
	if p.Topic != nil {
		fields = append(fields, "topic")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.AwaitsResponse != nil {
		fields = append(fields, "awaits_response")
	}
	if p.Tags != nil {
		fields = append(fields, "tags")
	}
	if p.Response != nil {
		fields = append(fields, "response")
	}
	return fields
}

func stringPreview(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}
