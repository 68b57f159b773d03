package service

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// HistoryService records an audit trail from ticket events and serves it to
// callers who may see the ticket.
type HistoryService struct {
	history repository.TicketHistoryRepository
	tickets *TicketService
	logger  *zap.Logger
}

// NewHistoryService creates the service.
func NewHistoryService(history repository.TicketHistoryRepository, tickets *TicketService, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{history: history, tickets: tickets, logger: logger}
}

// EventTypes lists the events that produce history entries. Deletion removes
// the trail together with the ticket.
func (h *HistoryService) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTicketCreated,
		events.EventTicketUpdated,
		events.EventTicketResponseAdded,
	}
}

// Subscribe registers Handle on dispatcher. It runs synchronously so the
// trail is complete once the triggering request returns.
func (h *HistoryService) Subscribe(dispatcher events.Dispatcher) {
	for _, typ := range h.EventTypes() {
		dispatcher.Subscribe(typ, h.Handle)
	}
}

// Handle stores the entries derived from event.
func (h *HistoryService) Handle(ctx context.Context, event events.Event) error {
	for _, entry := range historyEntries(event) {
		entry.TicketID = domain.TicketID(event.TicketID)
		entry.ChangedByID = event.Actor.UserID
		entry.ChangedByRole = event.Actor.Role
		if err := h.history.Create(ctx, &entry); err != nil {
			h.logger.Error("record ticket history",
				zap.String("ticket_id", event.TicketID),
				zap.String("change_type", string(entry.ChangeType)),
				zap.Error(err))
			return fmt.Errorf("record %s: %w", entry.ChangeType, err)
		}
	}
	return nil
}

// ListTicketHistory returns the trail oldest first. Access follows GetTicket.
func (h *HistoryService) ListTicketHistory(ctx context.Context, actor Actor, id domain.TicketID) ([]domain.TicketHistory, error) {
	if _, err := h.tickets.GetTicket(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := h.history.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func historyEntries(event events.Event) []domain.TicketHistory {
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		return []domain.TicketHistory{{
			ChangeType: domain.ChangeTypeCreated,
			NewValue:   map[string]any{"topic": p.Topic, "priority": string(p.Priority)},
		}}
	case events.TicketUpdatedPayload:
		var out []domain.TicketHistory
		if p.OldStatus != p.NewStatus {
			out = append(out, domain.TicketHistory{
				ChangeType: domain.ChangeTypeStatus,
				OldValue:   map[string]any{"status": string(p.OldStatus)},
				NewValue:   map[string]any{"status": string(p.NewStatus)},
			})
		}
		if p.OldPriority != p.NewPriority {
			out = append(out, domain.TicketHistory{
				ChangeType: domain.ChangeTypePriority,
				OldValue:   map[string]any{"priority": string(p.OldPriority)},
				NewValue:   map[string]any{"priority": string(p.NewPriority)},
			})
		}
		// Status, priority and the response have their own entries.
		fields := slices.DeleteFunc(slices.Clone(p.Fields), func(f string) bool {
			return f == "status" || f == "priority" || f == "response"
		})
		if len(fields) > 0 {
			out = append(out, domain.TicketHistory{
				ChangeType: domain.ChangeTypeFields,
				NewValue:   map[string]any{"fields": fields},
			})
		}
		return out
	case events.TicketResponseAddedPayload:
		return []domain.TicketHistory{{
			ChangeType: domain.ChangeTypeResponse,
			NewValue:   map[string]any{"preview": p.ResponsePreview},
		}}
	}
	return nil
}
