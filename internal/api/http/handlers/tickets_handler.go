package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/service"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	history *service.HistoryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, historyService *service.HistoryService) *TicketsHandler {
	return &TicketsHandler{service: ticketService, history: historyService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, req.Input())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewTicketResponse(ticket, false))
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c)
	if err != nil {
		return err
	}
	list, err := h.service.ListOwnTickets(c.UserContext(), actor, page)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketListResponse(list.Tickets, list.Total, false))
}

// ListAllTickets GET /tickets/all.
func (h *TicketsHandler) ListAllTickets(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c)
	if err != nil {
		return err
	}
	list, err := h.service.ListAllTickets(c.UserContext(), actor, page)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketListResponse(list.Tickets, list.Total, true))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), actor, ticketID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket, actor.Role.IsStaff()))
}

// TicketHistory GET /tickets/:id/history.
func (h *TicketsHandler) TicketHistory(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	entries, err := h.history.ListTicketHistory(c.UserContext(), actor, ticketID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketHistoryResponse(entries))
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), actor, ticketID(c), req.Patch())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket, actor.Role.IsStaff()))
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), actor, ticketID(c)); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{UserID: principal.UserID, Role: principal.Role}, nil
}

func ticketID(c *fiber.Ctx) domain.TicketID {
	return domain.TicketID(c.Params("id"))
}

func parsePage(c *fiber.Ctx) (service.Page, error) {
	var page service.Page
	for _, q := range []struct {
		name string
		dst  *int
	}{{"skip", &page.Skip}, {"limit", &page.Limit}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, apperrors.NewFieldError(q.name, "must be an integer")
		}
		// Page treats a zero limit as unset, so an explicit zero is rejected here.
		if q.dst == &page.Limit && n == 0 {
			return page, apperrors.NewFieldError("limit", "must be between 1 and 100")
		}
		*q.dst = n
	}
	return page, nil
}
