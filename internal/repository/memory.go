package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// MemoryStore backs the repositories with process memory. It mirrors the
// Postgres behaviour closely enough for development servers and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	tickets map[domain.TicketID]domain.Ticket
	history map[domain.TicketID][]domain.TicketHistory
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		tickets: make(map[domain.TicketID]domain.Ticket),
		history: make(map[domain.TicketID][]domain.TicketHistory),
		now:     time.Now,
	}
}

// Users returns the user repository view.
func (m *MemoryStore) Users() UserRepository { return memoryUsers{m} }

// Tickets returns the ticket repository view.
func (m *MemoryStore) Tickets() TicketRepository { return memoryTickets{m} }

// History returns the ticket history repository view.
func (m *MemoryStore) History() TicketHistoryRepository { return memoryHistory{m} }

type memoryUsers struct{ m *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	email := strings.ToLower(user.Email)
	for _, u := range r.m.users {
		if u.Email == email {
			return errDuplicateEmail
		}
	}
	user.ID = uuid.NewString()
	user.Email = email
	user.CreatedAt = r.m.now()
	user.UpdatedAt = user.CreatedAt
	r.m.users[user.ID] = *user
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range r.m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memoryUsers) Update(_ context.Context, user *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.users[user.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Role = user.Role
	stored.IsActive = user.IsActive
	stored.UpdatedAt = r.m.now()
	r.m.users[user.ID] = stored
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r memoryUsers) List(_ context.Context) ([]domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]domain.User, 0, len(r.m.users))
	for _, u := range r.m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memoryTickets struct{ m *MemoryStore }

func (r memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[ticket.UserID]; !ok {
		return errUnknownOwner
	}
	ticket.ID = domain.TicketID(uuid.NewString())
	ticket.CreatedAt = r.m.now()
	r.m.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	now := r.m.now()
	ticket.UpdatedAt = &now
	stored := ticket.Clone()
	stored.UserEmail, stored.UserRole = "", ""
	r.m.tickets[ticket.ID] = stored
	return nil
}

func (r memoryTickets) Delete(_ context.Context, id domain.TicketID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.m.tickets, id)
	delete(r.m.history, id)
	return nil
}

func (r memoryTickets) GetByID(_ context.Context, id domain.TicketID) (*domain.Ticket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	t, ok := r.m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := r.withOwner(t)
	return &out, nil
}

func (r memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := make([]domain.Ticket, 0, len(r.m.tickets))
	for _, t := range r.m.tickets {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		all = append(all, r.withOwner(t))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return all[start:end], total, nil
}

// withOwner must be called with the lock held.
func (r memoryTickets) withOwner(t domain.Ticket) domain.Ticket {
	out := t.Clone()
	if u, ok := r.m.users[t.UserID]; ok {
		out.UserEmail = u.Email
		out.UserRole = u.Role
	}
	return out
}

type memoryHistory struct{ m *MemoryStore }

func (r memoryHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tickets[history.TicketID]; !ok {
		return errUnknownTicket
	}
	history.ID = uuid.NewString()
	history.CreatedAt = r.m.now()
	r.m.history[history.TicketID] = append(r.m.history[history.TicketID], *history)
	return nil
}

func (r memoryHistory) ListByTicket(_ context.Context, ticketID domain.TicketID) ([]domain.TicketHistory, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return append([]domain.TicketHistory{}, r.m.history[ticketID]...), nil
}
