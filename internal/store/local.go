package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/kv"
)

// DefaultKey is the storage key holding the ticket array.
const DefaultKey = "support_ai_tickets"

// CorruptPolicy decides what happens when the persisted array cannot be decoded.
type CorruptPolicy int

const (
	// DiscardCorrupt treats undecodable data as an empty collection. The next
	// mutation overwrites it.
	DiscardCorrupt CorruptPolicy = iota
	// FailOnCorrupt surfaces ErrCorruptState.
	FailOnCorrupt
)

var errAbsent = errors.New("absent")

// Local keeps all tickets as one JSON array under a single key, most recent first.
type Local struct {
	storage kv.Storage
	key     string
	now     func() time.Time
	newID   func() domain.TicketID
	policy  CorruptPolicy
	logger  *zap.Logger
}

// LocalOption customises a Local store.
type LocalOption func(*Local)

// WithKey overrides DefaultKey.
func WithKey(key string) LocalOption {
	return func(l *Local) {
		if key != "" {
			l.key = key
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

// WithIDGenerator overrides UUID generation.
func WithIDGenerator(gen func() domain.TicketID) LocalOption {
	return func(l *Local) { l.newID = gen }
}

// WithCorruptPolicy selects the corrupt-data behaviour.
func WithCorruptPolicy(p CorruptPolicy) LocalOption {
	return func(l *Local) { l.policy = p }
}

// WithLogger sets the logger used to report discarded data.
func WithLogger(logger *zap.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocal builds a store over storage.
func NewLocal(storage kv.Storage, opts ...LocalOption) *Local {
	l := &Local{
		storage: storage,
		key:     DefaultKey,
		now:     time.Now,
		newID:   func() domain.TicketID { return domain.TicketID(uuid.NewString()) },
		policy:  DiscardCorrupt,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Store = (*Local)(nil)

func (l *Local) List(ctx context.Context) (ListResult, error) {
	raw, err := l.storage.Get(ctx, l.key)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return ListResult{}, fmt.Errorf("load tickets: %w", err)
	}
	tickets, err := l.decode(raw)
	if err != nil {
		return ListResult{}, err
	}
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.Clone())
	}
	return ListResult{Tickets: out, Total: len(out)}, nil
}

func (l *Local) Create(ctx context.Context, input domain.TicketInput) (*domain.Ticket, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	var created domain.Ticket
	err = l.mutate(ctx, func(tickets []domain.Ticket) ([]domain.Ticket, error) {
		createdAt := l.now().UTC()
		if len(tickets) > 0 && createdAt.Before(tickets[0].CreatedAt) {
			createdAt = tickets[0].CreatedAt
		}
		created = domain.Ticket{
			ID:             l.newID(),
			Topic:          input.Topic,
			Description:    input.Description,
			Priority:       input.Priority,
			Status:         domain.TicketStatusNew,
			AwaitsResponse: true,
			Tags:           input.Tags,
			CreatedAt:      createdAt,
		}
		return append([]domain.Ticket{created}, tickets...), nil
	})
	if err != nil {
		return nil, err
	}
	out := created.Clone()
	return &out, nil
}

func (l *Local) Update(ctx context.Context, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return l.apply(ctx, id, patch)
}

func (l *Local) Delete(ctx context.Context, id domain.TicketID) (bool, error) {
	err := l.mutate(ctx, func(tickets []domain.Ticket) ([]domain.Ticket, error) {
		for i := range tickets {
			if tickets[i].ID == id {
				return append(tickets[:i:i], tickets[i+1:]...), nil
			}
		}
		return nil, errAbsent
	})
	if errors.Is(err, errAbsent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) AppendResponse(ctx context.Context, id domain.TicketID, text string) (*domain.Ticket, error) {
	text, err := domain.NormalizeResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return l.apply(ctx, id, ResponsePatch(text))
}

func (l *Local) apply(ctx context.Context, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error) {
	var updated domain.Ticket
	err := l.mutate(ctx, func(tickets []domain.Ticket) ([]domain.Ticket, error) {
		for i := range tickets {
			if tickets[i].ID != id {
				continue
			}
			if !patch.IsEmpty() {
				patch.Apply(&tickets[i])
				now := l.now().UTC()
				tickets[i].UpdatedAt = &now
			}
			updated = tickets[i].Clone()
			return tickets, nil
		}
		return nil, errAbsent
	})
	if errors.Is(err, errAbsent) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// mutate runs fn as one atomic read-modify-write of the stored array.
func (l *Local) mutate(ctx context.Context, fn func([]domain.Ticket) ([]domain.Ticket, error)) error {
	return l.storage.Update(ctx, l.key, func(raw []byte) ([]byte, error) {
		tickets, err := l.decode(raw)
		if err != nil {
			return nil, err
		}
		next, err := fn(tickets)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []domain.Ticket{}
		}
		return json.Marshal(next)
	})
}

func (l *Local) decode(raw []byte) ([]domain.Ticket, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tickets []domain.Ticket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		if l.policy == FailOnCorrupt {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		l.logger.Warn("discarding corrupt ticket data", zap.String("key", l.key), zap.Error(err))
		return nil, nil
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets, nil
}
