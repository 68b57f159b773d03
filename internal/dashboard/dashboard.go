// Package dashboard holds the transient view state of the ticket list: the
// last loaded snapshot, search text, selection and the in-flight flag. Every
// write goes through the store and is followed by a reload.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/store"
)

var (
	// ErrBusy is returned when another operation on the same dashboard is in flight.
	ErrBusy = errors.New("dashboard: operation in progress")
	// ErrForbidden is returned when the role may not perform the action.
	ErrForbidden = errors.New("dashboard: action requires a staff role")
)

// Form is the ticket creation form.
type Form struct {
	Topic       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// Validate normalizes the form into store input.
func (f Form) Validate() (domain.TicketInput, error) {
	return domain.TicketInput{
		Topic:       f.Topic,
		Description: f.Description,
		Priority:    f.Priority,
		Tags:        f.Tags,
	}.Normalize()
}

// Dashboard is safe for concurrent use; overlapping operations are rejected
// with ErrBusy rather than queued.
type Dashboard struct {
	store  store.Store
	role   domain.Role
	logger *zap.Logger

	mu       sync.Mutex
	loading  bool
	loaded   bool
	tickets  []domain.Ticket
	total    int
	query    string
	selected domain.TicketID
	lastErr  error
}

// New builds a dashboard acting with role.
func New(s store.Store, role domain.Role, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !role.Valid() {
		role = domain.RoleUser
	}
	return &Dashboard{store: s, role: role, logger: logger}
}

// Role returns the role the dashboard acts with.
func (d *Dashboard) Role() domain.Role { return d.role }

// Load replaces the snapshot with a fresh list and clears the selection.
func (d *Dashboard) Load(ctx context.Context) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.end()
	return d.reload(ctx)
}

// Submit validates the form, creates the ticket and reloads. An invalid form
// never reaches the store.
func (d *Dashboard) Submit(ctx context.Context, form Form) (*domain.Ticket, error) {
	input, err := form.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.end()

	t, err := d.store.Create(ctx, input)
	if err != nil {
		return nil, d.fail("create ticket", err)
	}
	return t, d.reload(ctx)
}

// Respond attaches a staff response and reloads.
func (d *Dashboard) Respond(ctx context.Context, id domain.TicketID, text string) (*domain.Ticket, error) {
	if !d.role.IsStaff() {
		return nil, ErrForbidden
	}
	text, err := domain.NormalizeResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.end()

	t, err := d.store.AppendResponse(ctx, id, text)
	if err != nil {
		return nil, d.fail("send response", err)
	}
	return t, d.reload(ctx)
}

// Resolve marks the ticket resolved and reloads.
func (d *Dashboard) Resolve(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.end()

	status := domain.TicketStatusResolved
	t, err := d.store.Update(ctx, id, domain.TicketPatch{Status: &status})
	if err != nil {
		return nil, d.fail("resolve ticket", err)
	}
	return t, d.reload(ctx)
}

// Edit applies a partial update and reloads. Response fields are staff only.
func (d *Dashboard) Edit(ctx context.Context, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error) {
	if (patch.Response != nil || patch.AwaitsResponse != nil) && !d.role.IsStaff() {
		return nil, ErrForbidden
	}
	patch, err := patch.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.end()

	t, err := d.store.Update(ctx, id, patch)
	if err != nil {
		return nil, d.fail("update ticket", err)
	}
	return t, d.reload(ctx)
}

// Remove deletes the ticket and reloads. It reports whether the ticket existed.
func (d *Dashboard) Remove(ctx context.Context, id domain.TicketID) (bool, error) {
	if err := d.begin(); err != nil {
		return false, err
	}
	defer d.end()

	ok, err := d.store.Delete(ctx, id)
	if err != nil {
		return false, d.fail("delete ticket", err)
	}
	return ok, d.reload(ctx)
}

// Snapshot returns the last loaded tickets and total.
func (d *Dashboard) Snapshot() ([]domain.Ticket, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Ticket(nil), d.tickets...), d.total
}

// Visible returns the snapshot filtered by the current query.
func (d *Dashboard) Visible() []domain.Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Ticket(nil), Filter(d.tickets, d.query)...)
}

// SetQuery replaces the search text.
func (d *Dashboard) SetQuery(q string) {
	d.mu.Lock()
	d.query = q
	d.mu.Unlock()
}

// Query returns the search text.
func (d *Dashboard) Query() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.query
}

// Select toggles selection of id: selecting the selected ticket clears it.
func (d *Dashboard) Select(id domain.TicketID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected == id {
		d.selected = ""
		return
	}
	d.selected = id
}

// Selected returns the selected ticket from the snapshot.
func (d *Dashboard) Selected() (domain.Ticket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected == "" {
		return domain.Ticket{}, false
	}
	for _, t := range d.tickets {
		if t.ID == d.selected {
			return t, true
		}
	}
	return domain.Ticket{}, false
}

// Loading reports whether an operation is in flight.
func (d *Dashboard) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Loaded reports whether a snapshot has been loaded at least once.
func (d *Dashboard) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// LastError returns the error of the most recent failed operation, cleared by
// the next successful load.
func (d *Dashboard) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Dashboard) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loading {
		return ErrBusy
	}
	d.loading = true
	return nil
}

func (d *Dashboard) end() {
	d.mu.Lock()
	d.loading = false
	d.mu.Unlock()
}

// reload must run between begin and end.
func (d *Dashboard) reload(ctx context.Context) error {
	res, err := d.store.List(ctx)
	if err != nil {
		return d.fail("load tickets", err)
	}
	d.mu.Lock()
	d.tickets = res.Tickets
	d.total = res.Total
	d.selected = ""
	d.loaded = true
	d.lastErr = nil
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) fail(op string, err error) error {
	d.logger.Warn("ticket operation failed", zap.String("op", op), zap.Error(err))
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}
