package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

type fixture struct {
	repo       *repository.MemoryStore
	auth       *AuthService
	tickets    *TicketService
	history    *HistoryService
	dispatched []events.EventType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: repository.NewMemoryStore()}
	dispatcher := events.NewInMemoryDispatcher()
	for _, typ := range []events.EventType{events.EventTicketCreated, events.EventTicketUpdated, events.EventTicketResponseAdded, events.EventTicketDeleted} {
		dispatcher.Subscribe(typ, func(_ context.Context, e events.Event) error {
			f.dispatched = append(f.dispatched, e.Type)
			return nil
		})
	}
	f.auth = NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}, f.repo.Users())
	f.tickets = NewTicketService(f.repo.Tickets(), dispatcher)
	f.history = NewHistoryService(f.repo.History(), f.tickets, nil)
	f.history.Subscribe(dispatcher)
	return f
}

func (f *fixture) actor(t *testing.T, email string, role domain.Role) Actor {
	t.Helper()
	u := &domain.User{Email: email, Role: role, IsActive: true}
	if err := f.repo.Users().Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return Actor{UserID: u.ID, Role: role}
}

func statusOf(err error) int {
	if err == nil {
		return 0
	}
	return apperrors.ToDomainError(err).HTTPStatus
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.auth.Register(ctx, " New@Example.com ", "long-enough")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "new@example.com" || user.Role != domain.RoleUser || !user.IsActive {
		t.Fatalf("Register() = %+v", user)
	}
	if _, err := f.auth.Register(ctx, "new@example.com", "long-enough"); statusOf(err) != http.StatusConflict {
		t.Fatalf("duplicate Register() error = %v", err)
	}
	if _, err := f.auth.Register(ctx, "not-an-email", "long-enough"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("bad email Register() error = %v", err)
	}
	if _, err := f.auth.Register(ctx, "short@example.com", "123"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("short password Register() error = %v", err)
	}

	res, err := f.auth.Login(ctx, "new@example.com", "long-enough")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.TokenType != "bearer" || res.UserRole != domain.RoleUser {
		t.Fatalf("Login() = %+v", res)
	}
	claims, err := f.auth.TokenManager().ParseToken(res.AccessToken)
	if err != nil || claims.Subject != user.ID {
		t.Fatalf("token claims = %+v, %v", claims, err)
	}

	if _, err := f.auth.Login(ctx, "new@example.com", "wrong-password"); statusOf(err) != http.StatusUnauthorized {
		t.Errorf("Login(bad password) error = %v", err)
	}
	if _, err := f.auth.Login(ctx, "ghost@example.com", "whatever1"); statusOf(err) != http.StatusUnauthorized {
		t.Errorf("Login(unknown) error = %v", err)
	}
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.actor(t, "alice@example.com", domain.RoleUser)
	mallory := f.actor(t, "mallory@example.com", domain.RoleUser)
	op := f.actor(t, "op@example.com", domain.RoleOperator)

	created, err := f.tickets.CreateTicket(ctx, alice, domain.TicketInput{Topic: "Payment issue", Description: "Card declined", Priority: "high"})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if created.Status != domain.TicketStatusNew || !created.AwaitsResponse || created.UserID != alice.UserID {
		t.Fatalf("CreateTicket() = %+v", created)
	}
	if _, err := f.tickets.CreateTicket(ctx, alice, domain.TicketInput{Topic: " "}); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("blank topic error = %v", err)
	}

	if _, err := f.tickets.GetTicket(ctx, mallory, created.ID); statusOf(err) != http.StatusNotFound {
		t.Fatalf("foreign GetTicket() error = %v", err)
	}
	if got, err := f.tickets.GetTicket(ctx, op, created.ID); err != nil || got.UserEmail != "alice@example.com" {
		t.Fatalf("staff GetTicket() = %+v, %v", got, err)
	}

	text := "refund issued"
	if _, err := f.tickets.UpdateTicket(ctx, alice, created.ID, domain.TicketPatch{Response: &text}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("owner response error = %v", err)
	}
	awaits := false
	updated, err := f.tickets.UpdateTicket(ctx, op, created.ID, domain.TicketPatch{Response: &text, AwaitsResponse: &awaits})
	if err != nil {
		t.Fatalf("staff UpdateTicket() error = %v", err)
	}
	if updated.Response == nil || *updated.Response != text || updated.AwaitsResponse || updated.UpdatedAt == nil {
		t.Fatalf("UpdateTicket() = %+v", updated)
	}

	resolved := domain.TicketStatusResolved
	if _, err := f.tickets.UpdateTicket(ctx, alice, created.ID, domain.TicketPatch{Status: &resolved}); err != nil {
		t.Fatalf("owner resolve error = %v", err)
	}
	if _, err := f.tickets.UpdateTicket(ctx, alice, "missing", domain.TicketPatch{Status: &resolved}); statusOf(err) != http.StatusNotFound {
		t.Fatalf("missing UpdateTicket() error = %v", err)
	}

	if err := f.tickets.DeleteTicket(ctx, mallory, created.ID); statusOf(err) != http.StatusNotFound {
		t.Fatalf("foreign DeleteTicket() error = %v", err)
	}
	if err := f.tickets.DeleteTicket(ctx, alice, created.ID); err != nil {
		t.Fatalf("DeleteTicket() error = %v", err)
	}

	want := []events.EventType{
		events.EventTicketCreated,
		events.EventTicketUpdated,
		events.EventTicketResponseAdded,
		events.EventTicketUpdated,
		events.EventTicketDeleted,
	}
	if len(f.dispatched) != len(want) {
		t.Fatalf("events = %v, want %v", f.dispatched, want)
	}
	for i := range want {
		if f.dispatched[i] != want[i] {
			t.Fatalf("events = %v, want %v", f.dispatched, want)
		}
	}
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.actor(t, "alice@example.com", domain.RoleUser)
	bob := f.actor(t, "bob@example.com", domain.RoleUser)
	admin := f.actor(t, "admin@example.com", domain.RoleAdmin)

	for i := 0; i < 12; i++ {
		if _, err := f.tickets.CreateTicket(ctx, alice, domain.TicketInput{Topic: "mine"}); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = f.tickets.CreateTicket(ctx, bob, domain.TicketInput{Topic: "bob's"})

	own, err := f.tickets.ListOwnTickets(ctx, alice, Page{})
	if err != nil {
		t.Fatalf("ListOwnTickets() error = %v", err)
	}
	if own.Total != 12 || len(own.Tickets) != DefaultPageLimit {
		t.Fatalf("own page = %d of %d", len(own.Tickets), own.Total)
	}

	if _, err := f.tickets.ListAllTickets(ctx, alice, Page{}); statusOf(err) != http.StatusForbidden {
		t.Fatalf("user ListAllTickets() error = %v", err)
	}
	all, err := f.tickets.ListAllTickets(ctx, admin, Page{Limit: 100})
	if err != nil || all.Total != 13 || len(all.Tickets) != 13 {
		t.Fatalf("ListAllTickets() = %+v, %v", all, err)
	}

	for _, p := range []Page{{Limit: 101}, {Limit: -1}, {Skip: -1}} {
		if _, err := f.tickets.ListOwnTickets(ctx, alice, p); statusOf(err) != http.StatusBadRequest {
			t.Errorf("ListOwnTickets(%+v) error = %v", p, err)
		}
	}
}

func TestValidationErrorKeepsField(t *testing.T) {
	err := validationError(&domain.FieldError{Field: "topic", Message: "required"})
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Details["field"] != "topic" {
		t.Fatalf("validationError() = %#v", err)
	}
}

func TestTicketHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.actor(t, "alice@example.com", domain.RoleUser)
	mallory := f.actor(t, "mallory@example.com", domain.RoleUser)
	op := f.actor(t, "op@example.com", domain.RoleOperator)

	created, err := f.tickets.CreateTicket(ctx, alice, domain.TicketInput{Topic: "VPN down"})
	if err != nil {
		t.Fatal(err)
	}
	high := domain.TicketPriorityHigh
	open := domain.TicketStatusOpen
	tags := []string{"network"}
	if _, err := f.tickets.UpdateTicket(ctx, op, created.ID, domain.TicketPatch{Priority: &high, Status: &open, Tags: &tags}); err != nil {
		t.Fatal(err)
	}
	text := "rebooted the gateway"
	if _, err := f.tickets.UpdateTicket(ctx, op, created.ID, domain.TicketPatch{Response: &text}); err != nil {
		t.Fatal(err)
	}

	entries, err := f.history.ListTicketHistory(ctx, alice, created.ID)
	if err != nil {
		t.Fatalf("ListTicketHistory() error = %v", err)
	}
	want := []domain.TicketChangeType{
		domain.ChangeTypeCreated,
		domain.ChangeTypeStatus,
		domain.ChangeTypePriority,
		domain.ChangeTypeFields,
		domain.ChangeTypeResponse,
	}
	if len(entries) != len(want) {
		t.Fatalf("history = %+v, want %v", entries, want)
	}
	for i, e := range entries {
		if e.ChangeType != want[i] {
			t.Fatalf("history[%d] = %s, want %s", i, e.ChangeType, want[i])
		}
	}
	if entries[1].OldValue["status"] != "new" || entries[1].NewValue["status"] != "open" || entries[1].ChangedByRole != domain.RoleOperator {
		t.Errorf("status entry = %+v", entries[1])
	}
	if entries[4].NewValue["preview"] != text {
		t.Errorf("response entry = %+v", entries[4])
	}

	if _, err := f.history.ListTicketHistory(ctx, mallory, created.ID); statusOf(err) != http.StatusNotFound {
		t.Fatalf("foreign ListTicketHistory() error = %v", err)
	}
}

func TestUpdateTicketRejectsBlankResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.actor(t, "alice@example.com", domain.RoleUser)
	op := f.actor(t, "op@example.com", domain.RoleOperator)
	created, err := f.tickets.CreateTicket(ctx, alice, domain.TicketInput{Topic: "Refund"})
	if err != nil {
		t.Fatal(err)
	}
	f.dispatched = nil

	for _, text := range []string{"", "  ", "\n\t"} {
		if _, err := f.tickets.UpdateTicket(ctx, op, created.ID, domain.TicketPatch{Response: &text}); statusOf(err) != http.StatusBadRequest {
			t.Fatalf("UpdateTicket(response %q) error = %v, want 400", text, err)
		}
	}
	got, err := f.tickets.GetTicket(ctx, op, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Response != nil || !got.AwaitsResponse || got.UpdatedAt != nil {
		t.Fatalf("ticket changed after rejected responses: %+v", got)
	}
	if len(f.dispatched) != 0 {
		t.Fatalf("events = %v, want none", f.dispatched)
	}
}

func TestUserAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	users := NewUserService(f.repo.Users(), nil)
	admin := f.actor(t, "admin@example.com", domain.RoleAdmin)
	op := f.actor(t, "op@example.com", domain.RoleOperator)
	bob := f.actor(t, "bob@example.com", domain.RoleUser)

	if _, err := users.ListUsers(ctx, op); statusOf(err) != http.StatusForbidden {
		t.Fatalf("operator ListUsers() error = %v", err)
	}
	list, err := users.ListUsers(ctx, admin)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListUsers() = %+v, %v", list, err)
	}

	operator := domain.RoleOperator
	user := domain.RoleUser
	bogus := domain.Role("root")
	inactive := false
	tests := []struct {
		name   string
		actor  Actor
		id     string
		change UserChange
		status int
	}{
		{name: "operator cannot promote", actor: op, id: bob.UserID, change: UserChange{Role: &operator}, status: http.StatusForbidden},
		{name: "empty change", actor: admin, id: bob.UserID, status: http.StatusBadRequest},
		{name: "unknown role", actor: admin, id: bob.UserID, change: UserChange{Role: &bogus}, status: http.StatusBadRequest},
		{name: "missing user", actor: admin, id: "missing", change: UserChange{Role: &operator}, status: http.StatusNotFound},
		{name: "self demotion", actor: admin, id: admin.UserID, change: UserChange{Role: &user}, status: http.StatusForbidden},
		{name: "self deactivation", actor: admin, id: admin.UserID, change: UserChange{IsActive: &inactive}, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := users.UpdateUser(ctx, tt.actor, tt.id, tt.change); statusOf(err) != tt.status {
				t.Fatalf("UpdateUser() error = %v, want status %d", err, tt.status)
			}
		})
	}

	promoted, err := users.UpdateUser(ctx, admin, bob.UserID, UserChange{Role: &operator})
	if err != nil || promoted.Role != domain.RoleOperator || !promoted.IsActive {
		t.Fatalf("UpdateUser(promote) = %+v, %v", promoted, err)
	}
	stored, _ := f.repo.Users().GetByID(ctx, bob.UserID)
	if stored.Role != domain.RoleOperator {
		t.Fatalf("stored role = %q", stored.Role)
	}
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.auth.EnsureAdmin(ctx, " Root@Example.com ", "long-enough")
	if err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	if created.Email != "root@example.com" || created.Role != domain.RoleAdmin || !created.IsActive {
		t.Fatalf("EnsureAdmin() = %+v", created)
	}
	res, err := f.auth.Login(ctx, "root@example.com", "long-enough")
	if err != nil || res.UserRole != domain.RoleAdmin {
		t.Fatalf("admin Login() = %+v, %v", res, err)
	}

	again, err := f.auth.EnsureAdmin(ctx, "root@example.com", "ignored-password")
	if err != nil || again.ID != created.ID {
		t.Fatalf("second EnsureAdmin() = %+v, %v", again, err)
	}
	if _, err := f.auth.Login(ctx, "root@example.com", "long-enough"); err != nil {
		t.Fatalf("password changed by EnsureAdmin(): %v", err)
	}

	if _, err := f.auth.Register(ctx, "demoted@example.com", "long-enough"); err != nil {
		t.Fatal(err)
	}
	promoted, err := f.auth.EnsureAdmin(ctx, "demoted@example.com", "")
	if err != nil || promoted.Role != domain.RoleAdmin {
		t.Fatalf("EnsureAdmin(existing) = %+v, %v", promoted, err)
	}

	if _, err := f.auth.EnsureAdmin(ctx, "fresh@example.com", "short"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("EnsureAdmin(short password) error = %v", err)
	}
}
