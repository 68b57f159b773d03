package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/config"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

type testServer struct {
	app   *fiber.App
	repo  *repository.MemoryStore
	ready error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{repo: repository.NewMemoryStore()}
	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}, ts.repo.Users())
	dispatcher := events.NewInMemoryDispatcher()
	ticketService := service.NewTicketService(ts.repo.Tickets(), dispatcher)
	historyService := service.NewHistoryService(ts.repo.History(), ticketService, zap.NewNop())
	historyService.Subscribe(dispatcher)
	metrics := observability.NewMetrics()
	checks := map[string]handlers.Check{"store": func(context.Context) error { return ts.ready }}

	ts.app = NewApp(AppOptions{Name: "test", Logger: zap.NewNop(), Metrics: metrics}, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-tracker", "test", checks, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, historyService),
		Users:          handlers.NewUsersHandler(service.NewUserService(ts.repo.Users(), zap.NewNop())),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), ts.repo.Users()),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

// login creates an account with role and returns its token.
func (ts *testServer) login(t *testing.T, email string, role domain.Role) string {
	t.Helper()
	hash, _ := auth.HashPassword("password1", bcrypt.MinCost)
	if err := ts.repo.Users().Create(context.Background(), &domain.User{Email: email, PasswordHash: hash, Role: role, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	resp, body := ts.do(t, http.MethodPost, "/auth/login", "", dto.CredentialsRequest{Email: email, Password: "password1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d: %s", resp.StatusCode, body)
	}
	var tok dto.TokenResponse
	_ = json.Unmarshal(body, &tok)
	if tok.TokenType != "bearer" || tok.UserRole != role {
		t.Fatalf("token response = %+v", tok)
	}
	return tok.AccessToken
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("error body %q: %v", body, err)
	}
	return env.Error.Code
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/auth/register", "", dto.CredentialsRequest{Email: "new@example.com", Password: "password1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d: %s", resp.StatusCode, body)
	}
	if bytes.Contains(body, []byte("password")) {
		t.Fatalf("register response leaks password data: %s", body)
	}
	resp, body = ts.do(t, http.MethodPost, "/auth/register", "", dto.CredentialsRequest{Email: "new@example.com", Password: "password1"})
	if resp.StatusCode != http.StatusConflict || errorCode(t, body) != "CONFLICT" {
		t.Fatalf("duplicate register = %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, "/auth/login", "", dto.CredentialsRequest{Email: "new@example.com", Password: "nope-nope"})
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("bad login = %d %s", resp.StatusCode, body)
	}
}

func TestTicketsRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, token := range []string{"", "garbage"} {
		resp, body := ts.do(t, http.MethodGet, "/tickets", token, nil)
		if resp.StatusCode != http.StatusUnauthorized || errorCode(t, body) != "UNAUTHORIZED" {
			t.Errorf("token %q: status = %d %s", token, resp.StatusCode, body)
		}
	}
}

func TestTicketFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login(t, "alice@example.com", domain.RoleUser)
	mallory := ts.login(t, "mallory@example.com", domain.RoleUser)
	op := ts.login(t, "op@example.com", domain.RoleOperator)

	resp, body := ts.do(t, http.MethodPost, "/tickets", alice, dto.CreateTicketRequest{Topic: "Payment issue", Description: "Card declined", Priority: "high"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var created dto.TicketResponse
	_ = json.Unmarshal(body, &created)
	if created.ID == "" || created.Status != domain.TicketStatusNew || !created.AwaitsResponse {
		t.Fatalf("created = %+v", created)
	}

	resp, body = ts.do(t, http.MethodPost, "/tickets", alice, dto.CreateTicketRequest{Topic: "  "})
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "VALIDATION_FAILED" {
		t.Fatalf("blank create = %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/tickets", alice, nil)
	var own dto.TicketListResponse
	_ = json.Unmarshal(body, &own)
	if resp.StatusCode != http.StatusOK || own.Total != 1 || own.Tickets[0].UserEmail != "" {
		t.Fatalf("own list = %d %s", resp.StatusCode, body)
	}

	resp, _ = ts.do(t, http.MethodGet, "/tickets/all", alice, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user /tickets/all status = %d", resp.StatusCode)
	}
	resp, body = ts.do(t, http.MethodGet, "/tickets/all?limit=5", op, nil)
	var all dto.TicketListResponse
	_ = json.Unmarshal(body, &all)
	if resp.StatusCode != http.StatusOK || all.Total != 1 || all.Tickets[0].UserEmail != "alice@example.com" {
		t.Fatalf("staff list = %d %s", resp.StatusCode, body)
	}

	path := "/tickets/" + string(created.ID)
	if resp, _ := ts.do(t, http.MethodGet, path, mallory, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign get status = %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPatch, path, alice, map[string]any{"response": "self answer"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("owner response status = %d", resp.StatusCode)
	}
	resp, body = ts.do(t, http.MethodPatch, path, op, map[string]any{"response": "   "})
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "VALIDATION_FAILED" {
		t.Fatalf("blank staff response = %d %s", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodPatch, path, op, map[string]any{"response": "refunded", "awaits_response": false})
	var answered dto.TicketResponse
	_ = json.Unmarshal(body, &answered)
	if resp.StatusCode != http.StatusOK || answered.Response == nil || *answered.Response != "refunded" || answered.AwaitsResponse {
		t.Fatalf("staff response = %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, path+"/history", alice, nil)
	var history []dto.TicketHistoryResponse
	_ = json.Unmarshal(body, &history)
	if resp.StatusCode != http.StatusOK || len(history) != 3 ||
		history[0].ChangeType != domain.ChangeTypeCreated || history[2].ChangeType != domain.ChangeTypeResponse {
		t.Fatalf("history = %d %s", resp.StatusCode, body)
	}
	if resp, _ := ts.do(t, http.MethodGet, path+"/history", mallory, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign history status = %d", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodPatch, "/tickets/missing", op, map[string]any{"status": "resolved"})
	if resp.StatusCode != http.StatusNotFound || errorCode(t, body) != "NOT_FOUND" {
		t.Fatalf("missing patch = %d %s", resp.StatusCode, body)
	}

	if resp, _ := ts.do(t, http.MethodDelete, path, alice, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodDelete, path, alice, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestListPaging(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login(t, "alice@example.com", domain.RoleUser)
	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodPost, "/tickets", alice, dto.CreateTicketRequest{Topic: "t"})
	}
	tests := []struct {
		query  string
		status int
		count  int
	}{
		{query: "", status: http.StatusOK, count: 3},
		{query: "?limit=2", status: http.StatusOK, count: 2},
		{query: "?skip=2&limit=2", status: http.StatusOK, count: 1},
		{query: "?limit=100", status: http.StatusOK, count: 3},
		{query: "?limit=101", status: http.StatusBadRequest},
		{query: "?limit=0", status: http.StatusBadRequest},
		{query: "?limit=-1", status: http.StatusBadRequest},
		{query: "?skip=-1", status: http.StatusBadRequest},
		{query: "?limit=abc", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		resp, body := ts.do(t, http.MethodGet, "/tickets"+tc.query, alice, nil)
		if resp.StatusCode != tc.status {
			t.Errorf("GET /tickets%s status = %d: %s", tc.query, resp.StatusCode, body)
			continue
		}
		if tc.status != http.StatusOK {
			continue
		}
		var list dto.TicketListResponse
		_ = json.Unmarshal(body, &list)
		if len(list.Tickets) != tc.count || list.Total != 3 {
			t.Errorf("GET /tickets%s = %d tickets, total %d", tc.query, len(list.Tickets), list.Total)
		}
	}
}

func TestUserAdministration(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@example.com", domain.RoleAdmin)
	op := ts.login(t, "op@example.com", domain.RoleOperator)
	bob := ts.login(t, "bob@example.com", domain.RoleUser)

	for _, token := range []string{op, bob} {
		resp, body := ts.do(t, http.MethodGet, "/users", token, nil)
		if resp.StatusCode != http.StatusForbidden || errorCode(t, body) != "FORBIDDEN" {
			t.Fatalf("non-admin GET /users = %d %s", resp.StatusCode, body)
		}
	}

	resp, body := ts.do(t, http.MethodGet, "/users", admin, nil)
	var users []dto.UserResponse
	_ = json.Unmarshal(body, &users)
	if resp.StatusCode != http.StatusOK || len(users) != 3 || bytes.Contains(body, []byte("password")) {
		t.Fatalf("GET /users = %d %s", resp.StatusCode, body)
	}
	ids := map[string]string{}
	for _, u := range users {
		ids[u.Email] = u.ID
	}

	if resp, _ := ts.do(t, http.MethodGet, "/tickets/all", bob, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user /tickets/all status = %d", resp.StatusCode)
	}
	resp, body = ts.do(t, http.MethodPatch, "/users/"+ids["bob@example.com"], op, map[string]any{"role": "admin"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("operator promotion = %d %s", resp.StatusCode, body)
	}

	tests := []struct {
		name   string
		id     string
		body   map[string]any
		status int
		code   string
	}{
		{name: "unknown role", id: ids["bob@example.com"], body: map[string]any{"role": "root"}, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "empty change", id: ids["bob@example.com"], body: map[string]any{}, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "missing user", id: "00000000-0000-0000-0000-000000000000", body: map[string]any{"role": "operator"}, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "self demotion", id: ids["admin@example.com"], body: map[string]any{"role": "user"}, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "self deactivation", id: ids["admin@example.com"], body: map[string]any{"is_active": false}, status: http.StatusForbidden, code: "FORBIDDEN"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPatch, "/users/"+tc.id, admin, tc.body)
			if resp.StatusCode != tc.status || errorCode(t, body) != tc.code {
				t.Fatalf("PATCH /users/%s = %d %s", tc.id, resp.StatusCode, body)
			}
		})
	}

	resp, body = ts.do(t, http.MethodPatch, "/users/"+ids["bob@example.com"], admin, map[string]any{"role": "operator"})
	var promoted dto.UserResponse
	_ = json.Unmarshal(body, &promoted)
	if resp.StatusCode != http.StatusOK || promoted.Role != domain.RoleOperator || !promoted.IsActive {
		t.Fatalf("promotion = %d %s", resp.StatusCode, body)
	}
	// Roles are read from the account on every request, so the old token
	// picks up the promotion.
	if resp, body := ts.do(t, http.MethodGet, "/tickets/all", bob, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("promoted /tickets/all = %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPatch, "/users/"+ids["op@example.com"], admin, map[string]any{"is_active": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate = %d %s", resp.StatusCode, body)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/tickets", op, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deactivated account status = %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	if resp, _ := ts.do(t, http.MethodGet, "/health/live", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("live status = %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/health/ready", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d", resp.StatusCode)
	}
	ts.ready = errors.New("down")
	resp, body := ts.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || errorCode(t, body) != "DEPENDENCY_UNAVAILABLE" {
		t.Fatalf("not ready = %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/nowhere", "", nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(t, body) != "NOT_FOUND" {
		t.Fatalf("unknown route = %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/metrics", "", nil)
	var snap observability.MetricsSnapshot
	if err := json.Unmarshal(body, &snap); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d %s", resp.StatusCode, body)
	}
	if snap.Requests["/health/live|GET|200"] != 1 {
		t.Errorf("requests = %v", snap.Requests)
	}
}
