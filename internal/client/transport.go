package client

import (
	"net/http"
	"sync"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// AuthTransport adds the session's Authorization header to every request.
// Without a session requests pass through unmodified.
type AuthTransport struct {
	Base http.RoundTripper

	mu      sync.RWMutex
	session *domain.Session
}

// SetSession replaces the session; nil clears it.
func (t *AuthTransport) SetSession(sess *domain.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sess == nil {
		t.session = nil
		return
	}
	cp := *sess
	t.session = &cp
}

// Session returns a copy of the current session, or nil.
func (t *AuthTransport) Session() *domain.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return nil
	}
	cp := *t.session
	return &cp
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	header := t.Session().AuthorizationHeader()
	if header == "" {
		return base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", header)
	return base.RoundTrip(out)
}
