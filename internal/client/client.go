// Package client is the remote ticket store: it speaks to the ticket API over
// HTTP and carries the caller's session on every request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/store"
)

const (
	defaultPageSize = 100
	// MaxPageSize is the largest limit the server accepts.
	MaxPageSize  = 100
	maxErrorBody = 64 << 10
)

// Client implements store.Store against the ticket API.
type Client struct {
	baseURL   string
	http      *http.Client
	transport *AuthTransport
	pageSize  int
	timeout   time.Duration
	logger    *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient uses hc for requests. Its transport is wrapped, not replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.http = &cp
		}
	}
}

// WithSession authorizes requests with sess.
func WithSession(sess *domain.Session) Option {
	return func(c *Client) { c.transport.SetSession(sess) }
}

// WithPageSize sets the limit sent on list requests, capped at MaxPageSize.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithTimeout bounds each request. Zero means no deadline beyond the context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for baseURL. An empty baseURL yields relative paths.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{},
		transport: &AuthTransport{},
		pageSize:  defaultPageSize,
		logger:    zap.NewNop(),
	}
	for len(c.baseURL) > 0 && c.baseURL[len(c.baseURL)-1] == '/' {
		c.baseURL = c.baseURL[:len(c.baseURL)-1]
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport.Base = c.http.Transport
	c.http.Transport = c.transport
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}
	return c
}

var _ store.Store = (*Client)(nil)

// SetSession replaces the session used for subsequent requests.
func (c *Client) SetSession(sess *domain.Session) { c.transport.SetSession(sess) }

// Session returns the current session, or nil.
func (c *Client) Session() *domain.Session { return c.transport.Session() }

// Login exchanges credentials for a session and starts using it.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	var sess domain.Session
	if err := c.do(ctx, "log in", http.MethodPost, "/auth/login", creds, &sess); err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return nil, errors.New("login response carried no access token")
	}
	if sess.TokenType == "" {
		sess.TokenType = "bearer"
	}
	c.SetSession(&sess)
	return &sess, nil
}

// List reads one page from /tickets, or /tickets/all for staff sessions.
func (c *Client) List(ctx context.Context) (store.ListResult, error) {
	path := "/tickets"
	if c.Session().Role().IsStaff() {
		path = "/tickets/all"
	}
	q := url.Values{}
	q.Set("skip", "0")
	q.Set("limit", strconv.Itoa(c.pageSize))

	var raw json.RawMessage
	if err := c.do(ctx, "load tickets", http.MethodGet, path+"?"+q.Encode(), nil, &raw); err != nil {
		return store.ListResult{}, err
	}
	return decodeList(raw)
}

// Get reads one ticket. A missing or hidden ticket yields store.ErrNotFound.
func (c *Client) Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	var t domain.Ticket
	err := c.do(ctx, "load ticket", http.MethodGet, ticketPath(id), nil, &t)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Create(ctx context.Context, input domain.TicketInput) (*domain.Ticket, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}
	var t domain.Ticket
	if err := c.do(ctx, "create ticket", http.MethodPost, "/tickets", input, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Update(ctx context.Context, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}
	return c.patch(ctx, "update ticket", id, patch)
}

func (c *Client) Delete(ctx context.Context, id domain.TicketID) (bool, error) {
	err := c.do(ctx, "delete ticket", http.MethodDelete, ticketPath(id), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) AppendResponse(ctx context.Context, id domain.TicketID, text string) (*domain.Ticket, error) {
	text, err := domain.NormalizeResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrValidation, err)
	}
	return c.patch(ctx, "send response", id, store.ResponsePatch(text))
}

func (c *Client) patch(ctx context.Context, op string, id domain.TicketID, patch domain.TicketPatch) (*domain.Ticket, error) {
	var t domain.Ticket
	err := c.do(ctx, op, http.MethodPatch, ticketPath(id), patch, &t)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// do issues one request. Non-2xx statuses become *APIError; out is decoded
// from the body when non-nil and the body is not empty.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(text)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func ticketPath(id domain.TicketID) string {
	return "/tickets/" + url.PathEscape(id.String())
}

// decodeList accepts the {tickets, total} envelope or a bare array.
func decodeList(raw json.RawMessage) (store.ListResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return store.ListResult{Tickets: []domain.Ticket{}}, nil
	}
	if trimmed[0] == '[' {
		var tickets []domain.Ticket
		if err := json.Unmarshal(trimmed, &tickets); err != nil {
			return store.ListResult{}, fmt.Errorf("load tickets: decode response: %w", err)
		}
		return store.ListResult{Tickets: tickets, Total: len(tickets)}, nil
	}
	var res store.ListResult
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return store.ListResult{}, fmt.Errorf("load tickets: decode response: %w", err)
	}
	if res.Tickets == nil {
		res.Tickets = []domain.Ticket{}
	}
	return res, nil
}
