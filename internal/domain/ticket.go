package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// ParsePriority normalises user input. Empty input yields medium and "middle"
// is accepted as an alias of medium.
func ParsePriority(raw string) (TicketPriority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return TicketPriorityMedium, nil
	case "low":
		return TicketPriorityLow, nil
	case "medium", "middle":
		return TicketPriorityMedium, nil
	case "high":
		return TicketPriorityHigh, nil
	}
	return "", fmt.Errorf("unknown priority %q", raw)
}

// TicketID is an opaque identifier. Remote services may encode it as a JSON
// number, so both numbers and strings decode into it.
type TicketID string

// UnmarshalJSON accepts `"abc"` and `42`.
func (id *TicketID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TicketID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ticket id: %w", err)
	}
	*id = TicketID(n.String())
	return nil
}

func (id TicketID) String() string { return string(id) }

// Ticket is the single tracked support request record.
type Ticket struct {
	ID             TicketID       `json:"id" yaml:"id"`
	Topic          string         `json:"topic" yaml:"topic"`
	Description    string         `json:"description" yaml:"description"`
	Priority       TicketPriority `json:"priority" yaml:"priority"`
	Status         TicketStatus   `json:"status" yaml:"status"`
	AwaitsResponse bool           `json:"awaits_response" yaml:"awaits_response"`
	Tags           []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Response       *string        `json:"response,omitempty" yaml:"response,omitempty"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	UserID         string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	UserEmail      string         `json:"user_email,omitempty" yaml:"user_email,omitempty"`
	UserRole       Role           `json:"user_role,omitempty" yaml:"user_role,omitempty"`
}

// IsOpen reports whether the ticket still needs work.
func (t Ticket) IsOpen() bool {
	return t.Status != TicketStatusResolved && t.Status != TicketStatusClosed
}

// Clone returns a deep copy.
func (t Ticket) Clone() Ticket {
	cp := t
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	if t.Response != nil {
		r := *t.Response
		cp.Response = &r
	}
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		cp.UpdatedAt = &u
	}
	return cp
}

// TicketInput carries caller-supplied fields for ticket creation.
type TicketInput struct {
	Topic       string         `json:"topic"`
	Description string         `json:"description"`
	Priority    TicketPriority `json:"priority"`
	Tags        []string       `json:"tags,omitempty"`
}

// TicketPatch is a partial update; nil fields are left unchanged.
type TicketPatch struct {
	Topic          *string         `json:"topic,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Priority       *TicketPriority `json:"priority,omitempty"`
	Status         *TicketStatus   `json:"status,omitempty"`
	AwaitsResponse *bool           `json:"awaits_response,omitempty"`
	Tags           *[]string       `json:"tags,omitempty"`
	Response       *string         `json:"response,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Topic == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.AwaitsResponse == nil && p.Tags == nil && p.Response == nil
}

// Apply merges the patch onto t. Values are assumed to be validated.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Topic != nil {
		t.Topic = *p.Topic
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AwaitsResponse != nil {
		t.AwaitsResponse = *p.AwaitsResponse
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Response != nil {
		r := *p.Response
		t.Response = &r
	}
}

// NormalizeTags trims labels, drops empties and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
