package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the ticket API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if msg := bodyMessage(e.Body); msg != "" {
		return msg
	}
	return fmt.Sprintf("failed to %s (status %d)", e.Op, e.StatusCode)
}

// bodyMessage extracts a readable message from an error body: the server's
// {"error":{"message"}} envelope, a {"detail"} string, or the raw text.
func bodyMessage(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail any `json:"detail"`
	}
	if json.Unmarshal([]byte(body), &envelope) == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if detail, ok := envelope.Detail.(string); ok && detail != "" {
			return detail
		}
	}
	return body
}
