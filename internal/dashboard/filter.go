package dashboard

import (
	"strings"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// Filter returns the tickets whose topic or description contains query,
// ignoring case. A blank query returns tickets unchanged. The input is never
// modified.
func Filter(tickets []domain.Ticket, query string) []domain.Ticket {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return tickets
	}
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if strings.Contains(strings.ToLower(t.Topic), query) ||
			strings.Contains(strings.ToLower(t.Description), query) {
			out = append(out, t)
		}
	}
	return out
}
