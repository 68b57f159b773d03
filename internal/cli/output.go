package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/store"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"

	maxTopicWidth = 40
)

func parseFormat(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "", formatTable:
		return formatTable, nil
	case formatJSON, formatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", raw)
}

func writeTickets(w io.Writer, format string, tickets []domain.Ticket, total int) error {
	switch format {
	case formatJSON:
		return writeJSON(w, store.ListResult{Tickets: tickets, Total: total})
	case formatYAML:
		return writeYAML(w, store.ListResult{Tickets: tickets, Total: total})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTOPIC\tPRIORITY\tSTATUS\tAWAITING\tTAGS\tCREATED")
	for _, t := range tickets {
		awaiting := ""
		if t.AwaitsResponse {
			awaiting = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, truncate(t.Topic, maxTopicWidth), t.Priority, t.Status, awaiting,
			strings.Join(t.Tags, ","), t.CreatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d shown, %d total\n", len(tickets), total)
	return err
}

func writeTicket(w io.Writer, format string, t domain.Ticket) error {
	switch format {
	case formatJSON:
		return writeJSON(w, t)
	case formatYAML:
		return writeYAML(w, t)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", t.ID)
	fmt.Fprintf(tw, "Topic:\t%s\n", t.Topic)
	fmt.Fprintf(tw, "Priority:\t%s\n", t.Priority)
	fmt.Fprintf(tw, "Status:\t%s\n", t.Status)
	fmt.Fprintf(tw, "Awaiting response:\t%t\n", t.AwaitsResponse)
	if len(t.Tags) > 0 {
		fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(t.Tags, ", "))
	}
	if t.UserEmail != "" {
		fmt.Fprintf(tw, "Owner:\t%s\n", t.UserEmail)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", t.CreatedAt.Local().Format(time.DateTime))
	if t.UpdatedAt != nil {
		fmt.Fprintf(tw, "Updated:\t%s\n", t.UpdatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if t.Response != nil {
		fmt.Fprintf(w, "\nResponse:\n%s\n", *t.Response)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
