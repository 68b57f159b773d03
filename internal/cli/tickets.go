package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-tracker/internal/dashboard"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/store"
)

// NewListCommand prints the tickets matching an optional search.
func NewListCommand(flags *globalFlags) *cobra.Command {
	var (
		search string
		output string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tickets, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), flags, func(e *env) error {
				if err := e.dash.Load(cmd.Context()); err != nil {
					return err
				}
				e.dash.SetQuery(search)
				_, total := e.dash.Snapshot()
				return writeTickets(cmd.OutOrStdout(), format, e.dash.Visible(), total)
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive match on topic or description")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

// NewShowCommand prints one ticket in full.
func NewShowCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a ticket with its description and response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			id := domain.TicketID(args[0])
			return withEnv(cmd.Context(), flags, func(e *env) error {
				// The remote list is one page, so fetch the ticket directly.
				if e.client != nil {
					t, err := e.client.Get(cmd.Context(), id)
					if err != nil {
						return fmt.Errorf("ticket %s: %w", id, err)
					}
					return writeTicket(cmd.OutOrStdout(), format, *t)
				}
				if err := e.dash.Load(cmd.Context()); err != nil {
					return err
				}
				e.dash.Select(id)
				t, ok := e.dash.Selected()
				if !ok {
					return fmt.Errorf("ticket %s: %w", id, store.ErrNotFound)
				}
				return writeTicket(cmd.OutOrStdout(), format, t)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

// NewCreateCommand submits a new ticket.
func NewCreateCommand(flags *globalFlags) *cobra.Command {
	var (
		form     dashboard.Form
		priority string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form.Priority = domain.TicketPriority(priority)
			return withEnv(cmd.Context(), flags, func(e *env) error {
				t, err := e.dash.Submit(cmd.Context(), form)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", t.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&form.Topic, "topic", "t", "", "short summary (required)")
	cmd.Flags().StringVarP(&form.Description, "description", "d", "", "details of the problem")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high (default medium)")
	cmd.Flags().StringSliceVar(&form.Tags, "tag", nil, "tag to attach; repeat or comma separate")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

// NewUpdateCommand edits the fields given as flags.
func NewUpdateCommand(flags *globalFlags) *cobra.Command {
	var (
		topic, description, priority, status string
		tags                                 []string
		awaiting                             bool
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.TicketPatch
			changed := cmd.Flags().Changed
			if changed("topic") {
				patch.Topic = &topic
			}
			if changed("description") {
				patch.Description = &description
			}
			if changed("priority") {
				p := domain.TicketPriority(priority)
				patch.Priority = &p
			}
			if changed("status") {
				s := domain.TicketStatus(strings.ToLower(status))
				patch.Status = &s
			}
			if changed("tag") {
				patch.Tags = &tags
			}
			if changed("awaiting") {
				patch.AwaitsResponse = &awaiting
			}
			if patch.IsEmpty() {
				return errors.New("nothing to update; pass at least one field flag")
			}

			id := domain.TicketID(args[0])
			return withEnv(cmd.Context(), flags, func(e *env) error {
				t, err := e.dash.Edit(cmd.Context(), id, patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", t.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "new topic")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&status, "status", "", "new, open, in_progress, resolved or closed")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace the tags; repeat or comma separate")
	cmd.Flags().BoolVar(&awaiting, "awaiting", false, "mark the ticket as awaiting a response (staff only)")
	return cmd
}

// NewResolveCommand marks a ticket resolved.
func NewResolveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ID",
		Short: "Mark a ticket resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				t, err := e.dash.Resolve(cmd.Context(), domain.TicketID(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", t.ID)
				return nil
			})
		},
	}
}

// NewRespondCommand attaches a staff response.
func NewRespondCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "respond ID TEXT...",
		Short: "Answer a ticket (staff only)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return withEnv(cmd.Context(), flags, func(e *env) error {
				t, err := e.dash.Respond(cmd.Context(), domain.TicketID(args[0]), text)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "responded to %s\n", t.ID)
				return nil
			})
		},
	}
}

// NewDeleteCommand removes a ticket.
func NewDeleteCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a ticket",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.TicketID(args[0])
			return withEnv(cmd.Context(), flags, func(e *env) error {
				ok, err := e.dash.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("ticket %s: %w", id, store.ErrNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			})
		},
	}
}
