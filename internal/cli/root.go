// Package cli implements ticketctl, the terminal front-end over the ticket
// dashboard. Commands work against the local persisted collection or the
// remote API depending on TICKETS_MODE.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	mode   string
	apiURL string
	as     string
}

// NewRootCommand builds the ticketctl command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ticketctl",
		Short: "Track support tickets from the terminal.",
		Long: `ticketctl submits, lists, answers and resolves support tickets.

In local mode tickets live in the configured key/value storage on this
machine. In remote mode every call goes to the ticket API using the session
saved by "ticketctl login".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.mode, "mode", "", "ticket store: local or remote (default $TICKETS_MODE)")
	root.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "ticket API base URL (default $TICKETS_API_URL)")
	root.PersistentFlags().StringVar(&flags.as, "as", "", "role to act with in local mode: user, operator or admin")

	root.AddCommand(
		NewLoginCommand(flags),
		NewLogoutCommand(flags),
		NewWhoamiCommand(flags),
		NewListCommand(flags),
		NewShowCommand(flags),
		NewCreateCommand(flags),
		NewUpdateCommand(flags),
		NewResolveCommand(flags),
		NewRespondCommand(flags),
		NewDeleteCommand(flags),
	)
	return root
}

// Execute runs ticketctl and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
