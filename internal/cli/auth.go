package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// NewLoginCommand exchanges credentials for a session and saves it.
func NewLoginCommand(flags *globalFlags) *cobra.Command {
	var (
		email         string
		password      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the ticket API and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passwordStdin {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = line
			}
			if strings.TrimSpace(email) == "" || password == "" {
				return errors.New("--email and a password are required")
			}

			return withEnv(cmd.Context(), flags, func(e *env) error {
				if e.client == nil {
					return errors.New("login requires remote mode")
				}
				sess, err := e.client.Login(cmd.Context(), domain.Credentials{Email: email, Password: password})
				if err != nil {
					return err
				}
				if err := e.sessions.Save(cmd.Context(), *sess); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", email, sess.Role())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

// NewLogoutCommand removes the saved session.
func NewLogoutCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				if err := e.sessions.Remove(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			})
		},
	}
}

// NewWhoamiCommand prints the mode and the role commands act with.
func NewWhoamiCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active mode, session and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "mode: %s\n", e.mode())
				if e.client != nil {
					fmt.Fprintf(out, "api: %s\n", e.cfg.Client.APIURL)
				}
				if e.session == nil {
					fmt.Fprintln(out, "session: none")
				} else {
					fmt.Fprintf(out, "session: %s token\n", e.session.TokenType)
				}
				fmt.Fprintf(out, "role: %s\n", e.dash.Role())
				return nil
			})
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
