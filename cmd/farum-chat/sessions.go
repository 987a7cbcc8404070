package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-chat/internal/domain"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// withApp loads the configuration, builds the app and runs fn. With prime set
// the session cache is filled first.
func withApp(cmd *cobra.Command, opts *rootOptions, prime bool, fn func(context.Context, *app) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, opts.logOutput(cmd))
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// Identifier-keyed operations only see sessions the cache knows about.
	if prime {
		if _, err := a.svc.ListSessions(ctx); err != nil {
			return err
		}
	}
	if err := fn(ctx, a); err != nil {
		return err
	}
	stats := a.svc.Stats()
	observability.Logger().Debug("cache stats", "sessions", stats.Sessions, "loaded_histories", stats.LoadedHistories)
	return nil
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
				sessions, err := a.svc.ListSessions(ctx)
				if err != nil {
					return err
				}
				renderSessions(cmd.OutOrStdout(), sessions)
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Create a session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
					session, err := a.svc.CreateSession(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), session.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rename <session-id> <name>",
			Short: "Rename a session",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
					return a.svc.RenameSession(ctx, domain.SessionID(args[0]), strings.Join(args[1:], " "))
				})
			},
		},
		&cobra.Command{
			Use:   "delete <session-id>",
			Short: "Delete a session and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
					return a.svc.DeleteSession(ctx, domain.SessionID(args[0]))
				})
			},
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Print the messages of a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
					msgs, err := a.svc.GetSessionMessages(ctx, domain.SessionID(args[0]))
					if err != nil {
						return err
					}
					renderMessages(cmd.OutOrStdout(), msgs)
					return nil
				})
			},
		},
	)
	return cmd
}

func renderSessions(out io.Writer, sessions []domain.Session) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(sessions))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t")
	for _, s := range sessions {
		name := s.Name
		if r := []rune(name); len(r) > 50 {
			name = string(r[:47]) + "..."
		}
		fmt.Fprintln(w, idStyle.Render(string(s.ID))+"\t"+name+"\t")
	}
	_ = w.Flush()
}

func renderMessages(out io.Writer, msgs []domain.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No messages yet"))
		return
	}

	for _, m := range msgs {
		style := userStyle
		if m.Sender == domain.SenderAssistant {
			style = assistantStyle
		}
		fmt.Fprintf(out, "%s %s\n%s\n\n",
			style.Render(string(m.Sender)),
			dateStyle.Render(fmt.Sprintf("%s · %d tokens", m.CreatedAt.Format("2006-01-02 15:04:05"), m.Tokens)),
			m.Text)
	}
}
