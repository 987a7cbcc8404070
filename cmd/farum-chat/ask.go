package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-chat/internal/app/conversation"
	"github.com/PabloGalante/farum-chat/internal/domain"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var rename bool

	cmd := &cobra.Command{
		Use:   "ask <session-id> <prompt>",
		Short: "Send a prompt to a session and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])
			prompt := strings.Join(args[1:], " ")

			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				reply, err := a.svc.Ask(ctx, id, prompt)
				var unsaved *conversation.UnsavedReplyError
				if errors.As(err, &unsaved) {
					fmt.Fprintln(cmd.OutOrStdout(), unsaved.Reply)
					return err
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply)

				if rename {
					name, err := a.svc.SummarizeSessionName(ctx, id, prompt)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.ErrOrStderr(), dateStyle.Render("session renamed to "+name))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&rename, "rename", false, "Name the session after the prompt")
	return cmd
}
