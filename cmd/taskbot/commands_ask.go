package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/gateway"
)

// buildAskCmd creates the "ask" command, which sends one message through the
// same path Telegram messages take.
func buildAskCmd() *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message to the assistant as a chat",
		Example: `  taskbot ask --chat 123456 "add call the plumber"
  taskbot ask --chat 123456 what is still open`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(config.SectionAssistant, config.SectionTasks, config.SectionAuth)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(closeCtx)
			}()

			reply, err := a.gateway.Process(ctx, gateway.Inbound{
				ConversationID: chatID,
				Text:           strings.Join(args, " "),
			})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), gateway.UserMessage(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "Chat id to act as (must be allowed)")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
