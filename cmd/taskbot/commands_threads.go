package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// buildMigrateCmd creates the "migrate" command.
func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the thread store schema",
		Long:  "Create the chats table now instead of on the first message. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger, nil, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "thread store ready (%s)\n", cfg.Threads.Driver)
			return nil
		},
	}
}

// buildThreadsCmd creates the "threads" command group.
func buildThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect conversation to thread mappings",
	}
	cmd.AddCommand(buildThreadsListCmd(), buildThreadsResetCmd())
	return cmd
}

func buildThreadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger, nil, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			mappings, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				fmt.Fprintln(out, "no threads")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT\tTHREAD\tCREATED")
			for _, m := range mappings {
				created := "-"
				if !m.CreatedAt.IsZero() {
					created = m.CreatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ConversationID, m.ThreadID, created)
			}
			return w.Flush()
		},
	}
}

func buildThreadsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <chat>",
		Short: "Forget a chat's thread so its next message starts a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger, nil, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Forget(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "chat %s has no thread\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "thread for chat %s removed\n", args[0])
			return nil
		},
	}
}
