package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tools"
)

// buildAssistantCmd creates the "assistant" command group.
func buildAssistantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Manage the OpenAI assistant",
	}
	cmd.AddCommand(buildAssistantSyncCmd())
	return cmd
}

func buildAssistantSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Register the task functions on the assistant",
		Long: `Replace the function tools of openai.assistant_id with the task functions
this bot implements. Other tools on the assistant, such as file search, are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(config.SectionAssistant)
			if err != nil {
				return err
			}
			client, err := newAssistantClient(cfg, logger)
			if err != nil {
				return err
			}
			registry, err := tools.NewRegistry(tools.TaskTools(newTaskClient(cfg), cfg.Tasks.DefaultListFilter)...)
			if err != nil {
				return err
			}

			updated, err := client.SyncFunctionTools(cmd.Context(), cfg.OpenAI.AssistantID, registry.Definitions())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assistant %s (%s) now has %d tools:\n", updated.ID, updated.Model, len(updated.Tools))
			for _, t := range updated.Tools {
				name := string(t.Type)
				if t.Function != nil {
					name = t.Function.Name
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
			}
			return nil
		},
	}
}
