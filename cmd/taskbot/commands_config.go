package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

func buildConfigValidateCmd() *cobra.Command {
	var forServe bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sections []config.Section
			if forServe {
				sections = []config.Section{config.SectionTelegram, config.SectionAssistant, config.SectionTasks, config.SectionAuth}
			}
			cfg, _, err := loadConfig(sections...)
			if err != nil {
				return err
			}
			source := resolveConfigPath(configPath)
			if source == "" {
				source = "environment"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (%s, version %d)\n", source, cfg.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&forServe, "serve", false, "Also require every setting serve needs")
	return cmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskbot %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}
