package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tasks"
)

// buildTasksCmd creates the "tasks" command group for operator access to the
// task API.
func buildTasksCmd() *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Read and change a chat's tasks directly",
	}
	cmd.PersistentFlags().StringVar(&chatID, "chat", "", "Chat id that owns the tasks")
	_ = cmd.MarkPersistentFlagRequired("chat")

	cmd.AddCommand(
		buildTasksListCmd(&chatID),
		buildTasksCreateCmd(&chatID),
		buildTasksCompleteCmd(&chatID),
		buildTasksDeleteCmd(&chatID),
	)
	return cmd
}

func taskClient() (*tasks.Client, error) {
	cfg, _, err := loadConfig(config.SectionTasks)
	if err != nil {
		return nil, err
	}
	return newTaskClient(cfg), nil
}

func buildTasksListCmd(chatID *string) *cobra.Command {
	var completed, all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := taskClient()
			if err != nil {
				return err
			}
			var filter *bool
			if !all {
				filter = &completed
			}
			list, err := client.ListTasks(cmd.Context(), *chatID, filter)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "List completed tasks instead")
	cmd.Flags().BoolVar(&all, "all", false, "List open and completed tasks")
	cmd.MarkFlagsMutuallyExclusive("completed", "all")
	return cmd
}

func buildTasksCreateCmd(chatID *string) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := taskClient()
			if err != nil {
				return err
			}
			req := tasks.CreateTaskRequest{Title: strings.Join(args, " ")}
			if description != "" {
				req.Description = &description
			}
			task, err := client.CreateTask(cmd.Context(), *chatID, req)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []tasks.Task{*task})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	return cmd
}

func buildTasksCompleteCmd(chatID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			client, err := taskClient()
			if err != nil {
				return err
			}
			done := true
			task, err := client.UpdateTask(cmd.Context(), *chatID, id, tasks.UpdateTaskRequest{Completed: &done})
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), []tasks.Task{*task})
		},
	}
}

func buildTasksDeleteCmd(chatID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			client, err := taskClient()
			if err != nil {
				return err
			}
			task, err := client.DeleteTask(cmd.Context(), *chatID, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted task %d (%s)\n", task.ID, task.Title)
			return nil
		},
	}
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return id, nil
}

func printTasks(out io.Writer, list []tasks.Task) error {
	if len(list) == 0 {
		fmt.Fprintln(out, "no tasks")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDONE\tTITLE\tDESCRIPTION")
	for _, t := range list {
		desc := ""
		if t.Description != nil {
			desc = *t.Description
		}
		done := " "
		if t.Completed {
			done = "x"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, done, t.Title, desc)
	}
	return w.Flush()
}
