package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docbridge/internal/config"
	"docbridge/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the sync task queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sync tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var statuses []queue.Status
				if statusFlag != "" {
					status, ok := queue.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q (pending, processing, success, failed)", statusFlag)
					}
					statuses = append(statuses, status)
				}

				tasks, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks found.")
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, taskRow(task))
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Number", "Route", "Source", "Title", "Status", "Attempts", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Filter by status (pending, processing, success, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "retry [task-id...]",
		Short: "Reset failed tasks to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allFlag && len(args) == 0 {
				return fmt.Errorf("specify task ids or --all")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				ids := make([]int64, 0, len(args))
				for _, arg := range args {
					id, err := strconv.ParseInt(arg, 10, 64)
					if err != nil {
						return fmt.Errorf("invalid task id %q", arg)
					}
					ids = append(ids, id)
				}

				reset, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed task(s) to pending.\n", reset)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allFlag, "all", false, "Retry every failed task")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				if allFlag {
					removed, err = store.Clear(cmd.Context())
				} else {
					removed, err = store.ClearSuccess(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s).\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allFlag, "all", false, "Remove every task, not just successful ones")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("task %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed task %d.\n", id)
				return nil
			})
		},
	}
}
