package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docbridge/internal/config"
	"docbridge/internal/logging"
	"docbridge/internal/orchestrator"
	"docbridge/internal/queue"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <document-id...>",
		Short: "Enqueue sync tasks for one or more source documents",
		Long: "Creates a pending task per document id. The running daemon picks\n" +
			"them up on its next tick; ids already pending or processing are\n" +
			"reported instead of duplicated.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				orch := orchestrator.New(cfg, store, nil, nil, logging.NewNop())
				result := orch.CreateManualBatch(cmd.Context(), args, queue.PlatformFeishu, queue.PlatformNotion)

				out := cmd.OutOrStdout()
				for _, item := range result.Items {
					switch {
					case item.Err != nil:
						fmt.Fprintf(out, "%s: rejected: %v\n", item.DocumentID, item.Err)
					case item.Existing:
						fmt.Fprintf(out, "%s: already queued as %s (%s)\n", item.DocumentID, item.Task.TaskNumber, item.Task.Status)
					default:
						fmt.Fprintf(out, "%s: queued as %s\n", item.DocumentID, item.Task.TaskNumber)
					}
				}
				fmt.Fprintf(out, "Batch %s: %d of %d queued.\n", result.BatchID, result.Created(), len(result.Items))
				return nil
			})
		},
	}
}
