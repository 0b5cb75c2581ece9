package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docbridge/internal/config"
	"docbridge/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine status and queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				cmdCtx := cmd.Context()

				health, err := store.Health(cmdCtx)
				if err != nil {
					return err
				}
				mediaCount, mediaBytes, err := store.MediaStats(cmdCtx)
				if err != nil {
					return err
				}

				fmt.Fprintln(out, renderHeading(out, "queue"))
				fmt.Fprintln(out, renderTable(
					[]string{"Pending", "Processing", "Success", "Failed", "Total"},
					[][]string{{
						strconv.Itoa(health.Pending),
						strconv.Itoa(health.Processing),
						strconv.Itoa(health.Success),
						strconv.Itoa(health.Failed),
						strconv.Itoa(health.Total),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				fmt.Fprintln(out, renderHeading(out, "media cache"))
				fmt.Fprintln(out, renderTable(
					[]string{"Assets", "Bytes"},
					[][]string{{
						strconv.FormatInt(mediaCount, 10),
						formatBytes(mediaBytes),
					}},
					[]columnAlignment{alignRight, alignRight},
				))

				fmt.Fprintf(out, "Database: %s\n", store.Path())
				return nil
			})
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for size := n / unit; size >= unit; size /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
