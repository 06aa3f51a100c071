package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"repost/internal/ledger"
	"repost/internal/textutil"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the pipeline ledger",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []ledger.Status
			for _, value := range statusFilter {
				status, ok := ledger.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(store *ledger.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					cmd.Println("no matching items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					detail := item.ErrorMessage
					if detail == "" {
						detail = item.ReviewReason
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.SourceID,
						item.Target,
						textutil.StatusLabel(string(item.Status)),
						strconv.Itoa(item.Attempts),
						textutil.TruncateOnWord(detail, 48),
					})
				}
				cmd.Println(renderTable(
					[]string{"ID", "Source", "Target", "Status", "Attempts", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-enqueue failed items at the stage they failed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(store *ledger.Store) error {
				reset, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				cmd.Printf("reset %d item(s) for retry\n", reset)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove terminal items from the ledger",
		Long: "Removes published, rejected, duplicate, and failed items. " +
			"Use --status to clear a subset of those states.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []ledger.Status
			for _, value := range statusFilter {
				status, ok := ledger.ParseStatus(value)
				if !ok || !ledger.IsTerminalStatus(status) {
					return fmt.Errorf("%q is not a terminal status", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(store *ledger.Store) error {
				removed, err := store.ClearTerminal(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				cmd.Printf("removed %d item(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statusFilter, "status", nil,
		"Terminal statuses to clear: "+strings.Join(terminalStatusNames(), ", "))
	return cmd
}

func terminalStatusNames() []string {
	var names []string
	for _, status := range ledger.AllStatuses() {
		if ledger.IsTerminalStatus(status) {
			names = append(names, string(status))
		}
	}
	return names
}
