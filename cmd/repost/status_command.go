package main

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"repost/internal/daemon"
	"repost/internal/ledger"
	"repost/internal/textutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemon.Status
			err := ctx.apiRequest(http.MethodGet, "/api/status", nil, &status)
			if err == nil {
				printDaemonStatus(cmd, status)
				return nil
			}
			if !errors.Is(err, errDaemonUnreachable) {
				return err
			}

			// Daemon is down; report queue counts straight from the ledger.
			cmd.Println("daemon: not running")
			return ctx.withStore(func(store *ledger.Store) error {
				counts, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Println(renderCounts(counts))
				return nil
			})
		},
	}
}

func printDaemonStatus(cmd *cobra.Command, status daemon.Status) {
	cmd.Printf("daemon: running (worker %s)\n", status.Workflow.Worker)
	cmd.Printf("ledger: %s\n", status.LedgerPath)
	if len(status.Workflow.PublishWindows) > 0 {
		state := "closed"
		if status.Workflow.WindowOpen {
			state = "open"
		}
		cmd.Printf("publish window: %s (next %s)\n", state, status.Workflow.NextWindow.Format("15:04"))
	}
	if status.Workflow.LastError != "" {
		cmd.Printf("last error: %s\n", status.Workflow.LastError)
	}
	cmd.Println(renderCounts(status.Workflow.Counts))
}

func renderCounts(counts map[ledger.Status]int) string {
	rows := make([][]string, 0, len(counts))
	for _, status := range ledger.AllStatuses() {
		count := counts[status]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{textutil.StatusLabel(string(status)), strconv.Itoa(count)})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	if len(rows) == 0 {
		return "queue is empty"
	}
	return renderTable([]string{"Status", "Items"}, rows, []columnAlignment{alignLeft, alignRight})
}
