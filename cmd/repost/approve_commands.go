package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"repost/internal/ledger"
	"repost/internal/textutil"
)

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <token>",
		Short: "Approve a pending review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveReview(ctx, cmd, args[0], true, "")
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <token>",
		Short: "Reject a pending review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveReview(ctx, cmd, args[0], false, reason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the item was rejected")
	return cmd
}

// resolveReview prefers the daemon API so a running daemon publishes promptly,
// and falls back to the ledger when the daemon is down. The decision is
// transactional either way; the first resolution for a token wins.
func resolveReview(ctx *commandContext, cmd *cobra.Command, token string, approved bool, reason string) error {
	resolvedBy := os.Getenv("USER")
	if resolvedBy == "" {
		resolvedBy = "cli"
	}

	payload := map[string]any{
		"token":       token,
		"approved":    approved,
		"resolved_by": resolvedBy,
		"reason":      reason,
	}
	err := ctx.apiRequest(http.MethodPost, "/api/resolve", payload, nil)
	if err == nil {
		printDecision(cmd, approved, token)
		return nil
	}
	if !errors.Is(err, errDaemonUnreachable) {
		return err
	}

	return ctx.withStore(func(store *ledger.Store) error {
		item, err := store.ResolveApproval(cmd.Context(), token, approved, resolvedBy, reason)
		if err != nil {
			return err
		}
		printDecision(cmd, approved, token)
		cmd.Printf("item %d is now %s\n", item.ID, textutil.StatusLabel(string(item.Status)))
		return nil
	})
}

func printDecision(cmd *cobra.Command, approved bool, token string) {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	cmd.Printf("%s review %s\n", verdict, token)
}

func newReviewsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reviews",
		Short: "List pending reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				approvals, err := store.ListPendingApprovals(cmd.Context())
				if err != nil {
					return err
				}
				if len(approvals) == 0 {
					cmd.Println("no pending reviews")
					return nil
				}
				rows := make([][]string, 0, len(approvals))
				for _, approval := range approvals {
					caption := ""
					if item, err := store.GetByID(cmd.Context(), approval.ItemID); err == nil && item != nil {
						caption = textutil.TruncateOnWord(item.Caption, 48)
					}
					rows = append(rows, []string{
						approval.Token,
						approval.RequestedAt.Local().Format("2006-01-02 15:04"),
						caption,
					})
				}
				cmd.Println(renderTable(
					[]string{"Token", "Requested", "Caption"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
