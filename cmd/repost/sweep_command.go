package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Ask the daemon to sweep targets for new posts now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Triggered bool `json:"triggered"`
			}
			err := ctx.apiRequest(http.MethodPost, "/api/sweep", nil, &result)
			if errors.Is(err, errDaemonUnreachable) {
				return errors.New("daemon is not running; start it with 'repost run'")
			}
			if err != nil {
				return err
			}
			if result.Triggered {
				cmd.Println("sweep triggered")
			} else {
				cmd.Println("sweep already queued")
			}
			return nil
		},
	}
}
