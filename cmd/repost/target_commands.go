package main

import (
	"github.com/spf13/cobra"

	"repost/internal/ledger"
)

func newTargetCommand(ctx *commandContext) *cobra.Command {
	targetCmd := &cobra.Command{
		Use:   "target",
		Short: "Manage ingest targets",
	}

	targetCmd.AddCommand(&cobra.Command{
		Use:   "add <handle>",
		Short: "Add a target to sweep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				target, err := store.AddTarget(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				cmd.Printf("added target %s\n", target.Handle)
				return nil
			})
		},
	})

	targetCmd.AddCommand(&cobra.Command{
		Use:   "remove <handle>",
		Short: "Remove a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				removed, err := store.RemoveTarget(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					cmd.Printf("target %s not found\n", args[0])
					return nil
				}
				cmd.Printf("removed target %s\n", args[0])
				return nil
			})
		},
	})

	var disable bool
	enableCmd := &cobra.Command{
		Use:   "enable <handle>",
		Short: "Enable or disable a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				if err := store.SetTargetEnabled(cmd.Context(), args[0], !disable); err != nil {
					return err
				}
				state := "enabled"
				if disable {
					state = "disabled"
				}
				cmd.Printf("target %s %s\n", args[0], state)
				return nil
			})
		},
	}
	enableCmd.Flags().BoolVar(&disable, "off", false, "Disable instead of enable")
	targetCmd.AddCommand(enableCmd)

	targetCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				targets, err := store.ListTargets(cmd.Context(), false)
				if err != nil {
					return err
				}
				if len(targets) == 0 {
					cmd.Println("no targets configured")
					return nil
				}
				rows := make([][]string, 0, len(targets))
				for _, target := range targets {
					lastSweep := "never"
					if target.LastSweepAt != nil {
						lastSweep = target.LastSweepAt.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{target.Handle, yesNo(target.Enabled), lastSweep})
				}
				cmd.Println(renderTable(
					[]string{"Handle", "Enabled", "Last Sweep"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	})

	return targetCmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
