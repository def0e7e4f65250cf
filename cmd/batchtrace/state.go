package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devblac/batchtrace/internal/config"
	"github.com/devblac/batchtrace/internal/storage"
)

var flagReset string

func init() {
	stateCmd.Flags().StringVar(&flagReset, "reset", "", "Delete the checkpoint of the named job")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show backfill checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if flagReset != "" {
			removed, err := store.DeleteCheckpoint(ctx, flagReset)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no checkpoint for job %s", flagReset)
			}
			fmt.Fprintf(out, "checkpoint %s removed\n", flagReset)
			return nil
		}

		cps, err := store.ListCheckpoints(ctx)
		if err != nil {
			return err
		}
		if len(cps) == 0 {
			fmt.Fprintln(out, "no checkpoints")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "JOB\tNEXT\tTO\tREMAINING\tUPDATED")
		for _, cp := range cps {
			remaining := uint64(0)
			if !cp.Done() {
				remaining = cp.To - cp.Next + 1
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", cp.Job, cp.Next, cp.To, remaining, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}
