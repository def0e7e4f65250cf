package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/batchtrace/internal/blockrange"
	"github.com/devblac/batchtrace/internal/config"
)

var (
	flagFrom   string
	flagTo     string
	flagChunk  uint64
	flagJob    string
	flagResume bool
)

func init() {
	backfillCmd.Flags().StringVar(&flagFrom, "from", "0", "First block")
	backfillCmd.Flags().StringVar(&flagTo, "to", "latest", "Last block (inclusive) or latest")
	backfillCmd.Flags().Uint64Var(&flagChunk, "chunk", 0, "Blocks per query (default from config)")
	backfillCmd.Flags().StringVar(&flagJob, "job", "default", "Checkpoint name for this backfill")
	backfillCmd.Flags().BoolVar(&flagResume, "resume", true, "Resume after the job's last checkpoint")
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Sync historical contract events in chunks, with checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := blockrange.ParseBlock(flagFrom)
		if err != nil || from == blockrange.Latest {
			return fmt.Errorf("invalid --from %q", flagFrom)
		}
		to, err := blockrange.ParseBlock(flagTo)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, nil, func(c *config.Config) {
			if flagChunk > 0 {
				c.Sync.ChunkSize = flagChunk
			}
		})
		if err != nil {
			return err
		}
		defer a.Close()
		log := a.log.With("job", flagJob)

		if !flagResume {
			if _, err := a.store.DeleteCheckpoint(ctx, flagJob); err != nil {
				return err
			}
		}

		rep, err := a.service.Backfill(ctx, flagJob, from, to, func(done, total int) {
			log.Info("chunk synced", "done", done, "total", total)
		})
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backfill %s: blocks %d-%d, %d chunks, %d events, next block %d\n",
			flagJob, rep.From, rep.To, len(rep.Completed), len(rep.Events), rep.Next)
		if err != nil {
			return fmt.Errorf("backfill stopped at block %d: %w", rep.Next, err)
		}
		return nil
	},
}
