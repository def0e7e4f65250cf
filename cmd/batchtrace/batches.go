package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devblac/batchtrace/internal/paginate"
)

var (
	flagPage     int
	flagPageSize int
	flagJSON     bool
)

func init() {
	batchesCmd.Flags().IntVar(&flagPage, "page", 1, "Page number (1-indexed)")
	batchesCmd.Flags().IntVar(&flagPageSize, "size", paginate.DefaultPageSize, "Batches per page")
	batchesCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the page as JSON")
}

var batchesCmd = &cobra.Command{
	Use:   "batches [id]",
	Short: "List batches, or show one batch with its events",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			b, err := a.service.Batch(ctx, args[0])
			if err != nil {
				return err
			}
			evs, err := a.service.BatchEvents(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			recs := make([]record, 0, len(evs))
			for _, ev := range evs {
				recs = append(recs, eventRecord(ev))
			}
			return enc.Encode(map[string]any{"batch": b, "events": recs})
		}

		page, err := a.service.BatchesPage(ctx, paginate.Request{Page: flagPage, PageSize: flagPageSize})
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(page)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCREATOR\tCOMPLETED\tCREATED")
		for _, b := range page.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", b.ID, b.Name, b.Creator, b.Completed, b.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "page %d of %d (%d batches)\n", page.Page, page.TotalPages, page.TotalItems)
		return nil
	},
}
