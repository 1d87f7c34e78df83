package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxhq/replx/internal/history"
)

func historyCommand() *cobra.Command {
	var limit int
	var dsn string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = history.DefaultDSN()
			}
			rec, err := history.Open(dsn, false)
			if err != nil {
				return err
			}
			defer rec.Close()

			runs, err := rec.Recent(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No recorded runs.")
				return nil
			}

			for _, r := range runs {
				status := green.Sprint(r.Status)
				if r.Status != "completed" {
					status = red.Sprint(r.Status)
				}
				fmt.Printf("%s  %s  %s  mode=%s  %d ok / %d failed / %d skipped\n",
					r.StartedAt.Format(time.RFC3339), status, r.ScanRoot, r.Mode,
					r.Completed, r.Failed, r.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list.")
	cmd.Flags().StringVar(&dsn, "dsn", "", "History database (file path or libsql URL).")
	return cmd
}
