package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/slotbot/internal/db"
	"github.com/example/slotbot/internal/history"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "history",
		Short: "List recorded bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.setup("")
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("history needs DATABASE_URL")
			}

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			bs, err := history.NewRepo(d).List(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED\tCENTRE\tDATE\tTIME\tREFERENCE")
			for _, b := range bs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.CreatedAt.Format("2006-01-02 15:04"), b.Centre, b.Date, b.Time, b.Reference)
			}
			return w.Flush()
		},
	}

	c.Flags().IntVar(&limit, "limit", 20, "number of bookings to show")
	return c
}
