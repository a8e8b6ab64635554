package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse the run ledger",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			runs, err := hs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tSAMPLES\tTERMS\tWRITTEN")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n",
					r.ID, r.Mode, humanize.Time(r.StartedAt), r.Samples, len(r.Terms), r.Written)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "number of runs to show (default 20)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and the terms it accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			r, ok, err := hs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("run %s: %w", args[0], internalerr.ErrNotFound)
			}
			fmt.Fprintf(a.stdout, "run:      %s\n", r.ID)
			fmt.Fprintf(a.stdout, "mode:     %s\n", r.Mode)
			fmt.Fprintf(a.stdout, "started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(a.stdout, "store:    %s\n", r.StorePath)
			if r.BackupPath != "" {
				fmt.Fprintf(a.stdout, "backup:   %s\n", r.BackupPath)
			}
			fmt.Fprintf(a.stdout, "written:  %t\n", r.Written)
			fmt.Fprintf(a.stdout, "samples:  %d\n", r.Samples)
			fmt.Fprintf(a.stdout, "warnings: %d\n", r.Warnings)

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tTIER\tTERM")
			for _, t := range r.Terms {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Category, t.Tier, t.Term)
			}
			return tw.Flush()
		},
	}

	term := &cobra.Command{
		Use:   "term <term>",
		Short: "Show which runs accepted a term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer hs.Close()

			recs, err := hs.FindTerm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintf(a.stdout, "%q was never accepted\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tCATEGORY\tTIER\tTERM")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.RunID, rec.Mode, humanize.Time(rec.StartedAt), rec.Category, rec.Tier, rec.Term.Term)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(list, show, term)
	return cmd
}
