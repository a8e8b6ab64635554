package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Report new terms without touching the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd.Context(), false)
		},
	}
}

func newMergeCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Back up the store and append new terms to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd.Context(), !dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze only, same as the analyze command")
	cmd.Flags().Bool("timestamped-backup", false, "name the backup <store>.<run id>.backup")
	_ = a.v.BindPFlag("backup.timestamped", cmd.Flags().Lookup("timestamped-backup"))
	return cmd
}

func (a *app) runOnce(ctx context.Context, merge bool) error {
	p, closeFn, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	defer a.flushMetrics()

	var res *kwcorpus.Result
	if merge {
		res, err = p.Merge(ctx)
	} else {
		res, err = p.Analyze(ctx)
	}
	if err != nil {
		return err
	}
	printSummary(a.stdout, res)
	return nil
}

func printSummary(w io.Writer, res *kwcorpus.Result) {
	rep := res.Report
	fmt.Fprintf(w, "run %s (%s)\n", rep.RunID, rep.Mode)
	fmt.Fprintf(w, "samples: %d analyzed, %d skipped, %d failed, %s read\n",
		rep.Samples.Analyzed, rep.Samples.Skipped, rep.Samples.Failed, humanize.Bytes(uint64(rep.Samples.Bytes)))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSAMPLES\tPRIMARY\tSECONDARY\tPHRASES")
	for _, c := range rep.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", c.Category, c.Samples, c.Counts.Primary, c.Counts.Secondary, c.Counts.Phrases)
	}
	fmt.Fprintf(tw, "total\t\t%d\t%d\t%d\n", rep.Totals.Primary, rep.Totals.Secondary, rep.Totals.Phrases)
	tw.Flush()

	for _, warn := range rep.Warnings {
		where := warn.Category
		if warn.Path != "" {
			where = warn.Path
		}
		fmt.Fprintf(w, "warning: %s %s: %s\n", strings.ReplaceAll(warn.Kind, "_", " "), where, warn.Detail)
	}
	if len(rep.StopwordCandidates) > 0 {
		terms := make([]string, len(rep.StopwordCandidates))
		for i, c := range rep.StopwordCandidates {
			terms[i] = c.Token
		}
		fmt.Fprintf(w, "stopword candidates: %s\n", strings.Join(terms, ", "))
	}

	if m := res.Merge; m != nil {
		fmt.Fprintf(w, "backup: %s\n", m.BackupPath)
		if m.Written {
			fmt.Fprintf(w, "store updated: %s -> %s\n", humanize.Bytes(uint64(m.BytesBefore)), humanize.Bytes(uint64(m.BytesAfter)))
		} else {
			fmt.Fprintln(w, "store unchanged")
		}
	}
	if res.ReportPath != "" {
		fmt.Fprintf(w, "report: %s\n", res.ReportPath)
	}
}
