package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the categories and tier sizes of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := store.New(a.fs, a.cfg.Store.Path).Load()
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "%s (%s, %d categories)\n",
				a.cfg.Store.Path, humanize.Bytes(uint64(len(doc.Bytes()))), len(doc.Names()))
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tPRIMARY\tSECONDARY\tPHRASES")
			for _, name := range doc.Names() {
				c, _ := doc.Category(name)
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", name, len(c.Primary), len(c.Secondary), len(c.Phrases))
			}
			tw.Flush()
			for _, w := range doc.Warnings() {
				fmt.Fprintf(a.stdout, "warning: %v\n", w)
			}
			return nil
		},
	}
}
