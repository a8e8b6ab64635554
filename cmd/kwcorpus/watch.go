package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run analyze whenever the samples or the store change",
		Long: `watch runs analyze once and then again each time files under the
samples directory or the store file change. It never merges.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, closeFn, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := watch.Options{
				Dirs:     []string{a.cfg.Samples.Dir},
				Files:    []string{a.cfg.Store.Path},
				Debounce: a.cfg.Watch.Debounce,
				Logger:   a.log,
			}
			if a.cfg.Report.Dir != "" {
				opts.Ignore = []string{a.cfg.Report.Dir}
			}
			w, err := watch.New(opts)
			if err != nil {
				return err
			}
			defer w.Close()

			a.log.Info("watching", "samples", a.cfg.Samples.Dir, "store", a.cfg.Store.Path)
			return w.Run(ctx, func(ctx context.Context) error {
				defer a.flushMetrics()
				res, err := p.Analyze(ctx)
				if err != nil {
					return err
				}
				printSummary(a.stdout, res)
				return nil
			})
		},
	}
}
