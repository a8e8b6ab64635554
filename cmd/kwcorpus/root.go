package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/config"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/history"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/history/sqlite"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/metrics"
)

// Exit codes. Recoverable problems (unparsable categories, unreadable
// samples) are reported, not signalled through the exit status.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// app carries what every subcommand needs. Config and logger are filled
// in by the root command's pre-run hook.
type app struct {
	v       *viper.Viper
	cfgFile string
	fs      afero.Fs
	stdout  io.Writer
	stderr  io.Writer

	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Recorder
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		v:       viper.New(),
		fs:      afero.NewOsFs(),
		stdout:  stdout,
		stderr:  stderr,
		metrics: metrics.New(),
	}
}

func execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(stdout, stderr)
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case internalerr.IsFatal(err):
		return exitFatal
	case errors.Is(err, context.Canceled):
		return exitFatal
	default:
		return exitUsage
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kwcorpus",
		Short: "Keyword corpus maintenance for the mail classifier",
		Long: `kwcorpus learns new keywords and phrases for each mail category from
labelled sample messages.

analyze reports what would be added, merge appends it to the corpus store
after writing and verifying a backup. Running merge twice over the same
samples adds nothing the second time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("store", "", "corpus store file")
	pf.String("samples", "", "directory of labelled sample messages")
	pf.String("pattern", "", "glob selecting sample files, relative to --samples")
	pf.String("category", "", "category for samples that carry none")
	pf.String("candidates", "", "YAML file of curated candidate terms")
	pf.String("stoplist", "", "YAML file of extra stopwords")
	pf.String("report-dir", "", "directory for run reports")
	pf.String("report-format", "", "report format: json or yaml")
	pf.String("history-db", "", "SQLite run ledger (disabled when empty)")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile after each run")

	for key, flag := range map[string]string{
		"log.level":                "log-level",
		"log.format":               "log-format",
		"store.path":               "store",
		"samples.dir":              "samples",
		"samples.pattern":          "pattern",
		"samples.default_category": "category",
		"candidates.file":          "candidates",
		"stopwords.file":           "stoplist",
		"report.dir":               "report-dir",
		"report.format":            "report-format",
		"history.path":             "history-db",
		"metrics.textfile":         "metrics-file",
	} {
		// Lookup cannot miss: every flag is declared above.
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(
		newAnalyzeCmd(a),
		newMergeCmd(a),
		newInspectCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.LoadWith(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(a.stderr, cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// pipeline builds a pipeline from the loaded config. The returned func
// closes the run ledger.
func (a *app) pipeline(ctx context.Context) (*kwcorpus.Pipeline, func(), error) {
	comp, err := (&config.Loader{Config: a.cfg, Logger: a.log}).Load()
	if err != nil {
		return nil, nil, err
	}
	opts, err := kwcorpus.OptionsFromConfig(a.cfg, comp)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)
	}
	opts.Fs = a.fs
	opts.Logger = a.log
	opts.Metrics = a.metrics

	closeFn := func() {}
	if a.cfg.History.Path != "" {
		hs, err := a.openHistory(ctx)
		if err != nil {
			return nil, nil, err
		}
		opts.History = hs
		closeFn = func() {
			if err := hs.Close(); err != nil {
				a.log.Error("close history", "error", err)
			}
		}
	}
	return kwcorpus.New(opts), closeFn, nil
}

func (a *app) openHistory(ctx context.Context) (history.Store, error) {
	if a.cfg.History.Path == "" {
		return nil, fmt.Errorf("%w: history.path is not set (use --history-db)", internalerr.ErrInvalidConfig)
	}
	hs, err := sqlite.Open(ctx, a.cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)
	}
	return hs, nil
}

// flushMetrics writes the metrics textfile if one is configured.
func (a *app) flushMetrics() {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log.Error("write metrics", "path", path, "error", err)
	}
}
