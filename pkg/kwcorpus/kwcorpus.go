// Package kwcorpus maintains the keyword corpus of a rule-based email
// classifier. A run loads the corpus store and a directory of labelled
// sample messages, extracts candidate keywords and phrases per category,
// filters them against what the corpus already holds and either reports
// the result (analyze) or appends it to the store (merge).
package kwcorpus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/config"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/domain"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/filter"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/history"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/ingest"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/maintenance"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/metrics"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/report"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

// Options configures a Pipeline. Only StorePath and SamplesDir are
// required; nil components fall back to their defaults.
type Options struct {
	Fs              afero.Fs
	StorePath       string
	SamplesDir      string
	Pattern         string
	DefaultCategory string
	Concurrency     int

	Stoplist           *stoplist.Manager
	Extractor          *ingest.Extractor
	Candidates         *domain.Table
	Filter             *filter.Engine
	StopwordThresholds stoplist.Thresholds

	TimestampedBackup bool
	ReportDir         string // empty skips writing the report file
	ReportFormat      report.Format

	History history.Store
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// OptionsFromConfig combines a config with the components built from it.
func OptionsFromConfig(cfg *config.Config, comp *config.Components) (Options, error) {
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return Options{}, err
	}
	return Options{
		StorePath:          cfg.Store.Path,
		SamplesDir:         cfg.Samples.Dir,
		Pattern:            cfg.Samples.Pattern,
		DefaultCategory:    cfg.Samples.DefaultCategory,
		Concurrency:        cfg.Samples.Concurrency,
		Stoplist:           comp.Stoplist,
		Extractor:          comp.Extractor,
		Candidates:         comp.Candidates,
		Filter:             comp.Filter,
		StopwordThresholds: cfg.Stopwords.Thresholds(),
		TimestampedBackup:  cfg.Backup.Timestamped,
		ReportDir:          cfg.Report.Dir,
		ReportFormat:       format,
	}, nil
}

// Pipeline runs analyze and merge passes over one store.
type Pipeline struct {
	opts  Options
	store *store.Store
	log   *slog.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stoplist == nil {
		opts.Stoplist = stoplist.NewEnglish()
	}
	if opts.Extractor == nil {
		opts.Extractor = ingest.NewExtractor(opts.Stoplist, ingest.DefaultOptions())
	}
	if opts.Candidates == nil {
		opts.Candidates = domain.Default()
	}
	if opts.Filter == nil {
		opts.Filter = filter.New(filter.DefaultPolicy())
	}
	if opts.ReportFormat == "" {
		opts.ReportFormat = report.JSON
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{opts: opts, store: store.New(opts.Fs, opts.StorePath), log: log}
}

// Result is the outcome of a run.
type Result struct {
	Report     *report.Report
	ReportPath string
	Updates    map[string]store.Update
	Merge      *maintenance.Result // nil for analyze runs
}

// Inspect loads the store without changing it.
func (p *Pipeline) Inspect() (*store.Document, error) {
	return p.store.Load()
}

// Analyze computes the new terms for every category and reports them
// without touching the store.
func (p *Pipeline) Analyze(ctx context.Context) (*Result, error) {
	return p.run(ctx, report.Analyze)
}

// Merge computes the new terms and appends them to the store, after a
// verified backup. Running Merge again with the same samples adds nothing.
func (p *Pipeline) Merge(ctx context.Context) (*Result, error) {
	return p.run(ctx, report.Merge)
}

func (p *Pipeline) run(ctx context.Context, mode report.Mode) (res *Result, err error) {
	start := time.Now()
	runID := history.NewID()
	log := p.log.With("run", runID, "mode", string(mode))
	defer func() {
		if err != nil {
			p.opts.Metrics.RunFailed(mode, time.Since(start), err)
		}
	}()

	doc, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	for _, w := range doc.Warnings() {
		log.Warn("store category incomplete", "category", w.Category, "tier", w.Tier, "error", w.Error())
	}
	p.opts.Metrics.SetStoreSize(len(doc.Bytes()))

	samples, stats, err := ingest.LoadDir(ctx, p.opts.Fs, p.opts.SamplesDir, ingest.LoadOptions{
		Pattern:         p.opts.Pattern,
		DefaultCategory: p.opts.DefaultCategory,
		Concurrency:     p.opts.Concurrency,
		Logger:          log,
	})
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}

	collector := ingest.NewCollector(p.opts.Extractor)
	for _, s := range samples {
		if err := collector.Add(s); err != nil {
			log.Warn("sample skipped", "path", s.Path, "error", err)
		}
	}
	log.Info("samples analyzed",
		"files", stats.Files,
		"analyzed", collector.Samples(),
		"skipped", stats.Skipped+len(samples)-collector.Samples())

	rep := report.New(runID, mode, p.store.Path())
	rep.Samples = report.SamplesFrom(stats, collector.Samples())
	rep.AddStoreWarnings(doc.Warnings())
	rep.AddLoadFailures(stats.Failures)

	updates := make(map[string]store.Update)
	for _, name := range categories(doc, collector) {
		corpus, _ := doc.Category(name)
		terms := termsFor(collector, name)
		in := filter.Input{
			Category: name,
			Terms:    terms,
			Domain:   p.opts.Candidates.Lookup(name),
			Existing: corpus,
		}
		out := p.opts.Filter.Filter(in)
		samplesSeen := 0
		if terms != nil {
			samplesSeen = terms.Samples
		}
		rep.AddCategory(out, corpus, samplesSeen)
		if out.Len() > 0 {
			updates[name] = out.Update()
		}
		log.Debug("category filtered",
			"category", name,
			"primary", len(out.Primary),
			"secondary", len(out.Secondary),
			"phrases", len(out.Phrases))
	}
	rep.StopwordCandidates = p.opts.Stoplist.SuggestCandidates(collector.StopwordStats(), p.opts.StopwordThresholds)

	res = &Result{Report: rep, Updates: updates}
	switch {
	case mode == report.Analyze:
		// Show what a merge would drop.
		_, dropped := doc.Save(updates)
		rep.AddStoreWarnings(dropped)
	case len(updates) == 0:
		log.Info("nothing to merge")
	default:
		w := maintenance.NewWriter(p.store, maintenance.Options{
			Timestamped: p.opts.TimestampedBackup,
			RunID:       runID,
			Logger:      log,
		})
		mres, err := w.Merge(ctx, doc, updates)
		if err != nil {
			return nil, err
		}
		res.Merge = &mres
		rep.BackupPath = mres.BackupPath
		rep.StoreWritten = mres.Written
		rep.AddStoreWarnings(mres.Warnings)
		p.opts.Metrics.SetStoreSize(mres.BytesAfter)
	}

	if p.opts.ReportDir != "" {
		path, err := rep.Write(p.opts.Fs, p.opts.ReportDir, p.opts.ReportFormat)
		if err != nil {
			// The store is already final; a missing report is not worth failing for.
			log.Error("write report", "error", err)
		} else {
			res.ReportPath = path
			log.Info("report written", "path", path)
		}
	}
	if p.opts.History != nil {
		if err := p.opts.History.RecordRun(ctx, history.FromReport(rep)); err != nil {
			log.Error("record run", "error", err)
		}
	}
	p.opts.Metrics.ObserveReport(rep, time.Since(start))

	log.Info("run finished",
		"new_primary", rep.Totals.Primary,
		"new_secondary", rep.Totals.Secondary,
		"new_phrases", rep.Totals.Phrases,
		"warnings", len(rep.Warnings),
		"took", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// categories returns the store categories in file order followed by
// sample categories the store does not know, sorted.
func categories(doc *store.Document, c *ingest.Collector) []string {
	names := doc.Names()
	var extra []string
	for _, name := range c.Categories() {
		if _, ok := doc.Category(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// termsFor finds the sample terms of a store category, matching the name
// exactly first and then ignoring case.
func termsFor(c *ingest.Collector, name string) *ingest.CategoryTerms {
	if ct, ok := c.Category(name); ok {
		return ct
	}
	key := normalize.Fold(name)
	for _, other := range c.Categories() {
		if normalize.Fold(other) == key {
			ct, _ := c.Category(other)
			return ct
		}
	}
	return nil
}
