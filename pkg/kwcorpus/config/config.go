package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/filter"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/ingest"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/report"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
)

// EnvPrefix prefixes environment overrides, e.g. KWCORPUS_STORE_PATH.
const EnvPrefix = "KWCORPUS"

// Config is the full pipeline configuration.
type Config struct {
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Samples    SamplesConfig    `mapstructure:"samples" yaml:"samples"`
	Extract    ExtractConfig    `mapstructure:"extract" yaml:"extract"`
	Filter     filter.Policy    `mapstructure:"filter" yaml:"filter"`
	Stopwords  StopwordsConfig  `mapstructure:"stopwords" yaml:"stopwords"`
	Candidates CandidatesConfig `mapstructure:"candidates" yaml:"candidates"`
	Backup     BackupConfig     `mapstructure:"backup" yaml:"backup"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
}

// StoreConfig locates the corpus store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SamplesConfig controls sample loading.
type SamplesConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	Pattern         string `mapstructure:"pattern" yaml:"pattern"`
	DefaultCategory string `mapstructure:"default_category" yaml:"default_category"`
	Concurrency     int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// ExtractConfig controls term extraction.
type ExtractConfig struct {
	MinWordLength  int `mapstructure:"min_word_length" yaml:"min_word_length"`
	PhraseMinWords int `mapstructure:"phrase_min_words" yaml:"phrase_min_words"`
	PhraseMaxWords int `mapstructure:"phrase_max_words" yaml:"phrase_max_words"`
	PhraseMinChars int `mapstructure:"phrase_min_chars" yaml:"phrase_min_chars"`
}

// Options converts to extractor options.
func (e ExtractConfig) Options() ingest.Options {
	return ingest.Options{
		MinLength:      e.MinWordLength,
		MinN:           e.PhraseMinWords,
		MaxN:           e.PhraseMaxWords,
		MinPhraseChars: e.PhraseMinChars,
	}
}

// StopwordsConfig extends the built-in stopwords and tunes suggestions.
type StopwordsConfig struct {
	File          string  `mapstructure:"file" yaml:"file"`
	DFPercent     float64 `mapstructure:"df_percent" yaml:"df_percent"`
	MinCategories int     `mapstructure:"min_categories" yaml:"min_categories"`
}

// Thresholds converts to suggestion thresholds.
func (s StopwordsConfig) Thresholds() stoplist.Thresholds {
	return stoplist.Thresholds{DFPercent: s.DFPercent, MinCategories: s.MinCategories}
}

// CandidatesConfig selects the curated candidate tables.
type CandidatesConfig struct {
	Builtin bool   `mapstructure:"builtin" yaml:"builtin"`
	File    string `mapstructure:"file" yaml:"file"`
}

// BackupConfig controls store backups.
type BackupConfig struct {
	Timestamped bool `mapstructure:"timestamped" yaml:"timestamped"`
}

// ReportConfig controls where reports go.
type ReportConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// HistoryConfig locates the run ledger. An empty path disables it.
type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig locates the Prometheus textfile. An empty path disables it.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// WatchConfig tunes the watch command.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	opts := ingest.DefaultOptions()
	th := stoplist.DefaultThresholds()
	return Config{
		Store:   StoreConfig{Path: "keywordCategories.js"},
		Samples: SamplesConfig{Dir: "samples", Pattern: ingest.DefaultPattern},
		Extract: ExtractConfig{
			MinWordLength:  opts.MinLength,
			PhraseMinWords: opts.MinN,
			PhraseMaxWords: opts.MaxN,
			PhraseMinChars: opts.MinPhraseChars,
		},
		Filter:     filter.DefaultPolicy(),
		Stopwords:  StopwordsConfig{DFPercent: th.DFPercent, MinCategories: th.MinCategories},
		Candidates: CandidatesConfig{Builtin: true},
		Report:     ReportConfig{Dir: "reports", Format: string(report.JSON)},
		Log:        LogConfig{Level: "info", Format: "text"},
		Watch:      WatchConfig{Debounce: 2 * time.Second},
	}
}

// setDefaults registers every key so that environment overrides and
// Unmarshal see it.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"store.path":                 d.Store.Path,
		"samples.dir":                d.Samples.Dir,
		"samples.pattern":            d.Samples.Pattern,
		"samples.default_category":   d.Samples.DefaultCategory,
		"samples.concurrency":        d.Samples.Concurrency,
		"extract.min_word_length":    d.Extract.MinWordLength,
		"extract.phrase_min_words":   d.Extract.PhraseMinWords,
		"extract.phrase_max_words":   d.Extract.PhraseMaxWords,
		"extract.phrase_min_chars":   d.Extract.PhraseMinChars,
		"filter.min_frequency":       d.Filter.MinFrequency,
		"filter.salient_sources":     d.Filter.SalientSources,
		"filter.subject_salient":     d.Filter.SubjectSalient,
		"filter.min_primary_chars":   d.Filter.MinPrimaryChars,
		"filter.min_secondary_chars": d.Filter.MinSecondaryChars,
		"filter.min_phrase_chars":    d.Filter.MinPhraseChars,
		"filter.max_primary":         d.Filter.MaxPrimary,
		"filter.max_secondary":       d.Filter.MaxSecondary,
		"filter.max_phrases":         d.Filter.MaxPhrases,
		"stopwords.file":             d.Stopwords.File,
		"stopwords.df_percent":       d.Stopwords.DFPercent,
		"stopwords.min_categories":   d.Stopwords.MinCategories,
		"candidates.builtin":         d.Candidates.Builtin,
		"candidates.file":            d.Candidates.File,
		"backup.timestamped":         d.Backup.Timestamped,
		"report.dir":                 d.Report.Dir,
		"report.format":              d.Report.Format,
		"history.path":               d.History.Path,
		"metrics.textfile":           d.Metrics.Textfile,
		"log.level":                  d.Log.Level,
		"log.format":                 d.Log.Format,
		"watch.debounce":             d.Watch.Debounce,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the optional config file at path, applies KWCORPUS_*
// environment overrides on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, typically one with
// command-line flags already bound.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", internalerr.ErrInvalidConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Store.Path) != "", "store.path is required")
	check(c.Samples.Concurrency >= 0, "samples.concurrency must not be negative")

	check(c.Extract.MinWordLength >= 1, "extract.min_word_length must be at least 1")
	check(c.Extract.PhraseMinWords >= 2, "extract.phrase_min_words must be at least 2")
	check(c.Extract.PhraseMaxWords >= c.Extract.PhraseMinWords,
		"extract.phrase_max_words (%d) is below phrase_min_words (%d)", c.Extract.PhraseMaxWords, c.Extract.PhraseMinWords)
	check(c.Extract.PhraseMinChars >= 1, "extract.phrase_min_chars must be at least 1")

	f := c.Filter
	for _, p := range []struct {
		name string
		n    int
	}{
		{"filter.min_frequency", f.MinFrequency},
		{"filter.salient_sources", f.SalientSources},
		{"filter.max_primary", f.MaxPrimary},
		{"filter.max_secondary", f.MaxSecondary},
		{"filter.max_phrases", f.MaxPhrases},
		{"filter.min_primary_chars", f.MinPrimaryChars},
		{"filter.min_secondary_chars", f.MinSecondaryChars},
		{"filter.min_phrase_chars", f.MinPhraseChars},
	} {
		check(p.n >= 1, "%s must be at least 1", p.name)
	}

	check(c.Stopwords.DFPercent > 0 && c.Stopwords.DFPercent <= 100,
		"stopwords.df_percent must be in (0, 100]")
	check(c.Stopwords.MinCategories >= 1, "stopwords.min_categories must be at least 1")

	_, err := report.ParseFormat(c.Report.Format)
	check(err == nil, "report.format %q is not json or yaml", c.Report.Format)

	_, err = ParseLevel(c.Log.Level)
	check(err == nil, "log.level %q is not debug, info, warn or error", c.Log.Level)
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q is not text or json", c.Log.Format)
	check(c.Watch.Debounce >= 0, "watch.debounce must not be negative")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, errors.Join(errs...))
}

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stoplist: %v", internalerr.ErrInvalidConfig, err)
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, fmt.Errorf("%w: stoplist %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	return &sl, nil
}
