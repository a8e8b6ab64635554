package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/domain"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/filter"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/ingest"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
)

// Loader loads the referenced files and constructs components
type Loader struct {
	Config *Config
	Logger *slog.Logger
}

// Components holds the pipeline building blocks derived from a Config.
type Components struct {
	Stoplist   *stoplist.Manager
	Extractor  *ingest.Extractor
	Candidates *domain.Table
	Filter     *filter.Engine
}

// Load reads the stoplist and candidate files and returns initialized
// components.
func (l *Loader) Load() (*Components, error) {
	cfg := l.Config
	if cfg == nil {
		d := Default()
		cfg = &d
	}
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	comp := &Components{}

	comp.Stoplist = stoplist.NewEnglish()
	if cfg.Stopwords.File != "" {
		sl, err := LoadStoplist(cfg.Stopwords.File)
		if err != nil {
			return nil, configErr("load stoplist", err)
		}
		comp.Stoplist.AddConfigured(sl.Terms)
		log.Debug("stoplist loaded", "path", cfg.Stopwords.File, "terms", len(sl.Terms))
	}
	comp.Extractor = ingest.NewExtractor(comp.Stoplist, cfg.Extract.Options())

	if cfg.Candidates.Builtin {
		comp.Candidates = domain.Default()
	}
	if cfg.Candidates.File != "" {
		t, err := domain.LoadFile(cfg.Candidates.File)
		if err != nil {
			return nil, configErr("load candidates", err)
		}
		// Curated file entries rank after the built-in ones.
		comp.Candidates = comp.Candidates.Merge(t)
		log.Debug("candidates loaded", "path", cfg.Candidates.File, "categories", len(t.Categories()))
	}
	if comp.Candidates == nil {
		comp.Candidates = domain.Empty()
	}

	comp.Filter = filter.New(cfg.Filter)
	return comp, nil
}

// configErr marks a failure to load a referenced file as a config error.
func configErr(what string, err error) error {
	if errors.Is(err, internalerr.ErrInvalidConfig) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, what, err)
}
