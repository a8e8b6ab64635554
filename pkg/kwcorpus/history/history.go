// Package history keeps a ledger of pipeline runs and the terms each run
// accepted, so a reviewer can tell when and why a term entered the corpus.
package history

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/report"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

// Store is the main interface for persisting runs.
type Store interface {
	Close() error

	// RecordRun inserts a run, replacing any run with the same ID.
	RecordRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	// ListRuns returns runs newest first. k <= 0 means 20.
	ListRuns(ctx context.Context, k int) ([]Run, error)
	// FindTerm returns every recorded acceptance of term, ignoring case,
	// newest first.
	FindTerm(ctx context.Context, term string) ([]TermRecord, error)
}

// Run is one analyze or merge run.
type Run struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	StorePath  string
	BackupPath string
	Written    bool
	Samples    int
	Warnings   int
	Terms      []Term
}

// Term is a term accepted by a run.
type Term struct {
	Category string
	Tier     string
	Term     string
}

// TermRecord ties a term to the run that accepted it.
type TermRecord struct {
	RunID     string
	Mode      string
	StartedAt time.Time
	Term
}

// DefaultLimit is the number of runs ListRuns returns when none is given.
const DefaultLimit = 20

// NewID returns a fresh, time-ordered run ID.
func NewID() string {
	return ulid.Make().String()
}

// FromReport converts a finished report into a ledger entry.
func FromReport(r *report.Report) Run {
	run := Run{
		ID:         r.RunID,
		Mode:       string(r.Mode),
		StartedAt:  r.GeneratedAt,
		StorePath:  r.StorePath,
		BackupPath: r.BackupPath,
		Written:    r.StoreWritten,
		Samples:    r.Samples.Analyzed,
		Warnings:   len(r.Warnings),
	}
	for _, c := range r.Categories {
		for _, tl := range []struct {
			tier  store.Tier
			terms []string
		}{
			{store.Primary, c.NewPrimary},
			{store.Secondary, c.NewSecondary},
			{store.Phrase, c.NewPhrases},
		} {
			for _, term := range tl.terms {
				run.Terms = append(run.Terms, Term{Category: c.Category, Tier: tl.tier.String(), Term: term})
			}
		}
	}
	return run
}
