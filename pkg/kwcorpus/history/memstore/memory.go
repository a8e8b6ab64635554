package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/history"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

// Store is an in-memory implementation of history.Store for tests.
type Store struct {
	mu   sync.RWMutex
	runs map[string]history.Run
}

// New creates a new in-memory ledger.
func New() *Store {
	return &Store{runs: make(map[string]history.Run)}
}

// Close implements history.Store.
func (s *Store) Close() error { return nil }

// RecordRun inserts or replaces a run, keyed by ID.
func (s *Store) RecordRun(ctx context.Context, r history.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (history.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return history.Run{}, false, nil
	}
	return copyRun(r), true, nil
}

// ListRuns returns runs newest first, without terms.
func (s *Store) ListRuns(ctx context.Context, k int) ([]history.Run, error) {
	if k <= 0 {
		k = history.DefaultLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.sorted()
	if len(runs) > k {
		runs = runs[:k]
	}
	for i := range runs {
		runs[i].Terms = nil
	}
	return runs, nil
}

// FindTerm returns every run that accepted term.
func (s *Store) FindTerm(ctx context.Context, term string) ([]history.TermRecord, error) {
	key := normalize.Fold(term)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []history.TermRecord
	for _, r := range s.sorted() {
		for _, t := range r.Terms {
			if normalize.Fold(t.Term) == key {
				out = append(out, history.TermRecord{RunID: r.ID, Mode: r.Mode, StartedAt: r.StartedAt, Term: t})
			}
		}
	}
	return out, nil
}

func (s *Store) sorted() []history.Run {
	runs := make([]history.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	return runs
}

func copyRun(r history.Run) history.Run {
	if r.Terms != nil {
		r.Terms = append([]history.Term(nil), r.Terms...)
	}
	return r
}
