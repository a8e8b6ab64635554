// Package maintenance applies accepted terms to the corpus store.
//
// A merge takes the store lock, checks that the file still matches the
// document the terms were filtered against, writes a verified backup and
// only then replaces the store. The replacement is a rename of a fully
// written temp file, so a failure at any step leaves the store as it was.
package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

// Options tunes a Writer.
type Options struct {
	// Timestamped names backups <store>.<id>.backup instead of
	// overwriting a single <store>.backup.
	Timestamped bool
	// RunID names timestamped backups. A fresh ULID is used when empty.
	RunID  string
	Logger *slog.Logger
}

// Result summarizes a merge.
type Result struct {
	BackupPath  string
	Written     bool
	BytesBefore int
	BytesAfter  int
	Warnings    []store.Warning
}

// Writer merges updates into one store.
type Writer struct {
	store *store.Store
	opts  Options
	log   *slog.Logger
}

// NewWriter creates a writer for st.
func NewWriter(st *store.Store, opts Options) *Writer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Writer{store: st, opts: opts, log: log}
}

// BackupPath returns where the next backup will be written.
func (w *Writer) BackupPath() string {
	if !w.opts.Timestamped {
		return w.store.Path() + ".backup"
	}
	id := w.opts.RunID
	if id == "" {
		id = ulid.Make().String()
	}
	return fmt.Sprintf("%s.%s.backup", w.store.Path(), id)
}

// Merge writes updates into the store. snapshot is the document the
// updates were computed from; if the file no longer matches it the merge
// fails with ErrStoreChanged. Categories or tiers that cannot take their
// updates are returned as warnings and the rest still apply.
//
// When no update changes the text the store is left alone, so running
// the same merge twice is a no-op the second time.
func (w *Writer) Merge(ctx context.Context, snapshot *store.Document, updates map[string]store.Update) (Result, error) {
	var res Result
	if snapshot == nil {
		return res, fmt.Errorf("merge: %w: nil snapshot", internalerr.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	unlock, err := w.lock()
	if err != nil {
		return res, err
	}
	defer unlock()

	current, err := w.store.Read()
	if err != nil {
		return res, err
	}
	if !bytes.Equal(current, snapshot.Bytes()) {
		return res, fmt.Errorf("merge %s: %w", w.store.Path(), internalerr.ErrStoreChanged)
	}
	res.BytesBefore = len(current)

	res.BackupPath = w.BackupPath()
	if err := w.backup(res.BackupPath, current); err != nil {
		return res, err
	}
	w.log.Info("store backed up",
		"path", res.BackupPath,
		"size", humanize.Bytes(uint64(len(current))))

	out, warnings := snapshot.Save(updates)
	res.Warnings = warnings
	res.BytesAfter = len(out)
	for _, warn := range warnings {
		w.log.Warn("update dropped", "category", warn.Category, "tier", warn.Tier, "error", warn.Error())
	}
	if bytes.Equal(out, current) {
		w.log.Info("store unchanged", "path", w.store.Path())
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := w.replace(out); err != nil {
		return res, err
	}
	res.Written = true
	w.log.Info("store updated",
		"path", w.store.Path(),
		"before", humanize.Bytes(uint64(res.BytesBefore)),
		"after", humanize.Bytes(uint64(res.BytesAfter)))
	return res, nil
}
