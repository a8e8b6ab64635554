package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

// DefaultPattern matches every file below the samples root.
const DefaultPattern = "**/*"

// LoadOptions controls LoadDir.
type LoadOptions struct {
	// Pattern is a doublestar glob matched against slash-separated paths
	// relative to the root. Empty means DefaultPattern.
	Pattern string
	// DefaultCategory labels samples that carry no category and sit
	// directly in the root.
	DefaultCategory string
	// Concurrency bounds parallel file reads; <= 0 uses GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
}

// LoadFailure records one file or sample that could not be used.
type LoadFailure struct {
	Path string
	Err  error
}

// LoadStats summarizes a LoadDir call. Every recovered problem leaves a
// count here.
type LoadStats struct {
	Files     int   // files matched by the pattern
	Ignored   int   // matched files with an unsupported extension
	Loaded    int   // samples returned
	Skipped   int   // samples or files dropped for any reason
	Unlabeled int   // samples with no category
	Malformed int   // malformed JSONL lines
	Bytes     int64 // bytes read
	Failures  []LoadFailure
}

type fileResult struct {
	path      string
	samples   []RawSample
	malformed int
	size      int64
	err       error
}

// LoadDir loads every sample file under root that matches opts.Pattern.
// Files are read in parallel; the result is sorted by path so a run does
// not depend on scheduling. Unreadable files and samples are skipped and
// reported in LoadStats with ErrSampleUnreadable. Only a missing root, a bad
// pattern or a cancelled context return an error.
func LoadDir(ctx context.Context, fsys afero.Fs, root string, opts LoadOptions) ([]RawSample, LoadStats, error) {
	var stats LoadStats
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, stats, fmt.Errorf("%w: bad sample pattern %q", internalerr.ErrInvalidInput, pattern)
	}

	info, err := fsys.Stat(root)
	if err != nil {
		return nil, stats, fmt.Errorf("samples dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("%w: samples path %s is not a directory", internalerr.ErrInvalidInput, root)
	}

	var paths []string
	err = afero.Walk(fsys, root, func(path string, fi fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			stats.Failures = append(stats.Failures, LoadFailure{Path: path, Err: unreadable(walkErr)})
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			if path != root && strings.HasPrefix(fi.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := relPath(root, path)
		if err != nil {
			return err
		}
		ok, err := doublestar.Match(pattern, rel)
		if err != nil || !ok {
			return err
		}
		stats.Files++
		if !Supported(rel) {
			stats.Ignored++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk samples %s: %w", root, err)
	}
	stats.Skipped += len(stats.Failures)

	results := make([]fileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = loadFile(fsys, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	var samples []RawSample
	for _, res := range results {
		stats.Bytes += res.size
		stats.Malformed += res.malformed
		stats.Skipped += res.malformed
		if res.err != nil {
			stats.Skipped++
			stats.Failures = append(stats.Failures, LoadFailure{Path: res.path, Err: res.err})
			logger.Warn("skipping sample file", "path", res.path, "error", res.err)
			continue
		}
		if res.malformed > 0 {
			logger.Warn("skipped malformed lines", "path", res.path, "lines", res.malformed)
		}

		rel, _ := relPath(root, res.path)
		for _, s := range res.samples {
			s.Path = rel
			if err := s.Validate(); err != nil {
				stats.Skipped++
				stats.Failures = append(stats.Failures, LoadFailure{Path: rel, Err: err})
				logger.Warn("skipping empty sample", "path", rel)
				continue
			}
			s.Category = strings.TrimSpace(s.Category)
			if s.Category == "" {
				s.Category = categoryFromPath(rel, opts.DefaultCategory)
			}
			if s.Category == "" {
				stats.Skipped++
				stats.Unlabeled++
				logger.Debug("skipping unlabeled sample", "path", rel)
				continue
			}
			samples = append(samples, s)
		}
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Path < samples[j].Path })
	stats.Loaded = len(samples)
	return samples, stats, nil
}

func loadFile(fsys afero.Fs, path string) fileResult {
	res := fileResult{path: path}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		res.err = unreadable(err)
		return res
	}
	res.size = int64(len(data))
	samples, malformed, err := ParseFile(path, data)
	res.malformed = malformed
	if err != nil {
		res.err = unreadable(err)
		return res
	}
	res.samples = samples
	return res
}

func unreadable(err error) error {
	if errors.Is(err, internalerr.ErrSampleUnreadable) {
		return err
	}
	return fmt.Errorf("%w: %w", internalerr.ErrSampleUnreadable, err)
}

func relPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// categoryFromPath uses the first directory under the root as the label,
// so samples/NPTEL/1.eml belongs to NPTEL.
func categoryFromPath(rel, fallback string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return fallback
}
