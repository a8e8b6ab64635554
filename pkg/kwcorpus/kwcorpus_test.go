package kwcorpus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/domain"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/filter"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/history/memstore"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/maintenance"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/metrics"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/report"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

const storePath = "/cfg/keywordCategories.js"

const storeSrc = `// Keyword dictionaries
export const KEYWORD_CATEGORIES = {
  'NPTEL': {
    primaryKeywords: ['nptel', 'course'],
    secondaryKeywords: ['swayam'],
    phrases: []
  },

  'Placement': {
    primaryKeywords: [
      'placement', 'job'
    ],
    secondaryKeywords: ['company'],
    phrases: ['apply now']
  }
};
`

var sampleFiles = map[string]string{
	"/samples/NPTEL/1.json": `{"subject": "Exam registration open", "body": "Exam registration closes soon. Hall ticket download available."}`,
	"/samples/NPTEL/2.txt":  "Exam registration reminder. Hall ticket download link inside.",
	"/samples/Placement/1.eml": "From: tpo@college.edu\r\n" +
		"To: students@college.edu\r\n" +
		"Subject: Campus recruitment drive\r\n" +
		"Date: Mon, 2 Mar 2026 10:00:00 +0530\r\n" +
		"\r\n" +
		"Campus recruitment drive for final year students.\r\n",
	"/samples/Alumni/1.txt": "Alumni meet registration. Alumni meet on Saturday.",
	"/samples/NPTEL/empty.txt": "   ",
}

func setup(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, storePath, []byte(storeSrc), 0o644))
	for path, content := range sampleFiles {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func newPipeline(fs afero.Fs, opts Options) *Pipeline {
	opts.Fs = fs
	opts.StorePath = storePath
	opts.SamplesDir = "/samples"
	if opts.Candidates == nil {
		opts.Candidates = domain.Empty()
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts)
}

func readStore(t *testing.T, fs afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fs, storePath)
	require.NoError(t, err)
	return string(data)
}

func categoryReport(t *testing.T, rep *report.Report, name string) report.Category {
	t.Helper()
	for _, c := range rep.Categories {
		if c.Category == name {
			return c
		}
	}
	t.Fatalf("category %q not in report", name)
	return report.Category{}
}

func hasWarning(rep *report.Report, kind, category string) bool {
	for _, w := range rep.Warnings {
		if w.Kind == kind && w.Category == category {
			return true
		}
	}
	return false
}

func TestAnalyzeLeavesStoreUntouched(t *testing.T) {
	fs := setup(t)
	res, err := newPipeline(fs, Options{ReportDir: "/reports"}).Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, storeSrc, readStore(t, fs))
	assert.Nil(t, res.Merge)
	exists, _ := afero.Exists(fs, storePath+".backup")
	assert.False(t, exists)

	rep := res.Report
	assert.Equal(t, report.Analyze, rep.Mode)
	assert.Equal(t, 4, rep.Samples.Analyzed)
	assert.Equal(t, 1, rep.Samples.Skipped)

	var names []string
	for _, c := range rep.Categories {
		names = append(names, c.Category)
	}
	assert.Equal(t, []string{"NPTEL", "Placement", "Alumni"}, names)

	nptel := categoryReport(t, rep, "NPTEL")
	assert.Equal(t, 2, nptel.Samples)
	assert.Contains(t, nptel.NewPrimary, "exam")
	assert.Contains(t, nptel.NewPrimary, "registration")
	assert.Contains(t, nptel.NewPhrases, "exam registration")
	assert.Contains(t, nptel.NewPhrases, "hall ticket download")
	assert.Equal(t, report.Counts{Primary: 2, Secondary: 1}, nptel.Existing)

	placement := categoryReport(t, rep, "Placement")
	assert.Contains(t, placement.NewPrimary, "recruitment")
	assert.Contains(t, placement.NewPhrases, "campus recruitment drive")

	assert.True(t, hasWarning(rep, "category_not_found", "Alumni"), "%+v", rep.Warnings)
	assert.True(t, hasWarning(rep, "sample_unreadable", ""), "%+v", rep.Warnings)

	exists, err = afero.Exists(fs, "/reports/"+report.FileName(rep.RunID, report.JSON))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/reports/"+report.FileName(rep.RunID, report.JSON), res.ReportPath)
}

func TestMergeAppliesAndIsIdempotent(t *testing.T) {
	fs := setup(t)
	ledger := memstore.New()
	rec := metrics.New()
	p := newPipeline(fs, Options{History: ledger, Metrics: rec})

	res, err := p.Merge(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Merge)
	assert.True(t, res.Merge.Written)
	assert.True(t, res.Report.StoreWritten)
	assert.Equal(t, storePath+".backup", res.Report.BackupPath)
	assert.True(t, hasWarning(res.Report, "category_not_found", "Alumni"))

	backup, err := afero.ReadFile(fs, storePath+".backup")
	require.NoError(t, err)
	assert.Equal(t, storeSrc, string(backup))

	first := readStore(t, fs)
	doc := store.Parse([]byte(first))
	assert.Empty(t, doc.Warnings())
	assert.Equal(t, []string{"NPTEL", "Placement"}, doc.Names())

	nptel, _ := doc.Category("NPTEL")
	assert.Contains(t, nptel.Primary, "exam")
	assert.Contains(t, nptel.Phrases, "exam registration")
	assert.Equal(t, []string{"nptel", "course"}, nptel.Primary[:2], "existing terms keep their order")
	for _, c := range doc.Corpus() {
		assertNoDuplicates(t, c)
	}

	second, err := p.Merge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, readStore(t, fs), "second merge must not change the store")
	assert.Zero(t, categoryReport(t, second.Report, "NPTEL").Counts.Total())
	assert.Zero(t, categoryReport(t, second.Report, "Placement").Counts.Total())
	if second.Merge != nil {
		assert.False(t, second.Merge.Written)
	}

	runs, err := ledger.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	run, ok, err := ledger.GetRun(context.Background(), res.Report.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, run.Terms)
	assert.True(t, run.Written)

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMergeConvergesWhenCapsBind(t *testing.T) {
	fs := setup(t)
	p := newPipeline(fs, Options{Filter: filter.New(filter.Policy{MaxPrimary: 1, MaxSecondary: 1, MaxPhrases: 1})})

	_, err := p.Merge(context.Background())
	require.NoError(t, err)
	first := readStore(t, fs)

	// Terms the caps held back are picked up by the next merge.
	_, err = p.Merge(context.Background())
	require.NoError(t, err)
	prev := readStore(t, fs)
	require.NotEqual(t, first, prev)

	converged := false
	for i := 0; i < 50 && !converged; i++ {
		res, err := p.Merge(context.Background())
		require.NoError(t, err)
		cur := readStore(t, fs)
		if cur == prev {
			converged = true
			assert.Zero(t, categoryReport(t, res.Report, "NPTEL").Counts.Total())
			assert.Zero(t, categoryReport(t, res.Report, "Placement").Counts.Total())
		}
		prev = cur
	}
	require.True(t, converged, "repeated merges must stop changing the store")

	doc := store.Parse([]byte(prev))
	assert.Empty(t, doc.Warnings())
	for _, c := range doc.Corpus() {
		assertNoDuplicates(t, c)
	}
}

func assertNoDuplicates(t *testing.T, c store.CategoryCorpus) {
	t.Helper()
	seen := make(map[string]store.Tier)
	for _, tier := range store.Tiers {
		for _, term := range c.Terms(tier) {
			key := normalize.Fold(term)
			prev, dup := seen[key]
			assert.False(t, dup, "%s: %q in %s and %s", c.Name, term, prev, tier)
			seen[key] = tier
		}
	}
}

func TestMergeWithBuiltinCandidates(t *testing.T) {
	fs := setup(t)
	p := newPipeline(fs, Options{Candidates: domain.Default()})

	res, err := p.Merge(context.Background())
	require.NoError(t, err)

	nptel, _ := store.Parse([]byte(readStore(t, fs))).Category("NPTEL")
	want := domain.Default().Lookup("NPTEL")
	for _, term := range want.Primary {
		if len(term) > 3 {
			assert.True(t, nptel.Has(store.Primary, term) || nptel.Has(store.Secondary, term) || nptel.Has(store.Phrase, term),
				"curated term %q missing", term)
		}
	}
	assertNoDuplicates(t, nptel)
	assert.LessOrEqual(t, categoryReport(t, res.Report, "NPTEL").Counts.Primary, 30)
}

func TestMergeFailsWhenLocked(t *testing.T) {
	fs := setup(t)
	require.NoError(t, afero.WriteFile(fs, maintenance.LockPath(storePath), nil, 0o644))
	ledger := memstore.New()

	_, err := newPipeline(fs, Options{History: ledger}).Merge(context.Background())
	assert.True(t, errors.Is(err, internalerr.ErrLocked), "%v", err)
	assert.True(t, internalerr.IsFatal(err))
	assert.Equal(t, storeSrc, readStore(t, fs))

	runs, _ := ledger.ListRuns(context.Background(), 0)
	assert.Empty(t, runs)
}

func TestRunFailsWithoutStore(t *testing.T) {
	fs := setup(t)
	require.NoError(t, fs.Remove(storePath))

	_, err := newPipeline(fs, Options{}).Analyze(context.Background())
	assert.True(t, errors.Is(err, internalerr.ErrStoreUnavailable))
}

func TestInspect(t *testing.T) {
	doc, err := newPipeline(setup(t), Options{}).Inspect()
	require.NoError(t, err)
	assert.Equal(t, []string{"NPTEL", "Placement"}, doc.Names())
}
