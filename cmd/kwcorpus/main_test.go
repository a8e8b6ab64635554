package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

const storeSrc = `export const KEYWORD_CATEGORIES = {
  'NPTEL': {
    primaryKeywords: ['nptel', 'course'],
    secondaryKeywords: ['swayam'],
    phrases: []
  },
  'Placement': {
    primaryKeywords: ['placement', 'job'],
    secondaryKeywords: ['company'],
    phrases: ['apply now']
  }
};
`

type env struct {
	dir     string
	store   string
	samples string
	reports string
	config  string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:     dir,
		store:   filepath.Join(dir, "keywordCategories.js"),
		samples: filepath.Join(dir, "samples"),
		reports: filepath.Join(dir, "reports"),
		config:  filepath.Join(dir, "kwcorpus.yaml"),
	}
	write := func(path, content string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(e.store, storeSrc)
	write(filepath.Join(e.samples, "NPTEL", "1.txt"), "Exam registration closes soon. Hall ticket download available.")
	write(filepath.Join(e.samples, "NPTEL", "2.txt"), "Exam registration reminder. Hall ticket download link inside.")
	write(filepath.Join(e.samples, "Placement", "1.txt"), "Campus recruitment drive. Campus recruitment drive for final year students.")
	write(e.config, "candidates:\n  builtin: false\nlog:\n  level: error\n")
	return e
}

func (e env) args(extra ...string) []string {
	return append([]string{
		"--config", e.config,
		"--store", e.store,
		"--samples", e.samples,
		"--report-dir", e.reports,
	}, extra...)
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestAnalyze(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(e.args("analyze")...)
	require.Equal(t, exitOK, code, errOut)

	assert.Contains(t, out, "(analyze)")
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "NPTEL")
	assert.Contains(t, out, "samples: 3 analyzed")
	assert.Contains(t, out, "report: "+e.reports)
	assert.NotContains(t, out, "backup:")
	assert.Equal(t, storeSrc, readFile(t, e.store))

	entries, err := os.ReadDir(e.reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "keyword_report_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".json"))
}

func TestMergeDryRunIsAnalyze(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(e.args("merge", "--dry-run", "--report-format", "yaml")...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "(analyze)")
	assert.Equal(t, storeSrc, readFile(t, e.store))

	entries, err := os.ReadDir(e.reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".yaml"))
}

func TestMergeThenHistory(t *testing.T) {
	e := newEnv(t)
	db := filepath.Join(e.dir, "history.db")
	metricsFile := filepath.Join(e.dir, "kwcorpus.prom")

	code, out, errOut := run(e.args("merge", "--history-db", db, "--metrics-file", metricsFile)...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "(merge)")
	assert.Contains(t, out, "backup: "+e.store+".backup")
	assert.Contains(t, out, "store updated")

	merged := readFile(t, e.store)
	assert.Contains(t, merged, "'exam registration'")
	assert.Equal(t, storeSrc, readFile(t, e.store+".backup"))
	assert.Contains(t, readFile(t, metricsFile), `kwcorpus_runs_total{mode="merge",outcome="ok"} 1`)

	// A second merge over the same samples finds nothing new.
	code, out, errOut = run(e.args("merge", "--history-db", db)...)
	require.Equal(t, exitOK, code, errOut)
	assert.NotContains(t, out, "store updated")
	assert.Equal(t, merged, readFile(t, e.store))

	code, out, errOut = run(e.args("history", "list", "--history-db", db)...)
	require.Equal(t, exitOK, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	firstRun := strings.Fields(lines[2])[0]

	code, out, errOut = run(e.args("history", "show", firstRun, "--history-db", db)...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "run:      "+firstRun)
	assert.Contains(t, out, "written:  true")
	assert.Contains(t, out, "exam registration")

	code, out, errOut = run(e.args("history", "term", "EXAM REGISTRATION", "--history-db", db)...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, firstRun)
	assert.Contains(t, out, "NPTEL")

	code, _, errOut = run(e.args("history", "show", "01NOSUCHRUN", "--history-db", db)...)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "not found")
}

func TestInspect(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(e.args("inspect")...)
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "2 categories")
	assert.Regexp(t, `NPTEL\s+2\s+1\s+0`, out)
	assert.Regexp(t, `Placement\s+2\s+1\s+1`, out)
	assert.NotContains(t, out, "warning:")
}

func TestExitCodes(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name    string
		prepare func(t *testing.T)
		args    []string
		want    int
		errText string
	}{
		{
			name: "missing store",
			args: []string{"--config", e.config, "--store", filepath.Join(e.dir, "none.js"), "--samples", e.samples, "analyze"},
			want: exitFatal,
		},
		{
			name: "store locked",
			prepare: func(t *testing.T) {
				require.NoError(t, os.WriteFile(e.store+".lock", []byte("123"), 0o644))
				t.Cleanup(func() { os.Remove(e.store + ".lock") })
			},
			args:    e.args("merge"),
			want:    exitFatal,
			errText: "locked",
		},
		{
			name:    "bad report format",
			args:    e.args("analyze", "--report-format", "xml"),
			want:    exitFatal,
			errText: "invalid configuration",
		},
		{
			name:    "history without ledger",
			args:    e.args("history", "list"),
			want:    exitFatal,
			errText: "history.path",
		},
		{
			name: "missing argument",
			args: e.args("history", "show"),
			want: exitUsage,
		},
		{
			name: "unknown command",
			args: e.args("frobnicate"),
			want: exitUsage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare(t)
			}
			code, _, errOut := run(tt.args...)
			assert.Equal(t, tt.want, code, errOut)
			assert.Contains(t, errOut, tt.errText)
		})
	}
	assert.Equal(t, storeSrc, readFile(t, e.store))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFatal, exitCode(fmt.Errorf("merge: %w", internalerr.ErrBackupFailed)))
	assert.Equal(t, exitFatal, exitCode(internalerr.ErrStoreChanged))
	assert.Equal(t, exitUsage, exitCode(errors.New("unknown flag")))
}
