// Package report builds the extraction report written after every run for
// human review. Nothing in the pipeline reads a report back.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/filter"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/ingest"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

// Format is the report encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: unknown report format %q", internalerr.ErrInvalidInput, s)
}

// Mode tells whether the run changed the store.
type Mode string

const (
	Analyze Mode = "analyze"
	Merge   Mode = "merge"
)

// Counts holds one number per tier.
type Counts struct {
	Primary   int `json:"primary" yaml:"primary"`
	Secondary int `json:"secondary" yaml:"secondary"`
	Phrases   int `json:"phrases" yaml:"phrases"`
}

// Total sums the tiers.
func (c Counts) Total() int {
	return c.Primary + c.Secondary + c.Phrases
}

func (c *Counts) add(o Counts) {
	c.Primary += o.Primary
	c.Secondary += o.Secondary
	c.Phrases += o.Phrases
}

// Samples summarizes sample loading.
type Samples struct {
	Files     int   `json:"files" yaml:"files"`
	Analyzed  int   `json:"analyzed" yaml:"analyzed"`
	Skipped   int   `json:"skipped" yaml:"skipped"`
	Unlabeled int   `json:"unlabeled" yaml:"unlabeled"`
	Malformed int   `json:"malformed_lines" yaml:"malformed_lines"`
	Failed    int   `json:"failed" yaml:"failed"`
	Bytes     int64 `json:"bytes" yaml:"bytes"`
}

// SamplesFrom converts loader statistics. analyzed is the number of
// samples the extractor accepted.
func SamplesFrom(st ingest.LoadStats, analyzed int) Samples {
	return Samples{
		Files:     st.Files,
		Analyzed:  analyzed,
		Skipped:   st.Skipped + (st.Loaded - analyzed),
		Unlabeled: st.Unlabeled,
		Malformed: st.Malformed,
		Failed:    len(st.Failures),
		Bytes:     st.Bytes,
	}
}

// Category is the outcome for one category.
type Category struct {
	Category     string                `json:"category" yaml:"category"`
	Samples      int                   `json:"samples" yaml:"samples"`
	Existing     Counts                `json:"existing_keywords_count" yaml:"existing_keywords_count"`
	NewPrimary   []string              `json:"new_primary_keywords" yaml:"new_primary_keywords"`
	NewSecondary []string              `json:"new_secondary_keywords" yaml:"new_secondary_keywords"`
	NewPhrases   []string              `json:"new_phrases" yaml:"new_phrases"`
	Counts       Counts                `json:"counts" yaml:"counts"`
	Rejected     map[filter.Reason]int `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	Accepted     []filter.Candidate    `json:"accepted,omitempty" yaml:"accepted,omitempty"`
}

// Warning is a recovered problem, flattened for encoding.
type Warning struct {
	Kind     string `json:"kind" yaml:"kind"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Tier     string `json:"tier,omitempty" yaml:"tier,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Detail   string `json:"detail" yaml:"detail"`
}

// Report is the audit record of one run.
type Report struct {
	RunID              string               `json:"run_id" yaml:"run_id"`
	Mode               Mode                 `json:"mode" yaml:"mode"`
	GeneratedAt        time.Time            `json:"generated_at" yaml:"generated_at"`
	StorePath          string               `json:"store_path" yaml:"store_path"`
	BackupPath         string               `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	StoreWritten       bool                 `json:"store_written" yaml:"store_written"`
	Samples            Samples              `json:"samples" yaml:"samples"`
	Categories         []Category           `json:"categories" yaml:"categories"`
	Totals             Counts               `json:"totals" yaml:"totals"`
	Warnings           []Warning            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	StopwordCandidates []stoplist.Candidate `json:"stopword_candidates,omitempty" yaml:"stopword_candidates,omitempty"`
}

// New starts a report.
func New(runID string, mode Mode, storePath string) *Report {
	return &Report{
		RunID:       runID,
		Mode:        mode,
		GeneratedAt: time.Now().UTC(),
		StorePath:   storePath,
		Categories:  []Category{},
	}
}

// AddCategory records the filter result of one category.
func (r *Report) AddCategory(res filter.Result, existing store.CategoryCorpus, samples int) {
	c := Category{
		Category: res.Category,
		Samples:  samples,
		Existing: Counts{
			Primary:   len(existing.Primary),
			Secondary: len(existing.Secondary),
			Phrases:   len(existing.Phrases),
		},
		NewPrimary:   nonNil(res.Primary),
		NewSecondary: nonNil(res.Secondary),
		NewPhrases:   nonNil(res.Phrases),
		Counts: Counts{
			Primary:   len(res.Primary),
			Secondary: len(res.Secondary),
			Phrases:   len(res.Phrases),
		},
		Accepted: res.Accepted,
	}
	if len(res.Rejected) > 0 {
		c.Rejected = res.Rejected
	}
	r.Categories = append(r.Categories, c)
	r.Totals.add(c.Counts)
}

// AddStoreWarnings records parse or merge warnings.
func (r *Report) AddStoreWarnings(ws []store.Warning) {
	for _, w := range ws {
		r.Warnings = append(r.Warnings, Warning{
			Kind:     kindOf(w.Kind),
			Category: w.Category,
			Tier:     w.Tier,
			Detail:   w.Detail,
		})
	}
}

// AddLoadFailures records samples that could not be read.
func (r *Report) AddLoadFailures(fs []ingest.LoadFailure) {
	for _, f := range fs {
		r.Warnings = append(r.Warnings, Warning{
			Kind:   kindOf(internalerr.ErrSampleUnreadable),
			Path:   f.Path,
			Detail: f.Err.Error(),
		})
	}
}

func kindOf(err error) string {
	if err == nil {
		return "warning"
	}
	return strings.ReplaceAll(err.Error(), " ", "_")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Encode writes the report to w.
func (r *Report) Encode(w io.Writer, f Format) error {
	switch f {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown report format %q", internalerr.ErrInvalidInput, f)
}

// FileName returns keyword_report_<runID>.<ext>.
func FileName(runID string, f Format) string {
	if f == "" {
		f = JSON
	}
	return fmt.Sprintf("keyword_report_%s.%s", runID, f)
}

// Write stores the report in dir and returns the file path.
func (r *Report) Write(fs afero.Fs, dir string, f Format) (string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(r.RunID, f))
	file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := r.Encode(file, f); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}
