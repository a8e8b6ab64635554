package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
)

// TermStat aggregates one term over the samples of a category.
type TermStat struct {
	Count        int // total occurrences
	Sources      int // distinct samples containing the term
	SubjectCount int // samples whose subject contains the term
}

// CategoryTerms is the extraction output for one category.
type CategoryTerms struct {
	Category string
	Samples  int
	Keywords map[string]TermStat
	Phrases  map[string]TermStat
}

// KeywordFrequencies returns the keyword counts as a plain table.
func (c *CategoryTerms) KeywordFrequencies() Frequencies {
	return frequencies(c.Keywords)
}

// PhraseFrequencies returns the phrase counts as a plain table.
func (c *CategoryTerms) PhraseFrequencies() Frequencies {
	return frequencies(c.Phrases)
}

func frequencies(stats map[string]TermStat) Frequencies {
	out := make(Frequencies, len(stats))
	for term, st := range stats {
		out[term] = st.Count
	}
	return out
}

type docStat struct {
	df   int64
	cats map[string]struct{}
}

// Collector aggregates extraction results per category. Aggregation is
// order independent, so samples may arrive in any order. A Collector is
// not safe for concurrent use.
type Collector struct {
	extractor  *Extractor
	categories map[string]*CategoryTerms
	docFreq    map[string]*docStat
	samples    int
}

// NewCollector creates a collector using ex for extraction.
func NewCollector(ex *Extractor) *Collector {
	return &Collector{
		extractor:  ex,
		categories: make(map[string]*CategoryTerms),
		docFreq:    make(map[string]*docStat),
	}
}

// Add extracts terms from s and folds them into its category.
func (c *Collector) Add(s RawSample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	category := strings.TrimSpace(s.Category)
	if category == "" {
		return fmt.Errorf("%w: sample %q has no category", internalerr.ErrInvalidInput, s.Path)
	}

	text := normalize.NormalizeSentences(s.Text())
	subject := normalize.NormalizeSentences(s.Subject)

	keywords := c.extractor.Keywords(text)
	phrases := c.extractor.Phrases(text)
	subjectTerms := c.extractor.Keywords(subject)
	subjectTerms.Add(c.extractor.Phrases(subject))

	ct, ok := c.categories[category]
	if !ok {
		ct = &CategoryTerms{
			Category: category,
			Keywords: make(map[string]TermStat),
			Phrases:  make(map[string]TermStat),
		}
		c.categories[category] = ct
	}
	ct.Samples++
	c.samples++

	fold(ct.Keywords, keywords, subjectTerms)
	fold(ct.Phrases, phrases, subjectTerms)

	for term := range keywords {
		ds, ok := c.docFreq[term]
		if !ok {
			ds = &docStat{cats: make(map[string]struct{})}
			c.docFreq[term] = ds
		}
		ds.df++
		ds.cats[category] = struct{}{}
	}
	return nil
}

func fold(into map[string]TermStat, freq Frequencies, subject Frequencies) {
	for term, n := range freq {
		st := into[term]
		st.Count += n
		st.Sources++
		if _, ok := subject[term]; ok {
			st.SubjectCount++
		}
		into[term] = st
	}
}

// Samples returns the number of samples added.
func (c *Collector) Samples() int {
	return c.samples
}

// Category returns the terms collected for name.
func (c *Collector) Category(name string) (*CategoryTerms, bool) {
	ct, ok := c.categories[name]
	return ct, ok
}

// Categories returns the names of all categories seen, sorted.
func (c *Collector) Categories() []string {
	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopwordStats returns document-frequency statistics for every keyword,
// suitable for stoplist.Manager.SuggestCandidates.
func (c *Collector) StopwordStats() []stoplist.Stats {
	if c.samples == 0 {
		return nil
	}
	stats := make([]stoplist.Stats, 0, len(c.docFreq))
	for term, ds := range c.docFreq {
		stats = append(stats, stoplist.Stats{
			Token:      term,
			DF:         ds.df,
			DFPercent:  float64(ds.df) * 100 / float64(c.samples),
			Categories: len(ds.cats),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Token < stats[j].Token })
	return stats
}
