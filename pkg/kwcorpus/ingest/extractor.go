package ingest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
)

var sentenceBoundary = regexp.MustCompile(`[.!?\r\n]+`)

// Options controls term extraction. Zero fields take the DefaultOptions
// value.
type Options struct {
	MinLength      int // shortest content token, in runes
	MinN           int // smallest phrase size, in words
	MaxN           int // largest phrase size, in words
	MinPhraseChars int // a phrase must be longer than this many bytes
}

// DefaultOptions returns L=3, phrases of 2..4 words longer than 5 chars.
func DefaultOptions() Options {
	return Options{
		MinLength:      DefaultMinLength,
		MinN:           2,
		MaxN:           4,
		MinPhraseChars: 5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinLength <= 0 {
		o.MinLength = d.MinLength
	}
	if o.MinN <= 0 {
		o.MinN = d.MinN
	}
	if o.MaxN <= 0 {
		o.MaxN = d.MaxN
	}
	if o.MaxN < o.MinN {
		o.MaxN = o.MinN
	}
	if o.MinPhraseChars <= 0 {
		o.MinPhraseChars = d.MinPhraseChars
	}
	return o
}

// Frequencies maps a term to its occurrence count.
type Frequencies map[string]int

// TermCount is one row of a frequency table.
type TermCount struct {
	Term  string
	Count int
}

// Add merges other into f.
func (f Frequencies) Add(other Frequencies) {
	for term, n := range other {
		f[term] += n
	}
}

// Sorted returns the table ordered by count, then term.
func (f Frequencies) Sorted() []TermCount {
	out := make([]TermCount, 0, len(f))
	for term, n := range f {
		out = append(out, TermCount{Term: term, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Extractor produces keyword and phrase frequency tables from normalized
// text. It is safe for concurrent use once built.
type Extractor struct {
	tokenizer *Tokenizer
	opts      Options
}

// NewExtractor builds an extractor over the given stopword set.
func NewExtractor(stops *stoplist.Manager, opts Options) *Extractor {
	opts = opts.withDefaults()
	return &Extractor{
		tokenizer: NewTokenizer(stops, opts.MinLength),
		opts:      opts,
	}
}

// Options returns the effective options.
func (e *Extractor) Options() Options {
	return e.opts
}

// Keywords counts single-word content tokens in text.
func (e *Extractor) Keywords(text string) Frequencies {
	return e.Terms(text, 1, 1)
}

// Phrases counts multi-word phrases of MinN..MaxN words in text.
func (e *Extractor) Phrases(text string) Frequencies {
	return e.Terms(text, e.opts.MinN, e.opts.MaxN)
}

// Terms counts every n-gram of minN..maxN words. N-grams are built inside
// one sentence only. The first and last word of an n-gram must be content
// tokens; inner words may be stopwords, so "registration is open" is
// kept verbatim while "is open" is not. Multi-word terms must also be
// longer than MinPhraseChars.
func (e *Extractor) Terms(text string, minN, maxN int) Frequencies {
	freq := make(Frequencies)
	if strings.TrimSpace(text) == "" || minN <= 0 || maxN < minN {
		return freq
	}

	for _, sentence := range sentenceBoundary.Split(text, -1) {
		words := e.tokenizer.Words(sentence)
		for n := minN; n <= maxN; n++ {
			for i := 0; i+n <= len(words); i++ {
				if term, ok := e.ngram(words[i : i+n]); ok {
					freq[term]++
				}
			}
		}
	}
	return freq
}

func (e *Extractor) ngram(words []string) (string, bool) {
	for _, w := range words {
		if w == "" {
			return "", false
		}
	}
	if !e.tokenizer.IsContent(words[0]) || !e.tokenizer.IsContent(words[len(words)-1]) {
		return "", false
	}
	if len(words) == 1 {
		return words[0], true
	}
	term := strings.Join(words, " ")
	if len(term) <= e.opts.MinPhraseChars {
		return "", false
	}
	return term, true
}
