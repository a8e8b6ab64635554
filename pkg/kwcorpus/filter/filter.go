// Package filter decides which candidate terms become new corpus entries.
//
// The engine is pure: it reads extraction results, curated candidates and
// the existing corpus of one category and returns the accepted terms per
// tier. It never touches the store.
package filter

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/domain"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/ingest"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

// Origin tells where a candidate came from.
type Origin int

const (
	Extracted Origin = iota
	Domain
)

func (o Origin) String() string {
	if o == Domain {
		return "domain"
	}
	return "extracted"
}

// MarshalText renders the origin by name in reports.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Candidate is a term proposed for one tier.
type Candidate struct {
	Term         string     `json:"term" yaml:"term"`
	Tier         store.Tier `json:"-" yaml:"-"`
	Count        int        `json:"count" yaml:"count"`
	SourceCount  int        `json:"source_count" yaml:"source_count"`
	SubjectCount int        `json:"subject_count,omitempty" yaml:"subject_count,omitempty"`
	Origin       Origin     `json:"origin" yaml:"origin"`
}

// Reason explains a rejection.
type Reason string

const (
	RejectExisting  Reason = "existing"   // already in the corpus
	RejectDuplicate Reason = "duplicate"  // accepted into another tier this run
	RejectTooShort  Reason = "too_short"  // not longer than the tier minimum
	RejectNotPhrase Reason = "not_phrase" // phrase candidate with a single word
	RejectCapped    Reason = "capped"     // eligible but over the tier cap
)

// Policy holds the acceptance thresholds. Zero integer fields take the
// DefaultPolicy value in New.
type Policy struct {
	MinFrequency      int  `mapstructure:"min_frequency" yaml:"min_frequency"`
	SalientSources    int  `mapstructure:"salient_sources" yaml:"salient_sources"`
	SubjectSalient    bool `mapstructure:"subject_salient" yaml:"subject_salient"`
	MinPrimaryChars   int  `mapstructure:"min_primary_chars" yaml:"min_primary_chars"`
	MinSecondaryChars int  `mapstructure:"min_secondary_chars" yaml:"min_secondary_chars"`
	MinPhraseChars    int  `mapstructure:"min_phrase_chars" yaml:"min_phrase_chars"`
	MaxPrimary        int  `mapstructure:"max_primary" yaml:"max_primary"`
	MaxSecondary      int  `mapstructure:"max_secondary" yaml:"max_secondary"`
	MaxPhrases        int  `mapstructure:"max_phrases" yaml:"max_phrases"`
}

// DefaultPolicy returns the standard thresholds: primary terms longer than
// 3 characters seen at least twice, secondary longer than 2, phrases
// longer than 5, at most 30/40/25 new terms per tier and run.
func DefaultPolicy() Policy {
	return Policy{
		MinFrequency:      2,
		SalientSources:    2,
		SubjectSalient:    true,
		MinPrimaryChars:   3,
		MinSecondaryChars: 2,
		MinPhraseChars:    5,
		MaxPrimary:        30,
		MaxSecondary:      40,
		MaxPhrases:        25,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&p.MinFrequency, d.MinFrequency)
	fill(&p.SalientSources, d.SalientSources)
	fill(&p.MinPrimaryChars, d.MinPrimaryChars)
	fill(&p.MinSecondaryChars, d.MinSecondaryChars)
	fill(&p.MinPhraseChars, d.MinPhraseChars)
	fill(&p.MaxPrimary, d.MaxPrimary)
	fill(&p.MaxSecondary, d.MaxSecondary)
	fill(&p.MaxPhrases, d.MaxPhrases)
	return p
}

// Input is everything the engine knows about one category.
type Input struct {
	Category string
	Terms    *ingest.CategoryTerms // nil when no sample had this category
	Domain   domain.CandidateSet
	Existing store.CategoryCorpus
}

// Result is the outcome for one category.
type Result struct {
	Category  string
	Primary   []string
	Secondary []string
	Phrases   []string
	Accepted  []Candidate
	Rejected  map[Reason]int
}

// Len returns the number of accepted terms.
func (r Result) Len() int {
	return len(r.Primary) + len(r.Secondary) + len(r.Phrases)
}

// Update converts the result into a store update.
func (r Result) Update() store.Update {
	return store.Update{Primary: r.Primary, Secondary: r.Secondary, Phrases: r.Phrases}
}

// Engine applies a Policy. It is stateless and safe for concurrent use.
type Engine struct {
	policy Policy
}

// New creates an engine.
func New(p Policy) *Engine {
	return &Engine{policy: p.withDefaults()}
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Filter runs the acceptance rules for one category:
//
//  1. Every existing term of any tier blocks a candidate, ignoring case.
//  2. Primary takes curated primary candidates and extracted keywords
//     that are frequent or salient.
//  3. Secondary takes curated secondary candidates and the remaining
//     extracted keywords.
//  4. Phrase takes multi-word curated and extracted phrases.
//  5. A term accepted into one tier is not offered to another, and each
//     tier keeps its best candidates up to its cap. Curated candidates
//     rank first, then higher counts, then alphabetical order.
func (e *Engine) Filter(in Input) Result {
	res := Result{Category: in.Category, Rejected: make(map[Reason]int)}
	existing := in.Existing.Keys()
	accepted := make(map[string]struct{})

	var keywords, phrases map[string]ingest.TermStat
	if in.Terms != nil {
		keywords, phrases = in.Terms.Keywords, in.Terms.Phrases
	}

	primary := newPool(store.Primary)
	primary.addDomain(in.Domain.Primary, keywords)
	for term, st := range keywords {
		if e.promotes(st) {
			primary.addExtracted(term, st)
		}
	}
	res.Primary = e.accept(primary, e.policy.MinPrimaryChars, e.policy.MaxPrimary, existing, accepted, &res)

	secondary := newPool(store.Secondary)
	secondary.addDomain(in.Domain.Secondary, keywords)
	for term, st := range keywords {
		if _, done := accepted[normalize.Fold(term)]; !done {
			secondary.addExtracted(term, st)
		}
	}
	res.Secondary = e.accept(secondary, e.policy.MinSecondaryChars, e.policy.MaxSecondary, existing, accepted, &res)

	phrase := newPool(store.Phrase)
	phrase.addDomain(in.Domain.Phrases, phrases)
	for term, st := range phrases {
		phrase.addExtracted(term, st)
	}
	res.Phrases = e.accept(phrase, e.policy.MinPhraseChars, e.policy.MaxPhrases, existing, accepted, &res)

	return res
}

// promotes reports whether an extracted keyword qualifies for primary.
func (e *Engine) promotes(st ingest.TermStat) bool {
	if st.Count >= e.policy.MinFrequency || st.Sources >= e.policy.SalientSources {
		return true
	}
	return e.policy.SubjectSalient && st.SubjectCount > 0
}

func (e *Engine) accept(p *pool, minChars, limit int, existing, accepted map[string]struct{}, res *Result) []string {
	var out []string
	for _, c := range p.ranked() {
		key := normalize.Fold(c.Term)
		reason := Reason("")
		switch {
		case p.tier == store.Phrase && len(strings.Fields(c.Term)) < 2:
			reason = RejectNotPhrase
		case utf8.RuneCountInString(c.Term) <= minChars:
			reason = RejectTooShort
		case has(existing, key):
			reason = RejectExisting
		case has(accepted, key):
			reason = RejectDuplicate
		case len(out) >= limit:
			reason = RejectCapped
		}
		if reason != "" {
			res.Rejected[reason]++
			continue
		}
		accepted[key] = struct{}{}
		out = append(out, c.Term)
		res.Accepted = append(res.Accepted, c)
	}
	return out
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// pool collects the candidates of one tier, merging repeats of the same
// term regardless of case.
type pool struct {
	tier  store.Tier
	byKey map[string]*Candidate
}

func newPool(t store.Tier) *pool {
	return &pool{tier: t, byKey: make(map[string]*Candidate)}
}

func (p *pool) addDomain(terms []string, stats map[string]ingest.TermStat) {
	for _, term := range terms {
		term = strings.Join(strings.Fields(term), " ")
		if term == "" {
			continue
		}
		key := normalize.Fold(term)
		if _, ok := p.byKey[key]; ok {
			continue
		}
		c := &Candidate{Term: term, Tier: p.tier, Origin: Domain}
		if st, ok := stats[strings.ToLower(term)]; ok {
			c.Count, c.SourceCount, c.SubjectCount = st.Count, st.Sources, st.SubjectCount
		}
		p.byKey[key] = c
	}
}

func (p *pool) addExtracted(term string, st ingest.TermStat) {
	key := normalize.Fold(term)
	if _, ok := p.byKey[key]; ok {
		return
	}
	p.byKey[key] = &Candidate{
		Term:         term,
		Tier:         p.tier,
		Count:        st.Count,
		SourceCount:  st.Sources,
		SubjectCount: st.SubjectCount,
		Origin:       Extracted,
	}
}

func (p *pool) ranked() []Candidate {
	out := make([]Candidate, 0, len(p.byKey))
	for _, c := range p.byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Origin != b.Origin {
			return a.Origin == Domain
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Term < b.Term
	})
	return out
}
