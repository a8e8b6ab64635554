package store

import (
	"fmt"
	"strings"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

// Tier is one of the three keyword classes of a category.
type Tier int

const (
	Primary Tier = iota
	Secondary
	Phrase
)

// Tiers lists every tier in store order.
var Tiers = []Tier{Primary, Secondary, Phrase}

func (t Tier) String() string {
	switch t {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Phrase:
		return "phrase"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Label is the key that introduces the tier's list in the store file.
func (t Tier) Label() string {
	switch t {
	case Primary:
		return "primaryKeywords"
	case Secondary:
		return "secondaryKeywords"
	case Phrase:
		return "phrases"
	default:
		return ""
	}
}

func tierForLabel(label string) (Tier, bool) {
	for _, t := range Tiers {
		if t.Label() == label {
			return t, true
		}
	}
	return 0, false
}

// CategoryCorpus is the persisted term lists of one category, in file
// order.
type CategoryCorpus struct {
	Name      string
	Primary   []string
	Secondary []string
	Phrases   []string
}

// Terms returns the list for tier t.
func (c CategoryCorpus) Terms(t Tier) []string {
	switch t {
	case Primary:
		return c.Primary
	case Secondary:
		return c.Secondary
	case Phrase:
		return c.Phrases
	default:
		return nil
	}
}

func (c *CategoryCorpus) setTerms(t Tier, terms []string) {
	switch t {
	case Primary:
		c.Primary = terms
	case Secondary:
		c.Secondary = terms
	case Phrase:
		c.Phrases = terms
	}
}

// Has reports whether term is in tier t, ignoring case.
func (c CategoryCorpus) Has(t Tier, term string) bool {
	key := normalize.Fold(term)
	for _, existing := range c.Terms(t) {
		if normalize.Fold(existing) == key {
			return true
		}
	}
	return false
}

// Keys returns the folded comparison keys of the given tiers. With no
// tiers it covers all three.
func (c CategoryCorpus) Keys(tiers ...Tier) map[string]struct{} {
	if len(tiers) == 0 {
		tiers = Tiers
	}
	keys := make(map[string]struct{})
	for _, t := range tiers {
		for _, term := range c.Terms(t) {
			keys[normalize.Fold(term)] = struct{}{}
		}
	}
	return keys
}

// Len returns the number of terms across all tiers.
func (c CategoryCorpus) Len() int {
	return len(c.Primary) + len(c.Secondary) + len(c.Phrases)
}

// Update holds the new terms for one category, per tier.
type Update struct {
	Primary   []string `json:"primary,omitempty" yaml:"primary,omitempty"`
	Secondary []string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
	Phrases   []string `json:"phrases,omitempty" yaml:"phrases,omitempty"`
}

// Terms returns the list for tier t.
func (u Update) Terms(t Tier) []string {
	return CategoryCorpus{Primary: u.Primary, Secondary: u.Secondary, Phrases: u.Phrases}.Terms(t)
}

// Len returns the number of terms across all tiers.
func (u Update) Len() int {
	return len(u.Primary) + len(u.Secondary) + len(u.Phrases)
}

// Warning is a recoverable problem found while parsing or saving. Kind is
// internalerr.ErrCategoryParseIncomplete or internalerr.ErrCategoryNotFound.
type Warning struct {
	Kind     error  `json:"-" yaml:"-"`
	Category string `json:"category" yaml:"category"`
	Tier     string `json:"tier,omitempty" yaml:"tier,omitempty"`
	Detail   string `json:"detail" yaml:"detail"`
}

func (w Warning) Error() string {
	var b strings.Builder
	if w.Kind != nil {
		b.WriteString(w.Kind.Error())
	} else {
		b.WriteString("warning")
	}
	b.WriteString(": ")
	b.WriteString(w.Category)
	if w.Tier != "" {
		b.WriteString("/")
		b.WriteString(w.Tier)
	}
	if w.Detail != "" {
		b.WriteString(": ")
		b.WriteString(w.Detail)
	}
	return b.String()
}

func (w Warning) Unwrap() error {
	return w.Kind
}
