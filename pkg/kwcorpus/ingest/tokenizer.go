package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/stoplist"
)

// DefaultMinLength is the shortest token the extractor keeps.
const DefaultMinLength = 3

// Tokenizer splits normalized text into words and decides which of them
// are content tokens.
type Tokenizer struct {
	stops     *stoplist.Manager
	minLength int
}

// NewTokenizer creates a tokenizer with the given stopword set. A nil
// manager means no stopwords; minLength <= 0 selects DefaultMinLength.
func NewTokenizer(stops *stoplist.Manager, minLength int) *Tokenizer {
	if stops == nil {
		stops = stoplist.NewManager(nil)
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Tokenizer{stops: stops, minLength: minLength}
}

// Words splits text on whitespace and hyphens and lowercases the pieces.
// Pieces that are not purely alphabetic are returned as "" so n-grams
// never bridge over a number or a symbol.
func (t *Tokenizer) Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
	for i, f := range fields {
		if isAlphabetic(f) {
			fields[i] = strings.ToLower(f)
		} else {
			fields[i] = ""
		}
	}
	return fields
}

// Tokenize returns the content tokens of text in order.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	for _, w := range t.Words(text) {
		if t.IsContent(w) {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// IsContent reports whether word is alphabetic, at least minLength runes
// long and not a stopword.
func (t *Tokenizer) IsContent(word string) bool {
	if word == "" || utf8.RuneCountInString(word) < t.minLength {
		return false
	}
	return !t.stops.IsStop(word)
}

// IsStopword reports whether word is in the stopword set.
func (t *Tokenizer) IsStopword(word string) bool {
	return t.stops.IsStop(word)
}

func isAlphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
