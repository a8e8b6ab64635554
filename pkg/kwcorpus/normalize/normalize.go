// Package normalize cleans raw message text before term extraction.
//
// All functions are pure and accept the empty string.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	emailPattern = regexp.MustCompile(`\S+@\S+`)
	urlPattern   = regexp.MustCompile(`(?i)(?:https?://|ftp://|www\.)\S+`)

	// A sentence ends at terminal punctuation followed by whitespace or end
	// of text, or at a line break. "nptel.ac.in" stays in one piece.
	sentencePattern = regexp.MustCompile(`[.!?]+(?:\s+|$)|\r?\n`)
)

// Normalize lowercases text, removes email-address-like and URL-like
// tokens, collapses non-word punctuation to single spaces and trims the
// result.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	return clean(stripAddresses(norm.NFKC.String(text)))
}

// Sentences splits text on sentence-terminal punctuation and line breaks
// and normalizes every piece. Empty sentences are dropped.
func Sentences(text string) []string {
	if text == "" {
		return nil
	}
	text = stripAddresses(norm.NFKC.String(text))

	var out []string
	for _, part := range sentencePattern.Split(text, -1) {
		if s := clean(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeSentences returns the normalized sentences of text joined by
// line breaks, so downstream splitting still sees sentence boundaries.
func NormalizeSentences(text string) string {
	return strings.Join(Sentences(text), "\n")
}

// Fold returns the comparison key used for case-insensitive term
// matching. Two terms are the same term when their keys are equal.
func Fold(term string) string {
	term = strings.Join(strings.Fields(norm.NFKC.String(term)), " ")
	return cases.Fold().String(term)
}

func stripAddresses(text string) string {
	// URLs first: "https://user@host/x" would otherwise be cut in half.
	text = urlPattern.ReplaceAllString(text, " ")
	return emailPattern.ReplaceAllString(text, " ")
}

func clean(text string) string {
	text = cases.Lower(language.Und).String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	for i, f := range fields {
		fields[i] = strings.Trim(f, "-")
	}
	return strings.Join(strings.Fields(strings.Join(fields, " ")), " ")
}
