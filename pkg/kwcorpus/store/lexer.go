package store

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokString tokenKind = iota
	tokIdent
	tokPunct
	tokRegex
	tokBad // unterminated or interpolated string literal
	tokOther
)

// token is one lexical element of the store file. start and end are byte
// offsets into the source; for strings text holds the decoded value.
type token struct {
	kind       tokenKind
	start, end int
	text       string
	quote      byte
}

func (t token) is(punct byte) bool {
	return t.kind == tokPunct && len(t.text) == 1 && t.text[0] == punct
}

const punctChars = "{}[]():,;=!&|?+-*%<>~^."

// lex splits a JS-like source into tokens. Whitespace and comments are
// dropped. It never fails: malformed literals become tokBad and lexing
// resumes at the next line.
func lex(src []byte) []token {
	var toks []token
	prev := func() *token {
		if len(toks) == 0 {
			return nil
		}
		return &toks[len(toks)-1]
	}

	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			if end := strings.Index(string(src[i+2:]), "*/"); end >= 0 {
				i += end + 4
			} else {
				i = len(src)
			}
		case c == '\'' || c == '"' || c == '`':
			tok := lexString(src, i)
			toks = append(toks, tok)
			i = tok.end
		case c == '/' && regexAllowed(prev()):
			end := skipRegex(src, i)
			toks = append(toks, token{kind: tokRegex, start: i, end: end, text: string(src[i:end])})
			i = end
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && (isIdentPart(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokOther, start: i, end: j, text: string(src[i:j])})
			i = j
		case strings.IndexByte(punctChars, c) >= 0:
			toks = append(toks, token{kind: tokPunct, start: i, end: i + 1, text: string(c)})
			i++
		default:
			r, size := utf8.DecodeRune(src[i:])
			if !isIdentStart(r) {
				toks = append(toks, token{kind: tokOther, start: i, end: i + size, text: string(src[i : i+size])})
				i += size
				continue
			}
			j := i + size
			for j < len(src) {
				r, size := utf8.DecodeRune(src[j:])
				if !isIdentPart(r) {
					break
				}
				j += size
			}
			toks = append(toks, token{kind: tokIdent, start: i, end: j, text: string(src[i:j])})
			i = j
		}
	}
	return toks
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// regexAllowed decides whether a slash starts a regular expression literal
// rather than a division, from the token before it.
func regexAllowed(prev *token) bool {
	if prev == nil {
		return true
	}
	switch prev.kind {
	case tokPunct:
		return !prev.is(')') && !prev.is(']')
	case tokIdent:
		switch prev.text {
		case "return", "typeof", "case", "in", "of", "new", "delete", "void":
			return true
		}
	}
	return false
}

func skipRegex(src []byte, i int) int {
	j := i + 1
	inClass := false
	for j < len(src) && src[j] != '\n' {
		switch src[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				j++
				for j < len(src) && isIdentPart(rune(src[j])) {
					j++
				}
				return j
			}
		}
		j++
	}
	if j > len(src) {
		j = len(src)
	}
	return j
}

// lexString reads a quoted literal starting at src[i] and decodes its
// escapes. Single and double quoted strings may not contain a raw line
// break; template literals may, but interpolation makes them unusable as
// terms.
func lexString(src []byte, i int) token {
	q := src[i]
	tok := token{kind: tokString, start: i, quote: q}
	var b strings.Builder
	j := i + 1
	for {
		if j >= len(src) {
			tok.kind = tokBad
			tok.end = len(src)
			return tok
		}
		c := src[j]
		switch {
		case c == q:
			tok.end = j + 1
			tok.text = b.String()
			return tok
		case c == '\n' && q != '`':
			tok.kind = tokBad
			tok.end = j
			return tok
		case c == '$' && q == '`' && j+1 < len(src) && src[j+1] == '{':
			tok.kind = tokBad
			b.WriteByte(c)
			j++
		case c == '\\':
			j = decodeEscape(src, j, &b)
		default:
			b.WriteByte(c)
			j++
		}
	}
}

// decodeEscape handles the escape sequence at src[j] (a backslash) and
// returns the offset after it.
func decodeEscape(src []byte, j int, b *strings.Builder) int {
	if j+1 >= len(src) {
		return j + 1
	}
	c := src[j+1]
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case '\n':
		// line continuation
	case '\r':
		if j+2 < len(src) && src[j+2] == '\n' {
			return j + 3
		}
	case 'x':
		if r, ok := hexRune(src, j+2, 2); ok {
			b.WriteRune(r)
			return j + 4
		}
		b.WriteByte(c)
	case 'u':
		if j+2 < len(src) && src[j+2] == '{' {
			if end := strings.IndexByte(string(src[j+3:]), '}'); end > 0 {
				if r, ok := hexRune(src, j+3, end); ok {
					b.WriteRune(r)
					return j + 4 + end
				}
			}
		} else if r, ok := hexRune(src, j+2, 4); ok {
			b.WriteRune(r)
			return j + 6
		}
		b.WriteByte(c)
	default:
		r, size := utf8.DecodeRune(src[j+1:])
		b.WriteRune(r)
		return j + 1 + size
	}
	return j + 2
}

func hexRune(src []byte, start, n int) (rune, bool) {
	if start+n > len(src) {
		return 0, false
	}
	v, err := strconv.ParseUint(string(src[start:start+n]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// quoteJS renders s as a JS string literal using quote q.
func quoteJS(s string, q byte) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r == rune(q) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
