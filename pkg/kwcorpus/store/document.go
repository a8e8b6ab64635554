package store

import (
	"bytes"
	"fmt"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

// Document is a parsed store file. It keeps the original bytes and the
// location of every tier list so that Save can splice new terms in
// without touching anything else.
type Document struct {
	src      []byte
	blocks   []*block
	byName   map[string]*block
	byFold   map[string]*block
	warnings []Warning
	newline  string
	quote    byte
}

type block struct {
	corpus CategoryCorpus
	tiers  [3]*tierList // nil when the tier is missing or malformed
}

type tierList struct {
	open, close int // offsets of '[' and ']'
	labelIndent string
	items       []item
}

type item struct {
	start, end int
	quote      byte
}

// Parse reads a store file. It never fails: a category whose tier cannot
// be parsed gets an empty list for that tier and a warning, and the other
// categories are unaffected.
func Parse(src []byte) *Document {
	d := &Document{
		src:     src,
		byName:  make(map[string]*block),
		byFold:  make(map[string]*block),
		newline: "\n",
	}
	if bytes.Contains(src, []byte("\r\n")) {
		d.newline = "\r\n"
	}

	p := newParser(src, lex(src))
	for _, cat := range p.categories() {
		if name := p.toks[cat].text; d.byName[name] != nil {
			d.warnings = append(d.warnings, Warning{
				Kind:     internalerr.ErrCategoryParseIncomplete,
				Category: name,
				Detail:   "duplicate category block ignored",
			})
			continue
		}
		b := p.parseCategory(cat, &d.warnings)
		d.blocks = append(d.blocks, b)
		d.byName[b.corpus.Name] = b
		if _, ok := d.byFold[normalize.Fold(b.corpus.Name)]; !ok {
			d.byFold[normalize.Fold(b.corpus.Name)] = b
		}
	}
	d.quote = d.dominantQuote()
	return d
}

// Bytes returns the source the document was parsed from.
func (d *Document) Bytes() []byte {
	return d.src
}

// Warnings returns the problems found while parsing.
func (d *Document) Warnings() []Warning {
	return append([]Warning(nil), d.warnings...)
}

// Names returns the category names in file order.
func (d *Document) Names() []string {
	names := make([]string, len(d.blocks))
	for i, b := range d.blocks {
		names[i] = b.corpus.Name
	}
	return names
}

// Category returns the corpus of the named category. An exact match is
// preferred; otherwise the name is matched ignoring case.
func (d *Document) Category(name string) (CategoryCorpus, bool) {
	b := d.lookup(name)
	if b == nil {
		return CategoryCorpus{}, false
	}
	return b.corpus, true
}

// Corpus returns every category keyed by name.
func (d *Document) Corpus() map[string]CategoryCorpus {
	out := make(map[string]CategoryCorpus, len(d.blocks))
	for _, b := range d.blocks {
		out[b.corpus.Name] = b.corpus
	}
	return out
}

func (d *Document) lookup(name string) *block {
	if b, ok := d.byName[name]; ok {
		return b
	}
	return d.byFold[normalize.Fold(name)]
}

func (d *Document) dominantQuote() byte {
	counts := map[byte]int{}
	for _, b := range d.blocks {
		for _, tl := range b.tiers {
			if tl == nil {
				continue
			}
			for _, it := range tl.items {
				counts[it.quote]++
			}
		}
	}
	if counts['"'] > counts['\''] {
		return '"'
	}
	return '\''
}

// parser walks the token stream with precomputed bracket structure.
type parser struct {
	src    []byte
	toks   []token
	match  []int // index of the matching bracket token, -1 if none
	parent []int // index of the innermost enclosing open bracket, -1 at top level
}

func newParser(src []byte, toks []token) *parser {
	p := &parser{
		src:    src,
		toks:   toks,
		match:  make([]int, len(toks)),
		parent: make([]int, len(toks)),
	}
	var stack []int
	for i, tok := range toks {
		p.match[i] = -1
		switch {
		case isOpen(tok):
			stack = append(stack, i)
		case isClose(tok):
			want := opener(tok.text[0])
			// Pop to the nearest opener of the same kind. Openers skipped
			// on the way stay unmatched, as does a stray closer.
			for k := len(stack) - 1; k >= 0; k-- {
				if toks[stack[k]].text[0] == want {
					p.match[stack[k]] = i
					p.match[i] = stack[k]
					stack = stack[:k]
					break
				}
			}
		}
	}

	// Parents only count matched brackets, so an unclosed list does not
	// swallow the keys that follow it.
	stack = stack[:0]
	for i, tok := range toks {
		p.parent[i] = -1
		if len(stack) > 0 {
			p.parent[i] = stack[len(stack)-1]
		}
		if p.match[i] < 0 {
			continue
		}
		switch {
		case isOpen(tok):
			stack = append(stack, i)
		case isClose(tok):
			stack = stack[:len(stack)-1]
			p.parent[i] = p.parent[p.match[i]]
		}
	}
	return p
}

func isOpen(t token) bool {
	return t.is('{') || t.is('[') || t.is('(')
}

func isClose(t token) bool {
	return t.is('}') || t.is(']') || t.is(')')
}

func opener(closer byte) byte {
	switch closer {
	case '}':
		return '{'
	case ']':
		return '['
	default:
		return '('
	}
}

// isKey reports whether toks[i] is an object key followed by ':'.
func (p *parser) isKey(i int) bool {
	if i+1 >= len(p.toks) || !p.toks[i+1].is(':') {
		return false
	}
	k := p.toks[i].kind
	return k == tokString || k == tokIdent
}

// categories returns the key token indexes of every category block. A
// category is a key whose value is an object and which either is quoted
// and sits directly in a top-level object, or has a tier label among its
// own keys.
func (p *parser) categories() []int {
	var out []int
	for i := range p.toks {
		if !p.isKey(i) || i+2 >= len(p.toks) || !p.toks[i+2].is('{') {
			continue
		}
		if _, isTier := tierForLabel(p.toks[i].text); isTier {
			continue
		}
		obj := p.parent[i]
		topLevel := obj >= 0 && p.toks[obj].is('{') && p.parent[obj] == -1
		if (p.toks[i].kind == tokString && topLevel) || p.hasTierLabel(i+2) {
			out = append(out, i)
		}
	}
	return out
}

func (p *parser) hasTierLabel(open int) bool {
	for j := open + 1; j < p.end(open); j++ {
		if p.parent[j] == open && p.isKey(j) {
			if _, ok := tierForLabel(p.toks[j].text); ok {
				return true
			}
		}
	}
	return false
}

// end returns the index of the token closing open, or len(toks) when the
// bracket is never closed.
func (p *parser) end(open int) int {
	if m := p.match[open]; m >= 0 {
		return m
	}
	return len(p.toks)
}

func (p *parser) parseCategory(key int, warnings *[]Warning) *block {
	name := p.toks[key].text
	b := &block{corpus: CategoryCorpus{Name: name}}
	open := key + 2
	warn := func(t Tier, detail string) {
		w := Warning{Kind: internalerr.ErrCategoryParseIncomplete, Category: name, Detail: detail}
		if t >= 0 {
			w.Tier = t.String()
		}
		*warnings = append(*warnings, w)
	}
	if p.match[open] < 0 {
		warn(-1, "category block is not closed")
	}

	found := [3]bool{}
	for j := open + 1; j < p.end(open); j++ {
		if p.parent[j] != open || !p.isKey(j) {
			continue
		}
		t, ok := tierForLabel(p.toks[j].text)
		if !ok {
			continue
		}
		if found[t] {
			warn(t, "duplicate "+t.Label()+" ignored")
			continue
		}
		found[t] = true
		tl, terms, err := p.parseList(j)
		if err != nil {
			warn(t, err.Error())
			continue
		}
		b.tiers[t] = tl
		b.corpus.setTerms(t, terms)
	}
	for _, t := range Tiers {
		if !found[t] {
			warn(t, t.Label()+" not found")
		}
	}
	return b
}

// parseList reads the bracketed list of string literals that follows the
// tier label at toks[label].
func (p *parser) parseList(label int) (*tierList, []string, error) {
	open := label + 2
	if open >= len(p.toks) || !p.toks[open].is('[') {
		return nil, nil, fmt.Errorf("%s is not followed by a list", p.toks[label].text)
	}
	closeIdx := p.match[open]
	if closeIdx < 0 {
		return nil, nil, fmt.Errorf("%s list is not closed", p.toks[label].text)
	}

	tl := &tierList{
		open:        p.toks[open].start,
		close:       p.toks[closeIdx].start,
		labelIndent: lineIndent(p.src, p.toks[label].start),
	}
	var terms []string
	wantItem := true
	for j := open + 1; j < closeIdx; j++ {
		tok := p.toks[j]
		switch {
		case wantItem && tok.kind == tokString:
			tl.items = append(tl.items, item{start: tok.start, end: tok.end, quote: tok.quote})
			terms = append(terms, tok.text)
			wantItem = false
		case !wantItem && tok.is(','):
			wantItem = true
		case tok.kind == tokBad:
			return nil, nil, fmt.Errorf("malformed string literal at offset %d in %s", tok.start, p.toks[label].text)
		default:
			return nil, nil, fmt.Errorf("unexpected %q at offset %d in %s", tok.text, tok.start, p.toks[label].text)
		}
	}
	return tl, terms, nil
}

// lineIndent returns the leading blanks of the line containing pos.
func lineIndent(src []byte, pos int) string {
	start := bytes.LastIndexByte(src[:pos], '\n') + 1
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}
