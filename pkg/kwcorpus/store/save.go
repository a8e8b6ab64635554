package store

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

// maxLineWidth is the widest line an insertion may produce.
const maxLineWidth = 100

type edit struct {
	pos  int
	text string
}

// Save appends the new terms of every category in updates to the end of
// the matching tier lists and returns the resulting file. Every byte
// outside the inserted text is preserved, so with no updates the result
// equals the source. Terms already present in the tier (ignoring case)
// are skipped, also across update keys that name the same category.
// Updates for unknown categories or unwritable tiers are dropped and
// reported as warnings.
func (d *Document) Save(updates map[string]Update) ([]byte, []Warning) {
	var (
		edits    []edit
		warnings []Warning
	)

	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	// Keys that fold to the same category share one block; their terms
	// are combined so a term is inserted once.
	var blocks []*block
	merged := make(map[*block]*Update)
	for _, name := range names {
		u := updates[name]
		if u.Len() == 0 {
			continue
		}
		b := d.lookup(name)
		if b == nil {
			warnings = append(warnings, Warning{
				Kind:     internalerr.ErrCategoryNotFound,
				Category: name,
				Detail:   fmt.Sprintf("%d new terms dropped", u.Len()),
			})
			continue
		}
		m, ok := merged[b]
		if !ok {
			m = &Update{}
			merged[b] = m
			blocks = append(blocks, b)
		}
		m.Primary = append(m.Primary, u.Primary...)
		m.Secondary = append(m.Secondary, u.Secondary...)
		m.Phrases = append(m.Phrases, u.Phrases...)
	}

	for _, b := range blocks {
		u := merged[b]
		for _, t := range Tiers {
			terms := fresh(b.corpus, t, u.Terms(t))
			if len(terms) == 0 {
				continue
			}
			tl := b.tiers[t]
			if tl == nil {
				warnings = append(warnings, Warning{
					Kind:     internalerr.ErrCategoryParseIncomplete,
					Category: b.corpus.Name,
					Tier:     t.String(),
					Detail:   fmt.Sprintf("tier not writable, %d new terms dropped", len(terms)),
				})
				continue
			}
			edits = append(edits, d.insertion(tl, terms))
		}
	}

	if len(edits) == 0 {
		return append([]byte(nil), d.src...), warnings
	}

	// Apply from the end so earlier offsets stay valid.
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].pos > edits[j].pos })
	out := append([]byte(nil), d.src...)
	for _, e := range edits {
		out = append(out[:e.pos], append([]byte(e.text), out[e.pos:]...)...)
	}
	return out, warnings
}

// fresh drops blanks, terms already in the tier and repeats.
func fresh(c CategoryCorpus, t Tier, terms []string) []string {
	seen := c.Keys(t)
	var out []string
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		key := normalize.Fold(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}
	return out
}

// insertion builds the text that appends terms to tl, following the
// list's layout: a list written on one line stays on one line, a
// multi-line list gets the new terms on fresh lines at the indentation of
// its last item.
func (d *Document) insertion(tl *tierList, terms []string) edit {
	quote := d.quote
	if n := len(tl.items); n > 0 && tl.items[n-1].quote != '`' {
		quote = tl.items[n-1].quote
	}
	lits := make([]string, len(terms))
	for i, term := range terms {
		lits[i] = quoteJS(term, quote)
	}

	multiline := strings.ContainsRune(string(d.src[tl.open:tl.close]), '\n')
	if len(tl.items) == 0 {
		if !multiline {
			return edit{pos: tl.open + 1, text: strings.Join(lits, ", ")}
		}
		indent := tl.labelIndent + indentUnit(tl.labelIndent)
		return edit{pos: tl.open + 1, text: d.newline + d.wrap(indent, lits)}
	}

	last := tl.items[len(tl.items)-1]
	if !multiline {
		return edit{pos: last.end, text: ", " + strings.Join(lits, ", ")}
	}
	indent := lineIndent(d.src, last.start)
	return edit{pos: last.end, text: "," + d.newline + d.wrap(indent, lits)}
}

// wrap lays lits out as comma separated lines starting with indent.
func (d *Document) wrap(indent string, lits []string) string {
	var b strings.Builder
	width := 0
	for i, lit := range lits {
		switch {
		case i == 0:
			b.WriteString(indent)
			width = utf8.RuneCountInString(indent)
		case width+len(", ")+utf8.RuneCountInString(lit)+len(",") > maxLineWidth:
			b.WriteString(",")
			b.WriteString(d.newline)
			b.WriteString(indent)
			width = utf8.RuneCountInString(indent)
		default:
			b.WriteString(", ")
			width += 2
		}
		b.WriteString(lit)
		width += utf8.RuneCountInString(lit)
	}
	return b.String()
}

func indentUnit(indent string) string {
	if strings.HasPrefix(indent, "\t") {
		return "\t"
	}
	return "  "
}
