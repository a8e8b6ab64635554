// Package domain holds the curated category to candidate-term table.
//
// The table is data only. A built-in copy is embedded in the binary; an
// override file with the same layout can extend it.
package domain

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/normalize"
)

//go:embed candidates.yaml
var builtin []byte

// CandidateSet is the curated candidates of one category, per tier.
type CandidateSet struct {
	Primary   []string `yaml:"primary"`
	Secondary []string `yaml:"secondary"`
	Phrases   []string `yaml:"phrases"`
}

// Len returns the number of candidates across all tiers.
func (c CandidateSet) Len() int {
	return len(c.Primary) + len(c.Secondary) + len(c.Phrases)
}

func (c CandidateSet) clone() CandidateSet {
	return CandidateSet{
		Primary:   append([]string(nil), c.Primary...),
		Secondary: append([]string(nil), c.Secondary...),
		Phrases:   append([]string(nil), c.Phrases...),
	}
}

type file struct {
	Categories map[string]CandidateSet `yaml:"categories"`
}

// Table maps category names to candidate sets. It is immutable once
// built and safe for concurrent use.
type Table struct {
	sets  map[string]CandidateSet
	names map[string]string // folded name -> declared name
}

// Empty returns a table with no categories.
func Empty() *Table {
	return &Table{sets: map[string]CandidateSet{}, names: map[string]string{}}
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(builtin)
		if err != nil {
			panic(fmt.Sprintf("domain: embedded candidates: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Parse builds a table from YAML. Blank entries are dropped and duplicates
// within a tier are removed case-insensitively, keeping the first spelling.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: candidate table: %v", internalerr.ErrInvalidConfig, err)
	}
	t := &Table{
		sets:  make(map[string]CandidateSet, len(f.Categories)),
		names: make(map[string]string, len(f.Categories)),
	}
	for name, set := range f.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: candidate table has an unnamed category", internalerr.ErrInvalidConfig)
		}
		key := normalize.Fold(name)
		if prev, ok := t.names[key]; ok {
			return nil, fmt.Errorf("%w: candidate categories %q and %q collide", internalerr.ErrInvalidConfig, prev, name)
		}
		t.names[key] = name
		t.sets[name] = CandidateSet{
			Primary:   dedup(nil, set.Primary),
			Secondary: dedup(nil, set.Secondary),
			Phrases:   dedup(nil, set.Phrases),
		}
	}
	return t, nil
}

// LoadFile reads a candidate table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Lookup returns the candidates for category. Names match exactly first,
// then case-insensitively. Unknown categories yield an empty set.
func (t *Table) Lookup(category string) CandidateSet {
	if t == nil {
		return CandidateSet{}
	}
	if set, ok := t.sets[category]; ok {
		return set.clone()
	}
	if name, ok := t.names[normalize.Fold(category)]; ok {
		return t.sets[name].clone()
	}
	return CandidateSet{}
}

// Categories returns the declared category names, sorted.
func (t *Table) Categories() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.sets))
	for name := range t.sets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Merge returns a table holding t's candidates followed by other's. A
// category present in both keeps t's spelling of the name.
func (t *Table) Merge(other *Table) *Table {
	out := &Table{
		sets:  make(map[string]CandidateSet),
		names: make(map[string]string),
	}
	for _, src := range []*Table{t, other} {
		if src == nil {
			continue
		}
		for _, name := range src.Categories() {
			set := src.sets[name]
			key := normalize.Fold(name)
			existing, ok := out.names[key]
			if !ok {
				out.names[key] = name
				out.sets[name] = set.clone()
				continue
			}
			cur := out.sets[existing]
			out.sets[existing] = CandidateSet{
				Primary:   dedup(cur.Primary, set.Primary),
				Secondary: dedup(cur.Secondary, set.Secondary),
				Phrases:   dedup(cur.Phrases, set.Phrases),
			}
		}
	}
	return out
}

func dedup(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, term := range list {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := normalize.Fold(term)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}
