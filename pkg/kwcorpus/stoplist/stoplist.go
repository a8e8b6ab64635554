package stoplist

import (
	"sort"
	"strings"
)

// english is the closed list of function words, pronouns and the
// contraction remnants ("don", "t", "ll") that survive punctuation removal.
var english = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "as", "is", "was", "are", "were", "been",
	"be", "have", "has", "had", "do", "does", "did", "will", "would",
	"should", "could", "may", "might", "must", "can", "this", "that",
	"these", "those", "i", "you", "he", "she", "it", "we", "they",
	"his", "her", "its", "our", "their", "him", "them", "me", "us",
	"if", "when", "where", "why", "how", "all", "each", "every", "both",
	"few", "more", "most", "other", "some", "such", "no", "nor", "not",
	"only", "own", "same", "so", "than", "too", "very", "s", "t",
	"just", "don", "now", "d", "ll", "m", "o", "re", "ve", "y",
	"ain", "aren", "couldn", "didn", "doesn", "hadn", "hasn", "haven",
	"isn", "ma", "mightn", "mustn", "needn", "shan", "shouldn", "wasn",
	"weren", "won", "wouldn", "your", "yours", "my", "mine", "what",
	"which", "who", "whom", "about", "into", "over", "under", "there",
	"here", "then", "also", "any", "being", "having", "doing",
}

// English returns a copy of the built-in stopword list.
func English() []string {
	out := make([]string, len(english))
	copy(out, english)
	return out
}

// Manager holds the stopword set used by the extractor.
type Manager struct {
	stops map[string]Reason
}

// Reason explains why a token is a stopword
type Reason struct {
	Builtin    bool    // part of the closed English list
	Configured bool    // loaded from a stoplist file
	HighDF     bool    // suggested from sample document frequency
	DFPercent  float64 // share of samples containing the token
	Categories int     // distinct categories the token was seen in
}

// NewManager creates a new stoplist manager
func NewManager(initialStops []string) *Manager {
	stops := make(map[string]Reason, len(initialStops))
	for _, s := range initialStops {
		stops[strings.ToLower(s)] = Reason{Builtin: true}
	}
	return &Manager{stops: stops}
}

// NewEnglish creates a manager seeded with the built-in list.
func NewEnglish() *Manager {
	return NewManager(english)
}

// IsStop checks if a token is a stopword
func (m *Manager) IsStop(token string) bool {
	_, ok := m.stops[token]
	return ok
}

// Add adds a token to the stoplist with a reason
func (m *Manager) Add(token string, reason Reason) {
	m.stops[strings.ToLower(token)] = reason
}

// AddConfigured adds tokens loaded from a stoplist file.
func (m *Manager) AddConfigured(tokens []string) {
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			m.Add(tok, Reason{Configured: true})
		}
	}
}

// Remove removes a token from the stoplist
func (m *Manager) Remove(token string) {
	delete(m.stops, strings.ToLower(token))
}

// Len returns the number of stopwords.
func (m *Manager) Len() int {
	return len(m.stops)
}

// All returns all stopwords in alphabetical order.
func (m *Manager) All() []string {
	result := make([]string, 0, len(m.stops))
	for s := range m.stops {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Stats holds per-token sample statistics for candidate evaluation.
type Stats struct {
	Token      string
	DF         int64   // samples containing the token
	DFPercent  float64 // DF as a percentage of all samples
	Categories int     // distinct categories the token appeared in
}

// Candidate represents a candidate stopword
type Candidate struct {
	Token  string  `json:"token" yaml:"token"`
	Reason Reason  `json:"-" yaml:"-"`
	Score  float64 `json:"score" yaml:"score"`
}

// Thresholds defines criteria for stopword identification
type Thresholds struct {
	DFPercent     float64 // e.g. 60: appears in 60% of samples
	MinCategories int     // e.g. 3: spread over at least 3 categories
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DFPercent:     60.0,
		MinCategories: 3,
	}
}

// SuggestCandidates returns tokens that occur in most samples across many
// categories and therefore carry no category signal. Candidates are
// ordered by score, then token.
func (m *Manager) SuggestCandidates(stats []Stats, thresholds Thresholds) []Candidate {
	if thresholds.DFPercent <= 0 {
		thresholds.DFPercent = DefaultThresholds().DFPercent
	}
	if thresholds.MinCategories <= 0 {
		thresholds.MinCategories = DefaultThresholds().MinCategories
	}

	var candidates []Candidate
	for _, s := range stats {
		if m.IsStop(s.Token) {
			continue // already a stopword
		}
		if s.DFPercent < thresholds.DFPercent || s.Categories < thresholds.MinCategories {
			continue
		}
		candidates = append(candidates, Candidate{
			Token: s.Token,
			Reason: Reason{
				HighDF:     true,
				DFPercent:  s.DFPercent,
				Categories: s.Categories,
			},
			Score: s.DFPercent / 100.0,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Token < candidates[j].Token
	})
	return candidates
}
