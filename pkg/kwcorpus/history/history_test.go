package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/filter"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/report"
	"github.com/cognicore/kwcorpus/pkg/kwcorpus/store"
)

func TestFromReport(t *testing.T) {
	r := report.New("01JRUN", report.Merge, "/cfg/store.js")
	r.BackupPath = "/cfg/store.js.backup"
	r.StoreWritten = true
	r.Samples.Analyzed = 12
	r.AddCategory(filter.Result{
		Category:  "NPTEL",
		Primary:   []string{"hall ticket"},
		Secondary: []string{"swayam"},
		Phrases:   []string{"exam registration"},
	}, store.CategoryCorpus{}, 12)
	r.AddStoreWarnings([]store.Warning{{Category: "HOD"}})

	run := FromReport(r)

	assert.Equal(t, "01JRUN", run.ID)
	assert.Equal(t, "merge", run.Mode)
	assert.True(t, run.Written)
	assert.Equal(t, 12, run.Samples)
	assert.Equal(t, 1, run.Warnings)
	assert.Equal(t, r.GeneratedAt, run.StartedAt)
	assert.Equal(t, []Term{
		{Category: "NPTEL", Tier: "primary", Term: "hall ticket"},
		{Category: "NPTEL", Tier: "secondary", Term: "swayam"},
		{Category: "NPTEL", Tier: "phrase", Term: "exam registration"},
	}, run.Terms)
}

func TestNewIDIsOrdered(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}
