package skills

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/skillscan/engine/domain"
)

func ad(tokens ...string) domain.AdDocument {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return domain.AdDocument{Tokens: m}
}

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.Equal(t, 39, tax.Len())
	assert.Len(t, tax.Categories, 5)

	var ml Skill
	for _, s := range tax.Skills() {
		if s.Label == "Machine Learning" {
			ml = s
		}
	}
	require.Equal(t, "knowledge", ml.Category)
	assert.True(t, ml.Matches(ad("machine", "learning", "python")))
	assert.False(t, ml.Matches(ad("machine")))
}

func TestLoadTaxonomyValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no skills", "categories: []"},
		{"duplicate label", "categories: [{name: a, skills: [{label: Go, tokens: [go]}, {label: go, tokens: [golang]}]}]"},
		{"no tokens", "categories: [{name: a, skills: [{label: Go, tokens: []}]}]"},
		{"uppercase token", "categories: [{name: a, skills: [{label: Go, tokens: [Go]}]}]"},
		{"unnamed category", "categories: [{skills: [{label: Go, tokens: [go]}]}]"},
		{"unknown field", "categories: [{name: a, weight: 2, skills: [{label: Go, tokens: [go]}]}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTaxonomy(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTaxonomy), err.Error())
		})
	}
}

func TestLoadTaxonomyFileMissing(t *testing.T) {
	_, err := LoadTaxonomyFile(t.TempDir() + "/nope.yaml")
	assert.Error(t, err)
}

func TestAggregatorPercentages(t *testing.T) {
	agg := NewAggregator(DefaultTaxonomy())
	for i := 0; i < 10; i++ {
		var toks []string
		if i < 3 {
			toks = append(toks, "python")
		}
		if i < 2 {
			toks = append(toks, "sql")
		}
		toks = append(toks, "team")
		agg.Add(ad(toks...))
	}

	table, err := agg.Finalize()
	require.NoError(t, err)
	py, _ := table.Get("Python")
	sql, _ := table.Get("SQL")
	r, _ := table.Get("R")
	assert.Equal(t, 3, py.Count)
	assert.InDelta(t, 30.0, py.Percentage, 1e-9)
	assert.InDelta(t, 20.0, sql.Percentage, 1e-9)
	assert.Equal(t, 0, r.Count)
	for _, row := range table {
		assert.LessOrEqual(t, row.Count, 10)
	}
}

func TestAggregatorNoData(t *testing.T) {
	_, err := NewAggregator(DefaultTaxonomy()).Finalize()
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestAggregatorSkillCountedOncePerAd(t *testing.T) {
	tax, err := LoadTaxonomy(strings.NewReader(
		"categories: [{name: a, skills: [{label: Go, tokens: [go, golang]}]}]"))
	require.NoError(t, err)
	agg := NewAggregator(tax)
	agg.Add(ad("go", "golang"))
	table, err := agg.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, table[0].Count)
	assert.InDelta(t, 100.0, table[0].Percentage, 1e-9)
}

func TestAggregatorOrderIndependentAndMerge(t *testing.T) {
	tax := DefaultTaxonomy()
	docs := []domain.AdDocument{
		ad("python", "sql"), ad("r"), ad("spark", "hadoop", "python"), ad("excel"),
	}

	seq := NewAggregator(tax)
	for i := len(docs) - 1; i >= 0; i-- {
		seq.Add(docs[i])
	}

	left, right := NewAggregator(tax), NewAggregator(tax)
	var wg sync.WaitGroup
	for i, d := range docs {
		wg.Add(1)
		go func(i int, d domain.AdDocument) {
			defer wg.Done()
			if i%2 == 0 {
				left.Add(d)
			} else {
				right.Add(d)
			}
		}(i, d)
	}
	wg.Wait()
	left.Merge(right)

	a, err := seq.Finalize()
	require.NoError(t, err)
	b, err := left.Finalize()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 4, left.Total())
}
