package skills

import (
	"sync"

	"github.com/WessleyAI/skillscan/engine/domain"
)

// Aggregator keeps running per-skill document counts. Add and Merge are safe
// for concurrent use and the result does not depend on arrival order.
type Aggregator struct {
	tax *Taxonomy

	mu     sync.Mutex
	total  int
	counts []int
}

// NewAggregator creates an empty aggregator over tax.
func NewAggregator(tax *Taxonomy) *Aggregator {
	return &Aggregator{tax: tax, counts: make([]int, tax.Len())}
}

// Add counts one ad. Each skill contributes at most 1 per ad.
func (a *Aggregator) Add(doc domain.AdDocument) {
	hits := make([]bool, a.tax.Len())
	for i, s := range a.tax.skills {
		hits[i] = s.Matches(doc)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	for i, hit := range hits {
		if hit {
			a.counts[i]++
		}
	}
}

// Merge folds other's counts into a. Both must share a taxonomy.
func (a *Aggregator) Merge(other *Aggregator) {
	if other == a {
		return
	}
	other.mu.Lock()
	total := other.total
	counts := append([]int(nil), other.counts...)
	other.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total += total
	for i := range a.counts {
		if i < len(counts) {
			a.counts[i] += counts[i]
		}
	}
}

// Total is the number of ads added so far.
func (a *Aggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Finalize turns the counts into a frequency table in taxonomy order.
func (a *Aggregator) Finalize() (domain.FrequencyTable, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total == 0 {
		return nil, &domain.NoDataError{}
	}
	table := make(domain.FrequencyTable, len(a.counts))
	for i, s := range a.tax.skills {
		table[i] = domain.SkillCount{
			Skill:      s.Label,
			Category:   s.Category,
			Count:      a.counts[i],
			Percentage: float64(a.counts[i]) / float64(a.total) * 100,
		}
	}
	return table, nil
}
