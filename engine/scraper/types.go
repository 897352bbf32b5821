// Package scraper fetches search-result pages and job ads with bounded
// parallelism and turns each ad into a deduplicated token bag.
package scraper

import (
	"context"
	"sync"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/pkg/fn"
)

// PageFetcher performs one GET and returns the body or a *domain.FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) fn.Result[[]byte]
}

// PoolStats summarises one Pool.Run.
type PoolStats struct {
	Pages       int                       `json:"pages"`
	PagesMissed map[domain.SkipReason]int `json:"pages_missed,omitempty"`
	Links       int                       `json:"links"`
	AdsFetched  int                       `json:"ads_fetched"`
	AdsSkipped  map[domain.SkipReason]int `json:"ads_skipped,omitempty"`
}

// Skipped is the number of ads dropped for any reason.
func (s PoolStats) Skipped() int {
	n := 0
	for _, v := range s.AdsSkipped {
		n += v
	}
	return n
}

// Missed is the number of pages that yielded no links.
func (s PoolStats) Missed() int {
	n := 0
	for _, v := range s.PagesMissed {
		n += v
	}
	return n
}

// tally is the mutex-guarded PoolStats shared by workers.
type tally struct {
	mu sync.Mutex
	s  PoolStats
}

func (t *tally) page(missed domain.SkipReason, links int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Pages++
	t.s.Links += links
	if missed != "" {
		if t.s.PagesMissed == nil {
			t.s.PagesMissed = make(map[domain.SkipReason]int)
		}
		t.s.PagesMissed[missed]++
	}
}

func (t *tally) ad(skipped domain.SkipReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if skipped == "" {
		t.s.AdsFetched++
		return
	}
	if t.s.AdsSkipped == nil {
		t.s.AdsSkipped = make(map[domain.SkipReason]int)
	}
	t.s.AdsSkipped[skipped]++
}

func (t *tally) snapshot() PoolStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.s
	if t.s.PagesMissed != nil {
		out.PagesMissed = make(map[domain.SkipReason]int, len(t.s.PagesMissed))
		for k, v := range t.s.PagesMissed {
			out.PagesMissed[k] = v
		}
	}
	if t.s.AdsSkipped != nil {
		out.AdsSkipped = make(map[domain.SkipReason]int, len(t.s.AdsSkipped))
		for k, v := range t.s.AdsSkipped {
			out.AdsSkipped[k] = v
		}
	}
	return out
}
