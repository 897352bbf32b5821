package scraper

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/skillscan/engine/domain"
	"github.com/WessleyAI/skillscan/engine/search"
	"github.com/WessleyAI/skillscan/pkg/fn"
)

func collect() (func(domain.AdDocument), func() []domain.AdDocument) {
	var mu sync.Mutex
	var docs []domain.AdDocument
	return func(d domain.AdDocument) {
			mu.Lock()
			docs = append(docs, d)
			mu.Unlock()
		}, func() []domain.AdDocument {
			mu.Lock()
			defer mu.Unlock()
			return docs
		}
}

func plan(srvURL string, pages int) []domain.ResultPage {
	return search.PlanPages(srvURL+"/jobs?q=data+scientist", pages*10, 10, 0)
}

func TestPoolFetchesEveryAd(t *testing.T) {
	site := &fakeSite{pages: map[int][]string{}, ads: map[string]string{}}
	for p := 0; p < 4; p++ {
		var ids []string
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("%d-%d", p, i)
			ids = append(ids, id)
			site.ads[id] = adHTML("python developer " + id)
		}
		site.pages[p] = ids
	}
	srv := site.start(t)

	emit, docs := collect()
	pool := NewPool(PoolConfig{Fetcher: NewFetcher(FetcherConfig{}), Workers: 3, Delay: -1})
	stats, err := pool.Run(context.Background(), plan(srv.URL, 4), emit)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Pages)
	assert.Equal(t, 12, stats.Links)
	assert.Equal(t, 12, stats.AdsFetched)
	assert.Zero(t, stats.Skipped())
	require.Len(t, docs(), 12)
	for _, d := range docs() {
		assert.True(t, d.Has("python"))
		assert.False(t, d.Has("sql"), "style content must not leak into tokens")
		assert.True(t, strings.Contains(d.URL, "/rc/clk?jk="))
	}
}

func TestPoolSkipsTimedOutAd(t *testing.T) {
	site := &fakeSite{
		pages: map[int][]string{0: {"a", "b", "slow", "c", "d"}},
		ads: map[string]string{
			"a": adHTML("python"), "b": adHTML("sql"), "slow": adHTML("never"),
			"c": adHTML("spark"), "d": adHTML("excel"),
		},
		hook: func(w http.ResponseWriter, r *http.Request) bool {
			if r.URL.Query().Get("jk") == "slow" {
				select {
				case <-time.After(3 * time.Second):
				case <-r.Context().Done():
				}
				return false
			}
			return true
		},
	}
	srv := site.start(t)

	emit, docs := collect()
	pool := NewPool(PoolConfig{
		Fetcher: NewFetcher(FetcherConfig{Timeout: 200 * time.Millisecond}),
		Delay:   -1,
	})
	stats, err := pool.Run(context.Background(), plan(srv.URL, 1), emit)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.AdsFetched)
	assert.Equal(t, 1, stats.AdsSkipped[domain.SkipFetch])
	assert.Len(t, docs(), 4)
}

func TestPoolMissingContainerRecordsDiagnostics(t *testing.T) {
	site := &fakeSite{
		pages: map[int][]string{0: {"a"}, 1: nil, 2: {"b", "c"}},
		ads:   map[string]string{"a": adHTML("python"), "b": adHTML("r"), "c": adHTML("sql")},
	}
	srv := site.start(t)
	diagPath := filepath.Join(t.TempDir(), "failed_to_parse_page.txt")

	emit, docs := collect()
	pool := NewPool(PoolConfig{
		Fetcher:     NewFetcher(FetcherConfig{}),
		Delay:       -1,
		Diagnostics: NewDiagnostics(diagPath),
	})
	stats, err := pool.Run(context.Background(), plan(srv.URL, 3), emit)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 1, stats.PagesMissed[domain.SkipParseStructure])
	assert.Equal(t, 3, stats.AdsFetched)
	assert.Len(t, docs(), 3)

	b, err := os.ReadFile(diagPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "start=10")
	assert.Contains(t, string(b), "are you a robot?")
}

func TestPoolSkipsUndecodableAndMissingAds(t *testing.T) {
	site := &fakeSite{
		pages: map[int][]string{0: {"good", "binary", "gone"}},
		ads:   map[string]string{"good": adHTML("python"), "binary": "\xff\xfe\xfd"},
	}
	srv := site.start(t)

	emit, docs := collect()
	pool := NewPool(PoolConfig{Fetcher: NewFetcher(FetcherConfig{}), Delay: -1})
	stats, err := pool.Run(context.Background(), plan(srv.URL, 1), emit)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.AdsSkipped[domain.SkipDecode])
	// The 404 body for "gone" still parses into tokens ("page", "found").
	assert.Equal(t, 2, stats.AdsFetched)
	assert.Len(t, docs(), 2)
}

func TestPoolCancellationStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := &fakeSite{pages: map[int][]string{}, ads: map[string]string{}}
	for p := 0; p < 10; p++ {
		var ids []string
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("%d-%d", p, i)
			ids = append(ids, id)
			site.ads[id] = adHTML("python")
		}
		site.pages[p] = ids
	}
	site.hook = func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Query().Get("jk") == "0-2" {
			cancel()
		}
		return true
	}
	srv := site.start(t)

	emit, _ := collect()
	pool := NewPool(PoolConfig{Fetcher: NewFetcher(FetcherConfig{}), Workers: 2, Delay: 5 * time.Millisecond})
	_, err := pool.Run(ctx, plan(srv.URL, 10), emit)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, site.requestCount(), 60)
}

func TestPoolWorkersVisitPagesInOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[int][]int{}
	f := fetcherFunc(func(ctx context.Context, url string) fn.Result[[]byte] {
		var idx int
		fmt.Sscanf(url[strings.Index(url, "start=")+6:], "%d", &idx)
		mu.Lock()
		seen[idx/10/4] = append(seen[idx/10/4], idx/10)
		mu.Unlock()
		return fn.Ok([]byte(`<div id="resultsCol"></div>`))
	})

	pool := NewPool(PoolConfig{Fetcher: f, Workers: 3, Delay: -1})
	stats, err := pool.Run(context.Background(), plan("http://x.test", 12), func(domain.AdDocument) {})
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Pages)
	for group, idx := range seen {
		require.Len(t, idx, 4, "group %d", group)
		for i := 1; i < len(idx); i++ {
			assert.Equal(t, idx[i-1]+1, idx[i], "group %d visited out of order: %v", group, idx)
		}
	}
}

func TestPoolRunsOneWorkerPerGroup(t *testing.T) {
	const groups = 5
	var (
		mu             sync.Mutex
		inFlight, peak int
		once           sync.Once
	)
	release := make(chan struct{})
	f := fetcherFunc(func(ctx context.Context, url string) fn.Result[[]byte] {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		if inFlight == groups {
			once.Do(func() { close(release) })
		}
		mu.Unlock()

		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}

		mu.Lock()
		inFlight--
		mu.Unlock()
		return fn.Ok([]byte(`<div id="resultsCol"></div>`))
	})

	pool := NewPool(PoolConfig{Fetcher: f, Workers: groups, Delay: -1})
	stats, err := pool.Run(context.Background(), plan("http://x.test", groups), func(domain.AdDocument) {})
	require.NoError(t, err)
	assert.Equal(t, groups, stats.Pages)
	assert.Equal(t, groups, peak, "every group should be fetched concurrently")
}

func TestPoolDelayPastDeadline(t *testing.T) {
	f := fetcherFunc(func(ctx context.Context, url string) fn.Result[[]byte] {
		if strings.Contains(url, "start=") {
			return fn.Ok([]byte(`<div id="resultsCol"><a href="/rc/clk?jk=1">one</a></div>`))
		}
		return fn.Ok([]byte(adHTML("python")))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	pool := NewPool(PoolConfig{Fetcher: f, Workers: 1, Delay: 2 * time.Second})
	start := time.Now()
	stats, err := pool.Run(ctx, plan("http://x.test", 1), func(domain.AdDocument) {})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 1, stats.Links)
	assert.Zero(t, stats.AdsFetched)
}

func TestPoolEmpty(t *testing.T) {
	stats, err := NewPool(PoolConfig{}).Run(context.Background(), nil, func(domain.AdDocument) {})
	require.NoError(t, err)
	assert.Zero(t, stats.Pages)
}

func TestNewPoolClampsWorkers(t *testing.T) {
	assert.Equal(t, MaxWorkers, NewPool(PoolConfig{Workers: 500}).workers)
	assert.Equal(t, MaxWorkers, NewPool(PoolConfig{}).workers)
	assert.Equal(t, 4, NewPool(PoolConfig{Workers: 4}).workers)
	assert.Equal(t, DefaultDelay, NewPool(PoolConfig{}).delay)
}

type fetcherFunc func(ctx context.Context, url string) fn.Result[[]byte]

func (f fetcherFunc) Fetch(ctx context.Context, url string) fn.Result[[]byte] { return f(ctx, url) }
